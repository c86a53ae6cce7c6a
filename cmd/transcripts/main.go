// Command transcripts merges per-activity log blobs into conversation
// transcripts, either for one conversation (written locally) or for every
// idle conversation in the container (written back to storage).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"transcript-aggregator/internal/config"
	"transcript-aggregator/internal/usecase"
	"transcript-aggregator/internal/wiring"
)

const prompt = "Enter the conversationId to generate the transcript: "

type options struct {
	configPath      string
	all             bool
	conversationID  string
	outputDir       string
	continueOnError bool
	liveness        time.Duration
	compatExit      bool
	verbose         bool
}

func main() {
	opts := parseFlags(os.Args[1:])

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, opts, os.Stdin, os.Stdout, logger)
	stop()
	if err != nil {
		kind, _ := usecase.KindOf(err)
		slog.Error("transcripts failed", "kind", kind, "err", err)
		if !opts.compatExit {
			os.Exit(1)
		}
	}
}

func parseFlags(args []string) options {
	var opts options
	fs := flag.NewFlagSet("transcripts", flag.ExitOnError)
	fs.StringVar(&opts.configPath, "config", os.Getenv("TRANSCRIPTS_CONFIG"), "path to a YAML config file")
	fs.BoolVar(&opts.all, "all", false, "aggregate every idle conversation in the container")
	fs.StringVar(&opts.conversationID, "id", "", "conversation id to export (skips the prompt)")
	fs.StringVar(&opts.outputDir, "out", "", "output directory for single-conversation transcripts")
	fs.BoolVar(&opts.continueOnError, "continue-on-error", false, "keep walking after a conversation fails")
	fs.DurationVar(&opts.liveness, "liveness", 0, "idle time before a conversation is merged (default 5m)")
	fs.BoolVar(&opts.compatExit, "compat-exit", false, "always exit 0, even after a failure")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	_ = fs.Parse(args)
	return opts
}

func run(ctx context.Context, opts options, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	cfg, err := config.Load(opts.configPath, os.Getenv)
	if err != nil {
		return usecase.NewError(usecase.ErrorConfiguration, "load_config", err)
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if opts.continueOnError {
		cfg.ContinueOnError = true
	}
	if opts.liveness != 0 {
		cfg.LivenessWindow = opts.liveness
	}

	var convID string
	if !opts.all {
		convID = strings.TrimSpace(opts.conversationID)
		if convID == "" {
			convID, err = promptConversationID(stdin, stdout)
			if err != nil {
				return err
			}
		}
	}

	c, err := wiring.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if opts.all {
		return runBulk(ctx, c, stdout)
	}
	return runSingle(ctx, c, convID, stdout)
}

// promptConversationID asks until a non-blank line is entered.
func promptConversationID(stdin io.Reader, stdout io.Writer) (string, error) {
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, prompt)
		if !scanner.Scan() {
			err := scanner.Err()
			if err == nil {
				err = io.EOF
			}
			return "", usecase.NewError(usecase.ErrorValidation, "no_conversation_id", err)
		}
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			return id, nil
		}
	}
}

func runSingle(ctx context.Context, c *wiring.Container, convID string, stdout io.Writer) error {
	resolver, err := c.Resolver()
	if err != nil {
		return usecase.NewError(usecase.ErrorConfiguration, "resolver", err)
	}
	out, err := resolver.Resolve(ctx, usecase.ResolveInput{ConversationID: convID})
	if err != nil {
		return err
	}
	if out.TranscriptName == "" {
		fmt.Fprintf(stdout, "No activities found for conversation %q.\n", out.ConversationID)
		return nil
	}
	fmt.Fprintf(stdout, "Wrote %d activities from %s to %s/%s\n",
		out.Activities, strings.Join(out.Channels, ", "), c.Config.OutputDir, out.TranscriptName)
	return nil
}

func runBulk(ctx context.Context, c *wiring.Container, stdout io.Writer) error {
	aggregator, err := c.Aggregator()
	if err != nil {
		return usecase.NewError(usecase.ErrorConfiguration, "aggregator", err)
	}
	rep, err := aggregator.Run(ctx)
	fmt.Fprintf(stdout, "Run %s: %d written, %d already done, %d still active, %d failed\n",
		rep.RunID, len(rep.Written), rep.SkippedExisting, rep.SkippedActive, len(rep.Failed))
	for _, f := range rep.Failed {
		fmt.Fprintf(stdout, "  failed: %s: %v\n", f.Prefix, f.Err)
	}
	if err != nil {
		return err
	}
	if len(rep.Failed) > 0 {
		return fmt.Errorf("%d conversations failed: %w", len(rep.Failed), errors.Join(failedErrors(rep.Failed)...))
	}
	return nil
}

func failedErrors(failed []usecase.FailedConversation) []error {
	errs := make([]error, 0, len(failed))
	for _, f := range failed {
		errs = append(errs, f.Err)
	}
	return errs
}
