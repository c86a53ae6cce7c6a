package usecase

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"transcript-aggregator/internal/domain"
)

const defaultLivenessWindow = 5 * time.Minute

// BlobStore is the hierarchical object store the transcripts live in.
type BlobStore interface {
	ListDirectories(ctx context.Context, prefix string) ([]domain.DirRef, error)
	ListFiles(ctx context.Context, prefix string) ([]domain.FileRef, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, body []byte, contentType string, metadata map[string]string) error
}

// Recorder keeps an audit trail of bulk runs. Recording is best effort:
// failures are logged and never abort a run.
type Recorder interface {
	RecordTranscript(ctx context.Context, rec domain.TranscriptRecord) error
	RecordRun(ctx context.Context, summary domain.RunSummary) error
}

type nopRecorder struct{}

func (nopRecorder) RecordTranscript(context.Context, domain.TranscriptRecord) error { return nil }
func (nopRecorder) RecordRun(context.Context, domain.RunSummary) error              { return nil }

type AggregatorConfig struct {
	// LivenessWindow is how long a conversation must be idle before it is
	// merged. Zero means five minutes.
	LivenessWindow time.Duration
	// ContinueOnError isolates failures per conversation directory instead
	// of aborting the run on the first one.
	ContinueOnError bool
	Recorder        Recorder
	Logger          *slog.Logger
	Now             func() time.Time
}

// Aggregator merges the activity blobs of every idle conversation into a
// transcript blob stored next to them.
type Aggregator struct {
	store           BlobStore
	recorder        Recorder
	log             *slog.Logger
	now             func() time.Time
	liveness        time.Duration
	continueOnError bool
}

// FailedConversation is a directory whose merge failed during a run with
// ContinueOnError set.
type FailedConversation struct {
	Prefix string
	Err    error
}

// Report summarizes one bulk run.
type Report struct {
	RunID           string
	StartedAt       time.Time
	FinishedAt      time.Time
	Written         []string
	SkippedExisting int
	SkippedActive   int
	Failed          []FailedConversation
}

func NewAggregator(store BlobStore, cfg AggregatorConfig) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("usecase: blob store must not be nil")
	}
	if cfg.LivenessWindow < 0 {
		return nil, errors.New("usecase: liveness window must not be negative")
	}
	if cfg.LivenessWindow == 0 {
		cfg.LivenessWindow = defaultLivenessWindow
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{
		store:           store,
		recorder:        cfg.Recorder,
		log:             cfg.Logger,
		now:             cfg.Now,
		liveness:        cfg.LivenessWindow,
		continueOnError: cfg.ContinueOnError,
	}, nil
}

// Run walks every channel and writes a transcript for each idle
// conversation that does not have one yet. The returned report is valid
// even when err is non-nil and reflects the work done before the failure.
func (a *Aggregator) Run(ctx context.Context) (Report, error) {
	rep := Report{RunID: newUUID(), StartedAt: a.now()}
	log := a.log.With("run_id", rep.RunID)

	channels, err := a.store.ListDirectories(ctx, "")
	if err != nil {
		rep.FinishedAt = a.now()
		return rep, newError(ErrorStorage, "list_channels", err)
	}
	log.Info("bulk run started", "channels", len(channels))

	for _, ch := range channels {
		channelID := decodeSegment(ch.Name)
		err := validateDirectoryName(channelID)
		if err == nil {
			err = a.walk(ctx, log.With("channel", channelID), channelID, ch, &rep)
		} else {
			err = a.isolate(ctx, log, ch.Prefix, err, &rep)
		}
		if err != nil {
			rep.FinishedAt = a.now()
			return rep, err
		}
	}

	rep.FinishedAt = a.now()
	if err := a.recorder.RecordRun(ctx, rep.summary()); err != nil {
		log.Warn("failed to record run summary", "err", err)
	}
	log.Info("bulk run finished",
		"written", len(rep.Written),
		"skipped_existing", rep.SkippedExisting,
		"skipped_active", rep.SkippedActive,
		"failed", len(rep.Failed),
	)
	return rep, nil
}

// walk recurses depth-first into dir's children before merging dir itself.
func (a *Aggregator) walk(ctx context.Context, log *slog.Logger, channelID string, dir domain.DirRef, rep *Report) error {
	children, err := a.store.ListDirectories(ctx, dir.Prefix)
	if err != nil {
		return a.isolate(ctx, log, dir.Prefix, newError(ErrorStorage, "list_directories", err), rep)
	}
	for _, child := range children {
		if err := a.walk(ctx, log, channelID, child, rep); err != nil {
			return err
		}
	}
	if err := a.mergeDirectory(ctx, log, channelID, dir, rep); err != nil {
		return a.isolate(ctx, log, dir.Prefix, err, rep)
	}
	return nil
}

// isolate either propagates err or, with ContinueOnError, records it and
// lets the walk go on. Cancellation always propagates.
func (a *Aggregator) isolate(ctx context.Context, log *slog.Logger, prefix string, err error, rep *Report) error {
	if !a.continueOnError || ctx.Err() != nil {
		return err
	}
	log.Error("conversation failed", "prefix", prefix, "err", err)
	rep.Failed = append(rep.Failed, FailedConversation{Prefix: prefix, Err: err})
	return nil
}

func (a *Aggregator) mergeDirectory(ctx context.Context, log *slog.Logger, channelID string, dir domain.DirRef, rep *Report) error {
	files, err := a.store.ListFiles(ctx, dir.Prefix)
	if err != nil {
		return newError(ErrorStorage, "list_files", err)
	}
	if len(files) == 0 {
		return nil
	}
	for _, f := range files {
		if extension(f.Name) == domain.TranscriptExtension {
			log.Debug("transcript already exists", "prefix", dir.Prefix, "transcript", f.Key)
			rep.SkippedExisting++
			return nil
		}
	}

	sortByLastModified(files)
	cutoff := a.now().Add(-a.liveness)
	if newest := files[len(files)-1]; newest.LastModified.After(cutoff) {
		log.Info("conversation still active", "prefix", dir.Prefix, "last_modified", newest.LastModified)
		rep.SkippedActive++
		return nil
	}

	conversationID := decodeSegment(dir.Name)
	name := transcriptName(conversationID)
	if err := validateDirectoryName(name); err != nil {
		return err
	}
	key := dir.Prefix + name

	activities, err := a.readActivities(ctx, files)
	if err != nil {
		return err
	}
	if err := a.store.Write(ctx, key, encodeTranscript(activities), domain.TranscriptContentType, map[string]string{}); err != nil {
		return newError(ErrorStorage, "write_transcript", err)
	}
	rep.Written = append(rep.Written, key)
	log.Info("transcript written", "conversation", conversationID, "key", key, "activities", len(activities))

	rec := domain.TranscriptRecord{
		RunID:          rep.RunID,
		ChannelID:      channelID,
		ConversationID: conversationID,
		TranscriptKey:  key,
		Activities:     len(activities),
		CreatedAt:      a.now().UTC(),
	}
	if err := a.recorder.RecordTranscript(ctx, rec); err != nil {
		log.Warn("failed to record transcript", "key", key, "err", err)
	}
	return nil
}

func (a *Aggregator) readActivities(ctx context.Context, files []domain.FileRef) ([]json.RawMessage, error) {
	activities := make([]json.RawMessage, 0, len(files))
	for _, f := range files {
		body, err := a.store.Read(ctx, f.Key)
		if err != nil {
			return nil, newError(ErrorStorage, "read_activity", err)
		}
		act, err := parseActivity(body)
		if err != nil {
			return nil, newError(ErrorParse, "invalid_activity", fmt.Errorf("%s: %w", f.Key, err))
		}
		activities = append(activities, act)
	}
	return activities, nil
}

// sortByLastModified orders files oldest first; equal timestamps fall back
// to key order so repeated runs produce identical output.
func sortByLastModified(files []domain.FileRef) {
	slices.SortStableFunc(files, func(x, y domain.FileRef) int {
		if c := x.LastModified.Compare(y.LastModified); c != 0 {
			return c
		}
		return cmp.Compare(x.Key, y.Key)
	})
}

func (r Report) summary() domain.RunSummary {
	return domain.RunSummary{
		RunID:           r.RunID,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		Written:         len(r.Written),
		SkippedExisting: r.SkippedExisting,
		SkippedActive:   r.SkippedActive,
		Failed:          len(r.Failed),
	}
}

var newUUID = func() string {
	return uuid.NewString()
}
