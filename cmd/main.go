package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"transcript-aggregator/handler"
	"transcript-aggregator/internal/config"
	"transcript-aggregator/internal/wiring"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(os.Getenv("TRANSCRIPTS_CONFIG"), os.Getenv)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	c, err := wiring.New(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to create clients", "err", err)
		os.Exit(1)
	}

	aggregator, err := c.Aggregator()
	if err != nil {
		slog.Error("failed to create aggregator", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(aggregator, logger)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
