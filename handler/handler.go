package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"transcript-aggregator/internal/usecase"
)

// BulkRunner runs one bulk aggregation pass.
type BulkRunner interface {
	Run(ctx context.Context) (usecase.Report, error)
}

// Response is returned to the scheduler for every invocation.
type Response struct {
	RunID           string   `json:"runId"`
	CorrelationID   string   `json:"correlationId"`
	Written         int      `json:"written"`
	SkippedExisting int      `json:"skippedExisting"`
	SkippedActive   int      `json:"skippedActive"`
	Failed          []string `json:"failed,omitempty"`
}

// Handler runs a bulk pass for each scheduled (EventBridge) invocation.
type Handler struct {
	runner BulkRunner
	log    *slog.Logger
}

func NewHandler(runner BulkRunner, logger *slog.Logger) (*Handler, error) {
	if runner == nil {
		return nil, errors.New("handler: bulk runner must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{runner: runner, log: logger}, nil
}

func (h *Handler) Handle(ctx context.Context, event events.CloudWatchEvent) (Response, error) {
	correlationID := strings.TrimSpace(event.ID)
	if correlationID == "" {
		correlationID = newUUID()
	}
	log := h.log.With("correlation_id", correlationID)
	log.Info("scheduled run received", "source", event.Source, "detail_type", event.DetailType, "time", event.Time)

	rep, err := h.runner.Run(ctx)
	resp := Response{
		RunID:           rep.RunID,
		CorrelationID:   correlationID,
		Written:         len(rep.Written),
		SkippedExisting: rep.SkippedExisting,
		SkippedActive:   rep.SkippedActive,
	}
	for _, f := range rep.Failed {
		resp.Failed = append(resp.Failed, f.Prefix)
	}
	if err != nil {
		kind, _ := usecase.KindOf(err)
		log.Error("bulk run failed", "run_id", rep.RunID, "kind", kind, "err", err)
		return resp, fmt.Errorf("handler: bulk run %s: %w", rep.RunID, err)
	}
	if len(resp.Failed) > 0 {
		log.Warn("bulk run finished with failures", "run_id", rep.RunID, "failed", len(resp.Failed))
	}
	return resp, nil
}

var newUUID = func() string {
	return uuid.NewString()
}
