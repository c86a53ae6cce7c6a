package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"transcript-aggregator/internal/domain"
)

// TranscriptSink receives transcripts produced in single-conversation mode.
type TranscriptSink interface {
	WriteTranscript(ctx context.Context, name string, body []byte) error
}

// Resolver builds the transcript of one conversation on demand, looking the
// conversation up under every channel.
type Resolver struct {
	store BlobStore
	sink  TranscriptSink
	log   *slog.Logger
}

type ResolveInput struct {
	ConversationID string
}

type ResolveOutput struct {
	ConversationID string
	// TranscriptName is the sink file name; empty when nothing was written.
	TranscriptName string
	Channels       []string
	Activities     int
}

func NewResolver(store BlobStore, sink TranscriptSink, logger *slog.Logger) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("usecase: blob store must not be nil")
	}
	if sink == nil {
		return nil, errors.New("usecase: transcript sink must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, sink: sink, log: logger}, nil
}

// Resolve writes the transcript of in.ConversationID once per channel that
// holds activities for it. The sink name is the same for every channel, so
// the last channel listed wins.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (ResolveOutput, error) {
	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		return ResolveOutput{}, newError(ErrorValidation, "empty_conversation_id", nil)
	}
	out := ResolveOutput{ConversationID: convID}

	channels, err := r.store.ListDirectories(ctx, "")
	if err != nil {
		return out, newError(ErrorStorage, "list_channels", err)
	}

	for _, ch := range channels {
		channelID := decodeSegment(ch.Name)
		dir, err := conversationDir(ch, channelID, convID)
		if err != nil {
			return out, err
		}
		n, err := r.resolveChannel(ctx, dir, convID)
		if err != nil {
			return out, err
		}
		if n == 0 {
			continue
		}
		r.log.Info("transcript written", "channel", channelID, "conversation", convID, "activities", n)
		out.TranscriptName = transcriptName(convID)
		out.Channels = append(out.Channels, channelID)
		out.Activities += n
	}
	return out, nil
}

func (r *Resolver) resolveChannel(ctx context.Context, dir, convID string) (int, error) {
	files, err := r.store.ListFiles(ctx, dir)
	if err != nil {
		return 0, newError(ErrorStorage, "list_files", err)
	}
	var activityFiles []domain.FileRef
	for _, f := range files {
		if extension(f.Name) == domain.ActivityExtension {
			activityFiles = append(activityFiles, f)
		}
	}
	if len(activityFiles) == 0 {
		return 0, nil
	}
	sortByLastModified(activityFiles)

	activities := make([]json.RawMessage, 0, len(activityFiles))
	for _, f := range activityFiles {
		body, err := r.store.Read(ctx, f.Key)
		if err != nil {
			return 0, newError(ErrorStorage, "read_activity", err)
		}
		act, err := parseActivity(body)
		if err != nil {
			return 0, newError(ErrorParse, "invalid_activity", fmt.Errorf("%s: %w", f.Key, err))
		}
		activities = append(activities, act)
	}

	body, err := encodeIndentedTranscript(activities)
	if err != nil {
		return 0, newError(ErrorParse, "encode_transcript", err)
	}
	if err := r.sink.WriteTranscript(ctx, transcriptName(convID), body); err != nil {
		return 0, newError(ErrorStorage, "write_local_transcript", err)
	}
	return len(activities), nil
}
