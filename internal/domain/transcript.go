package domain

import "time"

const (
	// TranscriptExtension marks a merged conversation transcript.
	TranscriptExtension = ".transcript"
	// ActivityExtension marks a single activity record.
	ActivityExtension = ".json"
	// TranscriptContentType is declared on transcript blobs.
	TranscriptContentType = "application/json"
)

// TranscriptRecord describes a transcript written during a bulk run.
type TranscriptRecord struct {
	RunID          string
	ChannelID      string
	ConversationID string
	TranscriptKey  string
	Activities     int
	CreatedAt      time.Time
}

// RunSummary is the outcome of one bulk run.
type RunSummary struct {
	RunID           string
	StartedAt       time.Time
	FinishedAt      time.Time
	Written         int
	SkippedExisting int
	SkippedActive   int
	Failed          int
}
