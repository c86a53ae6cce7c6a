package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"transcript-aggregator/internal/domain"
)

const (
	skTranscript = "TRANSCRIPT#"
	skSummary    = "SUMMARY#"
	ttlDuration  = 90 * 24 * time.Hour // 90-day TTL
)

// ErrDuplicateTranscript reports that another run already recorded a
// transcript for the same conversation.
var ErrDuplicateTranscript = errors.New("repository: transcript already recorded")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client records bulk runs and the transcripts they write in a DynamoDB
// table keyed by PK/SK.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// convPK returns the partition key for a conversation within a channel.
func convPK(channelID, conversationID string) string {
	return "CONV#" + channelID + "/" + conversationID
}

// runPK returns the partition key for a bulk run.
func runPK(runID string) string {
	return "RUN#" + runID
}

// ttlValue returns a Unix timestamp 90 days after ts.
func ttlValue(ts time.Time) int64 {
	return ts.Add(ttlDuration).Unix()
}

// RecordTranscript stores rec once per conversation. A second record for
// the same conversation returns ErrDuplicateTranscript, which surfaces two
// runs racing on one conversation.
func (c *Client) RecordTranscript(ctx context.Context, rec domain.TranscriptRecord) error {
	if rec.ChannelID == "" || rec.ConversationID == "" {
		return errors.New("repository: RecordTranscript: channel and conversation are required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                transcriptItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("repository: RecordTranscript %s: %w", rec.TranscriptKey, ErrDuplicateTranscript)
		}
		return fmt.Errorf("repository: RecordTranscript: %w", err)
	}
	return nil
}

// RecordRun writes or replaces the summary of a bulk run.
func (c *Client) RecordRun(ctx context.Context, summary domain.RunSummary) error {
	if summary.RunID == "" {
		return errors.New("repository: RecordRun: run id is required")
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      runItem(summary),
	})
	if err != nil {
		return fmt.Errorf("repository: RecordRun: %w", err)
	}
	return nil
}

func transcriptItem(rec domain.TranscriptRecord) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(rec.ChannelID, rec.ConversationID)},
		"SK":             &types.AttributeValueMemberS{Value: skTranscript},
		"channelId":      &types.AttributeValueMemberS{Value: rec.ChannelID},
		"conversationId": &types.AttributeValueMemberS{Value: rec.ConversationID},
		"transcriptKey":  &types.AttributeValueMemberS{Value: rec.TranscriptKey},
		"activities":     &types.AttributeValueMemberN{Value: strconv.Itoa(rec.Activities)},
		"runId":          &types.AttributeValueMemberS{Value: rec.RunID},
		"createdAt":      &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339)},
		"ttl":            &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(rec.CreatedAt), 10)},
	}
}

func runItem(s domain.RunSummary) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: runPK(s.RunID)},
		"SK":              &types.AttributeValueMemberS{Value: skSummary},
		"runId":           &types.AttributeValueMemberS{Value: s.RunID},
		"startedAt":       &types.AttributeValueMemberS{Value: s.StartedAt.UTC().Format(time.RFC3339Nano)},
		"finishedAt":      &types.AttributeValueMemberS{Value: s.FinishedAt.UTC().Format(time.RFC3339Nano)},
		"written":         &types.AttributeValueMemberN{Value: strconv.Itoa(s.Written)},
		"skippedExisting": &types.AttributeValueMemberN{Value: strconv.Itoa(s.SkippedExisting)},
		"skippedActive":   &types.AttributeValueMemberN{Value: strconv.Itoa(s.SkippedActive)},
		"failed":          &types.AttributeValueMemberN{Value: strconv.Itoa(s.Failed)},
		"ttl":             &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(s.FinishedAt), 10)},
	}
}
