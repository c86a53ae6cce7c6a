package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"transcript-aggregator/internal/config"
	"transcript-aggregator/internal/integrations/blobstore"
	"transcript-aggregator/internal/usecase"
	"transcript-aggregator/internal/wiring"
)

// bucketAPI is a single-page in-memory S3 bucket with "/" delimited listing.
type bucketAPI struct {
	objects  map[string]string
	modified time.Time
}

func (b *bucketAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	seen := map[string]bool{}
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			cp := prefix + rest[:i+1]
			if !seen[cp] {
				seen[cp] = true
				out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
			}
			continue
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), LastModified: aws.Time(b.modified)})
	}
	return out, nil
}

func (b *bucketAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (b *bucketAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.objects[aws.ToString(in.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func newTestContainer(t *testing.T, objects map[string]string, cfg config.Config) (*wiring.Container, *bucketAPI) {
	t.Helper()
	api := &bucketAPI{objects: objects, modified: time.Now().Add(-time.Hour)}
	store, err := blobstore.New(api, "transcripts")
	require.NoError(t, err)
	return &wiring.Container{Config: cfg, Store: store}, api
}

func TestPromptConversationID_RepromptsUntilNonBlank(t *testing.T) {
	var out bytes.Buffer
	id, err := promptConversationID(strings.NewReader("\n   \n  abc 123  \n"), &out)
	require.NoError(t, err)
	require.Equal(t, "abc 123", id)
	require.Equal(t, 3, strings.Count(out.String(), prompt))
}

func TestPromptConversationID_EOF(t *testing.T) {
	var out bytes.Buffer
	_, err := promptConversationID(strings.NewReader("\n"), &out)
	require.Error(t, err)
	kind, ok := usecase.KindOf(err)
	require.True(t, ok)
	require.Equal(t, usecase.ErrorValidation, kind)
}

func TestParseFlags(t *testing.T) {
	opts := parseFlags([]string{"-all", "-continue-on-error", "-liveness", "10m", "-out", "./x", "-compat-exit"})
	require.True(t, opts.all)
	require.True(t, opts.continueOnError)
	require.Equal(t, 10*time.Minute, opts.liveness)
	require.Equal(t, "./x", opts.outputDir)
	require.True(t, opts.compatExit)
}

func TestRun_InvalidConfigIsConfigurationError(t *testing.T) {
	t.Setenv("BLOB_CONTAINER_NAME", "")
	t.Setenv("LIVENESS_WINDOW", "not-a-duration")
	err := run(context.Background(), options{all: true}, strings.NewReader(""), &bytes.Buffer{}, nil)
	require.Error(t, err)
	kind, ok := usecase.KindOf(err)
	require.True(t, ok)
	require.Equal(t, usecase.ErrorConfiguration, kind)
}

func TestFailedErrors(t *testing.T) {
	errs := failedErrors([]usecase.FailedConversation{
		{Prefix: "a/", Err: errors.New("one")},
		{Prefix: "b/", Err: fmt.Errorf("two")},
	})
	require.Len(t, errs, 2)
	require.EqualError(t, errors.Join(errs...), "one\ntwo")
}

func TestRunBulk_IsolatedFailuresAreReported(t *testing.T) {
	cfg := config.Default()
	cfg.ContinueOnError = true
	c, api := newTestContainer(t, map[string]string{
		"directline/abc/1.json": `{"id":"1"}`,
		"directline/bad/1.json": `{"id":`,
	}, cfg)

	var out bytes.Buffer
	err := runBulk(context.Background(), c, &out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 conversations failed")
	kind, ok := usecase.KindOf(err)
	require.True(t, ok)
	require.Equal(t, usecase.ErrorParse, kind)

	require.Contains(t, out.String(), "1 written, 0 already done, 0 still active, 1 failed")
	require.Contains(t, out.String(), "failed: directline/bad/")
	require.Equal(t, `[{"id":"1"}]`, api.objects["directline/abc/abc.transcript"])
}

func TestRunBulk_CleanRunSucceeds(t *testing.T) {
	c, _ := newTestContainer(t, map[string]string{
		"directline/abc/1.json":          `{"id":"1"}`,
		"directline/done/1.json":         `{"id":"2"}`,
		"directline/done/done.transcript": `[]`,
	}, config.Default())

	var out bytes.Buffer
	require.NoError(t, runBulk(context.Background(), c, &out))
	require.Contains(t, out.String(), "1 written, 1 already done, 0 still active, 0 failed")
}

func TestRunSingle_NothingFound(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	c, _ := newTestContainer(t, map[string]string{
		"directline/abc/1.json": `{"id":"1"}`,
	}, cfg)

	var out bytes.Buffer
	require.NoError(t, runSingle(context.Background(), c, "missing", &out))
	require.Equal(t, "No activities found for conversation \"missing\".\n", out.String())
	_, err := os.Stat(filepath.Join(cfg.OutputDir, "missing.transcript"))
	require.True(t, os.IsNotExist(err))
}

func TestRunSingle_WritesLocalTranscript(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	c, _ := newTestContainer(t, map[string]string{
		"directline/abc%20123/1.json": `{"id":"1","x":null}`,
	}, cfg)

	var out bytes.Buffer
	require.NoError(t, runSingle(context.Background(), c, "abc 123", &out))
	require.Contains(t, out.String(), "Wrote 1 activities from directline to ")
	require.Contains(t, out.String(), "abc%20123.transcript")

	body, err := os.ReadFile(filepath.Join(cfg.OutputDir, "abc%20123.transcript"))
	require.NoError(t, err)
	require.Equal(t, "[\n  {\n    \"id\": \"1\"\n  }\n]", string(body))
}
