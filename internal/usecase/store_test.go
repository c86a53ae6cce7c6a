package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"transcript-aggregator/internal/domain"
)

type memBlob struct {
	body         []byte
	lastModified time.Time
	contentType  string
	metadata     map[string]string
}

// memStore is an in-memory BlobStore with "/"-delimited listing.
type memStore struct {
	blobs      map[string]*memBlob
	listCalls  int
	reads      []string
	writes     []string
	listErr    map[string]error
	readErr    map[string]error
	writeErr   error
	writeClock time.Time
}

func newMemStore() *memStore {
	return &memStore{
		blobs:   map[string]*memBlob{},
		listErr: map[string]error{},
		readErr: map[string]error{},
	}
}

func (m *memStore) put(key string, ts time.Time, body string) {
	m.blobs[key] = &memBlob{body: []byte(body), lastModified: ts}
}

func (m *memStore) ListDirectories(_ context.Context, prefix string) ([]domain.DirRef, error) {
	m.listCalls++
	if err := m.listErr[prefix]; err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var dirs []domain.DirRef
	for _, key := range m.sortedKeys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		i := strings.Index(rest, "/")
		if i < 0 {
			continue
		}
		name := rest[:i]
		if seen[name] {
			continue
		}
		seen[name] = true
		dirs = append(dirs, domain.DirRef{Prefix: prefix + name + "/", Name: name})
	}
	return dirs, nil
}

func (m *memStore) ListFiles(_ context.Context, prefix string) ([]domain.FileRef, error) {
	m.listCalls++
	if err := m.listErr["files:"+prefix]; err != nil {
		return nil, err
	}
	var files []domain.FileRef
	for _, key := range m.sortedKeys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if rest == "" || strings.Contains(rest, "/") {
			continue
		}
		files = append(files, domain.FileRef{Key: key, Name: rest, LastModified: m.blobs[key].lastModified})
	}
	return files, nil
}

func (m *memStore) Read(_ context.Context, key string) ([]byte, error) {
	m.reads = append(m.reads, key)
	if err := m.readErr[key]; err != nil {
		return nil, err
	}
	b, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("no such key %q", key)
	}
	return b.body, nil
}

func (m *memStore) Write(_ context.Context, key string, body []byte, contentType string, metadata map[string]string) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	if key == "" {
		return errors.New("empty key")
	}
	m.writes = append(m.writes, key)
	m.blobs[key] = &memBlob{body: body, lastModified: m.writeClock, contentType: contentType, metadata: metadata}
	return nil
}

func (m *memStore) sortedKeys() []string {
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type memSink struct {
	files map[string][]byte
	err   error
}

func (s *memSink) WriteTranscript(_ context.Context, name string, body []byte) error {
	if s.err != nil {
		return s.err
	}
	if s.files == nil {
		s.files = map[string][]byte{}
	}
	s.files[name] = body
	return nil
}
