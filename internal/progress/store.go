package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pipeline stage labels, in order of appearance.
const (
	StageQueued      = "queued"
	StageLoading     = "loading"
	StageParsing     = "parsing"
	StageClassifying = "classifying"
	StageChunking    = "chunking"
	StageEmbedding   = "embedding"
	StageIndexing    = "indexing"
	StagePersisting  = "persisting"
	StageDone        = "done"
	StageFailed      = "failed"
)

const (
	activeTTL   = time.Hour
	terminalTTL = 10 * time.Minute
)

// Entry is one Progress Record: a monotone fraction in [0,1], the stage
// label, a human message, and optional structured detail.
type Entry struct {
	Fraction float64        `json:"fraction"`
	Stage    string         `json:"stage"`
	Message  string         `json:"message"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// Terminal reports whether the entry marks the end of a pipeline run.
func (e Entry) Terminal() bool {
	return e.Stage == StageDone || e.Stage == StageFailed
}

// Store keeps the latest Progress Record per document. Writes are
// best-effort: progress is an observability side-channel and must never fail
// the pipeline.
type Store interface {
	Set(ctx context.Context, documentID string, e Entry)
	Get(ctx context.Context, documentID string) (*Entry, error)
}

// RedisStore keeps Progress Records in redis with per-key TTL. Terminal
// entries get a shorter retention so finished documents age out quickly.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(documentID string) string {
	return "ingest:progress:" + documentID
}

func (s *RedisStore) Set(ctx context.Context, documentID string, e Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		log.Printf("progress: encode for %s failed: %v", documentID, err)
		return
	}

	ttl := activeTTL
	if e.Terminal() {
		ttl = terminalTTL
	}
	if err := s.client.Set(ctx, key(documentID), data, ttl).Err(); err != nil {
		log.Printf("progress: write for %s failed: %v", documentID, err)
	}
}

// Get returns the latest record, or nil when none is stored.
func (s *RedisStore) Get(ctx context.Context, documentID string) (*Entry, error) {
	data, err := s.client.Get(ctx, key(documentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	return &e, nil
}

// NoopStore drops all records. Used when redis is unconfigured.
type NoopStore struct{}

func (NoopStore) Set(context.Context, string, Entry) {}

func (NoopStore) Get(context.Context, string) (*Entry, error) { return nil, nil }
