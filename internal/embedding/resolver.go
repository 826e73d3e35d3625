package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/intellinote/intellinote/internal/domain"
)

const defaultBatchSize = 10

// Cache stores embedding vectors keyed by (text hash, model name).
type Cache interface {
	GetBatch(ctx context.Context, model string, hashes []string) (map[string][]float32, error)
	PutBatch(ctx context.Context, model string, vectors map[string][]float32) error
}

// Embedder computes vectors for a bounded batch of texts.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedModel() string
}

// ProgressFunc reports resolved unique hashes out of the total.
type ProgressFunc func(resolved, total int)

// Resolver fills chunk embeddings from the cache first, computing only one
// remote embedding per unique text hash and fanning the result out to every
// chunk that shares it.
type Resolver struct {
	cache     Cache
	embedder  Embedder
	batchSize int
}

func NewResolver(cache Cache, embedder Embedder, batchSize int) *Resolver {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Resolver{cache: cache, embedder: embedder, batchSize: batchSize}
}

// HashText returns the cache key for a chunk's embeddable text. Whitespace is
// trimmed and CRLF collapsed so formatting variants of the same content share
// a cache entry. Chunk metadata never participates: it varies independent of
// semantic content.
func HashText(text string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Resolve assigns an embedding to every chunk. New vectors are persisted to
// the cache before return, so a crash after Resolve never recomputes them.
func (r *Resolver) Resolve(ctx context.Context, chunks []*domain.Chunk, onProgress ProgressFunc) error {
	if len(chunks) == 0 {
		return nil
	}
	if onProgress == nil {
		onProgress = func(int, int) {}
	}

	// Group chunks by hash, keeping first-appearance order for deterministic
	// batching.
	groups := make(map[string][]*domain.Chunk)
	var order []string
	for _, c := range chunks {
		h := HashText(c.EmbedText())
		if _, ok := groups[h]; !ok {
			order = append(order, h)
		}
		groups[h] = append(groups[h], c)
	}

	total := len(order)
	model := r.embedder.EmbedModel()

	cached, err := r.cache.GetBatch(ctx, model, order)
	if err != nil {
		return fmt.Errorf("embedding cache lookup failed: %w", err)
	}

	var missing []string
	for _, h := range order {
		if vec, ok := cached[h]; ok {
			assign(groups[h], vec)
			continue
		}
		missing = append(missing, h)
	}
	resolved := total - len(missing)
	onProgress(resolved, total)

	for start := 0; start < len(missing); start += r.batchSize {
		end := start + r.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		// One representative text per hash; all sharers get its vector.
		texts := make([]string, len(batch))
		for i, h := range batch {
			texts[i] = groups[h][0].EmbedText()
		}

		vectors, err := r.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
		}

		fresh := make(map[string][]float32, len(batch))
		for i, h := range batch {
			fresh[h] = vectors[i]
		}
		if err := r.cache.PutBatch(ctx, model, fresh); err != nil {
			return fmt.Errorf("failed to persist embeddings: %w", err)
		}

		for i, h := range batch {
			assign(groups[h], vectors[i])
		}
		resolved += len(batch)
		onProgress(resolved, total)
	}

	return nil
}

func assign(chunks []*domain.Chunk, vec []float32) {
	for _, c := range chunks {
		c.Embedding = vec
	}
}
