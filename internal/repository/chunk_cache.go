package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkCacheRepository persists embedding vectors keyed by (text_hash,
// model_name). Entries are append-only: a hash embedded under one model never
// changes, so conflicts are ignored.
type ChunkCacheRepository struct {
	db dbtx
}

func NewChunkCacheRepository(pool *pgxpool.Pool) *ChunkCacheRepository {
	return &ChunkCacheRepository{db: pool}
}

func NewChunkCacheRepositoryWithTx(tx pgx.Tx) *ChunkCacheRepository {
	return &ChunkCacheRepository{db: tx}
}

// GetBatch returns the cached vectors for the given hashes under one model.
// Missing hashes are simply absent from the result.
func (r *ChunkCacheRepository) GetBatch(ctx context.Context, model string, hashes []string) (map[string][]float32, error) {
	result := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT text_hash, embedding
		 FROM chunk_cache
		 WHERE model_name = $1 AND text_hash = ANY($2)`,
		model, hashes,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		var vec pgvector.Vector
		if err := rows.Scan(&hash, &vec); err != nil {
			return nil, err
		}
		result[hash] = vec.Slice()
	}
	return result, rows.Err()
}

// PutBatch stores freshly computed vectors.
func (r *ChunkCacheRepository) PutBatch(ctx context.Context, model string, vectors map[string][]float32) error {
	now := time.Now().UTC()
	for hash, vec := range vectors {
		_, err := r.db.Exec(ctx,
			`INSERT INTO chunk_cache (text_hash, model_name, embedding, created_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (text_hash, model_name) DO NOTHING`,
			hash, model, pgvector.NewVector(vec), now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
