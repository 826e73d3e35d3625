package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intellinote/intellinote/internal/domain"
)

// ArtifactRepository persists physical file records keyed by content digest.
type ArtifactRepository struct {
	db dbtx
}

func NewArtifactRepository(pool *pgxpool.Pool) *ArtifactRepository {
	return &ArtifactRepository{db: pool}
}

func NewArtifactRepositoryWithTx(tx pgx.Tx) *ArtifactRepository {
	return &ArtifactRepository{db: tx}
}

// Upsert records the artifact, leaving an existing row for the same digest
// untouched. Re-uploading identical bytes is a no-op.
func (r *ArtifactRepository) Upsert(ctx context.Context, a *domain.Artifact) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO artifacts (hash, size, mime_type, storage_path, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (hash) DO NOTHING`,
		a.Hash, a.Size, a.MimeType, a.StoragePath, a.CreatedAt,
	)
	return err
}

func (r *ArtifactRepository) GetByHash(ctx context.Context, hash string) (*domain.Artifact, error) {
	var a domain.Artifact
	err := r.db.QueryRow(ctx,
		`SELECT hash, size, mime_type, storage_path, created_at
		 FROM artifacts WHERE hash = $1`,
		hash,
	).Scan(&a.Hash, &a.Size, &a.MimeType, &a.StoragePath, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrArtifactNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *ArtifactRepository) Delete(ctx context.Context, hash string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM artifacts WHERE hash = $1`,
		hash,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrArtifactNotFound
	}
	return nil
}
