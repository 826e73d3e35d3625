package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intellinote/intellinote/internal/domain"
)

// DocumentRepository persists the logical document ledger. The table carries
// a uniqueness constraint on (notebook_id, file_hash); concurrent creates of
// the same content race on it and the loser re-reads the winner.
type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, notebook_id, filename, file_hash, status, error_msg, emoji, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.NotebookID, d.Filename, d.FileHash, d.Status, nullableString(d.ErrorMsg), nullableString(d.Emoji), d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domain.ErrDocumentAlreadyExists
		}
		return err
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return r.scanOne(r.db.QueryRow(ctx,
		`SELECT id, notebook_id, filename, file_hash, status, error_msg, emoji, created_at, updated_at
		 FROM documents WHERE id = $1`,
		id,
	))
}

func (r *DocumentRepository) GetByNotebookAndHash(ctx context.Context, notebookID, fileHash string) (*domain.Document, error) {
	return r.scanOne(r.db.QueryRow(ctx,
		`SELECT id, notebook_id, filename, file_hash, status, error_msg, emoji, created_at, updated_at
		 FROM documents WHERE notebook_id = $1 AND file_hash = $2`,
		notebookID, fileHash,
	))
}

func (r *DocumentRepository) ListByNotebook(ctx context.Context, notebookID string) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, notebook_id, filename, file_hash, status, error_msg, emoji, created_at, updated_at
		 FROM documents
		 WHERE notebook_id = $1
		 ORDER BY created_at DESC`,
		notebookID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		var d domain.Document
		var errMsg, emoji pgtype.Text
		if err := rows.Scan(&d.ID, &d.NotebookID, &d.Filename, &d.FileHash, &d.Status, &errMsg, &emoji, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.ErrorMsg = errMsg.String
		d.Emoji = emoji.String
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// UpdateStatus moves the document through its lifecycle, recording the error
// text on failure and clearing it otherwise.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocStatus, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, error_msg = $2, updated_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) SetEmoji(ctx context.Context, id, emoji string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET emoji = $1, updated_at = $2 WHERE id = $3`,
		emoji, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM documents WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// CountByFileHash reports how many documents still reference the digest,
// across all notebooks. Zero means the artifact and its bytes are garbage.
func (r *DocumentRepository) CountByFileHash(ctx context.Context, fileHash string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM documents WHERE file_hash = $1`,
		fileHash,
	).Scan(&count)
	return count, err
}

func (r *DocumentRepository) scanOne(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var errMsg, emoji pgtype.Text
	err := row.Scan(&d.ID, &d.NotebookID, &d.Filename, &d.FileHash, &d.Status, &errMsg, &emoji, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	d.ErrorMsg = errMsg.String
	d.Emoji = emoji.String
	return &d, nil
}
