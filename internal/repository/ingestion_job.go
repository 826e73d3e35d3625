package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intellinote/intellinote/internal/domain"
)

var ErrIngestionJobNotFound = errors.New("ingestion job not found")

// IngestionJobRepository is the DB-backed ingestion queue. Claiming uses
// FOR UPDATE SKIP LOCKED so concurrent workers never double-deliver a job,
// and next_attempt_at gates retried jobs until their backoff expires.
type IngestionJobRepository struct {
	db dbtx
}

func NewIngestionJobRepository(pool *pgxpool.Pool) *IngestionJobRepository {
	return &IngestionJobRepository{db: pool}
}

func NewIngestionJobRepositoryWithTx(tx pgx.Tx) *IngestionJobRepository {
	return &IngestionJobRepository{db: tx}
}

func (r *IngestionJobRepository) Create(ctx context.Context, job *domain.IngestionJob) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ingestion_jobs (id, document_id, status, retries, error, next_attempt_at, created_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, job.DocumentID, job.Status, job.Retries, nullableString(job.Error), job.NextAttemptAt, job.CreatedAt, job.ProcessedAt,
	)
	return err
}

func (r *IngestionJobRepository) GetByID(ctx context.Context, id string) (*domain.IngestionJob, error) {
	var job domain.IngestionJob
	var errMsg pgtype.Text
	err := r.db.QueryRow(ctx,
		`SELECT id, document_id, status, retries, error, next_attempt_at, created_at, processed_at
		 FROM ingestion_jobs WHERE id = $1`,
		id,
	).Scan(&job.ID, &job.DocumentID, &job.Status, &job.Retries, &errMsg, &job.NextAttemptAt, &job.CreatedAt, &job.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIngestionJobNotFound
		}
		return nil, err
	}
	job.Error = errMsg.String
	return &job, nil
}

// ClaimDue atomically moves due pending jobs to processing and returns them.
func (r *IngestionJobRepository) ClaimDue(ctx context.Context, limit int) ([]*domain.IngestionJob, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM ingestion_jobs
			 WHERE status = $1 AND next_attempt_at <= now()
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE ingestion_jobs
		 SET status = $3
		 FROM cte
		 WHERE ingestion_jobs.id = cte.id
		 RETURNING ingestion_jobs.id, ingestion_jobs.document_id, ingestion_jobs.status,
		           ingestion_jobs.retries, ingestion_jobs.error, ingestion_jobs.next_attempt_at,
		           ingestion_jobs.created_at, ingestion_jobs.processed_at`,
		domain.IngestionJobStatusPending, limit, domain.IngestionJobStatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.IngestionJob
	for rows.Next() {
		var job domain.IngestionJob
		var errMsg pgtype.Text
		if err := rows.Scan(&job.ID, &job.DocumentID, &job.Status, &job.Retries, &errMsg, &job.NextAttemptAt, &job.CreatedAt, &job.ProcessedAt); err != nil {
			return nil, err
		}
		job.Error = errMsg.String
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// Complete marks the job terminal with the given status and error text.
func (r *IngestionJobRepository) Complete(ctx context.Context, id string, status domain.IngestionJobStatus, errMsg string) error {
	now := time.Now().UTC()
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE ingestion_jobs SET status = $1, error = $2, processed_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), now, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrIngestionJobNotFound
	}
	return nil
}

// Reschedule returns a failed attempt to the queue with an incremented retry
// counter and a backoff gate.
func (r *IngestionJobRepository) Reschedule(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE ingestion_jobs
		 SET status = $1, retries = retries + 1, error = $2, next_attempt_at = $3
		 WHERE id = $4`,
		domain.IngestionJobStatusPending, nullableString(errMsg), nextAttemptAt, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrIngestionJobNotFound
	}
	return nil
}

// DeleteForDocument removes any queued jobs for a document being deleted.
func (r *IngestionJobRepository) DeleteForDocument(ctx context.Context, documentID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM ingestion_jobs WHERE document_id = $1`,
		documentID,
	)
	return err
}
