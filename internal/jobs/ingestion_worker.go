package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/intellinote/intellinote/internal/domain"
	"github.com/intellinote/intellinote/internal/telemetry"
)

const (
	// MaxAttempts is the maximum number of attempts for one ingestion job.
	MaxAttempts = 3
	// claimLimit bounds how many due jobs one poll picks up.
	claimLimit = 10
)

// IngestionJobRepository is the queue surface the worker needs.
type IngestionJobRepository interface {
	ClaimDue(ctx context.Context, limit int) ([]*domain.IngestionJob, error)
	Complete(ctx context.Context, id string, status domain.IngestionJobStatus, errMsg string) error
	Reschedule(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error
}

// Ingestor runs the ingestion pipeline for one document.
type Ingestor interface {
	Ingest(ctx context.Context, documentID string) error
}

// IngestionWorker claims due ingestion jobs and runs the pipeline. Retryable
// failures are rescheduled with exponential backoff; fatal ones finish the
// job immediately with the last error preserved.
type IngestionWorker struct {
	repo     IngestionJobRepository
	ingestor Ingestor
	now      func() time.Time
}

// NewIngestionWorker creates a new IngestionWorker instance
func NewIngestionWorker(repo IngestionJobRepository, ingestor Ingestor) *IngestionWorker {
	return &IngestionWorker{
		repo:     repo,
		ingestor: ingestor,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *IngestionWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimDue(ctx, claimLimit)
	if err != nil {
		return fmt.Errorf("failed to claim due jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("processing %d ingestion jobs", len(jobs))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			log.Printf("error processing job %s: %v", job.ID, err)
		}
	}

	return nil
}

func (w *IngestionWorker) processJob(ctx context.Context, job *domain.IngestionJob) error {
	log.Printf("processing job %s for document %s (attempt %d/%d)",
		job.ID, job.DocumentID, job.Retries+1, MaxAttempts)

	err := w.ingestor.Ingest(ctx, job.DocumentID)
	if err != nil {
		return w.handleJobFailure(ctx, job, err)
	}

	if err := w.repo.Complete(ctx, job.ID, domain.IngestionJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	log.Printf("job %s completed successfully", job.ID)
	return nil
}

func (w *IngestionWorker) handleJobFailure(ctx context.Context, job *domain.IngestionJob, jobErr error) error {
	log.Printf("job %s failed: %v", job.ID, jobErr)

	attempts := job.Retries + 1
	if !domain.IsRetryableIngestError(jobErr) || attempts >= MaxAttempts {
		telemetry.CaptureError(ctx, jobErr)
		if err := w.repo.Complete(ctx, job.ID, domain.IngestionJobStatusFailed, jobErr.Error()); err != nil {
			return fmt.Errorf("failed to mark job failed: %w", err)
		}
		return nil
	}

	delay := backoffDelay(attempts)
	log.Printf("job %s will be retried in %v (attempt %d/%d)", job.ID, delay, attempts+1, MaxAttempts)
	if err := w.repo.Reschedule(ctx, job.ID, jobErr.Error(), w.now().Add(delay)); err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	return nil
}

// backoffDelay doubles per completed attempt: 2s, 4s, 8s, ...
func backoffDelay(attempts int) time.Duration {
	return time.Duration(1<<uint(attempts)) * time.Second
}
