package domain

import "time"

// IngestionJobStatus is the status of a queued ingestion job.
type IngestionJobStatus string

const (
	IngestionJobStatusPending    IngestionJobStatus = "pending"
	IngestionJobStatusProcessing IngestionJobStatus = "processing"
	IngestionJobStatusCompleted  IngestionJobStatus = "completed"
	IngestionJobStatusFailed     IngestionJobStatus = "failed"
)

// IsValid reports whether the job status is known.
func (s IngestionJobStatus) IsValid() bool {
	switch s {
	case IngestionJobStatusPending, IngestionJobStatusProcessing,
		IngestionJobStatusCompleted, IngestionJobStatusFailed:
		return true
	}
	return false
}

// IngestionJob is one unit of ingestion work, keyed by the Document it
// ingests. Delivery is at-least-once: the pipeline tolerates redelivery via
// idempotent re-ingestion.
type IngestionJob struct {
	ID            string
	DocumentID    string
	Status        IngestionJobStatus
	Retries       int
	Error         string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}
