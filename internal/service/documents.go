package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/intellinote/intellinote/internal/domain"
	"github.com/intellinote/intellinote/internal/index"
	"github.com/intellinote/intellinote/internal/parser"
	"github.com/intellinote/intellinote/internal/progress"
	"github.com/intellinote/intellinote/internal/storage"
)

// Upload outcome labels surfaced to API clients.
const (
	UploadStatusProcessing     = "processing"
	UploadStatusAlreadyExists  = "already_exists"
	UploadStatusUploadRequired = "upload_required"
)

// DocumentRepositoryInterface is the document surface for lifecycle operations.
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByNotebookAndHash(ctx context.Context, notebookID, fileHash string) (*domain.Document, error)
	ListByNotebook(ctx context.Context, notebookID string) ([]*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocStatus, errMsg string) error
	Delete(ctx context.Context, id string) error
	CountByFileHash(ctx context.Context, fileHash string) (int, error)
}

// ArtifactRepositoryInterface is the artifact ledger surface.
type ArtifactRepositoryInterface interface {
	Upsert(ctx context.Context, a *domain.Artifact) error
	GetByHash(ctx context.Context, hash string) (*domain.Artifact, error)
	Delete(ctx context.Context, hash string) error
}

// JobQueue enqueues and clears ingestion jobs.
type JobQueue interface {
	Create(ctx context.Context, job *domain.IngestionJob) error
	DeleteForDocument(ctx context.Context, documentID string) error
}

// BlobStore is the content-addressed byte store surface.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (*storage.PutResult, error)
	Locate(ctx context.Context, digest string) (string, error)
	Delete(ctx context.Context, digest string) error
}

// DocumentService implements the document lifecycle: upload, check/reconcile,
// status, delete. Ingestion itself runs in the job layer.
type DocumentService struct {
	docRepo      DocumentRepositoryInterface
	artifactRepo ArtifactRepositoryInterface
	jobQueue     JobQueue
	blobs        BlobStore
	indexStore   *index.Store
	progress     progress.Store
	uuidGen      UUIDGenerator
}

func NewDocumentService(
	docRepo DocumentRepositoryInterface,
	artifactRepo ArtifactRepositoryInterface,
	jobQueue JobQueue,
	blobs BlobStore,
	indexStore *index.Store,
	progressStore progress.Store,
) *DocumentService {
	return &DocumentService{
		docRepo:      docRepo,
		artifactRepo: artifactRepo,
		jobQueue:     jobQueue,
		blobs:        blobs,
		indexStore:   indexStore,
		progress:     progressStore,
		uuidGen:      &DefaultUUIDGenerator{},
	}
}

// UploadInput carries one uploaded file.
type UploadInput struct {
	NotebookID string
	Filename   string
	Content    io.Reader
}

// UploadResult reports the outcome of an upload or check operation.
type UploadResult struct {
	Status   string
	Document *domain.Document
}

// Upload stores the bytes, records the artifact, creates the document and
// enqueues ingestion. Re-uploading identical content to the same notebook
// short-circuits to the existing document.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if input.NotebookID == "" {
		return nil, domain.ErrMissingNotebookID
	}
	if !parser.IsSupported(input.Filename) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, input.Filename)
	}

	put, err := s.blobs.Put(ctx, input.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	mimeType := ""
	if mt, err := mimetype.DetectFile(put.Path); err == nil {
		mimeType = mt.String()
	}

	now := time.Now().UTC()
	artifact := &domain.Artifact{
		Hash:        put.Digest,
		Size:        put.Size,
		MimeType:    mimeType,
		StoragePath: put.Path,
		CreatedAt:   now,
	}
	if err := domain.ValidateArtifact(artifact); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, err.Error(), err)
	}
	if err := s.artifactRepo.Upsert(ctx, artifact); err != nil {
		return nil, fmt.Errorf("failed to record artifact: %w", err)
	}

	doc := domain.NewDocument(s.uuidGen.NewString(), input.NotebookID, input.Filename, put.Digest, now)
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, err.Error(), err)
	}
	if err := s.docRepo.Create(ctx, doc); err != nil {
		if err == domain.ErrDocumentAlreadyExists {
			existing, lookupErr := s.docRepo.GetByNotebookAndHash(ctx, input.NotebookID, put.Digest)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &UploadResult{Status: UploadStatusAlreadyExists, Document: existing}, nil
		}
		return nil, err
	}

	if err := s.enqueue(ctx, doc); err != nil {
		return nil, err
	}
	return &UploadResult{Status: UploadStatusProcessing, Document: doc}, nil
}

// CheckInput identifies content a client may already hold locally.
type CheckInput struct {
	NotebookID string
	Digest     string
	Filename   string
}

// CheckOrCreateDocument reconciles a digest against the store and ledger.
// Known READY content with live index data short-circuits; anything
// inconsistent is torn down and re-ingested; unknown bytes require an upload.
func (s *DocumentService) CheckOrCreateDocument(ctx context.Context, input CheckInput) (*UploadResult, error) {
	if input.NotebookID == "" {
		return nil, domain.ErrMissingNotebookID
	}
	if !domain.IsValidDigest(input.Digest) {
		return nil, domain.ErrInvalidDigest
	}

	if _, err := s.artifactRepo.GetByHash(ctx, input.Digest); err != nil {
		if err == domain.ErrArtifactNotFound {
			return &UploadResult{Status: UploadStatusUploadRequired}, nil
		}
		return nil, err
	}
	if _, err := s.blobs.Locate(ctx, input.Digest); err != nil {
		// Ledger row without bytes: the client has to send the file again.
		return &UploadResult{Status: UploadStatusUploadRequired}, nil
	}

	doc, err := s.docRepo.GetByNotebookAndHash(ctx, input.NotebookID, input.Digest)
	if err != nil && err != domain.ErrDocumentNotFound {
		return nil, err
	}

	if doc != nil {
		if doc.Status == domain.DocStatusReady && s.indexStore.HasPartition(input.NotebookID) {
			return &UploadResult{Status: UploadStatusAlreadyExists, Document: doc}, nil
		}
		// READY without index data is a zombie; any other status is stale.
		// Both are torn down and re-ingested from the stored bytes.
		if err := s.jobQueue.DeleteForDocument(ctx, doc.ID); err != nil {
			log.Printf("check: clear jobs for %s failed: %v", doc.ID, err)
		}
		if err := s.docRepo.Delete(ctx, doc.ID); err != nil {
			return nil, err
		}
	}

	fresh := domain.NewDocument(s.uuidGen.NewString(), input.NotebookID, input.Filename, input.Digest, time.Now().UTC())
	if err := domain.ValidateDocument(fresh); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, err.Error(), err)
	}
	if err := s.docRepo.Create(ctx, fresh); err != nil {
		if err == domain.ErrDocumentAlreadyExists {
			// Lost a concurrent create; the winner's document is authoritative.
			winner, lookupErr := s.docRepo.GetByNotebookAndHash(ctx, input.NotebookID, input.Digest)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &UploadResult{Status: UploadStatusProcessing, Document: winner}, nil
		}
		return nil, err
	}

	if err := s.enqueue(ctx, fresh); err != nil {
		return nil, err
	}
	return &UploadResult{Status: UploadStatusProcessing, Document: fresh}, nil
}

// GetDocument returns one document by id.
func (s *DocumentService) GetDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.docRepo.GetByID(ctx, documentID)
}

// ListDocuments returns all documents in a notebook.
func (s *DocumentService) ListDocuments(ctx context.Context, notebookID string) ([]*domain.Document, error) {
	if notebookID == "" {
		return nil, domain.ErrMissingNotebookID
	}
	return s.docRepo.ListByNotebook(ctx, notebookID)
}

// Progress returns the latest pipeline record for a document. When the record
// has expired, one is synthesized from the document status.
func (s *DocumentService) Progress(ctx context.Context, documentID string) (*progress.Entry, error) {
	entry, err := s.progress.Get(ctx, documentID)
	if err != nil {
		log.Printf("progress: read for %s failed: %v", documentID, err)
	}
	if entry != nil {
		return entry, nil
	}

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	switch doc.Status {
	case domain.DocStatusReady:
		return &progress.Entry{Fraction: 1.0, Stage: progress.StageDone, Message: "Document ready"}, nil
	case domain.DocStatusFailed:
		_, hint := domain.ClassifyIngestFailure(doc.ErrorMsg)
		return &progress.Entry{Fraction: 1.0, Stage: progress.StageFailed, Message: hint}, nil
	case domain.DocStatusProcessing:
		return &progress.Entry{Fraction: fractionLoading, Stage: progress.StageLoading, Message: "Processing"}, nil
	default:
		return &progress.Entry{Fraction: fractionQueued, Stage: progress.StageQueued, Message: "Queued for processing"}, nil
	}
}

// DeleteDocument removes a document, its index nodes and pending jobs, and
// garbage-collects the stored bytes once the last reference is gone.
func (s *DocumentService) DeleteDocument(ctx context.Context, notebookID, documentID string) error {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if doc.NotebookID != notebookID {
		return domain.ErrDocumentNotFound
	}

	if s.indexStore.HasPartition(doc.NotebookID) {
		err := s.indexStore.Update(doc.NotebookID, func(part *index.Partition) error {
			part.DeleteByDocument(doc.ID)
			return nil
		})
		if err != nil {
			return err
		}
	}

	if err := s.jobQueue.DeleteForDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to clear ingestion jobs: %w", err)
	}
	if err := s.docRepo.Delete(ctx, doc.ID); err != nil {
		return err
	}

	count, err := s.docRepo.CountByFileHash(ctx, doc.FileHash)
	if err != nil {
		return err
	}
	if count == 0 {
		if err := s.artifactRepo.Delete(ctx, doc.FileHash); err != nil && err != domain.ErrArtifactNotFound {
			log.Printf("delete: artifact gc for %s failed: %v", doc.FileHash, err)
		}
		if err := s.blobs.Delete(ctx, doc.FileHash); err != nil {
			log.Printf("delete: blob gc for %s failed: %v", doc.FileHash, err)
		}
	}
	return nil
}

// enqueue creates the ingestion job for a freshly created document. A queue
// failure fails the document immediately so it never sits pending forever.
func (s *DocumentService) enqueue(ctx context.Context, doc *domain.Document) error {
	now := time.Now().UTC()
	job := &domain.IngestionJob{
		ID:            s.uuidGen.NewString(),
		DocumentID:    doc.ID,
		Status:        domain.IngestionJobStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
	}
	if err := s.jobQueue.Create(ctx, job); err != nil {
		queueErr := fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
		if updErr := s.docRepo.UpdateStatus(ctx, doc.ID, domain.DocStatusFailed, queueErr.Error()); updErr != nil {
			log.Printf("upload: mark %s failed: %v", doc.ID, updErr)
		}
		return queueErr
	}

	s.progress.Set(ctx, doc.ID, progress.Entry{
		Fraction: fractionQueued,
		Stage:    progress.StageQueued,
		Message:  "Queued for processing",
	})
	return nil
}
