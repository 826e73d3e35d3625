package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/intellinote/intellinote/internal/domain"
	"github.com/intellinote/intellinote/internal/embedding"
	"github.com/intellinote/intellinote/internal/index"
	"github.com/intellinote/intellinote/internal/parser"
	"github.com/intellinote/intellinote/internal/progress"
	"github.com/intellinote/intellinote/internal/telemetry"
)

// Fractions reported per pipeline stage. The embedding stage interpolates
// between embeddingStart and embeddingEnd as unique hashes resolve.
const (
	fractionQueued      = 0.05
	fractionLoading     = 0.10
	fractionParsing     = 0.25
	fractionClassifying = 0.35
	fractionChunking    = 0.45
	embeddingStart      = 0.45
	embeddingEnd        = 0.80
	fractionIndexing    = 0.85
	fractionPersisting  = 0.95
	fractionDone        = 1.0
)

// IngestDocumentRepository is the document surface the pipeline needs.
type IngestDocumentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocStatus, errMsg string) error
	SetEmoji(ctx context.Context, id, emoji string) error
}

// IngestArtifactRepository resolves digests to artifact records.
type IngestArtifactRepository interface {
	GetByHash(ctx context.Context, hash string) (*domain.Artifact, error)
}

// BlobLocator resolves a digest to a local file path.
type BlobLocator interface {
	Locate(ctx context.Context, digest string) (string, error)
}

// DocumentParser turns a stored file into pages of text.
type DocumentParser interface {
	Parse(ctx context.Context, path, filename string) ([]parser.Page, parser.ParseStats, error)
}

// EmojiClassifier tags content with a taxonomy emoji. It must not fail.
type EmojiClassifier interface {
	EmojiFor(ctx context.Context, text string) string
}

// EmbeddingResolver fills chunk embeddings from cache and remote calls.
type EmbeddingResolver interface {
	Resolve(ctx context.Context, chunks []*domain.Chunk, onProgress embedding.ProgressFunc) error
}

// IngestionService runs the full pipeline for one document: load the stored
// bytes, parse, classify, chunk, embed, index, persist. Any stage error marks
// the document FAILED and is re-raised to the job layer.
type IngestionService struct {
	docRepo      IngestDocumentRepository
	artifactRepo IngestArtifactRepository
	blobs        BlobLocator
	parser       DocumentParser
	classifier   EmojiClassifier
	resolver     EmbeddingResolver
	indexStore   *index.Store
	progress     progress.Store
	chunkCfg     ChunkConfig
}

func NewIngestionService(
	docRepo IngestDocumentRepository,
	artifactRepo IngestArtifactRepository,
	blobs BlobLocator,
	docParser DocumentParser,
	classifier EmojiClassifier,
	resolver EmbeddingResolver,
	indexStore *index.Store,
	progressStore progress.Store,
	chunkCfg ChunkConfig,
) *IngestionService {
	if chunkCfg.MaxChars <= 0 {
		chunkCfg = DefaultChunkConfig()
	}
	return &IngestionService{
		docRepo:      docRepo,
		artifactRepo: artifactRepo,
		blobs:        blobs,
		parser:       docParser,
		classifier:   classifier,
		resolver:     resolver,
		indexStore:   indexStore,
		progress:     progressStore,
		chunkCfg:     chunkCfg,
	}
}

// Ingest runs the pipeline for the given document. Re-running it for an
// already indexed document is safe: stale nodes are removed before inserting.
func (s *IngestionService) Ingest(ctx context.Context, documentID string) error {
	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if !doc.Status.CanTransitionTo(domain.DocStatusProcessing) {
		// A stale job for an already-READY document; nothing to redo.
		log.Printf("ingest: document %s is %s, skipping", doc.ID, doc.Status)
		return nil
	}

	ctx, span := telemetry.StartSpan(ctx, "ingest.document", telemetry.SpanAttributes{
		NotebookID: doc.NotebookID,
		DocumentID: doc.ID,
		Operation:  "ingest",
	})
	defer span.End()

	s.report(ctx, doc.ID, fractionQueued, progress.StageQueued, "Queued for processing", nil)

	if err := s.docRepo.UpdateStatus(ctx, doc.ID, domain.DocStatusProcessing, ""); err != nil {
		return err
	}

	if err := s.run(ctx, doc); err != nil {
		span.SetError(err)
		return s.fail(ctx, doc.ID, err)
	}

	if err := s.docRepo.UpdateStatus(ctx, doc.ID, domain.DocStatusReady, ""); err != nil {
		span.SetError(err)
		return s.fail(ctx, doc.ID, err)
	}
	s.report(ctx, doc.ID, fractionDone, progress.StageDone, "Document ready", nil)
	return nil
}

func (s *IngestionService) run(ctx context.Context, doc *domain.Document) error {
	s.report(ctx, doc.ID, fractionLoading, progress.StageLoading, "Loading stored file", nil)
	path, err := s.locate(ctx, doc.FileHash)
	if err != nil {
		return err
	}

	s.report(ctx, doc.ID, fractionParsing, progress.StageParsing, "Extracting text", nil)
	pages, stats, err := s.parser.Parse(ctx, path, doc.Filename)
	if err != nil {
		return err
	}

	s.report(ctx, doc.ID, fractionClassifying, progress.StageClassifying, "Classifying content", stats.Detail())
	emoji := s.classifier.EmojiFor(ctx, sampleText(pages))
	if err := s.docRepo.SetEmoji(ctx, doc.ID, emoji); err != nil {
		log.Printf("ingest: set emoji for %s failed: %v", doc.ID, err)
	}

	s.report(ctx, doc.ID, fractionChunking, progress.StageChunking, "Splitting into chunks", nil)
	chunks := buildChunks(doc, pages, stats, s.chunkCfg)
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks produced", domain.ErrEmptyDocument)
	}

	onProgress := func(resolved, total int) {
		frac := embeddingStart
		if total > 0 {
			frac += (embeddingEnd - embeddingStart) * float64(resolved) / float64(total)
		}
		s.report(ctx, doc.ID, frac, progress.StageEmbedding,
			fmt.Sprintf("Embedding %d/%d", resolved, total), nil)
	}
	if err := s.resolver.Resolve(ctx, chunks, onProgress); err != nil {
		return err
	}

	s.report(ctx, doc.ID, fractionIndexing, progress.StageIndexing, "Updating index", nil)
	nodes := make([]index.Node, 0, len(chunks))
	for _, c := range chunks {
		nodes = append(nodes, index.NewNode(c))
	}

	// The whole replace runs under the notebook lock so a concurrent ingest
	// into the same notebook cannot persist over this document's nodes.
	return s.indexStore.Update(doc.NotebookID, func(part *index.Partition) error {
		part.DeleteByDocument(doc.ID)
		part.InsertNodes(nodes)
		s.report(ctx, doc.ID, fractionPersisting, progress.StagePersisting, "Persisting index", nil)
		return nil
	})
}

// locate maps storage-layer misses onto the missing-artifact class so the
// caller sees a stable fatal code instead of a raw filesystem error.
func (s *IngestionService) locate(ctx context.Context, digest string) (string, error) {
	if _, err := s.artifactRepo.GetByHash(ctx, digest); err != nil {
		if err == domain.ErrArtifactNotFound {
			return "", fmt.Errorf("%w: no artifact record for %s", domain.ErrMissingArtifact, digest)
		}
		return "", err
	}
	path, err := s.blobs.Locate(ctx, digest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMissingArtifact, err)
	}
	return path, nil
}

func (s *IngestionService) fail(ctx context.Context, documentID string, cause error) error {
	code, hint := domain.ClassifyIngestFailure(cause.Error())
	if err := s.docRepo.UpdateStatus(ctx, documentID, domain.DocStatusFailed, cause.Error()); err != nil {
		log.Printf("ingest: mark %s failed: %v", documentID, err)
	}
	s.report(ctx, documentID, fractionDone, progress.StageFailed, hint, map[string]any{"code": code})
	return cause
}

func (s *IngestionService) report(ctx context.Context, documentID string, fraction float64, stage, message string, detail map[string]any) {
	s.progress.Set(ctx, documentID, progress.Entry{
		Fraction: fraction,
		Stage:    stage,
		Message:  message,
		Detail:   detail,
	})
}

// sampleText gathers page text for classification. The classifier bounds the
// sample itself, so a generous prefix is enough.
func sampleText(pages []parser.Page) string {
	var b strings.Builder
	for _, p := range pages {
		if b.Len() > classifyMaxChars {
			break
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(t)
		}
	}
	return b.String()
}
