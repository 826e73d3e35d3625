package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/intellinote/intellinote/internal/domain"
	"github.com/intellinote/intellinote/internal/index"
	"github.com/intellinote/intellinote/internal/progress"
	"github.com/intellinote/intellinote/internal/storage"
)

// MockDocumentRepository is a mock implementation of DocumentRepositoryInterface
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) GetByNotebookAndHash(ctx context.Context, notebookID, fileHash string) (*domain.Document, error) {
	args := m.Called(ctx, notebookID, fileHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) ListByNotebook(ctx context.Context, notebookID string) ([]*domain.Document, error) {
	args := m.Called(ctx, notebookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocStatus, errMsg string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

func (m *MockDocumentRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentRepository) CountByFileHash(ctx context.Context, fileHash string) (int, error) {
	args := m.Called(ctx, fileHash)
	return args.Int(0), args.Error(1)
}

// MockArtifactRepository is a mock implementation of ArtifactRepositoryInterface
type MockArtifactRepository struct {
	mock.Mock
}

func (m *MockArtifactRepository) Upsert(ctx context.Context, a *domain.Artifact) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockArtifactRepository) GetByHash(ctx context.Context, hash string) (*domain.Artifact, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Artifact), args.Error(1)
}

func (m *MockArtifactRepository) Delete(ctx context.Context, hash string) error {
	args := m.Called(ctx, hash)
	return args.Error(0)
}

// MockJobQueue is a mock implementation of JobQueue
type MockJobQueue struct {
	mock.Mock
}

func (m *MockJobQueue) Create(ctx context.Context, job *domain.IngestionJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobQueue) DeleteForDocument(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
	return args.Error(0)
}

// MockBlobStore is a mock implementation of BlobStore
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, r io.Reader) (*storage.PutResult, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.PutResult), args.Error(1)
}

func (m *MockBlobStore) Locate(ctx context.Context, digest string) (string, error) {
	args := m.Called(ctx, digest)
	return args.String(0), args.Error(1)
}

func (m *MockBlobStore) Delete(ctx context.Context, digest string) error {
	args := m.Called(ctx, digest)
	return args.Error(0)
}

// MockUUIDGeneratorDocs yields a fixed sequence of ids
type MockUUIDGeneratorDocs struct {
	uuids []string
	index int
}

func (m *MockUUIDGeneratorDocs) NewString() string {
	if m.index >= len(m.uuids) {
		return "default-uuid"
	}
	id := m.uuids[m.index]
	m.index++
	return id
}

const testDigest = "abababababababababababababababababababababababababababababababab"

type docFixture struct {
	docRepo      *MockDocumentRepository
	artifactRepo *MockArtifactRepository
	jobQueue     *MockJobQueue
	blobs        *MockBlobStore
	indexStore   *index.Store
	progress     *recordingProgress
	svc          *DocumentService
}

func newDocFixture(t *testing.T, uuids ...string) *docFixture {
	t.Helper()
	store, err := index.NewStore(t.TempDir())
	require.NoError(t, err)

	f := &docFixture{
		docRepo:      new(MockDocumentRepository),
		artifactRepo: new(MockArtifactRepository),
		jobQueue:     new(MockJobQueue),
		blobs:        new(MockBlobStore),
		indexStore:   store,
		progress:     newRecordingProgress(),
	}
	f.svc = NewDocumentService(f.docRepo, f.artifactRepo, f.jobQueue, f.blobs, store, f.progress)
	f.svc.uuidGen = &MockUUIDGeneratorDocs{uuids: uuids}
	return f
}

func tempBlob(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDocumentService_Upload_NewDocument(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t, "doc-1", "job-1")
	path := tempBlob(t, "hello world")

	f.blobs.On("Put", ctx, mock.Anything).Return(&storage.PutResult{
		Digest: testDigest, Size: 11, Path: path,
	}, nil)
	f.artifactRepo.On("Upsert", ctx, mock.MatchedBy(func(a *domain.Artifact) bool {
		return a.Hash == testDigest && a.Size == 11 &&
			strings.HasPrefix(a.MimeType, "text/plain")
	})).Return(nil)
	f.docRepo.On("Create", ctx, mock.MatchedBy(func(d *domain.Document) bool {
		return d.ID == "doc-1" && d.NotebookID == "nb_1" && d.Filename == "hello.txt" &&
			d.FileHash == testDigest && d.Status == domain.DocStatusPending
	})).Return(nil)
	f.jobQueue.On("Create", ctx, mock.MatchedBy(func(j *domain.IngestionJob) bool {
		return j.ID == "job-1" && j.DocumentID == "doc-1" && j.Status == domain.IngestionJobStatusPending
	})).Return(nil)

	result, err := f.svc.Upload(ctx, UploadInput{
		NotebookID: "nb_1",
		Filename:   "hello.txt",
		Content:    strings.NewReader("hello world"),
	})

	require.NoError(t, err)
	assert.Equal(t, UploadStatusProcessing, result.Status)
	assert.Equal(t, "doc-1", result.Document.ID)

	last, _ := f.progress.Get(ctx, "doc-1")
	require.NotNil(t, last)
	assert.Equal(t, progress.StageQueued, last.Stage)
	f.jobQueue.AssertExpectations(t)
}

func TestDocumentService_Upload_DuplicateShortCircuits(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t, "doc-2")
	path := tempBlob(t, "hello world")
	existing := domain.NewDocument("doc-1", "nb_1", "hello.txt", testDigest, time.Now().UTC())

	f.blobs.On("Put", ctx, mock.Anything).Return(&storage.PutResult{
		Digest: testDigest, Size: 11, Path: path, Existed: true,
	}, nil)
	f.artifactRepo.On("Upsert", ctx, mock.Anything).Return(nil)
	f.docRepo.On("Create", ctx, mock.Anything).Return(domain.ErrDocumentAlreadyExists)
	f.docRepo.On("GetByNotebookAndHash", ctx, "nb_1", testDigest).Return(existing, nil)

	result, err := f.svc.Upload(ctx, UploadInput{
		NotebookID: "nb_1",
		Filename:   "hello.txt",
		Content:    strings.NewReader("hello world"),
	})

	require.NoError(t, err)
	assert.Equal(t, UploadStatusAlreadyExists, result.Status)
	assert.Equal(t, "doc-1", result.Document.ID)
	f.jobQueue.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestDocumentService_Upload_RejectsCorruptStoreResult(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t, "doc-1")

	// A store handing back something that is not a sha256 digest must never
	// reach the artifact ledger.
	f.blobs.On("Put", ctx, mock.Anything).Return(&storage.PutResult{
		Digest: "deadbeef", Size: 4, Path: tempBlob(t, "oops"),
	}, nil)

	_, err := f.svc.Upload(ctx, UploadInput{
		NotebookID: "nb_1",
		Filename:   "hello.txt",
		Content:    strings.NewReader("oops"),
	})

	require.Error(t, err)
	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeValidation, derr.Code)
	f.artifactRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	f.docRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestDocumentService_Check_MissingFilenameRejected(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t, "doc-1")

	f.artifactRepo.On("GetByHash", ctx, testDigest).Return(&domain.Artifact{Hash: testDigest}, nil)
	f.blobs.On("Locate", ctx, testDigest).Return("/tmp/blob", nil)
	f.docRepo.On("GetByNotebookAndHash", ctx, "nb_1", testDigest).Return(nil, domain.ErrDocumentNotFound)

	_, err := f.svc.CheckOrCreateDocument(ctx, CheckInput{
		NotebookID: "nb_1",
		Digest:     testDigest,
	})

	require.Error(t, err)
	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrCodeValidation, derr.Code)
	f.docRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestDocumentService_Upload_UnsupportedExtension(t *testing.T) {
	f := newDocFixture(t)

	_, err := f.svc.Upload(context.Background(), UploadInput{
		NotebookID: "nb_1",
		Filename:   "slides.pptx",
		Content:    strings.NewReader("x"),
	})

	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
	f.blobs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestDocumentService_Upload_MissingNotebook(t *testing.T) {
	f := newDocFixture(t)
	_, err := f.svc.Upload(context.Background(), UploadInput{Filename: "hello.txt", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, domain.ErrMissingNotebookID)
}

func TestDocumentService_Upload_QueueFailureFailsDocument(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t, "doc-1", "job-1")
	path := tempBlob(t, "hello world")

	f.blobs.On("Put", ctx, mock.Anything).Return(&storage.PutResult{
		Digest: testDigest, Size: 11, Path: path,
	}, nil)
	f.artifactRepo.On("Upsert", ctx, mock.Anything).Return(nil)
	f.docRepo.On("Create", ctx, mock.Anything).Return(nil)
	f.jobQueue.On("Create", ctx, mock.Anything).Return(assert.AnError)
	f.docRepo.On("UpdateStatus", ctx, "doc-1", domain.DocStatusFailed,
		mock.MatchedBy(func(msg string) bool {
			return strings.Contains(msg, domain.ErrCodeQueueUnavailable)
		})).Return(nil)

	_, err := f.svc.Upload(ctx, UploadInput{
		NotebookID: "nb_1",
		Filename:   "hello.txt",
		Content:    strings.NewReader("hello world"),
	})

	assert.ErrorIs(t, err, domain.ErrQueueUnavailable)
	f.docRepo.AssertExpectations(t)
}

func TestDocumentService_Check_UploadRequiredWithoutArtifact(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t)

	f.artifactRepo.On("GetByHash", ctx, testDigest).Return(nil, domain.ErrArtifactNotFound)

	result, err := f.svc.CheckOrCreateDocument(ctx, CheckInput{
		NotebookID: "nb_1", Digest: testDigest, Filename: "hello.txt",
	})

	require.NoError(t, err)
	assert.Equal(t, UploadStatusUploadRequired, result.Status)
	assert.Nil(t, result.Document)
}

func TestDocumentService_Check_UploadRequiredWithoutBytes(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t)

	f.artifactRepo.On("GetByHash", ctx, testDigest).Return(&domain.Artifact{Hash: testDigest}, nil)
	f.blobs.On("Locate", ctx, testDigest).Return("", domain.ErrBlobNotFound)

	result, err := f.svc.CheckOrCreateDocument(ctx, CheckInput{
		NotebookID: "nb_1", Digest: testDigest, Filename: "hello.txt",
	})

	require.NoError(t, err)
	assert.Equal(t, UploadStatusUploadRequired, result.Status)
}

func TestDocumentService_Check_InvalidDigest(t *testing.T) {
	f := newDocFixture(t)
	_, err := f.svc.CheckOrCreateDocument(context.Background(), CheckInput{
		NotebookID: "nb_1", Digest: "not-a-digest", Filename: "hello.txt",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDigest)
}

func TestDocumentService_Check_ReadyWithPartitionAlreadyExists(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t)

	part, err := f.indexStore.LoadOrCreate("nb_1")
	require.NoError(t, err)
	require.NoError(t, part.Persist())

	doc := domain.NewDocument("doc-1", "nb_1", "hello.txt", testDigest, time.Now().UTC())
	doc.Status = domain.DocStatusReady

	f.artifactRepo.On("GetByHash", ctx, testDigest).Return(&domain.Artifact{Hash: testDigest}, nil)
	f.blobs.On("Locate", ctx, testDigest).Return("/data/blob", nil)
	f.docRepo.On("GetByNotebookAndHash", ctx, "nb_1", testDigest).Return(doc, nil)

	result, err := f.svc.CheckOrCreateDocument(ctx, CheckInput{
		NotebookID: "nb_1", Digest: testDigest, Filename: "hello.txt",
	})

	require.NoError(t, err)
	assert.Equal(t, UploadStatusAlreadyExists, result.Status)
	assert.Equal(t, "doc-1", result.Document.ID)
	f.jobQueue.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestDocumentService_Check_ZombieReadyIsReingested(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t, "doc-2", "job-1")

	// READY in the ledger but no index partition on disk.
	doc := domain.NewDocument("doc-1", "nb_1", "hello.txt", testDigest, time.Now().UTC())
	doc.Status = domain.DocStatusReady

	f.artifactRepo.On("GetByHash", ctx, testDigest).Return(&domain.Artifact{Hash: testDigest}, nil)
	f.blobs.On("Locate", ctx, testDigest).Return("/data/blob", nil)
	f.docRepo.On("GetByNotebookAndHash", ctx, "nb_1", testDigest).Return(doc, nil)
	f.jobQueue.On("DeleteForDocument", ctx, "doc-1").Return(nil)
	f.docRepo.On("Delete", ctx, "doc-1").Return(nil)
	f.docRepo.On("Create", ctx, mock.MatchedBy(func(d *domain.Document) bool {
		return d.ID == "doc-2" && d.FileHash == testDigest
	})).Return(nil)
	f.jobQueue.On("Create", ctx, mock.MatchedBy(func(j *domain.IngestionJob) bool {
		return j.DocumentID == "doc-2"
	})).Return(nil)

	result, err := f.svc.CheckOrCreateDocument(ctx, CheckInput{
		NotebookID: "nb_1", Digest: testDigest, Filename: "hello.txt",
	})

	require.NoError(t, err)
	assert.Equal(t, UploadStatusProcessing, result.Status)
	assert.Equal(t, "doc-2", result.Document.ID)
	f.docRepo.AssertExpectations(t)
	f.jobQueue.AssertExpectations(t)
}

func TestDocumentService_Check_StaleFailedIsReingested(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t, "doc-2", "job-1")

	doc := domain.NewDocument("doc-1", "nb_1", "hello.txt", testDigest, time.Now().UTC())
	doc.Status = domain.DocStatusFailed

	f.artifactRepo.On("GetByHash", ctx, testDigest).Return(&domain.Artifact{Hash: testDigest}, nil)
	f.blobs.On("Locate", ctx, testDigest).Return("/data/blob", nil)
	f.docRepo.On("GetByNotebookAndHash", ctx, "nb_1", testDigest).Return(doc, nil)
	f.jobQueue.On("DeleteForDocument", ctx, "doc-1").Return(nil)
	f.docRepo.On("Delete", ctx, "doc-1").Return(nil)
	f.docRepo.On("Create", ctx, mock.Anything).Return(nil)
	f.jobQueue.On("Create", ctx, mock.Anything).Return(nil)

	result, err := f.svc.CheckOrCreateDocument(ctx, CheckInput{
		NotebookID: "nb_1", Digest: testDigest, Filename: "hello.txt",
	})

	require.NoError(t, err)
	assert.Equal(t, UploadStatusProcessing, result.Status)
}

func TestDocumentService_Check_CreateRaceReturnsWinner(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t, "doc-2")

	winner := domain.NewDocument("doc-winner", "nb_1", "hello.txt", testDigest, time.Now().UTC())

	f.artifactRepo.On("GetByHash", ctx, testDigest).Return(&domain.Artifact{Hash: testDigest}, nil)
	f.blobs.On("Locate", ctx, testDigest).Return("/data/blob", nil)
	f.docRepo.On("GetByNotebookAndHash", ctx, "nb_1", testDigest).Return(nil, domain.ErrDocumentNotFound).Once()
	f.docRepo.On("Create", ctx, mock.Anything).Return(domain.ErrDocumentAlreadyExists)
	f.docRepo.On("GetByNotebookAndHash", ctx, "nb_1", testDigest).Return(winner, nil).Once()

	result, err := f.svc.CheckOrCreateDocument(ctx, CheckInput{
		NotebookID: "nb_1", Digest: testDigest, Filename: "hello.txt",
	})

	require.NoError(t, err)
	assert.Equal(t, UploadStatusProcessing, result.Status)
	assert.Equal(t, "doc-winner", result.Document.ID)
	f.jobQueue.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestDocumentService_Delete_LastReferenceGC(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t)

	part, err := f.indexStore.LoadOrCreate("nb_1")
	require.NoError(t, err)
	part.InsertNodes([]index.Node{{
		ID:       "n1",
		Text:     "chunk",
		Metadata: domain.ChunkMetadata{DocumentID: "doc-1", NotebookID: "nb_1"},
	}})
	require.NoError(t, part.Persist())

	doc := domain.NewDocument("doc-1", "nb_1", "hello.txt", testDigest, time.Now().UTC())
	doc.Status = domain.DocStatusReady

	f.docRepo.On("GetByID", ctx, "doc-1").Return(doc, nil)
	f.jobQueue.On("DeleteForDocument", ctx, "doc-1").Return(nil)
	f.docRepo.On("Delete", ctx, "doc-1").Return(nil)
	f.docRepo.On("CountByFileHash", ctx, testDigest).Return(0, nil)
	f.artifactRepo.On("Delete", ctx, testDigest).Return(nil)
	f.blobs.On("Delete", ctx, testDigest).Return(nil)

	require.NoError(t, f.svc.DeleteDocument(ctx, "nb_1", "doc-1"))

	fresh, err := f.indexStore.LoadOrCreate("nb_1")
	require.NoError(t, err)
	assert.Empty(t, fresh.NodesForDocument("doc-1"))
	f.artifactRepo.AssertExpectations(t)
	f.blobs.AssertExpectations(t)
}

func TestDocumentService_Delete_SharedArtifactKept(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t)

	doc := domain.NewDocument("doc-1", "nb_1", "hello.txt", testDigest, time.Now().UTC())

	f.docRepo.On("GetByID", ctx, "doc-1").Return(doc, nil)
	f.jobQueue.On("DeleteForDocument", ctx, "doc-1").Return(nil)
	f.docRepo.On("Delete", ctx, "doc-1").Return(nil)
	f.docRepo.On("CountByFileHash", ctx, testDigest).Return(1, nil)

	require.NoError(t, f.svc.DeleteDocument(ctx, "nb_1", "doc-1"))

	f.artifactRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.blobs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDocumentService_Delete_WrongNotebook(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t)

	doc := domain.NewDocument("doc-1", "nb_1", "hello.txt", testDigest, time.Now().UTC())
	f.docRepo.On("GetByID", ctx, "doc-1").Return(doc, nil)

	err := f.svc.DeleteDocument(ctx, "nb_other", "doc-1")
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	f.docRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDocumentService_Progress_SynthesizedFromStatus(t *testing.T) {
	ctx := context.Background()
	f := newDocFixture(t)

	ready := domain.NewDocument("doc-1", "nb_1", "hello.txt", testDigest, time.Now().UTC())
	ready.Status = domain.DocStatusReady
	f.docRepo.On("GetByID", ctx, "doc-1").Return(ready, nil)

	entry, err := f.svc.Progress(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, progress.StageDone, entry.Stage)
	assert.Equal(t, 1.0, entry.Fraction)

	failed := domain.NewDocument("doc-2", "nb_1", "hello.txt", testDigest, time.Now().UTC())
	failed.Status = domain.DocStatusFailed
	failed.ErrorMsg = "[EMPTY_DOCUMENT] no readable text"
	f.docRepo.On("GetByID", ctx, "doc-2").Return(failed, nil)

	entry, err = f.svc.Progress(ctx, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, progress.StageFailed, entry.Stage)
	assert.NotEmpty(t, entry.Message)
}
