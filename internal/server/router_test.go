package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/intellinote/intellinote/internal/api/handlers"
	"github.com/intellinote/intellinote/internal/domain"
	"github.com/intellinote/intellinote/internal/progress"
	"github.com/intellinote/intellinote/internal/service"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Upload(ctx context.Context, input service.UploadInput) (*service.UploadResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func (m *MockDocumentService) CheckOrCreateDocument(ctx context.Context, input service.CheckInput) (*service.UploadResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func (m *MockDocumentService) GetDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) ListDocuments(ctx context.Context, notebookID string) ([]*domain.Document, error) {
	args := m.Called(ctx, notebookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentService) Progress(ctx context.Context, documentID string) (*progress.Entry, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*progress.Entry), args.Error(1)
}

func (m *MockDocumentService) DeleteDocument(ctx context.Context, notebookID, documentID string) error {
	args := m.Called(ctx, notebookID, documentID)
	return args.Error(0)
}

func newTestRouter(svc handlers.DocumentService) http.Handler {
	return NewRouter(RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(svc),
	})
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(new(MockDocumentService))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var wrapper struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wrapper))
	assert.Equal(t, "ok", wrapper.Data["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_StatusRoute(t *testing.T) {
	svc := new(MockDocumentService)
	doc := domain.NewDocument("doc-1", "nb_1", "hello.txt",
		"abababababababababababababababababababababababababababababababab",
		time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))
	svc.On("GetDocument", mock.Anything, "doc-1").Return(doc, nil)

	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/files/doc-1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestRouter_DeleteRoute(t *testing.T) {
	svc := new(MockDocumentService)
	svc.On("DeleteDocument", mock.Anything, "nb_1", "doc-1").Return(nil)

	router := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/notebooks/nb_1/files/doc-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestRouter_BodyLimit(t *testing.T) {
	router := NewRouter(RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(new(MockDocumentService)),
		MaxBodyBytes:    16,
	})

	req := httptest.NewRequest(http.MethodPost, "/files/check", nil)
	req.ContentLength = 1024
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
