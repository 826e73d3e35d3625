package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/intellinote/intellinote/internal/api"
	"github.com/intellinote/intellinote/internal/domain"
	"github.com/intellinote/intellinote/internal/progress"
	"github.com/intellinote/intellinote/internal/service"
)

// uploadMemoryLimit is the in-memory threshold for multipart parsing; larger
// files spill to disk.
const uploadMemoryLimit = 10 << 20

type DocumentService interface {
	Upload(ctx context.Context, input service.UploadInput) (*service.UploadResult, error)
	CheckOrCreateDocument(ctx context.Context, input service.CheckInput) (*service.UploadResult, error)
	GetDocument(ctx context.Context, documentID string) (*domain.Document, error)
	ListDocuments(ctx context.Context, notebookID string) ([]*domain.Document, error)
	Progress(ctx context.Context, documentID string) (*progress.Entry, error)
	DeleteDocument(ctx context.Context, notebookID, documentID string) error
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type CheckRequest struct {
	NotebookID string `json:"notebook_id"`
	SHA256     string `json:"sha256"`
	Filename   string `json:"filename"`
}

type DocumentResponse struct {
	ID         string `json:"id"`
	NotebookID string `json:"notebook_id"`
	Filename   string `json:"filename"`
	SHA256     string `json:"sha256"`
	Status     string `json:"status"`
	Emoji      string `json:"emoji,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	ErrorHint  string `json:"error_hint,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type UploadResponse struct {
	Status   string            `json:"status"`
	Document *DocumentResponse `json:"document,omitempty"`
}

type ProgressResponse struct {
	Fraction float64        `json:"fraction"`
	Stage    string         `json:"stage"`
	Message  string         `json:"message"`
	Detail   map[string]any `json:"detail,omitempty"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	resp := &DocumentResponse{
		ID:         d.ID,
		NotebookID: d.NotebookID,
		Filename:   d.Filename,
		SHA256:     d.FileHash,
		Status:     string(d.Status),
		Emoji:      d.Emoji,
		CreatedAt:  d.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:  d.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
	if d.Status == domain.DocStatusFailed && d.ErrorMsg != "" {
		resp.ErrorCode, resp.ErrorHint = domain.ClassifyIngestFailure(d.ErrorMsg)
	}
	return resp
}

func uploadResultToResponse(r *service.UploadResult) UploadResponse {
	resp := UploadResponse{Status: r.Status}
	if r.Document != nil {
		resp.Document = documentToResponse(r.Document)
	}
	return resp
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(uploadMemoryLimit); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	notebookID := r.FormValue("notebook_id")
	if notebookID == "" {
		api.Error(w, http.StatusBadRequest, "notebook_id is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	result, err := h.svc.Upload(r.Context(), service.UploadInput{
		NotebookID: notebookID,
		Filename:   header.Filename,
		Content:    file,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	status := http.StatusAccepted
	if result.Status == service.UploadStatusAlreadyExists {
		status = http.StatusOK
	}
	api.Success(w, status, uploadResultToResponse(result))
}

func (h *DocumentHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.NotebookID == "" {
		api.Error(w, http.StatusBadRequest, "notebook_id is required")
		return
	}
	if req.SHA256 == "" {
		api.Error(w, http.StatusBadRequest, "sha256 is required")
		return
	}
	if req.Filename == "" {
		api.Error(w, http.StatusBadRequest, "filename is required")
		return
	}

	result, err := h.svc.CheckOrCreateDocument(r.Context(), service.CheckInput{
		NotebookID: req.NotebookID,
		Digest:     req.SHA256,
		Filename:   req.Filename,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, uploadResultToResponse(result))
}

func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.GetDocument(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) Progress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	entry, err := h.svc.Progress(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ProgressResponse{
		Fraction: entry.Fraction,
		Stage:    entry.Stage,
		Message:  entry.Message,
		Detail:   entry.Detail,
	})
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")
	if notebookID == "" {
		api.Error(w, http.StatusBadRequest, "notebookID is required")
		return
	}

	docs, err := h.svc.ListDocuments(r.Context(), notebookID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	out := make([]*DocumentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentToResponse(d))
	}
	api.Success(w, http.StatusOK, out)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")
	id := chi.URLParam(r, "id")
	if notebookID == "" || id == "" {
		api.Error(w, http.StatusBadRequest, "notebookID and id are required")
		return
	}

	if err := h.svc.DeleteDocument(r.Context(), notebookID, id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"status": "deleted"})
}
