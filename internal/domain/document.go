package domain

import (
	"fmt"
	"time"
)

// DocStatus is the lifecycle status of a Document.
type DocStatus string

const (
	DocStatusPending    DocStatus = "pending"
	DocStatusProcessing DocStatus = "processing"
	DocStatusReady      DocStatus = "ready"
	DocStatusFailed     DocStatus = "failed"
)

// IsValid reports whether the status is one of the known lifecycle states.
func (s DocStatus) IsValid() bool {
	switch s {
	case DocStatusPending, DocStatusProcessing, DocStatusReady, DocStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status is a terminal state.
func (s DocStatus) IsTerminal() bool {
	return s == DocStatusReady || s == DocStatusFailed
}

// CanTransitionTo reports whether the pipeline may move a Document from s to
// next. PENDING is the only legal start state. FAILED re-enters PROCESSING
// when the job layer retries a transient failure; READY never does (fresh
// content means a fresh document via re-upload or re-check).
func (s DocStatus) CanTransitionTo(next DocStatus) bool {
	switch s {
	case DocStatusPending:
		return next == DocStatusProcessing || next == DocStatusFailed
	case DocStatusProcessing:
		return next == DocStatusReady || next == DocStatusFailed || next == DocStatusProcessing
	case DocStatusFailed:
		return next == DocStatusProcessing
	default:
		return false
	}
}

// Document is a workspace-scoped logical reference to an Artifact.
// (NotebookID, FileHash) is unique: the same physical content may appear at
// most once per notebook.
type Document struct {
	ID         string
	NotebookID string
	Filename   string
	FileHash   string
	Status     DocStatus
	ErrorMsg   string
	Emoji      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewDocument creates a pending Document referencing an Artifact digest.
func NewDocument(id, notebookID, filename, fileHash string, now time.Time) *Document {
	return &Document{
		ID:         id,
		NotebookID: notebookID,
		Filename:   filename,
		FileHash:   fileHash,
		Status:     DocStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.NotebookID == "" {
		return fmt.Errorf("document NotebookID is required")
	}

	if d.Filename == "" {
		return fmt.Errorf("document Filename is required")
	}

	if !IsValidDigest(d.FileHash) {
		return fmt.Errorf("document FileHash must be a lowercase hex sha256 digest")
	}

	if !d.Status.IsValid() {
		return ErrInvalidDocStatus
	}

	return nil
}
