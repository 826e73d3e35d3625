package domain

import (
	"fmt"
	"strings"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeInternalError = "INTERNAL_ERROR"

	// Ingestion failure taxonomy. These codes are stable and surfaced to
	// callers; the UI layer keys off them instead of parsing error text.
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeMissingArtifact   = "MISSING_ARTIFACT"
	ErrCodeParserDependency  = "PARSER_DEPENDENCY_MISSING"
	ErrCodeEmptyDocument     = "EMPTY_DOCUMENT"
	ErrCodeRemoteAuth        = "REMOTE_AUTH_ERROR"
	ErrCodeRemoteTransient   = "REMOTE_TRANSIENT_ERROR"
	ErrCodeQueueUnavailable  = "QUEUE_UNAVAILABLE"
	ErrCodeIngestFailed      = "INGEST_FAILED"
)

// Validation errors
var (
	ErrInvalidDocStatus  = NewDomainError(ErrCodeValidation, "invalid document status")
	ErrInvalidDigest     = NewDomainError(ErrCodeValidation, "invalid content digest")
	ErrMissingNotebookID = NewDomainError(ErrCodeValidation, "notebook id is required")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrArtifactNotFound = NewDomainError(ErrCodeNotFound, "artifact not found")
	ErrBlobNotFound     = NewDomainError(ErrCodeNotFound, "content not found in store")
)

// Already exists errors
var (
	ErrDocumentAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "document already exists in notebook")
)

// Ingestion pipeline errors
var (
	ErrUnsupportedFormat = NewDomainError(ErrCodeUnsupportedFormat, "unsupported file extension")
	ErrMissingArtifact   = NewDomainError(ErrCodeMissingArtifact, "physical artifact missing")
	ErrParserDependency  = NewDomainError(ErrCodeParserDependency, "native PDF backend is not available")
	ErrEmptyDocument     = NewDomainError(ErrCodeEmptyDocument, "no readable text extracted from document")
	ErrRemoteAuth        = NewDomainError(ErrCodeRemoteAuth, "remote model service rejected credentials")
	ErrRemoteTransient   = NewDomainError(ErrCodeRemoteTransient, "remote model service temporarily unavailable")
	ErrQueueUnavailable  = NewDomainError(ErrCodeQueueUnavailable, "ingestion queue unavailable")
)

// FailureClass is one row of the ingestion error classification table: a
// substring matcher, the stable external code, and a user-facing hint.
type FailureClass struct {
	Matcher string
	Code    string
	Hint    string
}

// failureClasses is ordered: the first matching row wins. Matchers cover both
// this package's error codes (wrapped errors keep their "[CODE]" prefix in the
// recorded text) and raw messages from remote services and drivers.
var failureClasses = []FailureClass{
	{Matcher: ErrCodeUnsupportedFormat, Code: ErrCodeUnsupportedFormat, Hint: "This file type is not supported. Upload a .txt, .md or .pdf file."},
	{Matcher: ErrCodeMissingArtifact, Code: ErrCodeMissingArtifact, Hint: "The stored file is missing. Re-upload the document."},
	{Matcher: ErrCodeParserDependency, Code: ErrCodeParserDependency, Hint: "The server is missing its PDF backend. Contact the operator."},
	{Matcher: ErrCodeEmptyDocument, Code: ErrCodeEmptyDocument, Hint: "No readable text was found in this document."},
	{Matcher: ErrCodeQueueUnavailable, Code: ErrCodeQueueUnavailable, Hint: "The ingestion queue is unavailable. Try again shortly."},
	{Matcher: ErrCodeRemoteAuth, Code: ErrCodeRemoteAuth, Hint: "The model service rejected the configured API key."},
	{Matcher: "invalid api key", Code: ErrCodeRemoteAuth, Hint: "The model service rejected the configured API key."},
	{Matcher: "401", Code: ErrCodeRemoteAuth, Hint: "The model service rejected the configured API key."},
	{Matcher: ErrCodeRemoteTransient, Code: ErrCodeRemoteTransient, Hint: "A model service call timed out. The upload will be retried."},
	{Matcher: "timeout", Code: ErrCodeRemoteTransient, Hint: "A model service call timed out. The upload will be retried."},
	{Matcher: "connection refused", Code: ErrCodeRemoteTransient, Hint: "A model service call failed. The upload will be retried."},
	{Matcher: "rate limit", Code: ErrCodeRemoteTransient, Hint: "The model service is rate limiting requests. The upload will be retried."},
}

// ClassifyIngestFailure maps raw error text to a stable external code and a
// user-facing hint. Unrecognized text maps to INGEST_FAILED.
func ClassifyIngestFailure(errText string) (code, hint string) {
	lower := strings.ToLower(errText)
	for _, fc := range failureClasses {
		if strings.Contains(lower, strings.ToLower(fc.Matcher)) {
			return fc.Code, fc.Hint
		}
	}
	return ErrCodeIngestFailed, "Ingestion failed. Check the document and try again."
}

// nonRetryableMarkers mirrors the taxonomy's fatal classes: retrying cannot
// succeed until the input, data, or environment is fixed.
var nonRetryableMarkers = []string{
	ErrCodeUnsupportedFormat,
	ErrCodeMissingArtifact,
	ErrCodeParserDependency,
	ErrCodeEmptyDocument,
	ErrCodeRemoteAuth,
	ErrCodeNotFound,
	ErrCodeValidation,
}

// IsRetryableIngestError reports whether the job layer may retry after err.
// Only errors not matching a fatal marker are retryable.
func IsRetryableIngestError(err error) bool {
	if err == nil {
		return false
	}
	text := err.Error()
	for _, marker := range nonRetryableMarkers {
		if strings.Contains(text, marker) {
			return false
		}
	}
	return true
}
