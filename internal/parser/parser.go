package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/intellinote/intellinote/internal/domain"
)

// Page is one non-empty page of parsed output. Provenance fields travel into
// chunk metadata for citation use; only Text is semantic content.
type Page struct {
	Number      int
	Text        string
	UsedOCR     bool
	UsedVision  bool
	ImageRatio  float64
	VectorRatio float64
}

// ParseStats summarizes how a document's pages were handled.
type ParseStats struct {
	Parser       string
	TotalPages   int
	TextPages    int
	OCRPages     int
	VisionPages  int
	SkippedPages int
}

// Detail renders the stats for progress records and logs.
func (s ParseStats) Detail() map[string]any {
	return map[string]any{
		"parser":        s.Parser,
		"total_pages":   s.TotalPages,
		"text_pages":    s.TextPages,
		"ocr_pages":     s.OCRPages,
		"vision_pages":  s.VisionPages,
		"skipped_pages": s.SkippedPages,
	}
}

// Parser turns a stored file into pages of text.
type Parser interface {
	Parse(ctx context.Context, path, filename string) ([]Page, ParseStats, error)
}

var supportedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".pdf": true,
}

// IsSupported reports whether the filename's extension has a parser.
func IsSupported(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Registry routes a file to its format parser by extension.
type Registry struct {
	text Parser
	pdf  Parser
}

func NewRegistry(text, pdf Parser) *Registry {
	return &Registry{text: text, pdf: pdf}
}

func (r *Registry) Parse(ctx context.Context, path, filename string) ([]Page, ParseStats, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md":
		return r.text.Parse(ctx, path, filename)
	case ".pdf":
		return r.pdf.Parse(ctx, path, filename)
	default:
		return nil, ParseStats{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filename)
	}
}
