package parser

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/intellinote/intellinote/internal/domain"
)

// TextParser reads plain text and markdown files as a single page.
type TextParser struct{}

func NewTextParser() *TextParser {
	return &TextParser{}
}

func (p *TextParser) Parse(_ context.Context, path, _ string) ([]Page, ParseStats, error) {
	stats := ParseStats{Parser: "text", TotalPages: 1}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to read text file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		stats.SkippedPages = 1
		return nil, stats, domain.ErrEmptyDocument
	}

	stats.TextPages = 1
	return []Page{{Number: 1, Text: text}}, stats, nil
}
