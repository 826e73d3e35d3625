package service

import (
	"strings"
	"unicode"

	"github.com/intellinote/intellinote/internal/domain"
	"github.com/intellinote/intellinote/internal/parser"
)

// ChunkConfig controls how page text is split into embeddable chunks.
type ChunkConfig struct {
	MaxChars  int
	MinChars  int
	Overlap   int
	MaxChunks int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:  1200,
		MinChars:  400,
		Overlap:   200,
		MaxChunks: 40,
	}
}

// buildChunks turns parsed pages into chunks carrying provenance metadata.
// Empty pages contribute nothing.
func buildChunks(doc *domain.Document, pages []parser.Page, stats parser.ParseStats, cfg ChunkConfig) []*domain.Chunk {
	chunks := make([]*domain.Chunk, 0, len(pages))
	for _, page := range pages {
		for i, text := range chunkText(page.Text, cfg) {
			chunks = append(chunks, &domain.Chunk{
				Text: text,
				Metadata: domain.ChunkMetadata{
					DocumentID:  doc.ID,
					NotebookID:  doc.NotebookID,
					Filename:    doc.Filename,
					Parser:      stats.Parser,
					PageNumber:  page.Number,
					ChunkIndex:  i,
					UsedOCR:     page.UsedOCR,
					UsedVision:  page.UsedVision,
					ImageRatio:  page.ImageRatio,
					VectorRatio: page.VectorRatio,
				},
			})
		}
	}
	return chunks
}

func chunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	chunks := make([]string, 0, 8)
	start := 0
	for start < len(runes) {
		if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
			break
		}

		end := start + cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			cut := end
			minCut := start + cfg.MinChars
			if minCut > end {
				minCut = start
			}
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		if end <= start {
			break
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 {
			if end-start > cfg.Overlap {
				nextStart = end - cfg.Overlap
			}
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}
