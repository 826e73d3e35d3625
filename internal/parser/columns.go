package parser

import (
	"sort"
	"strings"
)

// TextBlock is one positioned run of text on a page. Coordinates are PDF user
// space: Y grows upward, so top of page means larger Y.
type TextBlock struct {
	X     float64
	Y     float64
	Width float64
	Text  string
}

func (b TextBlock) center() float64 {
	return b.X + b.Width/2
}

// ReconstructColumns orders page blocks for reading. Blocks are clustered
// into columns by horizontal center with a gap threshold proportional to page
// width. One column, or more than maxColumns (pathological layout), falls
// back to plain top-to-bottom order; otherwise columns are emitted left to
// right, each top to bottom. Naive stream order interleaves the columns of
// academic two-column layouts, which this undoes.
func ReconstructColumns(blocks []TextBlock, pageWidth, gapRatio float64, maxColumns int) string {
	if len(blocks) == 0 {
		return ""
	}

	columns := clusterByCenter(blocks, pageWidth*gapRatio)
	if len(columns) == 1 || len(columns) > maxColumns {
		flat := make([]TextBlock, len(blocks))
		copy(flat, blocks)
		sortReadingOrder(flat)
		return joinBlocks(flat)
	}

	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		sortReadingOrder(col)
		parts = append(parts, joinBlocks(col))
	}
	return strings.Join(parts, "\n\n")
}

// clusterByCenter groups blocks whose horizontal centers lie within gap of a
// running cluster mean. Input order does not matter; output clusters are
// ordered left to right.
func clusterByCenter(blocks []TextBlock, gap float64) [][]TextBlock {
	sorted := make([]TextBlock, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].center() < sorted[j].center() })

	var clusters [][]TextBlock
	var sum float64
	for _, b := range sorted {
		n := len(clusters)
		if n > 0 {
			mean := sum / float64(len(clusters[n-1]))
			if b.center()-mean <= gap {
				clusters[n-1] = append(clusters[n-1], b)
				sum += b.center()
				continue
			}
		}
		clusters = append(clusters, []TextBlock{b})
		sum = b.center()
	}
	return clusters
}

// sortReadingOrder sorts blocks top to bottom (descending Y), ties left to
// right.
func sortReadingOrder(blocks []TextBlock) {
	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].Y != blocks[j].Y {
			return blocks[i].Y > blocks[j].Y
		}
		return blocks[i].X < blocks[j].X
	})
}

func joinBlocks(blocks []TextBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if t := strings.TrimSpace(b.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}
