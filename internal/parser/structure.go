package parser

import (
	"fmt"
	"os"
	"sort"

	ledongthuc "github.com/ledongthuc/pdf"
)

// lineYTolerance groups text items whose baselines differ by less than this
// many points into the same line.
const lineYTolerance = 2.0

// pdfBackend reads PDF structure with a pure-Go parser. It supplies
// positioned text and coverage estimates; rasterization is the Rasterizer's
// job.
type pdfBackend struct{}

func NewStructureBackend() StructureBackend {
	return pdfBackend{}
}

func (pdfBackend) Open(path string) (StructureDoc, error) {
	f, r, err := ledongthuc.Open(path)
	if err != nil {
		return nil, err
	}
	return &pdfDoc{file: f, reader: r}, nil
}

type pdfDoc struct {
	file   *os.File
	reader *ledongthuc.Reader
}

func (d *pdfDoc) NumPages() int {
	return d.reader.NumPage()
}

func (d *pdfDoc) Close() error {
	return d.file.Close()
}

func (d *pdfDoc) Page(number int) (*PageLayout, error) {
	page := d.reader.Page(number)
	if page.V.IsNull() {
		return nil, fmt.Errorf("page %d not present", number)
	}

	width, height := mediaBoxSize(page)
	layout := &PageLayout{Width: width, Height: height}

	content := page.Content()
	layout.Blocks = groupLines(content.Text)

	pageArea := width * height
	if pageArea > 0 {
		var rectArea float64
		for _, r := range content.Rect {
			w := r.Max.X - r.Min.X
			h := r.Max.Y - r.Min.Y
			if w > 0 && h > 0 {
				rectArea += w * h
			}
		}
		layout.DrawingCount = len(content.Rect)
		layout.VectorRatio = clamp01(rectArea / pageArea)
		layout.ImageAreas = imageAreas(page, pageArea)
	}

	return layout, nil
}

// mediaBoxSize resolves the page size, walking up the page tree since
// MediaBox is inheritable.
func mediaBoxSize(page ledongthuc.Page) (width, height float64) {
	v := page.V
	for !v.IsNull() {
		if box := v.Key("MediaBox"); !box.IsNull() && box.Len() == 4 {
			width = box.Index(2).Float64() - box.Index(0).Float64()
			height = box.Index(3).Float64() - box.Index(1).Float64()
			return width, height
		}
		v = v.Key("Parent")
	}
	return 0, 0
}

// groupLines merges positioned text items into one block per visual line.
func groupLines(items []ledongthuc.Text) []TextBlock {
	if len(items) == 0 {
		return nil
	}

	sorted := make([]ledongthuc.Text, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var blocks []TextBlock
	var cur *TextBlock
	var curY, curEnd float64

	for _, it := range sorted {
		if cur != nil && curY-it.Y < lineYTolerance {
			// Same line: append, inserting a space across gaps.
			if it.X-curEnd > 1.0 {
				cur.Text += " "
			}
			cur.Text += it.S
			if end := it.X + it.W; end > curEnd {
				curEnd = end
			}
			cur.Width = curEnd - cur.X
			continue
		}
		blocks = append(blocks, TextBlock{X: it.X, Y: it.Y, Width: it.W, Text: it.S})
		cur = &blocks[len(blocks)-1]
		curY = it.Y
		curEnd = it.X + it.W
	}

	return blocks
}

// imageAreas estimates per-image page coverage from XObject pixel dimensions.
// Exact placed rectangles would need full content-stream interpretation, so
// pixel sizes are scaled as if placed at 144 dpi (2 px per point).
func imageAreas(page ledongthuc.Page, pageArea float64) []float64 {
	resources := page.Resources()
	xobjects := resources.Key("XObject")
	if xobjects.IsNull() {
		return nil
	}

	var areas []float64
	for _, name := range xobjects.Keys() {
		obj := xobjects.Key(name)
		if obj.Key("Subtype").Name() != "Image" {
			continue
		}
		w := float64(obj.Key("Width").Int64()) / 2
		h := float64(obj.Key("Height").Int64()) / 2
		if w <= 0 || h <= 0 {
			continue
		}
		areas = append(areas, clamp01(w*h/pageArea))
	}
	return areas
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
