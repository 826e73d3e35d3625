package parser

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/intellinote/intellinote/internal/config"
	"github.com/intellinote/intellinote/internal/domain"
)

// PageLayout is the structural view of one PDF page: positioned text blocks
// plus coarse estimates of embedded-image and vector-graphic coverage.
type PageLayout struct {
	Width        float64
	Height       float64
	Blocks       []TextBlock
	ImageAreas   []float64
	DrawingCount int
	VectorRatio  float64
}

// ImageRatio is the total estimated embedded-image coverage, clamped to 1.
func (l *PageLayout) ImageRatio() float64 {
	var total float64
	for _, a := range l.ImageAreas {
		total += a
	}
	if total > 1 {
		return 1
	}
	return total
}

// StructureDoc exposes per-page layout for an open PDF.
type StructureDoc interface {
	NumPages() int
	Page(number int) (*PageLayout, error)
	Close() error
}

// StructureBackend opens PDFs for structural text extraction.
type StructureBackend interface {
	Open(path string) (StructureDoc, error)
}

// Rasterizer renders PDF pages to PNG for the OCR and vision paths.
type Rasterizer interface {
	Available() bool
	RenderPage(path string, pageNumber int) ([]byte, error)
}

// VisionProvider is the remote model used for scanned-page OCR and visual
// descriptions.
type VisionProvider interface {
	Enabled() bool
	ExtractPageText(ctx context.Context, png []byte, pageNumber int) (string, error)
	DescribeImage(ctx context.Context, png []byte) (string, error)
}

// PDFParser implements the hybrid PDF path: direct text with multi-column
// reconstruction per page, OCR fallback for scanned pages, and vision
// augmentation for image-heavy pages.
type PDFParser struct {
	backend    StructureBackend
	rasterizer Rasterizer
	vision     VisionProvider
	opts       config.PDFOptions
}

func NewPDFParser(backend StructureBackend, rasterizer Rasterizer, vision VisionProvider, opts config.PDFOptions) *PDFParser {
	return &PDFParser{backend: backend, rasterizer: rasterizer, vision: vision, opts: opts}
}

func (p *PDFParser) Parse(ctx context.Context, path, filename string) ([]Page, ParseStats, error) {
	stats := ParseStats{Parser: "pdf_hybrid"}

	if p.rasterizer == nil || !p.rasterizer.Available() {
		return nil, stats, fmt.Errorf("%w: %s", domain.ErrParserDependency, filename)
	}

	doc, err := p.backend.Open(path)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	stats.TotalPages = doc.NumPages()
	var pages []Page

	for n := 1; n <= stats.TotalPages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		layout, err := doc.Page(n)
		if err != nil {
			return nil, stats, fmt.Errorf("failed to read page %d: %w", n, err)
		}

		raw := strings.TrimSpace(ReconstructColumns(layout.Blocks, layout.Width, p.opts.ColumnGapRatio, p.opts.MaxColumns))
		imageRatio := layout.ImageRatio()

		text := raw
		usedOCR := false
		if !p.looksLikeTextPage(raw) && p.shouldTryOCR(raw, imageRatio, n) {
			ocrText := p.ocrPage(ctx, path, n)
			if ocrText != "" {
				text = ocrText
				usedOCR = true
			}
		}

		visionText := ""
		if p.shouldTryVision(raw, usedOCR, n) {
			visionText = p.describePage(ctx, path, layout, n)
		}
		if visionText != "" {
			if text != "" {
				text += "\n\n"
			}
			text += "Visual insights:\n" + visionText
		}

		if strings.TrimSpace(text) == "" {
			stats.SkippedPages++
			continue
		}

		switch {
		case usedOCR:
			stats.OCRPages++
		default:
			stats.TextPages++
		}
		if visionText != "" {
			stats.VisionPages++
		}

		pages = append(pages, Page{
			Number:      n,
			Text:        text,
			UsedOCR:     usedOCR,
			UsedVision:  visionText != "",
			ImageRatio:  imageRatio,
			VectorRatio: layout.VectorRatio,
		})
	}

	if len(pages) == 0 {
		return nil, stats, fmt.Errorf("%w: %s", domain.ErrEmptyDocument, filename)
	}

	return pages, stats, nil
}

func (p *PDFParser) looksLikeTextPage(text string) bool {
	minChars := p.opts.TextPageMinChars
	if minChars < 1 {
		minChars = 1
	}
	return len(text) >= minChars
}

// shouldTryOCR gates the expensive OCR call: the page must look scanned
// (little text, high image coverage) and fall within the page budget.
func (p *PDFParser) shouldTryOCR(text string, imageRatio float64, pageNumber int) bool {
	if p.vision == nil || !p.vision.Enabled() {
		return false
	}
	if pageNumber > p.opts.OCRMaxPages {
		return false
	}
	return len(text) <= p.opts.ScanPageMaxChars && imageRatio >= p.opts.ImageRatioThreshold
}

// shouldTryVision gates visual descriptions: OCR'd and textless pages always
// qualify inside the page budget, plain text pages only when opted in.
func (p *PDFParser) shouldTryVision(raw string, usedOCR bool, pageNumber int) bool {
	if p.vision == nil || !p.vision.Enabled() {
		return false
	}
	if pageNumber > p.opts.VisionMaxPages {
		return false
	}
	if usedOCR || raw == "" {
		return true
	}
	return p.opts.VisionOnTextPages
}

// ocrPage renders the page and asks the remote model for its text. Failures
// degrade to empty text; the page proceeds with whatever it has.
func (p *PDFParser) ocrPage(ctx context.Context, path string, pageNumber int) string {
	png, err := p.rasterizer.RenderPage(path, pageNumber)
	if err != nil {
		log.Printf("pdf ocr: render page %d failed: %v", pageNumber, err)
		return ""
	}
	text, err := p.vision.ExtractPageText(ctx, png, pageNumber)
	if err != nil {
		log.Printf("pdf ocr: page %d failed: %v", pageNumber, err)
		return ""
	}
	return strings.TrimSpace(text)
}

// describePage decides whether the page has visual content worth describing
// and, if so, sends one rendered view of it to the vision model. Candidate
// counting follows embedded-image coverage; pages with no extractable images
// but heavy vector graphics fall back to the whole-page render.
func (p *PDFParser) describePage(ctx context.Context, path string, layout *PageLayout, pageNumber int) string {
	candidates := 0
	for _, area := range layout.ImageAreas {
		if area >= p.opts.VisionMinImageRatio {
			candidates++
		}
	}
	if candidates > p.opts.VisionMaxImagesPerPage {
		candidates = p.opts.VisionMaxImagesPerPage
	}

	if candidates == 0 {
		if layout.VectorRatio < p.opts.VectorRatioThreshold && layout.DrawingCount < p.opts.DrawingCountMin {
			return ""
		}
	}

	png, err := p.rasterizer.RenderPage(path, pageNumber)
	if err != nil {
		log.Printf("pdf vision: render page %d failed: %v", pageNumber, err)
		return ""
	}
	desc, err := p.vision.DescribeImage(ctx, png)
	if err != nil {
		log.Printf("pdf vision: page %d failed: %v", pageNumber, err)
		return ""
	}
	return strings.TrimSpace(desc)
}
