//go:build !nofitz

package parser

import (
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// fitzRasterizer renders pages through MuPDF. Built by default; the nofitz
// build tag swaps in a stub for cgo-free builds.
type fitzRasterizer struct{}

func NewRasterizer() Rasterizer {
	return fitzRasterizer{}
}

func (fitzRasterizer) Available() bool {
	return true
}

func (fitzRasterizer) RenderPage(path string, pageNumber int) ([]byte, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf for rendering: %w", err)
	}
	defer doc.Close()

	png, err := doc.ImagePNG(pageNumber-1, 144)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageNumber, err)
	}
	return png, nil
}
