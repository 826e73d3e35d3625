//go:build nofitz

package parser

import "github.com/intellinote/intellinote/internal/domain"

// stubRasterizer reports the native backend as unavailable. PDF ingestion
// fails fast with a configuration error instead of silently skipping pages.
type stubRasterizer struct{}

func NewRasterizer() Rasterizer {
	return stubRasterizer{}
}

func (stubRasterizer) Available() bool {
	return false
}

func (stubRasterizer) RenderPage(string, int) ([]byte, error) {
	return nil, domain.ErrParserDependency
}
