// Package mupdf rasterizes PDF pages with MuPDF (cgo).
package mupdf

import (
	"fmt"
	"image"
	"sync"

	"github.com/Ujj1225/hamroform/src/document"
	"github.com/gen2brain/go-fitz"
)

type Rasterizer struct{}

func (Rasterizer) Open(data []byte) (document.PageSource, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return &source{doc: doc}, nil
}

// source serializes access to the document, MuPDF contexts aren't safe
// for concurrent use.
type source struct {
	mu  sync.Mutex
	doc *fitz.Document
}

func (s *source) NumPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.NumPage()
}

func (s *source) PageSize(page int) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bound, err := s.doc.Bound(page)
	if err != nil {
		return 0, 0, err
	}
	if bound.Empty() {
		return 0, 0, fmt.Errorf("page %d has no area", page+1)
	}
	return float64(bound.Dx()), float64(bound.Dy()), nil
}

// Render draws the page at 72*scale DPI, so scale 1 yields one pixel per point.
func (s *source) Render(page int, scale float64) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, err := s.doc.ImageDPI(page, 72*scale)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (s *source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Close()
}
