package document

import (
	"context"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strings"

	"github.com/Ujj1225/hamroform/src/background"
	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/Ujj1225/hamroform/src/datastructures"
	"github.com/Ujj1225/hamroform/src/encoder"
	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

// PageSource is an opened paginated document.
type PageSource interface {
	NumPage() int
	// PageSize returns the page geometry in points.
	PageSize(page int) (width, height float64, err error)
	// Render rasterizes a page at scale times its size in points.
	Render(page int, scale float64) (image.Image, error)
	Close() error
}

type Rasterizer interface {
	Open(data []byte) (PageSource, error)
}

// Page is one compressed page image plus the geometry it is placed at.
type Page struct {
	JPEG     []byte
	WidthPt  float64
	HeightPt float64
}

// Assembler builds a new PDF with one full-bleed image per page.
type Assembler interface {
	Assemble(pages []Page) ([]byte, error)
}

// Optimizer rewrites a PDF without touching its content, dropping unused
// objects and compressing streams.
type Optimizer interface {
	Optimize(data []byte) ([]byte, error)
}

type Options struct {
	MaxWidth     int
	StartQuality int
	QualityStep  int
	MinQuality   int
	MaxRetries   int
}

func OptionsFrom(s commons.DocumentSettings) Options {
	return Options{
		MaxWidth:     s.MaxWidth,
		StartQuality: s.StartQuality,
		QualityStep:  s.QualityStep,
		MinQuality:   s.MinQuality,
		MaxRetries:   s.MaxRetries,
	}
}

// PagePlan is the render scale and per page allowance of one attempt.
type PagePlan struct {
	Iteration   int
	RenderScale float64
	UsableKB    float64
	PageKB      float64
}

// PlanFor returns the plan of the given attempt. Later attempts render
// smaller and keep a larger share of the budget in reserve.
func PlanFor(iteration, budgetKB, pages int) PagePlan {
	usable := float64(budgetKB) * math.Max(0.8-float64(iteration)*0.1, 0.5)
	plan := PagePlan{
		Iteration:   iteration,
		RenderScale: math.Max(2.0-float64(iteration)*0.3, 1.0),
		UsableKB:    usable,
	}
	if pages > 0 {
		plan.PageKB = usable / float64(pages)
	}
	return plan
}

type Recompressor struct {
	encoder    *encoder.Encoder
	rasterizer Rasterizer
	assembler  Assembler
	optimizer  Optimizer
	opts       Options
}

// New creates a recompressor. Without a rasterizer PDFs are rejected as
// unsupported; without an optimizer the precheck is skipped.
func New(enc *encoder.Encoder, rasterizer Rasterizer, assembler Assembler, optimizer Optimizer, opts Options) *Recompressor {
	return &Recompressor{
		encoder:    enc,
		rasterizer: rasterizer,
		assembler:  assembler,
		optimizer:  optimizer,
		opts:       opts,
	}
}

// FileExtension returns the lower case extension of filename without dot.
func FileExtension(filename string) string {
	return normalizeExtension(filepath.Ext(filename))
}

func normalizeExtension(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// Recompress shrinks a scanned document below budgetKB. Images come back
// as JPEG, PDFs as PDF. Neither path fails on budget: if the target
// can't be met the smallest result is returned with Oversized set.
func (r *Recompressor) Recompress(ctx context.Context, raw []byte, ext string, budgetKB int) (*datastructures.EncodedAsset, error) {
	if budgetKB <= 0 {
		return nil, commons.NewInvalidParametersError(fmt.Sprintf("Size limit must be positive, got %d KB.", budgetKB))
	}

	ext = normalizeExtension(ext)
	switch ext {
	case "jpg", "jpeg", "png", "webp", "bmp":
		return r.recompressRaster(raw, budgetKB)
	case "pdf":
		if r.rasterizer == nil || r.assembler == nil {
			return nil, commons.NewUnsupportedFormatError(ext)
		}
		return r.recompressPDF(ctx, raw, budgetKB)
	}
	return nil, commons.NewUnsupportedFormatError(ext)
}

func (r *Recompressor) recompressRaster(raw []byte, budgetKB int) (*datastructures.EncodedAsset, error) {
	img, err := commons.DecodeImage(raw)
	if err != nil {
		return nil, err
	}

	res, err := r.compressRaster(img, budgetKB)
	if err != nil {
		return nil, err
	}

	if res.Oversized {
		log.WithFields(log.Fields{
			"bytes":     len(res.Data),
			"budget_kb": budgetKB,
		}).Warn("[Document] Couldn't reach size limit, returning best effort")
	}

	return &datastructures.EncodedAsset{
		Data:      res.Data,
		MediaType: datastructures.MediaTypeJPEG,
		Width:     res.Width,
		Height:    res.Height,
		Quality:   res.Quality,
		Oversized: res.Oversized,
	}, nil
}

// compressRaster flattens, caps the width and steps the quality down.
func (r *Recompressor) compressRaster(img image.Image, budgetKB int) (*encoder.Result, error) {
	flat := background.Flatten(img)
	if r.opts.MaxWidth > 0 && flat.Bounds().Dx() > r.opts.MaxWidth {
		flat = imaging.Resize(flat, r.opts.MaxWidth, 0, imaging.Lanczos)
	}
	return r.encoder.StepDown(flat, budgetKB, r.opts.StartQuality, r.opts.QualityStep, r.opts.MinQuality)
}

func (r *Recompressor) recompressPDF(ctx context.Context, raw []byte, budgetKB int) (*datastructures.EncodedAsset, error) {
	target := encoder.BudgetBytes(budgetKB)

	if r.optimizer != nil {
		optimized, err := r.optimizer.Optimize(raw)
		if err != nil {
			log.Debug("[Document] Couldn't optimize original: ", err.Error())
		} else if len(optimized) <= target {
			log.Debug("[Document] Original fits after cleanup (", len(optimized), " bytes)")
			return &datastructures.EncodedAsset{Data: optimized, MediaType: datastructures.MediaTypePDF}, nil
		}
	}

	doc, err := r.rasterizer.Open(raw)
	if err != nil {
		return nil, commons.NewUndecodableError("PDF", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	if numPages <= 0 {
		return nil, commons.NewUndecodableError("PDF", fmt.Errorf("document has no pages"))
	}

	var smallest []byte
	for i := 0; i <= r.opts.MaxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		plan := PlanFor(i, budgetKB, numPages)
		data, err := r.renderAndAssemble(ctx, doc, plan)
		if err != nil {
			return nil, err
		}

		log.WithFields(log.Fields{
			"iteration": plan.Iteration,
			"scale":     plan.RenderScale,
			"page_kb":   plan.PageKB,
			"bytes":     len(data),
			"budget":    target,
		}).Debug("[Document] Assembled PDF")

		if smallest == nil || len(data) < len(smallest) {
			smallest = data
		}
		if len(data) <= target {
			return &datastructures.EncodedAsset{Data: data, MediaType: datastructures.MediaTypePDF}, nil
		}
	}

	log.WithFields(log.Fields{
		"bytes":     len(smallest),
		"budget_kb": budgetKB,
		"pages":     numPages,
	}).Warn("[Document] Couldn't reach size limit, returning best effort")

	return &datastructures.EncodedAsset{Data: smallest, MediaType: datastructures.MediaTypePDF, Oversized: true}, nil
}

func (r *Recompressor) renderAndAssemble(ctx context.Context, doc PageSource, plan PagePlan) ([]byte, error) {
	pageKB := max(1, int(plan.PageKB))
	pages := make([]Page, 0, doc.NumPage())

	for n := 0; n < doc.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		width, height, err := doc.PageSize(n)
		if err != nil {
			return nil, commons.NewUndecodableError("PDF", fmt.Errorf("page %d: %w", n+1, err))
		}

		img, err := doc.Render(n, plan.RenderScale)
		if err != nil {
			return nil, commons.NewUndecodableError("PDF", fmt.Errorf("render page %d: %w", n+1, err))
		}

		res, err := r.compressRaster(img, pageKB)
		if err != nil {
			return nil, err
		}
		pages = append(pages, Page{JPEG: res.Data, WidthPt: width, HeightPt: height})
	}

	data, err := r.assembler.Assemble(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble PDF: %w", err)
	}
	return data, nil
}
