// Package processor wires the pipelines together and exposes one entry
// point per kind of upload. Both the API and the worker go through it.
package processor

import (
	"context"
	"fmt"
	"image"

	"github.com/Ujj1225/hamroform/src/background"
	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/Ujj1225/hamroform/src/datastructures"
	"github.com/Ujj1225/hamroform/src/document"
	"github.com/Ujj1225/hamroform/src/encoder"
	"github.com/Ujj1225/hamroform/src/face"
	"github.com/Ujj1225/hamroform/src/portrait"
	"github.com/Ujj1225/hamroform/src/signature"
)

// Models are the loaded model handles. They are created once at startup
// and shared read-only by every request.
type Models struct {
	Detector   face.Detector
	Segmenter  background.Segmenter
	Rasterizer document.Rasterizer
	Optimizer  document.Optimizer
}

type Processor struct {
	portrait  *portrait.Pipeline
	signature *signature.Binarizer
	document  *document.Recompressor

	customMinSide int
	customMinKB   int
}

func New(settings *commons.Settings, models Models) *Processor {
	enc := encoder.New(encoder.OptionsFrom(settings.Encoder))
	locator := face.NewLocator(models.Detector, face.GeometryFrom(settings.Geometry))

	return &Processor{
		portrait:      portrait.New(locator, models.Segmenter, enc, portrait.OptionsFrom(settings.Photo)),
		signature:     signature.New(enc, signature.OptionsFrom(settings.Signature)),
		document:      document.New(enc, models.Rasterizer, document.FpdfAssembler{}, models.Optimizer, document.OptionsFrom(settings.Document)),
		customMinSide: settings.Photo.CustomMinSide,
		customMinKB:   settings.Document.CustomMinKB,
	}
}

// Photo makes an agency portrait of width x height within maxKB.
func (p *Processor) Photo(ctx context.Context, raw []byte, width, height, maxKB int) (*datastructures.EncodedAsset, error) {
	if maxKB <= 0 {
		return nil, commons.NewInvalidParametersError(fmt.Sprintf("Size limit must be positive, got %d KB.", maxKB))
	}
	return p.portrait.MakePortrait(ctx, raw, image.Pt(width, height), maxKB)
}

// CustomPhoto makes a portrait of any size, without a size limit.
func (p *Processor) CustomPhoto(ctx context.Context, raw []byte, width, height int) (*datastructures.EncodedAsset, error) {
	if width < p.customMinSide || height < p.customMinSide {
		return nil, commons.NewInvalidParametersError(fmt.Sprintf("Minimum size %dpx required.", p.customMinSide))
	}
	return p.portrait.MakePortrait(ctx, raw, image.Pt(width, height), 0)
}

func (p *Processor) Signature(raw []byte) (*datastructures.EncodedAsset, error) {
	return p.signature.Binarize(raw, image.Point{}, 0)
}

// Document recompresses an uploaded document; filename decides the format.
func (p *Processor) Document(ctx context.Context, raw []byte, filename string, maxKB int) (*datastructures.EncodedAsset, error) {
	return p.document.Recompress(ctx, raw, document.FileExtension(filename), maxKB)
}

func (p *Processor) CustomDocument(ctx context.Context, raw []byte, filename string, maxKB int) (*datastructures.EncodedAsset, error) {
	if maxKB < p.customMinKB {
		return nil, commons.NewInvalidParametersError(fmt.Sprintf("Minimum %dKB allowed.", p.customMinKB))
	}
	return p.Document(ctx, raw, filename, maxKB)
}

// Process runs a queued request. Agency requests carry the resolved
// photo size and budget.
func (p *Processor) Process(ctx context.Context, req datastructures.ProcessRequest, raw []byte) (*datastructures.EncodedAsset, error) {
	switch req.Kind {
	case datastructures.KindPhoto:
		return p.Photo(ctx, raw, req.Width, req.Height, req.MaxKB)
	case datastructures.KindCustomPhoto:
		return p.CustomPhoto(ctx, raw, req.Width, req.Height)
	case datastructures.KindSignature:
		return p.Signature(raw)
	case datastructures.KindDocument:
		return p.Document(ctx, raw, req.OriginalName, req.MaxKB)
	case datastructures.KindCustomDocument:
		return p.CustomDocument(ctx, raw, req.OriginalName, req.MaxKB)
	}
	return nil, commons.NewInvalidParametersError(fmt.Sprintf("Unknown request kind %q.", req.Kind))
}
