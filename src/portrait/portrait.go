package portrait

import (
	"context"
	"fmt"
	"image"

	"github.com/Ujj1225/hamroform/src/background"
	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/Ujj1225/hamroform/src/datastructures"
	"github.com/Ujj1225/hamroform/src/encoder"
	"github.com/Ujj1225/hamroform/src/face"
	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

type Options struct {
	MinWidth         int
	MinHeight        int
	SharpenSigma     float64
	PostSharpenSigma float64
	ContrastPercent  float64
	UnboundedQuality int
	DPI              int
}

func OptionsFrom(s commons.PhotoSettings) Options {
	return Options{
		MinWidth:         s.MinWidth,
		MinHeight:        s.MinHeight,
		SharpenSigma:     s.SharpenSigma,
		PostSharpenSigma: s.PostSharpenSigma,
		ContrastPercent:  s.ContrastPercent,
		UnboundedQuality: s.UnboundedQuality,
		DPI:              s.DPI,
	}
}

// Pipeline turns an uploaded photo into a passport style portrait.
type Pipeline struct {
	locator   *face.Locator
	segmenter background.Segmenter
	encoder   *encoder.Encoder
	opts      Options
}

// New creates a pipeline. segmenter may be nil, in which case the photo
// keeps its original background.
func New(locator *face.Locator, segmenter background.Segmenter, enc *encoder.Encoder, opts Options) *Pipeline {
	return &Pipeline{locator: locator, segmenter: segmenter, encoder: enc, opts: opts}
}

// MakePortrait crops raw around the face, whitens the background and
// encodes it at exactly size. A budgetKB of 0 means no size limit.
func (p *Pipeline) MakePortrait(ctx context.Context, raw []byte, size image.Point, budgetKB int) (*datastructures.EncodedAsset, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, commons.NewInvalidParametersError(fmt.Sprintf("Invalid photo size %dx%d.", size.X, size.Y))
	}
	if budgetKB < 0 {
		return nil, commons.NewInvalidParametersError(fmt.Sprintf("Size limit must not be negative, got %d KB.", budgetKB))
	}

	img, err := commons.DecodeImage(raw)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() < p.opts.MinWidth || b.Dy() < p.opts.MinHeight {
		return nil, commons.NewImageTooSmallError(b.Dx(), b.Dy(), p.opts.MinWidth, p.opts.MinHeight)
	}

	cropped, window, err := p.locator.LocateAndCrop(img)
	if err != nil {
		return nil, err
	}

	var subject image.Image = cropped
	if p.segmenter != nil {
		subject, err = p.segmenter.RemoveBackground(ctx, cropped)
		if err != nil {
			return nil, err
		}
	}

	portrait := background.Flatten(subject)
	portrait = p.enhance(portrait, size)

	log.WithFields(log.Fields{
		"crop":      window,
		"size":      size,
		"budget_kb": budgetKB,
	}).Debug("[Portrait] Encoding portrait")

	var res *encoder.Result
	if budgetKB == 0 {
		res, err = p.encoder.EncodeAt(portrait, p.opts.UnboundedQuality)
	} else {
		res, err = p.encoder.Encode(portrait, budgetKB)
	}
	if err != nil {
		return nil, err
	}

	// unbudgeted portraits are meant for print
	if budgetKB == 0 && p.opts.DPI > 0 {
		res.Data = encoder.SetDensity(res.Data, p.opts.DPI)
	}

	return &datastructures.EncodedAsset{
		Data:      res.Data,
		MediaType: datastructures.MediaTypeJPEG,
		Width:     res.Width,
		Height:    res.Height,
		Quality:   res.Quality,
	}, nil
}

// enhance sharpens, adds a little contrast and resizes to the exact target.
func (p *Pipeline) enhance(img *image.NRGBA, size image.Point) *image.NRGBA {
	if p.opts.SharpenSigma > 0 {
		img = imaging.Sharpen(img, p.opts.SharpenSigma)
	}
	if p.opts.ContrastPercent != 0 {
		img = imaging.AdjustContrast(img, p.opts.ContrastPercent)
	}
	img = imaging.Resize(img, size.X, size.Y, imaging.Lanczos)
	if p.opts.PostSharpenSigma > 0 {
		img = imaging.Sharpen(img, p.opts.PostSharpenSigma)
	}
	return img
}
