package encoder

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

// ErrNotOpaque is returned for images that still carry transparency.
// JPEG has no alpha channel, so callers must flatten first.
var ErrNotOpaque = errors.New("image has an alpha channel, flatten it before encoding")

// Codec is a lossy encoder with an adjustable quality factor.
type Codec interface {
	Encode(w io.Writer, img image.Image, quality int) error
}

// JPEGCodec encodes baseline JPEG.
type JPEGCodec struct{}

func (JPEGCodec) Encode(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}

type Options struct {
	MaxDimension    int
	MinQuality      int
	MaxQuality      int
	FallbackQuality int
	Codec           Codec
}

// OptionsFrom builds encoder options from the settings file.
func OptionsFrom(s commons.EncoderSettings) Options {
	return Options{
		MaxDimension:    s.MaxDimension,
		MinQuality:      s.MinQuality,
		MaxQuality:      s.MaxQuality,
		FallbackQuality: s.FallbackQuality,
	}
}

// Result describes the encoding that was picked.
type Result struct {
	Data      []byte
	Quality   int
	Width     int
	Height    int
	Attempts  int
	Oversized bool
}

// Encoder fits raster images into a byte budget. It holds no mutable
// state and is safe for concurrent use.
type Encoder struct {
	opts Options
}

func New(opts Options) *Encoder {
	defaults := OptionsFrom(commons.DefaultSettings().Encoder)
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = defaults.MaxDimension
	}
	if opts.MinQuality <= 0 {
		opts.MinQuality = defaults.MinQuality
	}
	if opts.MaxQuality <= 0 {
		opts.MaxQuality = defaults.MaxQuality
	}
	if opts.FallbackQuality <= 0 {
		opts.FallbackQuality = defaults.FallbackQuality
	}
	if opts.Codec == nil {
		opts.Codec = JPEGCodec{}
	}
	return &Encoder{opts: opts}
}

// BudgetBytes converts a budget in kilobytes into a byte ceiling.
func BudgetBytes(kb int) int {
	return kb * 1024
}

// Encode returns the highest quality encoding of img that fits into
// budgetKB. If even the lowest quality is too big, the image is shrunk
// step by step at a fixed low quality. The returned data never exceeds
// the budget; when nothing fits ErrEncodingInfeasible is returned.
func (e *Encoder) Encode(img image.Image, budgetKB int) (*Result, error) {
	if budgetKB <= 0 {
		return nil, commons.NewInvalidParametersError(fmt.Sprintf("Size limit must be positive, got %d KB.", budgetKB))
	}
	if !isOpaque(img) {
		return nil, ErrNotOpaque
	}

	img = e.limitDimension(img)
	target := BudgetBytes(budgetKB)
	attempts := 0

	var best []byte
	bestQuality := 0
	low, high := e.opts.MinQuality, e.opts.MaxQuality
	for low <= high {
		mid := (low + high) / 2
		data, err := e.encode(img, mid)
		if err != nil {
			return nil, err
		}
		attempts++

		if len(data) <= target {
			best, bestQuality = data, mid
			low = mid + 1
		} else {
			high = mid - 1
		}
	}

	b := img.Bounds()
	if best != nil {
		log.WithFields(log.Fields{
			"quality":  bestQuality,
			"bytes":    len(best),
			"budget":   target,
			"attempts": attempts,
		}).Debug("[Encoder] Found quality within budget")
		return &Result{Data: best, Quality: bestQuality, Width: b.Dx(), Height: b.Dy(), Attempts: attempts}, nil
	}

	log.Debug("[Encoder] No quality in range fits ", budgetKB, "KB, falling back to downscaling")
	for pct := 90; pct >= 10; pct -= 20 {
		w, h := b.Dx()*pct/100, b.Dy()*pct/100
		if w < 1 || h < 1 {
			continue
		}
		scaled := imaging.Resize(img, w, h, imaging.Lanczos)
		data, err := e.encode(scaled, e.opts.FallbackQuality)
		if err != nil {
			return nil, err
		}
		attempts++

		if len(data) <= target {
			log.WithFields(log.Fields{
				"scale_pct": pct,
				"bytes":     len(data),
				"budget":    target,
			}).Debug("[Encoder] Downscaled encoding fits")
			return &Result{Data: data, Quality: e.opts.FallbackQuality, Width: w, Height: h, Attempts: attempts}, nil
		}
	}

	return nil, commons.NewEncodingInfeasibleError(budgetKB)
}

// EncodeAt encodes img at a fixed quality without any budget.
func (e *Encoder) EncodeAt(img image.Image, quality int) (*Result, error) {
	if !isOpaque(img) {
		return nil, ErrNotOpaque
	}
	data, err := e.encode(img, quality)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &Result{Data: data, Quality: quality, Width: b.Dx(), Height: b.Dy(), Attempts: 1}, nil
}

// StepDown lowers the quality from start by step until the encoding fits
// budgetKB or floor is reached. Unlike Encode it never fails on budget:
// the smallest attempt is returned with Oversized set.
func (e *Encoder) StepDown(img image.Image, budgetKB, start, step, floor int) (*Result, error) {
	if step <= 0 || floor <= 0 || start < floor {
		return nil, commons.NewInvalidParametersError(fmt.Sprintf("Invalid quality steps %d..%d by %d.", start, floor, step))
	}
	if !isOpaque(img) {
		return nil, ErrNotOpaque
	}

	target := BudgetBytes(budgetKB)
	b := img.Bounds()
	var smallest *Result
	attempts := 0

	for quality := start; ; quality -= step {
		if quality < floor {
			quality = floor
		}
		data, err := e.encode(img, quality)
		if err != nil {
			return nil, err
		}
		attempts++

		if smallest == nil || len(data) < len(smallest.Data) {
			smallest = &Result{Data: data, Quality: quality, Width: b.Dx(), Height: b.Dy()}
		}
		if len(data) <= target {
			return &Result{Data: data, Quality: quality, Width: b.Dx(), Height: b.Dy(), Attempts: attempts}, nil
		}
		if quality == floor {
			break
		}
	}

	log.WithFields(log.Fields{
		"bytes":  len(smallest.Data),
		"budget": target,
	}).Debug("[Encoder] Quality floor reached, returning best effort")
	smallest.Attempts = attempts
	smallest.Oversized = true
	return smallest, nil
}

// limitDimension downscales img so that its larger side is at most MaxDimension.
func (e *Encoder) limitDimension(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= e.opts.MaxDimension && b.Dy() <= e.opts.MaxDimension {
		return img
	}
	return imaging.Fit(img, e.opts.MaxDimension, e.opts.MaxDimension, imaging.Lanczos)
}

func (e *Encoder) encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.opts.Codec.Encode(&buf, img, quality); err != nil {
		return nil, fmt.Errorf("failed to encode at quality %d: %w", quality, err)
	}
	return buf.Bytes(), nil
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return true
}
