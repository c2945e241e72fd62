// Package pigodetect is a pure Go face detector built on the pigo cascade.
// It needs no native libraries, which makes it the fallback when no
// TensorFlow model is deployed.
package pigodetect

import (
	"fmt"
	"image"
	"math"
	"os"

	"github.com/Ujj1225/hamroform/src/face"
	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	log "github.com/sirupsen/logrus"
)

type Options struct {
	MinSize      int
	MaxSize      int
	ShiftFactor  float64
	ScaleFactor  float64
	IoUThreshold float64
	// QualityScale maps pigo's unbounded Q score onto [0,1):
	// confidence = 1 - exp(-Q/QualityScale).
	QualityScale float64
}

func DefaultOptions() Options {
	return Options{
		MinSize:      20,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		QualityScale: 10,
	}
}

type PigoDetector struct {
	classifier *pigo.Pigo
	opts       Options
}

func New(cascade []byte, opts Options) (*PigoDetector, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("error unpacking cascade file: %w", err)
	}
	if opts.QualityScale <= 0 {
		opts.QualityScale = DefaultOptions().QualityScale
	}
	return &PigoDetector{classifier: classifier, opts: opts}, nil
}

// Load reads a facefinder cascade from disk.
func Load(path string, opts Options) (*PigoDetector, error) {
	cascade, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read cascade: %w", err)
	}
	return New(cascade, opts)
}

func (d *PigoDetector) Detect(img image.Image) ([]face.Detection, error) {
	src := imaging.Clone(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()
	if cols == 0 || rows == 0 {
		return nil, fmt.Errorf("input image is empty")
	}

	params := pigo.CascadeParams{
		MinSize:     d.opts.MinSize,
		MaxSize:     d.opts.MaxSize,
		ShiftFactor: d.opts.ShiftFactor,
		ScaleFactor: d.opts.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0)
	dets = d.classifier.ClusterDetections(dets, d.opts.IoUThreshold)
	log.Debug("[Face Detector] pigo found ", len(dets), " candidates")

	return toDetections(dets, cols, rows, d.opts.QualityScale), nil
}

func toDetections(dets []pigo.Detection, cols, rows int, qualityScale float64) []face.Detection {
	result := make([]face.Detection, 0, len(dets))
	for _, det := range dets {
		if det.Q <= 0 || det.Scale <= 0 {
			continue
		}
		half := float64(det.Scale) / 2
		result = append(result, face.Detection{
			Confidence: 1 - math.Exp(-float64(det.Q)/qualityScale),
			Box: face.RelativeBox{
				XMin: math.Max(0, (float64(det.Col)-half)/float64(cols)),
				YMin: math.Max(0, (float64(det.Row)-half)/float64(rows)),
				XMax: math.Min(1, (float64(det.Col)+half)/float64(cols)),
				YMax: math.Min(1, (float64(det.Row)+half)/float64(rows)),
			},
		})
	}
	return result
}
