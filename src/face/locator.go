package face

import (
	"image"

	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

// RelativeBox is a detector box in [0,1] image coordinates.
type RelativeBox struct {
	XMin, YMin, XMax, YMax float64
}

type Detection struct {
	Confidence float64
	Box        RelativeBox
}

// Detector finds faces. It receives a square InputSize x InputSize image
// and may return detections in any order. Implementations hold a loaded
// model and must be safe for concurrent use.
type Detector interface {
	Detect(img image.Image) ([]Detection, error)
}

type Locator struct {
	detector Detector
	geometry Geometry
}

func NewLocator(detector Detector, geometry Geometry) *Locator {
	return &Locator{detector: detector, geometry: geometry}
}

// Locate returns the most confident face in img, scaled to img pixels.
func (l *Locator) Locate(img image.Image) (BoundingBox, Detection, error) {
	size := l.geometry.InputSize
	input := imaging.Resize(img, size, size, imaging.Linear)

	detections, err := l.detector.Detect(input)
	if err != nil {
		return BoundingBox{}, Detection{}, commons.NewDetectionFailedError(err)
	}
	if len(detections) == 0 {
		return BoundingBox{}, Detection{}, commons.NewNoFaceDetectedError()
	}

	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}

	if best.Confidence < l.geometry.MinConfidence {
		return BoundingBox{}, best, commons.NewLowConfidenceError(best.Confidence, l.geometry.MinConfidence)
	}

	b := img.Bounds()
	return toPixels(best.Box, b.Dx(), b.Dy()), best, nil
}

// LocateAndCrop finds the face and cuts the portrait window out of img.
func (l *Locator) LocateAndCrop(img image.Image) (*image.NRGBA, CropWindow, error) {
	box, detection, err := l.Locate(img)
	if err != nil {
		return nil, CropWindow{}, err
	}

	b := img.Bounds()
	window, err := l.geometry.CropFor(box, b.Dx(), b.Dy())
	if err != nil {
		return nil, CropWindow{}, err
	}

	log.WithFields(log.Fields{
		"confidence": detection.Confidence,
		"face":       box,
		"crop":       window,
	}).Debug("[Face] Located face")

	return imaging.Crop(img, window.Rect().Add(b.Min)), window, nil
}

func toPixels(r RelativeBox, width, height int) BoundingBox {
	return BoundingBox{
		X1: clampInt(int(r.XMin*float64(width)), 0, width),
		Y1: clampInt(int(r.YMin*float64(height)), 0, height),
		X2: clampInt(int(r.XMax*float64(width)), 0, width),
		Y2: clampInt(int(r.YMax*float64(height)), 0, height),
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
