package face

import "image"

// StaticDetector reports the same detections for every image. It stands
// in for a model when none is configured, e.g. in tests.
type StaticDetector struct {
	Detections []Detection
	Err        error
}

func (s StaticDetector) Detect(img image.Image) ([]Detection, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Detections, nil
}
