package face

import (
	"image"
	"math"

	"github.com/Ujj1225/hamroform/src/commons"
)

// BoundingBox is a face box in source image pixels.
type BoundingBox struct {
	X1, Y1, X2, Y2 int
}

func (b BoundingBox) Width() int  { return b.X2 - b.X1 }
func (b BoundingBox) Height() int { return b.Y2 - b.Y1 }

// CropWindow is the portrait rectangle, already clamped to the image.
type CropWindow struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (c CropWindow) Rect() image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height)
}

func (c CropWindow) Empty() bool {
	return c.Width <= 0 || c.Height <= 0
}

// Geometry holds the passport photo proportions. The face should fill
// FaceHeightRatio of the crop height, and the eye line (EyeLineInFace
// down the face box) should sit EyeLineInCrop down the crop.
type Geometry struct {
	MinConfidence   float64
	FaceHeightRatio float64
	AspectWidth     float64
	AspectHeight    float64
	EyeLineInFace   float64
	EyeLineInCrop   float64
	InputSize       int
}

func GeometryFrom(s commons.GeometrySettings) Geometry {
	return Geometry{
		MinConfidence:   s.MinConfidence,
		FaceHeightRatio: s.FaceHeightRatio,
		AspectWidth:     s.AspectWidth,
		AspectHeight:    s.AspectHeight,
		EyeLineInFace:   s.EyeLineInFace,
		EyeLineInCrop:   s.EyeLineInCrop,
		InputSize:       s.InputSize,
	}
}

func DefaultGeometry() Geometry {
	return GeometryFrom(commons.DefaultSettings().Geometry)
}

// CropFor derives the portrait window for a face box inside an image of
// width x height pixels. The window is clamped to the image; a window that
// ends up empty yields ErrInvalidCrop.
func (g Geometry) CropFor(box BoundingBox, width, height int) (CropWindow, error) {
	faceHeight := float64(box.Height())

	cropHeight := int(math.Round(faceHeight / g.FaceHeightRatio))
	cropWidth := int(math.Round(float64(cropHeight) * g.AspectWidth / g.AspectHeight))

	centerX := (box.X1 + box.X2) / 2
	eyeLevel := box.Y1 + int(faceHeight*g.EyeLineInFace)
	top := int(math.Floor(float64(eyeLevel) - float64(cropHeight)*g.EyeLineInCrop))

	xStart := max(0, centerX-cropWidth/2)
	yStart := max(0, top)
	xEnd := min(width, xStart+cropWidth)
	yEnd := min(height, yStart+cropHeight)

	window := CropWindow{X: xStart, Y: yStart, Width: xEnd - xStart, Height: yEnd - yStart}
	if window.Empty() {
		return CropWindow{}, commons.NewInvalidCropError(window.X, window.Y, window.Width, window.Height)
	}
	return window, nil
}
