package commons

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DecodeImage decodes an uploaded raster (jpeg, png, gif, webp, bmp) and
// applies its EXIF orientation, so phone photos come out upright.
func DecodeImage(raw []byte) (image.Image, error) {
	if len(raw) == 0 {
		return nil, NewUndecodableError("image", nil)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, NewUndecodableError("image", err)
	}
	return img, nil
}
