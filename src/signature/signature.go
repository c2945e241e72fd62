package signature

import (
	"fmt"
	"image"

	"github.com/Ujj1225/hamroform/src/background"
	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/Ujj1225/hamroform/src/datastructures"
	"github.com/Ujj1225/hamroform/src/encoder"
	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

type Options struct {
	Width     int
	Height    int
	MaxKB     int
	BlurSigma float64
}

func OptionsFrom(s commons.SignatureSettings) Options {
	return Options{Width: s.Width, Height: s.Height, MaxKB: s.MaxKB, BlurSigma: s.BlurSigma}
}

// Binarizer turns scanned signatures into black ink on white paper.
type Binarizer struct {
	encoder *encoder.Encoder
	opts    Options
}

func New(enc *encoder.Encoder, opts Options) *Binarizer {
	return &Binarizer{encoder: enc, opts: opts}
}

// Binarize thresholds raw, trims the paper around the ink and encodes
// the result at size within budgetKB. Zero values fall back to the
// configured 300x120 / 50 KB.
func (s *Binarizer) Binarize(raw []byte, size image.Point, budgetKB int) (*datastructures.EncodedAsset, error) {
	if size.X == 0 && size.Y == 0 {
		size = image.Pt(s.opts.Width, s.opts.Height)
	}
	if budgetKB == 0 {
		budgetKB = s.opts.MaxKB
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, commons.NewInvalidParametersError(fmt.Sprintf("Invalid signature size %dx%d.", size.X, size.Y))
	}

	img, err := commons.DecodeImage(raw)
	if err != nil {
		return nil, err
	}

	gray := imaging.Grayscale(background.Flatten(img))
	if s.opts.BlurSigma > 0 {
		gray = imaging.Blur(gray, s.opts.BlurSigma)
	}

	hist := histogram(gray)
	threshold := Otsu(hist)
	ink := binarize(gray, threshold)

	if mean(ink) < 127 {
		invert(ink)
	}

	bounds := inkBounds(ink)
	log.WithFields(log.Fields{
		"threshold": threshold,
		"ink":       bounds,
	}).Debug("[Signature] Binarized signature")

	trimmed := imaging.Crop(ink, bounds)
	resized := imaging.Resize(trimmed, size.X, size.Y, imaging.Lanczos)
	canvas := imaging.Paste(imaging.New(size.X, size.Y, background.White), resized, image.Pt(0, 0))

	res, err := s.encoder.Encode(canvas, budgetKB)
	if err != nil {
		return nil, err
	}

	return &datastructures.EncodedAsset{
		Data:      res.Data,
		MediaType: datastructures.MediaTypeJPEG,
		Width:     res.Width,
		Height:    res.Height,
		Quality:   res.Quality,
	}, nil
}

// Otsu returns the threshold t that maximizes the between-class variance
// when splitting hist into [0,t] and (t,255].
func Otsu(hist [256]int) uint8 {
	total := 0
	sum := 0.0
	for i, n := range hist {
		total += n
		sum += float64(i * n)
	}
	if total == 0 {
		return 0
	}

	var (
		best     uint8
		bestVar  = -1.0
		weightBg = 0
		sumBg    = 0.0
	)
	for t := 0; t < 256; t++ {
		weightBg += hist[t]
		if weightBg == 0 {
			continue
		}
		weightFg := total - weightBg
		if weightFg == 0 {
			break
		}
		sumBg += float64(t * hist[t])

		meanBg := sumBg / float64(weightBg)
		meanFg := (sum - sumBg) / float64(weightFg)
		between := float64(weightBg) * float64(weightFg) * (meanBg - meanFg) * (meanBg - meanFg)
		if between > bestVar {
			bestVar = between
			best = uint8(t)
		}
	}
	return best
}

// histogram counts the gray levels of an image whose channels are equal.
func histogram(gray *image.NRGBA) [256]int {
	var hist [256]int
	for i := 0; i < len(gray.Pix); i += 4 {
		hist[gray.Pix[i]]++
	}
	return hist
}

// binarize maps pixels brighter than t to white and the rest to black.
func binarize(gray *image.NRGBA, t uint8) *image.NRGBA {
	out := image.NewNRGBA(gray.Bounds())
	for i := 0; i < len(gray.Pix); i += 4 {
		v := uint8(0)
		if gray.Pix[i] > t {
			v = 255
		}
		out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = v, v, v, 255
	}
	return out
}

func mean(img *image.NRGBA) float64 {
	n := len(img.Pix) / 4
	if n == 0 {
		return 0
	}
	sum := 0
	for i := 0; i < len(img.Pix); i += 4 {
		sum += int(img.Pix[i])
	}
	return float64(sum) / float64(n)
}

func invert(img *image.NRGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		v := 255 - img.Pix[i]
		img.Pix[i], img.Pix[i+1], img.Pix[i+2] = v, v, v
	}
}

// inkBounds is the bounding box of the black pixels, or the whole image
// if there are none.
func inkBounds(img *image.NRGBA) image.Rectangle {
	b := img.Bounds()
	found := false
	box := image.Rectangle{}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := (y - b.Min.Y) * img.Stride
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.Pix[row+(x-b.Min.X)*4] != 0 {
				continue
			}
			px := image.Rect(x, y, x+1, y+1)
			if !found {
				box, found = px, true
			} else {
				box = box.Union(px)
			}
		}
	}
	if !found {
		return b
	}
	return box
}
