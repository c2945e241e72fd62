package encoder

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"io"
	"math/rand"
	"testing"

	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/disintegration/imaging"
)

// sizeCodec produces header + quality*pixels/100 bytes, a strictly
// monotonic stand-in for a real lossy codec.
type sizeCodec struct {
	header int
	calls  []int
}

func (c *sizeCodec) Encode(w io.Writer, img image.Image, quality int) error {
	c.calls = append(c.calls, quality)
	b := img.Bounds()
	n := c.header + quality*b.Dx()*b.Dy()/100
	_, err := w.Write(make([]byte, n))
	return err
}

func solid(w, h int) *image.NRGBA {
	return imaging.New(w, h, color.NRGBA{R: 120, G: 130, B: 140, A: 255})
}

// noisy is a gradient with mild grain, roughly as hard to compress as a photo.
func noisy(w, h int) *image.NRGBA {
	r := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			grain := r.Intn(17) - 8
			img.SetNRGBA(x, y, color.NRGBA{
				R: clamp(x*255/w + grain),
				G: clamp(y*255/h + grain),
				B: clamp((x+y)*127/(w+h) + 64 + grain),
				A: 255,
			})
		}
	}
	return img
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func TestEncodePicksHighestFittingQuality(t *testing.T) {
	codec := &sizeCodec{}
	enc := New(Options{Codec: codec})

	//100x100 -> quality*100 bytes, 5KB = 5120 bytes -> quality 51
	res, err := enc.Encode(solid(100, 100), 5)
	ok(t, err)
	equals(t, res.Quality, 51)
	equals(t, len(res.Data), 5100)
	equals(t, res.Width, 100)

	if res.Attempts > 7 {
		t.Fatalf("binary search took %d attempts", res.Attempts)
	}
	for _, q := range codec.calls {
		if q < 10 || q > 95 {
			t.Fatalf("quality %d outside of search range", q)
		}
	}
}

func TestEncodeMaxQualityWhenEverythingFits(t *testing.T) {
	enc := New(Options{Codec: &sizeCodec{}})
	res, err := enc.Encode(solid(10, 10), 500)
	ok(t, err)
	equals(t, res.Quality, 95)
}

func TestEncodeFallsBackToDownscaling(t *testing.T) {
	enc := New(Options{Codec: &sizeCodec{}})

	//200x200 at quality 10 needs 4000 bytes, only 30% at quality 20 fits into 1KB
	res, err := enc.Encode(solid(200, 200), 1)
	ok(t, err)
	equals(t, res.Quality, 20)
	equals(t, res.Width, 60)
	equals(t, res.Height, 60)
	if len(res.Data) > 1024 {
		t.Fatalf("result of %d bytes exceeds budget", len(res.Data))
	}
}

func TestEncodeInfeasible(t *testing.T) {
	enc := New(Options{Codec: &sizeCodec{header: 2000}})
	res, err := enc.Encode(solid(50, 50), 1)
	equals(t, errors.Is(err, commons.ErrEncodingInfeasible), true)
	equals(t, res == nil, true)
}

func TestEncodeRejectsInvalidBudget(t *testing.T) {
	enc := New(Options{})
	_, err := enc.Encode(solid(10, 10), 0)
	equals(t, errors.Is(err, commons.ErrInvalidParameters), true)

	_, err = enc.Encode(solid(10, 10), -3)
	equals(t, errors.Is(err, commons.ErrInvalidParameters), true)
}

func TestEncodeRejectsTransparentImage(t *testing.T) {
	enc := New(Options{})
	img := solid(10, 10)
	img.Set(3, 3, color.NRGBA{A: 0})

	_, err := enc.Encode(img, 50)
	equals(t, err, ErrNotOpaque)
}

func TestEncodeLimitsDimension(t *testing.T) {
	enc := New(Options{Codec: &sizeCodec{}})
	res, err := enc.Encode(solid(2400, 1200), 100000)
	ok(t, err)
	equals(t, res.Width, 1920)
	equals(t, res.Height, 960)
}

func TestEncodeJPEGStaysWithinBudget(t *testing.T) {
	enc := New(Options{})
	img := noisy(600, 800)

	for _, kb := range []int{20, 50, 200} {
		res, err := enc.Encode(img, kb)
		ok(t, err)
		if len(res.Data) > BudgetBytes(kb) {
			t.Fatalf("%d KB budget exceeded: %d bytes", kb, len(res.Data))
		}

		decoded, err := imaging.Decode(bytes.NewReader(res.Data))
		ok(t, err)
		equals(t, decoded.Bounds().Dx(), res.Width)
	}
}

func TestReencodingCompliantOutputStaysCompliant(t *testing.T) {
	enc := New(Options{})

	first, err := enc.Encode(noisy(350, 450), 50)
	ok(t, err)

	decoded, err := imaging.Decode(bytes.NewReader(first.Data))
	ok(t, err)

	second, err := enc.Encode(decoded, 50)
	ok(t, err)
	if len(second.Data) > BudgetBytes(50) {
		t.Fatalf("re-encoded output of %d bytes exceeds budget", len(second.Data))
	}
	equals(t, second.Width, 350)
	equals(t, second.Height, 450)
}

func TestStepDownFirstFit(t *testing.T) {
	codec := &sizeCodec{}
	enc := New(Options{Codec: codec})

	//100x100 -> quality*100 bytes, 6KB fits at quality 60
	res, err := enc.StepDown(solid(100, 100), 6, 90, 5, 10)
	ok(t, err)
	equals(t, res.Quality, 60)
	equals(t, res.Oversized, false)
	equals(t, codec.calls, []int{90, 85, 80, 75, 70, 65, 60})
}

func TestStepDownReturnsSmallestWhenNothingFits(t *testing.T) {
	codec := &sizeCodec{header: 5000}
	enc := New(Options{Codec: codec})

	res, err := enc.StepDown(solid(100, 100), 1, 90, 25, 10)
	ok(t, err)
	equals(t, res.Oversized, true)
	equals(t, res.Quality, 10)
	equals(t, codec.calls, []int{90, 65, 40, 15, 10})
}

func TestEncodeAt(t *testing.T) {
	res, err := New(Options{}).EncodeAt(noisy(40, 30), 95)
	ok(t, err)
	equals(t, res.Quality, 95)
	equals(t, res.Width, 40)
	equals(t, res.Height, 30)

	_, err = imaging.Decode(bytes.NewReader(res.Data))
	ok(t, err)
}

func TestSetDensity(t *testing.T) {
	res, err := New(Options{}).EncodeAt(noisy(40, 30), 95)
	ok(t, err)
	equals(t, Density(res.Data), 0)

	withDPI := SetDensity(res.Data, 300)
	equals(t, Density(withDPI), 300)
	equals(t, len(withDPI), len(res.Data)+18)

	img, err := imaging.Decode(bytes.NewReader(withDPI))
	ok(t, err)
	equals(t, img.Bounds(), image.Rect(0, 0, 40, 30))

	//an existing header is updated, not duplicated
	again := SetDensity(withDPI, 72)
	equals(t, Density(again), 72)
	equals(t, len(again), len(withDPI))
	equals(t, Density(withDPI), 300)

	equals(t, SetDensity([]byte("%PDF-1.4"), 300), []byte("%PDF-1.4"))
}
