package processor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/Ujj1225/hamroform/src/datastructures"
	"github.com/Ujj1225/hamroform/src/face"
	"github.com/disintegration/imaging"
)

func testProcessor() *Processor {
	return New(commons.DefaultSettings(), Models{
		Detector: face.StaticDetector{Detections: []face.Detection{
			{Confidence: 0.9, Box: face.RelativeBox{XMin: 0.375, YMin: 0.25, XMax: 0.625, YMax: 0.625}},
		}},
	})
}

func upload(t *testing.T, w, h int) []byte {
	img := imaging.New(w, h, color.NRGBA{R: 180, G: 170, B: 160, A: 255})
	for y := h / 3; y < h/3+10; y++ {
		for x := w / 4; x < 3*w/4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 20, G: 20, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	ok(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessDispatchesByKind(t *testing.T) {
	p := testProcessor()
	ctx := context.Background()
	raw := upload(t, 600, 800)

	cases := []struct {
		req    datastructures.ProcessRequest
		width  int
		height int
	}{
		{datastructures.ProcessRequest{Kind: datastructures.KindPhoto, Width: 350, Height: 450, MaxKB: 500}, 350, 450},
		{datastructures.ProcessRequest{Kind: datastructures.KindCustomPhoto, Width: 120, Height: 160}, 120, 160},
		{datastructures.ProcessRequest{Kind: datastructures.KindSignature}, 300, 120},
		{datastructures.ProcessRequest{Kind: datastructures.KindDocument, OriginalName: "marksheet.png", MaxKB: 300}, 600, 800},
		{datastructures.ProcessRequest{Kind: datastructures.KindCustomDocument, OriginalName: "marksheet.PNG", MaxKB: 50}, 600, 800},
	}

	for _, c := range cases {
		asset, err := p.Process(ctx, c.req, raw)
		ok(t, err)
		equals(t, asset.MediaType, datastructures.MediaTypeJPEG)

		img, err := imaging.Decode(bytes.NewReader(asset.Data))
		ok(t, err)
		equals(t, img.Bounds(), image.Rect(0, 0, c.width, c.height))
	}
}

func TestCustomLimits(t *testing.T) {
	p := testProcessor()
	raw := upload(t, 600, 800)

	_, err := p.CustomPhoto(context.Background(), raw, 99, 300)
	equals(t, errors.Is(err, commons.ErrInvalidParameters), true)

	_, err = p.CustomDocument(context.Background(), raw, "a.jpg", 4)
	equals(t, errors.Is(err, commons.ErrInvalidParameters), true)

	_, err = p.Photo(context.Background(), raw, 350, 450, 0)
	equals(t, errors.Is(err, commons.ErrInvalidParameters), true)
}

func TestProcessUnknownKind(t *testing.T) {
	_, err := testProcessor().Process(context.Background(), datastructures.ProcessRequest{Kind: "fingerprint"}, nil)
	equals(t, errors.Is(err, commons.ErrInvalidParameters), true)
}

func TestDocumentWithoutRasterizerRejectsPDF(t *testing.T) {
	_, err := testProcessor().Document(context.Background(), []byte("%PDF-1.4"), "form.pdf", 100)
	equals(t, errors.Is(err, commons.ErrUnsupportedFormat), true)
}
