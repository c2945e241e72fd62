package document

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"testing"

	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/Ujj1225/hamroform/src/datastructures"
	"github.com/Ujj1225/hamroform/src/encoder"
	"github.com/disintegration/imaging"
)

func scanned(w, h int, seed int64) *image.NRGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 170 + (x/7+y/11)%40 + r.Intn(8)
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(v), G: uint8(v - 5), B: uint8(v - 10), A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	ok(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeSource struct {
	pages    int
	widthPt  float64
	heightPt float64
	scales   []float64
	closed   bool
}

func (f *fakeSource) NumPage() int { return f.pages }

func (f *fakeSource) PageSize(page int) (float64, float64, error) {
	return f.widthPt, f.heightPt, nil
}

func (f *fakeSource) Render(page int, scale float64) (image.Image, error) {
	f.scales = append(f.scales, scale)
	return scanned(int(f.widthPt*scale), int(f.heightPt*scale), int64(page)), nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type fakeRasterizer struct {
	source *fakeSource
	err    error
	opened int
}

func (f *fakeRasterizer) Open(data []byte) (PageSource, error) {
	f.opened++
	if f.err != nil {
		return nil, f.err
	}
	return f.source, nil
}

type fakeOptimizer struct {
	out []byte
	err error
}

func (f fakeOptimizer) Optimize(data []byte) ([]byte, error) {
	return f.out, f.err
}

// shrinkingAssembler never gets below twice the budget.
type shrinkingAssembler struct {
	budget int
	calls  int
}

func (s *shrinkingAssembler) Assemble(pages []Page) ([]byte, error) {
	s.calls++
	return make([]byte, 2*s.budget-s.calls*100), nil
}

func recompressor(r Rasterizer, a Assembler, o Optimizer) *Recompressor {
	settings := commons.DefaultSettings()
	return New(encoder.New(encoder.OptionsFrom(settings.Encoder)), r, a, o, OptionsFrom(settings.Document))
}

func near(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("got: %v, want: %v", got, want)
	}
}

func TestPlanFor(t *testing.T) {
	cases := []struct {
		iteration int
		scale     float64
		usable    float64
	}{
		{0, 2.0, 400},
		{1, 1.7, 350},
		{2, 1.4, 300},
		{3, 1.1, 250},
		{4, 1.0, 250},
	}
	for _, c := range cases {
		plan := PlanFor(c.iteration, 500, 10)
		equals(t, plan.Iteration, c.iteration)
		near(t, plan.RenderScale, c.scale)
		near(t, plan.UsableKB, c.usable)
		near(t, plan.PageKB, c.usable/10)
	}
}

func TestFileExtension(t *testing.T) {
	equals(t, FileExtension("Citizenship.PDF"), "pdf")
	equals(t, FileExtension("scan.back.jpeg"), "jpeg")
	equals(t, FileExtension("README"), "")
	equals(t, normalizeExtension(".JPG"), "jpg")
}

func TestRecompressRasterFits(t *testing.T) {
	r := recompressor(nil, nil, nil)

	asset, err := r.Recompress(context.Background(), pngBytes(t, scanned(800, 600, 1)), "PNG", 200)
	ok(t, err)
	equals(t, asset.MediaType, datastructures.MediaTypeJPEG)
	equals(t, asset.Oversized, false)
	if len(asset.Data) > 200*1024 {
		t.Fatalf("document of %d bytes exceeds budget", len(asset.Data))
	}
	equals(t, asset.Width, 800)
}

func TestRecompressRasterCapsWidth(t *testing.T) {
	r := recompressor(nil, nil, nil)

	asset, err := r.Recompress(context.Background(), pngBytes(t, scanned(2400, 300, 1)), ".jpg", 5000)
	ok(t, err)
	equals(t, asset.Width, 1920)
	equals(t, asset.Height, 240)
	equals(t, asset.Quality, 90)
}

func TestRecompressRasterBestEffort(t *testing.T) {
	r := recompressor(nil, nil, nil)

	asset, err := r.Recompress(context.Background(), pngBytes(t, scanned(1000, 1000, 1)), "jpeg", 1)
	ok(t, err)
	equals(t, asset.Oversized, true)
	equals(t, asset.Quality, 10)
}

func TestRecompressRejectsUnknownFormat(t *testing.T) {
	r := recompressor(nil, nil, nil)

	_, err := r.Recompress(context.Background(), []byte("PK"), "docx", 100)
	equals(t, errors.Is(err, commons.ErrUnsupportedFormat), true)

	//no rasterizer configured
	_, err = r.Recompress(context.Background(), []byte("%PDF-1.4"), "pdf", 100)
	equals(t, errors.Is(err, commons.ErrUnsupportedFormat), true)
}

func TestRecompressRejectsInvalidBudget(t *testing.T) {
	_, err := recompressor(nil, nil, nil).Recompress(context.Background(), []byte{}, "pdf", 0)
	equals(t, errors.Is(err, commons.ErrInvalidParameters), true)
}

func TestRecompressPDFReturnsOptimizedOriginal(t *testing.T) {
	rasterizer := &fakeRasterizer{source: &fakeSource{pages: 1, widthPt: 100, heightPt: 100}}
	r := recompressor(rasterizer, FpdfAssembler{}, fakeOptimizer{out: []byte("%PDF-1.7 small")})

	asset, err := r.Recompress(context.Background(), make([]byte, 4096), "pdf", 10)
	ok(t, err)
	equals(t, string(asset.Data), "%PDF-1.7 small")
	equals(t, asset.MediaType, datastructures.MediaTypePDF)
	equals(t, rasterizer.opened, 0)
}

func TestRecompressPDFTenPages(t *testing.T) {
	source := &fakeSource{pages: 10, widthPt: 200, heightPt: 280}
	r := recompressor(&fakeRasterizer{source: source}, FpdfAssembler{}, fakeOptimizer{err: errors.New("not a PDF")})

	asset, err := r.Recompress(context.Background(), []byte("%PDF-1.4"), "pdf", 500)
	ok(t, err)

	equals(t, asset.MediaType, datastructures.MediaTypePDF)
	equals(t, asset.Oversized, false)
	equals(t, bytes.HasPrefix(asset.Data, []byte("%PDF-")), true)
	if len(asset.Data) > 500*1024 {
		t.Fatalf("PDF of %d bytes exceeds budget", len(asset.Data))
	}
	equals(t, len(source.scales), 10)
	equals(t, source.closed, true)
}

func TestRecompressPDFGivesUpAfterFiveIterations(t *testing.T) {
	source := &fakeSource{pages: 1, widthPt: 50, heightPt: 50}
	assembler := &shrinkingAssembler{budget: 10 * 1024}
	r := recompressor(&fakeRasterizer{source: source}, assembler, nil)

	asset, err := r.Recompress(context.Background(), []byte("%PDF-1.4"), "pdf", 10)
	ok(t, err)

	equals(t, assembler.calls, 5)
	equals(t, asset.Oversized, true)
	equals(t, len(asset.Data), 2*10*1024-500)
	equals(t, source.closed, true)

	want := []float64{2.0, 1.7, 1.4, 1.1, 1.0}
	equals(t, len(source.scales), len(want))
	for i := range want {
		near(t, source.scales[i], want[i])
	}
}

func TestRecompressPDFUnreadable(t *testing.T) {
	r := recompressor(&fakeRasterizer{err: errors.New("no objects found")}, FpdfAssembler{}, nil)
	_, err := r.Recompress(context.Background(), []byte("garbage"), "pdf", 100)
	equals(t, errors.Is(err, commons.ErrUndecodable), true)

	empty := &fakeSource{}
	r = recompressor(&fakeRasterizer{source: empty}, FpdfAssembler{}, nil)
	_, err = r.Recompress(context.Background(), []byte("%PDF-1.4"), "pdf", 100)
	equals(t, errors.Is(err, commons.ErrUndecodable), true)
	equals(t, empty.closed, true)
}

func TestRecompressPDFCancelled(t *testing.T) {
	source := &fakeSource{pages: 3, widthPt: 50, heightPt: 50}
	r := recompressor(&fakeRasterizer{source: source}, FpdfAssembler{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Recompress(ctx, []byte("%PDF-1.4"), "pdf", 100)
	equals(t, errors.Is(err, context.Canceled), true)
	equals(t, source.closed, true)
}

func TestFpdfAssemblerOutputCanBeOptimized(t *testing.T) {
	enc := encoder.New(encoder.Options{})
	var pages []Page
	for i, size := range []image.Point{{120, 160}, {160, 120}} {
		res, err := enc.EncodeAt(imaging.New(size.X, size.Y, color.NRGBA{R: uint8(100 * i), G: 80, B: 60, A: 255}), 80)
		ok(t, err)
		pages = append(pages, Page{JPEG: res.Data, WidthPt: float64(size.X), HeightPt: float64(size.Y)})
	}

	pdf, err := FpdfAssembler{}.Assemble(pages)
	ok(t, err)
	equals(t, bytes.HasPrefix(pdf, []byte("%PDF-")), true)

	optimized, err := NewPdfcpuOptimizer().Optimize(pdf)
	ok(t, err)
	equals(t, bytes.HasPrefix(optimized, []byte("%PDF-")), true)

	_, err = FpdfAssembler{}.Assemble(nil)
	if err == nil {
		t.Fatal("expected an error for an empty page list")
	}
}
