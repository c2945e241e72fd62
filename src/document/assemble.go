package document

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

// FpdfAssembler places each page JPEG on a page of its original size.
type FpdfAssembler struct{}

func (FpdfAssembler) Assemble(pages []Page) ([]byte, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages to assemble")
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: pages[0].WidthPt, Ht: pages[0].HeightPt},
	})
	pdf.SetCompression(true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	opts := fpdf.ImageOptions{ImageType: "JPG"}
	for i, page := range pages {
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: page.WidthPt, Ht: page.HeightPt})

		name := fmt.Sprintf("page-%d", i+1)
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(page.JPEG))
		pdf.ImageOptions(name, 0, 0, page.WidthPt, page.HeightPt, false, opts, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
