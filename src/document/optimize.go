package document

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PdfcpuOptimizer drops unused and duplicate objects and recompresses
// streams, without rendering anything.
type PdfcpuOptimizer struct{}

func NewPdfcpuOptimizer() *PdfcpuOptimizer {
	//pdfcpu would otherwise create a config dir in the user's home
	api.DisableConfigDir()
	return &PdfcpuOptimizer{}
}

func (o *PdfcpuOptimizer) Optimize(data []byte) ([]byte, error) {
	//api.Optimize writes to the configuration, so every call gets its own
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var buf bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &buf, conf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
