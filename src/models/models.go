// Package models loads the model handles both programs share.
package models

import (
	"errors"
	"time"

	"github.com/Ujj1225/hamroform/src/background"
	"github.com/Ujj1225/hamroform/src/commons"
	"github.com/Ujj1225/hamroform/src/document"
	"github.com/Ujj1225/hamroform/src/document/mupdf"
	"github.com/Ujj1225/hamroform/src/face/pigodetect"
	"github.com/Ujj1225/hamroform/src/face/tfdetect"
	"github.com/Ujj1225/hamroform/src/processor"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	// ModelDir holds a TensorFlow face graph (graph.pb, model_info.json).
	ModelDir string
	// CascadePath is a pigo facefinder cascade, used if ModelDir is empty.
	CascadePath  string
	RembgURL     string
	RembgTimeout time.Duration
	Matting      commons.MattingSettings
}

// Load opens every configured model. The returned close function releases
// them and must be called on shutdown.
func Load(cfg Config) (processor.Models, func(), error) {
	var m processor.Models
	closeFn := func() {}

	switch {
	case cfg.ModelDir != "":
		detector := tfdetect.NewTensorflowDetector()
		if err := detector.Load(cfg.ModelDir); err != nil {
			return m, closeFn, err
		}
		m.Detector = detector
		closeFn = detector.Close
	case cfg.CascadePath != "":
		detector, err := pigodetect.Load(cfg.CascadePath, pigodetect.DefaultOptions())
		if err != nil {
			return m, closeFn, err
		}
		m.Detector = detector
		log.Info("[Models] Using pigo face detector")
	default:
		return m, closeFn, errors.New("either a model dir or a cascade file is required for face detection")
	}

	if segmenter := newSegmenter(cfg); segmenter != nil {
		m.Segmenter = segmenter
	}

	m.Rasterizer = mupdf.Rasterizer{}
	m.Optimizer = document.NewPdfcpuOptimizer()

	return m, closeFn, nil
}

// newSegmenter returns the rembg client, or nil if no server is configured.
// Alpha matting only changes the request parameters.
func newSegmenter(cfg Config) *background.RembgClient {
	if cfg.RembgURL == "" {
		log.Warn("[Models] Background removal is disabled, portraits keep their background")
		return nil
	}
	if !cfg.Matting.Enabled {
		log.Info("[Models] Alpha matting is disabled")
	}
	return background.NewRembgClient(cfg.RembgURL, cfg.RembgTimeout, background.MattingFrom(cfg.Matting))
}
