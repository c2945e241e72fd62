package models

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Ujj1225/hamroform/src/commons"
)

func TestLoadRequiresDetector(t *testing.T) {
	_, closeFn, err := Load(Config{})
	equals(t, err != nil, true)
	closeFn()
}

func TestLoadMissingCascade(t *testing.T) {
	_, _, err := Load(Config{CascadePath: filepath.Join(t.TempDir(), "facefinder")})
	equals(t, err != nil, true)
}

func TestLoadMissingModelDir(t *testing.T) {
	_, _, err := Load(Config{ModelDir: t.TempDir()})
	equals(t, err != nil, true)
}

func TestSegmenterWithoutMatting(t *testing.T) {
	matting := commons.DefaultSettings().Matting
	matting.Enabled = false

	segmenter := newSegmenter(Config{RembgURL: "http://127.0.0.1:7000", RembgTimeout: time.Second, Matting: matting})
	equals(t, segmenter != nil, true)
}

func TestSegmenterRequiresURL(t *testing.T) {
	segmenter := newSegmenter(Config{Matting: commons.DefaultSettings().Matting})
	equals(t, segmenter == nil, true)
}
