package commons

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings holds every tunable of the processing pipelines. Agencies
// change photo standards now and then, so none of these are hardcoded.
type Settings struct {
	Geometry  GeometrySettings   `yaml:"geometry"`
	Photo     PhotoSettings      `yaml:"photo"`
	Encoder   EncoderSettings    `yaml:"encoder"`
	Signature SignatureSettings  `yaml:"signature"`
	Document  DocumentSettings   `yaml:"document"`
	Matting   MattingSettings    `yaml:"matting"`
	Services  map[string]Service `yaml:"services"`
}

// GeometrySettings are the ICAO-style proportions used to derive a
// portrait crop from a face box.
type GeometrySettings struct {
	MinConfidence   float64 `yaml:"min_confidence"`
	FaceHeightRatio float64 `yaml:"face_height_ratio"`
	AspectWidth     float64 `yaml:"aspect_width"`
	AspectHeight    float64 `yaml:"aspect_height"`
	EyeLineInFace   float64 `yaml:"eye_line_in_face"`
	EyeLineInCrop   float64 `yaml:"eye_line_in_crop"`
	InputSize       int     `yaml:"detector_input_size"`
}

type PhotoSettings struct {
	MinWidth         int     `yaml:"min_width"`
	MinHeight        int     `yaml:"min_height"`
	SharpenSigma     float64 `yaml:"sharpen_sigma"`
	PostSharpenSigma float64 `yaml:"post_sharpen_sigma"`
	ContrastPercent  float64 `yaml:"contrast_percent"`
	UnboundedQuality int     `yaml:"unbounded_quality"`
	// DPI is written into unbudgeted portraits; 0 leaves the density unset.
	DPI              int     `yaml:"dpi"`
	CustomMinSide    int     `yaml:"custom_min_side"`
}

type EncoderSettings struct {
	MaxDimension    int `yaml:"max_dimension"`
	MinQuality      int `yaml:"min_quality"`
	MaxQuality      int `yaml:"max_quality"`
	FallbackQuality int `yaml:"fallback_quality"`
}

type SignatureSettings struct {
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	MaxKB     int     `yaml:"max_kb"`
	BlurSigma float64 `yaml:"blur_sigma"`
}

type DocumentSettings struct {
	MaxWidth     int `yaml:"max_width"`
	StartQuality int `yaml:"start_quality"`
	QualityStep  int `yaml:"quality_step"`
	MinQuality   int `yaml:"min_quality"`
	MaxRetries   int `yaml:"max_retries"`
	CustomMinKB  int `yaml:"custom_min_kb"`
}

// MattingSettings are forwarded to the background segmentation service.
type MattingSettings struct {
	Enabled             bool   `yaml:"enabled"`
	Model               string `yaml:"model"`
	ForegroundThreshold int    `yaml:"foreground_threshold"`
	BackgroundThreshold int    `yaml:"background_threshold"`
	ErodeSize           int    `yaml:"erode_size"`
}

// Service is one row of the per-agency size table.
type Service struct {
	Name       string `yaml:"name" json:"name"`
	PhotoSize  [2]int `yaml:"photo_size" json:"photo_size"`
	PhotoMaxKB int    `yaml:"photo_max_kb" json:"photo_max_kb"`
	DocMaxKB   int    `yaml:"doc_max_kb" json:"doc_max_kb"`
}

// MaxDocumentRetries bounds the PDF loop to five passes (iterations 0..4).
// The render scale and usable budget both hit their floors by then.
const MaxDocumentRetries = 4

// DefaultSettings returns the reference proportions and limits.
func DefaultSettings() *Settings {
	return &Settings{
		Geometry: GeometrySettings{
			MinConfidence:   0.6,
			FaceHeightRatio: 0.70,
			AspectWidth:     35,
			AspectHeight:    45,
			EyeLineInFace:   0.40,
			EyeLineInCrop:   0.55,
			InputSize:       300,
		},
		Photo: PhotoSettings{
			MinWidth:         400,
			MinHeight:        400,
			SharpenSigma:     0.8,
			PostSharpenSigma: 0.4,
			ContrastPercent:  5,
			UnboundedQuality: 95,
			DPI:              300,
			CustomMinSide:    100,
		},
		Encoder: EncoderSettings{
			MaxDimension:    1920,
			MinQuality:      10,
			MaxQuality:      95,
			FallbackQuality: 20,
		},
		Signature: SignatureSettings{
			Width:     300,
			Height:    120,
			MaxKB:     50,
			BlurSigma: 0.8,
		},
		Document: DocumentSettings{
			MaxWidth:     1920,
			StartQuality: 90,
			QualityStep:  5,
			MinQuality:   10,
			MaxRetries:   4,
			CustomMinKB:  5,
		},
		Matting: MattingSettings{
			Enabled:             true,
			Model:               "u2net",
			ForegroundThreshold: 240,
			BackgroundThreshold: 10,
			ErodeSize:           10,
		},
		Services: map[string]Service{},
	}
}

// LoadSettings reads a YAML settings file on top of DefaultSettings.
// An empty path yields the defaults.
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return settings, nil
}

// Validate checks that the settings describe a usable pipeline.
func (s *Settings) Validate() error {
	g := s.Geometry
	if g.MinConfidence < 0 || g.MinConfidence > 1 {
		return fmt.Errorf("geometry.min_confidence must be within [0,1], got %v", g.MinConfidence)
	}
	if g.FaceHeightRatio <= 0 || g.FaceHeightRatio > 1 {
		return fmt.Errorf("geometry.face_height_ratio must be within (0,1], got %v", g.FaceHeightRatio)
	}
	if g.AspectWidth <= 0 || g.AspectHeight <= 0 {
		return fmt.Errorf("geometry.aspect_width and aspect_height must be positive")
	}
	if g.EyeLineInFace < 0 || g.EyeLineInFace > 1 || g.EyeLineInCrop < 0 || g.EyeLineInCrop > 1 {
		return fmt.Errorf("geometry eye line fractions must be within [0,1]")
	}
	if g.InputSize <= 0 {
		return fmt.Errorf("geometry.detector_input_size must be positive")
	}

	p := s.Photo
	if p.MinWidth <= 0 || p.MinHeight <= 0 {
		return fmt.Errorf("photo.min_width and min_height must be positive")
	}
	if p.UnboundedQuality < 1 || p.UnboundedQuality > 100 {
		return fmt.Errorf("photo.unbounded_quality must be within [1,100], got %d", p.UnboundedQuality)
	}
	if p.DPI < 0 || p.DPI > 0xffff {
		return fmt.Errorf("photo.dpi must be within [0,65535], got %d", p.DPI)
	}

	e := s.Encoder
	if e.MinQuality < 1 || e.MaxQuality > 100 || e.MinQuality > e.MaxQuality {
		return fmt.Errorf("encoder quality range [%d,%d] is invalid", e.MinQuality, e.MaxQuality)
	}
	if e.FallbackQuality < 1 || e.FallbackQuality > 100 {
		return fmt.Errorf("encoder.fallback_quality must be within [1,100], got %d", e.FallbackQuality)
	}
	if e.MaxDimension <= 0 {
		return fmt.Errorf("encoder.max_dimension must be positive")
	}

	d := s.Document
	if d.QualityStep <= 0 || d.MinQuality < 1 || d.StartQuality > 100 || d.StartQuality < d.MinQuality {
		return fmt.Errorf("document quality stepping %d..%d step %d is invalid", d.StartQuality, d.MinQuality, d.QualityStep)
	}
	if d.MaxRetries < 0 || d.MaxRetries > MaxDocumentRetries {
		return fmt.Errorf("document.max_retries must be within [0,%d], got %d", MaxDocumentRetries, d.MaxRetries)
	}

	if s.Signature.Width <= 0 || s.Signature.Height <= 0 || s.Signature.MaxKB <= 0 {
		return fmt.Errorf("signature size and budget must be positive")
	}

	for key, svc := range s.Services {
		if svc.PhotoSize[0] <= 0 || svc.PhotoSize[1] <= 0 {
			return fmt.Errorf("services.%s.photo_size must be positive", key)
		}
		if svc.PhotoMaxKB <= 0 || svc.DocMaxKB <= 0 {
			return fmt.Errorf("services.%s budgets must be positive", key)
		}
	}

	return nil
}
