package datastructures

import "strings"

// AssetKind selects the pipeline a request runs through.
type AssetKind string

const (
	KindPhoto          AssetKind = "photo"
	KindCustomPhoto    AssetKind = "custom-photo"
	KindSignature      AssetKind = "signature"
	KindDocument       AssetKind = "document"
	KindCustomDocument AssetKind = "custom-document"
)

const (
	MediaTypeJPEG = "image/jpeg"
	MediaTypePDF  = "application/pdf"
)

// EncodedAsset is the output of every pipeline: the bytes plus what they are.
type EncodedAsset struct {
	Data      []byte `json:"data"`
	MediaType string `json:"media_type"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Quality   int    `json:"quality,omitempty"`
	// Oversized is only ever set by the document path, which returns its
	// best effort instead of failing when the budget can't be met.
	Oversized bool `json:"oversized,omitempty"`
}

// Extension returns the file extension matching the media type.
func (a *EncodedAsset) Extension() string {
	if a.MediaType == MediaTypePDF {
		return "pdf"
	}
	return "jpg"
}

// DownloadName is the attachment filename offered for an asset of kind,
// e.g. hamroform_custom_photo.jpg.
func DownloadName(kind AssetKind, asset *EncodedAsset) string {
	return "hamroform_" + strings.ReplaceAll(string(kind), "-", "_") + "." + asset.Extension()
}

func (k AssetKind) Valid() bool {
	switch k {
	case KindPhoto, KindCustomPhoto, KindSignature, KindDocument, KindCustomDocument:
		return true
	}
	return false
}

type ProcessRequest struct {
	Uuid         string    `json:"uuid"`
	Kind         AssetKind `json:"kind"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	MaxKB        int       `json:"max_kb,omitempty"`
	Created      int64     `json:"created"`
}

type ProcessResult struct {
	Uuid      string        `json:"uuid"`
	Kind      AssetKind     `json:"kind"`
	Asset     *EncodedAsset `json:"asset,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	Error     string        `json:"error,omitempty"`
	Finished  int64         `json:"finished"`
}

// ModelInfo describes a frozen detection graph on disk (model_info.json).
type ModelInfo struct {
	Build     int32    `json:"build"`
	Created   string   `json:"created"`
	TrainedOn []string `json:"trained_on"`
	BasedOn   string   `json:"based_on"`

	InputOp  string `json:"input_op"`
	BoxesOp  string `json:"boxes_op"`
	ScoresOp string `json:"scores_op"`
	CountOp  string `json:"count_op"`
}

type ServiceInfo struct {
	Key        string `json:"key"`
	Name       string `json:"name"`
	PhotoSize  [2]int `json:"photo_size"`
	PhotoMaxKB int    `json:"photo_max_kb"`
	DocMaxKB   int    `json:"doc_max_kb"`
}
