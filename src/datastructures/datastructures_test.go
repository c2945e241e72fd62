package datastructures

import "testing"

func TestDownloadName(t *testing.T) {
	jpeg := &EncodedAsset{MediaType: MediaTypeJPEG}
	pdf := &EncodedAsset{MediaType: MediaTypePDF}

	equals(t, DownloadName(KindPhoto, jpeg), "hamroform_photo.jpg")
	equals(t, DownloadName(KindCustomPhoto, jpeg), "hamroform_custom_photo.jpg")
	equals(t, DownloadName(KindDocument, pdf), "hamroform_document.pdf")
	equals(t, DownloadName(KindCustomDocument, jpeg), "hamroform_custom_document.jpg")
}

func TestAssetKindValid(t *testing.T) {
	equals(t, KindSignature.Valid(), true)
	equals(t, AssetKind("classification").Valid(), false)
}
