package commons

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure class that callers can act on.
type ErrorCode string

const (
	CodeImageTooSmall      ErrorCode = "IMAGE_TOO_SMALL"
	CodeNoFaceDetected     ErrorCode = "NO_FACE_DETECTED"
	CodeLowConfidence      ErrorCode = "LOW_CONFIDENCE"
	CodeInvalidCrop        ErrorCode = "INVALID_CROP"
	CodeEncodingInfeasible ErrorCode = "ENCODING_INFEASIBLE"
	CodeUnsupportedFormat  ErrorCode = "UNSUPPORTED_FORMAT"
	CodeUndecodable        ErrorCode = "UNDECODABLE_INPUT"
	CodeInvalidParameters  ErrorCode = "INVALID_PARAMETERS"
	CodeSegmentationFailed ErrorCode = "SEGMENTATION_FAILED"
	CodeDetectionFailed    ErrorCode = "DETECTION_FAILED"
)

// ProcessingError is the failure type returned by every pipeline.
type ProcessingError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Is matches on the error code so that errors.Is(err, ErrNoFaceDetected)
// holds for any NO_FACE_DETECTED failure regardless of its details.
func (e *ProcessingError) Is(target error) bool {
	t, ok := target.(*ProcessingError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ToMap converts the error into a flat map, e.g. for job results.
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
	}
	for k, v := range e.Details {
		result[k] = v
	}
	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}
	return result
}

// Sentinels for errors.Is.
var (
	ErrImageTooSmall      = &ProcessingError{Code: CodeImageTooSmall}
	ErrNoFaceDetected     = &ProcessingError{Code: CodeNoFaceDetected}
	ErrLowConfidence      = &ProcessingError{Code: CodeLowConfidence}
	ErrInvalidCrop        = &ProcessingError{Code: CodeInvalidCrop}
	ErrEncodingInfeasible = &ProcessingError{Code: CodeEncodingInfeasible}
	ErrUnsupportedFormat  = &ProcessingError{Code: CodeUnsupportedFormat}
	ErrUndecodable        = &ProcessingError{Code: CodeUndecodable}
	ErrInvalidParameters  = &ProcessingError{Code: CodeInvalidParameters}
	ErrSegmentationFailed = &ProcessingError{Code: CodeSegmentationFailed}
	ErrDetectionFailed    = &ProcessingError{Code: CodeDetectionFailed}
)

func NewImageTooSmallError(width, height, minWidth, minHeight int) *ProcessingError {
	return &ProcessingError{
		Code:    CodeImageTooSmall,
		Message: "Image resolution too low. Please upload a clearer image.",
		Details: map[string]interface{}{
			"width":      width,
			"height":     height,
			"min_width":  minWidth,
			"min_height": minHeight,
		},
	}
}

func NewNoFaceDetectedError() *ProcessingError {
	return &ProcessingError{
		Code:    CodeNoFaceDetected,
		Message: "No face detected. Please upload a photo with your face clearly visible.",
	}
}

func NewLowConfidenceError(confidence, threshold float64) *ProcessingError {
	return &ProcessingError{
		Code:    CodeLowConfidence,
		Message: "Face detection confidence too low. Please upload a clearer, well-lit photo.",
		Details: map[string]interface{}{
			"confidence": confidence,
			"threshold":  threshold,
		},
	}
}

func NewInvalidCropError(x, y, width, height int) *ProcessingError {
	return &ProcessingError{
		Code:    CodeInvalidCrop,
		Message: "Invalid face crop. Please make sure your whole face is inside the photo.",
		Details: map[string]interface{}{
			"x":      x,
			"y":      y,
			"width":  width,
			"height": height,
		},
	}
}

func NewEncodingInfeasibleError(budgetKB int) *ProcessingError {
	return &ProcessingError{
		Code:    CodeEncodingInfeasible,
		Message: fmt.Sprintf("Image is too large to compress below %d KB even with extreme resizing.", budgetKB),
		Details: map[string]interface{}{
			"budget_kb": budgetKB,
		},
	}
}

func NewUnsupportedFormatError(extension string) *ProcessingError {
	return &ProcessingError{
		Code:    CodeUnsupportedFormat,
		Message: fmt.Sprintf("Unsupported file format: %q. Please upload a JPG, PNG or PDF file.", extension),
		Details: map[string]interface{}{
			"extension": extension,
		},
	}
}

func NewUndecodableError(what string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:    CodeUndecodable,
		Message: fmt.Sprintf("Couldn't read the uploaded %s. The file may be damaged.", what),
		Cause:   cause,
	}
}

func NewInvalidParametersError(message string) *ProcessingError {
	return &ProcessingError{
		Code:    CodeInvalidParameters,
		Message: message,
	}
}

func NewSegmentationFailedError(cause error) *ProcessingError {
	return &ProcessingError{
		Code:    CodeSegmentationFailed,
		Message: "Background removal failed. Please try again later.",
		Cause:   cause,
	}
}

func NewDetectionFailedError(cause error) *ProcessingError {
	return &ProcessingError{
		Code:    CodeDetectionFailed,
		Message: "Face detection failed. Please try again later.",
		Cause:   cause,
	}
}

// IsUserFacing reports whether err is a failure the uploader can fix
// (bad photo, wrong format, impossible budget) as opposed to a service fault.
func IsUserFacing(err error) bool {
	var pe *ProcessingError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case CodeSegmentationFailed, CodeDetectionFailed:
		return false
	}
	return true
}

// CodeOf returns the error code carried by err, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
