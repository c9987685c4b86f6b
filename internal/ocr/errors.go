package ocr

import (
	"errors"
	"fmt"
)

// Common acquisition and recognition errors
var (
	// ErrAcquisitionFailure is returned when the input cannot be turned into
	// raster pages. It is fatal for the document but never for a batch.
	ErrAcquisitionFailure = errors.New("document could not be read")

	// ErrUnsupportedFormat is returned for content types that are neither PDF nor a known image format.
	ErrUnsupportedFormat = errors.New("unsupported document format: supported formats are PDF, JPEG, PNG, GIF, HEIC, HEIF")

	// ErrDocumentTooLarge is returned when the input exceeds MaxFileSizeBytes.
	ErrDocumentTooLarge = errors.New("document exceeds the maximum size (20MB)")

	// ErrRecognitionFailed is returned by a Recognizer when the OCR service cannot process a page.
	ErrRecognitionFailed = errors.New("text recognition failed")

	// ErrRecognitionLowConfidence marks a result whose average confidence is
	// below the configured floor. It is only ever logged, never returned.
	ErrRecognitionLowConfidence = errors.New("recognition confidence below threshold")

	// ErrMissingCredentials is returned when no Google Cloud credentials can be resolved.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrInvalidConfiguration is returned when a recognizer is missing required settings.
	ErrInvalidConfiguration = errors.New("invalid OCR configuration")

	// ErrQuotaExceeded is returned when the OCR service rejects the call for quota reasons.
	ErrQuotaExceeded = errors.New("OCR service quota exceeded")
)

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "Rasterize", "Recognize").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return NewOCRError(op, err, details)
}
