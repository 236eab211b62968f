package upload

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// MaxFileSize is the largest PDF accepted for upload
	MaxFileSize = 10 << 20

	pdfMIME = "application/pdf"

	msgNotPDF   = "Please select a PDF file only."
	msgTooLarge = "File size must be less than 10MB."
)

var (
	ErrTooLarge = &RejectionError{Message: msgTooLarge}
	ErrNotPDF   = &RejectionError{Message: msgNotPDF}
)

// RejectionError explains why a selected file was refused before upload
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	return e.Message
}

// CheckSize rejects files over MaxFileSize. It runs before any bytes are read.
func CheckSize(size int64) error {
	if size > MaxFileSize {
		return ErrTooLarge
	}
	return nil
}

// CheckType rejects anything that is not a PDF, judging by the declared
// content type (when one is given) and by sniffing the leading bytes
func CheckType(declared string, head []byte) error {
	if declared != "" {
		mediaType, _, err := mime.ParseMediaType(declared)
		if err != nil {
			return ErrNotPDF
		}
		mediaType = strings.ToLower(mediaType)
		if mediaType != pdfMIME && mediaType != "application/octet-stream" {
			return ErrNotPDF
		}
	}
	if !mimetype.Detect(head).Is(pdfMIME) {
		return ErrNotPDF
	}
	return nil
}
