package upload

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// Previewer inspects staged PDFs
type Previewer interface {
	// PageCount returns the number of pages in a PDF
	PageCount(pdfData []byte) (int, error)
	// FirstPage renders the first page of a PDF as PNG
	FirstPage(pdfData []byte) ([]byte, error)
}

// FitzPreviewer implements Previewer with MuPDF
type FitzPreviewer struct{}

// PageCount opens the PDF and counts its pages
func (FitzPreviewer) PageCount(pdfData []byte) (int, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return 0, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// FirstPage converts the first page of a PDF to a PNG image
func (FitzPreviewer) FirstPage(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	// Most receipts are a single page
	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
