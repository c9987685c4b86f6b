package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

const (
	// MaxFileSizeBytes is the largest input accepted for rasterization (20MB)
	MaxFileSizeBytes = 20 * 1024 * 1024

	// DefaultMaxPages bounds how many PDF pages are recognized per document
	DefaultMaxPages = 5
)

// RawPage is one rasterized page, PNG encoded. It lives only until recognition.
type RawPage struct {
	Index int
	PNG   []byte
}

// Rasterize converts a PDF or image into PNG pages. PDFs contribute at most
// maxPages pages; images always yield exactly one.
func Rasterize(data []byte, contentType string, maxPages int) ([]RawPage, error) {
	const op = "Rasterize"

	if len(data) == 0 {
		return nil, NewOCRError(op, ErrAcquisitionFailure, "empty input")
	}
	if len(data) > MaxFileSizeBytes {
		return nil, NewOCRError(op, ErrAcquisitionFailure, fmt.Sprintf("%v: %d bytes", ErrDocumentTooLarge, len(data)))
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	mimeType := DetectContentType(data, contentType)

	if mimeType == "application/pdf" {
		pages, err := pdfToPages(data, maxPages)
		if err != nil {
			return nil, NewOCRError(op, ErrAcquisitionFailure, err.Error())
		}
		return pages, nil
	}

	page, err := imageToPNG(data, mimeType)
	if err != nil {
		return nil, NewOCRError(op, ErrAcquisitionFailure, err.Error())
	}
	return []RawPage{{Index: 0, PNG: page}}, nil
}

// DetectContentType normalizes the declared MIME type and falls back to
// sniffing the payload when the declaration is missing or generic.
func DetectContentType(data []byte, contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	switch {
	case len(data) >= 4 && string(data[:4]) == "%PDF":
		return "application/pdf"
	case isHEICFormat(data) || isHEICMimeType(mimeType):
		return "image/heic"
	case mimeType == "" || mimeType == "application/octet-stream":
		return "image/jpeg"
	}
	return mimeType
}

func pdfToPages(pdfData []byte, maxPages int) ([]RawPage, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	count := doc.NumPage()
	if count == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	if count > maxPages {
		count = maxPages
	}

	pages := make([]RawPage, 0, count)
	for i := 0; i < count; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", i+1, err)
		}
		encoded, err := encodePNG(img)
		if err != nil {
			return nil, err
		}
		pages = append(pages, RawPage{Index: i, PNG: encoded})
	}
	return pages, nil
}

func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	if mimeType == "image/heic" {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") {
				return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICFormat checks the ftyp box brand at offset 4.
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
