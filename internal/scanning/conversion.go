package scanning

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

// receiptScanPrompt is the shared instruction sent to every vision backend.
const receiptScanPrompt = `Analyze this receipt image.
Extract the receipt date in YYYY-MM-DD format and every purchased item with its quantity (if shown) and price.
Return ONLY a single JSON object. Do not add any text before or after the JSON.
The object must have the following structure:
{
  "date": "YYYY-MM-DD",
  "items": [
    { "item": "Item name", "quantity": 1, "price": 99.99 }
  ]
}

If a quantity is not shown, use 1.
If you cannot read something, skip it.
Do not include discounts, taxes or totals in the list, only the items themselves.
If no date is found, use null for the date.`

// acceptedMediaTypes lists the payload types a scan request may carry.
// Anything else is rejected before the external call is made.
var acceptedMediaTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/gif":       true,
	"image/heic":      true,
	"image/heif":      true,
	"application/pdf": true,
}

// normalizeMediaType lowercases the declared type and strips any parameters
// (e.g. "image/png; charset=binary" -> "image/png").
func normalizeMediaType(contentType string) string {
	mt := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mt, ";"); i != -1 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// checkMediaType fails fast on payload types no backend can handle, so a bad
// upload never costs a paid model call.
func checkMediaType(contentType string) error {
	mt := normalizeMediaType(contentType)
	if !acceptedMediaTypes[mt] {
		return fmt.Errorf("%w: %q", ErrInvalidInput, contentType)
	}
	return nil
}

// prepareImage validates the media type and converts the payload to PNG,
// which every backend accepts. PDFs are rendered (first page), HEIC/HEIF is
// decoded with the pure Go decoder, other formats go through image.Decode.
func prepareImage(imageData []byte, contentType string) ([]byte, error) {
	if err := checkMediaType(contentType); err != nil {
		return nil, err
	}
	mt := normalizeMediaType(contentType)

	if mt == "application/pdf" {
		return pdfToPNG(imageData)
	}
	if mt == "image/png" && !isHEICPayload(imageData) {
		return imageData, nil
	}
	return imageToPNG(imageData, mt)
}

// pdfToPNG renders the first page of a PDF; receipts are single page in
// practice.
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

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

// imageToPNG re-encodes any supported image format as PNG.
func imageToPNG(imageData []byte, mediaType string) ([]byte, error) {
	var img image.Image
	var err error

	if isHEICPayload(imageData) || strings.Contains(mediaType, "hei") {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICPayload sniffs the ftyp box brands phones write into HEIC files,
// since uploads sometimes arrive with a generic or wrong declared type.
func isHEICPayload(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}
