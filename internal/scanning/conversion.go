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

// receiptScanPrompt is shared by every model provider
const receiptScanPrompt = `You are reading a photo or scan of a receipt or invoice. Read all of the text and extract:

1. **Merchant**: the store or business name, usually the largest text at the top (e.g. "CVS Pharmacy", "Walgreens").
2. **Date**: the transaction or invoice date, converted to YYYY-MM-DD.
3. **Total**: the final amount paid ("TOTAL", "Amount Due", "Grand Total"), as a number of dollars (42.75 for $42.75).

Answer with ONLY this JSON object:
{
  "title": "Merchant - short description",
  "date": "YYYY-MM-DD",
  "amount": 0.00
}

Use null for any field you cannot find. No text before or after the JSON and no markdown.`

// toPNG renders any supported receipt file to PNG so every provider sees the
// same input. PDFs render their first page.
func toPNG(data []byte, contentType string) ([]byte, error) {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))

	var img image.Image
	var err error
	switch {
	case mediaType == "image/png" && !isHEIC(data, mediaType):
		return data, nil
	case mediaType == "application/pdf":
		img, err = renderPDF(data)
	case isHEIC(data, mediaType):
		img, err = heic.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	default:
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			err = fmt.Errorf("unsupported image format (supported: JPEG, PNG, GIF, HEIC, PDF): %w", err)
		}
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func renderPDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// isHEIC checks the media type and the ftyp brand at offset 4
func isHEIC(data []byte, mediaType string) bool {
	if strings.Contains(mediaType, "heic") || strings.Contains(mediaType, "heif") {
		return true
	}
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}
