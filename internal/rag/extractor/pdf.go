package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"

	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/schema"
)

// PDFExtractor extracts the plain text layer of a PDF document.
type PDFExtractor struct{}

// NewPDFExtractor creates a new PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The parser panics on some malformed inputs; treat those the same as a
	// parse error so a bad upload cannot take the request down.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &schema.ExtractionError{MediaType: MediaTypePDF, Err: fmt.Errorf("pdf parser panic: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &schema.ExtractionError{MediaType: MediaTypePDF, Err: err}
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", &schema.ExtractionError{MediaType: MediaTypePDF, Err: err}
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", &schema.ExtractionError{MediaType: MediaTypePDF, Err: err}
	}
	return buf.String(), nil
}

var _ interfaces.Extractor = (*PDFExtractor)(nil)
