package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/schema"
)

// XLSXExtractor renders each sheet of an Excel workbook as a markdown table
// under a heading carrying the sheet name.
type XLSXExtractor struct{}

// NewXLSXExtractor creates a new XLSXExtractor.
func NewXLSXExtractor() *XLSXExtractor {
	return &XLSXExtractor{}
}

func (e *XLSXExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", &schema.ExtractionError{MediaType: MediaTypeXLSX, Err: err}
	}
	defer f.Close()

	var b strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return "", &schema.ExtractionError{MediaType: MediaTypeXLSX, Err: fmt.Errorf("sheet %q: %w", sheetName, err)}
		}
		if len(rows) == 0 {
			continue
		}

		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("# " + sheetName + "\n\n")

		b.WriteString("| " + strings.Join(rows[0], " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", len(rows[0])) + "\n")
		for _, row := range rows[1:] {
			b.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
	}
	return b.String(), nil
}

var _ interfaces.Extractor = (*XLSXExtractor)(nil)
