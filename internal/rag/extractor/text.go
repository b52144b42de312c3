package extractor

import (
	"context"
	"strings"

	"ragserver/internal/rag/interfaces"
)

// TextExtractor handles plain text and markdown. It normalizes line endings
// to LF and replaces invalid UTF-8 sequences with the replacement character,
// so downstream rune-based chunking always sees well-formed text.
type TextExtractor struct{}

// NewTextExtractor creates a new TextExtractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (e *TextExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := strings.ToValidUTF8(string(data), "�")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text, nil
}

var _ interfaces.Extractor = (*TextExtractor)(nil)
