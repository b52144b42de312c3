package extractor

import (
	"context"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/schema"
)

// HTMLExtractor converts HTML to markdown, keeping headings and list
// structure in the text so chunk boundaries tend to fall on them.
type HTMLExtractor struct{}

// NewHTMLExtractor creates a new HTMLExtractor.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{}
}

func (e *HTMLExtractor) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := htmltomarkdown.ConvertString(string(data))
	if err != nil {
		return "", &schema.ExtractionError{MediaType: MediaTypeHTML, Err: err}
	}
	return text, nil
}

var _ interfaces.Extractor = (*HTMLExtractor)(nil)
