package extractor

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/schema"
)

// Canonical media types the default registry handles.
const (
	MediaTypeText     = "text/plain"
	MediaTypeMarkdown = "text/markdown"
	MediaTypeHTML     = "text/html"
	MediaTypePDF      = "application/pdf"
	MediaTypeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// aliases maps loose caller-supplied type names and common extensions to
// canonical media types.
var aliases = map[string]string{
	"text":       MediaTypeText,
	"txt":        MediaTypeText,
	"plain-text": MediaTypeText,
	"markdown":   MediaTypeMarkdown,
	"md":         MediaTypeMarkdown,
	"html":       MediaTypeHTML,
	"htm":        MediaTypeHTML,
	"pdf":        MediaTypePDF,
	"xlsx":       MediaTypeXLSX,
	"excel":      MediaTypeXLSX,
}

// Registry resolves a document's media type to the extractor that handles it.
// The declared type wins when one is supplied; otherwise the content is
// sniffed. Resolution is deterministic for a given declared type and byte
// content.
type Registry struct {
	byType map[string]interfaces.Extractor
}

// NewRegistry creates a registry with all the built-in extractors registered.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]interfaces.Extractor)}
	r.Register(MediaTypeText, NewTextExtractor())
	r.Register(MediaTypeMarkdown, NewTextExtractor())
	r.Register(MediaTypeHTML, NewHTMLExtractor())
	r.Register(MediaTypePDF, NewPDFExtractor())
	r.Register(MediaTypeXLSX, NewXLSXExtractor())
	return r
}

// Register binds an extractor to a canonical media type, replacing any
// previous binding.
func (r *Registry) Register(mediaType string, e interfaces.Extractor) {
	r.byType[mediaType] = e
}

// Resolve picks the extractor for a document. declared may be a full media
// type, a loose alias like "pdf", or empty; when it is empty or unrecognized
// the content is sniffed. Returns the extractor along with the canonical media
// type it was resolved to, or ErrUnsupportedFormat.
func (r *Registry) Resolve(declared string, data []byte) (interfaces.Extractor, string, error) {
	if canonical := canonicalize(declared); canonical != "" {
		if e, ok := r.byType[canonical]; ok {
			return e, canonical, nil
		}
	}

	// Fall back to content sniffing. Walk the detected type up its parent
	// chain so e.g. text/markdown content detected as a text subtype still
	// lands on a registered handler.
	for mt := mimetype.Detect(data); mt != nil; mt = mt.Parent() {
		canonical := strippedMediaType(mt.String())
		if e, ok := r.byType[canonical]; ok {
			return e, canonical, nil
		}
	}
	return nil, "", schema.ErrUnsupportedFormat
}

// canonicalize maps a declared type to its canonical form, or "" when the
// declared value is empty or unknown.
func canonicalize(declared string) string {
	s := strippedMediaType(declared)
	if s == "" {
		return ""
	}
	if canonical, ok := aliases[s]; ok {
		return canonical
	}
	return s
}

// strippedMediaType lowercases a media type and drops any parameters, e.g.
// "text/plain; charset=utf-8" becomes "text/plain".
func strippedMediaType(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(strings.TrimSpace(s))
}
