package pipeline

import (
	"strings"

	"ragserver/internal/rag/schema"
)

// NoContextMarker is inserted in place of retrieved passages when the search
// returned nothing, so the model is explicitly told the knowledge base had no
// relevant content instead of silently receiving an empty section.
const NoContextMarker = "No relevant context was found in the knowledge base."

const instructions = "You are a helpful assistant. Answer the question using only the provided context. " +
	"If the context does not contain the answer, say that you don't know."

// PromptBuilder assembles the grounding prompt sent to the generator:
// instructions, retrieved context with provenance, and the user question, in
// that fixed order. Assembly is deterministic for the same inputs.
type PromptBuilder struct {
	maxChars int
}

// NewPromptBuilder creates a builder. maxChars bounds the assembled prompt
// in runes; zero or negative disables the bound.
func NewPromptBuilder(maxChars int) *PromptBuilder {
	return &PromptBuilder{maxChars: maxChars}
}

// Build assembles the prompt. Results are rendered in retrieval order, each
// tagged with its source so answers can be traced back. Returns
// ErrPromptTooLong when the result exceeds the configured bound.
func (b *PromptBuilder) Build(question string, results []schema.RetrievalResult) (string, error) {
	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\n### Context\n\n")

	if len(results) == 0 {
		sb.WriteString(NoContextMarker)
		sb.WriteString("\n")
	}
	for _, res := range results {
		source := res.Metadata[schema.MetadataKeySource]
		if source == "" {
			source = "unknown"
		}
		sb.WriteString("[source: " + source + "]\n")
		sb.WriteString(res.Text)
		sb.WriteString("\n\n")
	}

	sb.WriteString("### Question\n\n")
	sb.WriteString(question)
	sb.WriteString("\n\n### Answer\n")

	prompt := sb.String()
	if b.maxChars > 0 && len([]rune(prompt)) > b.maxChars {
		return "", schema.ErrPromptTooLong
	}
	return prompt, nil
}
