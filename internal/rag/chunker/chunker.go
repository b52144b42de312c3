package chunker

import (
	"fmt"

	"github.com/google/uuid"

	"ragserver/internal/rag/interfaces"
	"ragserver/internal/rag/schema"
)

// separatorClasses are tried largest-unit first: paragraph breaks, then
// sentence ends, then word breaks. A chunk is cut after the separator, so the
// separator stays with the preceding chunk.
var separatorClasses = [][][]rune{
	{[]rune("\n\n")},
	{[]rune(". "), []rune("! "), []rune("? "), []rune("\n")},
	{[]rune(" ")},
}

// RecursiveChunker splits text into overlapping chunks of at most chunkSize
// runes, preferring the largest boundary unit that fits: paragraph, sentence,
// word, then a hard character cut. Splitting is deterministic and offsets are
// preserved, so concatenating chunk texts with each overlap prefix removed
// reconstructs the input exactly.
type RecursiveChunker struct {
	chunkSize int
	overlap   int
}

// NewRecursiveChunker creates a chunker. overlap is the number of runes each
// chunk shares with its predecessor and must satisfy 0 <= overlap < chunkSize.
func NewRecursiveChunker(chunkSize, overlap int) (*RecursiveChunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", chunkSize, overlap)
	}
	return &RecursiveChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Split divides text into chunks. Empty text yields no chunks; text shorter
// than the chunk size yields exactly one. Every chunk after the first starts
// exactly overlap runes before the end of the previous chunk's span.
func (c *RecursiveChunker) Split(documentID, text string) []schema.Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []schema.Chunk
	start := 0
	for seq := 0; ; seq++ {
		end := start + c.chunkSize
		if end >= n {
			chunks = append(chunks, c.newChunk(documentID, seq, runes, start, n))
			return chunks
		}
		cut := c.cutPoint(runes, start, end)
		chunks = append(chunks, c.newChunk(documentID, seq, runes, start, cut))
		start = cut - c.overlap
	}
}

func (c *RecursiveChunker) newChunk(documentID string, seq int, runes []rune, start, end int) schema.Chunk {
	return schema.Chunk{
		ID:         ChunkID(documentID, seq),
		DocumentID: documentID,
		Seq:        seq,
		Text:       string(runes[start:end]),
		Start:      start,
		End:        end,
	}
}

// cutPoint finds where to end the chunk starting at start, given the size
// window ending at end. It returns the position after the last separator of
// the largest boundary class inside the window, falling back to a hard cut at
// end. A candidate is only eligible if it leaves the next start strictly past
// the current one (cut > start+overlap), which guarantees forward progress.
func (c *RecursiveChunker) cutPoint(runes []rune, start, end int) int {
	floor := start + c.overlap
	for _, class := range separatorClasses {
		for pos := end; pos > floor; pos-- {
			for _, sep := range class {
				if matchesBefore(runes, pos, sep, start) {
					return pos
				}
			}
		}
	}
	return end
}

// matchesBefore reports whether sep occupies the runes immediately before
// pos, without reaching back past start.
func matchesBefore(runes []rune, pos int, sep []rune, start int) bool {
	from := pos - len(sep)
	if from < start {
		return false
	}
	for i, r := range sep {
		if runes[from+i] != r {
			return false
		}
	}
	return true
}

// ChunkID derives a stable chunk identifier from the document id and the
// chunk's sequence index, so re-ingesting unchanged content upserts the same
// ids.
func ChunkID(documentID string, seq int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, fmt.Appendf(nil, "%s#%d", documentID, seq)).String()
}

var _ interfaces.Chunker = (*RecursiveChunker)(nil)
