// Package chunk splits input text into the paragraph-sized units typed by writers
// and names the boundary markers that anchor them in a document.
package chunk

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// FinalMarkerID tags the boundary that terminates the last chunk.
const FinalMarkerID = "p-final"

// Chunk is one paragraph of input text. Index is its position in input order.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Len returns the number of characters (runes) a writer inserts for the chunk.
func (c Chunk) Len() int {
	return utf8.RuneCountInString(c.Text)
}

// MarkerID returns the identifier of the boundary marker for chunk i: p-<i>.
func MarkerID(i int) string {
	return "p-" + strconv.Itoa(i)
}

// Key is the chunk-assignment map key for the chunk. It equals the marker ID.
func (c Chunk) Key() string {
	return MarkerID(c.Index)
}

// Normalize converts CRLF and lone CR line endings to LF and trims
// surrounding whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// Split normalizes text and returns one chunk per line, in order.
// Empty input yields a single empty chunk.
func Split(text string) []Chunk {
	lines := strings.Split(Normalize(text), "\n")
	chunks := make([]Chunk, len(lines))
	for i, line := range lines {
		chunks[i] = Chunk{Index: i, Text: line}
	}
	return chunks
}

// MarkerIDs returns the identifiers of every boundary marker laid out for n
// chunks: p-0 … p-(n-1) followed by p-final.
func MarkerIDs(n int) []string {
	ids := make([]string, 0, n+1)
	for i := range n {
		ids = append(ids, MarkerID(i))
	}
	return append(ids, FinalMarkerID)
}

// TotalLen sums Len over chunks.
func TotalLen(chunks []Chunk) int {
	n := 0
	for _, c := range chunks {
		n += c.Len()
	}
	return n
}
