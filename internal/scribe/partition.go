package scribe

import "github.com/user/scribe/internal/chunk"

// Range is a half-open range [Start, End) of chunk indexes.
type Range struct {
	Start int
	End   int
}

func (r Range) Len() int { return r.End - r.Start }

// Ranges splits n items into parts contiguous ranges. Every range gets n/parts
// items and the first n%parts ranges get one more.
func Ranges(n, parts int) []Range {
	if parts < 1 {
		parts = 1
	}
	per := n / parts
	remainder := n % parts
	out := make([]Range, parts)
	start := 0
	for i := range parts {
		size := per
		if i < remainder {
			size++
		}
		out[i] = Range{Start: start, End: start + size}
		start += size
	}
	return out
}

// Partition assigns chunks to parts writers using Ranges.
func Partition(chunks []chunk.Chunk, parts int) [][]chunk.Chunk {
	ranges := Ranges(len(chunks), parts)
	out := make([][]chunk.Chunk, len(ranges))
	for i, r := range ranges {
		out[i] = chunks[r.Start:r.End]
	}
	return out
}
