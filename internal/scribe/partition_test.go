package scribe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/user/scribe/internal/chunk"
)

func TestRangesGivesRemainderToFirstParts(t *testing.T) {
	got := Ranges(10, 3)
	assert.Equal(t, []Range{{0, 4}, {4, 7}, {7, 10}}, got)
}

func TestRangesMorePartsThanItems(t *testing.T) {
	got := Ranges(2, 4)
	assert.Equal(t, []Range{{0, 1}, {1, 2}, {2, 2}, {2, 2}}, got)
	assert.Equal(t, 0, got[3].Len())
}

func TestRangesCoverEveryIndexOnce(t *testing.T) {
	for n := 0; n < 20; n++ {
		for parts := 1; parts < 7; parts++ {
			next := 0
			for _, r := range Ranges(n, parts) {
				assert.Equal(t, next, r.Start)
				assert.GreaterOrEqual(t, r.End, r.Start)
				next = r.End
			}
			assert.Equal(t, n, next, "n=%d parts=%d", n, parts)
		}
	}
}

func TestPartitionKeepsChunkOrder(t *testing.T) {
	chunks := chunk.Split("a\nb\nc\nd\ne")
	parts := Partition(chunks, 2)
	if assert.Len(t, parts, 2) {
		assert.Equal(t, []chunk.Chunk{{Index: 0, Text: "a"}, {Index: 1, Text: "b"}, {Index: 2, Text: "c"}}, parts[0])
		assert.Equal(t, []chunk.Chunk{{Index: 3, Text: "d"}, {Index: 4, Text: "e"}}, parts[1])
	}
}
