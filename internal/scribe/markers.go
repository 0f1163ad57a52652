package scribe

import (
	"context"
	"fmt"

	"github.com/user/scribe/internal/chunk"
	"github.com/user/scribe/internal/document"
)

// LayoutMarkers inserts one paragraph marker per chunk at positions 0..n-1,
// then the final marker at position n. Nothing is retried.
func LayoutMarkers(ctx context.Context, doc document.TextDocument, chunkCount int) error {
	for i := range chunkCount {
		m := document.Marker{ID: chunk.MarkerID(i), Labels: []string{document.TileLabel}}
		if err := doc.InsertMarker(ctx, i, m); err != nil {
			return fmt.Errorf("insert marker %s: %w", m.ID, err)
		}
	}
	final := document.Marker{ID: chunk.FinalMarkerID, Labels: []string{document.TileLabel}}
	if err := doc.InsertMarker(ctx, chunkCount, final); err != nil {
		return fmt.Errorf("insert marker %s: %w", final.ID, err)
	}
	return nil
}
