// Package document defines the shared-document collaborator a typing run drives:
// acquisition, the ordered-text capability, shared key/value maps and markers.
package document

import (
	"context"
	"errors"
)

// TileLabel is the label carried by paragraph-boundary markers.
const TileLabel = "pg"

// ErrNotFound is returned when a document, map, key or marker does not exist.
var ErrNotFound = errors.New("not found")

// Marker is a zero-width anchor in a text sequence.
type Marker struct {
	ID     string   `json:"id"`
	Labels []string `json:"labels,omitempty"`
}

// Paragraph is the text preceding a paragraph marker.
type Paragraph struct {
	MarkerID string `json:"marker_id"`
	Text     string `json:"text"`
}

// TextDocument is the ordered-text capability. Positions count characters and
// markers; every marker occupies one position.
type TextDocument interface {
	InsertMarker(ctx context.Context, pos int, m Marker) error
	InsertText(ctx context.Context, pos int, text string) error
	// MarkerPosition returns the current position of the marker.
	MarkerPosition(ctx context.Context, id string) (int, error)
	Paragraphs(ctx context.Context) ([]Paragraph, error)
}

// AnchoredInserter is implemented by documents that can resolve a marker and
// insert immediately before it as one step.
type AnchoredInserter interface {
	InsertBefore(ctx context.Context, markerID, text string) error
}

// Document is an acquired document handle.
type Document interface {
	ID() string
	// Text reports whether the document supports ordered-text insertion.
	Text() (TextDocument, bool)
}

// Loader acquires documents by locator.
type Loader interface {
	Acquire(ctx context.Context, url string) (Document, error)
}

// SharedMap is a shared key/value map.
type SharedMap interface {
	ID() string
	Set(ctx context.Context, key, value string) error
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (string, error)
}

// Runtime creates and opens shared maps.
type Runtime interface {
	CreateMap(ctx context.Context) (SharedMap, error)
	OpenMap(ctx context.Context, id string) (SharedMap, error)
}
