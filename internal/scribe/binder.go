package scribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/scribe/internal/chunk"
	"github.com/user/scribe/internal/document"
)

// ControlKeyChunks is the control-map key holding the chunk map's ID.
const ControlKeyChunks = "chunks"

// Binding is the result of binding a run to a document.
type Binding struct {
	Doc    document.Document
	Text   document.TextDocument
	Chunks document.SharedMap
}

// Bind acquires the document at url, checks it supports ordered text, creates
// a fresh chunk map and publishes its ID into control under "chunks".
func Bind(ctx context.Context, loader document.Loader, rt document.Runtime, control document.SharedMap, url string) (*Binding, error) {
	doc, text, err := acquireText(ctx, loader, url)
	if err != nil {
		return nil, err
	}
	chunks, err := rt.CreateMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chunk map: %w", err)
	}
	if err := control.Set(ctx, ControlKeyChunks, chunks.ID()); err != nil {
		return nil, fmt.Errorf("publish chunk map: %w", err)
	}
	return &Binding{Doc: doc, Text: text, Chunks: chunks}, nil
}

func acquireText(ctx context.Context, loader document.Loader, url string) (document.Document, document.TextDocument, error) {
	if loader == nil {
		return nil, nil, NewConfigError("no document loader")
	}
	doc, err := loader.Acquire(ctx, url)
	if err != nil {
		return nil, nil, NewAcquisitionError(fmt.Sprintf("acquire %q", url), err)
	}
	if doc == nil {
		return nil, nil, NewAcquisitionError(fmt.Sprintf("acquire %q: no document", url), nil)
	}
	text, ok := doc.Text()
	if !ok || text == nil {
		return nil, nil, NewCapabilityError(fmt.Sprintf("document %s does not support ordered text", doc.ID()))
	}
	return doc, text, nil
}

// PublishChunks writes each chunk's text under its marker ID.
func PublishChunks(ctx context.Context, m document.SharedMap, chunks []chunk.Chunk) error {
	for _, c := range chunks {
		if err := m.Set(ctx, c.Key(), c.Text); err != nil {
			return fmt.Errorf("publish chunk %d: %w", c.Index, err)
		}
	}
	return nil
}

// LoadChunks reads the chunks with the given indexes from a chunk map.
func LoadChunks(ctx context.Context, m document.SharedMap, r Range) ([]chunk.Chunk, error) {
	out := make([]chunk.Chunk, 0, r.Len())
	for i := r.Start; i < r.End; i++ {
		text, err := m.Get(ctx, chunk.MarkerID(i))
		if errors.Is(err, document.ErrNotFound) {
			return nil, fmt.Errorf("chunk %d not published: %w", i, err)
		}
		if err != nil {
			return nil, fmt.Errorf("load chunk %d: %w", i, err)
		}
		out = append(out, chunk.Chunk{Index: i, Text: text})
	}
	return out, nil
}
