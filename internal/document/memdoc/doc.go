package memdoc

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/user/scribe/internal/document"
)

var (
	// ErrClosed is returned by every operation on a closed document.
	ErrClosed          = errors.New("document closed")
	ErrInvalidPosition = errors.New("position out of range")
	ErrDuplicateMarker = errors.New("marker already exists")
)

var opSeq atomic.Uint64

type item struct {
	r      rune
	marker *document.Marker
}

// Doc is an in-memory ordered sequence of characters and markers.
type Doc struct {
	id    string
	kind  string
	store *Store

	mu     sync.RWMutex
	items  []item
	closed bool
}

func (d *Doc) ID() string { return d.id }

// Kind returns the document kind.
func (d *Doc) Kind() string { return d.kind }

// Text implements document.Document.
func (d *Doc) Text() (document.TextDocument, bool) {
	if d.kind != KindText {
		return nil, false
	}
	return d, true
}

// Close invalidates the document; later operations fail with ErrClosed.
func (d *Doc) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *Doc) InsertMarker(_ context.Context, pos int, m document.Marker) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(pos); err != nil {
		return err
	}
	if d.markerIndexLocked(m.ID) >= 0 {
		return fmt.Errorf("marker %s: %w", m.ID, ErrDuplicateMarker)
	}
	mk := m
	mk.Labels = slices.Clone(m.Labels)
	d.items = slices.Insert(d.items, pos, item{marker: &mk})
	d.publishLocked(Op{Type: "marker", Pos: pos, MarkerID: m.ID})
	return nil
}

func (d *Doc) InsertText(_ context.Context, pos int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkLocked(pos); err != nil {
		return err
	}
	d.insertLocked(pos, text)
	d.publishLocked(Op{Type: "text", Pos: pos, Text: text})
	return nil
}

// InsertBefore implements document.AnchoredInserter.
func (d *Doc) InsertBefore(_ context.Context, markerID, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	pos := d.markerIndexLocked(markerID)
	if pos < 0 {
		return fmt.Errorf("marker %s: %w", markerID, document.ErrNotFound)
	}
	d.insertLocked(pos, text)
	d.publishLocked(Op{Type: "text", Pos: pos, Text: text, MarkerID: markerID})
	return nil
}

func (d *Doc) MarkerPosition(_ context.Context, id string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return 0, ErrClosed
	}
	pos := d.markerIndexLocked(id)
	if pos < 0 {
		return 0, fmt.Errorf("marker %s: %w", id, document.ErrNotFound)
	}
	return pos, nil
}

// Paragraphs returns, for each marker labelled as a paragraph tile, the text
// between it and the previous paragraph marker.
func (d *Doc) Paragraphs(_ context.Context) ([]document.Paragraph, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	var out []document.Paragraph
	var b strings.Builder
	for _, it := range d.items {
		if it.marker == nil {
			b.WriteRune(it.r)
			continue
		}
		if !slices.Contains(it.marker.Labels, document.TileLabel) {
			continue
		}
		out = append(out, document.Paragraph{MarkerID: it.marker.ID, Text: b.String()})
		b.Reset()
	}
	return out, nil
}

// Content returns the document text with markers omitted.
func (d *Doc) Content() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var b strings.Builder
	for _, it := range d.items {
		if it.marker == nil {
			b.WriteRune(it.r)
		}
	}
	return b.String()
}

// Markers returns the markers in sequence order.
func (d *Doc) Markers() []document.Marker {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []document.Marker
	for _, it := range d.items {
		if it.marker != nil {
			out = append(out, *it.marker)
		}
	}
	return out
}

// Len returns the sequence length, markers included.
func (d *Doc) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.items)
}

func (d *Doc) checkLocked(pos int) error {
	if d.closed {
		return ErrClosed
	}
	if pos < 0 || pos > len(d.items) {
		return fmt.Errorf("position %d not in [0,%d]: %w", pos, len(d.items), ErrInvalidPosition)
	}
	return nil
}

func (d *Doc) markerIndexLocked(id string) int {
	for i, it := range d.items {
		if it.marker != nil && it.marker.ID == id {
			return i
		}
	}
	return -1
}

func (d *Doc) insertLocked(pos int, text string) {
	runes := []rune(text)
	ins := make([]item, len(runes))
	for i, r := range runes {
		ins[i] = item{r: r}
	}
	d.items = slices.Insert(d.items, pos, ins...)
}

// publishLocked numbers and delivers op while d.mu is held, so a
// document's ops arrive in the order they were applied.
func (d *Doc) publishLocked(op Op) {
	if d.store == nil {
		return
	}
	op.Seq = opSeq.Add(1)
	op.DocID = d.id
	d.store.publish(op)
}
