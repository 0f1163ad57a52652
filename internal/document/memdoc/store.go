// Package memdoc is an in-memory implementation of the document collaborator.
// It backs single-process runs, the document server and tests.
package memdoc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/user/scribe/internal/document"
)

// Kinds of document the store can host. Only KindText supports typing.
const (
	KindText = "text"
	KindBlob = "blob"
)

// Op is a mutation applied to a document, delivered to subscribers.
type Op struct {
	Seq      uint64 `json:"seq"`
	DocID    string `json:"doc_id"`
	Type     string `json:"type"` // "marker" or "text"
	Pos      int    `json:"pos"`
	Text     string `json:"text,omitempty"`
	MarkerID string `json:"marker_id,omitempty"`
}

// Store holds documents and shared maps.
type Store struct {
	mu   sync.RWMutex
	docs map[string]*Doc
	maps map[string]*Map

	subMu  sync.RWMutex
	nextID int
	subs   map[int]func(Op)
}

// New creates an empty store.
func New() *Store {
	return &Store{
		docs: make(map[string]*Doc),
		maps: make(map[string]*Map),
		subs: make(map[int]func(Op)),
	}
}

// CreateDocument creates a document of the given kind and returns it.
func (s *Store) CreateDocument(kind string) (*Doc, error) {
	switch kind {
	case KindText, KindBlob:
	default:
		return nil, fmt.Errorf("unsupported document kind %q", kind)
	}
	d := &Doc{id: "doc_" + uuid.NewString(), kind: kind, store: s}
	s.mu.Lock()
	s.docs[d.id] = d
	s.mu.Unlock()
	return d, nil
}

// Document returns the document with the given id.
func (s *Store) Document(id string) (*Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, document.ErrNotFound)
	}
	return d, nil
}

// Acquire implements document.Loader. The url is a document id.
func (s *Store) Acquire(_ context.Context, url string) (document.Document, error) {
	d, err := s.Document(url)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// CreateMap implements document.Runtime.
func (s *Store) CreateMap(_ context.Context) (document.SharedMap, error) {
	return s.NewMap(), nil
}

// OpenMap implements document.Runtime.
func (s *Store) OpenMap(_ context.Context, id string) (document.SharedMap, error) {
	m, err := s.Map(id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewMap creates an empty shared map.
func (s *Store) NewMap() *Map {
	m := &Map{id: "map_" + uuid.NewString(), values: make(map[string]string)}
	s.mu.Lock()
	s.maps[m.id] = m
	s.mu.Unlock()
	return m
}

// Map returns the shared map with the given id.
func (s *Store) Map(id string) (*Map, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.maps[id]
	if !ok {
		return nil, fmt.Errorf("map %s: %w", id, document.ErrNotFound)
	}
	return m, nil
}

// Subscribe registers fn to receive every op applied to any document in the
// store. The returned func removes the subscription. fn runs while the
// document is locked: it must not block or call back into the document.
func (s *Store) Subscribe(fn func(Op)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(op Op) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for _, fn := range s.subs {
		fn(op)
	}
}

// Map is an in-memory shared map.
type Map struct {
	id     string
	mu     sync.RWMutex
	values map[string]string
}

func (m *Map) ID() string { return m.id }

func (m *Map) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

func (m *Map) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", fmt.Errorf("key %s: %w", key, document.ErrNotFound)
	}
	return v, nil
}

// Len returns the number of keys.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
