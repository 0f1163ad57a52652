package scribe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/user/scribe/internal/document"
	"github.com/user/scribe/internal/document/memdoc"
)

func newRun(t *testing.T) (*memdoc.Store, *memdoc.Doc, *memdoc.Map) {
	t.Helper()
	store := memdoc.New()
	doc, err := store.CreateDocument(memdoc.KindText)
	require.NoError(t, err)
	return store, doc, store.NewMap()
}

func paragraphTexts(t *testing.T, doc document.TextDocument) map[string]string {
	t.Helper()
	paras, err := doc.Paragraphs(context.Background())
	require.NoError(t, err)
	out := make(map[string]string, len(paras))
	for _, p := range paras {
		out[p.MarkerID] = p.Text
	}
	return out
}

// recordingDoc exposes only TextDocument so writers take the resolve+insert
// path, and records when each text insertion happened.
type recordingDoc struct {
	document.TextDocument

	mu      sync.Mutex
	inserts []time.Time
	failAt  int
}

func (r *recordingDoc) InsertText(ctx context.Context, pos int, text string) error {
	r.mu.Lock()
	n := len(r.inserts)
	r.mu.Unlock()
	if r.failAt > 0 && n+1 >= r.failAt {
		return errors.New("replica unavailable")
	}
	if err := r.TextDocument.InsertText(ctx, pos, text); err != nil {
		return err
	}
	r.mu.Lock()
	r.inserts = append(r.inserts, time.Now())
	r.mu.Unlock()
	return nil
}

func (r *recordingDoc) times() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.inserts...)
}

type memSink struct {
	mu      sync.Mutex
	samples []Sample
}

func (s *memSink) Record(_ string, sample Sample) error {
	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()
	return nil
}

func (s *memSink) all() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sample(nil), s.samples...)
}
