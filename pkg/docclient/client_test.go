package docclient

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/scribe/internal/docserver"
	"github.com/user/scribe/internal/document"
	"github.com/user/scribe/internal/document/memdoc"
	"github.com/user/scribe/internal/scribe"
)

func testClient(t *testing.T) (*Client, *memdoc.Store) {
	t.Helper()
	store := memdoc.New()
	srv := docserver.New(store, ":0")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return New(ts.URL), store
}

func TestClientDocumentOps(t *testing.T) {
	c, store := testClient(t)
	ctx := context.Background()
	require.NoError(t, c.Health(ctx))

	id, err := c.CreateDocument(ctx, memdoc.KindText)
	require.NoError(t, err)

	doc, err := c.Acquire(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID())
	text, ok := doc.Text()
	require.True(t, ok)

	require.NoError(t, text.InsertMarker(ctx, 0, document.Marker{ID: "p-0", Labels: []string{document.TileLabel}}))
	require.NoError(t, text.(document.AnchoredInserter).InsertBefore(ctx, "p-0", "ok"))
	pos, err := text.MarkerPosition(ctx, "p-0")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
	require.NoError(t, text.InsertText(ctx, 0, ">"))

	paras, err := text.Paragraphs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []document.Paragraph{{MarkerID: "p-0", Text: ">ok"}}, paras)

	content, err := doc.(*Doc).Content(ctx)
	require.NoError(t, err)
	assert.Equal(t, ">ok", content)

	d, err := store.Document(id)
	require.NoError(t, err)
	assert.Equal(t, ">ok", d.Content())
}

func TestClientNotFoundMapsToSentinel(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	_, err := c.Acquire(ctx, "doc_missing")
	assert.ErrorIs(t, err, document.ErrNotFound)
	assert.True(t, IsNotFound(err))

	m, err := c.CreateMap(ctx)
	require.NoError(t, err)
	_, err = m.Get(ctx, "chunks")
	assert.ErrorIs(t, err, document.ErrNotFound)

	_, err = c.OpenMap(ctx, "map_missing")
	assert.ErrorIs(t, err, document.ErrNotFound)
}

func TestClientBlobDocumentHasNoText(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()
	id, err := c.CreateDocument(ctx, memdoc.KindBlob)
	require.NoError(t, err)
	doc, err := c.Acquire(ctx, id)
	require.NoError(t, err)
	_, ok := doc.Text()
	assert.False(t, ok)
}

func TestClientMaps(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	m, err := c.CreateMap(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Set(ctx, "p-0", "hello world"))

	opened, err := c.OpenMap(ctx, m.ID())
	require.NoError(t, err)
	v, err := opened.Get(ctx, "p-0")
	require.NoError(t, err)
	assert.Equal(t, "hello world", v)
}

func TestDistributedRunOverHTTP(t *testing.T) {
	c, store := testClient(t)
	ctx := context.Background()
	id, err := c.CreateDocument(ctx, memdoc.KindText)
	require.NoError(t, err)
	control, err := c.CreateMap(ctx)
	require.NoError(t, err)

	spawner := scribe.SpawnFunc(func(ctx context.Context, args scribe.WorkerArgs) (*scribe.Metrics, error) {
		wc := New(c.URL)
		return scribe.RunWorker(ctx, scribe.WorkerConfig{Args: args, Loader: wc, Runtime: wc})
	})
	cond := scribe.New(scribe.WithSpawner(spawner), scribe.WithSpawnInterval(time.Millisecond))
	m, err := cond.Type(ctx, scribe.TypeRequest{
		Loader:    c,
		URL:       id,
		Control:   control,
		Runtime:   c,
		Interval:  time.Millisecond,
		Text:      "north\nsouth\neast\nwest",
		Writers:   1,
		Processes: 2,
	})
	require.NoError(t, err)
	assert.True(t, m.Verified, "mismatches: %v", m.Mismatches)
	assert.Equal(t, 18, m.TotalChars)

	d, err := store.Document(id)
	require.NoError(t, err)
	assert.Equal(t, "northsoutheastwest", d.Content())
}

func TestWatchReceivesOps(t *testing.T) {
	c, store := testClient(t)
	d, err := store.CreateDocument(memdoc.KindText)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var ops []memdoc.Op
	errc := make(chan error, 1)
	go func() {
		errc <- c.Watch(ctx, d.ID(), func(op memdoc.Op) {
			mu.Lock()
			ops = append(ops, op)
			mu.Unlock()
		})
	}()

	// Ops applied before the watcher registers are not replayed.
	require.Eventually(t, func() bool {
		_ = d.InsertText(ctx, 0, "x")
		mu.Lock()
		defer mu.Unlock()
		return len(ops) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "text", ops[0].Type)
	assert.Equal(t, d.ID(), ops[0].DocID)
}

func TestWatchURL(t *testing.T) {
	u, err := watchURL("https://docs.example.com/base/", "doc_1")
	require.NoError(t, err)
	assert.Equal(t, "wss://docs.example.com/base/ws/docs/doc_1", u)

	u, err = watchURL("http://127.0.0.1:7070", "doc_1")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:7070/ws/docs/doc_1", u)
}
