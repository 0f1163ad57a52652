package docserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/scribe/internal/document"
	"github.com/user/scribe/internal/document/memdoc"
)

func testServer(t *testing.T) (*Server, *memdoc.Store) {
	t.Helper()
	store := memdoc.New()
	srv := New(store, ":0")
	t.Cleanup(srv.Close)
	return srv, store
}

func doRequest(srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rr.Body).Decode(v), "body: %s", rr.Body.String())
}

func createDoc(t *testing.T, srv *Server, kind string) string {
	t.Helper()
	rr := doRequest(srv, "POST", "/api/v1/docs", CreateDocRequest{Kind: kind})
	require.Equal(t, http.StatusCreated, rr.Code)
	var doc DocResponse
	decodeResponse(t, rr, &doc)
	return doc.ID
}

func TestHealthz(t *testing.T) {
	srv, _ := testServer(t)
	rr := doRequest(srv, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	srv, store := testServer(t)
	id := createDoc(t, srv, "")

	rr := doRequest(srv, "GET", "/api/v1/docs/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var doc DocResponse
	decodeResponse(t, rr, &doc)
	assert.True(t, doc.Text)
	assert.Equal(t, memdoc.KindText, doc.Kind)

	for i, mid := range []string{"p-0", "p-final"} {
		rr = doRequest(srv, "POST", "/api/v1/docs/"+id+"/markers", InsertMarkerRequest{
			Pos:    i,
			Marker: document.Marker{ID: mid, Labels: []string{document.TileLabel}},
		})
		require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())
	}

	for _, ch := range []string{"h", "i"} {
		rr = doRequest(srv, "POST", "/api/v1/docs/"+id+"/insert-before", InsertBeforeRequest{MarkerID: "p-0", Text: ch})
		require.Equal(t, http.StatusNoContent, rr.Code)
	}
	rr = doRequest(srv, "POST", "/api/v1/docs/"+id+"/text", InsertTextRequest{Pos: 3, Text: "!"})
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(srv, "GET", "/api/v1/docs/"+id+"/markers/p-final", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var pos PositionResponse
	decodeResponse(t, rr, &pos)
	assert.Equal(t, 4, pos.Pos)

	rr = doRequest(srv, "GET", "/api/v1/docs/"+id+"/paragraphs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var paras []document.Paragraph
	decodeResponse(t, rr, &paras)
	assert.Equal(t, []document.Paragraph{{MarkerID: "p-0", Text: "hi"}, {MarkerID: "p-final", Text: "!"}}, paras)

	d, err := store.Document(id)
	require.NoError(t, err)
	assert.Equal(t, "hi!", d.Content())
}

func TestDocumentErrors(t *testing.T) {
	srv, _ := testServer(t)
	id := createDoc(t, srv, memdoc.KindText)

	rr := doRequest(srv, "GET", "/api/v1/docs/doc_missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	var e ErrorResponse
	decodeResponse(t, rr, &e)
	assert.Equal(t, "NOT_FOUND", e.Code)

	rr = doRequest(srv, "POST", "/api/v1/docs/"+id+"/insert-before", InsertBeforeRequest{MarkerID: "p-0", Text: "x"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(srv, "POST", "/api/v1/docs/"+id+"/text", InsertTextRequest{Pos: 7, Text: "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	m := InsertMarkerRequest{Marker: document.Marker{ID: "p-0"}}
	require.Equal(t, http.StatusNoContent, doRequest(srv, "POST", "/api/v1/docs/"+id+"/markers", m).Code)
	assert.Equal(t, http.StatusConflict, doRequest(srv, "POST", "/api/v1/docs/"+id+"/markers", m).Code)

	rr = doRequest(srv, "POST", "/api/v1/docs", CreateDocRequest{Kind: "spreadsheet"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBlobDocumentHasNoText(t *testing.T) {
	srv, _ := testServer(t)
	id := createDoc(t, srv, memdoc.KindBlob)

	rr := doRequest(srv, "GET", "/api/v1/docs/"+id, nil)
	var doc DocResponse
	decodeResponse(t, rr, &doc)
	assert.False(t, doc.Text)
}

func TestMapEndpoints(t *testing.T) {
	srv, _ := testServer(t)

	rr := doRequest(srv, "POST", "/api/v1/maps", nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	var m MapResponse
	decodeResponse(t, rr, &m)
	require.NotEmpty(t, m.ID)

	assert.Equal(t, http.StatusOK, doRequest(srv, "GET", "/api/v1/maps/"+m.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(srv, "GET", "/api/v1/maps/map_missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(srv, "GET", "/api/v1/maps/"+m.ID+"/keys/chunks", nil).Code)

	rr = doRequest(srv, "PUT", "/api/v1/maps/"+m.ID+"/keys/chunks", ValueRequest{Value: "map_abc"})
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = doRequest(srv, "GET", "/api/v1/maps/"+m.ID+"/keys/chunks", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var v ValueResponse
	decodeResponse(t, rr, &v)
	assert.Equal(t, ValueResponse{Key: "chunks", Value: "map_abc"}, v)
}

func TestWatchStreamsOps(t *testing.T) {
	srv, store := testServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	d, err := store.CreateDocument(memdoc.KindText)
	require.NoError(t, err)
	other, err := store.CreateDocument(memdoc.KindText)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/docs/" + d.ID()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		srv.hub.mu.RLock()
		defer srv.hub.mu.RUnlock()
		return len(srv.hub.watchers) == 1
	}, time.Second, 5*time.Millisecond)

	ctx := t.Context()
	require.NoError(t, other.InsertText(ctx, 0, "ignored"))
	require.NoError(t, d.InsertMarker(ctx, 0, document.Marker{ID: "p-0"}))
	require.NoError(t, d.InsertBefore(ctx, "p-0", "a"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second memdoc.Op
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "marker", first.Type)
	assert.Equal(t, "p-0", first.MarkerID)
	assert.Equal(t, "text", second.Type)
	assert.Equal(t, "a", second.Text)
	assert.Equal(t, d.ID(), second.DocID)
	assert.Less(t, first.Seq, second.Seq)
}

func TestWatchUnknownDocument(t *testing.T) {
	srv, _ := testServer(t)
	rr := doRequest(srv, "GET", "/ws/docs/doc_missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpointCountsOps(t *testing.T) {
	srv, _ := testServer(t)
	id := createDoc(t, srv, memdoc.KindText)
	doRequest(srv, "POST", "/api/v1/docs/"+id+"/text", InsertTextRequest{Pos: 0, Text: "x"})

	rr := doRequest(srv, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `scribe_docserver_ops_applied_total{type="text"} 1`)
}
