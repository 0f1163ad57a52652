package docclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/user/scribe/internal/docserver"
	"github.com/user/scribe/internal/document"
)

// Doc is a remote document handle. Every call is one request; insertion
// positions are resolved by the server.
type Doc struct {
	c    *Client
	id   string
	text bool
}

var (
	_ document.TextDocument     = (*Doc)(nil)
	_ document.AnchoredInserter = (*Doc)(nil)
)

func (d *Doc) ID() string { return d.id }

func (d *Doc) Text() (document.TextDocument, bool) {
	if !d.text {
		return nil, false
	}
	return d, true
}

func (d *Doc) path(suffix string) string {
	return "/api/v1/docs/" + url.PathEscape(d.id) + suffix
}

func (d *Doc) InsertMarker(ctx context.Context, pos int, m document.Marker) error {
	return d.c.do(ctx, http.MethodPost, d.path("/markers"), docserver.InsertMarkerRequest{Pos: pos, Marker: m}, nil)
}

func (d *Doc) InsertText(ctx context.Context, pos int, text string) error {
	return d.c.do(ctx, http.MethodPost, d.path("/text"), docserver.InsertTextRequest{Pos: pos, Text: text}, nil)
}

func (d *Doc) InsertBefore(ctx context.Context, markerID, text string) error {
	return d.c.do(ctx, http.MethodPost, d.path("/insert-before"), docserver.InsertBeforeRequest{MarkerID: markerID, Text: text}, nil)
}

func (d *Doc) MarkerPosition(ctx context.Context, id string) (int, error) {
	var resp docserver.PositionResponse
	if err := d.c.do(ctx, http.MethodGet, d.path("/markers/"+url.PathEscape(id)), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Pos, nil
}

func (d *Doc) Paragraphs(ctx context.Context) ([]document.Paragraph, error) {
	var out []document.Paragraph
	if err := d.c.do(ctx, http.MethodGet, d.path("/paragraphs"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Content returns the document text without markers.
func (d *Doc) Content(ctx context.Context) (string, error) {
	var resp docserver.ContentResponse
	if err := d.c.do(ctx, http.MethodGet, d.path("/content"), nil, &resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Map is a remote shared map.
type Map struct {
	c  *Client
	id string
}

func (m *Map) ID() string { return m.id }

func (m *Map) path(key string) string {
	return "/api/v1/maps/" + url.PathEscape(m.id) + "/keys/" + url.PathEscape(key)
}

func (m *Map) Set(ctx context.Context, key, value string) error {
	return m.c.do(ctx, http.MethodPut, m.path(key), docserver.ValueRequest{Value: value}, nil)
}

func (m *Map) Get(ctx context.Context, key string) (string, error) {
	var resp docserver.ValueResponse
	if err := m.c.do(ctx, http.MethodGet, m.path(key), nil, &resp); err != nil {
		return "", err
	}
	return resp.Value, nil
}
