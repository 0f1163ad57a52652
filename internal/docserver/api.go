package docserver

import "github.com/user/scribe/internal/document"

// Request and response bodies of the /api/v1 endpoints.

type CreateDocRequest struct {
	Kind string `json:"kind"`
}

type DocResponse struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Text bool   `json:"text"`
}

type ContentResponse struct {
	Content string `json:"content"`
	Len     int    `json:"len"`
}

type InsertMarkerRequest struct {
	Pos    int             `json:"pos"`
	Marker document.Marker `json:"marker"`
}

type InsertTextRequest struct {
	Pos  int    `json:"pos"`
	Text string `json:"text"`
}

type InsertBeforeRequest struct {
	MarkerID string `json:"marker_id"`
	Text     string `json:"text"`
}

type PositionResponse struct {
	Pos int `json:"pos"`
}

type MapResponse struct {
	ID string `json:"id"`
}

type ValueRequest struct {
	Value string `json:"value"`
}

type ValueResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
