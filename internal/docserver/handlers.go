package docserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/user/scribe/internal/document/memdoc"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateDoc(w http.ResponseWriter, r *http.Request) {
	var req CreateDocRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "PARSE_ERROR")
		return
	}
	if req.Kind == "" {
		req.Kind = memdoc.KindText
	}
	d, err := s.store.CreateDocument(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}
	writeJSON(w, http.StatusCreated, docResponse(d))
}

func (s *Server) doc(w http.ResponseWriter, r *http.Request) (*memdoc.Doc, bool) {
	d, err := s.store.Document(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return nil, false
	}
	return d, true
}

func docResponse(d *memdoc.Doc) DocResponse {
	_, text := d.Text()
	return DocResponse{ID: d.ID(), Kind: d.Kind(), Text: text}
}

func (s *Server) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	d, ok := s.doc(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, docResponse(d))
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	d, ok := s.doc(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ContentResponse{Content: d.Content(), Len: d.Len()})
}

func (s *Server) handleParagraphs(w http.ResponseWriter, r *http.Request) {
	d, ok := s.doc(w, r)
	if !ok {
		return
	}
	paras, err := d.Paragraphs(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paras)
}

func (s *Server) handleInsertMarker(w http.ResponseWriter, r *http.Request) {
	d, ok := s.doc(w, r)
	if !ok {
		return
	}
	var req InsertMarkerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "PARSE_ERROR")
		return
	}
	if req.Marker.ID == "" {
		writeError(w, http.StatusBadRequest, "marker id is required", "VALIDATION_ERROR")
		return
	}
	if err := d.InsertMarker(r.Context(), req.Pos, req.Marker); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkerPosition(w http.ResponseWriter, r *http.Request) {
	d, ok := s.doc(w, r)
	if !ok {
		return
	}
	pos, err := d.MarkerPosition(r.Context(), chi.URLParam(r, "marker"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PositionResponse{Pos: pos})
}

func (s *Server) handleInsertText(w http.ResponseWriter, r *http.Request) {
	d, ok := s.doc(w, r)
	if !ok {
		return
	}
	var req InsertTextRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "PARSE_ERROR")
		return
	}
	if err := d.InsertText(r.Context(), req.Pos, req.Text); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleInsertBefore resolves the marker when the request is applied, so
// concurrent writers never insert at a stale position.
func (s *Server) handleInsertBefore(w http.ResponseWriter, r *http.Request) {
	d, ok := s.doc(w, r)
	if !ok {
		return
	}
	var req InsertBeforeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "PARSE_ERROR")
		return
	}
	if err := d.InsertBefore(r.Context(), req.MarkerID, req.Text); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateMap(w http.ResponseWriter, r *http.Request) {
	m := s.store.NewMap()
	writeJSON(w, http.StatusCreated, MapResponse{ID: m.ID()})
}

func (s *Server) handleGetMap(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Map(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MapResponse{ID: m.ID()})
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Map(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	key := chi.URLParam(r, "key")
	v, err := m.Get(r.Context(), key)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValueResponse{Key: key, Value: v})
}

func (s *Server) handleSetKey(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Map(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	var req ValueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "PARSE_ERROR")
		return
	}
	if err := m.Set(r.Context(), chi.URLParam(r, "key"), req.Value); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
