package docserver

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/user/scribe/internal/document/memdoc"
)

const (
	watcherBuffer = 256
	writeWait     = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type watcher struct {
	docID string
	send  chan memdoc.Op
	done  chan struct{}
	once  sync.Once
}

func (w *watcher) close() {
	w.once.Do(func() { close(w.done) })
}

// hub fans applied ops out to websocket watchers of each document.
type hub struct {
	mu       sync.RWMutex
	watchers map[*watcher]struct{}
	metrics  *serverMetrics
}

func newHub(m *serverMetrics) *hub {
	return &hub{watchers: make(map[*watcher]struct{}), metrics: m}
}

func (h *hub) add(docID string) *watcher {
	w := &watcher{docID: docID, send: make(chan memdoc.Op, watcherBuffer), done: make(chan struct{})}
	h.mu.Lock()
	h.watchers[w] = struct{}{}
	h.mu.Unlock()
	h.metrics.watchers.Inc()
	return w
}

func (h *hub) remove(w *watcher) {
	h.mu.Lock()
	_, ok := h.watchers[w]
	delete(h.watchers, w)
	h.mu.Unlock()
	if ok {
		h.metrics.watchers.Dec()
	}
	w.close()
}

// broadcast never blocks; a watcher whose buffer is full misses the op.
func (h *hub) broadcast(op memdoc.Op) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for w := range h.watchers {
		if w.docID != op.DocID {
			continue
		}
		select {
		case w.send <- op:
		default:
			h.metrics.opsDropped.Inc()
		}
	}
}

func (h *hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for w := range h.watchers {
		w.close()
	}
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	if _, err := s.store.Document(docID); err != nil {
		writeStoreError(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "doc", docID, "error", err)
		return
	}
	defer conn.Close()

	wt := s.hub.add(docID)
	defer s.hub.remove(wt)
	slog.Debug("watcher connected", "doc", docID, "remote", r.RemoteAddr)

	go func() {
		defer wt.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-wt.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case op := <-wt.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(op); err != nil {
				slog.Debug("watcher write failed", "doc", docID, "error", err)
				return
			}
		}
	}
}
