package docclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/user/scribe/internal/document/memdoc"
)

// Watch streams the ops applied to docID to fn until ctx is done or the
// server closes the feed.
func (c *Client) Watch(ctx context.Context, docID string, fn func(memdoc.Op)) error {
	wsURL, err := watchURL(c.URL, docID)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var op memdoc.Op
		if err := conn.ReadJSON(&op); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read op: %w", err)
		}
		fn(op)
	}
}

func watchURL(base, docID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/docs/" + url.PathEscape(docID)
	return u.String(), nil
}
