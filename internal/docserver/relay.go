package docserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/scribe/internal/document/memdoc"
)

// ChannelPrefix prefixes the Redis channel of each document's op feed.
const ChannelPrefix = "scribe:ops:"

// Channel returns the Redis channel carrying docID's ops.
func Channel(docID string) string { return ChannelPrefix + docID }

const relayBuffer = 4096

// Relay publishes applied ops to Redis pub/sub from a background goroutine.
type Relay struct {
	rdb     *redis.Client
	timeout time.Duration
	ops     chan memdoc.Op
	done    chan struct{}
	once    sync.Once
}

func NewRelay(rdb *redis.Client) *Relay {
	r := &Relay{
		rdb:     rdb,
		timeout: 2 * time.Second,
		ops:     make(chan memdoc.Op, relayBuffer),
		done:    make(chan struct{}),
	}
	go r.run()
	return r
}

// Publish queues op for its document channel. When the queue is full the op
// is dropped and logged.
func (r *Relay) Publish(op memdoc.Op) {
	select {
	case r.ops <- op:
	default:
		slog.Warn("relay queue full, op dropped", "doc", op.DocID, "seq", op.Seq)
	}
}

// Close flushes queued ops and stops the relay.
func (r *Relay) Close() {
	r.once.Do(func() {
		close(r.ops)
		<-r.done
	})
}

func (r *Relay) run() {
	defer close(r.done)
	for op := range r.ops {
		r.send(op)
	}
}

func (r *Relay) send(op memdoc.Op) {
	payload, err := json.Marshal(op)
	if err != nil {
		slog.Warn("encode op failed", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.rdb.Publish(ctx, Channel(op.DocID), payload).Err(); err != nil {
		slog.Warn("relay op failed", "doc", op.DocID, "seq", op.Seq, "error", err)
	}
}

// Subscribe calls fn for every op relayed for docID until ctx is done.
func Subscribe(ctx context.Context, rdb *redis.Client, docID string, fn func(memdoc.Op)) error {
	pubsub := rdb.Subscribe(ctx, Channel(docID))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", Channel(docID), err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var op memdoc.Op
			if err := json.Unmarshal([]byte(msg.Payload), &op); err != nil {
				slog.Warn("decode relayed op failed", "error", err)
				continue
			}
			fn(op)
		}
	}
}
