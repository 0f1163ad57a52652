package metrics

import (
	"sync"
	"time"
)

const throughputBuckets = 60

// ThroughputBucket holds counts for a single second.
type ThroughputBucket struct {
	Second   time.Time `json:"second"`
	Inserted int64     `json:"inserted"`
	Failed   int64     `json:"failed"`
}

// ThroughputTracker keeps a 60-second ring buffer of insertion counters.
type ThroughputTracker struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets [throughputBuckets]ThroughputBucket
	head    int // index of the current second bucket
}

// NewThroughputTracker creates a new tracker.
func NewThroughputTracker() *ThroughputTracker {
	return newThroughputTracker(time.Now)
}

func newThroughputTracker(now func() time.Time) *ThroughputTracker {
	t := &ThroughputTracker{now: now}
	cur := now().Truncate(time.Second)
	for i := range t.buckets {
		t.buckets[i].Second = cur.Add(time.Duration(i-throughputBuckets+1) * time.Second)
	}
	t.head = throughputBuckets - 1
	return t
}

// advance rolls the ring buffer forward to the current second if needed.
func (t *ThroughputTracker) advance() {
	now := t.now().Truncate(time.Second)
	cur := t.buckets[t.head].Second
	if now.Sub(cur) > throughputBuckets*time.Second {
		cur = now.Add(-throughputBuckets * time.Second)
	}
	for cur.Before(now) {
		t.head = (t.head + 1) % throughputBuckets
		cur = cur.Add(time.Second)
		t.buckets[t.head] = ThroughputBucket{Second: cur}
	}
}

func (t *ThroughputTracker) IncInserted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance()
	t.buckets[t.head].Inserted++
}

func (t *ThroughputTracker) IncFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance()
	t.buckets[t.head].Failed++
}

// Snapshot returns all 60 buckets in chronological order.
func (t *ThroughputTracker) Snapshot() []ThroughputBucket {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance()

	result := make([]ThroughputBucket, throughputBuckets)
	for i := 0; i < throughputBuckets; i++ {
		idx := (t.head + 1 + i) % throughputBuckets
		result[i] = t.buckets[idx]
	}
	return result
}

// Rate returns insertions per second over the last window seconds, excluding
// the current partial second.
func (t *ThroughputTracker) Rate(window int) float64 {
	if window < 1 {
		return 0
	}
	if window > throughputBuckets-1 {
		window = throughputBuckets - 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advance()
	var sum int64
	for i := 1; i <= window; i++ {
		idx := (t.head - i + throughputBuckets) % throughputBuckets
		sum += t.buckets[idx].Inserted
	}
	return float64(sum) / float64(window)
}
