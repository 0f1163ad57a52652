// Package samples persists per-insertion timing samples in an embedded
// key/value store so a run's latency distribution can be recomputed later.
package samples

import (
	"fmt"
	"sort"
	"time"

	"github.com/user/scribe/internal/kv"
	"github.com/user/scribe/internal/scribe"
)

// Store records and reads back insertion samples. It implements
// scribe.SampleSink.
type Store interface {
	Record(runID string, s scribe.Sample) error
	Samples(runID string) ([]scribe.Sample, error)
	Runs() ([]string, error)
	Close() error
}

// Open opens a sample store of the given kind ("pebble", "badger" or "bolt")
// under dir.
func Open(kind, dir string) (Store, error) {
	switch kind {
	case "pebble":
		s, err := openPebble(dir)
		if err != nil {
			return nil, fmt.Errorf("open pebble sample store: %w", err)
		}
		return s, nil
	case "badger":
		s, err := openBadger(dir)
		if err != nil {
			return nil, fmt.Errorf("open badger sample store: %w", err)
		}
		return s, nil
	case "bolt":
		s, err := openBolt(dir)
		if err != nil {
			return nil, fmt.Errorf("open bolt sample store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported sample store %q (expected pebble, badger, or bolt)", kind)
	}
}

// value layout: chunk:4BE offset:4BE gap_ns:8BE at_unix_ns:8BE
const valueLen = 24

func encodeValue(s scribe.Sample) []byte {
	v := make([]byte, 0, valueLen)
	v = kv.PutUint32BE(v, uint32(s.Chunk))
	v = kv.PutUint32BE(v, uint32(s.Offset))
	v = kv.PutUint64BE(v, uint64(s.Gap))
	return kv.PutUint64BE(v, uint64(s.At.UnixNano()))
}

func sampleKey(runID string, s scribe.Sample) []byte {
	return kv.SampleKey(runID, uint32(s.Writer), s.Seq)
}

func decodeSample(key, val []byte) (scribe.Sample, error) {
	_, writer, seq, err := kv.ParseSampleKey(key)
	if err != nil {
		return scribe.Sample{}, err
	}
	if len(val) != valueLen {
		return scribe.Sample{}, fmt.Errorf("sample value: want %d bytes, got %d", valueLen, len(val))
	}
	return scribe.Sample{
		Writer: int(writer),
		Seq:    seq,
		Chunk:  int(kv.GetUint32BE(val[0:4])),
		Offset: int(kv.GetUint32BE(val[4:8])),
		Gap:    time.Duration(kv.GetUint64BE(val[8:16])),
		At:     time.Unix(0, int64(kv.GetUint64BE(val[16:24]))),
	}, nil
}

func runValue() []byte {
	return kv.PutUint64BE(nil, uint64(time.Now().UnixNano()))
}

// sortByTime orders samples from several writers by insertion time.
func sortByTime(out []scribe.Sample) {
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
}

// Latencies extracts the gaps of the samples in order.
func Latencies(samples []scribe.Sample) []time.Duration {
	out := make([]time.Duration, len(samples))
	for i, s := range samples {
		out[i] = s.Gap
	}
	return out
}
