package kv

import (
	"bytes"
	"fmt"
)

// Key prefixes. Each prefix ends with '|' as a separator.
const (
	PrefixSample = "s|" // s|{run_id}\x00{writer:4BE}{seq:8BE}
	PrefixRun    = "r|" // r|{run_id}
)

const sep = '\x00'

// SampleKey returns the key for one insertion sample.
// Sort order: run, then writer, then per-writer sequence.
func SampleKey(runID string, writer uint32, seq uint64) []byte {
	k := append([]byte(PrefixSample), runID...)
	k = append(k, sep)
	k = PutUint32BE(k, writer)
	return PutUint64BE(k, seq)
}

// SamplePrefix returns the scan prefix for all samples of a run: s|{run_id}\x00
func SamplePrefix(runID string) []byte {
	k := append([]byte(PrefixSample), runID...)
	return append(k, sep)
}

// RunKey returns the key holding a run's marker record: r|{run_id}
func RunKey(runID string) []byte {
	return append([]byte(PrefixRun), runID...)
}

// ParseSampleKey splits a sample key into its writer and sequence parts.
func ParseSampleKey(key []byte) (runID string, writer uint32, seq uint64, err error) {
	if !bytes.HasPrefix(key, []byte(PrefixSample)) {
		return "", 0, 0, fmt.Errorf("not a sample key")
	}
	rest := key[len(PrefixSample):]
	i := bytes.IndexByte(rest, sep)
	if i < 0 || len(rest)-i-1 != 12 {
		return "", 0, 0, fmt.Errorf("malformed sample key")
	}
	tail := rest[i+1:]
	return string(rest[:i]), GetUint32BE(tail[:4]), GetUint64BE(tail[4:]), nil
}

// PrefixUpperBound returns the smallest key greater than every key with the given prefix.
func PrefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
