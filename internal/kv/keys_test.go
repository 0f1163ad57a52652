package kv

import (
	"bytes"
	"testing"
)

func TestSampleKeyRoundTrip(t *testing.T) {
	k := SampleKey("run_abc", 3, 42)
	if !bytes.HasPrefix(k, SamplePrefix("run_abc")) {
		t.Fatalf("key %q lacks run prefix", k)
	}
	run, w, seq, err := ParseSampleKey(k)
	if err != nil {
		t.Fatalf("ParseSampleKey: %v", err)
	}
	if run != "run_abc" || w != 3 || seq != 42 {
		t.Errorf("got (%q, %d, %d), want (run_abc, 3, 42)", run, w, seq)
	}
}

func TestSampleKeysSortByWriterThenSeq(t *testing.T) {
	keys := [][]byte{
		SampleKey("r", 0, 0),
		SampleKey("r", 0, 1),
		SampleKey("r", 0, 256),
		SampleKey("r", 1, 0),
		SampleKey("r", 2, 7),
	}
	for i := 1; i < len(keys); i++ {
		if bytes.Compare(keys[i-1], keys[i]) >= 0 {
			t.Errorf("key %d does not sort before key %d", i-1, i)
		}
	}
}

func TestSamplePrefixDoesNotMatchLongerRunID(t *testing.T) {
	if bytes.HasPrefix(SampleKey("run_10", 0, 0), SamplePrefix("run_1")) {
		t.Error("run_1 prefix matched a run_10 key")
	}
}

func TestPrefixUpperBound(t *testing.T) {
	p := SamplePrefix("r")
	ub := PrefixUpperBound(p)
	if bytes.Compare(SampleKey("r", 1<<32-1, 1<<64-1), ub) >= 0 {
		t.Error("largest key in prefix is not below the upper bound")
	}
	if got := PrefixUpperBound([]byte{0xff, 0xff}); got != nil {
		t.Errorf("all-0xff prefix upper bound = %v, want nil", got)
	}
}

func TestParseSampleKeyRejectsOtherKeys(t *testing.T) {
	if _, _, _, err := ParseSampleKey(RunKey("r")); err == nil {
		t.Error("expected error for run key")
	}
	if _, _, _, err := ParseSampleKey([]byte("s|r\x00short")); err == nil {
		t.Error("expected error for truncated key")
	}
}
