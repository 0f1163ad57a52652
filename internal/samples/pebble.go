package samples

import (
	"bytes"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/user/scribe/internal/kv"
	"github.com/user/scribe/internal/scribe"
)

type pebbleStore struct {
	db *pebble.DB

	mu   sync.Mutex
	runs map[string]bool
}

func openPebble(dir string) (*pebbleStore, error) {
	db, err := pebble.Open(filepath.Join(dir, "pebble"), &pebble.Options{
		MemTableSize:          16 << 20, // 16MB
		L0CompactionThreshold: 8,
	})
	if err != nil {
		return nil, err
	}
	return &pebbleStore{db: db, runs: make(map[string]bool)}, nil
}

func (s *pebbleStore) Close() error {
	return s.db.Close()
}

func (s *pebbleStore) Record(runID string, sample scribe.Sample) error {
	batch := s.db.NewBatch()
	defer func() { _ = batch.Close() }()
	if s.firstSample(runID) {
		if err := batch.Set(kv.RunKey(runID), runValue(), pebble.NoSync); err != nil {
			return err
		}
	}
	if err := batch.Set(sampleKey(runID, sample), encodeValue(sample), pebble.NoSync); err != nil {
		return err
	}
	return batch.Commit(pebble.NoSync)
}

func (s *pebbleStore) firstSample(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs[runID] {
		return false
	}
	s.runs[runID] = true
	return true
}

func (s *pebbleStore) Samples(runID string) ([]scribe.Sample, error) {
	lower := kv.SamplePrefix(runID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: kv.PrefixUpperBound(lower)})
	if err != nil {
		return nil, err
	}
	defer func() { _ = iter.Close() }()

	var out []scribe.Sample
	for iter.First(); iter.Valid(); iter.Next() {
		sample, err := decodeSample(iter.Key(), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, sample)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	sortByTime(out)
	return out, nil
}

func (s *pebbleStore) Runs() ([]string, error) {
	lower := []byte(kv.PrefixRun)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: kv.PrefixUpperBound(lower)})
	if err != nil {
		return nil, err
	}
	defer func() { _ = iter.Close() }()

	var out []string
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, string(bytes.TrimPrefix(iter.Key(), lower)))
	}
	return out, iter.Error()
}
