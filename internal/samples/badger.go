package samples

import (
	"bytes"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/user/scribe/internal/kv"
	"github.com/user/scribe/internal/scribe"
)

type badgerStore struct {
	db *badger.DB

	mu   sync.Mutex
	runs map[string]bool
}

func openBadger(dir string) (*badgerStore, error) {
	opts := badger.DefaultOptions(filepath.Join(dir, "badger"))
	opts.Logger = nil
	opts.SyncWrites = false
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerStore{db: db, runs: make(map[string]bool)}, nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}

func (s *badgerStore) Record(runID string, sample scribe.Sample) error {
	first := s.firstSample(runID)
	return s.db.Update(func(txn *badger.Txn) error {
		if first {
			if err := txn.Set(kv.RunKey(runID), runValue()); err != nil {
				return err
			}
		}
		return txn.Set(sampleKey(runID, sample), encodeValue(sample))
	})
}

func (s *badgerStore) firstSample(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs[runID] {
		return false
	}
	s.runs[runID] = true
	return true
}

func (s *badgerStore) Samples(runID string) ([]scribe.Sample, error) {
	var out []scribe.Sample
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = kv.SamplePrefix(runID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			err := item.Value(func(v []byte) error {
				sample, err := decodeSample(key, v)
				if err != nil {
					return err
				}
				out = append(out, sample)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByTime(out)
	return out, nil
}

func (s *badgerStore) Runs() ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(kv.PrefixRun)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, string(bytes.TrimPrefix(it.Item().Key(), prefix)))
		}
		return nil
	})
	return out, err
}
