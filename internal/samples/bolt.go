package samples

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/user/scribe/internal/kv"
	"github.com/user/scribe/internal/scribe"
)

var boltBucket = []byte("samples")

type boltStore struct {
	db *bolt.DB
}

func openBolt(dir string) (*boltStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(dir, "samples.db"), 0o600, &bolt.Options{Timeout: time.Second, NoSync: true})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}

func (s *boltStore) Record(runID string, sample scribe.Sample) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		if b.Get(kv.RunKey(runID)) == nil {
			if err := b.Put(kv.RunKey(runID), runValue()); err != nil {
				return err
			}
		}
		return b.Put(sampleKey(runID, sample), encodeValue(sample))
	})
}

func (s *boltStore) Samples(runID string) ([]scribe.Sample, error) {
	var out []scribe.Sample
	prefix := kv.SamplePrefix(runID)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			sample, err := decodeSample(k, v)
			if err != nil {
				return err
			}
			out = append(out, sample)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByTime(out)
	return out, nil
}

func (s *boltStore) Runs() ([]string, error) {
	var out []string
	prefix := []byte(kv.PrefixRun)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(boltBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			out = append(out, string(bytes.TrimPrefix(k, prefix)))
		}
		return nil
	})
	return out, err
}
