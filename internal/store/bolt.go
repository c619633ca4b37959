package store

import (
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// boltStore is the durable Store backend for Live and Test(n) DB modes,
// built on a single bbolt file with one bucket per column family.
type boltStore struct {
	db *bolt.DB
}

func newBoltStore(path string, columns []string) (*boltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, c := range columns {
			if _, err := tx.CreateBucketIfNotExists([]byte(c)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (b *boltStore) Get(column string, key []byte) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(column))
		if bucket == nil {
			return nil
		}
		v := bucket.Get(key)
		if v == nil {
			return nil
		}
		found = true
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	return out, found, err
}

func (b *boltStore) Put(column string, key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(column))
		if err != nil {
			return err
		}
		return bucket.Put(key, value)
	})
}

func (b *boltStore) Delete(column string, key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(column))
		if bucket == nil {
			return nil
		}
		return bucket.Delete(key)
	})
}

func (b *boltStore) IterColumn(column string, fn func(key, value []byte) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(column))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(fn)
	})
}

// WriteBatch applies ops inside a single bolt transaction, which bbolt
// commits to disk atomically: every reader sees either the whole batch or
// none of it (spec §4.5).
func (b *boltStore) WriteBatch(ops []Op) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, op := range ops {
			bucket, err := tx.CreateBucketIfNotExists([]byte(op.Column))
			if err != nil {
				return err
			}
			if op.Delete {
				if err := bucket.Delete(op.Key); err != nil {
					return err
				}
				continue
			}
			if err := bucket.Put(op.Key, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltStore) Close() error { return b.db.Close() }
