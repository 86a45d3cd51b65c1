// Package cache persists image fingerprints between runs so unchanged files
// are not decoded again.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/leakscan/internal/fingerprint"
)

const bucketName = "fingerprints"

// entry is the stored value for one file
type entry struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Hash    uint64    `json:"hash"`
}

// BoltCache implements scanning.Cache using BoltDB
type BoltCache struct {
	db *bbolt.DB
}

// NewBoltCache opens (or creates) the cache file at path
func NewBoltCache(path string) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltCache{db: db}, nil
}

// key builds the bucket key; fingerprints of different variants never collide
func key(variant, path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	return []byte(variant + "\x00" + abs), nil
}

// Lookup returns the cached fingerprint of path if the file's size and
// modification time are unchanged since it was stored
func (b *BoltCache) Lookup(variant, path string, info os.FileInfo) (fingerprint.Fingerprint, bool, error) {
	k, err := key(variant, path)
	if err != nil {
		return 0, false, err
	}

	var e *entry
	err = b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get(k)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &e)
	})
	if err != nil {
		return 0, false, fmt.Errorf("reading cache entry: %w", err)
	}

	if e == nil || e.Size != info.Size() || !e.ModTime.Equal(info.ModTime()) {
		return 0, false, nil
	}
	return fingerprint.Fingerprint(e.Hash), true, nil
}

// Store saves the fingerprint of path. Concurrent callers are coalesced
// into shared transactions.
func (b *BoltCache) Store(variant, path string, info os.FileInfo, fp fingerprint.Fingerprint) error {
	k, err := key(variant, path)
	if err != nil {
		return err
	}

	data, err := json.Marshal(entry{
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Hash:    uint64(fp),
	})
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}

	return b.db.Batch(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put(k, data)
	})
}

// Len returns the number of cached fingerprints
func (b *BoltCache) Len() (int, error) {
	var n int
	err := b.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(bucketName)).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the database
func (b *BoltCache) Close() error {
	return b.db.Close()
}
