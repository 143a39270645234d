// Package cache stores fetched build data locally so charts can be
// re-rendered without talking to Jenkins again.
//
// Payloads (the raw Pipeline Steps pages) are zstd-compressed and keyed
// by "<job>:<buildID>" in one bucket; a second bucket carries per-build
// metadata, including a BLAKE3 checksum used to detect corruption on the
// way back out.
package cache

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"
	"lukechampine.com/blake3"
)

// Buckets
var (
	BucketPayloads = []byte("payloads") // key -> zstd-compressed page
	BucketMeta     = []byte("meta")     // key -> JSON metadata
)

// ErrNotFound reports a cache miss.
var ErrNotFound = errors.New("build not in cache")

// Meta describes one cached build.
type Meta struct {
	Job         string            `json:"job"`
	BuildID     int               `json:"buildId"`
	StartTimeMs int64             `json:"startTimeMs"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	FetchedAt   time.Time         `json:"fetchedAt"`
	Sum         string            `json:"sum"`  // blake3 of the uncompressed payload
	Size        int               `json:"size"` // uncompressed bytes
}

// Key returns the cache key for one build.
func Key(job string, buildID int) string {
	return fmt.Sprintf("%s:%d", job, buildID)
}

// Key returns the key under which this build is cached.
func (m Meta) Key() string {
	return Key(m.Job, m.BuildID)
}

type Cache struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the cache database under dir.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	db, err := bbolt.Open(filepath.Join(dir, "cache.db"), 0666, nil)
	if err != nil {
		return nil, err
	}
	// Ensure buckets exist
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, e := tx.CreateBucketIfNotExists(BucketPayloads); e != nil {
			return e
		}
		if _, e := tx.CreateBucketIfNotExists(BucketMeta); e != nil {
			return e
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Put stores a build's payload and metadata. The checksum and size fields
// of meta are computed here, not trusted from the caller.
func (c *Cache) Put(payload []byte, meta Meta) error {
	sum := blake3.Sum256(payload)
	meta.Sum = hex.EncodeToString(sum[:])
	meta.Size = len(payload)
	if meta.FetchedAt.IsZero() {
		meta.FetchedAt = time.Now()
	}

	compressed, err := compress(payload)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}

	key := []byte(meta.Key())
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(BucketPayloads).Put(key, compressed); err != nil {
			return err
		}
		return tx.Bucket(BucketMeta).Put(key, metaJSON)
	})
}

// Get returns a build's payload and metadata, verifying the payload
// checksum. A missing build reports ErrNotFound.
func (c *Cache) Get(key string) ([]byte, Meta, error) {
	var compressed, metaJSON []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(BucketPayloads).Get([]byte(key)); v != nil {
			compressed = append(compressed, v...)
		}
		if v := tx.Bucket(BucketMeta).Get([]byte(key)); v != nil {
			metaJSON = append(metaJSON, v...)
		}
		return nil
	})
	if err != nil {
		return nil, Meta{}, err
	}
	if compressed == nil || metaJSON == nil {
		return nil, Meta{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	var meta Meta
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, Meta{}, fmt.Errorf("failed to decode meta for %s: %w", key, err)
	}
	payload, err := decompress(compressed)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("failed to decompress %s: %w", key, err)
	}
	sum := blake3.Sum256(payload)
	if got := hex.EncodeToString(sum[:]); got != meta.Sum {
		return nil, Meta{}, fmt.Errorf("cache corruption for %s: checksum %s, want %s", key, got, meta.Sum)
	}
	return payload, meta, nil
}

// Has reports whether a build is cached.
func (c *Cache) Has(key string) bool {
	found := false
	_ = c.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(BucketMeta).Get([]byte(key)) != nil
		return nil
	})
	return found
}

// List returns metadata for every cached build, ordered by job then
// build number.
func (c *Cache) List() ([]Meta, error) {
	var metas []Meta
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(BucketMeta).ForEach(func(k, v []byte) error {
			var m Meta
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("failed to decode meta for %s: %w", k, err)
			}
			metas = append(metas, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Job != metas[j].Job {
			return metas[i].Job < metas[j].Job
		}
		return metas[i].BuildID < metas[j].BuildID
	})
	return metas, nil
}

// Delete removes one cached build. Deleting a build that is not cached
// reports ErrNotFound.
func (c *Cache) Delete(key string) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(BucketMeta).Get([]byte(key)) == nil {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		if err := tx.Bucket(BucketPayloads).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(BucketMeta).Delete([]byte(key))
	})
}

// Clear removes every cached build.
func (c *Cache) Clear() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{BucketPayloads, BucketMeta} {
			if err := tx.DeleteBucket(bucket); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return err
			}
		}
		return nil
	})
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		return nil, fmt.Errorf("zstd write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd close: %w", err)
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("read zstd payload: %w", err)
	}
	return raw, nil
}
