package nli

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/goldfish-inc/oceanid/twcs-miner/internal/metrics"
)

var scoresBucket = []byte("scores")

// CacheKey is the key of a (text, label) score.
func CacheKey(text, label string) string { return text + "__" + label }

// Cache persists classification scores in a bbolt file with an in-memory LRU
// in front. New scores are buffered in memory and persisted in one
// transaction by Flush or Close.
type Cache struct {
	db  *bolt.DB
	lru *lru.Cache[string, float64]

	mu      sync.Mutex
	pending map[string]float64
}

// OpenCache opens or creates the cache file at path.
func OpenCache(path string, lruSize int) (*Cache, error) {
	if lruSize <= 0 {
		lruSize = 1024
	}
	front, err := lru.New[string, float64](lruSize)
	if err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(scoresBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise cache %s: %w", path, err)
	}
	return &Cache{db: db, lru: front, pending: make(map[string]float64)}, nil
}

// Get returns the cached score of label for text. A miss is (0, false, nil).
func (c *Cache) Get(text, label string) (float64, bool, error) {
	key := CacheKey(text, label)
	if v, ok := c.lru.Get(key); ok {
		return v, true, nil
	}
	c.mu.Lock()
	v, ok := c.pending[key]
	c.mu.Unlock()
	if ok {
		return v, true, nil
	}

	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(scoresBucket).Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cache: %w", err)
	}
	if len(raw) != 8 {
		return 0, false, nil
	}
	v = math.Float64frombits(binary.BigEndian.Uint64(raw))
	c.lru.Add(key, v)
	return v, true, nil
}

// Put records a score; it is written to disk on the next Flush.
func (c *Cache) Put(text, label string, p float64) {
	key := CacheKey(text, label)
	c.lru.Add(key, p)
	c.mu.Lock()
	c.pending[key] = p
	c.mu.Unlock()
}

// Flush writes buffered scores in one transaction.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(scoresBucket)
		buf := make([]byte, 8)
		for k, v := range c.pending {
			binary.BigEndian.PutUint64(buf, math.Float64bits(v))
			if err := b.Put([]byte(k), append([]byte(nil), buf...)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to flush cache: %w", err)
	}
	c.pending = make(map[string]float64)
	return nil
}

// Len returns the number of persisted scores.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(scoresBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read cache: %w", err)
	}
	return n, nil
}

// Close flushes and closes the cache file.
func (c *Cache) Close() error {
	flushErr := c.Flush()
	if err := c.db.Close(); err != nil {
		return err
	}
	return flushErr
}

// CachedClassifier answers from the cache and sends only missing labels to Backend.
type CachedClassifier struct {
	Backend Classifier
	Cache   *Cache
}

func (c *CachedClassifier) Classify(ctx context.Context, text string, labels []string, template string) (map[string]float64, error) {
	out := make(map[string]float64, len(labels))
	var missing []string
	for _, label := range labels {
		if _, dup := out[label]; dup {
			continue
		}
		v, ok, err := c.Cache.Get(text, label)
		if err != nil {
			return nil, err
		}
		if ok {
			out[label] = v
			metrics.NLICacheTotal.WithLabelValues("hit").Inc()
			continue
		}
		if !contains(missing, label) {
			missing = append(missing, label)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}
	metrics.NLICacheTotal.WithLabelValues("miss").Add(float64(len(missing)))

	scores, err := c.Backend.Classify(ctx, text, missing, template)
	if err != nil {
		return nil, err
	}
	for _, label := range missing {
		v, ok := scores[label]
		if !ok {
			return nil, fmt.Errorf("backend returned no score for %q", label)
		}
		c.Cache.Put(text, label, v)
		out[label] = v
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
