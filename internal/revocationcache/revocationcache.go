// Package revocationcache persists the highest-seen revocation sequence
// number per signer keyid across process restarts, enforcing spec §3's
// invariant ("for a given signer key, the last-seen revocation sequence
// number never decreases") beyond a single process lifetime. It is the
// teacher's pkg/pinning TOFU bucket store (bbolt, one bucket, JSON values)
// adapted from "tool_id@domain -> pinned key fingerprint" to
// "signer keyid -> highest accepted revocation list", with the same
// bbolt.Open/Update/View shape.
package revocationcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/Haldir-AI/haldir/internal/haldirlog"
	"github.com/Haldir-AI/haldir/internal/revocation"
)

var sequenceBucket = []byte("revocation_sequence")

// Cache is a bbolt-backed store of the highest-seen revocation list per
// signer keyid.
type Cache struct {
	db     *bbolt.DB
	logger *zap.SugaredLogger
}

// Open opens (creating if necessary) the revocation cache at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("revocationcache: failed to create cache directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("revocationcache: failed to open database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sequenceBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("revocationcache: failed to initialize bucket: %w", err)
	}
	return &Cache{db: db, logger: haldirlog.Nop()}, nil
}

// SetLogger replaces the cache's structured logger (a no-op logger by
// default). cmd/haldir calls this once after Open with its configured
// logger.
func (c *Cache) SetLogger(logger *zap.SugaredLogger) {
	if logger != nil {
		c.logger = logger
	}
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Get returns the cached list for a signer keyid, or nil if none is cached.
func (c *Cache) Get(keyID string) (*revocation.List, error) {
	var list *revocation.List
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(sequenceBucket).Get([]byte(keyID))
		if data == nil {
			return nil
		}
		var l revocation.List
		if err := json.Unmarshal(data, &l); err != nil {
			return fmt.Errorf("revocationcache: corrupt cache entry for %q: %w", keyID, err)
		}
		list = &l
		return nil
	})
	return list, err
}

// Put evaluates incoming against the cached list for keyID using the pure
// revocation.Evaluate policy, persists whichever list should become the new
// cache, and returns the verdict. This is the single write path: callers
// must go through Put rather than writing the bucket directly, so the
// monotonicity invariant is enforced at one chokepoint.
func (c *Cache) Put(keyID string, incoming *revocation.List, now time.Time) (revocation.Verdict, error) {
	cached, err := c.Get(keyID)
	if err != nil {
		return revocation.Verdict{}, err
	}

	newCached, verdict := revocation.Evaluate(cached, incoming, now)

	data, err := json.Marshal(newCached)
	if err != nil {
		return verdict, fmt.Errorf("revocationcache: failed to marshal cache entry: %w", err)
	}

	err = c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sequenceBucket).Put([]byte(keyID), data)
	})
	if err != nil {
		return verdict, fmt.Errorf("revocationcache: failed to persist cache entry: %w", err)
	}

	c.logger.Infow("revocation refresh completed",
		"kind", "revocation_refresh",
		"keyid", keyID,
		"sequence", newCached.SequenceNumber,
		"rolled_back", verdict.RolledBack,
		"soft_stale", verdict.SoftStale,
		"hard_stale", verdict.HardStale,
	)
	return verdict, nil
}
