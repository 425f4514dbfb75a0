/*
Package badgercache provides a BadgerDB-backed audit.TipCache.

PURPOSE:
  Holds the last known chain hash per partition with a native TTL per
  entry, standing in for the Redis tip cache of the wider deployment.
  The cache is purely advisory: on any miss or failure the ledger falls
  back to the durable store, so losing this database costs latency, not
  correctness.

MODES:
  New(dir)      persistent cache surviving restarts
  NewInMemory() volatile cache for tests and single-run processes

SEE ALSO:
  - audit/store.go: The TipCache contract
*/
package badgercache

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Cache implements audit.TipCache over BadgerDB.
type Cache struct {
	db *badger.DB
}

// New opens a persistent cache in dir.
func New(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// NewInMemory opens a volatile cache.
func NewInMemory() (*Cache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Get returns the cached value for key, found=false on a miss or an
// expired entry. Badger expires entries natively via the entry TTL.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), []byte(value)).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// Close releases the underlying database. Owned by the process entry
// point, like every other store lifecycle.
func (c *Cache) Close() error {
	return c.db.Close()
}
