package kvstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/sstable"
	"github.com/sirupsen/logrus"
)

// PebbleKV is the default KV engine: an ordered LSM tree via Pebble v2.
// Iteration is range-ordered by key, unlike a hash table.
type PebbleKV struct {
	db     *pebble.DB
	logger *logrus.Logger
}

// pebbleKey composes the tree-prefixed on-disk key. A NUL separator keeps
// tree names from colliding with key bytes that might themselves contain
// the ':' byte gorilla-style schemes often use.
func pebbleKey(tree, key string) []byte {
	b := make([]byte, 0, len(tree)+1+len(key))
	b = append(b, tree...)
	b = append(b, 0)
	b = append(b, key...)
	return b
}

func pebbleTreePrefix(tree string) []byte {
	b := make([]byte, 0, len(tree)+1)
	b = append(b, tree...)
	b = append(b, 0)
	return b
}

// pebblePrefixEnd returns the exclusive upper bound for a prefix scan.
func pebblePrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// OpenPebble opens (or creates) the Pebble-backed KV store rooted at dir,
// first running the legacy v1→v2 migration if an old-format store is found.
func OpenPebble(dir string, logger *logrus.Logger) (*PebbleKV, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create kv dir: %w", err)
	}

	if err := migrateLegacyV1(dir, logger); err != nil {
		return nil, fmt.Errorf("migrate legacy kv store: %w", err)
	}

	db, err := openPebbleRaw(filepath.Join(dir, "pebble"))
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}

	return &PebbleKV{db: db, logger: logger}, nil
}

func openPebbleRaw(path string) (*pebble.DB, error) {
	cache := pebble.NewCache(64 << 20)
	defer cache.Unref()

	opts := &pebble.Options{
		Cache: cache,
	}
	opts.Levels[0].Compression = func() *sstable.CompressionProfile {
		return sstable.SnappyCompression
	}
	return pebble.Open(path, opts)
}

func (p *PebbleKV) Put(_ context.Context, tree, key string, value []byte) error {
	return p.db.Set(pebbleKey(tree, key), value, pebble.Sync)
}

func (p *PebbleKV) Get(_ context.Context, tree, key string) ([]byte, error) {
	val, closer, err := p.db.Get(pebbleKey(tree, key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(val))
	copy(out, val)
	_ = closer.Close()
	return out, nil
}

func (p *PebbleKV) Delete(_ context.Context, tree, key string) error {
	err := p.db.Delete(pebbleKey(tree, key), pebble.Sync)
	if err == pebble.ErrNotFound {
		return nil
	}
	return err
}

func (p *PebbleKV) Iterate(_ context.Context, tree string, fn func(key string, value []byte) error) error {
	prefix := pebbleTreePrefix(tree)
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: pebblePrefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key()[len(prefix):])
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (p *PebbleKV) Close() error {
	return p.db.Close()
}
