package kvstore

import (
	"context"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// BadgerKV is the selectable alternate KV engine, for operators who prefer
// Badger's value-log write path over Pebble's LSM. Same tree-prefixed key
// scheme as PebbleKV so the two engines are drop-in interchangeable.
type BadgerKV struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the Badger-backed KV store rooted at dir.
func OpenBadger(dir string, logger *logrus.Logger) (*BadgerKV, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	opts := badger.DefaultOptions(filepath.Join(dir, "badger")).
		WithLogger(nil). // Badger's logger interface is noisy at Info; anbar logs at the call site instead.
		WithSyncWrites(true)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &BadgerKV{db: db}, nil
}

func (b *BadgerKV) Put(_ context.Context, tree, key string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pebbleKey(tree, key), value)
	})
}

func (b *BadgerKV) Get(_ context.Context, tree, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(pebbleKey(tree, key))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BadgerKV) Delete(_ context.Context, tree, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(pebbleKey(tree, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

func (b *BadgerKV) Iterate(_ context.Context, tree string, fn func(key string, value []byte) error) error {
	prefix := pebbleTreePrefix(tree)
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.KeyCopy(nil)[len(prefix):])
			var value []byte
			if err := item.Value(func(val []byte) error {
				value = append([]byte(nil), val...)
				return nil
			}); err != nil {
				return err
			}
			if err := fn(key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerKV) Close() error {
	return b.db.Close()
}
