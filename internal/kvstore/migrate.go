package kvstore

import (
	"os"
	"path/filepath"
	"time"

	pebblev1 "github.com/cockroachdb/pebble"
	"github.com/sirupsen/logrus"
)

// legacyMarker is the subdirectory name of the current v2-format Pebble
// store (dir/pebble). The legacy v1 store is looked for at dir/pebble-v1;
// migrateLegacyV1 does nothing once dir/pebble exists.
const legacyMarker = "pebble"

// migrateLegacyV1 is a one-shot upgrade path: if dir/pebble-v1 exists (a
// database written by the legacy github.com/cockroachdb/pebble v1
// package), every key is copied into a fresh v2 store and the old
// directory is renamed aside. This mirrors the "legacy: only used for
// v1→v2 on-disk migration" role the same dependency plays upstream.
//
// It runs before OpenPebble claims dir/pebble, so a partially-migrated
// store never shadows the legacy one on a retry.
func migrateLegacyV1(dir string, logger *logrus.Logger) error {
	legacyPath := filepath.Join(dir, "pebble-v1")
	if _, err := os.Stat(legacyPath); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}

	newPath := filepath.Join(dir, legacyMarker)
	if _, err := os.Stat(newPath); err == nil {
		// A v2 store already exists; nothing to migrate into.
		return nil
	}

	logger.WithField("path", legacyPath).Info("migrating legacy v1 KV store to v2 on-disk format")

	oldDB, err := pebblev1.Open(legacyPath, &pebblev1.Options{})
	if err != nil {
		return err
	}
	defer oldDB.Close()

	// Keys are copied into a staging directory that becomes dir/pebble
	// only after the copy is complete.
	stagingPath := newPath + ".migrating"
	newDB, err := openPebbleRaw(stagingPath)
	if err != nil {
		return err
	}
	newDBOpen := true
	defer func() {
		if newDBOpen {
			newDB.Close()
		}
	}()

	iter, err := oldDB.NewIter(&pebblev1.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()

	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		if err := newDB.Set(key, value, nil); err != nil {
			return err
		}
		count++
	}
	if err := iter.Error(); err != nil {
		return err
	}

	if err := newDB.Flush(); err != nil {
		return err
	}
	newDBOpen = false
	if err := newDB.Close(); err != nil {
		return err
	}
	if err := os.Rename(stagingPath, newPath); err != nil {
		return err
	}

	renamed := legacyPath + ".migrated-" + time.Now().UTC().Format("20060102T150405Z")
	if err := os.Rename(legacyPath, renamed); err != nil {
		logger.WithError(err).Warn("migrated legacy KV store but could not rename it aside")
	}

	logger.WithFields(logrus.Fields{"keys": count, "archived_to": renamed}).Info("legacy KV migration complete")
	return nil
}
