package kvstore

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Engine selects which on-disk KV engine backs the Catalog.
type Engine string

const (
	EnginePebble Engine = "pebble"
	EngineBadger Engine = "badger"
)

// Open opens the named engine's KV store rooted at dir. dir is typically
// base_path/.anbar.db.
func Open(engine Engine, dir string, logger *logrus.Logger) (KV, error) {
	switch engine {
	case "", EnginePebble:
		return OpenPebble(dir, logger)
	case EngineBadger:
		return OpenBadger(dir, logger)
	default:
		return nil, fmt.Errorf("unsupported kv engine %q", engine)
	}
}
