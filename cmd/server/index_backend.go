package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"voxelsave.ai/internal/persistence/indexdb"
	"voxelsave.ai/internal/persistence/saver"
	"voxelsave.ai/internal/sim/catalogs"
	"voxelsave.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	saver.Observer
	Close() error
	Stats() indexdb.Stats
	UpsertCatalogs(reg *catalogs.BlockRegistry, tune tuning.Tuning) error
}

// openRuntimeIndex picks the save index backend. VS_INDEX_BACKEND overrides
// the tuning value.
func openRuntimeIndex(worldDir string, tune tuning.Tuning, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VS_INDEX_BACKEND")))
	if backend == "" {
		backend = tune.IndexBackend
	}
	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "", "sqlite":
		return indexdb.OpenSQLite(filepath.Join(worldDir, "index", "saves.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported index backend: %s", backend)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
