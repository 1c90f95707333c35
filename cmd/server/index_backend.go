package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"charttopper.fm/internal/persistence/indexdb"
	"charttopper.fm/internal/persistence/snapshot"
	"charttopper.fm/internal/sim/catalogs"
	"charttopper.fm/internal/sim/engine"
	"charttopper.fm/internal/sim/tuning"
)

type runtimeIndex interface {
	Close() error
	UpsertCatalogs(cats *catalogs.Catalogs, tune tuning.Tuning) error
	RecordWeek(res engine.WeekResult)
	RecordSave(path string, h snapshot.Header)
	Stats() indexdb.Stats
}

func openRuntimeIndex(gameDir string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("CT_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(gameDir, "index", "charts.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported CT_INDEX_BACKEND: %s", backend)
	}
}
