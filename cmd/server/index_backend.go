package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"roomscene.ai/internal/persistence/indexdb"
	"roomscene.ai/internal/sim/tuning"
)

// openIndex picks the scene index backend from RS_INDEX_BACKEND. It returns
// a nil index when indexing is disabled.
func openIndex(dataDir string, disableDB bool, tune tuning.Tuning, logger *log.Logger) (indexdb.SceneIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("RS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "scenes.sqlite"))
		if err != nil {
			return nil, err
		}
		if err := idx.UpsertTuning(tune); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("record tuning: %w", err)
		}
		return idx, nil
	case "d1":
		endpoint := strings.TrimSpace(os.Getenv("RS_INDEX_D1_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("RS_INDEX_BACKEND=d1 but RS_INDEX_D1_INGEST_URL is empty")
		}
		idx, err := indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("RS_INDEX_D1_TOKEN")),
			Source:        "server",
			BatchSize:     envInt("RS_INDEX_D1_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("RS_INDEX_D1_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported RS_INDEX_BACKEND: %s", backend)
	}
}
