package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/RaneyMD/cornerstone-archive/internal/audit"
	"github.com/RaneyMD/cornerstone-archive/internal/config"
	"github.com/RaneyMD/cornerstone-archive/internal/logging"
	"github.com/RaneyMD/cornerstone-archive/internal/nas"
	"github.com/RaneyMD/cornerstone-archive/internal/store"
)

// runtime bundles the dependencies every subcommand needs, built once from
// the loaded configuration.
type runtime struct {
	cfg    *config.Config
	layout *nas.Layout
	store  *store.Store
	audit  *audit.Log
	logger zerolog.Logger
}

func newRuntime(component string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Options{
		Environment: cfg.Environment,
		Level:       cfg.Logging.Level,
		Component:   component,
	})

	layout, err := nas.New(cfg.Nas.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve nas layout: %w", err)
	}
	if err := layout.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("ensure nas directories: %w", err)
	}

	st, err := store.Open(store.Config{
		Path:         cfg.Database.Path,
		PoolSize:     cfg.Database.PoolSize,
		MaxRetries:   cfg.Database.MaxRetries,
		RetryDelay:   time.Duration(cfg.Database.RetryDelaySecs * float64(time.Second)),
		QueryTimeout: time.Duration(cfg.Database.QueryTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	auditLog, err := audit.Open(filepath.Join(layout.LogsPath(), "audit.jsonl"))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	return &runtime{cfg: cfg, layout: layout, store: st, audit: auditLog, logger: logger}, nil
}

func (r *runtime) Close() {
	if r.audit != nil {
		r.audit.Close()
	}
	if r.store != nil {
		r.store.Close()
	}
}
