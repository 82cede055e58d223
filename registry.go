package ipcguard

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/jward/ipcguard/internal/classify"
	"github.com/jward/ipcguard/internal/config"
	"github.com/jward/ipcguard/internal/typegraph"
)

// projectEntry is the type graph and classification cache of one
// project configuration. mu serializes every use of project and cache.
type projectEntry struct {
	mu       sync.Mutex
	tsconfig *config.TSConfig
	project  *typegraph.Project
	cache    *classify.Cache
}

// registry hands out one projectEntry per resolved tsconfig path so that
// distinct configurations never share type identities or cached results.
type registry struct {
	mu      sync.Mutex
	entries map[string]*projectEntry
	logger  *zap.Logger
}

func newRegistry(logger *zap.Logger) *registry {
	return &registry{entries: make(map[string]*projectEntry), logger: logger}
}

// get returns the entry for tsconfigPath, creating it on first use. A
// missing tsconfig.json yields default compiler options.
func (r *registry) get(tsconfigPath string) (*projectEntry, error) {
	abs, err := filepath.Abs(tsconfigPath)
	if err != nil {
		return nil, fmt.Errorf("resolve tsconfig: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[abs]; ok {
		return e, nil
	}

	var tc *config.TSConfig
	if _, statErr := os.Stat(abs); errors.Is(statErr, fs.ErrNotExist) {
		r.logger.Debug("no tsconfig, using defaults", zap.String("path", abs))
		tc = config.DefaultTSConfig(abs)
	} else {
		tc, err = config.LoadTSConfig(abs)
		if err != nil {
			return nil, err
		}
	}

	e := &projectEntry{
		tsconfig: tc,
		project:  typegraph.NewProject(tc.Options()),
		cache:    classify.NewCache(),
	}
	r.entries[abs] = e
	r.logger.Debug("project created",
		zap.String("tsconfig", abs),
		zap.Bool("strict_null_checks", tc.StrictNullChecks))
	return e, nil
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// refresh reloads every loaded module whose file changed on disk so a
// long-lived project never classifies against stale declarations. Caller
// holds e.mu.
func (e *projectEntry) refresh(ctx context.Context, logger *zap.Logger) {
	for _, path := range e.project.Modules() {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if _, err := e.project.LoadModule(ctx, path, data); err != nil {
			logger.Debug("refresh failed", zap.String("path", path), zap.Error(err))
		}
	}
	e.cache.Sync(e.project.Generation())
}
