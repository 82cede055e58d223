package runtime

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ScriptSurface is an API-surface predicate backed by a Risor script. The
// script sees the candidate file as the globals file_path (absolute, slash
// separated) and rel_path (relative to the project root, empty when outside
// it).
// The file is on the surface when the script's final value is truthy.
type ScriptSurface struct {
	rt     *Runtime
	label  string
	source string
	root   string
	logger *zap.Logger
}

// NewScriptSurface loads the script at scriptPath. Relative paths resolve
// against the Runtime's scripts directory.
func NewScriptSurface(rt *Runtime, scriptPath, root string) (*ScriptSurface, error) {
	src, err := rt.LoadScript(scriptPath)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &ScriptSurface{
		rt:     rt,
		label:  scriptPath,
		source: src,
		root:   root,
		logger: rt.logger,
	}, nil
}

// Evaluate runs the script for path.
func (s *ScriptSurface) Evaluate(ctx context.Context, path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("runtime: surface %s: %w", path, err)
	}
	rel := ""
	if r, err := filepath.Rel(s.root, abs); err == nil && !strings.HasPrefix(r, "..") {
		rel = filepath.ToSlash(r)
	}
	result, err := s.rt.eval(ctx, s.source, s.label, map[string]any{
		"file_path": filepath.ToSlash(abs),
		"rel_path":  rel,
	})
	if err != nil {
		return false, err
	}
	return result != nil && result.IsTruthy(), nil
}

// Contains reports whether path is on the surface. A failing script
// excludes the file and logs the error.
func (s *ScriptSurface) Contains(path string) bool {
	ok, err := s.Evaluate(context.Background(), path)
	if err != nil {
		s.logger.Warn("surface script failed", zap.String("path", path), zap.Error(err))
		return false
	}
	return ok
}
