package expand

import (
	"context"
	"path/filepath"
	"strings"
)

// Hook is the build-pipeline entry point. It applies the Transformer to a
// single target module and passes every other file through. It must run
// before any transform that could change the shape of the default export.
type Hook struct {
	target      string
	transformer *Transformer
}

// NewHook creates a Hook for the module at target.
func NewHook(target string, tr *Transformer) *Hook {
	return &Hook{target: absPath(target), transformer: tr}
}

// Target returns the absolute path of the module the hook rewrites.
func (h *Hook) Target() string { return h.target }

// Applies reports whether fileID names the target module. Bundler query
// suffixes such as "?v=3" are ignored.
func (h *Hook) Applies(fileID string) bool {
	if i := strings.IndexByte(fileID, '?'); i >= 0 {
		fileID = fileID[:i]
	}
	if fileID == "" || strings.HasPrefix(fileID, "\x00") {
		return false
	}
	return absPath(fileID) == h.target
}

// Transform rewrites src when fileID is the target. applied is false when
// the hook does not apply, in which case code is src unchanged.
func (h *Hook) Transform(ctx context.Context, fileID string, src []byte) (code []byte, applied bool, err error) {
	if !h.Applies(fileID) {
		return src, false, nil
	}
	out, err := h.transformer.Expand(ctx, src, h.target)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
