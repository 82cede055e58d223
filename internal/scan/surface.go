package scan

import (
	"path/filepath"
	"strings"
)

// DefaultSurfaceDir is the directory segment that marks the API surface
// when none is configured.
const DefaultSurfaceDir = "src/main/api/"

// Surface decides which modules belong to the API surface. Modules outside
// it are never scanned.
type Surface interface {
	Contains(path string) bool
}

// SurfaceFunc adapts a function to a Surface.
type SurfaceFunc func(path string) bool

// Contains calls f(path).
func (f SurfaceFunc) Contains(path string) bool { return f(path) }

// DirSurface matches every path containing Dir after separators are
// normalized to forward slashes.
type DirSurface struct {
	Dir string
}

// Contains reports whether path lies under the surface directory.
func (s DirSurface) Contains(path string) bool {
	dir := filepath.ToSlash(strings.ReplaceAll(s.Dir, `\`, "/"))
	if dir == "" {
		dir = DefaultSurfaceDir
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	dir = strings.TrimPrefix(dir, "./")
	return strings.Contains(strings.ReplaceAll(path, `\`, "/"), dir)
}

// AnySurface accepts every path.
var AnySurface Surface = SurfaceFunc(func(string) bool { return true })
