package store

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// HashContent returns the hex sha256 of a file's content.
func HashContent(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// ComputeConfigHash computes a deterministic hash over the settings that
// change check results. Keys are sorted, so map order never matters.
func ComputeConfigHash(settings map[string]string) string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s:%s\n", k, settings[k])
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// DependenciesChanged reports whether any recorded dependency now hashes
// differently. current maps a path to its present hash; a missing path
// counts as changed.
func DependenciesChanged(deps []*Dependency, current func(path string) (string, bool)) bool {
	for _, d := range deps {
		h, ok := current(d.Path)
		if !ok || h != d.Hash {
			return true
		}
	}
	return false
}
