package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/jward/ipcguard/internal/typegraph"
)

// maxExtendsDepth bounds "extends" chains.
const maxExtendsDepth = 8

// TSConfig is the subset of tsconfig.json that affects analysis.
type TSConfig struct {
	Path    string
	Dir     string
	Include []string
	Exclude []string

	Strict                     bool
	StrictNullChecks           bool
	ExactOptionalPropertyTypes bool
}

type rawTSConfig struct {
	Extends         string   `json:"extends"`
	Include         []string `json:"include"`
	Exclude         []string `json:"exclude"`
	CompilerOptions struct {
		Strict                     *bool `json:"strict"`
		StrictNullChecks           *bool `json:"strictNullChecks"`
		ExactOptionalPropertyTypes *bool `json:"exactOptionalPropertyTypes"`
	} `json:"compilerOptions"`
}

// LoadTSConfig reads a tsconfig.json, following relative "extends"
// references. Files are parsed as JSON with comments and trailing commas.
func LoadTSConfig(path string) (*TSConfig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("tsconfig: %w", err)
	}
	raw, err := loadRaw(abs, 0)
	if err != nil {
		return nil, err
	}

	tc := &TSConfig{
		Path:    abs,
		Dir:     filepath.Dir(abs),
		Include: raw.Include,
		Exclude: raw.Exclude,
	}
	opts := raw.CompilerOptions
	if opts.Strict != nil {
		tc.Strict = *opts.Strict
	}
	tc.StrictNullChecks = tc.Strict
	if opts.StrictNullChecks != nil {
		tc.StrictNullChecks = *opts.StrictNullChecks
	}
	if opts.ExactOptionalPropertyTypes != nil {
		tc.ExactOptionalPropertyTypes = *opts.ExactOptionalPropertyTypes
	}
	return tc, nil
}

// DefaultTSConfig is used when a project has no tsconfig.json.
func DefaultTSConfig(path string) *TSConfig {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &TSConfig{Path: abs, Dir: filepath.Dir(abs)}
}

// Options returns the type-graph options the compiler settings imply.
func (tc *TSConfig) Options() typegraph.Options {
	return typegraph.Options{
		StrictNullChecks:           tc.StrictNullChecks,
		ExactOptionalPropertyTypes: tc.ExactOptionalPropertyTypes,
	}
}

func loadRaw(path string, depth int) (*rawTSConfig, error) {
	if depth > maxExtendsDepth {
		return nil, fmt.Errorf("tsconfig: %s: extends chain too deep", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tsconfig: reading %s: %w", path, err)
	}
	var raw rawTSConfig
	if err := decodeJSONC(data, &raw); err != nil {
		return nil, fmt.Errorf("tsconfig: parsing %s: %w", path, err)
	}
	if raw.Extends == "" || !strings.HasPrefix(raw.Extends, ".") {
		// Package references ("@tsconfig/node20") are not resolved.
		return &raw, nil
	}

	basePath := filepath.Join(filepath.Dir(path), raw.Extends)
	if filepath.Ext(basePath) != ".json" {
		basePath += ".json"
	}
	base, err := loadRaw(basePath, depth+1)
	if err != nil {
		return nil, err
	}
	// include and exclude are inherited whole, relative to the base file.
	if raw.Include == nil {
		raw.Include = rebase(base.Include, filepath.Dir(basePath), filepath.Dir(path))
	}
	if raw.Exclude == nil {
		raw.Exclude = rebase(base.Exclude, filepath.Dir(basePath), filepath.Dir(path))
	}
	co := &raw.CompilerOptions
	if co.Strict == nil {
		co.Strict = base.CompilerOptions.Strict
	}
	if co.StrictNullChecks == nil {
		co.StrictNullChecks = base.CompilerOptions.StrictNullChecks
	}
	if co.ExactOptionalPropertyTypes == nil {
		co.ExactOptionalPropertyTypes = base.CompilerOptions.ExactOptionalPropertyTypes
	}
	return &raw, nil
}

func rebase(patterns []string, from, to string) []string {
	if patterns == nil || from == to {
		return patterns
	}
	out := make([]string, len(patterns))
	for i, p := range patterns {
		rel, err := filepath.Rel(to, filepath.Join(from, p))
		if err != nil {
			out[i] = p
			continue
		}
		out[i] = filepath.ToSlash(rel)
	}
	return out
}

// decodeJSONC decodes tsconfig-flavored JSON, which allows comments and
// trailing commas, into v.
func decodeJSONC(data []byte, v any) error {
	std, err := hujson.Standardize(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(std, v)
}
