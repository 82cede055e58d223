// Package config loads ipcguard.yaml and the tsconfig.json it points at.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/jward/ipcguard/internal/classify"
)

// FileName is the config file looked up by Find.
const FileName = "ipcguard.yaml"

// ErrInvalid is returned for config files that do not match the schema.
var ErrInvalid = errors.New("invalid config")

//go:embed schema.cue
var schemaSource string

// Config is the resolved project configuration. Paths are absolute once
// returned by Load or Default.
type Config struct {
	Tsconfig  string        `yaml:"tsconfig"`
	Surface   SurfaceConfig `yaml:"surface"`
	Expand    ExpandConfig  `yaml:"expand"`
	Policy    PolicyConfig  `yaml:"policy"`
	Prefilter bool          `yaml:"prefilter"`
	Database  string        `yaml:"database"`

	// Dir is the directory the config was loaded from.
	Dir string `yaml:"-"`
}

// SurfaceConfig selects the files whose exports form the API surface.
// Dir is a path fragment matched anywhere in a file path; Script, when
// set, replaces it with a Risor predicate.
type SurfaceConfig struct {
	Dir    string `yaml:"dir"`
	Script string `yaml:"script"`
}

// ExpandConfig configures stub expansion.
type ExpandConfig struct {
	Target           string `yaml:"target"`
	DeclarationsRoot string `yaml:"declarations_root"`
	Suffix           string `yaml:"suffix"`
}

// PolicyConfig mirrors classify.Policy plus return unwrapping.
type PolicyConfig struct {
	MissingDeclaration string `yaml:"missing_declaration"`
	Cycle              string `yaml:"cycle"`
	AwaitReturns       bool   `yaml:"await_returns"`
}

// Default returns the configuration used when no file exists, rooted at
// dir.
func Default(dir string) *Config {
	c := defaults()
	c.resolve(dir)
	return c
}

func defaults() *Config {
	return &Config{
		Tsconfig: "tsconfig.json",
		Surface:  SurfaceConfig{Dir: "src/main/api/"},
		Expand: ExpandConfig{
			Target: "src/main/api/index.ts",
			Suffix: ".ts",
		},
		Policy: PolicyConfig{
			MissingDeclaration: "permit",
			Cycle:              "optimistic",
			AwaitReturns:       false,
		},
		Prefilter: true,
		Database:  ".ipcguard/index.db",
	}
}

// Load reads, validates and resolves the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes YAML config data. Relative paths resolve against dir.
func Parse(data []byte, dir string) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if raw != nil {
		if err := validate(raw); err != nil {
			return nil, err
		}
	}

	c := defaults()
	if raw != nil {
		// Decoding over the defaults keeps every key the file omits.
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	c.resolve(dir)
	return c, nil
}

func validate(raw any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (c *Config) resolve(dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	c.Dir = dir
	c.Tsconfig = resolvePath(dir, c.Tsconfig)
	c.Expand.Target = resolvePath(dir, c.Expand.Target)
	c.Database = resolvePath(dir, c.Database)
	if c.Surface.Script != "" {
		c.Surface.Script = resolvePath(dir, c.Surface.Script)
	}
	if c.Expand.DeclarationsRoot == "" {
		c.Expand.DeclarationsRoot = filepath.Dir(c.Expand.Target)
	} else {
		c.Expand.DeclarationsRoot = resolvePath(dir, c.Expand.DeclarationsRoot)
	}
	if c.Expand.Suffix == "" {
		c.Expand.Suffix = ".ts"
	}
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// ClassifyPolicy converts the policy section.
func (c *Config) ClassifyPolicy() (classify.Policy, error) {
	missing, err := classify.ParseMissingDeclaration(c.Policy.MissingDeclaration)
	if err != nil {
		return classify.Policy{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cycle, err := classify.ParseCycle(c.Policy.Cycle)
	if err != nil {
		return classify.Policy{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return classify.Policy{MissingDeclaration: missing, Cycle: cycle}, nil
}

// Find walks up from dir looking for FileName. It returns the path of the
// first match, or "" when none exists up to the filesystem root.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(abs, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", nil
		}
		abs = parent
	}
}

// LoadOrDefault loads the config at path. An empty path searches upward
// from dir, falling back to Default(dir).
func LoadOrDefault(path, dir string) (*Config, error) {
	if path == "" {
		found, err := Find(dir)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if found == "" {
			return Default(dir), nil
		}
		path = found
	}
	return Load(path)
}
