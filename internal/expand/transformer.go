// Package expand rewrites an API index module so that every shorthand API
// property of its default-exported object becomes an object of no-op stubs,
// one per function the referenced module exports.
//
//	import * as greetApi from "./greet";
//	export default { greetApi };
//
// becomes
//
//	import * as greetApi from "./greet";
//	export default { greetApi: { hello: () => {}, bye: () => {} } };
package expand

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jward/ipcguard/internal/typegraph"
)

// ErrParse is returned when the module to expand does not parse.
var ErrParse = errors.New("expand: parse failure")

// DefaultSuffix is appended to an import specifier to find the module that
// declares an API.
const DefaultSuffix = ".ts"

// Stub is one generated placeholder function.
type Stub struct {
	API  string
	Func string
}

// Channel returns the message channel the function is dispatched on.
func (s Stub) Channel() string { return s.API + "." + s.Func }

// Expansion describes the rewrite of one shorthand property.
type Expansion struct {
	API       string
	Spec      string
	Path      string
	Functions []string
	Start     int
	End       int
}

// Text returns the replacement text for the property.
func (e Expansion) Text() string {
	if len(e.Functions) == 0 {
		return e.API + ": {}"
	}
	entries := make([]string, len(e.Functions))
	for i, fn := range e.Functions {
		entries[i] = fn + ": () => {}"
	}
	return e.API + ": { " + strings.Join(entries, ", ") + " }"
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithSuffix sets the suffix appended to import specifiers. The default is
// DefaultSuffix.
func WithSuffix(suffix string) Option {
	return func(t *Transformer) { t.suffix = suffix }
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Transformer) { t.logger = l }
}

// Transformer expands shorthand API declarations. Referenced modules are
// resolved against basePath and loaded into project.
type Transformer struct {
	project  *typegraph.Project
	basePath string
	suffix   string
	logger   *zap.Logger
}

// New creates a Transformer.
func New(project *typegraph.Project, basePath string, opts ...Option) *Transformer {
	if abs, err := filepath.Abs(basePath); err == nil {
		basePath = abs
	}
	t := &Transformer{
		project:  project,
		basePath: basePath,
		suffix:   DefaultSuffix,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BasePath returns the directory specifiers are resolved against.
func (t *Transformer) BasePath() string { return t.basePath }

// Expand returns src with every expandable shorthand property rewritten.
// Source that does not match the pattern is returned unchanged. Source that
// does not parse fails with ErrParse.
func (t *Transformer) Expand(ctx context.Context, src []byte, sourcePath string) ([]byte, error) {
	plan, err := t.Plan(ctx, src, sourcePath)
	if err != nil {
		return nil, err
	}
	var edits editSet
	for _, e := range plan {
		edits.replace(e.Start, e.End, e.Text())
	}
	out, err := edits.apply(src)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", sourcePath, err)
	}
	return out, nil
}

// Stubs returns the placeholder functions Expand would generate, in output
// order.
func (t *Transformer) Stubs(ctx context.Context, src []byte, sourcePath string) ([]Stub, error) {
	plan, err := t.Plan(ctx, src, sourcePath)
	if err != nil {
		return nil, err
	}
	var stubs []Stub
	for _, e := range plan {
		for _, fn := range e.Functions {
			stubs = append(stubs, Stub{API: e.API, Func: fn})
		}
	}
	return stubs, nil
}

// Plan loads src as the module at sourcePath, replacing previous content,
// and returns one Expansion per shorthand property that can be expanded,
// in source order.
func (t *Transformer) Plan(ctx context.Context, src []byte, sourcePath string) ([]Expansion, error) {
	m, err := t.project.LoadModule(ctx, sourcePath, src)
	if err != nil {
		if errors.Is(err, typegraph.ErrSyntax) {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}
		return nil, fmt.Errorf("expand %s: %w", sourcePath, err)
	}

	obj := m.DefaultExportValue()
	if obj == nil || obj.Type() != "object" {
		t.logger.Debug("default export is not an object literal", zap.String("path", m.Path()))
		return nil, nil
	}

	var plan []Expansion
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		prop := obj.NamedChild(i)
		if prop.Type() != "shorthand_property_identifier" {
			continue
		}
		api := prop.Content(m.Source())
		spec, ok := m.NamespaceImport(api)
		if !ok {
			t.logger.Debug("no namespace import", zap.String("api", api))
			continue
		}

		target := t.resolve(spec)
		decl, ok, err := t.project.AddModuleIfExists(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("expand %s: api %s: %w", sourcePath, api, err)
		}
		if !ok {
			t.logger.Debug("declarations module not found", zap.String("api", api), zap.String("path", target))
			continue
		}

		fns := decl.ExportedFunctionNames()
		plan = append(plan, Expansion{
			API:       api,
			Spec:      spec,
			Path:      decl.Path(),
			Functions: fns,
			Start:     int(prop.StartByte()),
			End:       int(prop.EndByte()),
		})
		t.logger.Debug("expanding api",
			zap.String("api", api),
			zap.String("module", decl.Path()),
			zap.Int("functions", len(fns)))
	}
	return plan, nil
}

func (t *Transformer) resolve(spec string) string {
	if filepath.IsAbs(spec) {
		return spec + t.suffix
	}
	return filepath.Join(t.basePath, spec+t.suffix)
}
