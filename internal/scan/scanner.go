// Package scan checks the exported functions of API surface modules and
// reports every parameter and return value whose declared type is not
// serializable.
package scan

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jward/ipcguard/internal/classify"
	"github.com/jward/ipcguard/internal/typegraph"
)

// Option configures a Scanner.
type Option func(*Scanner)

// WithSurface sets the API surface predicate. The default is
// DirSurface{Dir: DefaultSurfaceDir}.
func WithSurface(s Surface) Option {
	return func(sc *Scanner) { sc.surface = s }
}

// WithPrefilter enables the syntactic export check that skips modules
// without export statements before they reach the type graph.
func WithPrefilter(enabled bool) Option {
	return func(sc *Scanner) { sc.prefilter = enabled }
}

// WithAwaitedReturns classifies a Promise<T> return as T. Disabled by
// default, so a Promise return is classified as declared.
func WithAwaitedReturns(enabled bool) Option {
	return func(sc *Scanner) { sc.awaitReturns = enabled }
}

// WithPolicy sets the classifier policy.
func WithPolicy(p classify.Policy) Option {
	return func(sc *Scanner) { sc.policy = p }
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(sc *Scanner) { sc.logger = l }
}

// Scanner walks the exports of API surface modules and classifies their
// signatures. It shares the Project and Cache it is given; both must belong
// to the same project configuration.
type Scanner struct {
	project      *typegraph.Project
	cache        *classify.Cache
	classifier   *classify.Classifier
	surface      Surface
	prefilter    bool
	awaitReturns bool
	policy       classify.Policy
	logger       *zap.Logger
}

// New creates a Scanner over project using cache for classification
// results.
func New(project *typegraph.Project, cache *classify.Cache, opts ...Option) *Scanner {
	if cache == nil {
		cache = classify.NewCache()
	}
	s := &Scanner{
		project:      project,
		cache:        cache,
		surface:      DirSurface{Dir: DefaultSurfaceDir},
		awaitReturns: false,
		policy:       classify.DefaultPolicy(),
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.classifier = classify.New(cache, classify.WithPolicy(s.policy))
	return s
}

// Classifier returns the classifier the scanner uses.
func (s *Scanner) Classifier() *classify.Classifier { return s.classifier }

// Applies reports whether path is inside the API surface.
func (s *Scanner) Applies(path string) bool {
	return s.surface == nil || s.surface.Contains(path)
}

// Scan loads src as the module at path, replacing any previous content, and
// returns its diagnostics in export order, each function's parameters in
// declaration order followed by its return value. A nil src is read from
// disk. Modules outside the surface produce no diagnostics and are not
// loaded. A module that cannot be read or parsed aborts with an error.
func (s *Scanner) Scan(ctx context.Context, path string, src []byte) ([]Diagnostic, error) {
	if !s.Applies(path) {
		s.logger.Debug("outside api surface", zap.String("path", path))
		return nil, nil
	}

	if s.prefilter {
		if src == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("scan %s: %w", path, err)
			}
			src = data
		}
		ok, err := HasExports(ctx, path, src)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", path, err)
		}
		if !ok {
			s.logger.Debug("no exports", zap.String("path", path))
			return nil, nil
		}
	}

	m, err := s.project.LoadModule(ctx, path, src)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	if s.cache.Sync(s.project.Generation()) {
		s.logger.Debug("classification cache reset", zap.Uint64("generation", s.project.Generation()))
	}

	diags := s.ScanModule(m)
	s.logger.Debug("scanned module",
		zap.String("path", m.Path()),
		zap.Int("diagnostics", len(diags)))
	return diags, nil
}

// ScanModule checks a module that is already loaded.
func (s *Scanner) ScanModule(m *typegraph.Module) []Diagnostic {
	var diags []Diagnostic
	for _, ex := range m.ExportedDeclarations() {
		for _, d := range ex.Declarations {
			diags = append(diags, s.checkDeclaration(ex.Name, d)...)
		}
	}
	return diags
}

func (s *Scanner) checkDeclaration(name string, d *typegraph.Declaration) []Diagnostic {
	if d.TypeOnly() {
		return nil
	}
	sigs := d.Type().CallSignatures()
	if len(sigs) == 0 {
		return nil
	}
	sig := sigs[0]

	line, col := typegraph.Position(d.Module().Source(), d.Offset())
	at := Diagnostic{
		FuncName: name,
		Path:     d.Module().Path(),
		Line:     line,
		Column:   col,
		Offset:   d.Offset(),
	}

	var diags []Diagnostic
	for _, prm := range sig.Params {
		if prm.Type == nil {
			continue
		}
		if s.classifier.Classify(prm.Type) == classify.NotSerializable {
			diag := at
			diag.Kind = NonSerializableParam
			diag.ParamName = prm.Name
			diag.Type = prm.Type.Text()
			diags = append(diags, diag)
		}
	}

	if ret := sig.Return; ret != nil {
		if s.awaitReturns {
			ret = typegraph.Awaited(ret)
		}
		if s.classifier.Classify(ret) == classify.NotSerializable {
			diag := at
			diag.Kind = NonSerializableReturn
			diag.Type = ret.Text()
			diags = append(diags, diag)
		}
	}
	return diags
}
