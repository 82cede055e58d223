package ipcguard

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jward/ipcguard/internal/classify"
	"github.com/jward/ipcguard/internal/config"
	"github.com/jward/ipcguard/internal/discover"
	"github.com/jward/ipcguard/internal/expand"
	"github.com/jward/ipcguard/internal/runtime"
	"github.com/jward/ipcguard/internal/scan"
	"github.com/jward/ipcguard/internal/store"
	"github.com/jward/ipcguard/internal/typegraph"
)

// Engine orchestrates the ipcguard pipeline: file discovery, change
// detection, signature checking, stub expansion and query access.
type Engine struct {
	store    *store.Store
	cfg      *config.Config
	registry *registry
	runtime  *runtime.Runtime

	surface     scan.Surface
	surfaceHash string
	policy      *classify.Policy
	prefilter   *bool
	force       bool
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPrefilter overrides the config's prefilter setting.
func WithPrefilter(enabled bool) Option {
	return func(e *Engine) { e.prefilter = &enabled }
}

// WithSurface replaces the API surface the config describes.
func WithSurface(s scan.Surface) Option {
	return func(e *Engine) { e.surface = s }
}

// WithPolicy overrides the config's classifier policy.
func WithPolicy(p classify.Policy) Option {
	return func(e *Engine) { e.policy = &p }
}

// WithForce re-checks every file even when nothing it depends on changed.
func WithForce(force bool) Option {
	return func(e *Engine) { e.force = force }
}

// New creates an Engine backed by a SQLite database at dbPath. A nil cfg
// is the default configuration rooted at the working directory.
func New(dbPath string, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("ipcguard: %w", err)
		}
		cfg = config.Default(wd)
	}

	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("ipcguard: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("ipcguard: migrate: %w", err)
	}

	e := &Engine{
		store:  s,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registry = newRegistry(e.logger)

	if e.policy == nil {
		p, err := cfg.ClassifyPolicy()
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("ipcguard: %w", err)
		}
		e.policy = &p
	}
	if e.prefilter == nil {
		v := cfg.Prefilter
		e.prefilter = &v
	}
	if err := e.buildSurface(); err != nil {
		s.Close()
		return nil, fmt.Errorf("ipcguard: surface: %w", err)
	}
	return e, nil
}

// buildSurface resolves the surface predicate. A configured script runs in
// a Runtime that sees the same type graph as the checker.
func (e *Engine) buildSurface() error {
	switch {
	case e.surface != nil:
		e.surfaceHash = fmt.Sprintf("custom:%T", e.surface)
	case e.cfg.Surface.Script != "":
		entry, err := e.registry.get(e.cfg.Tsconfig)
		if err != nil {
			return err
		}
		e.runtime = runtime.NewRuntime(e.cfg.Dir,
			runtime.WithProject(entry.project),
			runtime.WithLogger(e.logger))
		src, err := e.runtime.LoadScript(e.cfg.Surface.Script)
		if err != nil {
			return err
		}
		ss, err := runtime.NewScriptSurface(e.runtime, e.cfg.Surface.Script, e.cfg.Dir)
		if err != nil {
			return err
		}
		e.surface = ss
		e.surfaceHash = "script:" + store.HashContent([]byte(src))
	default:
		e.surface = scan.DirSurface{Dir: e.cfg.Surface.Dir}
		e.surfaceHash = "dir:" + e.cfg.Surface.Dir
	}
	return nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Config returns the configuration the Engine was built from.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// configHash covers every setting that changes check results for entry.
func (e *Engine) configHash(entry *projectEntry) string {
	return store.ComputeConfigHash(map[string]string{
		"policy":                    e.policy.String(),
		"await_returns":             strconv.FormatBool(e.cfg.Policy.AwaitReturns),
		"surface":                   e.surfaceHash,
		"tsconfig":                  entry.tsconfig.Path,
		"strict_null_checks":        strconv.FormatBool(entry.tsconfig.StrictNullChecks),
		"exact_optional_properties": strconv.FormatBool(entry.tsconfig.ExactOptionalPropertyTypes),
	})
}

// ConfigChanged reports whether the settings differ from the ones the last
// run used. It is true before the first run.
func (e *Engine) ConfigChanged() (bool, error) {
	entry, err := e.registry.get(e.cfg.Tsconfig)
	if err != nil {
		return false, fmt.Errorf("ipcguard: %w", err)
	}
	stored, err := e.store.GetMetadata("config_hash")
	if err != nil {
		return false, fmt.Errorf("ipcguard: %w", err)
	}
	return stored != e.configHash(entry), nil
}

func (e *Engine) newScanner(entry *projectEntry) *scan.Scanner {
	return scan.New(entry.project, entry.cache,
		scan.WithSurface(e.surface),
		scan.WithPrefilter(*e.prefilter),
		scan.WithAwaitedReturns(e.cfg.Policy.AwaitReturns),
		scan.WithPolicy(*e.policy),
		scan.WithLogger(e.logger.Named("scan")))
}

// CheckFiles checks the given files and every stored file that depended on
// one of them.
//
// For each file:
//  1. Drop stored data when the file no longer exists
//  2. Skip files outside the API surface
//  3. Skip unchanged files (same content, config and dependency hashes)
//     and replay their stored diagnostics
//  4. Scan, then buffer the file, its dependencies and its diagnostics
//
// The buffered results are committed in one transaction. Errors on
// individual files are collected and processing continues; the Report is
// returned alongside the summarizing error.
func (e *Engine) CheckFiles(ctx context.Context, paths []string) (*Report, error) {
	entry, err := e.registry.get(e.cfg.Tsconfig)
	if err != nil {
		return nil, fmt.Errorf("ipcguard: %w", err)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.refresh(ctx, e.logger)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("ipcguard: run id: %w", err)
	}
	cfgHash := e.configHash(entry)
	run := &store.Run{RunID: id.String(), StartedAt: time.Now(), ConfigHash: cfgHash}
	if _, err := e.store.InsertRun(run); err != nil {
		return nil, fmt.Errorf("ipcguard: %w", err)
	}
	report := &Report{RunID: run.RunID}

	targets, err := e.withDependents(paths)
	if err != nil {
		return nil, fmt.Errorf("ipcguard: %w", err)
	}

	c := &check{
		engine:  e,
		entry:   entry,
		scanner: e.newScanner(entry),
		cfgHash: cfgHash,
		runID:   run.RunID,
		batch:   store.NewBatchedStore(),
		hashes:  make(map[string]string),
		report:  report,
	}

	var errs []error
	for _, path := range targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := c.file(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("check %s: %w", path, err))
		}
	}

	if !c.batch.Empty() {
		if err := e.store.CommitBatch(c.batch); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.store.SetMetadata("config_hash", cfgHash); err != nil {
		errs = append(errs, err)
	}

	report.Errors = errs
	run.FilesChecked = report.Checked
	run.FilesSkipped = report.Skipped
	run.Diagnostics = len(report.Diagnostics)
	run.Errors = len(errs)
	if err := e.store.FinishRun(run); err != nil {
		e.logger.Warn("finish run", zap.String("run_id", run.RunID), zap.Error(err))
	}

	e.logger.Info("check finished",
		zap.String("run_id", run.RunID),
		zap.Int("checked", report.Checked),
		zap.Int("skipped", report.Skipped),
		zap.Int("diagnostics", len(report.Diagnostics)),
		zap.Int("errors", len(errs)))

	if len(errs) > 0 {
		return report, fmt.Errorf("check had %d error(s): %w", len(errs), errs[0])
	}
	return report, nil
}

// withDependents returns the absolute, deduplicated paths followed by the
// stored files that recorded any of them as a dependency.
func (e *Engine) withDependents(paths []string) ([]string, error) {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	}
	dependents, err := e.store.DependentFiles(out)
	if err != nil {
		return nil, err
	}
	for _, p := range dependents {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

// check holds the state of one CheckFiles run.
type check struct {
	engine  *Engine
	entry   *projectEntry
	scanner *scan.Scanner
	cfgHash string
	runID   string
	batch   *store.BatchedStore
	hashes  map[string]string // path -> content hash, "" when unreadable
	report  *Report
}

func (c *check) file(ctx context.Context, path string) error {
	st := c.engine.store

	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c.batch.RemoveFile(path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	hash := store.HashContent(content)
	c.hashes[path] = hash

	existing, err := st.FileByPath(path)
	if err != nil {
		return fmt.Errorf("lookup file: %w", err)
	}

	if !c.scanner.Applies(path) {
		if existing != nil {
			c.batch.RemoveFile(path)
		}
		return nil
	}

	if existing != nil && !c.engine.force {
		replayed, ok, err := c.replay(existing, hash)
		if err != nil {
			return err
		}
		if ok {
			c.report.Skipped++
			c.report.Diagnostics = append(c.report.Diagnostics, replayed...)
			return nil
		}
	}

	diags, err := c.scanner.Scan(ctx, path, content)
	if err != nil {
		return err
	}
	c.report.Checked++
	c.report.Diagnostics = append(c.report.Diagnostics, diags...)

	fileID := c.batch.AddFile(&store.File{
		Path:        path,
		Hash:        hash,
		ConfigHash:  c.cfgHash,
		LastChecked: time.Now(),
	})
	for _, dep := range dependencyClosure(c.entry.project, path) {
		if h, ok := c.hash(dep); ok {
			c.batch.AddDependency(&store.Dependency{FileID: fileID, Path: dep, Hash: h})
		}
	}
	for _, d := range diags {
		c.batch.AddDiagnostic(toRecord(fileID, c.runID, path, d))
	}
	return nil
}

// replay returns the stored diagnostics of f when nothing it depends on
// changed.
func (c *check) replay(f *store.File, hash string) ([]Diagnostic, bool, error) {
	st := c.engine.store
	if f.Hash != hash || f.ConfigHash != c.cfgHash {
		return nil, false, nil
	}
	deps, err := st.DependenciesByFile(f.ID)
	if err != nil {
		return nil, false, err
	}
	if store.DependenciesChanged(deps, c.hash) {
		return nil, false, nil
	}
	records, err := st.DiagnosticsByFile(f.ID)
	if err != nil {
		return nil, false, err
	}
	out := make([]Diagnostic, 0, len(records))
	for _, r := range records {
		d, err := fromRecord(r)
		if err != nil {
			// Unreadable rows force a re-check.
			return nil, false, nil
		}
		out = append(out, d)
	}
	return out, true, nil
}

// hash returns the content hash of the file at path, memoized per run.
func (c *check) hash(path string) (string, bool) {
	if h, ok := c.hashes[path]; ok {
		return h, h != ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		c.hashes[path] = ""
		return "", false
	}
	h := store.HashContent(data)
	c.hashes[path] = h
	return h, true
}

// dependencyClosure returns every module reachable from path through
// relative imports and re-exports, excluding path. Modules that were never
// loaded are leaves.
func dependencyClosure(p *typegraph.Project, path string) []string {
	root, ok := p.Module(path)
	if !ok {
		return nil
	}
	seen := map[string]bool{root.Path(): true}
	var out []string
	queue := []*typegraph.Module{root}
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		for _, dep := range m.Dependencies() {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
			if dm, ok := p.Module(dep); ok {
				queue = append(queue, dm)
			}
		}
	}
	return out
}

func toRecord(fileID int64, runID, path string, d Diagnostic) *store.Diagnostic {
	r := &store.Diagnostic{
		FileID:    fileID,
		RunID:     runID,
		Kind:      d.Kind.String(),
		FuncName:  d.FuncName,
		ParamName: d.ParamName,
		TypeText:  d.Type,
		Line:      d.Line,
		Col:       d.Column,
		Offset:    d.Offset,
		Message:   d.Message(),
	}
	if d.Path != path {
		r.DeclPath = d.Path
	}
	return r
}

func fromRecord(r *store.Diagnostic) (Diagnostic, error) {
	kind, err := scan.ParseKind(r.Kind)
	if err != nil {
		return Diagnostic{}, err
	}
	path := r.Path
	if r.DeclPath != "" {
		path = r.DeclPath
	}
	return Diagnostic{
		Kind:      kind,
		FuncName:  r.FuncName,
		ParamName: r.ParamName,
		Type:      r.TypeText,
		Path:      path,
		Line:      r.Line,
		Column:    r.Col,
		Offset:    r.Offset,
	}, nil
}

// CheckDirectory discovers the TypeScript files under root and checks
// them. When root is the tsconfig directory its include and exclude
// patterns narrow discovery. Stored files under root that no longer exist
// are dropped.
func (e *Engine) CheckDirectory(ctx context.Context, root string) (*Report, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("ipcguard: %w", err)
	}
	entry, err := e.registry.get(e.cfg.Tsconfig)
	if err != nil {
		return nil, fmt.Errorf("ipcguard: %w", err)
	}

	var opts discover.Options
	if absRoot == entry.tsconfig.Dir {
		opts.Include = entry.tsconfig.Include
		opts.Exclude = entry.tsconfig.Exclude
	}
	paths, err := discover.Paths(ctx, absRoot, opts)
	if err != nil {
		return nil, fmt.Errorf("ipcguard: discover: %w", err)
	}

	found := make(map[string]bool, len(paths))
	for _, p := range paths {
		found[p] = true
	}
	stored, err := e.store.Files()
	if err != nil {
		return nil, fmt.Errorf("ipcguard: %w", err)
	}
	prefix := absRoot + string(filepath.Separator)
	for _, f := range stored {
		if strings.HasPrefix(f.Path, prefix) && !found[f.Path] {
			if _, err := os.Stat(f.Path); errors.Is(err, fs.ErrNotExist) {
				paths = append(paths, f.Path)
			}
		}
	}

	e.logger.Debug("discovered files", zap.String("root", absRoot), zap.Int("count", len(paths)))
	return e.CheckFiles(ctx, paths)
}

func (e *Engine) transformer(entry *projectEntry) *expand.Transformer {
	return expand.New(entry.project, e.cfg.Expand.DeclarationsRoot,
		expand.WithSuffix(e.cfg.Expand.Suffix),
		expand.WithLogger(e.logger.Named("expand")))
}

// Expand is the build-hook entry point: it rewrites src when fileID names
// the configured expand target and passes every other file through.
func (e *Engine) Expand(ctx context.Context, fileID string, src []byte) (code []byte, applied bool, err error) {
	entry, err := e.registry.get(e.cfg.Tsconfig)
	if err != nil {
		return nil, false, fmt.Errorf("ipcguard: %w", err)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	hook := expand.NewHook(e.cfg.Expand.Target, e.transformer(entry))
	code, applied, err = hook.Transform(ctx, fileID, src)
	if err != nil {
		return nil, false, fmt.Errorf("ipcguard: expand: %w", err)
	}
	entry.cache.Sync(entry.project.Generation())
	return code, applied, nil
}

// ExpandFile rewrites the module at path regardless of the configured
// target.
func (e *Engine) ExpandFile(ctx context.Context, path string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ipcguard: expand: %w", err)
	}
	entry, err := e.registry.get(e.cfg.Tsconfig)
	if err != nil {
		return nil, fmt.Errorf("ipcguard: %w", err)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	out, err := e.transformer(entry).Expand(ctx, src, path)
	if err != nil {
		return nil, fmt.Errorf("ipcguard: expand: %w", err)
	}
	entry.cache.Sync(entry.project.Generation())
	return out, nil
}

// Stubs lists the stubs expansion would generate for the module at path,
// each with its dispatch channel name.
func (e *Engine) Stubs(ctx context.Context, path string) ([]Stub, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ipcguard: stubs: %w", err)
	}
	entry, err := e.registry.get(e.cfg.Tsconfig)
	if err != nil {
		return nil, fmt.Errorf("ipcguard: %w", err)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	stubs, err := e.transformer(entry).Stubs(ctx, src, path)
	if err != nil {
		return nil, fmt.Errorf("ipcguard: stubs: %w", err)
	}
	entry.cache.Sync(entry.project.Generation())
	return stubs, nil
}
