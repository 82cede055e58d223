package runtime

import (
	"context"
	"os"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"

	"github.com/jward/ipcguard/internal/typegraph"
)

// parsedFile is one tree parsed during a script evaluation, with the
// source and grammar needed to read text and run queries against it.
type parsedFile struct {
	tree *sitter.Tree
	src  []byte
	lang *sitter.Language
}

// sourceStore owns the trees parsed during one script evaluation.
// smacker/go-tree-sitter has no Node.Tree(), so trees are found again
// through the pointer of their root node.
type sourceStore struct {
	mu     sync.Mutex
	byRoot map[uintptr]*parsedFile
	byPath map[string]*parsedFile
}

func newSourceStore() *sourceStore {
	return &sourceStore{
		byRoot: make(map[uintptr]*parsedFile),
		byPath: make(map[string]*parsedFile),
	}
}

func rootKey(node *sitter.Node) uintptr {
	for node.Parent() != nil {
		node = node.Parent()
	}
	return uintptr(unsafe.Pointer(node))
}

func (s *sourceStore) add(path string, pf *parsedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRoot[rootKey(pf.tree.RootNode())] = pf
	if path != "" {
		s.byPath[path] = pf
	}
}

// cached returns the tree already parsed for path in this evaluation.
func (s *sourceStore) cached(path string) (*parsedFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pf, ok := s.byPath[path]
	return pf, ok
}

// lookup finds the parsed file a node belongs to.
func (s *sourceStore) lookup(node *sitter.Node) (*parsedFile, bool) {
	key := rootKey(node)
	s.mu.Lock()
	defer s.mu.Unlock()
	pf, ok := s.byRoot[key]
	return pf, ok
}

func (s *sourceStore) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pf := range s.byRoot {
		pf.tree.Close()
	}
	clear(s.byRoot)
	clear(s.byPath)
}

func (s *sourceStore) parse(ctx context.Context, path string, src []byte, lang *sitter.Language) (*parsedFile, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	pf := &parsedFile{tree: tree, src: src, lang: lang}
	s.add(path, pf)
	return pf, nil
}

// Argument helpers. Each returns a Risor error object on mismatch.

func stringArg(fn string, args []object.Object, i int) (string, *object.Error) {
	s, ok := args[i].(*object.String)
	if !ok {
		return "", object.Errorf("%s: argument %d must be a string, got %s", fn, i+1, args[i].Type())
	}
	return s.Value(), nil
}

func nodeArg(fn string, args []object.Object, i int) (*sitter.Node, *object.Error) {
	p, ok := args[i].(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: argument %d must be a node, got %s", fn, i+1, args[i].Type())
	}
	n, ok := p.Interface().(*sitter.Node)
	if !ok || n == nil {
		return nil, object.Errorf("%s: argument %d must be a node, got %T", fn, i+1, p.Interface())
	}
	return n, nil
}

func proxyOf(fn string, v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		return object.Errorf("%s: %v", fn, err)
	}
	return p
}

// makeParseFn creates the "parse" host function. The grammar follows the
// file extension, and a file parsed twice in one evaluation is read once.
//
// parse(path) → Tree
func makeParseFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("parse", 1, len(args))
		}
		path, errObj := stringArg("parse", args, 0)
		if errObj != nil {
			return errObj
		}
		if pf, ok := ss.cached(path); ok {
			return proxyOf("parse", pf.tree)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return object.Errorf("parse: reading %s: %v", path, err)
		}
		pf, err := ss.parse(ctx, path, src, typegraph.GrammarForFile(path))
		if err != nil {
			return object.Errorf("parse: %s: %v", path, err)
		}
		return proxyOf("parse", pf.tree)
	})
}

// makeParseSrcFn creates "parse_src" for source text. The dialect is
// "typescript" (default) or "tsx".
//
// parse_src(source, [dialect]) → Tree
func makeParseSrcFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 || len(args) > 2 {
			return object.Errorf("parse_src: expected 1 or 2 arguments, got %d", len(args))
		}
		src, errObj := stringArg("parse_src", args, 0)
		if errObj != nil {
			return errObj
		}
		dialect := "typescript"
		if len(args) == 2 {
			if dialect, errObj = stringArg("parse_src", args, 1); errObj != nil {
				return errObj
			}
		}
		lang, ok := typegraph.GrammarForDialect(dialect)
		if !ok {
			return object.Errorf("parse_src: unsupported dialect %q", dialect)
		}
		pf, err := ss.parse(ctx, "", []byte(src), lang)
		if err != nil {
			return object.Errorf("parse_src: %v", err)
		}
		return proxyOf("parse_src", pf.tree)
	})
}

// makeNodeTextFn creates "node_text". Risor cannot pass the []byte that
// Node.Content expects, so the source is supplied from the store.
//
// node_text(node) → string
func makeNodeTextFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		node, errObj := nodeArg("node_text", args, 0)
		if errObj != nil {
			return errObj
		}
		pf, ok := ss.lookup(node)
		if !ok {
			return object.Errorf("node_text: node does not belong to a parsed tree")
		}
		return object.NewString(node.Content(pf.src))
	})
}

// makeQueryFn creates "query". Each match is a map from capture name to
// node; #eq? and #match? predicates are applied.
//
// query(pattern, node) → [map]
func makeQueryFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, errObj := stringArg("query", args, 0)
		if errObj != nil {
			return errObj
		}
		node, errObj := nodeArg("query", args, 1)
		if errObj != nil {
			return errObj
		}
		pf, ok := ss.lookup(node)
		if !ok {
			return object.Errorf("query: node does not belong to a parsed tree")
		}

		q, err := sitter.NewQuery([]byte(pattern), pf.lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()
		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, node)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, pf.src)
			if len(match.Captures) == 0 {
				continue
			}
			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				captures[q.CaptureNameForId(c.Index)] = proxyOf("query", c.Node)
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}

// makeNodeChildFn creates "node_child": ChildByFieldName returning Risor
// nil for a missing field instead of a proxied nil pointer.
//
// node_child(node, field) → node or nil
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		node, errObj := nodeArg("node_child", args, 0)
		if errObj != nil {
			return errObj
		}
		field, errObj := stringArg("node_child", args, 1)
		if errObj != nil {
			return errObj
		}
		child := node.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		return proxyOf("node_child", child)
	})
}

// scriptLog is the "log" global. Messages carry the script label.
type scriptLog struct {
	logger *zap.Logger
}

func (l *scriptLog) Debug(msg string) { l.logger.Debug(msg) }
func (l *scriptLog) Info(msg string)  { l.logger.Info(msg) }
func (l *scriptLog) Warn(msg string)  { l.logger.Warn(msg) }
func (l *scriptLog) Error(msg string) { l.logger.Error(msg) }
