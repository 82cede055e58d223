package runtime

import (
	"context"

	"github.com/risor-io/risor/object"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/jward/ipcguard/internal/typegraph"
)

// makeExportsFn creates the "exports" host function. Type-only exports are
// included; the default export is listed as "default".
//
// exports(path) → []string
func makeExportsFn(p *typegraph.Project) *object.Builtin {
	return object.NewBuiltin("exports", func(ctx context.Context, args ...object.Object) object.Object {
		m, errObj := moduleArg(ctx, p, "exports", args)
		if errObj != nil {
			return errObj
		}
		var names []object.Object
		for _, e := range m.ExportedDeclarations() {
			names = append(names, object.NewString(e.Name))
		}
		return stringList(names)
	})
}

// makeFunctionsFn creates the "functions" host function: the names of the
// function declarations a module exports.
//
// functions(path) → []string
func makeFunctionsFn(p *typegraph.Project) *object.Builtin {
	return object.NewBuiltin("functions", func(ctx context.Context, args ...object.Object) object.Object {
		m, errObj := moduleArg(ctx, p, "functions", args)
		if errObj != nil {
			return errObj
		}
		var names []object.Object
		for _, name := range m.ExportedFunctionNames() {
			names = append(names, object.NewString(name))
		}
		return stringList(names)
	})
}

// makeGlobFn creates the "glob" host function. Patterns use .gitignore
// syntax, so "src/**/api/*.ts" and "!src/api/internal.ts" both work.
//
// glob(pattern, path) → bool
func makeGlobFn() *object.Builtin {
	return object.NewBuiltin("glob", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("glob", 2, len(args))
		}
		pattern, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("glob: pattern must be a string, got %s", args[0].Type())
		}
		path, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("glob: path must be a string, got %s", args[1].Type())
		}
		matcher := ignore.CompileIgnoreLines(pattern.Value())
		return object.NewBool(matcher.MatchesPath(path.Value()))
	})
}

func moduleArg(ctx context.Context, p *typegraph.Project, fn string, args []object.Object) (*typegraph.Module, object.Object) {
	if len(args) != 1 {
		return nil, object.NewArgsError(fn, 1, len(args))
	}
	path, ok := args[0].(*object.String)
	if !ok {
		return nil, object.Errorf("%s: path must be a string, got %s", fn, args[0].Type())
	}
	m, found, err := p.AddModuleIfExists(ctx, path.Value())
	if err != nil {
		return nil, object.Errorf("%s: %v", fn, err)
	}
	if !found {
		return nil, object.Errorf("%s: no such module %s", fn, path.Value())
	}
	return m, nil
}

func stringList(items []object.Object) object.Object {
	if items == nil {
		items = []object.Object{}
	}
	return object.NewList(items)
}
