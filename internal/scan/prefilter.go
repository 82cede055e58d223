package scan

import (
	"context"

	"github.com/jward/ipcguard/internal/typegraph"
)

// HasExports reports whether src contains a top-level export statement.
// It only parses; no types are resolved. Source that does not parse
// reports true so that the caller goes on to surface the syntax error.
func HasExports(ctx context.Context, path string, src []byte) (bool, error) {
	tree, err := typegraph.Parse(ctx, path, src)
	if tree == nil {
		return false, err
	}
	defer tree.Close()
	if err != nil {
		return true, nil
	}
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		if root.NamedChild(i).Type() == "export_statement" {
			return true, nil
		}
	}
	return false, nil
}
