package typegraph

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// ErrSyntax is returned when a module's source does not parse cleanly.
var ErrSyntax = errors.New("syntax error")

// Parse parses src with the grammar selected by path's extension. A tree
// containing ERROR or MISSING nodes yields an error wrapping ErrSyntax; the
// tree is returned alongside it so callers may still inspect it.
func Parse(ctx context.Context, path string, src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(GrammarForFile(path))

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if bad := firstErrorNode(tree.RootNode()); bad != nil {
		line, col := Position(src, int(bad.StartByte()))
		return tree, fmt.Errorf("%w at %s:%d:%d", ErrSyntax, path, line, col+1)
	}
	return tree, nil
}

// firstErrorNode returns the first ERROR or MISSING node in document order.
func firstErrorNode(root *sitter.Node) *sitter.Node {
	if !root.HasError() {
		return nil
	}
	var walk func(n *sitter.Node) *sitter.Node
	walk = func(n *sitter.Node) *sitter.Node {
		if n.IsError() || n.IsMissing() {
			return n
		}
		if !n.HasError() {
			return nil
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if found := walk(n.Child(i)); found != nil {
				return found
			}
		}
		return nil
	}
	if found := walk(root); found != nil {
		return found
	}
	return root
}

// Position converts a byte offset into a 1-based line and a 0-based column
// counted in UTF-16 code units, the convention editors and lint hosts use.
func Position(src []byte, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	line = 1
	lineStart := 0
	for i := 0; i < offset; i++ {
		if src[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	for b := src[lineStart:offset]; len(b) > 0; {
		r, size := utf8.DecodeRune(b)
		if r >= 0x10000 {
			col += 2
		} else {
			col++
		}
		b = b[size:]
	}
	return line, col
}

// nodeText returns the source text spanned by node.
func nodeText(node *sitter.Node, src []byte) string {
	if node == nil {
		return ""
	}
	return node.Content(src)
}

// hasChild reports whether node has a direct child (named or not) of type typ.
func hasChild(node *sitter.Node, typ string) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == typ {
			return true
		}
	}
	return false
}

// firstNamedChildOfType returns the first named child of type typ, or nil.
func firstNamedChildOfType(node *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if c := node.NamedChild(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

// namedChildren returns the named children of node, skipping comments.
func namedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// unquote strips the delimiters from a string literal node's text.
func unquote(node *sitter.Node, src []byte) string {
	s := nodeText(node, src)
	if len(s) >= 2 {
		switch s[0] {
		case '"', '\'', '`':
			if s[len(s)-1] == s[0] {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}
