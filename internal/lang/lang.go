// Package lang wraps the tree-sitter Rust grammar and the node helpers the
// parser shares.
package lang

import (
	"path/filepath"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// Extension is the suffix of Rust source files.
const Extension = ".rs"

var (
	grammar      = rust.GetLanguage()
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Grammar returns the Rust tree-sitter language.
func Grammar() *sitter.Language {
	return grammar
}

// NewParser returns a parser for Rust sources. Parsers are not safe for
// concurrent use; give each goroutine its own and Close it when done.
func NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(grammar)
	return p
}

// IsSource reports whether name is a Rust source file name.
func IsSource(name string) bool {
	return filepath.Ext(name) == Extension && !strings.HasPrefix(name, ".")
}

// NodeText returns the source text spanned by node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

// CollapseWhitespace folds runs of whitespace into single spaces.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Line returns the 1-based line of a node.
func Line(node *sitter.Node) int {
	return int(node.StartPoint().Row) + 1
}
