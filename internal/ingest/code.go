package ingest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gtext "github.com/yuin/goldmark/text"
)

var codeParser = goldmark.New()

// ContainsCode reports whether message text carries a fenced code block
// or an inline code span. The fence check is a fast path; anything else
// goes through a markdown AST walk so single-backtick spans count too.
func ContainsCode(content string) bool {
	if content == "" {
		return false
	}
	if strings.Contains(content, "```") {
		return true
	}
	if !strings.Contains(content, "`") {
		return false
	}

	source := []byte(content)
	doc := codeParser.Parser().Parse(gtext.NewReader(source))

	found := false
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeSpan:
			found = true
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return found
}
