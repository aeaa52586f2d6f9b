package memory

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownToPlain flattens markdown content into plain text for indexing.
// Formatting is dropped, link and image targets are omitted, and code
// block contents are kept.
func MarkdownToPlain(markdown string) string {
	source := []byte(markdown)
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && b.Len() > 0 {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.AutoLink:
			b.Write(node.URL(source))
		case *ast.FencedCodeBlock:
			writeLines(&b, source, node)
		case *ast.CodeBlock:
			writeLines(&b, source, node)
		case *ast.Image:
			// Alt text comes through as child Text nodes; skip the URL.
		}
		return ast.WalkContinue, nil
	})

	return normalizeWhitespace(b.String())
}

func writeLines(b *strings.Builder, source []byte, node ast.Node) {
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		b.Write(segment.Value(source))
	}
}

// normalizeWhitespace collapses blank runs so the index does not store
// formatting artifacts.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
