// ABOUTME: Flattens Webex markdown message bodies into plain console text
// ABOUTME: Walks the goldmark AST so formatting syntax never reaches the buffer

package render

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Plain converts a markdown message body to plain text suitable for a
// line-oriented chat buffer. Block elements become newline-separated
// lines, list items get a leading dash, and link destinations are
// appended in parentheses. On any parse irregularity the input is
// returned unchanged.
func Plain(markdown string) string {
	src := []byte(markdown)
	parser := goldmark.New().Parser()
	root := parser.Parse(text.NewReader(src))

	var buf strings.Builder
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
		case *ast.Paragraph, *ast.Heading:
			if !entering {
				buf.WriteByte('\n')
			}
		case *ast.ListItem:
			if entering {
				buf.WriteString("- ")
			}
		case *ast.Link:
			if !entering && len(node.Destination) > 0 {
				buf.WriteString(" (")
				buf.Write(node.Destination)
				buf.WriteByte(')')
			}
		case *ast.AutoLink:
			if entering {
				buf.Write(node.URL(src))
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(src))
				}
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return markdown
	}

	return strings.TrimRight(buf.String(), "\n")
}

// MessageText selects the best plain-text rendering for a message:
// the markdown body flattened when present, the text body otherwise.
func MessageText(textBody, markdownBody string) string {
	if markdownBody != "" {
		return Plain(markdownBody)
	}
	return textBody
}
