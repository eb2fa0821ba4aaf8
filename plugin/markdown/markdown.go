// Package markdown renders markdown answers from the AI service as plain
// terminal text.
package markdown

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var (
	md         = goldmark.New(goldmark.WithExtensions(extension.GFM))
	blankLines = regexp.MustCompile(`\n{3,}`)
)

// ToPlainText drops markdown syntax and keeps the readable text: list
// bullets become "•" or "N.", code blocks are indented, link targets follow
// their text in parentheses, raw HTML is dropped.
func ToPlainText(source string) string {
	src := []byte(source)
	doc := md.Parser().Parse(text.NewReader(src))

	r := &renderer{src: src}
	_ = ast.Walk(doc, r.walk)

	out := blankLines.ReplaceAllString(r.b.String(), "\n\n")
	return strings.TrimSpace(out)
}

type renderer struct {
	src   []byte
	b     strings.Builder
	depth int
}

func (r *renderer) newline() {
	s := r.b.String()
	if len(s) > 0 && !strings.HasSuffix(s, "\n") {
		r.b.WriteByte('\n')
	}
}

func (r *renderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading, *ast.Paragraph:
		if !entering {
			r.newline()
			if !inTightList(n) {
				r.b.WriteByte('\n')
			}
		}
	case *ast.TextBlock:
		if !entering {
			r.newline()
		}
	case *ast.List:
		if entering {
			r.depth++
		} else {
			r.depth--
			if r.depth == 0 {
				r.newline()
				r.b.WriteByte('\n')
			}
		}
	case *ast.ListItem:
		if entering {
			r.newline()
			r.b.WriteString(strings.Repeat("  ", r.depth-1))
			r.b.WriteString(bullet(node))
		}
	case *ast.Text:
		if entering {
			r.b.Write(node.Segment.Value(r.src))
			if node.HardLineBreak() || node.SoftLineBreak() {
				r.b.WriteByte('\n')
			}
		}
	case *ast.String:
		if entering {
			r.b.Write(node.Value)
		}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			r.newline()
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				r.b.WriteString("    ")
				r.b.Write(line.Value(r.src))
			}
			r.newline()
			r.b.WriteByte('\n')
		}
		return ast.WalkSkipChildren, nil
	case *ast.ThematicBreak:
		if entering {
			r.newline()
			r.b.WriteString("----\n\n")
		}
	case *ast.AutoLink:
		if entering {
			r.b.Write(node.URL(r.src))
		}
	case *ast.Link:
		if !entering {
			fmt.Fprintf(&r.b, " (%s)", node.Destination)
		}
	case *ast.RawHTML, *ast.HTMLBlock:
		return ast.WalkSkipChildren, nil
	case *east.TableCell:
		if !entering && n.NextSibling() != nil {
			r.b.WriteString(" | ")
		}
	case *east.TableHeader, *east.TableRow:
		if !entering {
			r.b.WriteByte('\n')
		}
	case *east.Table:
		if !entering {
			r.b.WriteByte('\n')
		}
	}
	return ast.WalkContinue, nil
}

func bullet(item *ast.ListItem) string {
	list, ok := item.Parent().(*ast.List)
	if !ok || !list.IsOrdered() {
		return "• "
	}
	index := 0
	for sib := item.PreviousSibling(); sib != nil; sib = sib.PreviousSibling() {
		index++
	}
	return fmt.Sprintf("%d. ", list.Start+index)
}

func inTightList(n ast.Node) bool {
	item, ok := n.Parent().(*ast.ListItem)
	if !ok {
		return false
	}
	list, ok := item.Parent().(*ast.List)
	return ok && list.IsTight
}
