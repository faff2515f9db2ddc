package script

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// outputComment names the file for the next paragraph: <!-- output: intro.mp3 -->
var outputComment = regexp.MustCompile(`^<!--\s*output:\s*(\S+)\s*-->`)

// ParseMarkdown turns a Markdown document into a script. Each paragraph or
// list item becomes one line with soft breaks joined by spaces. Headings and
// code blocks are not narrated. Inline HTML such as bookmark tags is kept
// verbatim.
func ParseMarkdown(r io.Reader) (*Script, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var s Script
	var output string
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading, ast.KindFencedCodeBlock, ast.KindCodeBlock:
			return ast.WalkSkipChildren, nil
		case ast.KindHTMLBlock:
			if m := outputComment.FindSubmatch(blockText(n, source)); m != nil {
				output = string(m[1])
			}
			return ast.WalkSkipChildren, nil
		case ast.KindParagraph, ast.KindTextBlock:
			line := strings.TrimSpace(inlineText(n, source))
			if line != "" {
				s.Lines = append(s.Lines, Line{Text: line, Output: output})
				output = ""
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func blockText(n ast.Node, source []byte) []byte {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return bytes.TrimSpace(buf.Bytes())
}

// inlineText flattens the inline children of a block.
func inlineText(n ast.Node, source []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		writeInline(&b, c, source)
	}
	return b.String()
}

func writeInline(b *strings.Builder, n ast.Node, source []byte) {
	switch n := n.(type) {
	case *ast.Text:
		b.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			b.WriteByte(' ')
		}
		return
	case *ast.String:
		b.Write(n.Value)
		return
	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			b.Write(seg.Value(source))
		}
		return
	case *ast.Image:
		// Alt text is not narrated.
		return
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		writeInline(b, c, source)
	}
}
