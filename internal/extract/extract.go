// Package extract turns uploaded files into plain text plus processing
// metadata. It is a thin collaborator: OCR and binary-format parsing
// happen upstream, so only text-bearing formats are handled here.
package extract

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Result is extracted text plus provenance metadata persisted with the
// document record.
type Result struct {
	Text       string
	Method     string
	Confidence float64  // 0-100, mirrors upstream OCR confidence scale
	Outline    []string // section headings, markdown only
}

// FromBytes extracts text from file content based on the filename
// extension.
func FromBytes(filename string, data []byte) (*Result, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".text", ".log":
		return PlainText(data)
	case ".md", ".markdown":
		return Markdown(data)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(filename))
	}
}

// PlainText validates UTF-8 and passes the content through.
func PlainText(data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("content is not valid UTF-8")
	}
	return &Result{
		Text:       string(data),
		Method:     "text_file",
		Confidence: 100,
	}, nil
}

// Markdown parses the source with goldmark and flattens it to plain
// text, keeping block structure as blank lines. The heading outline is
// extracted separately so document metadata can describe the source's
// structure.
func Markdown(data []byte) (*Result, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("content is not valid UTF-8")
	}

	md := goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID()))
	doc := md.Parser().Parse(text.NewReader(data))

	outline, err := headingOutline(doc, data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteString("\n\n")
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(data))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(data))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("flattening markdown: %w", err)
	}

	flattened := strings.TrimSpace(buf.String())
	return &Result{
		Text:       flattened,
		Method:     "markdown_extraction",
		Confidence: 100,
		Outline:    outline,
	}, nil
}

// headingOutline lists headings in document order, e.g.
// "Installation > Prerequisites" for nested sections.
func headingOutline(doc ast.Node, source []byte) ([]string, error) {
	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(3),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspecting headings: %w", err)
	}

	var outline []string
	var walk func(items toc.Items, ancestors []string)
	walk = func(items toc.Items, ancestors []string) {
		for _, item := range items {
			path := make([]string, 0, len(ancestors)+1)
			path = append(path, ancestors...)
			path = append(path, string(item.Title))
			outline = append(outline, strings.Join(path, " > "))
			if len(item.Items) > 0 {
				walk(item.Items, path)
			}
		}
	}
	walk(tree.Items, nil)
	return outline, nil
}
