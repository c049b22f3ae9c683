package content

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
	"github.com/zeebo/blake3"
)

var (
	markdown     goldmark.Markdown
	markdownOnce sync.Once

	// lessonHashKey separates lesson hashes from any other BLAKE3 use.
	lessonHashKey = [32]byte{
		'k', 'i', 'o', 'n', 'g', 'o', 'z', 'i', '.', 'l', 'e', 's', 's', 'o', 'n',
	}
)

// escapeRawHTML renders raw HTML found in markdown as text.
// It takes precedence over the default html renderer (priority 1000).
type escapeRawHTML struct{}

func (r escapeRawHTML) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindRawHTML, r.renderRawHTML)
	reg.Register(ast.KindHTMLBlock, r.renderHTMLBlock)
}

func (r escapeRawHTML) renderRawHTML(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	segments := node.(*ast.RawHTML).Segments
	for i := 0; i < segments.Len(); i++ {
		seg := segments.At(i)
		_, _ = w.Write(util.EscapeHTML(seg.Value(source)))
	}
	return ast.WalkSkipChildren, nil
}

func (r escapeRawHTML) renderHTMLBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.HTMLBlock)
	if !entering {
		if n.HasClosure() {
			_, _ = w.Write(util.EscapeHTML(n.ClosureLine.Value(source)))
		}
		_, _ = w.WriteString("</pre>\n")
		return ast.WalkContinue, nil
	}
	_, _ = w.WriteString("<pre>")
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		_, _ = w.Write(util.EscapeHTML(line.Value(source)))
	}
	return ast.WalkContinue, nil
}

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Typographer),
			goldmark.WithRendererOptions(renderer.WithNodeRenderers(util.Prioritized(escapeRawHTML{}, 100))),
		)
	})
	return markdown
}

// RenderMarkdown converts lesson markdown to HTML. Raw HTML in the source is escaped.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// lessonHash fingerprints everything an import writes for a lesson.
func lessonHash(moduleSlug string, position int, l LessonNode) string {
	hasher, err := blake3.NewKeyed(lessonHashKey[:])
	if err != nil {
		panic("content: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var num [8]byte
	writeField := func(s string) {
		binary.BigEndian.PutUint64(num[:], uint64(len(s)))
		_, _ = hasher.Write(num[:])
		_, _ = hasher.Write([]byte(s))
	}
	writeInt := func(n int) {
		binary.BigEndian.PutUint64(num[:], uint64(n))
		_, _ = hasher.Write(num[:])
	}

	writeField(moduleSlug)
	writeInt(position)
	writeField(l.Title)
	writeField(l.Kind)
	writeField(l.Body)
	writeField(l.VideoURL)
	writeInt(l.Minutes)
	writeField(l.Case)
	return hex.EncodeToString(hasher.Sum(nil))
}
