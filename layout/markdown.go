package layout

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/wudi/readease/observability"
	"github.com/wudi/readease/pdf"
)

const (
	listIndent  = 18.0
	quoteIndent = 18.0
)

// style tracks inline formatting while walking inline nodes.
type style struct {
	bold, italic, code, link, strike bool
}

// MarkdownToPDF renders markdown into a serialized PDF document.
func MarkdownToPDF(source string, info pdf.Info, opts ...Option) ([]byte, error) {
	doc := pdf.New().SetInfo(info)
	e := NewEngine(NewDocumentCanvas(doc), opts...)
	if err := e.RenderMarkdown(source); err != nil {
		return nil, err
	}
	return doc.Bytes()
}

// RenderMarkdown renders a markdown string using goldmark. It returns
// ErrEmptyDocument when nothing would be drawn.
func (e *Engine) RenderMarkdown(source string) error {
	if strings.TrimSpace(source) == "" {
		return ErrEmptyDocument
	}
	timer := observability.StartTimer(e.log, observability.MetricLayoutTime)

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	src := []byte(source)
	doc := md.Parser().Parse(text.NewReader(src))
	e.renderBlocks(doc, src)

	timer.Stop(observability.Int(observability.MetricPageCount, e.pages))
	if !e.drawn {
		return ErrEmptyDocument
	}
	return nil
}

func (e *Engine) renderBlocks(node ast.Node, source []byte) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Heading:
			e.renderHeading(n, source)
		case *ast.Paragraph:
			e.renderInlineBlock(n, source)
			e.renderParagraphSpacing()
		case *ast.TextBlock:
			e.renderInlineBlock(n, source)
		case *ast.List:
			e.renderList(n, source)
		case *ast.Blockquote:
			e.indent += quoteIndent
			e.renderBlocks(n, source)
			e.indent -= quoteIndent
		case *ast.FencedCodeBlock:
			e.renderCode(n.Lines(), source)
		case *ast.CodeBlock:
			e.renderCode(n.Lines(), source)
		case *ast.ThematicBreak:
			e.renderRule()
		case *east.Table:
			e.renderTable(n, source)
		case *ast.HTMLBlock:
			// raw HTML has no PDF rendering
		default:
			e.renderBlocks(child, source)
		}
	}
}

func headingSize(base float64, level int) float64 {
	switch level {
	case 1:
		return base * 2.0
	case 2:
		return base * 1.5
	default:
		return base * 1.25
	}
}

func (e *Engine) renderHeading(n *ast.Heading, source []byte) {
	size := headingSize(e.DefaultFontSize, n.Level)
	spans := e.inlineSpans(n, source, style{bold: true}, size, nil)
	e.ensurePage()
	e.renderSpans(spans, e.left(), size*e.LineHeight)
	e.renderParagraphSpacing()
}

func (e *Engine) renderInlineBlock(n ast.Node, source []byte) {
	spans := e.inlineSpans(n, source, style{}, e.DefaultFontSize, nil)
	if len(spans) == 0 {
		return
	}
	e.ensurePage()
	e.renderSpans(spans, e.left(), e.DefaultFontSize*e.LineHeight)
}

func (e *Engine) renderList(n *ast.List, source []byte) {
	size := e.DefaultFontSize
	number := n.Start
	if number == 0 {
		number = 1
	}
	for item := n.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "•"
		if n.IsOrdered() {
			marker = strconv.Itoa(number) + string(n.Marker)
			number++
		}
		e.ensurePage()
		e.checkPageBreak(size * e.LineHeight)
		e.drawText(marker, e.left(), e.cursorY-size, e.DefaultFont, size)

		e.indent += listIndent
		e.renderBlocks(item, source)
		e.indent -= listIndent
	}
	if e.indent == 0 {
		e.renderParagraphSpacing()
	}
}

func (e *Engine) renderCode(lines *text.Segments, source []byte) {
	size := e.DefaultFontSize * 0.9
	lineHeight := size * e.LineHeight
	perLine := int(e.contentWidth() / pdf.MeasureText(" ", pdf.Courier, size))
	if perLine < 1 {
		perLine = 1
	}
	e.ensurePage()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		line := strings.TrimRight(string(seg.Value(source)), "\r\n")
		line = strings.ReplaceAll(line, "\t", "    ")
		for _, part := range chunkRunes(line, perLine) {
			e.checkPageBreak(lineHeight)
			if strings.TrimSpace(part) != "" {
				e.drawText(part, e.left(), e.cursorY-size, pdf.Courier, size)
			}
			e.cursorY -= lineHeight
		}
	}
	e.renderParagraphSpacing()
}

// chunkRunes splits s into pieces of at most n runes. An empty s yields one
// empty piece so blank code lines keep their height.
func chunkRunes(s string, n int) []string {
	r := []rune(s)
	if len(r) == 0 {
		return []string{""}
	}
	var out []string
	for len(r) > n {
		out = append(out, string(r[:n]))
		r = r[n:]
	}
	return append(out, string(r))
}

func (e *Engine) renderRule() {
	lineHeight := e.DefaultFontSize * e.LineHeight
	e.ensurePage()
	e.checkPageBreak(lineHeight)
	y := e.cursorY - lineHeight/2
	e.currentPage.DrawLine(e.left(), y, e.pageSize.Width-e.Margins.Right, y, 0.75)
	e.drawn = true
	e.cursorY -= lineHeight
}

// renderTable draws each row as one line of cells separated by " | ".
func (e *Engine) renderTable(n *east.Table, source []byte) {
	size := e.DefaultFontSize
	for row := n.FirstChild(); row != nil; row = row.NextSibling() {
		_, header := row.(*east.TableHeader)
		var spans []TextSpan
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			if cell != row.FirstChild() {
				spans = append(spans, TextSpan{Text: " | ", Font: e.DefaultFont, FontSize: size})
			}
			spans = e.inlineSpans(cell, source, style{bold: header}, size, spans)
		}
		e.ensurePage()
		e.renderSpans(spans, e.left(), size*e.LineHeight)
	}
	e.renderParagraphSpacing()
}

func (e *Engine) fontFor(st style) pdf.Font {
	switch {
	case st.code && st.bold:
		return pdf.CourierBold
	case st.code:
		return pdf.Courier
	case st.bold && st.italic:
		return pdf.HelveticaBoldOblique
	case st.bold:
		return pdf.HelveticaBold
	case st.italic:
		return pdf.HelveticaOblique
	}
	return e.DefaultFont
}

// inlineSpans flattens the inline children of n into styled spans.
func (e *Engine) inlineSpans(n ast.Node, source []byte, st style, size float64, spans []TextSpan) []TextSpan {
	add := func(s string, st style) {
		spans = append(spans, TextSpan{Text: s, Font: e.fontFor(st), FontSize: size, Underline: st.link, Strike: st.strike})
	}
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch c := child.(type) {
		case *ast.Text:
			add(string(c.Segment.Value(source)), st)
			switch {
			case c.HardLineBreak():
				spans[len(spans)-1].Break = true
			case c.SoftLineBreak():
				add(" ", st)
			}
		case *ast.String:
			add(string(c.Value), st)
		case *ast.CodeSpan:
			cs := st
			cs.code = true
			spans = e.inlineSpans(c, source, cs, size, spans)
		case *ast.Emphasis:
			es := st
			if c.Level >= 2 {
				es.bold = true
			} else {
				es.italic = true
			}
			spans = e.inlineSpans(c, source, es, size, spans)
		case *east.Strikethrough:
			ss := st
			ss.strike = true
			spans = e.inlineSpans(c, source, ss, size, spans)
		case *ast.Link:
			ls := st
			ls.link = true
			spans = e.inlineSpans(c, source, ls, size, spans)
		case *ast.AutoLink:
			ls := st
			ls.link = true
			add(string(c.Label(source)), ls)
		case *ast.Image:
			is := st
			is.italic = true
			spans = e.inlineSpans(c, source, is, size, spans)
		case *east.TaskCheckBox:
			if c.IsChecked {
				add("[x] ", st)
			} else {
				add("[ ] ", st)
			}
		case *ast.RawHTML:
		default:
			spans = e.inlineSpans(child, source, st, size, spans)
		}
	}
	return spans
}
