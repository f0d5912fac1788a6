package layout

import (
	"errors"
	"strings"

	"github.com/wudi/readease/observability"
	"github.com/wudi/readease/pdf"
)

// ErrEmptyDocument is returned when the source produces no drawable content.
var ErrEmptyDocument = errors.New("layout: empty document")

// Canvas creates pages to draw on.
type Canvas interface {
	NewPage(size pdf.PaperSize) Page
}

// Page receives drawing operations in PDF user space (origin bottom-left).
type Page interface {
	DrawText(text string, x, y float64, font pdf.Font, size float64)
	DrawLine(x1, y1, x2, y2, width float64)
}

type documentCanvas struct{ doc *pdf.Document }

type documentPage struct{ p *pdf.Page }

// NewDocumentCanvas returns a Canvas that adds pages to doc.
func NewDocumentCanvas(doc *pdf.Document) Canvas { return documentCanvas{doc: doc} }

func (c documentCanvas) NewPage(size pdf.PaperSize) Page { return documentPage{p: c.doc.NewPage(size)} }

func (p documentPage) DrawText(text string, x, y float64, font pdf.Font, size float64) {
	p.p.DrawText(text, x, y, font, size)
}

func (p documentPage) DrawLine(x1, y1, x2, y2, width float64) { p.p.DrawLine(x1, y1, x2, y2, width) }

// Engine handles the layout of Markdown content into PDF pages.
type Engine struct {
	c   Canvas
	log observability.Logger

	// Configuration
	DefaultFont     pdf.Font
	DefaultFontSize float64
	LineHeight      float64 // Multiplier, e.g., 1.2
	Margins         Margins

	// State
	currentPage Page
	pages       int
	drawn       bool
	cursorX     float64
	cursorY     float64
	indent      float64
	pageSize    pdf.PaperSize
}

// Margins defines page margins in points.
type Margins struct {
	Top, Bottom, Left, Right float64
}

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithDefaultFont sets the body font.
func WithDefaultFont(font pdf.Font) Option {
	return func(e *Engine) {
		e.DefaultFont = font
	}
}

// WithDefaultFontSize sets the body font size.
func WithDefaultFontSize(size float64) Option {
	return func(e *Engine) {
		e.DefaultFontSize = size
	}
}

// WithLineHeight sets the line height multiplier.
func WithLineHeight(height float64) Option {
	return func(e *Engine) {
		e.LineHeight = height
	}
}

// WithMargins sets the page margins.
func WithMargins(margins Margins) Option {
	return func(e *Engine) {
		e.Margins = margins
	}
}

// WithPaperSize sets the page dimensions.
func WithPaperSize(size pdf.PaperSize) Option {
	return func(e *Engine) {
		e.pageSize = size
	}
}

// WithLogger sets the logger used for layout timings.
func WithLogger(log observability.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine creates a new layout engine with optional configuration.
func NewEngine(c Canvas, opts ...Option) *Engine {
	e := &Engine{
		c:               c,
		log:             observability.NopLogger{},
		DefaultFont:     pdf.Helvetica,
		DefaultFontSize: 12,
		LineHeight:      1.2,
		Margins: Margins{
			Top:    72,
			Bottom: 72,
			Left:   72,
			Right:  72,
		},
		pageSize: pdf.Letter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pages returns the number of pages started so far.
func (e *Engine) Pages() int { return e.pages }

func (e *Engine) contentWidth() float64 {
	return e.pageSize.Width - e.Margins.Right - e.left()
}

func (e *Engine) left() float64 { return e.Margins.Left + e.indent }

// ensurePage makes sure there is a current page and the cursor is valid.
func (e *Engine) ensurePage() {
	if e.currentPage == nil {
		e.newPage()
	}
}

// newPage starts a new page and resets the cursor.
func (e *Engine) newPage() {
	e.currentPage = e.c.NewPage(e.pageSize)
	e.pages++
	e.cursorX = e.left()
	e.cursorY = e.pageSize.Height - e.Margins.Top
}

// checkPageBreak adds a new page when less than height remains above the
// bottom margin.
func (e *Engine) checkPageBreak(height float64) {
	if e.currentPage == nil {
		e.newPage()
		return
	}
	if e.cursorY-height < e.Margins.Bottom {
		e.newPage()
	}
}

// TextSpan represents a segment of text with specific styling.
type TextSpan struct {
	Text      string
	Font      pdf.Font
	FontSize  float64
	Underline bool
	Strike    bool
	// Break ends the current line after this span.
	Break bool
}

func (e *Engine) renderParagraphSpacing() {
	if e.currentPage != nil {
		e.cursorY -= e.DefaultFontSize * e.LineHeight * 0.5
	}
}

func (e *Engine) drawText(text string, x, y float64, font pdf.Font, size float64) {
	e.currentPage.DrawText(text, x, y, font, size)
	e.drawn = true
}

type run struct {
	text  string
	span  TextSpan
	width float64
}

// renderSpans lays out spans starting at x, wrapping on spaces and breaking
// words that are wider than a full line.
func (e *Engine) renderSpans(spans []TextSpan, x, lineHeight float64) {
	if len(spans) == 0 {
		return
	}
	maxWidth := e.pageSize.Width - e.Margins.Right - x

	var line []run
	lineWidth := 0.0

	flushLine := func() {
		for len(line) > 0 && strings.TrimSpace(line[len(line)-1].text) == "" {
			lineWidth -= line[len(line)-1].width
			line = line[:len(line)-1]
		}
		if len(line) == 0 {
			return
		}
		e.checkPageBreak(lineHeight)

		curX := x
		var group strings.Builder
		groupX := x
		var groupSpan TextSpan
		emit := func() {
			if group.Len() == 0 {
				return
			}
			baseline := e.cursorY - groupSpan.FontSize
			e.drawText(group.String(), groupX, baseline, groupSpan.Font, groupSpan.FontSize)
			w := curX - groupX
			if groupSpan.Underline {
				e.currentPage.DrawLine(groupX, baseline-2, groupX+w, baseline-2, 0.5)
			}
			if groupSpan.Strike {
				mid := baseline + groupSpan.FontSize*0.3
				e.currentPage.DrawLine(groupX, mid, groupX+w, mid, 0.5)
			}
			group.Reset()
		}
		for _, r := range line {
			if group.Len() > 0 && !sameStyle(r.span, groupSpan) {
				emit()
			}
			if group.Len() == 0 {
				groupX = curX
				groupSpan = r.span
			}
			group.WriteString(r.text)
			curX += r.width
		}
		emit()
		e.cursorY -= lineHeight
		line = nil
		lineWidth = 0
	}

	for _, span := range spans {
		if span.Font == "" {
			span.Font = e.DefaultFont
		}
		if span.FontSize == 0 {
			span.FontSize = e.DefaultFontSize
		}
		spaceW := pdf.MeasureText(" ", span.Font, span.FontSize)

		for _, token := range tokenize(span.Text) {
			if token == " " {
				if len(line) == 0 {
					continue
				}
				if lineWidth+spaceW > maxWidth {
					flushLine()
					continue
				}
				line = append(line, run{text: " ", span: span, width: spaceW})
				lineWidth += spaceW
				continue
			}

			w := pdf.MeasureText(token, span.Font, span.FontSize)
			if lineWidth+w <= maxWidth {
				line = append(line, run{text: token, span: span, width: w})
				lineWidth += w
				continue
			}
			flushLine()
			if w <= maxWidth {
				line = append(line, run{text: token, span: span, width: w})
				lineWidth = w
				continue
			}
			// Character-level wrapping
			var sub strings.Builder
			subWidth := 0.0
			for _, r := range token {
				rw := pdf.MeasureText(string(r), span.Font, span.FontSize)
				if subWidth+rw > maxWidth && sub.Len() > 0 {
					line = append(line, run{text: sub.String(), span: span, width: subWidth})
					flushLine()
					sub.Reset()
					subWidth = 0
				}
				sub.WriteRune(r)
				subWidth += rw
			}
			if sub.Len() > 0 {
				line = append(line, run{text: sub.String(), span: span, width: subWidth})
				lineWidth = subWidth
			}
		}
		if span.Break {
			flushLine()
		}
	}
	flushLine()
}

func sameStyle(a, b TextSpan) bool {
	return a.Font == b.Font && a.FontSize == b.FontSize && a.Underline == b.Underline && a.Strike == b.Strike
}

// tokenize splits text into words and single-space separators.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
			if len(tokens) == 0 || tokens[len(tokens)-1] != " " {
				tokens = append(tokens, " ")
			}
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}
