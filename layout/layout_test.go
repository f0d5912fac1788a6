package layout

import (
	"errors"
	"strings"
	"testing"

	"github.com/wudi/readease/pdf"
)

type MockCanvas struct {
	Pages []*MockPage
}

func (m *MockCanvas) NewPage(size pdf.PaperSize) Page {
	p := &MockPage{Size: size}
	m.Pages = append(m.Pages, p)
	return p
}

type DrawnText struct {
	Text string
	X, Y float64
	Font pdf.Font
	Size float64
}

type MockPage struct {
	Size       pdf.PaperSize
	DrawnTexts []DrawnText
	Lines      int
}

func (m *MockPage) DrawText(text string, x, y float64, font pdf.Font, size float64) {
	m.DrawnTexts = append(m.DrawnTexts, DrawnText{Text: text, X: x, Y: y, Font: font, Size: size})
}

func (m *MockPage) DrawLine(x1, y1, x2, y2, width float64) { m.Lines++ }

func (m *MockCanvas) texts() []DrawnText {
	var out []DrawnText
	for _, p := range m.Pages {
		out = append(out, p.DrawnTexts...)
	}
	return out
}

func (m *MockCanvas) find(t *testing.T, text string) DrawnText {
	t.Helper()
	for _, dt := range m.texts() {
		if strings.Contains(dt.Text, text) {
			return dt
		}
	}
	t.Logf("Drawn texts:")
	for _, dt := range m.texts() {
		t.Logf("  Text: %q, Font: %s, Size: %f", dt.Text, dt.Font, dt.Size)
	}
	t.Fatalf("text %q was not drawn", text)
	return DrawnText{}
}

func TestEngineConfiguration(t *testing.T) {
	mc := &MockCanvas{}

	t.Run("Default Configuration", func(t *testing.T) {
		e := NewEngine(mc)
		if e.DefaultFont != pdf.Helvetica {
			t.Errorf("Expected default font Helvetica, got %s", e.DefaultFont)
		}
		if e.DefaultFontSize != 12 {
			t.Errorf("Expected default font size 12, got %f", e.DefaultFontSize)
		}
		if e.pageSize != pdf.Letter {
			t.Errorf("Expected Letter paper, got %+v", e.pageSize)
		}
	})

	t.Run("Custom Configuration", func(t *testing.T) {
		e := NewEngine(mc,
			WithDefaultFont(pdf.Courier),
			WithDefaultFontSize(14),
			WithLineHeight(1.5),
			WithMargins(Margins{Top: 20, Bottom: 20, Left: 20, Right: 20}),
			WithPaperSize(pdf.A4),
		)
		if e.DefaultFont != pdf.Courier {
			t.Errorf("Expected font Courier, got %s", e.DefaultFont)
		}
		if e.DefaultFontSize != 14 || e.LineHeight != 1.5 || e.Margins.Top != 20 {
			t.Errorf("options not applied: %+v", e)
		}
		if e.pageSize.Width != 595.28 {
			t.Errorf("Expected A4 width 595.28, got %f", e.pageSize.Width)
		}
	})
}

func TestRenderMarkdown_Features(t *testing.T) {
	mc := &MockCanvas{}
	engine := NewEngine(mc)

	md := `
# Header 1
## Header 2

Paragraph with **bold** and *italic* text and ` + "`code`" + `.

- List item 1
- List item 2

1. first
2. second

> quoted words

---

` + "```go" + `
func main() {
	fmt.Println("Hello")
}
` + "```" + `

| Name | Value |
| ---- | ----- |
| a    | 1     |
`
	if err := engine.RenderMarkdown(md); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}
	if len(mc.Pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(mc.Pages))
	}

	h1 := mc.find(t, "Header 1")
	if h1.Size != engine.DefaultFontSize*2 || h1.Font != pdf.HelveticaBold {
		t.Errorf("header 1 drawn with %s %f", h1.Font, h1.Size)
	}
	if h2 := mc.find(t, "Header 2"); h2.Size != engine.DefaultFontSize*1.5 {
		t.Errorf("header 2 size = %f", h2.Size)
	}
	if bold := mc.find(t, "bold"); bold.Font != pdf.HelveticaBold {
		t.Errorf("bold run font = %s", bold.Font)
	}
	if italic := mc.find(t, "italic"); italic.Font != pdf.HelveticaOblique {
		t.Errorf("italic run font = %s", italic.Font)
	}
	if code := mc.find(t, "code"); code.Font != pdf.Courier {
		t.Errorf("code span font = %s", code.Font)
	}

	bullet := mc.find(t, "•")
	item := mc.find(t, "List item 1")
	if item.X <= bullet.X || item.Y != bullet.Y {
		t.Errorf("list item not indented next to its bullet: bullet=%+v item=%+v", bullet, item)
	}
	mc.find(t, "1.")
	mc.find(t, "2.")

	if quote := mc.find(t, "quoted words"); quote.X != engine.Margins.Left+quoteIndent {
		t.Errorf("quote x = %f", quote.X)
	}
	if mc.Pages[0].Lines == 0 {
		t.Errorf("expected thematic break to draw a line")
	}
	if c := mc.find(t, `fmt.Println("Hello")`); c.Font != pdf.Courier || !strings.HasPrefix(c.Text, "    ") {
		t.Errorf("code block line drawn as %+v", c)
	}
	mc.find(t, " | ")
}

func TestRenderMarkdown_WrapsAndBreaksPages(t *testing.T) {
	mc := &MockCanvas{}
	engine := NewEngine(mc)

	var paras []string
	for i := 0; i < 80; i++ {
		paras = append(paras, strings.Repeat("lorem ipsum dolor sit amet ", 8))
	}
	if err := engine.RenderMarkdown(strings.Join(paras, "\n\n")); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}
	if len(mc.Pages) < 2 {
		t.Fatalf("expected several pages, got %d", len(mc.Pages))
	}
	if engine.Pages() != len(mc.Pages) {
		t.Errorf("Pages() = %d, want %d", engine.Pages(), len(mc.Pages))
	}
	maxX := pdf.Letter.Width - engine.Margins.Right
	for _, dt := range mc.texts() {
		if end := dt.X + pdf.MeasureText(dt.Text, dt.Font, dt.Size); end > maxX+0.01 {
			t.Fatalf("text %q overflows right margin: %f > %f", dt.Text, end, maxX)
		}
		if dt.Y < engine.Margins.Bottom {
			t.Fatalf("text %q below bottom margin: %f", dt.Text, dt.Y)
		}
	}
}

func TestRenderMarkdown_LongWord(t *testing.T) {
	mc := &MockCanvas{}
	if err := NewEngine(mc).RenderMarkdown(strings.Repeat("W", 200)); err != nil {
		t.Fatalf("RenderMarkdown failed: %v", err)
	}
	if n := len(mc.texts()); n < 2 {
		t.Fatalf("expected long word to be split across lines, got %d runs", n)
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	for _, src := range []string{"", "   \n\t", "<!-- only a comment -->"} {
		mc := &MockCanvas{}
		if err := NewEngine(mc).RenderMarkdown(src); !errors.Is(err, ErrEmptyDocument) {
			t.Errorf("RenderMarkdown(%q) error = %v, want ErrEmptyDocument", src, err)
		}
	}
}

func TestMarkdownToPDF(t *testing.T) {
	data, err := MarkdownToPDF("# Title\n\nHello **world** again.\n", pdf.Info{Title: "Title"})
	if err != nil {
		t.Fatalf("MarkdownToPDF failed: %v", err)
	}
	pages, err := pdf.ExtractText(data)
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if got, want := pages[0].Content, "Title\nHello world again."; got != want {
		t.Fatalf("content = %q, want %q", got, want)
	}
}

func TestRenderHTML(t *testing.T) {
	out, err := RenderHTML("# Title\n\nEuler: $e^{i\\pi}+1=0$\n")
	if err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}
	if !strings.Contains(out, "<h1>Title</h1>") {
		t.Errorf("missing heading in %s", out)
	}
	if !strings.Contains(out, "<math") {
		t.Errorf("expected MathML output, got %s", out)
	}
	if _, err := RenderHTML(" "); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("expected ErrEmptyDocument, got %v", err)
	}
}
