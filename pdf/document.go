package pdf

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// PaperSize holds page dimensions in points.
type PaperSize struct {
	Width, Height float64
}

var (
	Letter = PaperSize{Width: 612, Height: 792}
	A4     = PaperSize{Width: 595.28, Height: 841.89}
)

// Font names one of the standard 14 fonts every PDF reader ships.
type Font string

const (
	Helvetica            Font = "Helvetica"
	HelveticaBold        Font = "Helvetica-Bold"
	HelveticaOblique     Font = "Helvetica-Oblique"
	HelveticaBoldOblique Font = "Helvetica-BoldOblique"
	Courier              Font = "Courier"
	CourierBold          Font = "Courier-Bold"
)

// Info is the document information dictionary.
type Info struct {
	Title    string
	Author   string
	Subject  string
	Producer string
	Created  time.Time
}

// Document accumulates pages and serializes them as PDF 1.4.
type Document struct {
	info  Info
	pages []*Page
	fonts map[Font]string
}

// New returns an empty document.
func New() *Document {
	return &Document{fonts: make(map[Font]string)}
}

// SetInfo sets the information dictionary.
func (d *Document) SetInfo(info Info) *Document {
	d.info = info
	return d
}

// NewPage appends a page of the given size and returns it.
func (d *Document) NewPage(size PaperSize) *Page {
	p := &Page{doc: d, size: size}
	d.pages = append(d.pages, p)
	return p
}

// PageCount returns the number of pages added so far.
func (d *Document) PageCount() int { return len(d.pages) }

func (d *Document) fontResource(f Font) string {
	if name, ok := d.fonts[f]; ok {
		return name
	}
	name := "F" + strconv.Itoa(len(d.fonts)+1)
	d.fonts[f] = name
	return name
}

// Page is a single page being drawn. Coordinates use the PDF convention with
// the origin in the lower-left corner.
type Page struct {
	doc     *Document
	size    PaperSize
	content bytes.Buffer
}

// Size returns the page dimensions.
func (p *Page) Size() PaperSize { return p.size }

// DrawText shows text with its baseline starting at x,y.
func (p *Page) DrawText(text string, x, y float64, font Font, size float64) *Page {
	res := p.doc.fontResource(font)
	fmt.Fprintf(&p.content, "BT /%s %s Tf %s %s Td (%s) Tj ET\n", res, num(size), num(x), num(y), escapeString(encodeWinAnsi(text)))
	return p
}

// DrawLine strokes a straight line.
func (p *Page) DrawLine(x1, y1, x2, y2, width float64) *Page {
	fmt.Fprintf(&p.content, "%s w %s %s m %s %s l S\n", num(width), num(x1), num(y1), num(x2), num(y2))
	return p
}

// Bytes serializes the document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WriteTo serializes the document to w. Object numbers are laid out as
// catalog, page tree, info, fonts, then a page and its content stream per
// page.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	if len(d.pages) == 0 {
		return 0, fmt.Errorf("document has no pages")
	}
	cw := &countingWriter{w: bufio.NewWriter(w)}

	fonts := make([]Font, 0, len(d.fonts))
	for f := range d.fonts {
		fonts = append(fonts, f)
	}
	sort.Slice(fonts, func(i, j int) bool { return d.fonts[fonts[i]] < d.fonts[fonts[j]] })

	const (
		catalogNum = 1
		pagesNum   = 2
		infoNum    = 3
	)
	firstFont := 4
	firstPage := firstFont + len(fonts)
	total := firstPage + 2*len(d.pages) - 1
	offsets := make([]int64, total+1)

	begin := func(n int) {
		offsets[n] = cw.n
		fmt.Fprintf(cw, "%d 0 obj\n", n)
	}
	end := func() { io.WriteString(cw, "endobj\n") }

	io.WriteString(cw, "%PDF-1.4\n%\xE2\xE3\xCF\xD3\n")

	begin(catalogNum)
	fmt.Fprintf(cw, "<< /Type /Catalog /Pages %d 0 R >>\n", pagesNum)
	end()

	begin(pagesNum)
	io.WriteString(cw, "<< /Type /Pages /Kids [")
	for i := range d.pages {
		fmt.Fprintf(cw, " %d 0 R", firstPage+2*i)
	}
	fmt.Fprintf(cw, " ] /Count %d >>\n", len(d.pages))
	end()

	begin(infoNum)
	io.WriteString(cw, d.infoDict())
	end()

	var fontDict bytes.Buffer
	fontDict.WriteString("<<")
	for i, f := range fonts {
		begin(firstFont + i)
		fmt.Fprintf(cw, "<< /Type /Font /Subtype /Type1 /BaseFont /%s /Encoding /WinAnsiEncoding >>\n", f)
		end()
		fmt.Fprintf(&fontDict, " /%s %d 0 R", d.fonts[f], firstFont+i)
	}
	fontDict.WriteString(" >>")

	for i, p := range d.pages {
		pageNum := firstPage + 2*i
		contentNum := pageNum + 1

		begin(pageNum)
		fmt.Fprintf(cw, "<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %s %s] /Resources << /Font %s >> /Contents %d 0 R >>\n",
			pagesNum, num(p.size.Width), num(p.size.Height), fontDict.String(), contentNum)
		end()

		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		if _, err := zw.Write(p.content.Bytes()); err != nil {
			return cw.n, err
		}
		if err := zw.Close(); err != nil {
			return cw.n, err
		}
		begin(contentNum)
		fmt.Fprintf(cw, "<< /Length %d /Filter /FlateDecode >>\nstream\n", z.Len())
		cw.Write(z.Bytes())
		io.WriteString(cw, "\nendstream\n")
		end()
	}

	xref := cw.n
	fmt.Fprintf(cw, "xref\n0 %d\n", total+1)
	io.WriteString(cw, "0000000000 65535 f \n")
	for n := 1; n <= total; n++ {
		fmt.Fprintf(cw, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(cw, "trailer\n<< /Size %d /Root %d 0 R /Info %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", total+1, catalogNum, infoNum, xref)

	if err := cw.w.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

func (d *Document) infoDict() string {
	var b bytes.Buffer
	b.WriteString("<<")
	add := func(key, val string) {
		if val != "" {
			fmt.Fprintf(&b, " /%s (%s)", key, escapeString(encodeWinAnsi(val)))
		}
	}
	add("Title", d.info.Title)
	add("Author", d.info.Author)
	add("Subject", d.info.Subject)
	add("Producer", d.info.Producer)
	if !d.info.Created.IsZero() {
		add("CreationDate", d.info.Created.UTC().Format("D:20060102150405Z"))
	}
	b.WriteString(" >>\n")
	return b.String()
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
