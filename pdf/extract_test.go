package pdf

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// buildPDF assembles an uncompressed PDF from object bodies numbered from 1.
// Offsets in the xref table are not needed by the extractor.
func buildPDF(objects ...string) []byte {
	var sb strings.Builder
	sb.WriteString("%PDF-1.7\n")
	for i, body := range objects {
		fmt.Fprintf(&sb, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	sb.WriteString("trailer\n<< /Root 1 0 R >>\n%%EOF\n")
	return []byte(sb.String())
}

func stream(content string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)
}

func TestExtractTextTJAndToUnicode(t *testing.T) {
	cmap := "/CIDInit /ProcSet findresource begin\n" +
		"1 begincodespacerange <0000> <FFFF> endcodespacerange\n" +
		"2 beginbfchar <0001> <0048> <0002> <0069> endbfchar\n" +
		"1 beginbfrange <0010> <0012> <0061> endbfrange\n" +
		"endcmap"
	data := buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [4 0 R 3 0 R] /Count 2 /Resources << /Font << /F1 5 0 R /F2 6 0 R >> >> >>",
		// listed second in Kids
		"<< /Type /Page /Parent 2 0 R /Contents 7 0 R >>",
		"<< /Type /Page /Parent 2 0 R /Contents [8 0 R 9 0 R] >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
		"<< /Type /Font /Subtype /Type0 /BaseFont /Foo /ToUnicode 10 0 R >>",
		stream("BT /F1 12 Tf 14 TL 10 700 Td [(Sec)20(ond)-300(page)] TJ T* (next) Tj ET"),
		stream("BT /F2 12 Tf 10 700 Td <00010002> Tj ET"),
		stream("BT /F2 12 Tf 10 680 Td <001000110012> Tj ET BI /W 1 /H 1 ID \x00\xff EI Q"),
		stream(cmap),
	)

	pages, err := ExtractText(data)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	want := []PageText{
		{Number: 1, Content: "Hi\nabc"},
		{Number: 2, Content: "Second page\nnext"},
	}
	if diff := cmp.Diff(want, pages); diff != "" {
		t.Fatalf("pages mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractTextSameLineRuns(t *testing.T) {
	data := buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>",
		stream("BT /F1 12 Tf 50 700 Td (bold) Tj ET BT /F2 12 Tf 80 700 Td (plain) Tj ET BT /F1 12 Tf 50 686 Td (below) Tj ET"),
	)
	pages, err := ExtractText(data)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if len(pages) != 1 || pages[0].Content != "bold plain\nbelow" {
		t.Fatalf("unexpected pages: %+v", pages)
	}
}

func TestExtractTextNotPDF(t *testing.T) {
	if _, err := ExtractText([]byte("hello")); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
}

func TestLexerObjects(t *testing.T) {
	l := newLexer([]byte(`<< /Type /Page /Name#20X (a\(b\)\101) /Kids [1 0 R 2.5 -3] /Hex <4869> /Flag true >>`))
	obj, err := l.next()
	if err != nil {
		t.Fatalf("next() error = %v", err)
	}
	d, ok := obj.(dict)
	if !ok {
		t.Fatalf("expected dict, got %T", obj)
	}
	want := dict{
		"Type":   name("Page"),
		"Name X": pstring("a(b)A"),
		"Kids":   array{ref{num: 1, gen: 0}, 2.5, -3.0},
		"Hex":    pstring("Hi"),
		"Flag":   true,
	}
	if diff := cmp.Diff(want, d, cmp.AllowUnexported(ref{})); diff != "" {
		t.Fatalf("dict mismatch (-want +got):\n%s", diff)
	}
}

func zlibBytes(t testing.TB, size int) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestSpeed)
	if err != nil {
		t.Fatalf("zlib writer: %v", err)
	}
	chunk := make([]byte, 1<<20)
	for size > 0 {
		n := min(size, len(chunk))
		if _, err := zw.Write(chunk[:n]); err != nil {
			t.Fatalf("zlib write: %v", err)
		}
		size -= n
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

func TestLexerNestingLimit(t *testing.T) {
	ok := strings.Repeat("[", maxNesting) + strings.Repeat("]", maxNesting)
	if _, err := newLexer([]byte(ok)).next(); err != nil {
		t.Fatalf("next() at nesting limit error = %v", err)
	}

	deep := strings.Repeat("[", maxNesting+1) + strings.Repeat("]", maxNesting+1)
	if _, err := newLexer([]byte(deep)).next(); !errors.Is(err, errSyntax) {
		t.Fatalf("expected errSyntax for nested arrays, got %v", err)
	}

	dicts := strings.Repeat("<< /A ", maxNesting+1) + strings.Repeat(">> ", maxNesting+1)
	if _, err := newLexer([]byte(dicts)).next(); !errors.Is(err, errSyntax) {
		t.Fatalf("expected errSyntax for nested dictionaries, got %v", err)
	}
}

func TestUnpackObjectStreamHugeCount(t *testing.T) {
	doc := &document{objects: map[int]*object{}, budget: maxDecodedTotal}
	doc.unpackObjectStream(dict{"N": 4e11, "First": 8.0}, []byte("5 0 6 4 (a) (b)"))

	if len(doc.objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(doc.objects))
	}
	if got := doc.objects[5].value; !bytes.Equal(got.(pstring), []byte("a")) {
		t.Fatalf("object 5 = %v", got)
	}
	if got := doc.objects[6].value; !bytes.Equal(got.(pstring), []byte("b")) {
		t.Fatalf("object 6 = %v", got)
	}
}

func TestInflateLimit(t *testing.T) {
	data := zlibBytes(t, 4096)
	if _, err := inflate(data, 1024); !errors.Is(err, errStreamTooLarge) {
		t.Fatalf("expected errStreamTooLarge, got %v", err)
	}
	out, err := inflate(data, 4096)
	if err != nil {
		t.Fatalf("inflate() error = %v", err)
	}
	if len(out) != 4096 {
		t.Fatalf("inflate() returned %d bytes", len(out))
	}
}

func TestASCII85Limit(t *testing.T) {
	if _, err := ascii85Decode([]byte("zzzz~>"), 8); !errors.Is(err, errStreamTooLarge) {
		t.Fatalf("expected errStreamTooLarge, got %v", err)
	}
	out, err := ascii85Decode([]byte("<~87cURD]i,\"Ebo80~>"), 64)
	if err != nil {
		t.Fatalf("ascii85Decode() error = %v", err)
	}
	if string(out) != "Hello World" {
		t.Fatalf("ascii85Decode() = %q", out)
	}
}

func TestDecodeStreamBudget(t *testing.T) {
	doc := &document{objects: map[int]*object{}, budget: 4}
	d := dict{"Filter": name("ASCIIHexDecode")}
	if _, err := doc.decodeStream(d, []byte("48656C6C>")); err != nil {
		t.Fatalf("decodeStream() error = %v", err)
	}
	if _, err := doc.decodeStream(d, []byte("48>")); !errors.Is(err, errStreamTooLarge) {
		t.Fatalf("expected errStreamTooLarge once the budget is spent, got %v", err)
	}
}

func TestExtractTextMalformed(t *testing.T) {
	page := func(content string) []byte {
		return buildPDF(
			"<< /Type /Catalog /Pages 2 0 R >>",
			"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
			"<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>",
			content,
		)
	}
	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{
			name:    "object stream with huge count",
			data:    []byte("%PDF-1.5\n1 0 obj\n<< /Type /ObjStm /N 400000000000 /First 4 /Length 10 >>\nstream\n1 0 2 0 xx\nendstream\nendobj\n"),
			wantErr: true,
		},
		{
			name:    "deeply nested arrays",
			data:    []byte("%PDF-1.4\n1 0 obj\n" + strings.Repeat("[", 1<<20)),
			wantErr: true,
		},
		{
			name:    "deeply nested dictionaries",
			data:    []byte("%PDF-1.4\n1 0 obj\n" + strings.Repeat("<< /K ", 1<<18)),
			wantErr: true,
		},
		{
			name: "truncated stream",
			data: []byte(strings.TrimSuffix(string(page(stream("BT (hello) Tj ET"))), "endstream\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")),
		},
		{
			name: "missing endstream",
			data: page("<< /Length 999 >>\nstream\nBT (hello) Tj ET"),
		},
		{
			name: "bad hex string",
			data: page(stream("BT <zz> Tj ET")),
		},
		{
			name: "bad ascii85 stream",
			data: page("<< /Filter /ASCII85Decode /Length 5 >>\nstream\nvwxyz\nendstream"),
		},
		{
			name: "corrupt flate stream",
			data: page("<< /Filter /FlateDecode /Length 4 >>\nstream\nabcd\nendstream"),
		},
		{
			name: "unknown filter",
			data: page("<< /Filter /JBIG2Decode /Length 4 >>\nstream\nabcd\nendstream"),
		},
		{
			name: "self referencing page tree",
			data: buildPDF(
				"<< /Type /Catalog /Pages 2 0 R >>",
				"<< /Type /Pages /Kids [2 0 R] /Count 1 >>",
			),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pages, err := ExtractText(tt.data)
			if tt.wantErr && err == nil {
				t.Fatalf("expected an error, got %+v", pages)
			}
			if err == nil && len(pages) > 1 {
				t.Fatalf("unexpected pages: %+v", pages)
			}
		})
	}
}

func TestExtractTextOversizedFlateStream(t *testing.T) {
	if testing.Short() {
		t.Skip("compresses a large stream")
	}
	body := zlibBytes(t, maxStreamSize+1)
	var sb strings.Builder
	fmt.Fprintf(&sb, "<< /Filter /FlateDecode /Length %d >>\nstream\n", len(body))
	sb.Write(body)
	sb.WriteString("\nendstream")
	data := buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>",
		sb.String(),
	)

	pages, err := ExtractText(data)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if len(pages) != 0 {
		t.Fatalf("expected no text from an oversized stream, got %d pages", len(pages))
	}
}

func FuzzExtractText(f *testing.F) {
	f.Add(buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>",
		stream("BT /F1 12 Tf 10 700 Td (hello) Tj ET"),
	))
	f.Add([]byte("%PDF-1.5\n1 0 obj\n<< /Type /ObjStm /N 9999999 /First 4 /Length 10 >>\nstream\n1 0 2 0 xx\nendstream\nendobj\n"))
	f.Add([]byte("%PDF-1.4\n1 0 obj\n" + strings.Repeat("[", 1024)))
	f.Add([]byte("%PDF-1.4\n1 0 obj\n<< /Filter [/AHx /A85 /Fl] /Length 3 >>\nstream\n<~>\nendstream"))
	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = ExtractText(data)
	})
}
