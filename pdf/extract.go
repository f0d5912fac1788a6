package pdf

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"sort"
	"strings"
)

// ErrNotPDF is returned when the input lacks a PDF header.
var ErrNotPDF = errors.New("not a pdf document")

// PageText is the extracted text of one page. Number is one-based.
type PageText struct {
	Number  int
	Content string
}

type object struct {
	value  interface{}
	stream []byte
}

type document struct {
	objects map[int]*object
	// budget is the number of decoded stream bytes still allowed.
	budget int
}

var objHeader = regexp.MustCompile(`(\d+)\s+(\d+)\s+obj\b`)

// maxPageDepth bounds page tree recursion in malformed files.
const maxPageDepth = 64

const (
	// maxStreamSize caps the decoded size of a single stream.
	maxStreamSize = 64 << 20
	// maxDecodedTotal caps decoded bytes across a whole document, counting
	// streams decoded more than once.
	maxDecodedTotal = 256 << 20
)

var errStreamTooLarge = errors.New("decoded stream exceeds size limit")

// ExtractText returns best-effort text content for each page by scanning
// text show operators. Pages without text are omitted.
func ExtractText(data []byte) ([]PageText, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return nil, ErrNotPDF
	}
	doc := parseDocument(data)
	pages := doc.pages()
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages found")
	}

	var out []PageText
	for i, page := range pages {
		fonts := doc.fontDecoders(page)
		var sb strings.Builder
		for _, content := range doc.contents(page["Contents"]) {
			sb.WriteString(extractTextFromStream(content, fonts))
			sb.WriteByte('\n')
		}
		txt := strings.TrimSpace(sb.String())
		if txt == "" {
			continue
		}
		out = append(out, PageText{Number: i + 1, Content: txt})
	}
	return out, nil
}

func parseDocument(data []byte) *document {
	doc := &document{objects: make(map[int]*object), budget: maxDecodedTotal}
	skipUntil := 0
	for _, m := range objHeader.FindAllSubmatchIndex(data, -1) {
		// "obj" inside binary stream data is not an object header
		if m[0] < skipUntil {
			continue
		}
		var objNum int
		fmt.Sscanf(string(data[m[2]:m[3]]), "%d", &objNum)
		l := newLexer(data)
		l.pos = m[1]
		val, err := l.next()
		if err != nil {
			continue
		}
		// headers inside a parsed value belong to that value
		skipUntil = l.pos
		obj := &object{value: val}
		save := l.pos
		if kw, err := l.next(); err == nil && kw == keyword("stream") {
			obj.stream, skipUntil = readStream(data, l.pos, val)
		} else {
			l.pos = save
		}
		doc.objects[objNum] = obj
	}

	// objects packed in object streams
	for _, obj := range doc.objects {
		d, ok := obj.value.(dict)
		if !ok || d["Type"] != name("ObjStm") || obj.stream == nil {
			continue
		}
		decoded, err := doc.decodeStream(d, obj.stream)
		if err != nil {
			continue
		}
		doc.unpackObjectStream(d, decoded)
	}
	return doc
}

func readStream(data []byte, pos int, val interface{}) ([]byte, int) {
	if pos < len(data) && data[pos] == '\r' {
		pos++
	}
	if pos < len(data) && data[pos] == '\n' {
		pos++
	}
	if d, ok := val.(dict); ok {
		if n, ok := d["Length"].(float64); ok {
			end := pos + int(n)
			if n >= 0 && end <= len(data) && bytes.HasPrefix(bytes.TrimLeft(data[end:], "\r\n "), []byte("endstream")) {
				return data[pos:end], end
			}
		}
	}
	idx := bytes.Index(data[pos:], []byte("endstream"))
	if idx < 0 {
		return nil, pos
	}
	return bytes.TrimRight(data[pos:pos+idx], "\r\n"), pos + idx
}

func (doc *document) unpackObjectStream(d dict, data []byte) {
	n, _ := d["N"].(float64)
	first, _ := d["First"].(float64)
	if n <= 0 || first <= 0 || int(first) > len(data) {
		return
	}
	// each header pair takes at least four bytes
	if limit := first/4 + 1; n > limit {
		n = limit
	}
	l := newLexer(data[:int(first)])
	type entry struct{ num, off int }
	var entries []entry
	for i := 0; i < int(n); i++ {
		num, err1 := l.next()
		off, err2 := l.next()
		nf, ok1 := num.(float64)
		of, ok2 := off.(float64)
		if err1 != nil || err2 != nil || !ok1 || !ok2 {
			break
		}
		entries = append(entries, entry{int(nf), int(of)})
	}
	for _, e := range entries {
		if _, exists := doc.objects[e.num]; exists {
			continue
		}
		start := int(first) + e.off
		if start < 0 || start >= len(data) {
			continue
		}
		ol := newLexer(data)
		ol.pos = start
		val, err := ol.next()
		if err != nil {
			continue
		}
		doc.objects[e.num] = &object{value: val}
	}
}

// resolve follows indirect references.
func (doc *document) resolve(v interface{}) interface{} {
	for i := 0; i < 16; i++ {
		r, ok := v.(ref)
		if !ok {
			return v
		}
		obj, ok := doc.objects[r.num]
		if !ok {
			return nil
		}
		v = obj.value
	}
	return nil
}

func (doc *document) dict(v interface{}) dict {
	d, _ := doc.resolve(v).(dict)
	return d
}

func (doc *document) pages() []dict {
	for _, num := range doc.sortedNums() {
		d, ok := doc.objects[num].value.(dict)
		if !ok || d["Type"] != name("Catalog") {
			continue
		}
		var pages []dict
		doc.walkPages(d["Pages"], 0, map[int]bool{}, &pages)
		if len(pages) > 0 {
			return pages
		}
	}
	var pages []dict
	for _, num := range doc.sortedNums() {
		if d, ok := doc.objects[num].value.(dict); ok && d["Type"] == name("Page") {
			pages = append(pages, d)
		}
	}
	return pages
}

func (doc *document) walkPages(node interface{}, depth int, seen map[int]bool, out *[]dict) {
	if depth > maxPageDepth {
		return
	}
	if r, ok := node.(ref); ok {
		if seen[r.num] {
			return
		}
		seen[r.num] = true
	}
	d := doc.dict(node)
	if d == nil {
		return
	}
	switch d["Type"] {
	case name("Pages"):
		kids, _ := doc.resolve(d["Kids"]).(array)
		for _, kid := range kids {
			doc.walkPages(kid, depth+1, seen, out)
		}
	case name("Page"):
		*out = append(*out, d)
	}
}

func (doc *document) sortedNums() []int {
	nums := make([]int, 0, len(doc.objects))
	for n := range doc.objects {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func (doc *document) contents(v interface{}) [][]byte {
	switch c := v.(type) {
	case ref:
		obj, ok := doc.objects[c.num]
		if !ok {
			return nil
		}
		if obj.stream != nil {
			d, _ := obj.value.(dict)
			data, err := doc.decodeStream(d, obj.stream)
			if err != nil {
				return nil
			}
			return [][]byte{data}
		}
		return doc.contents(obj.value)
	case array:
		var out [][]byte
		for _, item := range c {
			out = append(out, doc.contents(item)...)
		}
		return out
	}
	return nil
}

// resources returns the page resources, following inheritance through the
// page tree.
func (doc *document) resources(page dict) dict {
	node := page
	for i := 0; node != nil && i < maxPageDepth; i++ {
		if res := doc.dict(node["Resources"]); res != nil {
			return res
		}
		node = doc.dict(node["Parent"])
	}
	return nil
}

func (doc *document) fontDecoders(page dict) map[string]*fontDecoder {
	fonts := doc.dict(doc.resources(page)["Font"])
	out := make(map[string]*fontDecoder, len(fonts))
	for resName, v := range fonts {
		font := doc.dict(v)
		if font == nil {
			continue
		}
		var dec *fontDecoder
		if r, ok := font["ToUnicode"].(ref); ok {
			if obj, ok := doc.objects[r.num]; ok && obj.stream != nil {
				d, _ := obj.value.(dict)
				if data, err := doc.decodeStream(d, obj.stream); err == nil {
					dec = parseCMap(data)
				}
			}
		}
		if dec == nil && font["Subtype"] == name("Type0") {
			dec = &fontDecoder{codeLen: 2}
		}
		if dec != nil {
			out[resName] = dec
		}
	}
	return out
}

func (doc *document) decodeStream(d dict, data []byte) ([]byte, error) {
	var filters []name
	switch f := doc.resolve(d["Filter"]).(type) {
	case name:
		filters = []name{f}
	case array:
		for _, item := range f {
			if n, ok := item.(name); ok {
				filters = append(filters, n)
			}
		}
	}
	for _, f := range filters {
		limit := min(maxStreamSize, doc.budget)
		if limit <= 0 {
			return nil, errStreamTooLarge
		}
		var err error
		switch f {
		case "FlateDecode", "Fl":
			data, err = inflate(data, limit)
		case "ASCIIHexDecode", "AHx":
			data, err = asciiHex(data)
		case "ASCII85Decode", "A85":
			data, err = ascii85Decode(data, limit)
		default:
			err = fmt.Errorf("unsupported filter %s", f)
		}
		if err != nil {
			return nil, err
		}
		doc.budget -= len(data)
	}
	return data, nil
}

// inflate decompresses zlib or raw deflate data, failing once the output
// would exceed limit bytes.
func inflate(data []byte, limit int) ([]byte, error) {
	read := func(r io.Reader) ([]byte, error) {
		out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
		if len(out) > limit {
			return nil, errStreamTooLarge
		}
		return out, err
	}
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err == nil {
		out, rerr := read(zr)
		if errors.Is(rerr, errStreamTooLarge) {
			return nil, rerr
		}
		if rerr == nil || len(out) > 0 {
			return out, nil
		}
	}
	out, err := read(flate.NewReader(bytes.NewReader(data)))
	if errors.Is(err, errStreamTooLarge) {
		return nil, err
	}
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out, nil
}

func asciiHex(data []byte) ([]byte, error) {
	var digits []byte
	for _, c := range data {
		if c == '>' {
			break
		}
		if !isWhite(c) {
			digits = append(digits, c)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	_, err := hex.Decode(out, digits)
	return out, err
}

func ascii85Decode(data []byte, limit int) ([]byte, error) {
	data = bytes.TrimSpace(data)
	data = bytes.TrimPrefix(data, []byte("<~"))
	if i := bytes.Index(data, []byte("~>")); i >= 0 {
		data = data[:i]
	}
	out := make([]byte, min(4*len(data), limit))
	n, consumed, err := ascii85.Decode(out, data, true)
	if err != nil {
		return nil, err
	}
	if consumed < len(data) && len(bytes.TrimSpace(data[consumed:])) > 0 {
		return nil, errStreamTooLarge
	}
	return out[:n], nil
}

// textState tracks just enough of the text matrix to place line breaks and
// word gaps.
type textState struct {
	out          strings.Builder
	x, y         float64
	leading      float64
	lastY        float64
	shown, moved bool
	font         string
}

func (s *textState) show(text string) {
	if text == "" {
		return
	}
	if s.shown {
		switch {
		case math.Abs(s.y-s.lastY) > 0.5:
			s.newline()
		case s.moved && !strings.HasSuffix(s.out.String(), " ") && !strings.HasPrefix(text, " "):
			s.out.WriteByte(' ')
		}
	}
	s.out.WriteString(text)
	s.shown = true
	s.moved = false
	s.lastY = s.y
}

func (s *textState) newline() {
	str := s.out.String()
	if s.out.Len() > 0 && !strings.HasSuffix(str, "\n") {
		s.out.WriteByte('\n')
	}
}

func extractTextFromStream(data []byte, fonts map[string]*fontDecoder) string {
	l := newLexer(data)
	var operands []interface{}
	st := &textState{}

	decode := func(b []byte) string {
		if dec := fonts[st.font]; dec != nil {
			return dec.decode(b)
		}
		return decodeWinAnsi(b)
	}
	lastString := func() []byte {
		for i := len(operands) - 1; i >= 0; i-- {
			if s, ok := operands[i].(pstring); ok {
				return s
			}
		}
		return nil
	}
	number := func(i int) float64 {
		if i < 0 || i >= len(operands) {
			return 0
		}
		f, _ := operands[i].(float64)
		return f
	}

	for {
		tok, err := l.next()
		if err != nil {
			break
		}
		op, ok := tok.(keyword)
		if !ok {
			operands = append(operands, tok)
			continue
		}
		n := len(operands)
		switch op {
		case "BT":
			st.x, st.y = 0, 0
			st.moved = true
		case "Tf":
			if n >= 2 {
				if nm, ok := operands[n-2].(name); ok {
					st.font = string(nm)
				}
			}
		case "TL":
			st.leading = number(n - 1)
		case "Td", "TD":
			if n >= 2 {
				st.x += number(n - 2)
				st.y += number(n - 1)
				if op == "TD" {
					st.leading = -number(n - 1)
				}
				st.moved = true
			}
		case "Tm":
			if n >= 6 {
				st.x, st.y = number(n-2), number(n-1)
				st.moved = true
			}
		case "T*":
			st.y -= st.leading
			st.newline()
			st.moved = true
		case "Tj":
			st.show(decode(lastString()))
		case "'", "\"":
			st.y -= st.leading
			st.newline()
			st.shown = false
			st.show(decode(lastString()))
		case "TJ":
			if n >= 1 {
				if arr, ok := operands[n-1].(array); ok {
					var sb strings.Builder
					for _, item := range arr {
						switch v := item.(type) {
						case pstring:
							sb.WriteString(decode(v))
						case float64:
							if v < -200 {
								sb.WriteByte(' ')
							}
						}
					}
					st.show(sb.String())
				}
			}
		case "ID":
			l.pos = skipInlineImage(data, l.pos)
		}
		operands = operands[:0]
	}
	return st.out.String()
}

// skipInlineImage returns the offset just past the EI operator closing inline
// image data that starts at pos.
func skipInlineImage(data []byte, pos int) int {
	for i := pos; i+1 < len(data); i++ {
		if data[i] == 'E' && data[i+1] == 'I' && i > 0 && isWhite(data[i-1]) && (i+2 == len(data) || isWhite(data[i+2])) {
			return i + 2
		}
	}
	return len(data)
}
