package pdf

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"strconv"
)

// Object model used by the extractor. Numbers are float64, strings are raw
// bytes, names have no leading slash.
type (
	name    string
	keyword string
	dict    map[string]interface{}
	array   []interface{}
	ref     struct{ num, gen int }
	pstring []byte
)

var errSyntax = errors.New("pdf syntax error")

// maxNesting bounds array and dictionary nesting.
const maxNesting = 256

type lexer struct {
	data  []byte
	pos   int
	depth int
}

func newLexer(data []byte) *lexer { return &lexer{data: data} }

func isWhite(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhite(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) eof() bool {
	l.skipSpace()
	return l.pos >= len(l.data)
}

// next reads one object. Keywords, including content stream operators and
// the closing delimiters of arrays and dictionaries, are returned as keyword.
func (l *lexer) next() (interface{}, error) {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return nil, io.EOF
	}
	c := l.data[l.pos]
	switch {
	case c == '/':
		return l.readName(), nil
	case c == '(':
		return l.readLiteral()
	case c == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			l.pos += 2
			return l.readDict()
		}
		return l.readHex()
	case c == '>' && l.pos+1 < len(l.data) && l.data[l.pos+1] == '>':
		l.pos += 2
		return keyword(">>"), nil
	case c == '[':
		l.pos++
		return l.readArray()
	case c == ']':
		l.pos++
		return keyword("]"), nil
	case c == '{' || c == '}':
		l.pos++
		return keyword(string(c)), nil
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return l.readNumberOrRef()
	}
	start := l.pos
	for l.pos < len(l.data) && !isWhite(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	if l.pos == start {
		// stray delimiter such as an unbalanced ')'
		l.pos++
		return keyword(string(c)), nil
	}
	switch kw := string(l.data[start:l.pos]); kw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	default:
		return keyword(kw), nil
	}
}

func (l *lexer) readName() name {
	l.pos++
	var b bytes.Buffer
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isWhite(c) || isDelim(c) {
			break
		}
		if c == '#' && l.pos+2 < len(l.data) {
			if v, err := strconv.ParseUint(string(l.data[l.pos+1:l.pos+3]), 16, 8); err == nil {
				b.WriteByte(byte(v))
				l.pos += 3
				continue
			}
		}
		b.WriteByte(c)
		l.pos++
	}
	return name(b.String())
}

func (l *lexer) readLiteral() (pstring, error) {
	l.pos++
	depth := 1
	var out []byte
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return out, nil
			}
		case '\\':
			if l.pos >= len(l.data) {
				return out, nil
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; i++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
					continue
				}
				out = append(out, e)
			}
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (l *lexer) readHex() (pstring, error) {
	l.pos++
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		c := l.data[l.pos]
		if !isWhite(c) {
			digits = append(digits, c)
		}
		l.pos++
	}
	l.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, hex.DecodedLen(len(digits)))
	if _, err := hex.Decode(out, digits); err != nil {
		return nil, errSyntax
	}
	return out, nil
}

func (l *lexer) readNumber() (float64, bool) {
	start := l.pos
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			l.pos++
			continue
		}
		break
	}
	v, err := strconv.ParseFloat(string(l.data[start:l.pos]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (l *lexer) readNumberOrRef() (interface{}, error) {
	v, ok := l.readNumber()
	if !ok {
		return keyword("?"), nil
	}
	if v != float64(int(v)) || v < 0 {
		return v, nil
	}
	// try "<num> <gen> R"
	save := l.pos
	l.skipSpace()
	if l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '9' {
		gen, ok := l.readNumber()
		if ok && gen == float64(int(gen)) {
			l.skipSpace()
			if l.pos < len(l.data) && l.data[l.pos] == 'R' &&
				(l.pos+1 == len(l.data) || isWhite(l.data[l.pos+1]) || isDelim(l.data[l.pos+1])) {
				l.pos++
				return ref{num: int(v), gen: int(gen)}, nil
			}
		}
	}
	l.pos = save
	return v, nil
}

func (l *lexer) readArray() (array, error) {
	if l.depth >= maxNesting {
		return nil, errSyntax
	}
	l.depth++
	defer func() { l.depth-- }()
	var out array
	for {
		obj, err := l.next()
		if err != nil {
			return out, err
		}
		if kw, ok := obj.(keyword); ok && kw == "]" {
			return out, nil
		}
		out = append(out, obj)
	}
}

func (l *lexer) readDict() (dict, error) {
	if l.depth >= maxNesting {
		return nil, errSyntax
	}
	l.depth++
	defer func() { l.depth-- }()
	out := dict{}
	for {
		obj, err := l.next()
		if err != nil {
			return out, err
		}
		if kw, ok := obj.(keyword); ok && kw == ">>" {
			return out, nil
		}
		key, ok := obj.(name)
		if !ok {
			return out, errSyntax
		}
		val, err := l.next()
		if err != nil {
			return out, err
		}
		out[string(key)] = val
	}
}
