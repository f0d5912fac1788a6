package pdf

import (
	"strings"
	"unicode/utf16"
)

// maxRange bounds bfrange expansion in hostile CMaps.
const maxRange = 1 << 16

// fontDecoder maps character codes shown with a font to text using the
// font's ToUnicode CMap.
type fontDecoder struct {
	codeLen int
	cmap    map[uint32]string
}

func (f *fontDecoder) decode(b []byte) string {
	n := f.codeLen
	if n < 1 {
		n = 1
	}
	var sb strings.Builder
	for i := 0; i+n <= len(b); i += n {
		var code uint32
		for _, c := range b[i : i+n] {
			code = code<<8 | uint32(c)
		}
		if s, ok := f.cmap[code]; ok {
			sb.WriteString(s)
			continue
		}
		if code >= 0x20 && code < 0x7F {
			sb.WriteByte(byte(code))
		}
	}
	return sb.String()
}

func utf16Text(b []byte) string {
	if len(b)%2 == 1 {
		b = append(b, 0)
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return string(utf16.Decode(units))
}

func codeOf(b []byte) uint32 {
	var code uint32
	for _, c := range b {
		code = code<<8 | uint32(c)
	}
	return code
}

// parseCMap reads the bfchar and bfrange sections of a ToUnicode CMap.
func parseCMap(data []byte) *fontDecoder {
	dec := &fontDecoder{cmap: make(map[uint32]string)}
	l := newLexer(data)
	var operands []interface{}
	setLen := func(b pstring) {
		if dec.codeLen == 0 && len(b) > 0 {
			dec.codeLen = len(b)
		}
	}
	for {
		tok, err := l.next()
		if err != nil {
			break
		}
		kw, ok := tok.(keyword)
		if !ok {
			operands = append(operands, tok)
			continue
		}
		switch kw {
		case "endcodespacerange":
			if len(operands) > 0 {
				if lo, ok := operands[0].(pstring); ok {
					dec.codeLen = len(lo)
				}
			}
		case "endbfchar":
			for i := 0; i+1 < len(operands); i += 2 {
				src, ok1 := operands[i].(pstring)
				dst, ok2 := operands[i+1].(pstring)
				if !ok1 || !ok2 {
					continue
				}
				setLen(src)
				dec.cmap[codeOf(src)] = utf16Text(dst)
			}
		case "endbfrange":
			for i := 0; i+2 < len(operands); i += 3 {
				lo, ok1 := operands[i].(pstring)
				hi, ok2 := operands[i+1].(pstring)
				if !ok1 || !ok2 {
					continue
				}
				setLen(lo)
				start, end := codeOf(lo), codeOf(hi)
				if end < start || end-start > maxRange {
					continue
				}
				switch dst := operands[i+2].(type) {
				case pstring:
					base := append([]byte(nil), dst...)
					for k := uint32(0); k <= end-start; k++ {
						dec.cmap[start+k] = utf16Text(base)
						if len(base) > 0 {
							base[len(base)-1]++
						}
					}
				case array:
					for j, item := range dst {
						if s, ok := item.(pstring); ok && start+uint32(j) <= end {
							dec.cmap[start+uint32(j)] = utf16Text(s)
						}
					}
				}
			}
		}
		operands = operands[:0]
	}
	if dec.codeLen == 0 {
		dec.codeLen = 1
	}
	return dec
}
