package pdf

import "strings"

// winAnsiHigh maps the 0x80-0x9F range of WinAnsiEncoding to runes.
var winAnsiHigh = [32]rune{
	'€', 0, '‚', 'ƒ', '„', '…', '†', '‡', 'ˆ', '‰', 'Š', '‹', 'Œ', 0, 'Ž', 0,
	0, '‘', '’', '“', '”', '•', '–', '—', '˜', '™', 'š', '›', 'œ', 0, 'ž', 'Ÿ',
}

var winAnsiReverse = func() map[rune]byte {
	m := make(map[rune]byte, len(winAnsiHigh))
	for i, r := range winAnsiHigh {
		if r != 0 {
			m[r] = byte(0x80 + i)
		}
	}
	return m
}()

// encodeWinAnsi converts text to WinAnsiEncoding bytes. Runes outside the
// encoding become '?'.
func encodeWinAnsi(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == '\t':
			out = append(out, ' ')
		case r < 0x20:
		case r < 0x80:
			out = append(out, byte(r))
		case r >= 0xA0 && r <= 0xFF:
			out = append(out, byte(r))
		default:
			if b, ok := winAnsiReverse[r]; ok {
				out = append(out, b)
			} else {
				out = append(out, '?')
			}
		}
	}
	return out
}

// decodeWinAnsi is the inverse of encodeWinAnsi for simple fonts.
func decodeWinAnsi(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		switch {
		case c >= 0x80 && c < 0xA0:
			if r := winAnsiHigh[c-0x80]; r != 0 {
				sb.WriteRune(r)
			}
		case c < 0x20 && c != '\n':
		default:
			sb.WriteRune(rune(c))
		}
	}
	return sb.String()
}

// escapeString renders bytes as the body of a PDF literal string.
func escapeString(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		switch c {
		case '\\', '(', ')':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		default:
			if c < 0x20 || c >= 0x7F {
				sb.WriteByte('\\')
				sb.WriteByte('0' + (c>>6)&7)
				sb.WriteByte('0' + (c>>3)&7)
				sb.WriteByte('0' + c&7)
				continue
			}
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
