package pdf

// Glyph widths in 1/1000 em for the printable ASCII range (0x20-0x7E), taken
// from the Adobe core font AFM files. Oblique faces share the upright widths.
var helveticaWidths = [95]int{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
}

var helveticaBoldWidths = [95]int{
	278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 333, 333, 584, 584, 584, 611,
	975, 722, 722, 722, 722, 667, 611, 778, 722, 278, 556, 722, 611, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 333, 278, 333, 584, 556,
	333, 556, 611, 556, 611, 556, 333, 611, 611, 278, 278, 556, 278, 889, 611, 611,
	611, 611, 389, 556, 333, 611, 556, 778, 556, 556, 500, 389, 280, 389, 584,
}

const (
	courierWidth = 600
	// fallback for bytes outside the ASCII tables
	defaultWidth = 556
)

// MeasureText returns the advance width of text in points.
func MeasureText(text string, font Font, size float64) float64 {
	var table *[95]int
	switch font {
	case Courier, CourierBold:
		return float64(len(encodeWinAnsi(text))) * courierWidth * size / 1000
	case HelveticaBold, HelveticaBoldOblique:
		table = &helveticaBoldWidths
	default:
		table = &helveticaWidths
	}
	var units int
	for _, c := range encodeWinAnsi(text) {
		if c >= 0x20 && c <= 0x7E {
			units += table[c-0x20]
			continue
		}
		units += defaultWidth
	}
	return float64(units) * size / 1000
}
