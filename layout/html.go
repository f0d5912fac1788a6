package layout

import (
	"bytes"

	treeblood "github.com/wyatt915/goldmark-treeblood"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// RenderHTML converts markdown to HTML. TeX between $ or $$ delimiters is
// rendered as MathML.
func RenderHTML(source string) (string, error) {
	if len(bytes.TrimSpace([]byte(source))) == 0 {
		return "", ErrEmptyDocument
	}
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			treeblood.MathML(),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
