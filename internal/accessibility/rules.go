package accessibility

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const helpURLBase = "https://dequeuniversity.com/rules/axe/4.8/"

type Impact string

const (
	ImpactMinor    Impact = "minor"
	ImpactModerate Impact = "moderate"
	ImpactSerious  Impact = "serious"
	ImpactCritical Impact = "critical"
)

type Node struct {
	HTML   string   `json:"html"`
	Target []string `json:"target"`
}

type Violation struct {
	ID          string `json:"id"`
	Impact      Impact `json:"impact"`
	Description string `json:"description"`
	Help        string `json:"help"`
	HelpURL     string `json:"helpUrl"`
	Nodes       []Node `json:"nodes"`
}

type rule struct {
	id          string
	impact      Impact
	description string
	help        string
	check       func(p *page) []*html.Node
}

var rules = []rule{
	{
		id:          "html-has-lang",
		impact:      ImpactSerious,
		description: "Ensures every HTML document has a lang attribute",
		help:        "<html> element must have a lang attribute",
		check:       checkHTMLLang,
	},
	{
		id:          "document-title",
		impact:      ImpactSerious,
		description: "Ensures each HTML document contains a non-empty <title> element",
		help:        "Documents must have <title> element to aid in navigation",
		check:       checkDocumentTitle,
	},
	{
		id:          "image-alt",
		impact:      ImpactCritical,
		description: "Ensures <img> elements have alternate text or a role of none or presentation",
		help:        "Images must have alternate text",
		check:       checkImageAlt,
	},
	{
		id:          "input-image-alt",
		impact:      ImpactCritical,
		description: "Ensures <input type=\"image\"> elements have alternate text",
		help:        "Image buttons must have alternate text",
		check:       checkInputImageAlt,
	},
	{
		id:          "label",
		impact:      ImpactCritical,
		description: "Ensures every form element has a label",
		help:        "Form elements must have labels",
		check:       checkLabel,
	},
	{
		id:          "button-name",
		impact:      ImpactCritical,
		description: "Ensures buttons have discernible text",
		help:        "Buttons must have discernible text",
		check:       checkButtonName,
	},
	{
		id:          "link-name",
		impact:      ImpactSerious,
		description: "Ensures links have discernible text",
		help:        "Links must have discernible text",
		check:       checkLinkName,
	},
	{
		id:          "heading-order",
		impact:      ImpactModerate,
		description: "Ensures the order of headings is semantically correct",
		help:        "Heading levels should only increase by one",
		check:       checkHeadingOrder,
	},
	{
		id:          "empty-heading",
		impact:      ImpactMinor,
		description: "Ensures headings have discernible text",
		help:        "Headings should not be empty",
		check:       checkEmptyHeading,
	},
	{
		id:          "frame-title",
		impact:      ImpactSerious,
		description: "Ensures <iframe> and <frame> elements have an accessible name",
		help:        "Frames must have an accessible name",
		check:       checkFrameTitle,
	},
	{
		id:          "meta-viewport",
		impact:      ImpactCritical,
		description: "Ensures <meta name=\"viewport\"> does not disable text scaling and zooming",
		help:        "Zooming and scaling must not be disabled",
		check:       checkMetaViewport,
	},
	{
		id:          "duplicate-id",
		impact:      ImpactMinor,
		description: "Ensures every id attribute value is unique",
		help:        "id attribute value must be unique",
		check:       checkDuplicateID,
	},
}

// page is a parsed document with the indexes rules need.
type page struct {
	root     *html.Node
	elements []*html.Node
	ids      map[string]int
	labelFor map[string]bool
}

func newPage(root *html.Node) *page {
	p := &page{root: root, ids: map[string]int{}, labelFor: map[string]bool{}}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			p.elements = append(p.elements, n)
			if id := attr(n, "id"); id != "" {
				p.ids[id]++
			}
			if n.DataAtom == atom.Label {
				if f := attr(n, "for"); f != "" {
					p.labelFor[f] = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return p
}

// Evaluate runs every rule against the document.
func Evaluate(root *html.Node) []Violation {
	p := newPage(root)
	var out []Violation
	for _, r := range rules {
		nodes := r.check(p)
		if len(nodes) == 0 {
			continue
		}
		v := Violation{
			ID:          r.id,
			Impact:      r.impact,
			Description: r.description,
			Help:        r.help,
			HelpURL:     helpURLBase + r.id,
		}
		for _, n := range nodes {
			v.Nodes = append(v.Nodes, Node{HTML: openingTag(n), Target: []string{p.selector(n)}})
		}
		out = append(out, v)
	}
	return out
}

func (p *page) byAtom(a ...atom.Atom) []*html.Node {
	var out []*html.Node
	for _, n := range p.elements {
		for _, x := range a {
			if n.DataAtom == x {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}

func nonEmptyAttr(n *html.Node, keys ...string) bool {
	for _, k := range keys {
		if strings.TrimSpace(attr(n, k)) != "" {
			return true
		}
	}
	return false
}

// textContent includes the alt text of descendant images, which is what
// assistive technology announces for image links and buttons.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Img:
			sb.WriteString(attr(n, "alt"))
		case n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func hasAccessibleName(n *html.Node) bool {
	return textContent(n) != "" || nonEmptyAttr(n, "aria-label", "aria-labelledby", "title")
}

func checkHTMLLang(p *page) []*html.Node {
	for _, n := range p.byAtom(atom.Html) {
		if !nonEmptyAttr(n, "lang", "xml:lang") {
			return []*html.Node{n}
		}
	}
	return nil
}

func checkDocumentTitle(p *page) []*html.Node {
	for _, n := range p.byAtom(atom.Title) {
		if textContent(n) != "" {
			return nil
		}
	}
	for _, n := range p.byAtom(atom.Html) {
		return []*html.Node{n}
	}
	return nil
}

func checkImageAlt(p *page) []*html.Node {
	var out []*html.Node
	for _, n := range p.byAtom(atom.Img) {
		role := strings.ToLower(attr(n, "role"))
		if hasAttr(n, "alt") || role == "presentation" || role == "none" {
			continue
		}
		if nonEmptyAttr(n, "aria-label", "aria-labelledby", "title") {
			continue
		}
		out = append(out, n)
	}
	return out
}

func checkInputImageAlt(p *page) []*html.Node {
	var out []*html.Node
	for _, n := range p.byAtom(atom.Input) {
		if strings.ToLower(attr(n, "type")) != "image" {
			continue
		}
		if !nonEmptyAttr(n, "alt", "aria-label", "aria-labelledby", "title") {
			out = append(out, n)
		}
	}
	return out
}

var unlabelledInputTypes = map[string]bool{
	"hidden": true, "submit": true, "button": true, "reset": true, "image": true,
}

func insideLabel(n *html.Node) bool {
	for a := n.Parent; a != nil; a = a.Parent {
		if a.Type == html.ElementNode && a.DataAtom == atom.Label {
			return true
		}
	}
	return false
}

func checkLabel(p *page) []*html.Node {
	var out []*html.Node
	for _, n := range p.byAtom(atom.Input, atom.Select, atom.Textarea) {
		if n.DataAtom == atom.Input && unlabelledInputTypes[strings.ToLower(attr(n, "type"))] {
			continue
		}
		if nonEmptyAttr(n, "aria-label", "aria-labelledby", "title") || insideLabel(n) {
			continue
		}
		if id := attr(n, "id"); id != "" && p.labelFor[id] {
			continue
		}
		out = append(out, n)
	}
	return out
}

func checkButtonName(p *page) []*html.Node {
	var out []*html.Node
	for _, n := range p.byAtom(atom.Button, atom.Input) {
		if n.DataAtom == atom.Input {
			// submit and reset have a browser supplied default label
			if strings.ToLower(attr(n, "type")) != "button" {
				continue
			}
			if !nonEmptyAttr(n, "value", "aria-label", "aria-labelledby", "title") {
				out = append(out, n)
			}
			continue
		}
		if !hasAccessibleName(n) {
			out = append(out, n)
		}
	}
	return out
}

func checkLinkName(p *page) []*html.Node {
	var out []*html.Node
	for _, n := range p.byAtom(atom.A) {
		if !hasAttr(n, "href") {
			continue
		}
		if !hasAccessibleName(n) {
			out = append(out, n)
		}
	}
	return out
}

func headingLevel(n *html.Node) int {
	switch n.DataAtom {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func (p *page) headings() []*html.Node {
	return p.byAtom(atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6)
}

func checkHeadingOrder(p *page) []*html.Node {
	var out []*html.Node
	prev := 0
	for _, n := range p.headings() {
		level := headingLevel(n)
		if prev > 0 && level > prev+1 {
			out = append(out, n)
		}
		prev = level
	}
	return out
}

func checkEmptyHeading(p *page) []*html.Node {
	var out []*html.Node
	for _, n := range p.headings() {
		if !hasAccessibleName(n) {
			out = append(out, n)
		}
	}
	return out
}

func checkFrameTitle(p *page) []*html.Node {
	var out []*html.Node
	for _, n := range p.byAtom(atom.Iframe, atom.Frame) {
		if !nonEmptyAttr(n, "title", "aria-label", "aria-labelledby") {
			out = append(out, n)
		}
	}
	return out
}

func checkMetaViewport(p *page) []*html.Node {
	var out []*html.Node
	for _, n := range p.byAtom(atom.Meta) {
		if !strings.EqualFold(attr(n, "name"), "viewport") {
			continue
		}
		if viewportBlocksZoom(attr(n, "content")) {
			out = append(out, n)
		}
	}
	return out
}

func viewportBlocksZoom(content string) bool {
	for _, prop := range strings.FieldsFunc(content, func(r rune) bool { return r == ',' || r == ';' }) {
		k, v, ok := strings.Cut(prop, "=")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToLower(strings.TrimSpace(v))
		switch k {
		case "user-scalable":
			if v == "no" || v == "0" {
				return true
			}
		case "maximum-scale":
			if f, err := strconv.ParseFloat(v, 64); err == nil && f < 2 {
				return true
			}
		}
	}
	return false
}

func checkDuplicateID(p *page) []*html.Node {
	var out []*html.Node
	seen := map[string]bool{}
	for _, n := range p.elements {
		id := attr(n, "id")
		if id == "" || p.ids[id] < 2 {
			continue
		}
		// report the repeats, the first occurrence is the legitimate one
		if seen[id] {
			out = append(out, n)
		}
		seen[id] = true
	}
	return out
}

const maxSnippet = 250

func openingTag(n *html.Node) string {
	var sb strings.Builder
	sb.WriteString("<" + n.Data)
	for _, a := range n.Attr {
		fmt.Fprintf(&sb, " %s=\"%s\"", a.Key, html.EscapeString(a.Val))
	}
	sb.WriteString(">")
	s := sb.String()
	if len(s) > maxSnippet {
		s = s[:maxSnippet-3] + "..."
	}
	return s
}

// selector returns a css selector locating n: an id when it is unique,
// otherwise a child combinator path with nth-child where siblings share the
// tag.
func (p *page) selector(n *html.Node) string {
	var parts []string
	for e := n; e != nil && e.Type == html.ElementNode; e = e.Parent {
		if id := attr(e, "id"); id != "" && p.ids[id] == 1 {
			parts = append(parts, "#"+id)
			break
		}
		part := e.Data
		if idx, shared := childIndex(e); shared {
			part += fmt.Sprintf(":nth-child(%d)", idx)
		}
		parts = append(parts, part)
		if e.DataAtom == atom.Html {
			break
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func childIndex(n *html.Node) (int, bool) {
	if n.Parent == nil {
		return 1, false
	}
	idx, same := 0, 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		idx++
		if c.Data == n.Data {
			same++
		}
		if c == n {
			break
		}
	}
	shared := same > 1
	if !shared {
		for c := n.NextSibling; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == n.Data {
				shared = true
				break
			}
		}
	}
	return idx, shared
}
