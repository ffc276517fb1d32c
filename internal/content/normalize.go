package content

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockMarker stands in for block boundaries while tags are stripped and
// whitespace is collapsed; it becomes a newline at the end.
const blockMarker = "\x1e"

var (
	inlineTagReplacer = strings.NewReplacer("<nobr>", "", "</nobr>", "")

	blockTagReplacer = strings.NewReplacer(
		"</td>", blockMarker,
		"</h3>", blockMarker,
		"</h2>", blockMarker,
		"<br>", blockMarker,
		"<br/>", blockMarker,
	)

	tagPattern        = regexp.MustCompile(`(?s)<!--.*?-->|<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// removedElements are dropped with all their descendants.
var removedElements = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Link:   true,
	atom.Head:   true,
}

// Normalizer turns an HTML message body into plain text.
type Normalizer struct {
	footer *regexp.Regexp
}

// NewNormalizer compiles footerPattern, which marks the start of a
// trailing boilerplate block. An empty pattern keeps the whole body.
func NewNormalizer(footerPattern string) (*Normalizer, error) {
	n := &Normalizer{}
	if footerPattern == "" {
		return n, nil
	}

	footer, err := regexp.Compile("(?s)" + footerPattern)
	if err != nil {
		return nil, fmt.Errorf("compiling footer pattern %q: %w", footerPattern, err)
	}
	n.footer = footer

	return n, nil
}

// Normalize converts body to plain text. The steps run in a fixed order:
// later ones rely on block tags having been turned into markers.
func (n *Normalizer) Normalize(body string) string {
	text := inlineTagReplacer.Replace(body)
	text = cleanupHTML(text)
	text = blockTagReplacer.Replace(text)
	text = tagPattern.ReplaceAllString(text, "")
	if n.footer != nil {
		text = n.footer.ReplaceAllString(text, "")
	}
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, blockMarker, "\n")
	text = html.UnescapeString(text)

	return strings.ReplaceAll(text, "\u00a0", " ")
}

// cleanupHTML parses markup, removes script, style, link and head
// elements and renders the rest back to HTML. Input that cannot be
// parsed or rendered is returned unchanged.
func cleanupHTML(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return markup
	}

	var unwanted []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && removedElements[node.DataAtom] {
			unwanted = append(unwanted, node)
			return
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	for _, node := range unwanted {
		node.Parent.RemoveChild(node)
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return markup
	}

	return buf.String()
}
