package catalog

import (
	"strings"

	"golang.org/x/net/html"
)

// StripHTML flattens upstream descriptions to plain text. The catalog embeds
// markup like <b> and <br> in volume descriptions.
func StripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if n.Type == html.ElementNode && (n.Data == "p" || n.Data == "br") {
			b.WriteString(" ")
		}
	}
	walk(doc)
	return strings.TrimSpace(strings.Join(strings.Fields(b.String()), " "))
}
