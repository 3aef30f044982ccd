// Package ingest prepares free-text cells for classification.
package ingest

import (
	"strings"

	"golang.org/x/net/html"
)

// skipped elements never contribute text.
var skipped = map[string]bool{
	"script": true,
	"style":  true,
	"head":   true,
}

// StripMarkup returns the visible text of an HTML fragment with runs of
// whitespace collapsed. Text without markup or entities is returned as is.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
			return
		case html.ElementNode:
			if skipped[n.Data] {
				return
			}
			// block boundaries and <br> separate words
			buf.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(buf.String()), " ")
}
