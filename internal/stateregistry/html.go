package stateregistry

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

func parseHTML(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, eris.Wrap(err, "stateregistry: parse html")
	}
	return doc, nil
}

// findAll returns every element under n named tag that satisfies keep, in
// document order. A nil keep matches all.
func findAll(n *html.Node, tag string, keep func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag && (keep == nil || keep(n)) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findFirst(n *html.Node, tag string, keep func(*html.Node) bool) *html.Node {
	if all := findAll(n, tag, keep); len(all) > 0 {
		return all[0]
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// text is the trimmed concatenation of every text node under n.
func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// rowCells returns the trimmed text of each td in every tr of table after
// the header row.
func rowCells(table *html.Node) [][]string {
	rows := findAll(table, "tr", nil)
	if len(rows) == 0 {
		return nil
	}
	out := make([][]string, 0, len(rows)-1)
	for _, tr := range rows[1:] {
		cells := findAll(tr, "td", nil)
		texts := make([]string, len(cells))
		for i, td := range cells {
			texts[i] = text(td)
		}
		out = append(out, texts)
	}
	return out
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
