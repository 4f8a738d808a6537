package content

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// knownTags are the markup tags a Skype message body may contain. A body
// using anything else is handed to the regex fallback, which strips the
// noise.
var knownTags = map[string]bool{
	"at": true, "a": true,
	"b": true, "strong": true,
	"i": true, "em": true, "u": true,
	"s": true, "strike": true, "del": true,
	"code": true, "pre": true,
	"quote": true,
}

// wellFormed reports whether every tag in body is a known tag and every
// non-void tag is properly closed and nested. Only well-formed bodies take
// the DOM path; everything else falls back to the regex pass.
func wellFormed(body string) bool {
	z := html.NewTokenizer(strings.NewReader(body))
	var stack []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return len(stack) == 0
			}
			return false
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == "br" {
				continue
			}
			if !knownTags[tag] {
				return false
			}
			stack = append(stack, tag)
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if len(stack) == 0 || stack[len(stack)-1] != tag {
				return false
			}
			stack = stack[:len(stack)-1]
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if string(name) != "br" {
				return false
			}
		}
	}
}

// formatDOM renders a well-formed body through a tolerant HTML parse.
// Returns ok=false on parser failure so the caller can fall back.
func formatDOM(body string) (string, bool) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(body), ctx)
	if err != nil {
		return "", false
	}
	var b strings.Builder
	for _, n := range nodes {
		renderNode(&b, n)
	}
	return collapseWhitespace(b.String()), true
}

// renderNode renders one node and its children into b.
func renderNode(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		// Fall through to element handling below.
	default:
		return
	}

	children := renderChildren(n)
	switch n.Data {
	case "br":
		b.WriteString("\n")
	case "at":
		b.WriteString("@")
		b.WriteString(children)
	case "a":
		b.WriteString(renderLink(strings.TrimSpace(children), attr(n, "href")))
	case "b", "strong":
		b.WriteString("*")
		b.WriteString(children)
		b.WriteString("*")
	case "i", "em", "u":
		b.WriteString("_")
		b.WriteString(children)
		b.WriteString("_")
	case "s", "strike", "del":
		b.WriteString("~")
		b.WriteString(children)
		b.WriteString("~")
	case "code", "pre":
		b.WriteString("`")
		b.WriteString(children)
		b.WriteString("`")
	case "quote":
		b.WriteString(renderQuote(attr(n, "author"), children))
	default:
		// Unknown element: keep the text, drop the tag.
		b.WriteString(children)
	}
}

func renderChildren(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(&b, c)
	}
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
