// Package content converts the HTML-ish markup found in Skype message
// bodies into a cleaned plain-text rendering and a structured index of
// mentions, links, quotes, and formatting spans.
//
// Two parsers produce the plain-text rendering: a DOM pass over a tolerant
// HTML parse, used for well-formed bodies, and a regex pass used as the
// fallback for malformed input. On the well-formed subset both produce
// byte-identical output; the property tests pin this down.
package content

import (
	"strings"

	"golang.org/x/net/html"
)

// Extractor converts message markup. It is stateless and safe for
// concurrent use across transform workers.
type Extractor struct{}

// New returns a content extractor.
func New() *Extractor {
	return &Extractor{}
}

// FormatMarkup renders a message body as marked-up plain text:
//
//	<at id=X>Name</at>         @Name
//	<a href=U>T</a>            T (U), or just U when T == U
//	<b>, <strong>              *…*
//	<i>, <em>, <u>             _…_
//	<s>, <strike>, <del>       ~…~
//	<code>, <pre>              `…`
//	<quote author=A>b</quote>  newline-delimited "> " block
//	<br>                       newline
//
// HTML entities are decoded and whitespace is collapsed. FormatMarkup never
// fails: catastrophically malformed input degrades to the input with raw
// tags stripped.
func (e *Extractor) FormatMarkup(body string) string {
	if body == "" {
		return ""
	}
	if !strings.Contains(body, "<") {
		return collapseWhitespace(html.UnescapeString(body))
	}
	if wellFormed(body) {
		if out, ok := formatDOM(body); ok {
			return out
		}
	}
	return formatRegex(body)
}

// ExtractStructured builds the structured index of a message body. Empty
// sections are omitted from the map form.
func (e *Extractor) ExtractStructured(body string) StructuredContent {
	return extractStructured(body)
}

// Mention is one <at> reference.
type Mention struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Link is one <a> reference.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// Quote is one <quote> block.
type Quote struct {
	Author string `json:"author,omitempty"`
	Text   string `json:"text"`
}

// Formatting indexes the text spans under each inline style.
type Formatting struct {
	Bold      []string `json:"bold,omitempty"`
	Italic    []string `json:"italic,omitempty"`
	Underline []string `json:"underline,omitempty"`
	Strike    []string `json:"strike,omitempty"`
	Code      []string `json:"code,omitempty"`
}

// Empty reports whether no formatting spans were found.
func (f Formatting) Empty() bool {
	return len(f.Bold) == 0 && len(f.Italic) == 0 && len(f.Underline) == 0 &&
		len(f.Strike) == 0 && len(f.Code) == 0
}

// StructuredContent is the structured index of one message body.
type StructuredContent struct {
	Mentions   []Mention  `json:"mentions,omitempty"`
	Links      []Link     `json:"links,omitempty"`
	Quotes     []Quote    `json:"quotes,omitempty"`
	Formatting Formatting `json:"formatting,omitempty"`
}

// Empty reports whether the index holds nothing.
func (s StructuredContent) Empty() bool {
	return len(s.Mentions) == 0 && len(s.Links) == 0 && len(s.Quotes) == 0 &&
		s.Formatting.Empty()
}

// AsMap renders the index as a map suitable for merging into a message's
// structured data. Empty sections are omitted entirely.
func (s StructuredContent) AsMap() map[string]any {
	out := map[string]any{}
	if len(s.Mentions) > 0 {
		mentions := make([]map[string]any, len(s.Mentions))
		for i, m := range s.Mentions {
			mentions[i] = map[string]any{"id": m.ID, "name": m.Name}
		}
		out["mentions"] = mentions
	}
	if len(s.Links) > 0 {
		links := make([]map[string]any, len(s.Links))
		for i, l := range s.Links {
			links[i] = map[string]any{"url": l.URL, "text": l.Text}
		}
		out["links"] = links
	}
	if len(s.Quotes) > 0 {
		quotes := make([]map[string]any, len(s.Quotes))
		for i, q := range s.Quotes {
			entry := map[string]any{"text": q.Text}
			if q.Author != "" {
				entry["author"] = q.Author
			}
			quotes[i] = entry
		}
		out["quotes"] = quotes
	}
	if !s.Formatting.Empty() {
		formatting := map[string]any{}
		if len(s.Formatting.Bold) > 0 {
			formatting["bold"] = s.Formatting.Bold
		}
		if len(s.Formatting.Italic) > 0 {
			formatting["italic"] = s.Formatting.Italic
		}
		if len(s.Formatting.Underline) > 0 {
			formatting["underline"] = s.Formatting.Underline
		}
		if len(s.Formatting.Strike) > 0 {
			formatting["strike"] = s.Formatting.Strike
		}
		if len(s.Formatting.Code) > 0 {
			formatting["code"] = s.Formatting.Code
		}
		out["formatting"] = formatting
	}
	return out
}

// renderLink applies the link display rule shared by both parsers.
func renderLink(text, url string) string {
	if text == "" || text == url {
		return url
	}
	return text + " (" + url + ")"
}

// renderQuote applies the quote block rule shared by both parsers. Every
// line of the quoted body is prefixed with "> "; the author line is present
// only when an author attribute was given.
func renderQuote(author, body string) string {
	var b strings.Builder
	b.WriteString("\n")
	if author != "" {
		b.WriteString("> ")
		b.WriteString(author)
		b.WriteString(" wrote:\n")
	}
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		b.WriteString("> ")
		b.WriteString(strings.TrimSpace(line))
		b.WriteString("\n")
	}
	return b.String()
}

// collapseWhitespace normalizes whitespace after tag replacement: runs of
// spaces and tabs become one space, spaces around newlines are trimmed,
// three or more newlines become two, and outer whitespace is trimmed.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	space := false
	newlines := 0
	wrote := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\r':
			space = true
		case '\n':
			newlines++
			space = false
		default:
			if newlines > 0 {
				if wrote {
					if newlines > 2 {
						newlines = 2
					}
					for i := 0; i < newlines; i++ {
						b.WriteByte('\n')
					}
				}
				newlines = 0
			} else if space && wrote {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			wrote = true
		}
	}
	return b.String()
}
