package content

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// The regex pass replaces innermost elements (content free of '<') and
// loops to a fixpoint, so properly nested markup renders inside-out exactly
// like the DOM pass. Leftover angle-bracket noise is stripped afterwards,
// then entities are decoded and whitespace collapsed — that ordering keeps
// literal "&lt;b&gt;" text intact, matching the DOM parser's behavior.
var (
	reBr     = regexp.MustCompile(`(?i)<br\s*/?\s*>`)
	reAt     = regexp.MustCompile(`(?is)<at\b([^>]*)>([^<]*)</at\s*>`)
	reAnchor = regexp.MustCompile(`(?is)<a\b([^>]*)>([^<]*)</a\s*>`)
	reBold   = regexp.MustCompile(`(?is)<(?:b|strong)\b[^>]*>([^<]*)</(?:b|strong)\s*>`)
	reItalic = regexp.MustCompile(`(?is)<(?:i|em|u)\b[^>]*>([^<]*)</(?:i|em|u)\s*>`)
	reStrike = regexp.MustCompile(`(?is)<(?:s|strike|del)\b[^>]*>([^<]*)</(?:s|strike|del)\s*>`)
	reCode   = regexp.MustCompile(`(?is)<(?:code|pre)\b[^>]*>([^<]*)</(?:code|pre)\s*>`)
	reQuote  = regexp.MustCompile(`(?is)<quote\b([^>]*)>([^<]*)</quote\s*>`)
	reTag    = regexp.MustCompile(`(?s)<[^>]*>`)

	reHrefAttr   = regexp.MustCompile(`(?i)href\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)
	reIDAttr     = regexp.MustCompile(`(?i)\bid\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)
	reAuthorAttr = regexp.MustCompile(`(?i)\bauthor\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)
)

// formatRegex renders a body without relying on a successful parse.
func formatRegex(body string) string {
	s := reBr.ReplaceAllString(body, "\n")

	for {
		prev := s
		s = replaceSubmatch2(reAt, s, func(attrs, inner string) string {
			return "@" + inner
		})
		s = replaceSubmatch2(reAnchor, s, func(attrs, inner string) string {
			return renderLinkRaw(strings.TrimSpace(inner), rawAttrValue(reHrefAttr, attrs))
		})
		s = replaceSubmatch1(reBold, s, func(inner string) string { return "*" + inner + "*" })
		s = replaceSubmatch1(reItalic, s, func(inner string) string { return "_" + inner + "_" })
		s = replaceSubmatch1(reStrike, s, func(inner string) string { return "~" + inner + "~" })
		s = replaceSubmatch1(reCode, s, func(inner string) string { return "`" + inner + "`" })
		s = replaceSubmatch2(reQuote, s, func(attrs, inner string) string {
			return renderQuote(rawAttrValue(reAuthorAttr, attrs), inner)
		})
		if s == prev {
			break
		}
	}

	s = reTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return collapseWhitespace(s)
}

// replaceSubmatch1 rewrites every match of re using its first capture group.
func replaceSubmatch1(re *regexp.Regexp, s string, fn func(inner string) string) string {
	return re.ReplaceAllStringFunc(s, func(match string) string {
		groups := re.FindStringSubmatch(match)
		return fn(groups[1])
	})
}

// replaceSubmatch2 rewrites every match of re using its first two capture
// groups (attribute blob and inner text).
func replaceSubmatch2(re *regexp.Regexp, s string, fn func(attrs, inner string) string) string {
	return re.ReplaceAllStringFunc(s, func(match string) string {
		groups := re.FindStringSubmatch(match)
		return fn(groups[1], groups[2])
	})
}

// rawAttrValue extracts an attribute value matched by one of the *Attr
// regexes, handling double-quoted, single-quoted, and bare forms. The value
// is NOT entity-decoded: formatRegex substitutes it back into the working
// string and decodes the whole string exactly once at the end, mirroring
// the tokenizer's single decode on the DOM path.
func rawAttrValue(re *regexp.Regexp, attrs string) string {
	groups := re.FindStringSubmatch(attrs)
	if groups == nil {
		return ""
	}
	for _, g := range groups[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// attrValue is the decoding variant, for consumers that emit the value
// directly (the structured index) instead of through the formatRegex
// pipeline.
func attrValue(re *regexp.Regexp, attrs string) string {
	return html.UnescapeString(rawAttrValue(re, attrs))
}

// renderLinkRaw applies the link display rule to still-encoded text and
// URL. The collapse decision ("url only" when the text adds nothing) must
// compare decoded values, since that is what the DOM pass compares.
func renderLinkRaw(text, url string) string {
	decoded := strings.TrimSpace(html.UnescapeString(text))
	if decoded == "" || decoded == html.UnescapeString(url) {
		return url
	}
	return text + " (" + url + ")"
}

// Structured-index patterns tolerate nested markup inside the element body.
var (
	reAtAny     = regexp.MustCompile(`(?is)<at\b([^>]*)>(.*?)</at\s*>`)
	reAnchorAny = regexp.MustCompile(`(?is)<a\b([^>]*)>(.*?)</a\s*>`)
	reQuoteAny  = regexp.MustCompile(`(?is)<quote\b([^>]*)>(.*?)</quote\s*>`)
	reBoldAny   = regexp.MustCompile(`(?is)<(?:b|strong)\b[^>]*>(.*?)</(?:b|strong)\s*>`)
	reItalicAny = regexp.MustCompile(`(?is)<(?:i|em)\b[^>]*>(.*?)</(?:i|em)\s*>`)
	reUnderAny  = regexp.MustCompile(`(?is)<u\b[^>]*>(.*?)</u\s*>`)
	reStrikeAny = regexp.MustCompile(`(?is)<(?:s|strike|del)\b[^>]*>(.*?)</(?:s|strike|del)\s*>`)
	reCodeAny   = regexp.MustCompile(`(?is)<(?:code|pre)\b[^>]*>(.*?)</(?:code|pre)\s*>`)
)

// extractStructured builds the structured index with the regex pass; it
// never fails, and unknown markup simply contributes nothing.
func extractStructured(body string) StructuredContent {
	var out StructuredContent
	if !strings.Contains(body, "<") {
		return out
	}

	for _, m := range reAtAny.FindAllStringSubmatch(body, -1) {
		out.Mentions = append(out.Mentions, Mention{
			ID:   attrValue(reIDAttr, m[1]),
			Name: plainText(m[2]),
		})
	}
	for _, m := range reAnchorAny.FindAllStringSubmatch(body, -1) {
		url := attrValue(reHrefAttr, m[1])
		text := plainText(m[2])
		if url == "" && text == "" {
			continue
		}
		out.Links = append(out.Links, Link{URL: url, Text: text})
	}
	for _, m := range reQuoteAny.FindAllStringSubmatch(body, -1) {
		out.Quotes = append(out.Quotes, Quote{
			Author: attrValue(reAuthorAttr, m[1]),
			Text:   plainText(m[2]),
		})
	}
	collect := func(re *regexp.Regexp) []string {
		var spans []string
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			if span := plainText(m[1]); span != "" {
				spans = append(spans, span)
			}
		}
		return spans
	}
	out.Formatting = Formatting{
		Bold:      collect(reBoldAny),
		Italic:    collect(reItalicAny),
		Underline: collect(reUnderAny),
		Strike:    collect(reStrikeAny),
		Code:      collect(reCodeAny),
	}
	return out
}

// plainText strips tags, decodes entities, and collapses whitespace.
func plainText(s string) string {
	s = reBr.ReplaceAllString(s, "\n")
	s = reTag.ReplaceAllString(s, "")
	return collapseWhitespace(html.UnescapeString(s))
}
