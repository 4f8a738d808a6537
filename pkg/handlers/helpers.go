package handlers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// The XML-ish fragments inside message bodies (URIObject, partlist,
// location, contacts) are not HTML and are frequently truncated by the
// export, so they are mined with tolerant regexes rather than parsed.

var (
	reElementAttrs = `(?is)<%s\b([^>]*?)/?>`
	reElementBody  = `(?is)<%s\b[^>]*>(.*?)</%s\s*>`
)

// elementAttrs returns the attribute blob of the first <name ...> element.
func elementAttrs(body, name string) (string, bool) {
	re := regexp.MustCompile(fmt.Sprintf(reElementAttrs, regexp.QuoteMeta(name)))
	m := re.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// elementText returns the decoded inner text of the first <name>…</name>
// element.
func elementText(body, name string) (string, bool) {
	re := regexp.MustCompile(fmt.Sprintf(reElementBody,
		regexp.QuoteMeta(name), regexp.QuoteMeta(name)))
	m := re.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(html.UnescapeString(stripTags(m[1]))), true
}

// elements returns every match of <name ...>body</name> as (attrs, body)
// pairs, body undecoded.
func elements(body, name string) [][2]string {
	re := regexp.MustCompile(fmt.Sprintf(`(?is)<%s\b([^>]*)>(.*?)</%s\s*>`,
		regexp.QuoteMeta(name), regexp.QuoteMeta(name)))
	var out [][2]string
	for _, m := range re.FindAllStringSubmatch(body, -1) {
		out = append(out, [2]string{m[1], m[2]})
	}
	return out
}

// selfClosing returns the attribute blob of every <name .../> element,
// including ones written without the trailing slash.
func selfClosing(body, name string) []string {
	re := regexp.MustCompile(fmt.Sprintf(reElementAttrs, regexp.QuoteMeta(name)))
	var out []string
	for _, m := range re.FindAllStringSubmatch(body, -1) {
		out = append(out, m[1])
	}
	return out
}

var reAnyAttr = regexp.MustCompile(`([a-zA-Z_][\w.-]*)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s>]+))`)

// attrMap parses an attribute blob into a decoded key/value map. Keys are
// lowercased.
func attrMap(attrs string) map[string]string {
	out := map[string]string{}
	for _, m := range reAnyAttr.FindAllStringSubmatch(attrs, -1) {
		val := m[2]
		if val == "" {
			val = m[3]
		}
		if val == "" {
			val = m[4]
		}
		out[strings.ToLower(m[1])] = html.UnescapeString(val)
	}
	return out
}

var reStripTags = regexp.MustCompile(`(?s)<[^>]*>`)

func stripTags(s string) string {
	return reStripTags.ReplaceAllString(s, "")
}

// plainText strips markup and decodes entities from an element body.
func plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripTags(s)))
}

// parseInt64 parses a decimal string, tolerating surrounding whitespace.
func parseInt64(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseFloat parses a decimal string, tolerating surrounding whitespace.
func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// formatFileSize renders a byte count in the human form the dashboard and
// summary use ("1.2 MB"). Zero and negative sizes render as "0 B".
func formatFileSize(size int64) string {
	if size <= 0 {
		return "0 B"
	}
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// propString reads a string-valued entry from a properties bag, tolerating
// numeric values.
func propString(props map[string]any, key string) string {
	if props == nil {
		return ""
	}
	switch v := props[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// fileTypeFromName returns the lowercase extension of a filename, without
// the dot.
func fileTypeFromName(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx+1:])
}
