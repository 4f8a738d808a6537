package content

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genBody generates well-formed message bodies from the known tag set,
// nesting up to two levels deep.
func genBody() gopter.Gen {
	return gen.SliceOf(genNode(2)).Map(func(parts []string) string {
		return strings.Join(parts, " ")
	})
}

func genNode(depth int) gopter.Gen {
	leaf := gen.Identifier()
	if depth == 0 {
		return leaf
	}
	inner := genNode(depth - 1)
	return gen.OneGenOf(
		leaf,
		wrapGen(inner, "<b>", "</b>"),
		wrapGen(inner, "<strong>", "</strong>"),
		wrapGen(inner, "<i>", "</i>"),
		wrapGen(inner, "<em>", "</em>"),
		wrapGen(inner, "<u>", "</u>"),
		wrapGen(inner, "<s>", "</s>"),
		wrapGen(inner, "<strike>", "</strike>"),
		wrapGen(inner, "<del>", "</del>"),
		wrapGen(inner, "<code>", "</code>"),
		wrapGen(inner, "<pre>", "</pre>"),
		wrapGen(inner, `<at id="8:user">`, "</at>"),
		wrapGen(inner, `<a href="https://example.com/page">`, "</a>"),
		wrapGen(inner, `<a href="https://example.com/?q=1&amp;lang=go">`, "</a>"),
		wrapGen(inner, `<quote author="bob">`, "</quote>"),
		wrapGen(inner, `<quote author="A &amp; B">`, "</quote>"),
		leaf.Map(func(s string) string { return s + "<br>" + s }),
		leaf.Map(func(s string) string { return s + " &amp; " + s }),
	)
}

func wrapGen(g gopter.Gen, open, close string) gopter.Gen {
	return g.Map(func(s string) string { return open + s + close })
}

// The regex fallback must render well-formed bodies byte-identically to
// the DOM pass, so that falling back never changes output for clean input.
func TestParserEquivalenceProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("DOM and regex renderings agree on well-formed bodies", prop.ForAll(
		func(body string) bool {
			if !wellFormed(body) {
				// The generator only emits known, balanced tags.
				return false
			}
			dom, ok := formatDOM(body)
			if !ok {
				return false
			}
			return dom == formatRegex(body)
		},
		genBody(),
	))

	properties.Property("FormatMarkup is idempotent on its own output", prop.ForAll(
		func(body string) bool {
			e := New()
			once := e.FormatMarkup(body)
			return e.FormatMarkup(once) == once
		},
		genBody(),
	))

	properties.Property("rendered output carries no residual markup", prop.ForAll(
		func(body string) bool {
			// Quote rendering legitimately emits "> " prefixes, so only
			// opening brackets indicate leftover tags.
			out := New().FormatMarkup(body)
			return !strings.Contains(out, "<")
		},
		genBody(),
	))

	properties.TestingRun(t)
}

// FormatMarkup must never panic, whatever the input looks like.
func TestFormatMarkupTotalProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("arbitrary input always renders", prop.ForAll(
		func(body string) bool {
			_ = New().FormatMarkup(body)
			_ = New().ExtractStructured(body)
			return true
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
