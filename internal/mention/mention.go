// Package mention finds "@name" tokens in plain text and renders them.
//
// Message text is always stored as plain text. Markup is applied only when a
// message is displayed, so the functions here never see their own output
// unless a caller explicitly feeds it back; Highlight tolerates that case too.
package mention

import (
	"regexp"
	"strings"
)

// OpenTag and CloseTag delimit a highlighted mention in HTML output.
const (
	OpenTag  = `<span class="mention">`
	CloseTag = `</span>`
)

var (
	// Word characters follow RE2's \w: ASCII letters, digits and underscore.
	mentionPattern = regexp.MustCompile(`@\w+`)

	// An already wrapped mention must win over the bare form at the same
	// position, so it comes first in the alternation.
	highlightPattern = regexp.MustCompile(regexp.QuoteMeta(OpenTag) + `@\w+` + regexp.QuoteMeta(CloseTag) + `|@\w+`)
)

// Span is a single mention within a string, as byte offsets.
type Span struct {
	Start int
	End   int
	// Name is the mention without its leading '@'.
	Name string
}

// Spans returns every mention in text, left to right and non-overlapping.
func Spans(text string) []Span {
	idx := mentionPattern.FindAllStringIndex(text, -1)
	if len(idx) == 0 {
		return nil
	}
	spans := make([]Span, 0, len(idx))
	for _, loc := range idx {
		spans = append(spans, Span{Start: loc[0], End: loc[1], Name: text[loc[0]+1 : loc[1]]})
	}
	return spans
}

// Names returns the mentioned names in order of appearance, duplicates kept.
func Names(text string) []string {
	spans := Spans(text)
	if len(spans) == 0 {
		return nil
	}
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name
	}
	return names
}

// Mentions reports whether text mentions name. The comparison is
// case-insensitive.
func Mentions(text, name string) bool {
	name = strings.TrimPrefix(name, "@")
	if name == "" {
		return false
	}
	for _, n := range Names(text) {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// Highlight wraps each mention in text with a mention span and leaves every
// other character unchanged. Mentions that are already wrapped are kept as
// they are, so Highlight(Highlight(s)) == Highlight(s).
func Highlight(text string) string {
	return highlightPattern.ReplaceAllStringFunc(text, func(m string) string {
		if strings.HasPrefix(m, OpenTag) {
			return m
		}
		return OpenTag + m + CloseTag
	})
}

// Render walks text and passes plain runs and mentions to the matching
// function, concatenating the results. A nil function leaves its runs as-is.
func Render(text string, mention, plain func(string) string) string {
	spans := Spans(text)
	if len(spans) == 0 {
		return apply(plain, text)
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range spans {
		if s.Start > last {
			b.WriteString(apply(plain, text[last:s.Start]))
		}
		b.WriteString(apply(mention, text[s.Start:s.End]))
		last = s.End
	}
	if last < len(text) {
		b.WriteString(apply(plain, text[last:]))
	}
	return b.String()
}

func apply(fn func(string) string, s string) string {
	if fn == nil {
		return s
	}
	return fn(s)
}
