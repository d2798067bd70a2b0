package mention

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestHighlight(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "two mentions",
			in:   "hello @bob how are @alice",
			want: `hello <span class="mention">@bob</span> how are <span class="mention">@alice</span>`,
		},
		{name: "no mentions", in: "plain text", want: "plain text"},
		{name: "empty", in: "", want: ""},
		{name: "bare at sign", in: "mail me @ home", want: "mail me @ home"},
		{
			name: "word characters only",
			in:   "@team_2-lead!",
			want: `<span class="mention">@team_2</span>-lead!`,
		},
		{
			name: "adjacent mentions",
			in:   "@a@b",
			want: `<span class="mention">@a</span><span class="mention">@b</span>`,
		},
		{
			name: "embedded in a word",
			in:   "user@host",
			want: `user<span class="mention">@host</span>`,
		},
		{
			name: "already wrapped",
			in:   `hi <span class="mention">@bob</span> and @carol`,
			want: `hi <span class="mention">@bob</span> and <span class="mention">@carol</span>`,
		},
		{name: "non ascii is not a word character", in: "@é", want: "@é"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Highlight(tt.in))
		})
	}
}

func TestSpans(t *testing.T) {
	spans := Spans("ping @team update @ops")
	require.Len(t, spans, 2)

	assert.Equal(t, Span{Start: 5, End: 10, Name: "team"}, spans[0])
	assert.Equal(t, "@ops", "ping @team update @ops"[spans[1].Start:spans[1].End])
	assert.Nil(t, Spans("nothing here"))
}

func TestNamesAndMentions(t *testing.T) {
	assert.Equal(t, []string{"bob", "alice", "bob"}, Names("@bob @alice @bob"))
	assert.Nil(t, Names(""))

	assert.True(t, Mentions("hey @Bob", "bob"))
	assert.True(t, Mentions("hey @bob", "@bob"))
	assert.False(t, Mentions("hey @bobby", "bob"))
	assert.False(t, Mentions("hey @bob", ""))
}

func TestRender(t *testing.T) {
	upper := func(s string) string { return strings.ToUpper(s) }
	bracket := func(s string) string { return "[" + s + "]" }

	assert.Equal(t, "[hi ]@BOB[!]", Render("hi @bob!", upper, bracket))
	assert.Equal(t, "@BOB", Render("@bob", upper, bracket))
	assert.Equal(t, "plain", Render("plain", upper, nil))
	assert.Equal(t, "", Render("", upper, bracket))
}

func textGen() *rapid.Generator[string] {
	alphabet := []rune("ab_Z09@ .-!")
	return rapid.StringOf(rapid.SampledFrom(alphabet))
}

func TestHighlightIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := textGen().Draw(t, "text")

		once := Highlight(s)
		twice := Highlight(once)
		if once != twice {
			t.Fatalf("not idempotent:\n once: %q\ntwice: %q", once, twice)
		}
	})
}

func TestHighlightPreservesText(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := textGen().Draw(t, "text")

		out := Highlight(s)
		if got := strings.Count(out, OpenTag); got != len(Spans(s)) {
			t.Fatalf("wrapped %d mentions, want %d", got, len(Spans(s)))
		}

		stripped := strings.ReplaceAll(strings.ReplaceAll(out, OpenTag, ""), CloseTag, "")
		if stripped != s {
			t.Fatalf("text changed: got %q, want %q", stripped, s)
		}
	})
}
