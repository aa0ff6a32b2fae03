package dedup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		text string
		lang string
		want string
	}{
		{
			name: "strips markup and lowercases",
			text: "<p>Breaking <b>News</b></p>",
			lang: "xx",
			want: "breaking news",
		},
		{
			name: "unescapes entities",
			text: "Fish &amp; Chips",
			lang: "xx",
			want: "fish & chips",
		},
		{
			name: "collapses whitespace",
			text: "  too   many\n\tspaces  ",
			lang: "xx",
			want: "too many spaces",
		},
		{
			name: "drops english stop words",
			text: "The fire in the city",
			lang: "en",
			want: "fire city",
		},
		{
			name: "unknown language keeps all words",
			text: "the fire",
			lang: "xx",
			want: "the fire",
		},
		{
			name: "empty",
			text: "",
			lang: "en",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeText(tt.text, tt.lang))
		})
	}
}

func TestCombineTexts(t *testing.T) {
	t.Run("title plus content", func(t *testing.T) {
		got := CombineTexts("Fire Downtown", "Flames visible", "xx")
		assert.Equal(t, "fire downtown flames visible", got)
	})

	t.Run("empty content yields title only", func(t *testing.T) {
		got := CombineTexts("Fire Downtown", "", "xx")
		assert.Equal(t, "fire downtown", got)
	})

	t.Run("content truncated to prefix", func(t *testing.T) {
		long := strings.Repeat("x", 2000)
		got := CombineTexts("t", long, "xx")

		// "t" + space + 500-rune prefix
		assert.Len(t, got, 2+contentPrefixRunes)
	})

	t.Run("truncation counts runes not bytes", func(t *testing.T) {
		long := strings.Repeat("ж", 600)
		got := CombineTexts("t", long, "xx")

		assert.Equal(t, 2+contentPrefixRunes, len([]rune(got)))
	})
}
