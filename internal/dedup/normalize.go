package dedup

import (
	"html"
	"regexp"
	"strings"
)

const contentPrefixRunes = 500

var (
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	spacesRe = regexp.MustCompile(`\s+`)
)

// Minimal per-language stop-word sets. Enough to keep boilerplate words
// from dominating short embeddings; anything heavier belongs in the
// embedding service itself.
var stopWords = map[string]map[string]struct{}{
	"en": wordSet("the", "a", "an", "and", "or", "of", "in", "on", "at", "to", "is", "are", "was", "for", "with"),
	"ru": wordSet("и", "в", "на", "с", "по", "не", "что", "это", "как", "из"),
	"de": wordSet("der", "die", "das", "und", "in", "zu", "den", "mit", "von", "ein", "eine"),
	"fr": wordSet("le", "la", "les", "et", "de", "des", "un", "une", "du", "en", "à"),
}

func wordSet(words ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

// NormalizeText strips markup, lower-cases, collapses whitespace and
// drops the language's stop words. Unknown languages skip the stop-word
// pass.
func NormalizeText(text, lang string) string {
	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = strings.ToLower(text)
	text = spacesRe.ReplaceAllString(strings.TrimSpace(text), " ")

	stops, ok := stopWords[lang]
	if !ok || text == "" {
		return text
	}

	words := strings.Split(text, " ")
	kept := words[:0]
	for _, w := range words {
		if _, stop := stops[w]; !stop {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// CombineTexts builds the canonical text an item is embedded from:
// normalized title plus a bounded prefix of the normalized body.
func CombineTexts(title, content, lang string) string {
	normTitle := NormalizeText(title, lang)
	normContent := NormalizeText(content, lang)

	runes := []rune(normContent)
	if len(runes) > contentPrefixRunes {
		normContent = string(runes[:contentPrefixRunes])
	}

	if normContent == "" {
		return normTitle
	}
	return normTitle + " " + normContent
}
