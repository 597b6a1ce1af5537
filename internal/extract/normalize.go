package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	wordPattern   = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’\-][\p{L}\p{N}]+)*`)
	spacePattern  = regexp.MustCompile(`\s+`)
	markupPattern = regexp.MustCompile(`</?[a-zA-Z][^>]*>`)
)

// CleanBody prepares raw document text for extraction: strips HTML markup when
// present and collapses whitespace. Case is preserved so that entity-aware
// methods can still see capitalization.
func CleanBody(body string) string {
	if markupPattern.MatchString(body) {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err == nil {
			body = doc.Text()
		}
	}
	return strings.TrimSpace(spacePattern.ReplaceAllString(body, " "))
}

// NormalizeTerm case-folds and whitespace-normalizes candidate text so that
// downstream aggregation can merge across methods by exact string key.
func NormalizeTerm(text string) string {
	return strings.ToLower(strings.TrimSpace(spacePattern.ReplaceAllString(text, " ")))
}

// Token is one word occurrence with its span in the cleaned text.
type Token struct {
	Text  string
	Start int
	End   int
}

// Tokenize splits cleaned text into word tokens with byte spans. Token text
// keeps the original case; callers fold as needed.
func Tokenize(text string) []Token {
	spans := wordPattern.FindAllStringIndex(text, -1)
	tokens := make([]Token, 0, len(spans))
	for _, span := range spans {
		tokens = append(tokens, Token{
			Text:  text[span[0]:span[1]],
			Start: span[0],
			End:   span[1],
		})
	}
	return tokens
}

// DefaultStopwords is the fixed stopword set removed from single-word
// candidates and used as phrase delimiters.
func DefaultStopwords() map[string]struct{} {
	words := []string{
		"a", "about", "above", "after", "again", "against", "all", "am", "an",
		"and", "any", "are", "as", "at", "be", "because", "been", "before",
		"being", "below", "between", "both", "but", "by", "can", "could",
		"did", "do", "does", "doing", "down", "during", "each", "few", "for",
		"from", "further", "had", "has", "have", "having", "he", "her", "here",
		"hers", "him", "his", "how", "i", "if", "in", "into", "is", "it",
		"its", "itself", "just", "me", "more", "most", "my", "no", "nor",
		"not", "now", "of", "off", "on", "once", "only", "or", "other", "our",
		"out", "over", "own", "per", "said", "same", "she", "should", "so",
		"some", "such", "than", "that", "the", "their", "them", "then",
		"there", "these", "they", "this", "those", "through", "to", "too",
		"under", "until", "up", "upon", "us", "very", "was", "we", "were",
		"what", "when", "where", "which", "while", "who", "whom", "why",
		"will", "with", "would", "you", "your", "yours",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func isStopword(cfg MethodConfig, word string) bool {
	_, ok := cfg.Stopwords[strings.ToLower(word)]
	return ok
}
