package extract

import (
	"testing"
)

func TestCleanBodyStripsMarkup(t *testing.T) {
	t.Parallel()

	body := `<html><body><h1>Markets</h1> <p>Inflation rose   sharply.</p></body></html>`
	got := CleanBody(body)

	if got != "Markets Inflation rose sharply." {
		t.Fatalf("unexpected cleaned text: %q", got)
	}
}

func TestCleanBodyPlainText(t *testing.T) {
	t.Parallel()

	got := CleanBody("  Interest  rates\nclimbed\tagain  ")
	if got != "Interest rates climbed again" {
		t.Fatalf("unexpected cleaned text: %q", got)
	}
}

func TestNormalizeTerm(t *testing.T) {
	t.Parallel()

	if got := NormalizeTerm("  Federal   Reserve "); got != "federal reserve" {
		t.Fatalf("unexpected normalized term: %q", got)
	}
}

func TestTokenizeSpans(t *testing.T) {
	t.Parallel()

	text := "Rates don't fall"
	tokens := Tokenize(text)
	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d: %v", len(tokens), tokens)
	}
	if tokens[1].Text != "don't" {
		t.Fatalf("apostrophe should stay inside the token, got %q", tokens[1].Text)
	}
	for _, tok := range tokens {
		if text[tok.Start:tok.End] != tok.Text {
			t.Fatalf("span mismatch for %q: [%d,%d)", tok.Text, tok.Start, tok.End)
		}
	}
}

func TestDefaultStopwords(t *testing.T) {
	t.Parallel()

	cfg := MethodConfig{Stopwords: DefaultStopwords()}
	if !isStopword(cfg, "The") {
		t.Fatalf("stopword check should be case-insensitive")
	}
	if isStopword(cfg, "inflation") {
		t.Fatalf("inflation is not a stopword")
	}
}
