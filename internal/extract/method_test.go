package extract

import (
	"math"
	"testing"

	"SignalPipeline/internal/domain"
)

func testConfig() MethodConfig {
	return MethodConfig{MaxPhraseLength: 4, Stopwords: DefaultStopwords()}
}

func candidateByText(t *testing.T, candidates []domain.Candidate, text string) domain.Candidate {
	t.Helper()
	for _, cand := range candidates {
		if cand.Text == text {
			return cand
		}
	}
	t.Fatalf("candidate %q not found in %v", text, candidates)
	return domain.Candidate{}
}

func hasCandidate(candidates []domain.Candidate, text string) bool {
	for _, cand := range candidates {
		if cand.Text == text {
			return true
		}
	}
	return false
}

func TestFrequencyMethod(t *testing.T) {
	t.Parallel()

	text := "inflation inflation inflation rates rates growth"
	candidates, err := FrequencyMethod{}.Extract(text, testConfig())
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	inflation := candidateByText(t, candidates, "inflation")
	if inflation.Occurrences != 3 {
		t.Fatalf("expected 3 occurrences, got %d", inflation.Occurrences)
	}
	if inflation.MethodScore != 1 {
		t.Fatalf("most frequent term should score 1, got %f", inflation.MethodScore)
	}

	rates := candidateByText(t, candidates, "rates")
	if math.Abs(rates.MethodScore-2.0/3.0) > 1e-9 {
		t.Fatalf("unexpected score for rates: %f", rates.MethodScore)
	}
}

func TestFrequencyMethodSkipsStopwordsAndShortTerms(t *testing.T) {
	t.Parallel()

	candidates, err := FrequencyMethod{}.Extract("the of it inflation ai", testConfig())
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Text != "inflation" {
		t.Fatalf("expected only inflation, got %v", candidates)
	}
}

func TestPhraseMethod(t *testing.T) {
	t.Parallel()

	text := "interest rate hike, bond yields. interest rate hike."
	candidates, err := PhraseMethod{}.Extract(text, testConfig())
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	hike := candidateByText(t, candidates, "interest rate hike")
	if hike.Occurrences != 2 {
		t.Fatalf("expected phrase to repeat twice, got %d", hike.Occurrences)
	}
	if hike.MethodScore != 1 {
		t.Fatalf("top phrase should score 1, got %f", hike.MethodScore)
	}

	yields := candidateByText(t, candidates, "bond yields")
	if yields.MethodScore >= hike.MethodScore {
		t.Fatalf("secondary phrase should score below the top phrase")
	}
}

func TestPhraseMethodRespectsMaxLength(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxPhraseLength = 2
	text := "central bank policy shift surprised traders"
	candidates, err := PhraseMethod{}.Extract(text, cfg)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	// The whole run exceeds the cap, so no phrase should be emitted from it.
	if len(candidates) != 0 {
		t.Fatalf("expected no phrases above the length cap, got %v", candidates)
	}
}

func TestEntityMethod(t *testing.T) {
	t.Parallel()

	text := "The Federal Reserve raised rates. Apple and IBM fell. Federal Reserve officials spoke."
	candidates, err := EntityMethod{}.Extract(text, testConfig())
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}

	fed := candidateByText(t, candidates, "federal reserve")
	if fed.Occurrences != 2 {
		t.Fatalf("expected 2 entity occurrences, got %d", fed.Occurrences)
	}
	if !fed.IsEntity {
		t.Fatalf("entity candidates must carry IsEntity")
	}

	if !hasCandidate(candidates, "ibm") {
		t.Fatalf("acronym mid-sentence should survive, got %v", candidates)
	}
	// "Apple" only opens a sentence, so the capitalization is not evidence.
	if hasCandidate(candidates, "apple") {
		t.Fatalf("sentence-initial capitalization alone should not produce an entity")
	}
}
