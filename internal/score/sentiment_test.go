package score

import (
	"context"
	"math"
	"strings"
	"testing"
)

func TestLexiconScorerNeutralText(t *testing.T) {
	t.Parallel()

	sample, err := NewLexiconScorer().Score(context.Background(), "the committee met on tuesday")
	if err != nil {
		t.Fatalf("Score error: %v", err)
	}
	if sample.Score != 0 || sample.Magnitude != 0 {
		t.Fatalf("text without lexicon hits must be neutral, got %+v", sample)
	}
}

func TestLexiconScorerPositive(t *testing.T) {
	t.Parallel()

	sample, err := NewLexiconScorer().Score(context.Background(), "a great quarter")
	if err != nil {
		t.Fatalf("Score error: %v", err)
	}
	if math.Abs(sample.Score-0.7) > 1e-9 {
		t.Fatalf("unexpected score: %f", sample.Score)
	}
	if math.Abs(sample.Magnitude-0.7) > 1e-9 {
		t.Fatalf("unexpected magnitude: %f", sample.Magnitude)
	}
}

func TestLexiconScorerNegation(t *testing.T) {
	t.Parallel()

	sample, err := NewLexiconScorer().Score(context.Background(), "results were not great")
	if err != nil {
		t.Fatalf("Score error: %v", err)
	}
	if math.Abs(sample.Score-(-0.56)) > 1e-9 {
		t.Fatalf("negation must flip and dampen: %f", sample.Score)
	}
	if math.Abs(sample.Magnitude-0.56) > 1e-9 {
		t.Fatalf("magnitude must stay positive under negation: %f", sample.Magnitude)
	}
}

func TestLexiconScorerIntensifier(t *testing.T) {
	t.Parallel()

	sample, err := NewLexiconScorer().Score(context.Background(), "a very good outcome")
	if err != nil {
		t.Fatalf("Score error: %v", err)
	}
	if math.Abs(sample.Score-0.65) > 1e-9 {
		t.Fatalf("intensifier must scale valence: %f", sample.Score)
	}
}

func TestLexiconScorerMixed(t *testing.T) {
	t.Parallel()

	// "crisis" (-0.7) and "recovery" (0.4) average toward mildly negative,
	// while magnitude keeps the full emotional weight.
	sample, err := NewLexiconScorer().Score(context.Background(), "crisis then recovery")
	if err != nil {
		t.Fatalf("Score error: %v", err)
	}
	if math.Abs(sample.Score-(-0.15)) > 1e-9 {
		t.Fatalf("unexpected mixed score: %f", sample.Score)
	}
	if math.Abs(sample.Magnitude-0.55) > 1e-9 {
		t.Fatalf("unexpected mixed magnitude: %f", sample.Magnitude)
	}
}

func TestContextWindows(t *testing.T) {
	t.Parallel()

	text := "Inflation worries persist. Economists track inflation closely."
	windows := ContextWindows(text, "inflation", 5)
	if len(windows) != 2 {
		t.Fatalf("expected 2 occurrence windows, got %d", len(windows))
	}
	for _, w := range windows {
		if !strings.Contains(strings.ToLower(w), "inflation") {
			t.Fatalf("window must contain the term: %q", w)
		}
	}
}

func TestContextWindowsRespectsMax(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("inflation up. ", 10)
	windows := ContextWindows(text, "inflation", 3)
	if len(windows) != 3 {
		t.Fatalf("expected max 3 windows, got %d", len(windows))
	}
}

func TestContextWindowsLengthChangingCaseFolds(t *testing.T) {
	t.Parallel()

	// 'Ⱥ' (U+023A, 2 bytes) lowercases to 'ⱥ' (U+2C65, 3 bytes), so folded
	// match offsets drift past the original text's length. Windows must still
	// slice valid rune boundaries of the original.
	text := strings.Repeat("Ⱥ", 200) + " inflation persists"
	windows := ContextWindows(text, "inflation", 1)
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if !strings.Contains(windows[0], "inflation") {
		t.Fatalf("window must contain the term: %q", windows[0])
	}
	if !strings.HasSuffix(windows[0], "persists") {
		t.Fatalf("window must keep the trailing context: %q", windows[0])
	}
}

func TestContextWindowsFoldedTermMatch(t *testing.T) {
	t.Parallel()

	// The occurrence itself uses the length-changing uppercase form; the
	// folded search must still find it and return the original spelling.
	text := "the ȺȺȺ index slid again"
	windows := ContextWindows(text, "ȺȺȺ", 1)
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if !strings.Contains(windows[0], "ȺȺȺ") {
		t.Fatalf("window must contain the original occurrence: %q", windows[0])
	}
}

func TestContextWindowsBoundsLongText(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x ", 300) + "inflation" + strings.Repeat(" y", 300)
	windows := ContextWindows(long, "inflation", 1)
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if len(windows[0]) > len("inflation")+2*windowRadius {
		t.Fatalf("window exceeds its radius: %d bytes", len(windows[0]))
	}
}
