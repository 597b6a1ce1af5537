package score

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"SignalPipeline/internal/domain"
)

const windowRadius = 120

// LexiconScorer is the default sentiment scorer: a fixed valence lexicon with
// negation and intensifier handling. It is a pure function of its input, so
// unit tests can assert exact values from literal strings.
type LexiconScorer struct{}

// NewLexiconScorer returns the stateless lexicon scorer.
func NewLexiconScorer() *LexiconScorer { return &LexiconScorer{} }

func (*LexiconScorer) Name() string { return "lexicon" }

// Score computes polarity in [-1,1] and magnitude in [0,1] for one occurrence
// window. Text with no lexicon hits is neutral with zero magnitude.
func (*LexiconScorer) Score(_ context.Context, text string) (domain.SentimentSample, error) {
	words := sentimentWords(text)

	var sum, mag float64
	hits := 0
	for i, word := range words {
		valence, ok := valenceLexicon[word]
		if !ok {
			continue
		}

		weight := 1.0
		negated := false
		for back := i - 1; back >= 0 && back >= i-3; back-- {
			if _, neg := negators[words[back]]; neg {
				negated = !negated
				continue
			}
			if factor, boost := intensifiers[words[back]]; boost {
				weight *= factor
			}
		}

		v := valence * weight
		if negated {
			v = -v * 0.8
		}

		sum += v
		if v < 0 {
			mag += -v
		} else {
			mag += v
		}
		hits++
	}

	if hits == 0 {
		return domain.SentimentSample{}, nil
	}
	return domain.SentimentSample{
		Score:     clamp(sum/float64(hits), -1, 1),
		Magnitude: clamp(mag/float64(hits), 0, 1),
	}, nil
}

// ContextWindows returns up to max occurrence windows of the term inside the
// cleaned document text, each spanning the surrounding context the sentiment
// scorer judges. Matching is case-insensitive against the normalized term;
// window boundaries always land on rune starts of the original text.
func ContextWindows(text, term string, max int) []string {
	if term == "" || max <= 0 {
		return nil
	}
	term = strings.ToLower(term)
	folded, origin := foldOffsets(text)

	var windows []string
	start := 0
	for len(windows) < max {
		i := strings.Index(folded[start:], term)
		if i < 0 {
			break
		}
		i += start

		from := origin[i] - windowRadius
		if from < 0 {
			from = 0
		}
		for from > 0 && !utf8.RuneStart(text[from]) {
			from--
		}
		to := origin[i+len(term)] + windowRadius
		if to > len(text) {
			to = len(text)
		}
		for to < len(text) && !utf8.RuneStart(text[to]) {
			to++
		}
		if from > to {
			from = to
		}

		windows = append(windows, text[from:to])
		start = i + len(term)
	}
	return windows
}

// foldOffsets lowercases text for case-insensitive matching and maps every
// byte of the folded form (plus one past the end) back to the byte offset of
// the original rune that produced it. A case fold may change a rune's encoded
// length, so match positions in the folded form must not index the original
// text directly.
func foldOffsets(text string) (string, []int) {
	var folded strings.Builder
	folded.Grow(len(text))
	origin := make([]int, 0, len(text)+1)
	for i, r := range text {
		low := unicode.ToLower(r)
		for n := utf8.RuneLen(low); n > 0; n-- {
			origin = append(origin, i)
		}
		folded.WriteRune(low)
	}
	origin = append(origin, len(text))
	return folded.String(), origin
}

func sentimentWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

var negators = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "nothing": {}, "neither": {},
	"nor": {}, "cannot": {}, "can't": {}, "won't": {}, "don't": {},
	"doesn't": {}, "didn't": {}, "isn't": {}, "wasn't": {}, "aren't": {},
	"without": {}, "hardly": {}, "barely": {},
}

var intensifiers = map[string]float64{
	"very":       1.3,
	"extremely":  1.6,
	"incredibly": 1.6,
	"really":     1.2,
	"highly":     1.3,
	"deeply":     1.4,
	"totally":    1.3,
	"absolutely": 1.5,
	"somewhat":   0.7,
	"slightly":   0.6,
	"fairly":     0.8,
	"rather":     0.9,
}

// valenceLexicon maps sentiment-bearing words to a polarity in [-1,1]. The
// magnitude of an occurrence is the absolute weighted valence, so strong words
// score high-emotion regardless of direction.
var valenceLexicon = map[string]float64{
	// positive
	"good": 0.5, "great": 0.7, "excellent": 0.9, "outstanding": 0.9,
	"amazing": 0.8, "awesome": 0.8, "fantastic": 0.8, "wonderful": 0.8,
	"positive": 0.5, "strong": 0.4, "growth": 0.4, "gain": 0.4,
	"gains": 0.4, "improve": 0.5, "improved": 0.5, "improvement": 0.5,
	"success": 0.6, "successful": 0.6, "win": 0.6, "wins": 0.6,
	"winning": 0.6, "record": 0.3, "surge": 0.4, "soar": 0.5,
	"soars": 0.5, "rally": 0.4, "boom": 0.5, "profit": 0.4,
	"profitable": 0.5, "beat": 0.4, "beats": 0.4, "exceed": 0.5,
	"exceeds": 0.5, "optimistic": 0.6, "confidence": 0.4, "confident": 0.5,
	"breakthrough": 0.7, "innovative": 0.5, "progress": 0.4, "recovery": 0.4,
	"stable": 0.2, "safe": 0.3, "benefit": 0.4, "benefits": 0.4,
	"love": 0.7, "happy": 0.6, "hope": 0.4, "promising": 0.5,
	// negative
	"bad": -0.5, "poor": -0.5, "terrible": -0.9, "horrible": -0.9,
	"awful": -0.8, "disastrous": -0.9, "disaster": -0.8, "crisis": -0.7,
	"negative": -0.5, "weak": -0.4, "decline": -0.4, "declines": -0.4,
	"drop": -0.4, "drops": -0.4, "fall": -0.4, "falls": -0.4,
	"plunge": -0.6, "plunges": -0.6, "crash": -0.7, "collapse": -0.8,
	"loss": -0.5, "losses": -0.5, "lose": -0.5, "losing": -0.5,
	"fail": -0.6, "fails": -0.6, "failure": -0.7, "failed": -0.6,
	"risk": -0.3, "risks": -0.3, "threat": -0.5, "threats": -0.5,
	"fear": -0.5, "fears": -0.5, "concern": -0.3, "concerns": -0.3,
	"worried": -0.5, "worry": -0.4, "panic": -0.7, "recession": -0.6,
	"inflation": -0.3, "layoff": -0.6, "layoffs": -0.6, "cut": -0.3,
	"cuts": -0.3, "fraud": -0.8, "scandal": -0.7, "lawsuit": -0.4,
	"problem": -0.4, "problems": -0.4, "warning": -0.4, "warns": -0.4,
	"hate": -0.7, "angry": -0.6, "sad": -0.5, "uncertain": -0.3,
	"volatile": -0.3, "unstable": -0.4, "slump": -0.5, "downturn": -0.5,
}
