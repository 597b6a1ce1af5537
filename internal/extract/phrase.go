package extract

import (
	"strings"

	"SignalPipeline/internal/domain"
)

// PhraseMethod proposes multi-word phrases using co-occurrence runs between
// stopwords and punctuation, scored degree-over-frequency (RAKE style) and
// normalized against the best phrase in the document.
type PhraseMethod struct{}

func (PhraseMethod) Name() string      { return "phrase" }
func (PhraseMethod) EntityAware() bool { return false }

func (m PhraseMethod) Extract(text string, cfg MethodConfig) ([]domain.Candidate, error) {
	maxLen := cfg.MaxPhraseLength
	if maxLen < 2 {
		return nil, nil
	}

	runs := phraseRuns(text, cfg)

	// Word degree and frequency over all runs, then phrase score as the sum
	// of member word scores.
	degree := make(map[string]int)
	freq := make(map[string]int)
	for _, run := range runs {
		for _, tok := range run {
			word := strings.ToLower(tok.Text)
			degree[word] += len(run)
			freq[word]++
		}
	}

	type phraseStat struct {
		count int
		score float64
		first []Token
	}
	stats := make(map[string]*phraseStat)
	for _, run := range runs {
		if len(run) < 2 || len(run) > maxLen {
			continue
		}
		words := make([]string, len(run))
		var score float64
		for i, tok := range run {
			words[i] = strings.ToLower(tok.Text)
			score += float64(degree[words[i]]) / float64(freq[words[i]])
		}
		key := strings.Join(words, " ")
		if stat, ok := stats[key]; ok {
			stat.count++
			continue
		}
		stats[key] = &phraseStat{count: 1, score: score, first: run}
	}

	var maxScore float64
	for _, stat := range stats {
		if stat.score > maxScore {
			maxScore = stat.score
		}
	}
	if maxScore == 0 {
		return nil, nil
	}

	candidates := make([]domain.Candidate, 0, len(stats))
	for key, stat := range stats {
		candidates = append(candidates, domain.Candidate{
			Text:        key,
			Method:      m.Name(),
			MethodScore: stat.score / maxScore,
			SpanStart:   stat.first[0].Start,
			SpanEnd:     stat.first[len(stat.first)-1].End,
			Occurrences: stat.count,
		})
	}
	return candidates, nil
}

// phraseRuns splits the token stream into maximal runs of content words. A run
// breaks at stopwords, short tokens, and punctuation between tokens, so every
// emitted run has no purely-stopword constituents by construction.
func phraseRuns(text string, cfg MethodConfig) [][]Token {
	var runs [][]Token
	var current []Token

	flush := func() {
		if len(current) > 0 {
			runs = append(runs, current)
			current = nil
		}
	}

	prevEnd := -1
	for _, tok := range Tokenize(text) {
		if prevEnd >= 0 && breaksRun(text[prevEnd:tok.Start]) {
			flush()
		}
		prevEnd = tok.End

		word := strings.ToLower(tok.Text)
		if len(word) < minTermLength || isStopword(cfg, word) {
			flush()
			continue
		}
		current = append(current, tok)
	}
	flush()
	return runs
}

func breaksRun(gap string) bool {
	return strings.ContainsAny(gap, ".,;:!?()[]{}\"“”—|/")
}
