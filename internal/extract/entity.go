package extract

import (
	"strings"
	"unicode"

	"SignalPipeline/internal/domain"
)

// EntityMethod proposes named-entity candidates with a capitalization
// heuristic: runs of capitalized tokens, and acronyms, that do not merely open
// a sentence. Candidates carry IsEntity so the aggregator can count entity
// hits.
type EntityMethod struct{}

func (EntityMethod) Name() string      { return "entity" }
func (EntityMethod) EntityAware() bool { return true }

func (m EntityMethod) Extract(text string, cfg MethodConfig) ([]domain.Candidate, error) {
	maxLen := cfg.MaxPhraseLength
	if maxLen < 1 {
		maxLen = 1
	}

	type entityStat struct {
		count int
		first []Token
	}
	stats := make(map[string]*entityStat)

	tokens := Tokenize(text)
	for i := 0; i < len(tokens); {
		if !capitalized(tokens[i].Text) {
			i++
			continue
		}

		// Extend across adjacent capitalized tokens with no punctuation gap.
		j := i + 1
		for j < len(tokens) && capitalized(tokens[j].Text) && !breaksRun(text[tokens[j-1].End:tokens[j].Start]) {
			j++
		}
		group := trimStopwords(tokens[i:j], cfg)
		i = j

		if len(group) == 0 || len(group) > maxLen {
			continue
		}
		// A lone capitalized word that just opens a sentence is not evidence
		// of an entity unless it is an acronym.
		if len(group) == 1 && sentenceInitial(text, group[0]) && !acronym(group[0].Text) {
			continue
		}
		if len(group) == 1 && len(group[0].Text) < minTermLength {
			continue
		}

		words := make([]string, len(group))
		for k, tok := range group {
			words[k] = strings.ToLower(tok.Text)
		}
		key := strings.Join(words, " ")
		if stat, ok := stats[key]; ok {
			stat.count++
			continue
		}
		stats[key] = &entityStat{count: 1, first: group}
	}

	maxCount := 0
	for _, stat := range stats {
		if stat.count > maxCount {
			maxCount = stat.count
		}
	}
	if maxCount == 0 {
		return nil, nil
	}

	candidates := make([]domain.Candidate, 0, len(stats))
	for key, stat := range stats {
		candidates = append(candidates, domain.Candidate{
			Text:        key,
			Method:      m.Name(),
			MethodScore: float64(stat.count) / float64(maxCount),
			SpanStart:   stat.first[0].Start,
			SpanEnd:     stat.first[len(stat.first)-1].End,
			Occurrences: stat.count,
			IsEntity:    true,
		})
	}
	return candidates, nil
}

func capitalized(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

func acronym(word string) bool {
	if len(word) < 2 {
		return false
	}
	for _, r := range word {
		if !unicode.IsUpper(r) && !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

// sentenceInitial reports whether the token opens the text or follows
// sentence-ending punctuation.
func sentenceInitial(text string, tok Token) bool {
	for i := tok.Start - 1; i >= 0; i-- {
		r := rune(text[i])
		switch {
		case r == ' ' || r == '\t' || r == '"' || r == '\'' || r == '(':
			continue
		case r == '.' || r == '!' || r == '?' || r == '\n':
			return true
		default:
			return false
		}
	}
	return true
}

func trimStopwords(group []Token, cfg MethodConfig) []Token {
	for len(group) > 0 && isStopword(cfg, group[0].Text) {
		group = group[1:]
	}
	for len(group) > 0 && isStopword(cfg, group[len(group)-1].Text) {
		group = group[:len(group)-1]
	}
	return group
}
