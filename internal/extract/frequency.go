package extract

import (
	"strings"

	"SignalPipeline/internal/domain"
)

const minTermLength = 3

// FrequencyMethod proposes single terms scored by their in-document frequency
// relative to the most frequent term.
type FrequencyMethod struct{}

func (FrequencyMethod) Name() string      { return "frequency" }
func (FrequencyMethod) EntityAware() bool { return false }

func (m FrequencyMethod) Extract(text string, cfg MethodConfig) ([]domain.Candidate, error) {
	type termStat struct {
		count int
		first Token
	}

	stats := make(map[string]*termStat)
	for _, tok := range Tokenize(text) {
		term := strings.ToLower(tok.Text)
		if len(term) < minTermLength {
			continue
		}
		if isStopword(cfg, term) {
			continue
		}
		stat, ok := stats[term]
		if !ok {
			stats[term] = &termStat{count: 1, first: tok}
			continue
		}
		stat.count++
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
	for term, stat := range stats {
		candidates = append(candidates, domain.Candidate{
			Text:        term,
			Method:      m.Name(),
			MethodScore: float64(stat.count) / float64(maxCount),
			SpanStart:   stat.first.Start,
			SpanEnd:     stat.first.End,
			Occurrences: stat.count,
		})
	}
	return candidates, nil
}
