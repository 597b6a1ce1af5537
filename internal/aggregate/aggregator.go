package aggregate

import (
	"sort"

	"SignalPipeline/internal/domain"
)

// MergeCandidates merges a document's candidates across methods: candidates
// with the same normalized text collapse into one, taking the maximum method
// score, OR-ing the entity flag, and keeping the highest occurrence count any
// method observed. The result is sorted by text for deterministic processing.
func MergeCandidates(candidates []domain.Candidate) []domain.Candidate {
	merged := make(map[string]domain.Candidate, len(candidates))
	for _, cand := range candidates {
		existing, ok := merged[cand.Text]
		if !ok {
			merged[cand.Text] = cand
			continue
		}
		if cand.MethodScore > existing.MethodScore {
			existing.MethodScore = cand.MethodScore
			existing.Method = cand.Method
		}
		if cand.Occurrences > existing.Occurrences {
			existing.Occurrences = cand.Occurrences
		}
		if cand.IsEntity {
			existing.IsEntity = true
		}
		if cand.SpanStart < existing.SpanStart {
			existing.SpanStart = cand.SpanStart
			existing.SpanEnd = cand.SpanEnd
		}
		merged[cand.Text] = existing
	}

	out := make([]domain.Candidate, 0, len(merged))
	for _, cand := range merged {
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

// BuildDelta turns one merged candidate of one document into the additive
// aggregate contribution for its (team, keyword, day) key. Sentiment samples,
// when present, are folded into the sums and polarity buckets.
func BuildDelta(doc domain.Document, day domain.Day, cand domain.Candidate, samples []domain.SentimentSample) domain.KeywordDailyAggregate {
	delta := domain.KeywordDailyAggregate{
		TeamKey:          doc.TeamKey,
		Keyword:          cand.Text,
		Day:              day,
		Frequency:        cand.Occurrences,
		DocumentCount:    1,
		Sources:          []string{doc.SourceName},
		MethodScoreSum:   cand.MethodScore,
		MethodScoreCount: 1,
	}
	if cand.IsEntity {
		delta.EntityHits = cand.Occurrences
	}

	for _, sample := range samples {
		delta.SentimentSum += sample.Score
		delta.MagnitudeSum += sample.Magnitude
		delta.SentimentCount++
		switch sample.Polarity() {
		case 1:
			delta.PositiveCount++
		case -1:
			delta.NegativeCount++
		default:
			delta.NeutralCount++
		}
	}

	return delta
}

// DeriveSentiment computes the daily sentiment view from an aggregate. It is
// a pure function of the aggregate, so re-running it is always safe.
func DeriveSentiment(agg domain.KeywordDailyAggregate) domain.SentimentRecord {
	rec := domain.SentimentRecord{
		TeamKey:       agg.TeamKey,
		Keyword:       agg.Keyword,
		Day:           agg.Day,
		PositiveCount: agg.PositiveCount,
		NegativeCount: agg.NegativeCount,
		NeutralCount:  agg.NeutralCount,
	}
	if agg.SentimentCount > 0 {
		rec.Score = clamp(agg.SentimentSum/float64(agg.SentimentCount), -1, 1)
		rec.Magnitude = clamp(agg.MagnitudeSum/float64(agg.SentimentCount), 0, 1)
	}
	return rec
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
