package score

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"SignalPipeline/internal/domain"
)

// Weights holds the relative weight of each importance signal. They are
// re-normalized to sum to 1 before scoring, so override sets that do not sum
// to 1 still produce a composite inside [0,100].
type Weights struct {
	Frequency       float64
	Relevance       float64
	Entity          float64
	Velocity        float64
	SourceDiversity float64
	Magnitude       float64
}

// DefaultWeights is the canonical six-signal weight set.
func DefaultWeights() Weights {
	return Weights{
		Frequency:       0.25,
		Relevance:       0.20,
		Entity:          0.15,
		Velocity:        0.20,
		SourceDiversity: 0.10,
		Magnitude:       0.10,
	}
}

// ApplyOverrides replaces individual weights by name. Unknown names are
// ignored; validation happens at config load.
func (w Weights) ApplyOverrides(overrides map[string]float64) Weights {
	for name, v := range overrides {
		switch name {
		case "frequency":
			w.Frequency = v
		case "relevance":
			w.Relevance = v
		case "entity":
			w.Entity = v
		case "velocity":
			w.Velocity = v
		case "source_diversity":
			w.SourceDiversity = v
		case "sentiment_magnitude":
			w.Magnitude = v
		}
	}
	return w
}

func (w Weights) normalized() Weights {
	sum := w.Frequency + w.Relevance + w.Entity + w.Velocity + w.SourceDiversity + w.Magnitude
	if sum <= 0 {
		return DefaultWeights()
	}
	return Weights{
		Frequency:       w.Frequency / sum,
		Relevance:       w.Relevance / sum,
		Entity:          w.Entity / sum,
		Velocity:        w.Velocity / sum,
		SourceDiversity: w.SourceDiversity / sum,
		Magnitude:       w.Magnitude / sum,
	}
}

// DayInputs carries everything the scorer needs for one team/day. Prior
// frequencies hold, per keyword, the frequencies of the trailing days that had
// data; an absent or empty entry means the keyword is newly observed.
type DayInputs struct {
	Aggregates       []domain.KeywordDailyAggregate
	PriorFrequencies map[string][]int
	DaySources       int
	MaxKeywords      int
}

// ImportanceScorer combines the six normalized signals into the 0-100
// composite and produces the day's deterministic ranking.
type ImportanceScorer struct {
	weights Weights
}

// NewImportanceScorer normalizes the weight set once up front.
func NewImportanceScorer(w Weights) *ImportanceScorer {
	return &ImportanceScorer{weights: w.normalized()}
}

// ScoreDay computes one ImportanceRecord per aggregate, ranked by composite
// desc, then frequency desc, then keyword asc. When MaxKeywords > 0 the
// result is capped to the top entries.
func (s *ImportanceScorer) ScoreDay(in DayInputs) []domain.ImportanceRecord {
	if len(in.Aggregates) == 0 {
		return nil
	}

	logMin, logMax := frequencyLogRange(in.Aggregates)

	records := make([]domain.ImportanceRecord, 0, len(in.Aggregates))
	for _, agg := range in.Aggregates {
		signals := domain.ImportanceSignals{
			FrequencyRank:      frequencySignal(agg.Frequency, logMin, logMax),
			Relevance:          clamp01(agg.MeanMethodScore()),
			EntityBoost:        entitySignal(agg),
			Velocity:           velocitySignal(agg.Frequency, in.PriorFrequencies[agg.Keyword]),
			SourceDiversity:    diversitySignal(agg.SourceDiversity(), in.DaySources),
			SentimentMagnitude: magnitudeSignal(agg),
		}

		composite := 100 * (s.weights.Frequency*signals.FrequencyRank +
			s.weights.Relevance*signals.Relevance +
			s.weights.Entity*signals.EntityBoost +
			s.weights.Velocity*signals.Velocity +
			s.weights.SourceDiversity*signals.SourceDiversity +
			s.weights.Magnitude*signals.SentimentMagnitude)

		records = append(records, domain.ImportanceRecord{
			TeamKey:   agg.TeamKey,
			Keyword:   agg.Keyword,
			Day:       agg.Day,
			Signals:   signals,
			Composite: clamp(composite, 0, 100),
			Frequency: agg.Frequency,
		})
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Composite != records[j].Composite {
			return records[i].Composite > records[j].Composite
		}
		if records[i].Frequency != records[j].Frequency {
			return records[i].Frequency > records[j].Frequency
		}
		return records[i].Keyword < records[j].Keyword
	})
	for i := range records {
		records[i].Rank = i + 1
	}

	if in.MaxKeywords > 0 && len(records) > in.MaxKeywords {
		records = records[:in.MaxKeywords]
	}
	return records
}

// frequencyLogRange computes the log-scaled bounds of the day's frequency
// distribution across all keywords.
func frequencyLogRange(aggs []domain.KeywordDailyAggregate) (float64, float64) {
	logs := make(stats.Float64Data, 0, len(aggs))
	for _, agg := range aggs {
		logs = append(logs, math.Log1p(float64(agg.Frequency)))
	}
	logMin, err := stats.Min(logs)
	if err != nil {
		return 0, 0
	}
	logMax, err := stats.Max(logs)
	if err != nil {
		return 0, 0
	}
	return logMin, logMax
}

// frequencySignal places the keyword inside the day's log-scaled frequency
// distribution. A degenerate distribution (every keyword equal) is neutral.
func frequencySignal(frequency int, logMin, logMax float64) float64 {
	if logMax <= logMin {
		return 0.5
	}
	return clamp01((math.Log1p(float64(frequency)) - logMin) / (logMax - logMin))
}

func entitySignal(agg domain.KeywordDailyAggregate) float64 {
	if agg.Frequency == 0 {
		return 0
	}
	return clamp01(float64(agg.EntityHits) / float64(agg.Frequency))
}

// velocitySignal maps the relative day-over-day frequency change into (0,1)
// around the 0.5 midpoint. A keyword with no prior history gets exactly 0.5:
// new signals are neutral, never penalized, and nothing divides by zero.
func velocitySignal(frequency int, prior []int) float64 {
	if len(prior) == 0 {
		return 0.5
	}
	var sum float64
	for _, f := range prior {
		sum += float64(f)
	}
	prev := sum / float64(len(prior))
	if prev <= 0 {
		return 0.5
	}
	r := (float64(frequency) - prev) / prev
	return clamp01(0.5 + 0.5*(r/(math.Abs(r)+1)))
}

func diversitySignal(diversity, daySources int) float64 {
	if daySources < 1 {
		daySources = 1
	}
	return clamp01(float64(diversity) / float64(daySources))
}

func magnitudeSignal(agg domain.KeywordDailyAggregate) float64 {
	if agg.SentimentCount == 0 {
		return 0
	}
	return clamp01(agg.MagnitudeSum / float64(agg.SentimentCount))
}

func clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
