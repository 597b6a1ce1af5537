package domain

import (
	"sort"
	"time"
)

// Day is a calendar date in UTC, formatted as 2006-01-02. The string form
// sorts chronologically, which keeps map keys and SQL ordering aligned.
type Day string

// DayOf truncates a timestamp to its UTC calendar date.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format("2006-01-02"))
}

// Time returns the midnight UTC instant of the day.
func (d Day) Time() time.Time {
	t, _ := time.Parse("2006-01-02", string(d))
	return t
}

// AddDays returns the day shifted by n calendar days.
func (d Day) AddDays(n int) Day {
	return DayOf(d.Time().AddDate(0, 0, n))
}

// Document is the immutable unit of input text, owned by the content store.
// The pipeline reads it once and marks it processed.
type Document struct {
	ID          string
	TeamKey     string
	SourceName  string
	SourceType  string
	PublishedAt time.Time
	BodyText    string
}

// Candidate is a term or phrase proposed by one extraction method, before
// cross-method merging. Ephemeral; never persisted.
type Candidate struct {
	Text        string
	Method      string
	MethodScore float64
	SpanStart   int
	SpanEnd     int
	Occurrences int
	IsEntity    bool
}

// AggregateKey identifies one keyword on one day for one team.
type AggregateKey struct {
	TeamKey string
	Keyword string
	Day     Day
}

// KeywordDailyAggregate is the durable unit of the pipeline's output: the
// per-keyword-per-day counters every derived score is computed from. All
// fields are merged additively as documents arrive.
type KeywordDailyAggregate struct {
	TeamKey          string
	Keyword          string
	Day              Day
	Frequency        int
	DocumentCount    int
	Sources          []string
	EntityHits       int
	MethodScoreSum   float64
	MethodScoreCount int
	SentimentSum     float64
	SentimentCount   int
	MagnitudeSum     float64
	PositiveCount    int
	NegativeCount    int
	NeutralCount     int
}

// Key returns the identifying triple of the aggregate.
func (a KeywordDailyAggregate) Key() AggregateKey {
	return AggregateKey{TeamKey: a.TeamKey, Keyword: a.Keyword, Day: a.Day}
}

// SourceDiversity is the number of distinct sources mentioning the keyword.
func (a KeywordDailyAggregate) SourceDiversity() int {
	return len(a.Sources)
}

// MeanMethodScore is the running mean of normalized method scores.
func (a KeywordDailyAggregate) MeanMethodScore() float64 {
	if a.MethodScoreCount == 0 {
		return 0
	}
	return a.MethodScoreSum / float64(a.MethodScoreCount)
}

// Merge folds another aggregate (or delta) for the same key into the receiver.
// The operation is commutative and associative, so documents may be merged in
// any order.
func (a *KeywordDailyAggregate) Merge(other KeywordDailyAggregate) {
	a.Frequency += other.Frequency
	a.DocumentCount += other.DocumentCount
	a.EntityHits += other.EntityHits
	a.MethodScoreSum += other.MethodScoreSum
	a.MethodScoreCount += other.MethodScoreCount
	a.SentimentSum += other.SentimentSum
	a.SentimentCount += other.SentimentCount
	a.MagnitudeSum += other.MagnitudeSum
	a.PositiveCount += other.PositiveCount
	a.NegativeCount += other.NegativeCount
	a.NeutralCount += other.NeutralCount

	seen := make(map[string]struct{}, len(a.Sources)+len(other.Sources))
	merged := a.Sources[:0]
	for _, s := range append(a.Sources, other.Sources...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		merged = append(merged, s)
	}
	sort.Strings(merged)
	a.Sources = merged
}

// ImportanceSignals holds the six normalized [0,1] signal values feeding the
// composite.
type ImportanceSignals struct {
	FrequencyRank      float64
	Relevance          float64
	EntityBoost        float64
	Velocity           float64
	SourceDiversity    float64
	SentimentMagnitude float64
}

// ImportanceRecord is the derived importance view for one keyword/day. It is
// always a pure function of the backing aggregate plus trailing history.
type ImportanceRecord struct {
	TeamKey   string
	Keyword   string
	Day       Day
	Signals   ImportanceSignals
	Composite float64
	Frequency int
	Rank      int
}

// SentimentSample is the polarity result for one occurrence window.
type SentimentSample struct {
	Score     float64
	Magnitude float64
}

// Polarity buckets the occurrence: +1 when score > 0.2, -1 when score < -0.2,
// 0 otherwise.
func (s SentimentSample) Polarity() int {
	switch {
	case s.Score > 0.2:
		return 1
	case s.Score < -0.2:
		return -1
	default:
		return 0
	}
}

// SentimentRecord is the derived daily sentiment view for one keyword/day.
type SentimentRecord struct {
	TeamKey       string
	Keyword       string
	Day           Day
	Score         float64
	Magnitude     float64
	PositiveCount int
	NegativeCount int
	NeutralCount  int
}

// TimeSeriesPoint is one row per day per keyword; the date-ordered sequence
// per keyword is the time series.
type TimeSeriesPoint struct {
	Day            Day
	Importance     float64
	SentimentScore float64
	Frequency      int
}

// TrendLabel classifies the direction of a keyword's trailing window.
type TrendLabel string

const (
	TrendRising  TrendLabel = "rising"
	TrendFalling TrendLabel = "falling"
	TrendStable  TrendLabel = "stable"
)

// RankedSignal joins the derived views for one keyword on one day, as exposed
// by the query surface and published to the event bus.
type RankedSignal struct {
	Keyword            string
	Day                Day
	Composite          float64
	Signals            ImportanceSignals
	Frequency          int
	SentimentScore     float64
	SentimentMagnitude float64
	Trend              TrendLabel
}

// DaySummary is the finalized output for one team/day.
type DaySummary struct {
	TeamKey string
	Day     Day
	Signals []RankedSignal
}
