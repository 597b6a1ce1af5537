package aggregate

import (
	"math"
	"reflect"
	"testing"
	"time"

	"SignalPipeline/internal/domain"
)

func TestMergeCandidatesAcrossMethods(t *testing.T) {
	t.Parallel()

	candidates := []domain.Candidate{
		{Text: "federal reserve", Method: "phrase", MethodScore: 0.6, SpanStart: 40, SpanEnd: 55, Occurrences: 2},
		{Text: "federal reserve", Method: "entity", MethodScore: 0.9, SpanStart: 10, SpanEnd: 25, Occurrences: 3, IsEntity: true},
		{Text: "inflation", Method: "frequency", MethodScore: 1.0, SpanStart: 0, SpanEnd: 9, Occurrences: 5},
	}

	merged := MergeCandidates(candidates)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged candidates, got %d", len(merged))
	}

	// Sorted by text, so "federal reserve" comes first.
	fed := merged[0]
	if fed.Text != "federal reserve" {
		t.Fatalf("unexpected order: %v", merged)
	}
	if fed.MethodScore != 0.9 || fed.Method != "entity" {
		t.Fatalf("merge must keep the maximum method score, got %f from %s", fed.MethodScore, fed.Method)
	}
	if !fed.IsEntity {
		t.Fatalf("entity flag must survive merging")
	}
	if fed.Occurrences != 3 {
		t.Fatalf("merge must keep the highest occurrence count, got %d", fed.Occurrences)
	}
	if fed.SpanStart != 10 {
		t.Fatalf("merge must keep the earliest span, got %d", fed.SpanStart)
	}
}

func TestBuildDelta(t *testing.T) {
	t.Parallel()

	doc := domain.Document{
		ID:          "doc-1",
		TeamKey:     "team-a",
		SourceName:  "newswire",
		PublishedAt: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC),
	}
	day := domain.DayOf(doc.PublishedAt)
	cand := domain.Candidate{Text: "inflation", MethodScore: 0.8, Occurrences: 4, IsEntity: true}
	samples := []domain.SentimentSample{
		{Score: -0.5, Magnitude: 0.5},
		{Score: 0.1, Magnitude: 0.1},
		{Score: 0.4, Magnitude: 0.4},
	}

	delta := BuildDelta(doc, day, cand, samples)

	if delta.TeamKey != "team-a" || delta.Keyword != "inflation" || delta.Day != "2026-03-10" {
		t.Fatalf("unexpected delta key: %+v", delta.Key())
	}
	if delta.Frequency != 4 || delta.DocumentCount != 1 || delta.EntityHits != 4 {
		t.Fatalf("unexpected counters: %+v", delta)
	}
	if !reflect.DeepEqual(delta.Sources, []string{"newswire"}) {
		t.Fatalf("unexpected sources: %v", delta.Sources)
	}
	if delta.SentimentCount != 3 {
		t.Fatalf("expected 3 sentiment samples, got %d", delta.SentimentCount)
	}
	if delta.PositiveCount != 1 || delta.NegativeCount != 1 || delta.NeutralCount != 1 {
		t.Fatalf("unexpected polarity buckets: %+v", delta)
	}
	if math.Abs(delta.SentimentSum-0.0) > 1e-9 {
		t.Fatalf("unexpected sentiment sum: %f", delta.SentimentSum)
	}
}

func TestMergeIsOrderIndependent(t *testing.T) {
	t.Parallel()

	deltas := []domain.KeywordDailyAggregate{
		{TeamKey: "t", Keyword: "k", Day: "2026-03-10", Frequency: 2, DocumentCount: 1, Sources: []string{"a"}, MethodScoreSum: 0.5, MethodScoreCount: 1},
		{TeamKey: "t", Keyword: "k", Day: "2026-03-10", Frequency: 3, DocumentCount: 1, Sources: []string{"b"}, MethodScoreSum: 0.9, MethodScoreCount: 1, EntityHits: 3},
		{TeamKey: "t", Keyword: "k", Day: "2026-03-10", Frequency: 1, DocumentCount: 1, Sources: []string{"a"}, MethodScoreSum: 0.7, MethodScoreCount: 1},
	}

	forward := domain.KeywordDailyAggregate{TeamKey: "t", Keyword: "k", Day: "2026-03-10"}
	for _, d := range deltas {
		forward.Merge(d)
	}

	backward := domain.KeywordDailyAggregate{TeamKey: "t", Keyword: "k", Day: "2026-03-10"}
	for i := len(deltas) - 1; i >= 0; i-- {
		backward.Merge(deltas[i])
	}

	if !reflect.DeepEqual(forward, backward) {
		t.Fatalf("merge order changed the result:\n%+v\n%+v", forward, backward)
	}
	if forward.Frequency != 6 || forward.DocumentCount != 3 || forward.EntityHits != 3 {
		t.Fatalf("unexpected merged counters: %+v", forward)
	}
	if !reflect.DeepEqual(forward.Sources, []string{"a", "b"}) {
		t.Fatalf("sources must deduplicate and sort: %v", forward.Sources)
	}
}

func TestDeriveSentiment(t *testing.T) {
	t.Parallel()

	agg := domain.KeywordDailyAggregate{
		TeamKey: "t", Keyword: "inflation", Day: "2026-03-10",
		SentimentSum: -1.2, MagnitudeSum: 1.8, SentimentCount: 4,
		PositiveCount: 1, NegativeCount: 2, NeutralCount: 1,
	}

	rec := DeriveSentiment(agg)
	if math.Abs(rec.Score-(-0.3)) > 1e-9 {
		t.Fatalf("unexpected mean score: %f", rec.Score)
	}
	if math.Abs(rec.Magnitude-0.45) > 1e-9 {
		t.Fatalf("unexpected mean magnitude: %f", rec.Magnitude)
	}
	if rec.PositiveCount != 1 || rec.NegativeCount != 2 || rec.NeutralCount != 1 {
		t.Fatalf("buckets must copy through: %+v", rec)
	}
}

func TestDeriveSentimentWithoutSamples(t *testing.T) {
	t.Parallel()

	rec := DeriveSentiment(domain.KeywordDailyAggregate{TeamKey: "t", Keyword: "k", Day: "2026-03-10"})
	if rec.Score != 0 || rec.Magnitude != 0 {
		t.Fatalf("no samples must mean neutral zero-magnitude: %+v", rec)
	}
}
