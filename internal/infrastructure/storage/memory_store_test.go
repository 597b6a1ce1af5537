package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"SignalPipeline/internal/domain"
)

func TestUpsertAggregateIsAdditive(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	deltas := []domain.KeywordDailyAggregate{
		{TeamKey: "t", Keyword: "inflation", Day: "2026-03-10", Frequency: 2, DocumentCount: 1, Sources: []string{"wire"}, MethodScoreSum: 0.8, MethodScoreCount: 1},
		{TeamKey: "t", Keyword: "inflation", Day: "2026-03-10", Frequency: 3, DocumentCount: 1, Sources: []string{"blog"}, MethodScoreSum: 0.6, MethodScoreCount: 1},
	}
	for _, d := range deltas {
		if err := store.UpsertAggregate(ctx, d); err != nil {
			t.Fatalf("UpsertAggregate error: %v", err)
		}
	}

	agg, err := store.ReadAggregate(ctx, domain.AggregateKey{TeamKey: "t", Keyword: "inflation", Day: "2026-03-10"})
	if err != nil {
		t.Fatalf("ReadAggregate error: %v", err)
	}
	if agg == nil {
		t.Fatalf("aggregate missing after upserts")
	}
	if agg.Frequency != 5 || agg.DocumentCount != 2 {
		t.Fatalf("counters must add up: %+v", agg)
	}
	if !reflect.DeepEqual(agg.Sources, []string{"blog", "wire"}) {
		t.Fatalf("sources must merge distinct and sorted: %v", agg.Sources)
	}
}

func TestFailNextUpsertsInjectsWriteConflict(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	store.FailNextUpserts(1)
	ctx := context.Background()

	delta := domain.KeywordDailyAggregate{TeamKey: "t", Keyword: "k", Day: "2026-03-10", Frequency: 1}
	if err := store.UpsertAggregate(ctx, delta); !errors.Is(err, domain.ErrWriteConflict) {
		t.Fatalf("expected injected write conflict, got %v", err)
	}
	if err := store.UpsertAggregate(ctx, delta); err != nil {
		t.Fatalf("second attempt must succeed: %v", err)
	}
}

func TestApplyDocumentIsIdempotent(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	delta := domain.KeywordDailyAggregate{TeamKey: "t", Keyword: "inflation", Day: "2026-03-10", Frequency: 2, DocumentCount: 1, Sources: []string{"wire"}}
	fresh, err := store.ApplyDocument(ctx, "t", "2026-03-10", "doc-1", "wire", []domain.KeywordDailyAggregate{delta})
	if err != nil || !fresh {
		t.Fatalf("first apply must be fresh: %v %v", fresh, err)
	}
	fresh, err = store.ApplyDocument(ctx, "t", "2026-03-10", "doc-1", "wire", []domain.KeywordDailyAggregate{delta})
	if err != nil {
		t.Fatalf("ApplyDocument error: %v", err)
	}
	if fresh {
		t.Fatalf("repeat apply must not be fresh")
	}

	agg, _ := store.ReadAggregate(ctx, delta.Key())
	if agg == nil || agg.Frequency != 2 {
		t.Fatalf("repeat apply must not touch the aggregate: %+v", agg)
	}
}

func TestApplyDocumentIsAtomicUnderConflict(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	store.FailNextUpserts(1)
	ctx := context.Background()

	deltas := []domain.KeywordDailyAggregate{
		{TeamKey: "t", Keyword: "inflation", Day: "2026-03-10", Frequency: 2, DocumentCount: 1, Sources: []string{"wire"}},
	}
	fresh, err := store.ApplyDocument(ctx, "t", "2026-03-10", "doc-1", "wire", deltas)
	if !errors.Is(err, domain.ErrWriteConflict) {
		t.Fatalf("expected injected write conflict, got %v", err)
	}
	if fresh {
		t.Fatalf("failed apply must not report fresh")
	}

	// A failed apply leaves no trace: neither the day log nor the aggregate.
	if n, _ := store.CountDaySources(ctx, "t", "2026-03-10"); n != 0 {
		t.Fatalf("failed apply must not register the document, got %d sources", n)
	}
	if agg, _ := store.ReadAggregate(ctx, deltas[0].Key()); agg != nil {
		t.Fatalf("failed apply must not write aggregates: %+v", agg)
	}

	// The retry lands everything together.
	fresh, err = store.ApplyDocument(ctx, "t", "2026-03-10", "doc-1", "wire", deltas)
	if err != nil || !fresh {
		t.Fatalf("retried apply must succeed fresh: %v %v", fresh, err)
	}
	agg, _ := store.ReadAggregate(ctx, deltas[0].Key())
	if agg == nil || agg.Frequency != 2 || agg.DocumentCount != 1 {
		t.Fatalf("retried apply must land the full contribution: %+v", agg)
	}
}

func TestCountDaySources(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	_, _ = store.ApplyDocument(ctx, "t", "2026-03-10", "doc-1", "wire", nil)
	_, _ = store.ApplyDocument(ctx, "t", "2026-03-10", "doc-2", "wire", nil)
	_, _ = store.ApplyDocument(ctx, "t", "2026-03-10", "doc-3", "blog", nil)
	_, _ = store.ApplyDocument(ctx, "t", "2026-03-11", "doc-4", "radio", nil)

	n, err := store.CountDaySources(ctx, "t", "2026-03-10")
	if err != nil {
		t.Fatalf("CountDaySources error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 distinct sources, got %d", n)
	}
}

func TestGetUnprocessedDocuments(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		store.AddDocument(domain.Document{ID: id, TeamKey: "t", PublishedAt: time.Now()})
	}
	if err := store.MarkProcessed(ctx, "b"); err != nil {
		t.Fatalf("MarkProcessed error: %v", err)
	}

	docs, err := store.GetUnprocessedDocuments(ctx, "t", 10)
	if err != nil {
		t.Fatalf("GetUnprocessedDocuments error: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "a" || docs[1].ID != "c" {
		t.Fatalf("unexpected unprocessed set: %v", docs)
	}

	docs, _ = store.GetUnprocessedDocuments(ctx, "t", 1)
	if len(docs) != 1 {
		t.Fatalf("limit must cap the batch, got %d", len(docs))
	}
}

func TestPruneAggregatesGatesThresholds(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	keep := domain.KeywordDailyAggregate{TeamKey: "t", Keyword: "keep", Day: "2026-03-10", Frequency: 5, MethodScoreSum: 0.9, MethodScoreCount: 1}
	rare := domain.KeywordDailyAggregate{TeamKey: "t", Keyword: "rare", Day: "2026-03-10", Frequency: 1, MethodScoreSum: 0.9, MethodScoreCount: 1}
	weak := domain.KeywordDailyAggregate{TeamKey: "t", Keyword: "weak", Day: "2026-03-10", Frequency: 5, MethodScoreSum: 0.1, MethodScoreCount: 1}
	for _, agg := range []domain.KeywordDailyAggregate{keep, rare, weak} {
		if err := store.UpsertAggregate(ctx, agg); err != nil {
			t.Fatalf("UpsertAggregate error: %v", err)
		}
	}

	dropped, err := store.PruneAggregates(ctx, "t", "2026-03-10", 2, 0.5)
	if err != nil {
		t.Fatalf("PruneAggregates error: %v", err)
	}
	if dropped != 2 {
		t.Fatalf("expected 2 dropped, got %d", dropped)
	}

	aggs, _ := store.ListAggregates(ctx, "t", "2026-03-10")
	if len(aggs) != 1 || aggs[0].Keyword != "keep" {
		t.Fatalf("unexpected survivors: %v", aggs)
	}
}

func TestPruneAggregatesKeepsUnscoredKeywords(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	// No method scores recorded: the relevance gate must not judge the
	// keyword, matching the Postgres delete predicate.
	unscored := domain.KeywordDailyAggregate{TeamKey: "t", Keyword: "unscored", Day: "2026-03-10", Frequency: 5}
	if err := store.UpsertAggregate(ctx, unscored); err != nil {
		t.Fatalf("UpsertAggregate error: %v", err)
	}

	dropped, err := store.PruneAggregates(ctx, "t", "2026-03-10", 2, 0.5)
	if err != nil {
		t.Fatalf("PruneAggregates error: %v", err)
	}
	if dropped != 0 {
		t.Fatalf("keyword without method scores must survive the relevance gate, dropped %d", dropped)
	}

	aggs, _ := store.ListAggregates(ctx, "t", "2026-03-10")
	if len(aggs) != 1 || aggs[0].Keyword != "unscored" {
		t.Fatalf("unexpected survivors: %v", aggs)
	}
}

func TestTimeSeriesWindowAndBackfill(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	days := []domain.Day{"2026-03-07", "2026-03-08", "2026-03-09", "2026-03-10"}
	for i, day := range days {
		err := store.AppendTimeSeriesPoint(ctx, "t", "inflation", domain.TimeSeriesPoint{Day: day, Importance: float64(i)})
		if err != nil {
			t.Fatalf("AppendTimeSeriesPoint error: %v", err)
		}
	}

	points, err := store.ReadTimeSeries(ctx, "t", "inflation", 2)
	if err != nil {
		t.Fatalf("ReadTimeSeries error: %v", err)
	}
	if len(points) != 2 || points[0].Day != "2026-03-09" || points[1].Day != "2026-03-10" {
		t.Fatalf("window must keep the latest points ascending: %v", points)
	}

	// A backfilled day replaces its point instead of duplicating it.
	err = store.AppendTimeSeriesPoint(ctx, "t", "inflation", domain.TimeSeriesPoint{Day: "2026-03-08", Importance: 42})
	if err != nil {
		t.Fatalf("AppendTimeSeriesPoint error: %v", err)
	}
	points, _ = store.ReadTimeSeries(ctx, "t", "inflation", 10)
	if len(points) != 4 {
		t.Fatalf("backfill must not duplicate days, got %d points", len(points))
	}
	if points[1].Importance != 42 {
		t.Fatalf("backfill must replace the day's point: %+v", points[1])
	}
}

func TestPruneBefore(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	old := domain.KeywordDailyAggregate{TeamKey: "t", Keyword: "k", Day: "2026-01-01", Frequency: 3}
	recent := domain.KeywordDailyAggregate{TeamKey: "t", Keyword: "k", Day: "2026-03-10", Frequency: 3}
	_ = store.UpsertAggregate(ctx, old)
	_ = store.UpsertAggregate(ctx, recent)
	_ = store.AppendTimeSeriesPoint(ctx, "t", "k", domain.TimeSeriesPoint{Day: "2026-01-01"})
	_ = store.AppendTimeSeriesPoint(ctx, "t", "k", domain.TimeSeriesPoint{Day: "2026-03-10"})

	if err := store.PruneBefore(ctx, "t", "2026-03-01"); err != nil {
		t.Fatalf("PruneBefore error: %v", err)
	}

	agg, _ := store.ReadAggregate(ctx, old.Key())
	if agg != nil {
		t.Fatalf("aggregate before the cutoff must be gone")
	}
	agg, _ = store.ReadAggregate(ctx, recent.Key())
	if agg == nil {
		t.Fatalf("aggregate after the cutoff must survive")
	}
	points, _ := store.ReadTimeSeries(ctx, "t", "k", 10)
	if len(points) != 1 || points[0].Day != "2026-03-10" {
		t.Fatalf("series must drop pruned days: %v", points)
	}
}
