package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"SignalPipeline/internal/domain"
	"SignalPipeline/internal/ports"
)

type dayKey struct {
	team string
	day  domain.Day
}

type seriesKey struct {
	team    string
	keyword string
}

// MemoryStore is an in-process SignalStore used for local runs and tests. A
// single mutex serializes aggregate updates, which satisfies the per-key
// write-serialization requirement trivially.
type MemoryStore struct {
	mu         sync.Mutex
	documents  map[string]domain.Document
	docOrder   []string
	processed  map[string]bool
	dayDocs    map[dayKey]map[string]string
	aggregates map[domain.AggregateKey]domain.KeywordDailyAggregate
	importance map[domain.AggregateKey]domain.ImportanceRecord
	sentiments map[domain.AggregateKey]domain.SentimentRecord
	series     map[seriesKey]map[domain.Day]domain.TimeSeriesPoint

	// failUpserts injects this many write conflicts before upserts succeed.
	// Test hook for the pipeline's retry path.
	failUpserts int
}

var _ ports.SignalStore = (*MemoryStore)(nil)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:  map[string]domain.Document{},
		processed:  map[string]bool{},
		dayDocs:    map[dayKey]map[string]string{},
		aggregates: map[domain.AggregateKey]domain.KeywordDailyAggregate{},
		importance: map[domain.AggregateKey]domain.ImportanceRecord{},
		sentiments: map[domain.AggregateKey]domain.SentimentRecord{},
		series:     map[seriesKey]map[domain.Day]domain.TimeSeriesPoint{},
	}
}

// AddDocument seeds an unprocessed document.
func (m *MemoryStore) AddDocument(doc domain.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[doc.ID]; !ok {
		m.docOrder = append(m.docOrder, doc.ID)
	}
	m.documents[doc.ID] = doc
}

// FailNextUpserts arms the conflict injector.
func (m *MemoryStore) FailNextUpserts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpserts = n
}

func (m *MemoryStore) GetUnprocessedDocuments(_ context.Context, teamKey string, limit int) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Document
	for _, id := range m.docOrder {
		doc := m.documents[id]
		if doc.TeamKey != teamKey || m.processed[id] {
			continue
		}
		out = append(out, doc)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkProcessed(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[documentID] = true
	return nil
}

// ApplyDocument registers the document in the day log and merges its deltas
// under one mutex hold. Injected conflicts fire before anything is written,
// matching the all-or-nothing contract of the Postgres transaction.
func (m *MemoryStore) ApplyDocument(_ context.Context, teamKey string, day domain.Day, documentID, sourceName string, deltas []domain.KeywordDailyAggregate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := dayKey{team: teamKey, day: day}
	if _, ok := m.dayDocs[key][documentID]; ok {
		return false, nil
	}
	if m.failUpserts > 0 {
		m.failUpserts--
		return false, fmt.Errorf("%w: injected conflict", domain.ErrWriteConflict)
	}

	if m.dayDocs[key] == nil {
		m.dayDocs[key] = map[string]string{}
	}
	m.dayDocs[key][documentID] = sourceName
	for _, delta := range deltas {
		m.mergeLocked(delta)
	}
	return true, nil
}

func (m *MemoryStore) CountDaySources(_ context.Context, teamKey string, day domain.Day) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sources := map[string]struct{}{}
	for _, src := range m.dayDocs[dayKey{team: teamKey, day: day}] {
		sources[src] = struct{}{}
	}
	return len(sources), nil
}

func (m *MemoryStore) UpsertAggregate(_ context.Context, delta domain.KeywordDailyAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpserts > 0 {
		m.failUpserts--
		return fmt.Errorf("%w: injected conflict", domain.ErrWriteConflict)
	}

	m.mergeLocked(delta)
	return nil
}

func (m *MemoryStore) mergeLocked(delta domain.KeywordDailyAggregate) {
	key := delta.Key()
	current, ok := m.aggregates[key]
	if !ok {
		current = domain.KeywordDailyAggregate{TeamKey: key.TeamKey, Keyword: key.Keyword, Day: key.Day}
	}
	current.Merge(delta)
	m.aggregates[key] = current
}

func (m *MemoryStore) ReadAggregate(_ context.Context, key domain.AggregateKey) (*domain.KeywordDailyAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.aggregates[key]
	if !ok {
		return nil, nil
	}
	return &agg, nil
}

func (m *MemoryStore) ListAggregates(_ context.Context, teamKey string, day domain.Day) ([]domain.KeywordDailyAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.KeywordDailyAggregate
	for key, agg := range m.aggregates {
		if key.TeamKey == teamKey && key.Day == day {
			out = append(out, agg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Keyword < out[j].Keyword })
	return out, nil
}

func (m *MemoryStore) PruneAggregates(_ context.Context, teamKey string, day domain.Day, minFrequency int, relevanceThreshold float64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for key, agg := range m.aggregates {
		if key.TeamKey != teamKey || key.Day != day {
			continue
		}
		// The relevance gate only judges keywords that carry method scores,
		// same as the Postgres delete predicate.
		if agg.Frequency < minFrequency || (agg.MethodScoreCount > 0 && agg.MeanMethodScore() < relevanceThreshold) {
			delete(m.aggregates, key)
			delete(m.importance, key)
			delete(m.sentiments, key)
			dropped++
		}
	}
	return dropped, nil
}

func (m *MemoryStore) WriteImportance(_ context.Context, rec domain.ImportanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.importance[domain.AggregateKey{TeamKey: rec.TeamKey, Keyword: rec.Keyword, Day: rec.Day}] = rec
	return nil
}

func (m *MemoryStore) WriteSentiment(_ context.Context, rec domain.SentimentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentiments[domain.AggregateKey{TeamKey: rec.TeamKey, Keyword: rec.Keyword, Day: rec.Day}] = rec
	return nil
}

func (m *MemoryStore) ListImportance(_ context.Context, teamKey string, day domain.Day) ([]domain.ImportanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ImportanceRecord
	for key, rec := range m.importance {
		if key.TeamKey == teamKey && key.Day == day {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (m *MemoryStore) ReadSentiment(_ context.Context, key domain.AggregateKey) (*domain.SentimentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.sentiments[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) AppendTimeSeriesPoint(_ context.Context, teamKey, keyword string, pt domain.TimeSeriesPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := seriesKey{team: teamKey, keyword: keyword}
	if m.series[key] == nil {
		m.series[key] = map[domain.Day]domain.TimeSeriesPoint{}
	}
	// Backfilled dates replace the whole point; the day's records were
	// re-derived by the caller.
	m.series[key][pt.Day] = pt
	return nil
}

func (m *MemoryStore) ReadTimeSeries(_ context.Context, teamKey, keyword string, window int) ([]domain.TimeSeriesPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.TimeSeriesPoint
	for _, pt := range m.series[seriesKey{team: teamKey, keyword: keyword}] {
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	if window > 0 && len(out) > window {
		out = out[len(out)-window:]
	}
	return out, nil
}

func (m *MemoryStore) PruneBefore(_ context.Context, teamKey string, cutoff domain.Day) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.aggregates {
		if key.TeamKey == teamKey && key.Day < cutoff {
			delete(m.aggregates, key)
		}
	}
	for key := range m.importance {
		if key.TeamKey == teamKey && key.Day < cutoff {
			delete(m.importance, key)
		}
	}
	for key := range m.sentiments {
		if key.TeamKey == teamKey && key.Day < cutoff {
			delete(m.sentiments, key)
		}
	}
	for sk, points := range m.series {
		if sk.team != teamKey {
			continue
		}
		for day := range points {
			if day < cutoff {
				delete(points, day)
			}
		}
	}
	for dk := range m.dayDocs {
		if dk.team == teamKey && dk.day < cutoff {
			delete(m.dayDocs, dk)
		}
	}
	return nil
}
