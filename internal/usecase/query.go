package usecase

import (
	"context"
	"fmt"

	"SignalPipeline/internal/domain"
	"SignalPipeline/internal/ports"
	"SignalPipeline/internal/timeseries"
)

// Query is the read side of the pipeline: ranked day views and per-keyword
// history, assembled from the persisted derived records.
type Query struct {
	store  ports.SignalStore
	engine *timeseries.Engine
}

// NewQuery builds the query surface on top of a store. The engine supplies
// the trend window and slope threshold used for classification.
func NewQuery(store ports.SignalStore, engine *timeseries.Engine) *Query {
	if engine == nil {
		engine = timeseries.New(7, 1.5)
	}
	return &Query{store: store, engine: engine}
}

// TopSignals returns the day's keywords ordered by composite score, each
// joined with its sentiment record and trend label. A limit of zero returns
// every ranked keyword for the day.
func (q *Query) TopSignals(ctx context.Context, teamKey string, day domain.Day, limit int) ([]domain.RankedSignal, error) {
	records, err := q.store.ListImportance(ctx, teamKey, day)
	if err != nil {
		return nil, fmt.Errorf("list importance: %w", err)
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	signals := make([]domain.RankedSignal, 0, len(records))
	for _, rec := range records {
		sig := domain.RankedSignal{
			Keyword:   rec.Keyword,
			Day:       rec.Day,
			Composite: rec.Composite,
			Signals:   rec.Signals,
			Frequency: rec.Frequency,
			Trend:     domain.TrendStable,
		}

		sent, err := q.store.ReadSentiment(ctx, domain.AggregateKey{TeamKey: teamKey, Keyword: rec.Keyword, Day: day})
		if err != nil {
			return nil, fmt.Errorf("read sentiment %s: %w", rec.Keyword, err)
		}
		if sent != nil {
			sig.SentimentScore = sent.Score
			sig.SentimentMagnitude = sent.Magnitude
		}

		series, err := q.store.ReadTimeSeries(ctx, teamKey, rec.Keyword, q.engine.Window())
		if err != nil {
			return nil, fmt.Errorf("read series %s: %w", rec.Keyword, err)
		}
		sig.Trend = q.engine.Classify(series)

		signals = append(signals, sig)
	}
	return signals, nil
}

// KeywordSeries returns a keyword's trailing window of daily points in
// ascending day order, plus the trend label for that window.
func (q *Query) KeywordSeries(ctx context.Context, teamKey, keyword string, window int) ([]domain.TimeSeriesPoint, domain.TrendLabel, error) {
	if window <= 0 {
		window = q.engine.Window()
	}
	points, err := q.store.ReadTimeSeries(ctx, teamKey, keyword, window)
	if err != nil {
		return nil, domain.TrendStable, fmt.Errorf("read series %s: %w", keyword, err)
	}
	return points, q.engine.Classify(points), nil
}
