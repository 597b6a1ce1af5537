package ports

import (
	"context"
	"time"

	"SignalPipeline/internal/domain"
)

// SignalStore is the durable read/write contract the pipeline depends on.
// Aggregate mutation goes only through ApplyDocument and UpsertAggregate,
// which gives the store a single seam for locking or transactional updates.
type SignalStore interface {
	// GetUnprocessedDocuments returns up to limit documents that have not yet
	// contributed to any aggregate.
	GetUnprocessedDocuments(ctx context.Context, teamKey string, limit int) ([]domain.Document, error)

	// MarkProcessed is called only after the document's contribution has been
	// durably applied.
	MarkProcessed(ctx context.Context, documentID string) error

	// ApplyDocument atomically registers a document in the per-day document
	// log and merges its per-keyword deltas into the day's aggregates. Either
	// the log entry and every delta land together or none does, so a failed
	// or cancelled apply leaves the document eligible for a clean retry. A
	// false result means the same (day, document) pair already contributed in
	// full and nothing was written.
	ApplyDocument(ctx context.Context, teamKey string, day domain.Day, documentID, sourceName string, deltas []domain.KeywordDailyAggregate) (bool, error)

	// CountDaySources returns the number of distinct sources that produced
	// documents for the team on the given day.
	CountDaySources(ctx context.Context, teamKey string, day domain.Day) (int, error)

	// UpsertAggregate merges an additive delta into the aggregate for the
	// delta's key, creating it if absent. Returns domain.ErrWriteConflict
	// (wrapped) when a concurrent-update race is detected.
	UpsertAggregate(ctx context.Context, delta domain.KeywordDailyAggregate) error

	// ReadAggregate returns the aggregate for a key, or nil if absent.
	ReadAggregate(ctx context.Context, key domain.AggregateKey) (*domain.KeywordDailyAggregate, error)

	// ListAggregates returns all aggregates for a team/day.
	ListAggregates(ctx context.Context, teamKey string, day domain.Day) ([]domain.KeywordDailyAggregate, error)

	// PruneAggregates removes aggregates for the team/day that fall below the
	// frequency or relevance gates, returning how many were dropped.
	PruneAggregates(ctx context.Context, teamKey string, day domain.Day, minFrequency int, relevanceThreshold float64) (int, error)

	WriteImportance(ctx context.Context, rec domain.ImportanceRecord) error
	WriteSentiment(ctx context.Context, rec domain.SentimentRecord) error
	ListImportance(ctx context.Context, teamKey string, day domain.Day) ([]domain.ImportanceRecord, error)
	ReadSentiment(ctx context.Context, key domain.AggregateKey) (*domain.SentimentRecord, error)

	// AppendTimeSeriesPoint appends (or, for a backfilled date, replaces) the
	// point for the keyword's day.
	AppendTimeSeriesPoint(ctx context.Context, teamKey, keyword string, pt domain.TimeSeriesPoint) error

	// ReadTimeSeries returns the trailing window (most recent `window` days,
	// date-ascending) of a keyword's series. window <= 0 means the full series.
	ReadTimeSeries(ctx context.Context, teamKey, keyword string, window int) ([]domain.TimeSeriesPoint, error)

	// PruneBefore drops aggregates, records and points older than the cutoff
	// day for the team.
	PruneBefore(ctx context.Context, teamKey string, cutoff domain.Day) error
}

// SentimentScorer computes polarity and magnitude for one occurrence window.
// Implementations must be side-effect-free with respect to pipeline state.
type SentimentScorer interface {
	Name() string
	Score(ctx context.Context, text string) (domain.SentimentSample, error)
}

// Notifier publishes finalized day summaries to downstream consumers.
type Notifier interface {
	PublishDaySignals(ctx context.Context, summary domain.DaySummary) error
}

// Scheduler controls when batch runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
