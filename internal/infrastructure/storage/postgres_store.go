package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"SignalPipeline/internal/domain"
	"SignalPipeline/internal/ports"
)

// PostgresStore persists the pipeline state in Postgres. Aggregate merges run
// as single additive ON CONFLICT upserts, so concurrent workers never observe
// a partially applied document and the row lock serializes same-key writes.
type PostgresStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.SignalStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id            TEXT PRIMARY KEY,
    team_key      TEXT NOT NULL,
    source_name   TEXT NOT NULL,
    source_type   TEXT NOT NULL DEFAULT '',
    published_at  TIMESTAMPTZ NOT NULL,
    body_text     TEXT NOT NULL,
    processed     BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS documents_unprocessed_idx ON documents (team_key) WHERE NOT processed;

CREATE TABLE IF NOT EXISTS day_documents (
    team_key    TEXT NOT NULL,
    day         DATE NOT NULL,
    document_id TEXT NOT NULL,
    source_name TEXT NOT NULL,
    PRIMARY KEY (team_key, day, document_id)
);

CREATE TABLE IF NOT EXISTS keyword_daily_aggregates (
    team_key           TEXT NOT NULL,
    keyword            TEXT NOT NULL,
    day                DATE NOT NULL,
    frequency          INTEGER NOT NULL DEFAULT 0,
    document_count     INTEGER NOT NULL DEFAULT 0,
    sources            TEXT[] NOT NULL DEFAULT '{}',
    entity_hits        INTEGER NOT NULL DEFAULT 0,
    method_score_sum   DOUBLE PRECISION NOT NULL DEFAULT 0,
    method_score_count INTEGER NOT NULL DEFAULT 0,
    sentiment_sum      DOUBLE PRECISION NOT NULL DEFAULT 0,
    sentiment_count    INTEGER NOT NULL DEFAULT 0,
    magnitude_sum      DOUBLE PRECISION NOT NULL DEFAULT 0,
    positive_count     INTEGER NOT NULL DEFAULT 0,
    negative_count     INTEGER NOT NULL DEFAULT 0,
    neutral_count      INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (team_key, keyword, day)
);

CREATE TABLE IF NOT EXISTS importance_records (
    team_key          TEXT NOT NULL,
    keyword           TEXT NOT NULL,
    day               DATE NOT NULL,
    frequency_rank    DOUBLE PRECISION NOT NULL,
    relevance         DOUBLE PRECISION NOT NULL,
    entity_boost      DOUBLE PRECISION NOT NULL,
    velocity          DOUBLE PRECISION NOT NULL,
    source_diversity  DOUBLE PRECISION NOT NULL,
    sentiment_magnitude DOUBLE PRECISION NOT NULL,
    composite         DOUBLE PRECISION NOT NULL,
    frequency         INTEGER NOT NULL,
    rank              INTEGER NOT NULL,
    PRIMARY KEY (team_key, keyword, day)
);

CREATE TABLE IF NOT EXISTS sentiment_records (
    team_key       TEXT NOT NULL,
    keyword        TEXT NOT NULL,
    day            DATE NOT NULL,
    score          DOUBLE PRECISION NOT NULL,
    magnitude      DOUBLE PRECISION NOT NULL,
    positive_count INTEGER NOT NULL,
    negative_count INTEGER NOT NULL,
    neutral_count  INTEGER NOT NULL,
    PRIMARY KEY (team_key, keyword, day)
);

CREATE TABLE IF NOT EXISTS timeseries_points (
    team_key        TEXT NOT NULL,
    keyword         TEXT NOT NULL,
    day             DATE NOT NULL,
    importance      DOUBLE PRECISION NOT NULL,
    sentiment_score DOUBLE PRECISION NOT NULL,
    frequency       INTEGER NOT NULL,
    PRIMARY KEY (team_key, keyword, day)
);
`

// EnsureSchema creates the pipeline tables when they do not exist yet.
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *PostgresStore) GetUnprocessedDocuments(ctx context.Context, teamKey string, limit int) ([]domain.Document, error) {
	q := r.builder.
		Select("id", "team_key", "source_name", "source_type", "published_at", "body_text").
		From("documents").
		Where(sq.Eq{"team_key": teamKey, "processed": false}).
		OrderBy("published_at ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		if err := rows.Scan(&doc.ID, &doc.TeamKey, &doc.SourceName, &doc.SourceType, &doc.PublishedAt, &doc.BodyText); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return docs, nil
}

func (r *PostgresStore) MarkProcessed(ctx context.Context, documentID string) error {
	query, args, err := r.builder.
		Update("documents").
		Set("processed", true).
		Where(sq.Eq{"id": documentID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// ApplyDocument wraps the day-log insert and the document's aggregate deltas
// in one transaction. A retried batch therefore sees either the document's
// whole contribution or none of it; a conflicting insert on the log means the
// document already contributed in full and the deltas are skipped.
func (r *PostgresStore) ApplyDocument(ctx context.Context, teamKey string, day domain.Day, documentID, sourceName string, deltas []domain.KeywordDailyAggregate) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin apply: %w", err)
	}
	defer tx.Rollback()

	query, args, err := r.builder.
		Insert("day_documents").
		Columns("team_key", "day", "document_id", "source_name").
		Values(teamKey, string(day), documentID, sourceName).
		Suffix("ON CONFLICT (team_key, day, document_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isSerializationFailure(err) {
			return false, fmt.Errorf("%w: %v", domain.ErrWriteConflict, err)
		}
		return false, fmt.Errorf("record document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	for _, delta := range deltas {
		query, args, err := upsertAggregateSQL(r.builder, delta)
		if err != nil {
			return false, fmt.Errorf("build query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isSerializationFailure(err) {
				return false, fmt.Errorf("%w: %v", domain.ErrWriteConflict, err)
			}
			return false, fmt.Errorf("upsert aggregate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return false, fmt.Errorf("%w: %v", domain.ErrWriteConflict, err)
		}
		return false, fmt.Errorf("commit apply: %w", err)
	}
	return true, nil
}

func (r *PostgresStore) CountDaySources(ctx context.Context, teamKey string, day domain.Day) (int, error) {
	query, args, err := r.builder.
		Select("COUNT(DISTINCT source_name)").
		From("day_documents").
		Where(sq.Eq{"team_key": teamKey, "day": string(day)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count day sources: %w", err)
	}
	return count, nil
}

func (r *PostgresStore) UpsertAggregate(ctx context.Context, delta domain.KeywordDailyAggregate) error {
	query, args, err := upsertAggregateSQL(r.builder, delta)
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isSerializationFailure(err) {
			return fmt.Errorf("%w: %v", domain.ErrWriteConflict, err)
		}
		return fmt.Errorf("upsert aggregate: %w", err)
	}
	return nil
}

func upsertAggregateSQL(builder sq.StatementBuilderType, delta domain.KeywordDailyAggregate) (string, []any, error) {
	return builder.
		Insert("keyword_daily_aggregates").
		Columns("team_key", "keyword", "day", "frequency", "document_count", "sources",
			"entity_hits", "method_score_sum", "method_score_count",
			"sentiment_sum", "sentiment_count", "magnitude_sum",
			"positive_count", "negative_count", "neutral_count").
		Values(delta.TeamKey, delta.Keyword, string(delta.Day), delta.Frequency, delta.DocumentCount,
			pq.Array(delta.Sources), delta.EntityHits, delta.MethodScoreSum, delta.MethodScoreCount,
			delta.SentimentSum, delta.SentimentCount, delta.MagnitudeSum,
			delta.PositiveCount, delta.NegativeCount, delta.NeutralCount).
		Suffix(`ON CONFLICT (team_key, keyword, day) DO UPDATE SET
            frequency          = keyword_daily_aggregates.frequency + EXCLUDED.frequency,
            document_count     = keyword_daily_aggregates.document_count + EXCLUDED.document_count,
            sources            = ARRAY(SELECT DISTINCT s FROM unnest(keyword_daily_aggregates.sources || EXCLUDED.sources) AS s ORDER BY s),
            entity_hits        = keyword_daily_aggregates.entity_hits + EXCLUDED.entity_hits,
            method_score_sum   = keyword_daily_aggregates.method_score_sum + EXCLUDED.method_score_sum,
            method_score_count = keyword_daily_aggregates.method_score_count + EXCLUDED.method_score_count,
            sentiment_sum      = keyword_daily_aggregates.sentiment_sum + EXCLUDED.sentiment_sum,
            sentiment_count    = keyword_daily_aggregates.sentiment_count + EXCLUDED.sentiment_count,
            magnitude_sum      = keyword_daily_aggregates.magnitude_sum + EXCLUDED.magnitude_sum,
            positive_count     = keyword_daily_aggregates.positive_count + EXCLUDED.positive_count,
            negative_count     = keyword_daily_aggregates.negative_count + EXCLUDED.negative_count,
            neutral_count      = keyword_daily_aggregates.neutral_count + EXCLUDED.neutral_count`).
		ToSql()
}

func (r *PostgresStore) ReadAggregate(ctx context.Context, key domain.AggregateKey) (*domain.KeywordDailyAggregate, error) {
	query, args, err := r.aggregateQuery().
		Where(sq.Eq{"team_key": key.TeamKey, "keyword": key.Keyword, "day": string(key.Day)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	agg, err := scanAggregate(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read aggregate: %w", err)
	}
	return agg, nil
}

func (r *PostgresStore) ListAggregates(ctx context.Context, teamKey string, day domain.Day) ([]domain.KeywordDailyAggregate, error) {
	query, args, err := r.aggregateQuery().
		Where(sq.Eq{"team_key": teamKey, "day": string(day)}).
		OrderBy("keyword ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", err)
	}
	defer rows.Close()

	var out []domain.KeywordDailyAggregate
	for rows.Next() {
		agg, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		out = append(out, *agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (r *PostgresStore) PruneAggregates(ctx context.Context, teamKey string, day domain.Day, minFrequency int, relevanceThreshold float64) (int, error) {
	query, args, err := r.builder.
		Delete("keyword_daily_aggregates").
		Where(sq.Eq{"team_key": teamKey, "day": string(day)}).
		Where(sq.Or{
			sq.Lt{"frequency": minFrequency},
			sq.Expr("method_score_count > 0 AND method_score_sum / method_score_count < ?", relevanceThreshold),
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune aggregates: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *PostgresStore) WriteImportance(ctx context.Context, rec domain.ImportanceRecord) error {
	query, args, err := r.builder.
		Insert("importance_records").
		Columns("team_key", "keyword", "day", "frequency_rank", "relevance", "entity_boost",
			"velocity", "source_diversity", "sentiment_magnitude", "composite", "frequency", "rank").
		Values(rec.TeamKey, rec.Keyword, string(rec.Day),
			rec.Signals.FrequencyRank, rec.Signals.Relevance, rec.Signals.EntityBoost,
			rec.Signals.Velocity, rec.Signals.SourceDiversity, rec.Signals.SentimentMagnitude,
			rec.Composite, rec.Frequency, rec.Rank).
		Suffix(`ON CONFLICT (team_key, keyword, day) DO UPDATE SET
            frequency_rank = EXCLUDED.frequency_rank,
            relevance = EXCLUDED.relevance,
            entity_boost = EXCLUDED.entity_boost,
            velocity = EXCLUDED.velocity,
            source_diversity = EXCLUDED.source_diversity,
            sentiment_magnitude = EXCLUDED.sentiment_magnitude,
            composite = EXCLUDED.composite,
            frequency = EXCLUDED.frequency,
            rank = EXCLUDED.rank`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write importance: %w", err)
	}
	return nil
}

func (r *PostgresStore) WriteSentiment(ctx context.Context, rec domain.SentimentRecord) error {
	query, args, err := r.builder.
		Insert("sentiment_records").
		Columns("team_key", "keyword", "day", "score", "magnitude",
			"positive_count", "negative_count", "neutral_count").
		Values(rec.TeamKey, rec.Keyword, string(rec.Day), rec.Score, rec.Magnitude,
			rec.PositiveCount, rec.NegativeCount, rec.NeutralCount).
		Suffix(`ON CONFLICT (team_key, keyword, day) DO UPDATE SET
            score = EXCLUDED.score,
            magnitude = EXCLUDED.magnitude,
            positive_count = EXCLUDED.positive_count,
            negative_count = EXCLUDED.negative_count,
            neutral_count = EXCLUDED.neutral_count`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write sentiment: %w", err)
	}
	return nil
}

func (r *PostgresStore) ListImportance(ctx context.Context, teamKey string, day domain.Day) ([]domain.ImportanceRecord, error) {
	query, args, err := r.builder.
		Select("team_key", "keyword", "day", "frequency_rank", "relevance", "entity_boost",
			"velocity", "source_diversity", "sentiment_magnitude", "composite", "frequency", "rank").
		From("importance_records").
		Where(sq.Eq{"team_key": teamKey, "day": string(day)}).
		OrderBy("rank ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list importance: %w", err)
	}
	defer rows.Close()

	var out []domain.ImportanceRecord
	for rows.Next() {
		var rec domain.ImportanceRecord
		var day time.Time
		if err := rows.Scan(&rec.TeamKey, &rec.Keyword, &day,
			&rec.Signals.FrequencyRank, &rec.Signals.Relevance, &rec.Signals.EntityBoost,
			&rec.Signals.Velocity, &rec.Signals.SourceDiversity, &rec.Signals.SentimentMagnitude,
			&rec.Composite, &rec.Frequency, &rec.Rank); err != nil {
			return nil, fmt.Errorf("scan importance: %w", err)
		}
		rec.Day = domain.DayOf(day)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func (r *PostgresStore) ReadSentiment(ctx context.Context, key domain.AggregateKey) (*domain.SentimentRecord, error) {
	query, args, err := r.builder.
		Select("team_key", "keyword", "day", "score", "magnitude",
			"positive_count", "negative_count", "neutral_count").
		From("sentiment_records").
		Where(sq.Eq{"team_key": key.TeamKey, "keyword": key.Keyword, "day": string(key.Day)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rec domain.SentimentRecord
	var day time.Time
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&rec.TeamKey, &rec.Keyword, &day,
		&rec.Score, &rec.Magnitude, &rec.PositiveCount, &rec.NegativeCount, &rec.NeutralCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sentiment: %w", err)
	}
	rec.Day = domain.DayOf(day)
	return &rec, nil
}

func (r *PostgresStore) AppendTimeSeriesPoint(ctx context.Context, teamKey, keyword string, pt domain.TimeSeriesPoint) error {
	query, args, err := r.builder.
		Insert("timeseries_points").
		Columns("team_key", "keyword", "day", "importance", "sentiment_score", "frequency").
		Values(teamKey, keyword, string(pt.Day), pt.Importance, pt.SentimentScore, pt.Frequency).
		Suffix(`ON CONFLICT (team_key, keyword, day) DO UPDATE SET
            importance = EXCLUDED.importance,
            sentiment_score = EXCLUDED.sentiment_score,
            frequency = EXCLUDED.frequency`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("append timeseries point: %w", err)
	}
	return nil
}

func (r *PostgresStore) ReadTimeSeries(ctx context.Context, teamKey, keyword string, window int) ([]domain.TimeSeriesPoint, error) {
	q := r.builder.
		Select("day", "importance", "sentiment_score", "frequency").
		From("timeseries_points").
		Where(sq.Eq{"team_key": teamKey, "keyword": keyword}).
		OrderBy("day DESC")
	if window > 0 {
		q = q.Limit(uint64(window))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read timeseries: %w", err)
	}
	defer rows.Close()

	var out []domain.TimeSeriesPoint
	for rows.Next() {
		var pt domain.TimeSeriesPoint
		var day time.Time
		if err := rows.Scan(&day, &pt.Importance, &pt.SentimentScore, &pt.Frequency); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		pt.Day = domain.DayOf(day)
		out = append(out, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	// Flip to date-ascending order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *PostgresStore) PruneBefore(ctx context.Context, teamKey string, cutoff domain.Day) error {
	for _, table := range []string{"keyword_daily_aggregates", "importance_records", "sentiment_records", "timeseries_points", "day_documents"} {
		query, args, err := r.builder.
			Delete(table).
			Where(sq.Eq{"team_key": teamKey}).
			Where(sq.Lt{"day": string(cutoff)}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("prune %s: %w", table, err)
		}
	}
	return nil
}

func (r *PostgresStore) aggregateQuery() sq.SelectBuilder {
	return r.builder.
		Select("team_key", "keyword", "day", "frequency", "document_count", "sources",
			"entity_hits", "method_score_sum", "method_score_count",
			"sentiment_sum", "sentiment_count", "magnitude_sum",
			"positive_count", "negative_count", "neutral_count").
		From("keyword_daily_aggregates")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAggregate(row rowScanner) (*domain.KeywordDailyAggregate, error) {
	var agg domain.KeywordDailyAggregate
	var day time.Time
	var sources pq.StringArray
	if err := row.Scan(&agg.TeamKey, &agg.Keyword, &day, &agg.Frequency, &agg.DocumentCount,
		&sources, &agg.EntityHits, &agg.MethodScoreSum, &agg.MethodScoreCount,
		&agg.SentimentSum, &agg.SentimentCount, &agg.MagnitudeSum,
		&agg.PositiveCount, &agg.NegativeCount, &agg.NeutralCount); err != nil {
		return nil, err
	}
	agg.Day = domain.DayOf(day)
	agg.Sources = []string(sources)
	return &agg, nil
}

// isSerializationFailure detects the Postgres error classes a concurrent
// aggregate update race produces; the pipeline retries these with backoff.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}
