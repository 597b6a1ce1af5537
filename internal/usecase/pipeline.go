package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"

	"SignalPipeline/internal/aggregate"
	"SignalPipeline/internal/config"
	"SignalPipeline/internal/domain"
	"SignalPipeline/internal/extract"
	"SignalPipeline/internal/logging"
	"SignalPipeline/internal/ports"
	"SignalPipeline/internal/score"
	"SignalPipeline/internal/timeseries"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Store     ports.SignalStore
	Extractor *extract.Extractor
	Sentiment map[string]ports.SentimentScorer
	Notifier  ports.Notifier
	Logger    *slog.Logger
	Settings  config.PipelineConfig
	NotifyTop int
}

// Pipeline implements the keyword-signal workflow: extract candidates per
// document, aggregate them per keyword per day, then derive importance,
// sentiment and time-series views once a batch's aggregation has finished.
type Pipeline struct {
	store     ports.SignalStore
	extractor *extract.Extractor
	sentiment map[string]ports.SentimentScorer
	notifier  ports.Notifier
	logger    *slog.Logger
	settings  config.PipelineConfig
	notifyTop int
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	notifyTop := deps.NotifyTop
	if notifyTop <= 0 {
		notifyTop = 10
	}
	return &Pipeline{
		store:     deps.Store,
		extractor: deps.Extractor,
		sentiment: deps.Sentiment,
		notifier:  deps.Notifier,
		logger:    logger,
		settings:  deps.Settings,
		notifyTop: notifyTop,
	}
}

// ProcessAllTeams runs one batch per team. A team with broken configuration
// fails alone; the remaining teams still run.
func (p *Pipeline) ProcessAllTeams(ctx context.Context, teams []config.TeamConfig) error {
	var errs []error
	for _, team := range teams {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.ProcessTeam(ctx, team); err != nil {
			p.logger.Error("team batch failed", "team", team.Key, "error", err)
			errs = append(errs, fmt.Errorf("team %s: %w", team.Key, err))
		}
	}
	return errors.Join(errs...)
}

// ProcessTeam executes one scheduled batch for a team: a bounded set of
// unprocessed documents is aggregated on parallel workers, then every touched
// day is finalized. The wait between the two phases is the synchronization
// barrier: no score is derived before all of the batch's aggregation landed.
func (p *Pipeline) ProcessTeam(ctx context.Context, team config.TeamConfig) error {
	if err := team.Validate(); err != nil {
		return err
	}

	scorer, err := p.sentimentScorer(team)
	if err != nil {
		return err
	}

	runID := uuid.New().String()
	log := p.logger.With("team", team.Key, "run", runID)

	docs, err := p.store.GetUnprocessedDocuments(ctx, team.Key, p.settings.BatchSize)
	if err != nil {
		return fmt.Errorf("load unprocessed documents: %w", err)
	}
	if len(docs) == 0 {
		log.Debug("no unprocessed documents")
		return nil
	}
	log.Info("batch started", "documents", len(docs))

	days, batchErrs := p.aggregateBatch(ctx, team, scorer, docs, log)
	if err := ctx.Err(); err != nil {
		// Additive per-document writes keep partially processed days
		// consistent; a retried batch resumes at the unprocessed boundary.
		return err
	}

	sortedDays := make([]domain.Day, 0, len(days))
	for day := range days {
		sortedDays = append(sortedDays, day)
	}
	sort.Slice(sortedDays, func(i, j int) bool { return sortedDays[i] < sortedDays[j] })

	for _, day := range sortedDays {
		if err := p.finalizeDay(ctx, team, day, log); err != nil {
			batchErrs = append(batchErrs, fmt.Errorf("finalize %s: %w", day, err))
		}
	}

	if team.RetentionDays > 0 && len(sortedDays) > 0 {
		cutoff := domain.DayOf(time.Now()).AddDays(-team.RetentionDays)
		if err := p.store.PruneBefore(ctx, team.Key, cutoff); err != nil {
			batchErrs = append(batchErrs, fmt.Errorf("retention prune: %w", err))
		}
	}

	log.Info("batch finished", "days", len(sortedDays), "errors", len(batchErrs))
	return errors.Join(batchErrs...)
}

func (p *Pipeline) sentimentScorer(team config.TeamConfig) (ports.SentimentScorer, error) {
	if !team.EnableSentiment {
		return nil, nil
	}
	scorer, ok := p.sentiment[team.SentimentMethod]
	if !ok {
		return nil, fmt.Errorf("%w: team %s: sentiment method %s is not registered",
			domain.ErrConfiguration, team.Key, team.SentimentMethod)
	}
	return scorer, nil
}

// aggregateBatch processes the batch's documents on parallel workers. Each
// worker owns its in-memory candidate set; only the aggregate upsert touches
// shared state, and the store serializes that per key.
func (p *Pipeline) aggregateBatch(ctx context.Context, team config.TeamConfig, scorer ports.SentimentScorer, docs []domain.Document, log *slog.Logger) (map[domain.Day]struct{}, []error) {
	workers := p.settings.WorkerCount
	if workers < 1 {
		workers = 1
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		days = map[domain.Day]struct{}{}
		errs []error
	)

	jobs := make(chan domain.Document)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for doc := range jobs {
				day, err := p.processDocument(ctx, team, scorer, doc)
				mu.Lock()
				switch {
				case err == nil:
					days[day] = struct{}{}
				case errors.Is(err, domain.ErrDocumentProcessing):
					// Skipped, left unprocessed for a later retry.
					log.Warn("document skipped", "document", doc.ID, "error", err)
				default:
					errs = append(errs, fmt.Errorf("document %s: %w", doc.ID, err))
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, doc := range docs {
		select {
		case jobs <- doc:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return days, errs
}

// processDocument applies one document's contribution to its day's
// aggregates. All deltas are computed up front and handed to the store in one
// atomic apply, so an interrupted run never leaves a document half-counted:
// either its full contribution landed (and a repeat delivery is rejected by
// the per-day document log) or nothing did and a retry starts clean.
func (p *Pipeline) processDocument(ctx context.Context, team config.TeamConfig, scorer ports.SentimentScorer, doc domain.Document) (domain.Day, error) {
	day := domain.DayOf(doc.PublishedAt)

	candidates, err := p.extractor.Extract(ctx, doc, extract.Options{
		Methods:         team.EnabledMethods,
		MaxPhraseLength: team.MaxPhraseLength,
	})
	if err != nil {
		return day, err
	}
	merged := aggregate.MergeCandidates(candidates)

	var cleaned string
	if scorer != nil {
		cleaned = extract.CleanBody(doc.BodyText)
	}

	deltas := make([]domain.KeywordDailyAggregate, 0, len(merged))
	for _, cand := range merged {
		var samples []domain.SentimentSample
		if scorer != nil {
			for _, window := range score.ContextWindows(cleaned, cand.Text, cand.Occurrences) {
				sample, err := scorer.Score(ctx, window)
				if err != nil {
					p.logger.Warn("sentiment scoring failed", "keyword", cand.Text, "error", err)
					continue
				}
				samples = append(samples, sample)
			}
		}
		deltas = append(deltas, aggregate.BuildDelta(doc, day, cand, samples))
	}

	if _, err := p.applyWithRetry(ctx, team.Key, day, doc, deltas); err != nil {
		return day, err
	}

	if err := p.store.MarkProcessed(ctx, doc.ID); err != nil {
		return day, fmt.Errorf("mark processed: %w", err)
	}
	return day, nil
}

// applyWithRetry absorbs transient write conflicts with bounded exponential
// backoff before surfacing them as batch errors.
func (p *Pipeline) applyWithRetry(ctx context.Context, teamKey string, day domain.Day, doc domain.Document, deltas []domain.KeywordDailyAggregate) (bool, error) {
	attempts := p.settings.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	baseWait := p.settings.RetryBaseWait
	if baseWait <= 0 {
		baseWait = 50 * time.Millisecond
	}

	var fresh bool
	err := retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return retry.Unrecoverable(err)
			}
			var err error
			fresh, err = p.store.ApplyDocument(ctx, teamKey, day, doc.ID, doc.SourceName, deltas)
			return err
		},
		retry.Attempts(uint(attempts)),
		retry.Delay(baseWait),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return errors.Is(err, domain.ErrWriteConflict) }),
	)
	if err != nil {
		return false, fmt.Errorf("apply document %s: %w", doc.ID, err)
	}
	return fresh, nil
}

// finalizeDay recomputes every derived view for one team/day from the
// aggregates. All outputs are pure functions of the aggregates plus trailing
// history, so re-running finalization (including backfills) is always safe.
func (p *Pipeline) finalizeDay(ctx context.Context, team config.TeamConfig, day domain.Day, log *slog.Logger) error {
	dropped, err := p.store.PruneAggregates(ctx, team.Key, day, team.MinFrequency, team.RelevanceThreshold)
	if err != nil {
		return fmt.Errorf("prune aggregates: %w", err)
	}
	if dropped > 0 {
		log.Debug("gated keywords below threshold", "day", string(day), "dropped", dropped)
	}

	aggs, err := p.store.ListAggregates(ctx, team.Key, day)
	if err != nil {
		return fmt.Errorf("list aggregates: %w", err)
	}
	if len(aggs) == 0 {
		return nil
	}

	daySources, err := p.store.CountDaySources(ctx, team.Key, day)
	if err != nil {
		return fmt.Errorf("count day sources: %w", err)
	}

	prior, err := p.priorFrequencies(ctx, team, day, aggs)
	if err != nil {
		return err
	}

	sentiments := make(map[string]domain.SentimentRecord, len(aggs))
	for _, agg := range aggs {
		rec := aggregate.DeriveSentiment(agg)
		sentiments[agg.Keyword] = rec
		if team.EnableSentiment {
			if err := p.store.WriteSentiment(ctx, rec); err != nil {
				return fmt.Errorf("write sentiment %s: %w", agg.Keyword, err)
			}
		}
	}

	scorer := score.NewImportanceScorer(score.DefaultWeights().ApplyOverrides(team.WeightOverrides))
	records := scorer.ScoreDay(score.DayInputs{
		Aggregates:       aggs,
		PriorFrequencies: prior,
		DaySources:       daySources,
		MaxKeywords:      team.MaxKeywordsPerDay,
	})

	for _, rec := range records {
		if err := p.store.WriteImportance(ctx, rec); err != nil {
			return fmt.Errorf("write importance %s: %w", rec.Keyword, err)
		}
		pt := timeseries.BuildPoint(rec, sentiments[rec.Keyword])
		if err := p.store.AppendTimeSeriesPoint(ctx, team.Key, rec.Keyword, pt); err != nil {
			return fmt.Errorf("append point %s: %w", rec.Keyword, err)
		}
	}

	p.notify(ctx, team, day, records, sentiments, log)
	return nil
}

func (p *Pipeline) priorFrequencies(ctx context.Context, team config.TeamConfig, day domain.Day, aggs []domain.KeywordDailyAggregate) (map[string][]int, error) {
	lookback := team.VelocityLookback
	if lookback < 1 {
		lookback = 1
	}

	prior := make(map[string][]int, len(aggs))
	for _, agg := range aggs {
		var freqs []int
		for i := 1; i <= lookback; i++ {
			prev, err := p.store.ReadAggregate(ctx, domain.AggregateKey{
				TeamKey: team.Key,
				Keyword: agg.Keyword,
				Day:     day.AddDays(-i),
			})
			if err != nil {
				return nil, fmt.Errorf("read prior aggregate %s: %w", agg.Keyword, err)
			}
			if prev != nil {
				freqs = append(freqs, prev.Frequency)
			}
		}
		prior[agg.Keyword] = freqs
	}
	return prior, nil
}

// notify publishes the day's top signals. Publishing is best effort: a broken
// event bus never fails a finalized day.
func (p *Pipeline) notify(ctx context.Context, team config.TeamConfig, day domain.Day, records []domain.ImportanceRecord, sentiments map[string]domain.SentimentRecord, log *slog.Logger) {
	if p.notifier == nil || len(records) == 0 {
		return
	}

	engine := timeseries.New(team.TrendWindow, team.TrendThreshold)
	top := records
	if len(top) > p.notifyTop {
		top = top[:p.notifyTop]
	}

	summary := domain.DaySummary{TeamKey: team.Key, Day: day}
	for _, rec := range top {
		trend := domain.TrendStable
		series, err := p.store.ReadTimeSeries(ctx, team.Key, rec.Keyword, team.TrendWindow)
		if err != nil {
			log.Warn("trend lookup failed", "keyword", rec.Keyword, "error", err)
		} else {
			trend = engine.Classify(series)
		}
		sent := sentiments[rec.Keyword]
		summary.Signals = append(summary.Signals, domain.RankedSignal{
			Keyword:            rec.Keyword,
			Day:                day,
			Composite:          rec.Composite,
			Signals:            rec.Signals,
			Frequency:          rec.Frequency,
			SentimentScore:     sent.Score,
			SentimentMagnitude: sent.Magnitude,
			Trend:              trend,
		})
	}

	if err := p.notifier.PublishDaySignals(ctx, summary); err != nil {
		log.Warn("day summary publish failed", "day", string(day), "error", err)
	}
}
