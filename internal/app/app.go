package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"

	"SignalPipeline/internal/config"
	"SignalPipeline/internal/extract"
	"SignalPipeline/internal/infrastructure/events"
	"SignalPipeline/internal/infrastructure/inference"
	"SignalPipeline/internal/infrastructure/scheduler"
	"SignalPipeline/internal/infrastructure/storage"
	"SignalPipeline/internal/logging"
	"SignalPipeline/internal/ports"
	"SignalPipeline/internal/score"
	"SignalPipeline/internal/usecase"
)

// Application wires configuration to adapters, use cases and lifecycle.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	pipeline *usecase.Pipeline
	query    *usecase.Query
	runner   *usecase.Runner

	db       *sql.DB
	natsConn *nats.Conn
}

// New builds a runnable application instance. With an empty database DSN the
// in-memory store serves the run; an empty NATS URL disables publishing.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	a := &Application{cfg: cfg, logger: baseLogger}

	store, err := a.buildStore(ctx)
	if err != nil {
		return nil, err
	}

	extractor := extract.New(
		extract.DefaultRegistry(),
		cfg.Pipeline.MethodTimeout,
		baseLogger.With("component", "extractor"),
	)

	scorers := map[string]ports.SentimentScorer{}
	lexicon := score.NewLexiconScorer()
	scorers[lexicon.Name()] = lexicon
	if cfg.Sentiment.InferenceURL != "" {
		remote := inference.NewClient(cfg.Sentiment.InferenceURL, cfg.Sentiment.APIKey)
		scorers[remote.Name()] = remote
	}

	notifier, err := a.buildNotifier()
	if err != nil {
		return nil, err
	}

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Store:     store,
		Extractor: extractor,
		Sentiment: scorers,
		Notifier:  notifier,
		Logger:    baseLogger.With("component", "pipeline"),
		Settings:  cfg.Pipeline,
		NotifyTop: cfg.Events.TopSignals,
	})
	a.query = usecase.NewQuery(store, nil)

	if cfg.Scheduler.Interval > 0 {
		a.runner = usecase.NewRunner(
			a.pipeline,
			scheduler.NewIntervalScheduler(cfg.Scheduler.Interval),
			cfg.Teams,
			baseLogger.With("component", "runner"),
		)
	}

	return a, nil
}

func (a *Application) buildStore(ctx context.Context) (ports.SignalStore, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Info("no database DSN configured, using in-memory store")
		return storage.NewMemoryStore(), nil
	}

	db, err := sql.Open("postgres", a.cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := storage.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	a.db = db
	return store, nil
}

func (a *Application) buildNotifier() (ports.Notifier, error) {
	if a.cfg.Events.NATSURL == "" {
		return nil, nil
	}

	conn, err := nats.Connect(a.cfg.Events.NATSURL, nats.Name("signal-pipeline"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	a.natsConn = conn
	return events.NewNATSNotifier(conn, a.cfg.Events.SubjectRoot), nil
}

// Query exposes the read-side surface.
func (a *Application) Query() *usecase.Query { return a.query }

// Run executes batches until done. With a scheduler interval configured it
// keeps running until the context is cancelled; otherwise it performs one
// batch per team and returns.
func (a *Application) Run(ctx context.Context) error {
	if a.runner == nil {
		return a.pipeline.ProcessAllTeams(ctx, a.cfg.Teams)
	}

	if err := a.runner.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return a.runner.Stop(context.Background())
}

// Close releases external connections.
func (a *Application) Close() {
	if a.natsConn != nil {
		a.natsConn.Drain()
		a.natsConn.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
