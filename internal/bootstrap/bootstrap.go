package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/dermafusion/internal/config"
	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/core/ports"
	"github.com/kirillkom/dermafusion/internal/core/usecase"
	"github.com/kirillkom/dermafusion/internal/infrastructure/embedding/imageenc"
	"github.com/kirillkom/dermafusion/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm/fallback"
	"github.com/kirillkom/dermafusion/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/dermafusion/internal/infrastructure/prompts"
	"github.com/kirillkom/dermafusion/internal/infrastructure/queue/nats"
	"github.com/kirillkom/dermafusion/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/dermafusion/internal/infrastructure/resilience"
	"github.com/kirillkom/dermafusion/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue    ports.DiagnosisEventQueue
	Taxonomy *postgres.TaxonomyRepository

	DiagnosisUC ports.DiagnosisService
	QueryTypeUC ports.QueryClassifier
	LabelsUC    ports.LabelMatcher
	CrossMapUC  *usecase.CrossMapImportUseCase
	LogUC       ports.DiagnosisLogRecorder

	executors []*resilience.Executor
	closeFn   func()
}

type options struct {
	breakerObserver resilience.StateObserver
	failureObserver fallback.FailureObserver
	skipQueue       bool
}

type Option func(*options)

// WithBreakerObserver is notified on every circuit breaker transition.
func WithBreakerObserver(fn resilience.StateObserver) Option {
	return func(o *options) { o.breakerObserver = fn }
}

// WithBackendFailureObserver is notified on every failed generative backend attempt.
func WithBackendFailureObserver(fn fallback.FailureObserver) Option {
	return func(o *options) { o.failureObserver = fn }
}

// WithoutQueue skips the NATS connection. Diagnosis events are not published.
func WithoutQueue() Option {
	return func(o *options) { o.skipQueue = true }
}

// New wires the full diagnosis graph used by the API and MCP processes.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := applyOptions(opts)
	closers := closerStack{}

	db, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers.push(func() { _ = db.Close() })

	executor := resilience.NewExecutor(resilienceConfig(cfg), resilience.WithStateObserver(o.breakerObserver))

	var queue *nats.Queue
	if !o.skipQueue {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			QueueGroup:         cfg.NATSQueueGroup,
			ResilienceExecutor: executor,
		})
		if err != nil {
			closers.run()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		closers.push(queue.Close)
	}

	graph, err := neo4j.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	if err != nil {
		closers.run()
		return nil, fmt.Errorf("init knowledge graph: %w", err)
	}
	closers.push(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = graph.Close(closeCtx)
	})

	catalog, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		closers.run()
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	specs, err := cfg.Backends()
	if err != nil {
		closers.run()
		return nil, fmt.Errorf("load generative backends: %w", err)
	}
	backends, err := buildBackends(ctx, cfg, specs)
	if err != nil {
		closers.run()
		return nil, err
	}
	generativeExecutor := resilience.NewExecutor(generativeResilienceConfig(cfg), resilience.WithStateObserver(o.breakerObserver))
	generator, err := fallback.New(backends, generativeExecutor, fallback.WithFailureObserver(o.failureObserver))
	if err != nil {
		closers.run()
		return nil, fmt.Errorf("init generator: %w", err)
	}
	closers.push(func() { _ = generator.Close() })

	embedder := ollama.NewEmbedder(ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel))
	vectorDB := qdrant.New(cfg.QdrantURL)

	taxonomy := postgres.NewTaxonomyRepository(db)
	logRepo := postgres.NewDiagnosisLogRepository(db)

	deps := usecase.DiagnosisDependencies{
		Taxonomy:  taxonomy,
		CrossMaps: taxonomy,
		Encoder:   imageenc.New(cfg.ImageEncoderURL, executor),
		Visual:    qdrant.NewImageStore(vectorDB, cfg.QdrantImageCollection, cfg.ImageMaxDistance),
		Documents: qdrant.NewDocumentStore(vectorDB, embedder, cfg.QdrantDocumentCollection, cfg.DocMaxDistance),
		Keywords:  qdrant.NewKeywordIndex(vectorDB, embedder, cfg.QdrantEntityCollection, cfg.KeywordMaxDistance, 0),
		Graph:     graph,
		Generator: generator,
	}
	if queue != nil {
		deps.Events = queue
	}

	app := &App{
		Config:   cfg,
		Taxonomy: taxonomy,

		DiagnosisUC: usecase.NewDiagnosisUseCase(deps, catalog, diagnosisOptions(cfg)),
		QueryTypeUC: usecase.NewQueryTypeUseCase(generator, catalog, 0),
		LabelsUC:    usecase.NewLabelMatchUseCase(taxonomy),
		CrossMapUC:  usecase.NewCrossMapImportUseCase(taxonomy, taxonomy),
		LogUC:       usecase.NewDiagnosisLogUseCase(logRepo),

		executors: []*resilience.Executor{executor, generativeExecutor},
		closeFn:   closers.run,
	}
	if queue != nil {
		app.Queue = queue
	}
	return app, nil
}

// NewWorker wires only storage and the event queue.
func NewWorker(ctx context.Context, cfg config.Config) (*App, error) {
	closers := closerStack{}

	db, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers.push(func() { _ = db.Close() })

	executor := resilience.NewExecutor(resilienceConfig(cfg))
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: executor,
	})
	if err != nil {
		closers.run()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	closers.push(queue.Close)

	return &App{
		Config: cfg,
		Queue:  queue,
		LogUC:  usecase.NewDiagnosisLogUseCase(postgres.NewDiagnosisLogRepository(db)),

		executors: []*resilience.Executor{executor},
		closeFn:   closers.run,
	}, nil
}

// NewImporter wires only the taxonomy store for offline cross-map imports.
func NewImporter(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	taxonomy := postgres.NewTaxonomyRepository(db)
	return &App{
		Config:     cfg,
		Taxonomy:   taxonomy,
		LabelsUC:   usecase.NewLabelMatchUseCase(taxonomy),
		CrossMapUC: usecase.NewCrossMapImportUseCase(taxonomy, taxonomy),
		closeFn:    func() { _ = db.Close() },
	}, nil
}

// BreakerStates reports the state of every circuit breaker created so far.
func (a *App) BreakerStates() map[string]string {
	out := make(map[string]string)
	for _, executor := range a.executors {
		for name, state := range executor.BreakerStates() {
			out[name] = state
		}
	}
	return out
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func openStorage(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond,
		RetryMaxBackoff:         time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(cfg.BreakerOpenTimeoutSec) * time.Second,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}
}

// generativeResilienceConfig overlays the GENERATIVE_* settings on the
// generative backend profile.
func generativeResilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:    cfg.GenerativeRetryMaxAttempts,
		RetryInitialBackoff: time.Duration(cfg.GenerativeRetryInitialBackoffMS) * time.Millisecond,
		BreakerEnabled:      cfg.BreakerEnabled,
		BreakerMinRequests:  uint32(max(cfg.GenerativeBreakerMinRequests, 0)),
		BreakerOpenTimeout:  time.Duration(cfg.GenerativeBreakerOpenTimeoutSec) * time.Second,
	}.WithDefaults(resilience.GenerativeConfig())
}

func diagnosisOptions(cfg config.Config) usecase.DiagnosisOptions {
	opts := usecase.DefaultDiagnosisOptions()
	strategy, ok := domain.ParseScoringStrategy(cfg.ScoringStrategy)
	if !ok {
		slog.Warn("unknown_scoring_strategy", "value", cfg.ScoringStrategy, "fallback", string(strategy))
	}
	opts.Strategy = strategy
	if cfg.TopLabels > 0 {
		opts.TopLabels = cfg.TopLabels
	}
	if cfg.ShortlistBonus > 0 {
		opts.ShortlistBonus = cfg.ShortlistBonus
	}
	if cfg.MatchMinScore > 0 {
		opts.MatchMinScore = cfg.MatchMinScore
	}
	return opts
}

// closerStack releases resources in reverse acquisition order.
type closerStack []func()

func (s *closerStack) push(fn func()) {
	*s = append(*s, fn)
}

func (s closerStack) run() {
	for i := len(s) - 1; i >= 0; i-- {
		s[i]()
	}
}
