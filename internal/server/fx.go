// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/greenproof/fleetscore/internal/api"
	"github.com/greenproof/fleetscore/internal/clock/system"
	"github.com/greenproof/fleetscore/internal/config"
	"github.com/greenproof/fleetscore/internal/dispatcher"
	"github.com/greenproof/fleetscore/internal/engine"
	"github.com/greenproof/fleetscore/internal/fetch"
	"github.com/greenproof/fleetscore/internal/id/uuid"
	"github.com/greenproof/fleetscore/internal/logging"
	"github.com/greenproof/fleetscore/internal/metrics"
	"github.com/greenproof/fleetscore/internal/oracle"
	"github.com/greenproof/fleetscore/internal/progress"
	progresssinks "github.com/greenproof/fleetscore/internal/progress/sinks"
	memorypublisher "github.com/greenproof/fleetscore/internal/publisher/memory"
	gcppublisher "github.com/greenproof/fleetscore/internal/publisher/pubsub"
	queueMemory "github.com/greenproof/fleetscore/internal/queue/memory"
	"github.com/greenproof/fleetscore/internal/search"
	archivestore "github.com/greenproof/fleetscore/internal/storage"
	gcsstorage "github.com/greenproof/fleetscore/internal/storage/gcs"
	localstorage "github.com/greenproof/fleetscore/internal/storage/local"
	memoryStorage "github.com/greenproof/fleetscore/internal/storage/memory"
	pgstore "github.com/greenproof/fleetscore/internal/storage/postgres"
	"github.com/greenproof/fleetscore/internal/store"
	"github.com/greenproof/fleetscore/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	dispatch        *dispatcher.Dispatcher
	progressHub     *progress.Hub
	queue           *queueMemory.Queue
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storage         *storage.Client
	renderer        *fetch.Renderer
	runRepo         store.RunRepository
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Define a struct for logging only non-sensitive config fields
	type SanitizedConfig struct {
		ServerPort     int    `json:"server_port"`
		StorageBackend string `json:"storage_backend"`
	}
	safeCfg := SanitizedConfig{
		ServerPort:     cfg.Server.Port,
		StorageBackend: cfg.Storage.Backend,
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.queue.Close()
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

//nolint:gocognit // Shutdown logic is linear but extensive, ignoring complexity check
func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.runRepo != nil {
		if pg, ok := a.runRepo.(*pgstore.ScorecardStore); ok {
			pg.Close()
		}
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	app.logger.Info("building application dependencies")
	runs := memoryStorage.NewRunStore()

	archive, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}

	if err = setupDatabase(ctx, app); err != nil {
		return nil, err
	}

	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	progressEmitter, err := setupProgress(ctx, app, app.runRepo)
	if err != nil {
		return nil, err
	}

	app.queue = queueMemory.NewQueue(cfg.Engine.QueueDepth)
	cancels := worker.NewCancelRegistry()
	app.dispatch, err = setupDispatcher(ctx, app, runs, archive, publisher, progressEmitter, cancels)
	if err != nil {
		return nil, err
	}

	app.apiServer = api.NewServer(
		runs,
		app.runRepo,
		app.dispatch,
		cancels,
		uuid.New(),
		system.New(),
		metrics.Handler(),
		*cfg,
		logger.Named("api"),
	)

	return app, nil
}

func setupStorage(ctx context.Context, app *App) (archivestore.Archiver, error) {
	var archive archivestore.Archiver
	var err error
	switch app.cfg.Storage.Backend {
	case "gcs":
		app.logger.Info("using GCS archive backend")
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		archive, err = gcsstorage.New(app.storage, gcsstorage.Config{
			Bucket: app.cfg.Storage.GCSBucket,
			Prefix: app.cfg.Storage.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		app.logger.Debug("GCS archive backend", zap.String("bucket", app.cfg.Storage.GCSBucket))
	case "local":
		app.logger.Info("using local archive backend")
		archive, err = localstorage.New(localstorage.Config{
			BaseDir: app.cfg.Storage.LocalDir,
		})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		app.logger.Debug("local archive backend", zap.String("path", app.cfg.Storage.LocalDir))
	default:
		app.logger.Info("using in-memory archive backend")
		archive = memoryStorage.NewArchive()
	}
	return archive, nil
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.DB.DSN == "" {
		app.logger.Warn("No DSN specified for database, skipping run repository initialization")
		return nil
	}
	repo, err := pgstore.NewScorecardStore(ctx, pgstore.Config{
		DSN:      app.cfg.DB.DSN,
		MaxConns: app.cfg.DB.MaxConns,
		MinConns: app.cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("scorecard store init failed: %w", err)
	}
	app.runRepo = repo
	app.logger.Info("scorecard store initialized")
	return nil
}

func setupPublisher(ctx context.Context, app *App) (worker.Publisher, error) {
	if !app.cfg.PubSub.Enabled || app.cfg.PubSub.TopicID == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("No Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = app.pubsubClient.Publisher(app.cfg.PubSub.TopicID)
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicID),
	)
	return gcppublisher.New(app.pubsubPublisher), nil
}

func setupProgress(
	ctx context.Context,
	app *App,
	runRepo store.RunRepository,
) (progress.Emitter, error) {
	var sinkList []progress.Sink
	if runRepo != nil {
		sinkList = append(
			sinkList,
			progresssinks.NewStoreSink(runRepo, app.logger.Named("progress_store")),
		)
		app.logger.Debug("Added progress store sink")
	}
	sinkList = append(
		sinkList,
		progresssinks.NewLogSink(app.logger.Named("progress_log")),
	)
	// Default registry, so the API's /metrics endpoint serves run metrics
	// next to the HTTP and queue collectors.
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return nil, fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)

	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   app.cfg.Progress.MaxBatchWait,
		SinkTimeout:    app.cfg.Progress.SinkTimeout,
		BaseContext:    ctx,
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return app.progressHub, nil
}

func setupFetcher(app *App) fetch.Fetcher {
	client := fetch.NewClient(fetch.Config{
		UserAgent:     app.cfg.Fetch.UserAgent,
		Timeout:       app.cfg.Fetch.Timeout,
		MaxBodyBytes:  int(app.cfg.Fetch.MaxBodyBytes),
		RespectRobots: app.cfg.Fetch.RespectRobots,
		DomainRPS:     app.cfg.Fetch.DomainRPS,
		DomainBurst:   app.cfg.Fetch.DomainBurst,
		RetryAttempts: app.cfg.Fetch.RetryAttempts,
	}, app.logger.Named("fetch"))
	app.logger.Info("using static fetcher", zap.String("user_agent", app.cfg.Fetch.UserAgent))
	if !app.cfg.Headless.Enabled {
		return client
	}
	renderer, err := fetch.NewRenderer(fetch.RenderConfig{
		MaxParallel: app.cfg.Headless.MaxParallel,
		UserAgent:   app.cfg.Fetch.UserAgent,
		NavTimeout:  app.cfg.Headless.NavTimeout,
	})
	if err != nil {
		app.logger.Warn("headless renderer init failed, staying on static fetcher", zap.Error(err))
		return client
	}
	app.renderer = renderer
	heuristic := fetch.NewHeuristic(app.cfg.Headless.PromotionThresh)
	app.logger.Info("using headless promoter", zap.Int("max_parallel", app.cfg.Headless.MaxParallel))
	return fetch.NewPromoter(client, renderer, heuristic, app.logger.Named("fetch_promoter"))
}

func setupDispatcher(
	ctx context.Context,
	app *App,
	runs store.RunStore,
	archive archivestore.Archiver,
	publisher worker.Publisher,
	progressEmitter progress.Emitter,
	cancels *worker.CancelRegistry,
) (*dispatcher.Dispatcher, error) {
	clock := system.New()
	fetcher := setupFetcher(app)

	searcher, err := search.NewGoogle(ctx, search.Config{
		APIKey:     app.cfg.Search.APIKey,
		EngineID:   app.cfg.Search.EngineID,
		Timeout:    app.cfg.Search.Timeout,
		MaxResults: app.cfg.Search.MaxResults,
	}, app.logger.Named("search"))
	if err != nil {
		return nil, fmt.Errorf("search client init failed: %w", err)
	}

	analyzer, err := oracle.NewClient(oracle.Config{
		APIKey:    app.cfg.Oracle.APIKey,
		BaseURL:   app.cfg.Oracle.BaseURL,
		Model:     app.cfg.Oracle.Model,
		Timeout:   app.cfg.Oracle.Timeout,
		MaxTokens: app.cfg.Oracle.MaxTokens,
	}, app.logger.Named("oracle"))
	if err != nil {
		return nil, fmt.Errorf("oracle client init failed: %w", err)
	}

	eng, err := engine.New(
		EngineConfig(app.cfg),
		fetcher,
		searcher,
		analyzer,
		archive,
		progressEmitter,
		clock,
		app.logger.Named("engine"),
	)
	if err != nil {
		return nil, fmt.Errorf("engine init failed: %w", err)
	}

	workerCfg := worker.Config{
		Topic: app.cfg.PubSub.TopicID,
	}
	app.logger.Info("worker config",
		zap.String("topic", workerCfg.Topic),
		zap.Int("run_workers", app.cfg.Engine.RunWorkers),
	)

	var workers []*worker.Worker
	for i := 0; i < app.cfg.Engine.RunWorkers; i++ {
		workers = append(workers, worker.New(
			app.queue,
			runs,
			app.runRepo,
			eng,
			publisher,
			cancels,
			clock,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(app.queue, workers), nil
}

// EngineConfig maps the service configuration onto the engine's knobs.
func EngineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		MaxPDFs:                cfg.Engine.MaxDocuments,
		MaxPDFChars:            cfg.Engine.MaxDocumentChars,
		BatchSize:              cfg.Batch.Size,
		BatchOverlap:           cfg.Batch.Overlap,
		FirstChunk:             cfg.Batch.FirstChunk,
		MaxBatchesPerDoc:       cfg.Batch.MaxPerDocument,
		ReductionThreshold:     cfg.Batch.ReductionThreshold,
		MinKeptChars:           cfg.Batch.MinKeptChars,
		QueriesPerCriterion:    cfg.Engine.QueriesPerCriterion,
		SearchResults:          cfg.Search.MaxResults,
		MaxSearchPages:         cfg.Engine.MaxSearchPages,
		MaxCrawlPages:          cfg.Engine.MaxCrawlPages,
		MaxCrawlDepth:          cfg.Engine.CrawlDepth,
		QualityThreshold:       cfg.Engine.QualityThreshold,
		PriorityBudget:         cfg.Engine.PriorityBudget,
		SearchBudget:           cfg.Engine.SearchBudget,
		CrawlBudget:            cfg.Engine.CrawlBudget,
		Workers:                cfg.Engine.Workers,
		MinQuoteChars:          cfg.Evidence.MinQuoteChars,
		LowConfidenceWarn:      cfg.Evidence.LowConfidenceWarn,
		MentionThreshold:       cfg.Validator.MentionThreshold,
		DomainMentionThreshold: cfg.Validator.DomainMentionThreshold,
		MinTextChars:           cfg.Validator.MinTextChars,
		MinKeywordHits:         cfg.Validator.MinKeywordHits,
	}
}
