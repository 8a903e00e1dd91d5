package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/greenproof/fleetscore/internal/clock/system"
	"github.com/greenproof/fleetscore/internal/config"
	"github.com/greenproof/fleetscore/internal/engine"
	"github.com/greenproof/fleetscore/internal/export"
	"github.com/greenproof/fleetscore/internal/fetch"
	"github.com/greenproof/fleetscore/internal/logging"
	"github.com/greenproof/fleetscore/internal/oracle"
	"github.com/greenproof/fleetscore/internal/progress"
	progresssinks "github.com/greenproof/fleetscore/internal/progress/sinks"
	"github.com/greenproof/fleetscore/internal/search"
	"github.com/greenproof/fleetscore/internal/server"
	archivestore "github.com/greenproof/fleetscore/internal/storage"
	gcsstorage "github.com/greenproof/fleetscore/internal/storage/gcs"
	localstorage "github.com/greenproof/fleetscore/internal/storage/local"
	memoryStorage "github.com/greenproof/fleetscore/internal/storage/memory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newAnalyzeCmd creates and configures the 'analyze' subcommand.
// It scores one company without starting the service and writes the
// consolidated scorecard to the export directory.
func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <company name>",
		Short: "Scores one company and writes the scorecard to disk",
		Long: `Runs the full evidence hunt for a single company: priority documents
first, then targeted search, then a bounded site crawl. The consolidated
scorecard is written as JSON under the configured export directory and
its path is printed on stdout.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAnalyzeCommand,
	}
	return cmd
}

func runAnalyzeCommand(cmd *cobra.Command, args []string) error {
	entity := strings.TrimSpace(strings.Join(args, " "))
	if entity == "" {
		return errors.New("company name is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	archive, closeArchive, err := buildArchive(ctx, &cfg)
	if err != nil {
		return err
	}
	defer closeArchive()

	hub := progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.Progress.MaxBatchWait,
		SinkTimeout:    cfg.Progress.SinkTimeout,
		BaseContext:    ctx,
		Logger:         logger.Named("progress_hub"),
	}, progresssinks.NewLogSink(logger.Named("progress")))

	eng, closeEngine, err := buildScoringEngine(ctx, &cfg, archive, hub, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	logger.Info("analysis started", zap.String("entity", entity))
	res, runErr := eng.Run(ctx, entity)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := hub.Close(closeCtx); cerr != nil {
		logger.Warn("progress hub close failed", zap.Error(cerr))
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("analysis canceled, no scorecard written")
			return nil
		}
		return fmt.Errorf("run analysis: %w", runErr)
	}

	path, err := export.Write(cfg.Export.Dir, res)
	if err != nil {
		return fmt.Errorf("write scorecard: %w", err)
	}
	logger.Info("scorecard written",
		zap.String("path", path),
		zap.Int("found", res.Found),
		zap.Float64("quality", res.Quality),
		zap.Bool("complete", res.Complete),
	)
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// buildArchive selects the snapshot backend for a one-shot run. The
// returned closer releases the GCS client when that backend is in use.
func buildArchive(ctx context.Context, cfg *config.Config) (archivestore.Archiver, func(), error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		archive, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: cfg.Storage.Prefix,
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		return archive, func() { _ = client.Close() }, nil
	case "local":
		archive, err := localstorage.New(localstorage.Config{
			BaseDir: cfg.Storage.LocalDir,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("local archive init failed: %w", err)
		}
		return archive, func() {}, nil
	default:
		return memoryStorage.NewArchive(), func() {}, nil
	}
}

func buildScoringEngine(
	ctx context.Context,
	cfg *config.Config,
	archive archivestore.Archiver,
	emitter progress.Emitter,
	logger *zap.Logger,
) (*engine.Engine, func(), error) {
	fetcher, closeFetcher := buildFetcher(cfg, logger)

	searcher, err := search.NewGoogle(ctx, search.Config{
		APIKey:     cfg.Search.APIKey,
		EngineID:   cfg.Search.EngineID,
		Timeout:    cfg.Search.Timeout,
		MaxResults: cfg.Search.MaxResults,
	}, logger.Named("search"))
	if err != nil {
		closeFetcher()
		return nil, nil, fmt.Errorf("search client init failed: %w", err)
	}

	analyzer, err := oracle.NewClient(oracle.Config{
		APIKey:    cfg.Oracle.APIKey,
		BaseURL:   cfg.Oracle.BaseURL,
		Model:     cfg.Oracle.Model,
		Timeout:   cfg.Oracle.Timeout,
		MaxTokens: cfg.Oracle.MaxTokens,
	}, logger.Named("oracle"))
	if err != nil {
		closeFetcher()
		return nil, nil, fmt.Errorf("oracle client init failed: %w", err)
	}

	eng, err := engine.New(
		server.EngineConfig(cfg),
		fetcher,
		searcher,
		analyzer,
		archive,
		emitter,
		system.New(),
		logger.Named("engine"),
	)
	if err != nil {
		closeFetcher()
		return nil, nil, fmt.Errorf("engine init failed: %w", err)
	}
	return eng, closeFetcher, nil
}

func buildFetcher(cfg *config.Config, logger *zap.Logger) (fetch.Fetcher, func()) {
	client := fetch.NewClient(fetch.Config{
		UserAgent:     cfg.Fetch.UserAgent,
		Timeout:       cfg.Fetch.Timeout,
		MaxBodyBytes:  int(cfg.Fetch.MaxBodyBytes),
		RespectRobots: cfg.Fetch.RespectRobots,
		DomainRPS:     cfg.Fetch.DomainRPS,
		DomainBurst:   cfg.Fetch.DomainBurst,
		RetryAttempts: cfg.Fetch.RetryAttempts,
	}, logger.Named("fetch"))
	if !cfg.Headless.Enabled {
		return client, func() {}
	}
	renderer, err := fetch.NewRenderer(fetch.RenderConfig{
		MaxParallel: cfg.Headless.MaxParallel,
		UserAgent:   cfg.Fetch.UserAgent,
		NavTimeout:  cfg.Headless.NavTimeout,
	})
	if err != nil {
		logger.Warn("headless renderer init failed, staying on static fetcher", zap.Error(err))
		return client, func() {}
	}
	heuristic := fetch.NewHeuristic(cfg.Headless.PromotionThresh)
	promoter := fetch.NewPromoter(client, renderer, heuristic, logger.Named("fetch_promoter"))
	return promoter, renderer.Close
}
