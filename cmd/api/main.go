package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio_translation_go_backend/cmd/api/config"
	"portfolio_translation_go_backend/internal/api"
	"portfolio_translation_go_backend/internal/database"
	"portfolio_translation_go_backend/internal/metrics"
	"portfolio_translation_go_backend/internal/providers"
	"portfolio_translation_go_backend/internal/services"
	"portfolio_translation_go_backend/internal/utils/broker"
	"portfolio_translation_go_backend/internal/wsocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

type app struct {
	cfg        *config.Config
	db         *gorm.DB
	broker     *broker.Broker
	metrics    *metrics.PrometheusRecorder
	cache      *services.CacheService
	analytics  *services.AnalyticsService
	translator *services.TranslationService
	queue      *services.JobQueueService
	mapper     *services.FieldMapper
}

func main() {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "api",
		Short:         "Translation service for the portfolio backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (environment variables take precedence)")

	var withWorker bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfgFile)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), withWorker)
		},
	}
	serveCmd.Flags().BoolVar(&withWorker, "with-worker", false, "Also process queued jobs in this process")

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued translation jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfgFile)
			if err != nil {
				return err
			}
			a.newWorker().Run(cmd.Context())
			a.wait()
			return nil
		},
	}

	maintenanceCmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Expire cache rows, reset stuck jobs and apply retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfgFile)
			if err != nil {
				return err
			}
			return a.maintenance(cmd.Context())
		},
	}

	rootCmd.AddCommand(serveCmd, workerCmd, maintenanceCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func setupLogging(debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func newApp(cfgFile string) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Debug)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		db:      db,
		broker:  broker.NewBroker(),
		metrics: metrics.NewPrometheusRecorder(),
	}

	ps := providers.Build(cfg.Providers())
	selector := providers.NewSelector(ps, cfg.ProviderPriority...)
	for _, p := range selector.Available() {
		log.Info().Str("provider", p.Name()).Msg("Translation provider configured")
	}
	if len(selector.Available()) == 0 {
		log.Warn().Msg("No translation provider has credentials; translations will fail")
	}

	a.cache = services.NewCacheService(services.NewCacheServiceDB(db), cfg.CacheTTL)
	a.analytics = services.NewAnalyticsService(services.NewAnalyticsServiceDB(db))
	a.translator = services.NewTranslationService(
		selector,
		a.cache,
		a.analytics,
		services.NewRateLimiter(cfg.RateLimitPerMinute),
		services.TranslationConfig{
			RetryAttempts:   cfg.RetryAttempts,
			RetryDelay:      cfg.RetryDelay,
			BatchSize:       cfg.BatchSize,
			MaxTextLength:   cfg.MaxTextLength,
			ProviderTimeout: cfg.ProviderTimeout,
		},
	)
	a.translator.SetMetricsRecorder(a.metrics)

	a.queue = services.NewJobQueueService(services.NewJobQueueServiceDB(db), services.QueueConfig{
		MaxRetries:        cfg.QueueMaxRetries,
		ProcessingTimeout: cfg.QueueProcessingTimeout,
	})
	a.queue.SetPublisher(a.broker)
	a.queue.SetMetricsRecorder(a.metrics)
	a.translator.AttachQueue(a.queue)

	a.mapper = services.NewFieldMapper(services.NewFieldMapperServiceDB(db), a.translator, cfg.WorkerBatchSize)
	return a, nil
}

func (a *app) newWorker() *services.JobWorker {
	return services.NewJobWorker(a.queue, a.translator, a.mapper, services.WorkerConfig{
		PollInterval: a.cfg.QueuePollInterval,
		BatchSize:    a.cfg.WorkerBatchSize,
	})
}

// wait flushes background cache and analytics writes.
func (a *app) wait() {
	a.cache.Wait()
	a.analytics.Wait()
}

func (a *app) router() *gin.Engine {
	r := gin.Default()

	// CORS middleware configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.SetupRoutes(r, api.Dependencies{
		Translator:  a.translator,
		Queue:       a.queue,
		Cache:       a.cache,
		Analytics:   a.analytics,
		Mapper:      a.mapper,
		AdminSecret: a.cfg.AdminJWTSecret,
		Metrics:     a.metrics.Handler(),
	})

	allowed := make(map[string]bool, len(a.cfg.AllowedOrigins))
	for _, origin := range a.cfg.AllowedOrigins {
		allowed[origin] = true
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
	wsHandler := wsocket.NewHandler(a.queue, a.broker, upgrader, a.cfg.QueuePollInterval)
	r.GET("/ws/jobs/:id", func(c *gin.Context) {
		wsHandler.HandleJobStatus(c.Writer, c.Request, c.Param("id"))
	})
	return r
}

func (a *app) serve(ctx context.Context, withWorker bool) error {
	a.cache.StartCleanup(ctx, a.cfg.CacheCleanupInterval)

	workerDone := make(chan struct{})
	if withWorker {
		go func() {
			defer close(workerDone)
			a.newWorker().Run(ctx)
		}()
	} else {
		close(workerDone)
	}

	srv := &http.Server{
		Addr:    ":" + a.cfg.Port,
		Handler: a.router(),
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", a.cfg.Port).Bool("worker", withWorker).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	<-workerDone
	a.wait()
	return nil
}

func (a *app) maintenance(ctx context.Context) error {
	expired, err := a.cache.CleanExpired(ctx)
	if err != nil {
		return err
	}
	reset, err := a.queue.ResetStuckJobs(ctx)
	if err != nil {
		return err
	}
	records, buckets, err := a.analytics.CleanOldData(ctx, a.cfg.AnalyticsRetention)
	if err != nil {
		return err
	}
	jobs, err := a.queue.CleanOldJobs(ctx, a.cfg.JobRetention)
	if err != nil {
		return err
	}
	log.Info().
		Int64("expired_cache_entries", expired).
		Int64("reset_jobs", reset).
		Int64("analytics_records", records).
		Int64("metric_buckets", buckets).
		Int64("old_jobs", jobs).
		Msg("Maintenance complete")
	return nil
}
