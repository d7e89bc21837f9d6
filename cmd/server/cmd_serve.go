package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jengzang/farm-advisory-backend-go/internal/api"
	"github.com/jengzang/farm-advisory-backend-go/internal/database"
	"github.com/jengzang/farm-advisory-backend-go/internal/environment"
	"github.com/jengzang/farm-advisory-backend-go/internal/events"
	"github.com/jengzang/farm-advisory-backend-go/internal/geocoding"
	"github.com/jengzang/farm-advisory-backend-go/internal/handler"
	"github.com/jengzang/farm-advisory-backend-go/internal/reconciler"
	"github.com/jengzang/farm-advisory-backend-go/internal/repository"
	"github.com/jengzang/farm-advisory-backend-go/internal/service"
	"github.com/jengzang/farm-advisory-backend-go/internal/upstream"
)

// maintenanceInterval is how often expired cache rows are purged and
// unpublished submissions are retried
const maintenanceInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	if err := database.Init(database.Config{Path: cfg.DBPath, Logger: logger}); err != nil {
		return err
	}
	defer database.Close()
	db := database.GetDB()

	if _, err := database.NewMigrationManager(db, logger).RunMigrations(ctx); err != nil {
		return err
	}

	httpClient := upstream.NewClient(cfg.Upstream.HTTPTimeout, cfg.Upstream.UserAgent, logger)
	places := geocoding.NewClient(cfg.Upstream.NominatimURL, cfg.Upstream.SearchLimit, httpClient, logger)
	cache := repository.NewEnvironmentCacheRepository(db)
	agg := environment.NewAggregator(
		environment.NewWeatherClient(cfg.Upstream.OpenMeteoURL, httpClient),
		environment.NewSoilClient(cfg.Upstream.SoilGridsURL, httpClient),
		places,
		cache,
		cfg.Upstream.CacheTTL,
		logger,
	)

	var fetcher reconciler.EnvironmentFetcher = environment.NewLocalFetcher(agg)
	if cfg.Upstream.EnvironmentEndpoint != "" {
		fetcher = environment.NewClient(cfg.Upstream.EnvironmentEndpoint, httpClient)
		logger.Info("using remote environment endpoint", zap.String("endpoint", cfg.Upstream.EnvironmentEndpoint))
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			return err
		}
		publisher = kp
		logger.Info("publishing submissions to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	defer publisher.Close()

	forms := service.NewFormService(fetcher, places, reconciler.Config{
		ClimateAutoFill:    cfg.Forms.ClimateAutoFill,
		ManualEntryVisible: cfg.Forms.ManualEntryVisible,
		FetchTimeout:       cfg.Forms.FetchTimeout,
	}, cfg.Forms.SessionTTL, logger)
	if cfg.Forms.SessionTTL > 0 {
		forms.StartSweeper(cfg.Forms.SessionTTL / 2)
	}
	defer forms.Close()

	envService := service.NewEnvironmentService(agg, fetcher, cache)
	submissions := service.NewSubmissionService(forms, repository.NewSubmissionRepository(db), publisher, logger)

	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(cfg, api.Handlers{
		Location:    handler.NewLocationHandler(service.NewLocationService(forms, cfg.Acquisition, logger)),
		Geocoding:   handler.NewGeocodingHandler(service.NewGeocodingService(places, cfg.Upstream.SearchDebounce)),
		Environment: handler.NewEnvironmentHandler(envService),
		Forms:       handler.NewFormHandler(forms, submissions),
	}, logger)

	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go maintain(ctx, envService, submissions)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func maintain(ctx context.Context, env *service.EnvironmentService, submissions *service.SubmissionService) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := env.PurgeCache(ctx); err != nil {
				logger.Warn("cache purge failed", zap.Error(err))
			} else if n > 0 {
				logger.Debug("purged expired cache rows", zap.Int64("rows", n))
			}
			if n, err := submissions.RetryUnpublished(ctx); err != nil {
				logger.Warn("submission retry failed", zap.Int("published", n), zap.Error(err))
			} else if n > 0 {
				logger.Info("published pending submissions", zap.Int("count", n))
			}
		}
	}
}
