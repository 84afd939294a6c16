package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/scc-sat-api/api/swagger"
	"github.com/noah-isme/scc-sat-api/internal/bootstrap"
	"github.com/noah-isme/scc-sat-api/internal/handler"
	internalmiddleware "github.com/noah-isme/scc-sat-api/internal/middleware"
	"github.com/noah-isme/scc-sat-api/internal/repository"
	"github.com/noah-isme/scc-sat-api/internal/service"
	"github.com/noah-isme/scc-sat-api/internal/upstream"
	"github.com/noah-isme/scc-sat-api/pkg/cache"
	"github.com/noah-isme/scc-sat-api/pkg/config"
	"github.com/noah-isme/scc-sat-api/pkg/jobs"
	"github.com/noah-isme/scc-sat-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/scc-sat-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/scc-sat-api/pkg/middleware/requestid"
	"github.com/noah-isme/scc-sat-api/pkg/storage"
)

// @title SCC SAT API
// @version 1.0.0
// @description Scholarship exam registration, referral and attendance ledger
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	backend, err := bootstrap.OpenBackend(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer backend.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	validate := service.NewValidator()

	statsCache, cacheClient := newStatsCache(ctx, cfg, backend, metrics, logr)
	if cacheClient != nil && cacheClient != backend.Redis {
		defer cacheClient.Close() //nolint:errcheck
	}

	ledger := service.NewLedgerService(repository.NewLedgerRepository(backend.Store, backend.Keys), statsCache, metrics, logr)
	if err := ledger.Load(ctx); err != nil {
		logr.Warn("starting with an in-memory ledger", zap.Error(err))
	}

	baseline := cfg.Exam.SeatBaseline
	if baseline <= 0 {
		baseline = service.DefaultSeatBaseline
	}
	seats := service.NewSequenceService(repository.NewSeatCounterRepository(backend.Store, backend.Keys), baseline, metrics, logr)
	referrals := service.NewReferralService(cfg.Exam.PromoCodes, ledger, metrics)

	drafts := service.NewDraftService(repository.NewDraftRepository(backend.Store, backend.Keys), logr)
	autosave := service.NewAutosaver(drafts, cfg.Drafts.AutosaveInterval, metrics, logr)

	var remote *upstream.Client
	if cfg.Upstream.URL != "" {
		remote = upstream.New(cfg.Upstream.URL, cfg.Upstream.Timeout)
		logr.Info("registration backend enabled", zap.String("url", cfg.Upstream.URL))
	}

	registrations := service.NewRegistrationService(seats, referrals, ledger, drafts, autosave, remote, validate, metrics, logr,
		service.RegistrationConfig{ExamYear: cfg.Exam.Year, ExamDate: cfg.Exam.Date})

	passwordHash := cfg.Admin.PasswordHash
	if passwordHash == "" {
		if cfg.Env == config.EnvProduction {
			return errors.New("ADMIN_PASSWORD_HASH is required in production")
		}
		passwordHash, err = service.HashPassword(cfg.Admin.Password)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
	}
	auth := service.NewAuthService(validate, logr, service.AuthConfig{
		Username:          cfg.Admin.Username,
		PasswordHash:      passwordHash,
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	exportFiles, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("open export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exporter := service.NewExportService(ledger, exportFiles, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
		ExamYear:  cfg.Exam.Year,
	}, logr, nil, nil)

	exportRepo := repository.NewExportJobRepository(backend.Store, backend.Keys)
	worker := service.NewExportWorker(exportRepo, exporter, metrics, logr)
	queue := jobs.NewQueue("ledger-exports", worker.Handle, jobs.QueueConfig{
		Workers:     cfg.Exports.WorkerConcurrency,
		MaxRetries:  cfg.Exports.WorkerRetries,
		Logger:      logr,
		OnExhausted: worker.MarkFailed,
	})
	exportJobs := service.NewExportJobService(exportRepo, queue, exporter, validate, logr, service.ExportJobServiceConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
	})

	queue.Start(ctx)
	defer queue.Stop()
	autosave.Start(ctx)
	defer autosave.Stop()
	exportJobs.StartCleanup(ctx)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(reqidmiddleware.Middleware())
	router.Use(logger.GinMiddleware(logr))
	router.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	router.Use(internalmiddleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
		"backend": backend.Ping,
		"ledger": func(context.Context) error {
			if !ledger.Loaded() {
				return errors.New("registrations snapshot not loaded, running in memory")
			}
			return nil
		},
	})
	router.GET("/health", metricsHandler.Health)
	router.GET("/ready", metricsHandler.Ready)
	router.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registrationHandler := handler.NewRegistrationHandler(registrations, referrals)
	draftHandler := handler.NewDraftHandler(drafts, autosave)
	authHandler := handler.NewAuthHandler(auth)
	ledgerHandler := handler.NewLedgerHandler(ledger, registrations, exporter)
	exportHandler := handler.NewExportHandler(exportJobs)
	limiter := internalmiddleware.NewRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.PerMinute)

	api := router.Group(cfg.APIPrefix)
	api.POST("/registrations", limiter.Handler(), registrationHandler.Register)
	api.GET("/referrals/validate", registrationHandler.ValidateReferral)
	api.GET("/drafts/:session", draftHandler.Get)
	api.PUT("/drafts/:session", draftHandler.Put)
	api.DELETE("/drafts/:session", draftHandler.Delete)
	api.GET("/exports/:token", exportHandler.Download)
	api.POST("/admin/login", limiter.Handler(), authHandler.Login)

	admin := api.Group("/admin", internalmiddleware.JWT(auth))
	admin.GET("/me", authHandler.Me)
	admin.GET("/registrations", ledgerHandler.List)
	admin.PATCH("/registrations/:seat/attendance", internalmiddleware.Audit(logr, "attendance.update"), ledgerHandler.UpdateAttendance)
	admin.DELETE("/registrations/:seat", internalmiddleware.Audit(logr, "registration.delete"), ledgerHandler.Delete)
	admin.GET("/registrations/:seat/whatsapp", ledgerHandler.WhatsApp)
	admin.GET("/referrers/:code", ledgerHandler.Referrer)
	admin.GET("/stats", ledgerHandler.Stats)
	admin.GET("/conflicts", ledgerHandler.Conflicts)
	admin.POST("/seats", internalmiddleware.Audit(logr, "seat.issue"), ledgerHandler.IssueSeat)
	admin.GET("/export.csv", ledgerHandler.ExportCSV)
	admin.POST("/exports", internalmiddleware.Audit(logr, "export.create"), exportHandler.Create)
	admin.GET("/exports/:id", exportHandler.Status)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "backend", backend.Name, "exam_year", cfg.Exam.Year)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server forced shutdown", zap.Error(err))
	}
	autosave.Flush(shutdownCtx)
	return nil
}

// newStatsCache returns a Redis-backed cache for admin statistics when enabled. The ledger's
// own Redis client is reused when the ledger lives in Redis.
func newStatsCache(ctx context.Context, cfg *config.Config, backend *bootstrap.Backend, metrics *service.MetricsService, logr *zap.Logger) (*service.CacheService, *redis.Client) {
	if !cfg.Stats.CacheEnabled {
		return nil, nil
	}
	client := backend.Redis
	if client == nil {
		var err error
		client, err = cache.NewRedis(ctx, cfg.Redis, 5*time.Second)
		if err != nil {
			logr.Warn("stats cache disabled, redis unreachable", zap.Error(err))
			return nil, nil
		}
	}
	repo := repository.NewCacheRepository(client, backend.Keys)
	return service.NewCacheService(repo, metrics, cfg.Stats.CacheTTL, logr, true), client
}
