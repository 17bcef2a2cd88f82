package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	_ "github.com/joho/godotenv/autoload"

	"github.com/salesdesk/salesdesk/internal/app"
	"github.com/salesdesk/salesdesk/internal/auth"
	"github.com/salesdesk/salesdesk/internal/observability"
	"github.com/salesdesk/salesdesk/internal/platform/cache"
	"github.com/salesdesk/salesdesk/internal/platform/db"
	"github.com/salesdesk/salesdesk/internal/platform/worker"
	"github.com/salesdesk/salesdesk/internal/rbac"
	"github.com/salesdesk/salesdesk/internal/refdata"
	"github.com/salesdesk/salesdesk/internal/roles"
	"github.com/salesdesk/salesdesk/internal/sales"
	"github.com/salesdesk/salesdesk/internal/users"
	"github.com/salesdesk/salesdesk/jobs"
	"github.com/salesdesk/salesdesk/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	policy, err := rbac.LoadPolicy(cfg.AuthzPolicyFile)
	if err != nil {
		logger.Error("load authz policy", slog.Any("error", err))
		os.Exit(1)
	}
	resolver := rbac.NewResolver(policy)
	rbacMiddleware := rbac.Middleware{Logger: logger}
	metrics := observability.NewMetrics()

	usersService := users.NewService(users.NewRepository(dbpool))
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)
	rolesHandler := roles.NewHandler(logger, roles.NewService(roles.NewRepository(dbpool)), rbacMiddleware)

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		os.Exit(1)
	}
	credentials := auth.CredentialStoreFunc(func(ctx context.Context, email string) (auth.Credentials, error) {
		c, err := usersService.Credentials(ctx, email)
		return auth.Credentials(c), err
	})
	guard := auth.NewLoginGuard(redisClient, cfg.LoginMaxAttempts, cfg.LoginLockWindow)
	authHandler := auth.NewHandler(logger, auth.NewService(credentials, tokens, guard, logger))

	refdataService := refdata.NewService(refdata.NewRepository(dbpool), refdata.NewCache(redisClient, cfg.RefdataCacheTTL), logger)
	refdataHandler := refdata.NewHandler(logger, refdataService, rbacMiddleware)

	notifyPool, err := worker.New(ctx, worker.Config{Size: cfg.NotifyPoolSize, Logger: logger})
	if err != nil {
		logger.Error("init notify pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer notifyPool.Close(5 * time.Second)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	store, err := sales.NewLocalStore(cfg.UploadDir, "uploads", cfg.UploadMaxBytes)
	if err != nil {
		logger.Error("init upload store", slog.Any("error", err))
		os.Exit(1)
	}

	salesService := sales.NewService(sales.NewRepository(dbpool), refdataService, resolver, logger)
	salesService.SetClock(time.Now, cfg.Location())
	salesService.SetAttachmentStore(store)
	salesService.SetMetrics(metrics)
	salesService.SetNotifier(sales.NewQueueNotifier(notifyPool, usersService, jobClient, metrics, logger))

	var pdf sales.PDFRenderer
	if client := report.NewClient(cfg.GotenbergURL, report.WithLandscape()); client != nil {
		pdf = client
	}
	exporter, err := sales.NewExporter(pdf)
	if err != nil {
		logger.Error("init exporter", slog.Any("error", err))
		os.Exit(1)
	}
	salesHandler := sales.NewHandler(logger, salesService, exporter, rbacMiddleware)
	salesHandler.SetMaxUploadBytes(cfg.UploadMaxBytes)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Tokens:             tokens,
		AuthHandler:        authHandler,
		SalesHandler:       salesHandler,
		RefdataHandler:     refdataHandler,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(resolver, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
		UploadDir:          cfg.UploadDir,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
