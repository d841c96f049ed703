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

	"github.com/odyssey-erp/odyssey-supply/internal/app"
	"github.com/odyssey-erp/odyssey-supply/internal/delivery"
	"github.com/odyssey-erp/odyssey-supply/internal/history"
	"github.com/odyssey-erp/odyssey-supply/internal/inventory"
	"github.com/odyssey-erp/odyssey-supply/internal/masterdata"
	"github.com/odyssey-erp/odyssey-supply/internal/observability"
	"github.com/odyssey-erp/odyssey-supply/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-supply/internal/platform/db"
	"github.com/odyssey-erp/odyssey-supply/internal/procurement"
	"github.com/odyssey-erp/odyssey-supply/internal/shared"
	"github.com/odyssey-erp/odyssey-supply/internal/users"
	"github.com/odyssey-erp/odyssey-supply/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGMaxConnLifetime})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
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

	metrics := observability.NewMetrics()
	events := shared.Publishers{metrics, jobClient}
	auditLogger := shared.NewAuditLogger(dbpool)
	locker := shared.NewDocumentLocker(redisClient, cfg.ApprovalLockTTL)

	masterService := masterdata.NewService(masterdata.NewRepository(dbpool), masterdata.NewCache(redisClient, cfg.MasterDataCacheTTL))
	userService := users.NewService(users.NewRepository(dbpool))
	historyService := history.NewService(history.NewRepository(dbpool))
	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), masterService, historyService, auditLogger, logger)

	procurementService := procurement.NewService(
		procurement.NewRepository(dbpool),
		masterService,
		userService,
		inventoryService,
		auditLogger,
		logger,
		procurement.ServiceConfig{Locker: locker, Events: events},
	)
	deliveryService := delivery.NewService(
		delivery.NewRepository(dbpool),
		masterService,
		userService,
		inventoryService,
		auditLogger,
		logger,
		delivery.ServiceConfig{Locker: locker, Events: events},
	)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Principals:         userService,
		ProcurementHandler: procurement.NewHandler(procurementService),
		DeliveryHandler:    delivery.NewHandler(deliveryService),
		InventoryHandler:   inventory.NewHandler(inventoryService),
		HistoryHandler:     history.NewHandler(historyService),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
		HealthChecks: map[string]app.HealthCheck{
			"postgres": dbpool.Ping,
			"redis": func(ctx context.Context) error {
				return cache.Ping(ctx, redisClient, 2*time.Second)
			},
		},
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
