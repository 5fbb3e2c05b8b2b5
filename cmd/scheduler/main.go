package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopfloor/cnc-scheduler/config/logger"
	postgres "github.com/shopfloor/cnc-scheduler/config/storage/postgresql"
	redis "github.com/shopfloor/cnc-scheduler/config/storage/redis"
	config "github.com/shopfloor/cnc-scheduler/config/utils"
	"github.com/shopfloor/cnc-scheduler/internal/adapter/api"
	"github.com/shopfloor/cnc-scheduler/internal/adapter/queue/rabbitmq"
	"github.com/shopfloor/cnc-scheduler/internal/adapter/statusfile"
	pgstore "github.com/shopfloor/cnc-scheduler/internal/adapter/storage/postgres"
	redisstore "github.com/shopfloor/cnc-scheduler/internal/adapter/storage/redis"
	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
	"github.com/shopfloor/cnc-scheduler/internal/core/service"
	"go.uber.org/zap"
)

// _shutdownPeriod is time to wait before gracefully shutting server
// _readinessDrainDelay is time to sleep while context shutdown message propagate
const (
	_shutdownPeriod      = 10 * time.Second
	_readinessDrainDelay = 5 * time.Second
)

func main() {
	rootCtx, rootCtxCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCtxCancel()

	// Init config
	appConfig := config.New()
	baseLogger := logger.Build(appConfig.Logger)
	zap.L().Debug("Logger Builded successfully")

	zap.L().Info("Starting the application", zap.String("app", appConfig.App.Name), zap.String("env", appConfig.App.Env), zap.String("owner", appConfig.App.Owner))

	// Init database service
	dbLogger := baseLogger.Named("DB")
	dbService, err := postgres.New(rootCtx, appConfig.DB, dbLogger)
	if err != nil {
		zap.L().Error("Error initializing database connection", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Successfully connected to the database", zap.String("db", appConfig.DB.Connection))

	// Migrate database
	if err := dbService.Migrate(); err != nil {
		zap.L().Error("Error migrating database", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Successfully migrated the database")

	// Init cache service
	cacheService, err := redis.New(rootCtx, appConfig.Redis)
	if err != nil {
		zap.L().Error("Error initializing cache connection", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Successfully connected to the cache server", zap.String("address", appConfig.Redis.Addr))

	// Init broker connection
	queue, err := rabbitmq.NewDispatchQueue(appConfig.AMQP.URL, baseLogger.Named("AMQP"))
	if err != nil {
		zap.L().Error("Error initializing broker connection", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Successfully connected to the broker")

	// Material engine on top of the materials table
	materialStore := pgstore.NewMaterialRepository(dbService.Pool, baseLogger.Named("Materials"))
	material := service.NewMaterialEngine(materialStore, service.MaterialEngineConfig{
		LowStockThreshold:      appConfig.Materials.LowStockThreshold,
		CriticalStockThreshold: appConfig.Materials.CriticalStockThreshold,
		ChangeCosts:            service.ChangeCostMatrix(appConfig.Materials.ChangeCosts),
	}, baseLogger.Named("Materials"))
	if err := material.Load(rootCtx); err != nil {
		zap.L().Error("Error loading material records", zap.Error(err))
		os.Exit(1)
	}

	// Approval policy and its pending-request store
	approvalStore := redisstore.NewApprovalStore(cacheService.Client)
	approval := service.NewApprovalPolicy(appConfig.Scheduling.ApprovalPolicy, approvalStore, baseLogger.Named("Approval"))

	mirror := redisstore.NewFleetMirror(cacheService.Raw, baseLogger.Named("Mirror"))

	scheduler := service.NewScheduler(
		material,
		approval,
		approvalStore,
		mirror,
		baseLogger.Named("Scheduler"),
	)
	if appConfig.Scheduling.Strategy != "" {
		if err := scheduler.SetStrategy(appConfig.Scheduling.Strategy); err != nil {
			zap.L().Error("Invalid scheduling strategy", zap.Error(err))
			os.Exit(1)
		}
	}

	runner := service.NewRunner(
		scheduler,
		queue,
		time.Duration(appConfig.Scheduling.IntervalSeconds)*time.Second,
		baseLogger.Named("Runner"),
	)
	go func() {
		if err := runner.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			zap.L().Error("Runner stopped", zap.Error(err))
		}
	}()

	// Optional PLC-bridge status file
	if appConfig.Scheduling.StatusFile != "" {
		watcher := statusfile.NewWatcher(appConfig.Scheduling.StatusFile, func(state *domain.MachineState) {
			scheduler.UpdateMachineState(state)
		}, baseLogger.Named("StatusFile"))
		go func() {
			if err := watcher.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				zap.L().Error("Status file watcher stopped", zap.Error(err))
			}
		}()
	}

	// HTTP surface
	rest := api.NewREST(scheduler, material, baseLogger.Named("API"))
	server := &http.Server{
		Addr:    appConfig.HTTP.Addr,
		Handler: api.NewRouter(rest),
	}
	go func() {
		zap.L().Info("HTTP server listening", zap.String("addr", appConfig.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("HTTP server error", zap.Error(err))
			rootCtxCancel()
		}
	}()

	// Wait for ctx cancelation
	<-rootCtx.Done()

	// Wait for signal propagation
	time.Sleep(_readinessDrainDelay)
	zap.L().Info("Readiness check propagated, now waiting for ongoing requests to finish")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), _shutdownPeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	dbService.Close()
	zap.L().Info("Graceful shutdown complete.")
}
