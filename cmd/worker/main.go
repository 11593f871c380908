package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridianpos/meridian/internal/app"
	"github.com/meridianpos/meridian/internal/bankrec"
	jobmetrics "github.com/meridianpos/meridian/internal/jobs"
	"github.com/meridianpos/meridian/internal/observability"
	"github.com/meridianpos/meridian/internal/platform/db"
	"github.com/meridianpos/meridian/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	trackers := jobmetrics.NewMetrics(metrics.Registerer())

	bankService := bankrec.NewService(logger, bankrec.NewRepository(pool), metrics)

	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskBankImport, Handler: jobs.NewBankImportHandler(bankService, trackers, logger)},
			{Type: jobs.TaskBankAutoMatch, Handler: jobs.NewBankAutoMatchHandler(bankService, trackers, logger)},
		},
	})

	logger.Info("starting worker", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exited", slog.Any("error", err))
		os.Exit(1)
	}
}
