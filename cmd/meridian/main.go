package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meridianpos/meridian/internal/accounts"
	"github.com/meridianpos/meridian/internal/ap"
	"github.com/meridianpos/meridian/internal/app"
	"github.com/meridianpos/meridian/internal/ar"
	"github.com/meridianpos/meridian/internal/bankrec"
	"github.com/meridianpos/meridian/internal/journal"
	"github.com/meridianpos/meridian/internal/mappings"
	"github.com/meridianpos/meridian/internal/observability"
	"github.com/meridianpos/meridian/internal/periods"
	"github.com/meridianpos/meridian/internal/platform/cache"
	"github.com/meridianpos/meridian/internal/platform/db"
	"github.com/meridianpos/meridian/internal/posting"
	"github.com/meridianpos/meridian/internal/reports"
	"github.com/meridianpos/meridian/internal/shared"
)

// allowlistAuthorizer grants the period-reopen capability to configured user
// IDs. Production deployments put a real authorization service here.
type allowlistAuthorizer struct {
	userIDs map[int64]struct{}
}

func newAllowlistAuthorizer(ids []int64) allowlistAuthorizer {
	allowed := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	return allowlistAuthorizer{userIDs: allowed}
}

func (a allowlistAuthorizer) CanReopenPeriods(_ context.Context, _ int64, userID int64) (bool, error) {
	_, ok := a.userIDs[userID]
	return ok, nil
}

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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Reports fall back to hitting Postgres directly when the cache is
		// unreachable, so a missing Redis is not fatal for the API.
		logger.Warn("connect redis", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)

	accountsService := accounts.NewService(accounts.NewRepository(pool))
	accountsHandler := accounts.NewHandler(logger, accountsService)

	periodsService := periods.NewService(periods.NewRepository(pool),
		newAllowlistAuthorizer(cfg.PeriodReopenUserIDs), auditLogger)
	periodsHandler := periods.NewHandler(logger, periodsService)

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	ledgerMetrics := reports.NewInvalidator(logger, reportCache, metrics)

	journalService := journal.NewService(logger, journal.NewRepository(pool),
		periodsService, auditLogger, ledgerMetrics)
	journalHandler := journal.NewHandler(logger, journalService)

	mappingsService := mappings.NewService(mappings.NewRepository(pool))
	mappingsHandler := mappings.NewHandler(logger, mappingsService)

	apService := ap.NewService(logger, ap.NewRepository(pool), journalService, mappingsService, auditLogger)
	apHandler := ap.NewHandler(logger, apService)

	arService := ar.NewService(logger, ar.NewRepository(pool), journalService, mappingsService, auditLogger)
	arHandler := ar.NewHandler(logger, arService)

	postingService := posting.NewService(logger, journalService, mappingsService)
	postingHandler := posting.NewHandler(logger, postingService)

	bankrecService := bankrec.NewService(logger, bankrec.NewRepository(pool), metrics)
	bankrecHandler := bankrec.NewHandler(logger, bankrecService)

	reportsService := reports.NewService(logger, reports.NewRepository(pool), reportCache)
	reportsHandler := reports.NewHandler(logger, reportsService)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accountsHandler,
		PeriodsHandler:  periodsHandler,
		JournalHandler:  journalHandler,
		MappingsHandler: mappingsHandler,
		APHandler:       apHandler,
		ARHandler:       arHandler,
		PostingHandler:  postingHandler,
		BankRecHandler:  bankrecHandler,
		ReportsHandler:  reportsHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
