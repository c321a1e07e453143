// Package main is the entry point for the rebalancer daemon: it reads
// CONFIG.json, wires one scheduler tick per configured account plus the
// process-wide health check and backup jobs, and serves a read-only HTTP
// surface over the decision core.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/vvolkov/rebalancer/internal/app"
	"github.com/vvolkov/rebalancer/internal/clientdata"
	"github.com/vvolkov/rebalancer/internal/clients/broker"
	"github.com/vvolkov/rebalancer/internal/clients/exchangerate"
	"github.com/vvolkov/rebalancer/internal/clients/marketdata"
	"github.com/vvolkov/rebalancer/internal/config"
	"github.com/vvolkov/rebalancer/internal/database"
	"github.com/vvolkov/rebalancer/internal/domain"
	"github.com/vvolkov/rebalancer/internal/modules/catalog"
	"github.com/vvolkov/rebalancer/internal/modules/market_hours"
	"github.com/vvolkov/rebalancer/internal/reliability"
	"github.com/vvolkov/rebalancer/internal/scheduler"
	"github.com/vvolkov/rebalancer/internal/server"
	"github.com/vvolkov/rebalancer/pkg/logger"
)

func main() {
	var configPathFlag, dataDirFlag string
	var runOnce bool
	flag.StringVar(&configPathFlag, "config", "", "CONFIG.json path (overrides REBALANCER_CONFIG_PATH)")
	flag.StringVar(&dataDirFlag, "data-dir", "", "data directory override (overrides REBALANCER_DATA_DIR)")
	flag.BoolVar(&runOnce, "run-once", false, "run every configured account's tick once and exit, skipping the scheduler and HTTP server")
	flag.Parse()

	cfg, err := config.Load(configPathFlag)
	if err != nil {
		logger.New(logger.Config{Level: "info", Pretty: true}).Fatal().Err(err).Msg("failed to load configuration")
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	log.Info().Str("data_dir", cfg.DataDir).Int("accounts", len(cfg.Accounts)).Msg("starting rebalancer")

	restoreSvc := reliability.NewRestoreService(nil, cfg.DataDir, log)
	pending, err := restoreSvc.CheckPendingRestore()
	if err != nil {
		log.Error().Err(err).Msg("failed to check for pending restore")
	}
	if pending {
		log.Warn().Msg("pending restore detected, executing staged restore")
		if err := restoreSvc.ExecuteStagedRestore(); err != nil {
			log.Fatal().Err(err).Msg("failed to execute staged restore")
		}
	}

	catalogDB, err := database.New(database.Config{Path: filepath.Join(cfg.DataDir, "catalog.db"), Name: "catalog", Profile: database.ProfileStandard})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open catalog database")
	}
	defer catalogDB.Close()
	if err := catalogDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate catalog database")
	}

	priceCacheDB, err := database.New(database.Config{Path: filepath.Join(cfg.DataDir, "price_cache.db"), Name: "price_cache", Profile: database.ProfileCache})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open price cache database")
	}
	defer priceCacheDB.Close()
	if err := priceCacheDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate price cache database")
	}

	jobHistoryDB, err := database.New(database.Config{Path: filepath.Join(cfg.DataDir, "job_history.db"), Name: "job_history", Profile: database.ProfileCache})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open job history database")
	}
	defer jobHistoryDB.Close()
	if err := jobHistoryDB.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate job history database")
	}

	catalogRepo := database.NewCatalogRepo(catalogDB)
	jobHistoryRepo := database.NewJobHistoryRepo(jobHistoryDB)
	priceCacheRepo := database.NewPriceCacheRepo(priceCacheDB)

	quoteCache, err := clientdata.NewCache(filepath.Join(cfg.DataDir, "quote_cache"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open quote cache")
	}

	fxClient := marketdata.NewMemoizedFXSource(exchangerate.NewClient(log), clientdata.TTLExchangeRate)
	metricsWriter := catalog.NewMetricsWriter(cfg.DataDir, log)
	mdClient := marketdata.New(marketdata.Config{Metrics: metricsWriter, FX: fxClient, Log: log})

	ctx := context.Background()

	accounts := make([]app.Account, 0, len(cfg.Accounts))
	jobs := make([]*scheduler.AccountJob, 0, len(cfg.Accounts))
	for _, ac := range cfg.Accounts {
		brokerClient := broker.New(broker.Config{
			Log:        log,
			APIKey:     ac.TInvestToken,
			APISecret:  ac.TInvestToken,
			QuoteCache: quoteCache,
		})

		accountCatalog := loadAccountCatalog(ctx, brokerClient, catalogRepo, accountTickers(ac), log)
		catalogFn := constCatalog(accountCatalog)

		accounts = append(accounts, app.Account{
			ID:         ac.ID,
			Exchange:   ac.Exchange,
			Broker:     brokerClient,
			Catalog:    catalogFn,
			MarketData: mdClient,
			Cfg:        ac.ToBalancingConfig(),
		})

		jobs = append(jobs, scheduler.NewAccountJob(scheduler.AccountJobConfig{
			Log:                log,
			AccountID:          ac.ID,
			Exchange:           ac.Exchange,
			Broker:             brokerClient,
			Catalog:            catalogFn,
			MarketData:         mdClient,
			PriceCache:         priceCacheRepo,
			BalancingConfig:    ac.ToBalancingConfig(),
			ClosureBehavior:    market_hours.ExchangeClosureBehavior{Mode: market_hours.ClosureBehaviorMode(ac.ExchangeClosureBehavior.Mode)},
			SleepBetweenOrders: time.Duration(ac.SleepBetweenOrdersMS) * time.Millisecond,
		}))
	}

	registry := app.NewRegistry(accounts)
	runner := scheduler.NewRunner(log)

	for i, ac := range cfg.Accounts {
		historyJob := scheduler.WithHistory(jobs[i], jobHistoryRepo)

		if runOnce {
			if err := historyJob.Run(); err != nil {
				log.Error().Err(err).Str("account_id", ac.ID).Msg("account tick failed")
			}
			continue
		}

		if err := runner.Schedule(historyJob, time.Duration(ac.BalanceIntervalMS)*time.Millisecond); err != nil {
			log.Fatal().Err(err).Str("account_id", ac.ID).Msg("failed to schedule account job")
		}
	}

	if runOnce {
		log.Info().Msg("run-once complete, exiting")
		return
	}

	healthJob := scheduler.NewHealthCheckJob(scheduler.HealthCheckConfig{Log: log})
	if err := runner.Schedule(scheduler.WithHistory(healthJob, jobHistoryRepo), time.Minute); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule health check job")
	}

	if r2Client, err := reliability.NewR2Client(
		os.Getenv("R2_ACCOUNT_ID"), os.Getenv("R2_ACCESS_KEY_ID"), os.Getenv("R2_SECRET_ACCESS_KEY"), os.Getenv("R2_BUCKET"), log,
	); err == nil {
		backupSvc := reliability.NewBackupService(cfg.DataDir, "etf_metrics", "catalog")
		r2BackupSvc := reliability.NewR2BackupService(r2Client, backupSvc, cfg.DataDir, log)
		backupJob := scheduler.NewBackupJob(r2BackupSvc, 30, log)
		if err := runner.Schedule(scheduler.WithHistory(backupJob, jobHistoryRepo), 24*time.Hour); err != nil {
			log.Error().Err(err).Msg("failed to schedule backup job")
		}
	} else {
		log.Info().Msg("R2 backup disabled: no credentials configured")
	}

	runner.Start()
	log.Info().Msg("scheduler started")

	srv := server.New(server.Config{Port: cfg.Port, Log: log, Accounts: registry})
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("shutdown complete")
}

// constCatalog closes over an already-resolved catalog snapshot, matching
// the func() domain.Catalog shape app.Account and AccountJobConfig expect.
func constCatalog(cat domain.Catalog) func() domain.Catalog {
	return func() domain.Catalog { return cat }
}

// accountTickers collects the tickers an account's catalog needs resolved
// up front: its desired-wallet universe. Broker-reported positions outside
// that universe still flow through the engine via the wallet snapshot.
func accountTickers(ac config.AccountConfig) []string {
	tickers := make([]string, 0, len(ac.DesiredWallet))
	for t := range ac.DesiredWallet {
		tickers = append(tickers, t)
	}
	return tickers
}

// loadAccountCatalog resolves tickers against the broker's symbol lookup,
// persists the result, and returns it merged over whatever was already
// on disk from a previous run (freshly resolved entries win).
func loadAccountCatalog(ctx context.Context, brokerClient domain.BrokerClient, repo *database.CatalogRepo, tickers []string, log zerolog.Logger) domain.Catalog {
	persisted, err := repo.LoadAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load persisted catalog")
		persisted = domain.Catalog{}
	}

	builder := catalog.NewBuilder(brokerClient, log)
	resolved := builder.Load(tickers)
	for t, e := range resolved {
		if err := repo.Upsert(ctx, e, string(catalog.ProductTypeUnknown)); err != nil {
			log.Error().Err(err).Str("ticker", t).Msg("failed to persist catalog entry")
		}
	}

	return catalog.Merge(persisted, resolved)
}
