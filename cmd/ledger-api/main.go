package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-ledger/config"
	httpHandler "wallet-ledger/internal/adapter/http/handler"
	"wallet-ledger/internal/adapter/http/middleware"
	amqpPublisher "wallet-ledger/internal/adapter/messaging/amqp"
	memStorage "wallet-ledger/internal/adapter/storage/memory"
	pgStorage "wallet-ledger/internal/adapter/storage/postgres"
	redisStorage "wallet-ledger/internal/adapter/storage/redis"
	sqliteStorage "wallet-ledger/internal/adapter/storage/sqlite"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/service"
	"wallet-ledger/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// backend is one storage driver's set of ports.
type backend struct {
	wallets    ports.WalletRepository
	txns       ports.TransactionRepository
	ledger     ports.LedgerStore
	transactor ports.DBTransactor
	health     ports.HealthChecker
	close      func()
}

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./config.yaml if present)")
	issueToken := flag.String("issue-token", "", "print a bearer token for this subject and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	var tokenSvc ports.TokenService
	if cfg.JWT.Secret != "" {
		tokenSvc = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	}
	if *issueToken != "" {
		if tokenSvc == nil {
			log.Fatal().Msg("jwt.secret is not set, cannot issue tokens")
		}
		token, exp, err := tokenSvc.Generate(*issueToken)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to issue token")
		}
		fmt.Printf("%s\n# expires %s\n", token, exp.Format(time.RFC3339))
		return
	}

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting wallet ledger")

	ctx := context.Background()

	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open storage")
	}
	defer store.close()

	checkers := []ports.HealthChecker{store.health}

	var (
		cache   ports.BalanceCache
		limiter middleware.WriteLimiter
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		cache = redisStorage.NewBalanceCache(rdb, cfg.Redis.BalanceTTL)
		if cfg.Redis.WriteLimit > 0 {
			limiter = redisStorage.NewWriteLimiter(rdb, cfg.Redis.WriteLimit, cfg.Redis.WriteWindow)
		}
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	}

	var publisher ports.EventPublisher
	if cfg.AMQP.Enabled {
		p, err := amqpPublisher.NewPublisher(cfg.AMQP, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to AMQP broker")
		}
		defer p.Close()
		publisher = p
	}

	ledgerLog := logger.Component(log, "ledger")
	reconcilerSvc := service.NewReconcilerService(store.wallets, store.ledger, store.transactor, cache, ledgerLog)
	nettingSvc := service.NewNettingService(
		store.wallets,
		store.txns,
		store.ledger,
		reconcilerSvc,
		store.transactor,
		cache,
		publisher,
		ledgerLog,
	)
	balanceSvc := service.NewBalanceService(store.wallets, store.ledger, cache, ledgerLog)
	masterSvc := service.NewMasterDataService(store.wallets, store.txns, ledgerLog)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		NettingSvc:     nettingSvc,
		ReconcilerSvc:  reconcilerSvc,
		BalanceSvc:     balanceSvc,
		MasterSvc:      masterSvc,
		TokenSvc:       tokenSvc,
		WriteLimiter:   limiter,
		HealthCheckers: checkers,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger.Component(log, "http"),
	})

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Bool("auth", tokenSvc != nil).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func openBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if err := pgStorage.RunMigrations(cfg.Database.DSN(), log); err != nil {
			return nil, err
		}
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, err
		}
		return &backend{
			wallets:    pgStorage.NewWalletRepo(pool),
			txns:       pgStorage.NewTransactionRepo(pool),
			ledger:     pgStorage.NewLedgerStore(pool),
			transactor: pgStorage.NewTransactor(pool),
			health:     pgStorage.NewHealthCheck(pool),
			close:      pool.Close,
		}, nil

	case config.DriverSQLite:
		db, err := sqliteStorage.Open(ctx, cfg.SQLite.Path, log)
		if err != nil {
			return nil, err
		}
		return &backend{
			wallets:    sqliteStorage.NewWalletRepo(db),
			txns:       sqliteStorage.NewTransactionRepo(db),
			ledger:     sqliteStorage.NewLedgerStore(db),
			transactor: sqliteStorage.NewTransactor(db),
			health:     sqliteStorage.NewHealthCheck(db),
			close: func() {
				if err := db.Close(); err != nil {
					log.Warn().Err(err).Msg("closing sqlite database")
				}
			},
		}, nil

	case config.DriverMemory:
		log.Warn().Msg("memory storage selected, ledger state is lost on exit")
		s := memStorage.NewStore()
		return &backend{
			wallets:    s.Wallets(),
			txns:       s.Transactions(),
			ledger:     s,
			transactor: s,
			health:     s,
			close:      func() {},
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
