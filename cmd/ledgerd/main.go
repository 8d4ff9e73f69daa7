package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/josh-kwaku/custody-ledger/internal/amm"
	"github.com/josh-kwaku/custody-ledger/internal/config"
	"github.com/josh-kwaku/custody-ledger/internal/domain"
	"github.com/josh-kwaku/custody-ledger/internal/escrow"
	"github.com/josh-kwaku/custody-ledger/internal/events"
	"github.com/josh-kwaku/custody-ledger/internal/flashloan"
	"github.com/josh-kwaku/custody-ledger/internal/logging"
	"github.com/josh-kwaku/custody-ledger/internal/repository"
	"github.com/josh-kwaku/custody-ledger/internal/runtime"
	"github.com/josh-kwaku/custody-ledger/internal/service"
	"github.com/josh-kwaku/custody-ledger/internal/system"
	"github.com/josh-kwaku/custody-ledger/internal/token"
	"github.com/josh-kwaku/custody-ledger/internal/vault"
)

type store interface {
	runtime.Store
	Ping(ctx context.Context) error
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("ledgerd", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open account store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	facilities, _ := cfg.Facilities()
	policy, _ := cfg.RepayPolicy()
	rt := runtime.New(st, runtime.WithRent(cfg.Rent()))
	registerFacilities(rt, facilities, policy)
	logger.Info("facilities registered",
		"flash_loan", facilities.FlashLoan.String(),
		"vault", facilities.Vault.String(),
		"escrow", facilities.Escrow.String(),
		"exchange", facilities.Exchange.String(),
		"repay_policy", string(policy),
	)

	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		logger.Info("publishing events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		publisher = events.NewLogPublisher(logger)
	}
	defer publisher.Close()

	relay := service.NewEventRelay(publisher, logger, cfg.EventFlushInterval, cfg.EventBufferSize)
	relayDone := make(chan struct{})
	go func() {
		relay.Start(ctx)
		close(relayDone)
	}()

	node := service.NewNode(rt, relay, facilities)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           routes(node, st, cfg.OperatorJWTSecret, logger),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	<-relayDone
	logger.Info("server stopped")
}

// openStore picks PostgreSQL when a database URL is configured and the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory account store")
		return repository.NewMemoryStore(), func() {}, nil
	}

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
		ConnectAttempts:  cfg.DBConnectAttempts,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("openStore: %w", err)
	}
	if cfg.DBAutoMigrate {
		if err := repository.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("openStore: %w", err)
		}
	}
	return repository.NewAccountStore(repository.NewDB(db)), func() { db.Close() }, nil
}

func registerFacilities(rt *runtime.Runtime, f domain.Facilities, policy flashloan.Policy) {
	rt.Register(f.System, system.New())
	rt.Register(f.Token, token.New(f.Token, false))
	rt.Register(f.ExtendedToken, token.New(f.ExtendedToken, true))
	rt.Register(f.AssociatedToken, token.NewAssociated(f))
	rt.Register(f.FlashLoan, flashloan.New(f, policy))
	rt.Register(f.Vault, vault.New(f))
	rt.Register(f.Escrow, escrow.New(f))
	rt.Register(f.Exchange, amm.New(f))
}
