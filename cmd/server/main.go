package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sheikh-saqib/token-ledger/internal/api"
	"github.com/sheikh-saqib/token-ledger/internal/auth"
	"github.com/sheikh-saqib/token-ledger/internal/config"
	"github.com/sheikh-saqib/token-ledger/internal/events/kafka"
	interfaces "github.com/sheikh-saqib/token-ledger/internal/interfaces"
	"github.com/sheikh-saqib/token-ledger/internal/ledger"
	"github.com/sheikh-saqib/token-ledger/internal/logger"
	"github.com/sheikh-saqib/token-ledger/internal/session"
	"github.com/sheikh-saqib/token-ledger/internal/storage/badger"
	"github.com/sheikh-saqib/token-ledger/internal/storage/memory"
	"github.com/sheikh-saqib/token-ledger/internal/storage/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.NewLogger(logger.Options{})
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.NewLogger(cfg.LogOptions())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to open ledger store")
	}
	defer closeStore()

	opts := []ledger.Option{ledger.WithLogger(log)}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		publisher := kafka.NewPublisher(brokers)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close kafka publisher")
			}
		}()
		opts = append(opts, ledger.WithPublisher(publisher, cfg.KafkaTopic))
		log.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTopic).Msg("Publishing transaction events")
	}

	ledgerService := ledger.NewLedger(store, opts...)
	authService := auth.NewService(ledgerService, log)
	sessions := session.NewManager(cfg.SessionSecret, cfg.SessionTTL)

	// validated in config.Load
	airdropZennies, _ := cfg.AirdropZennies()
	apiHandler := api.NewAPI(ledgerService, authService, sessions, airdropZennies, log)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(apiHandler, cfg.AllowedOrigins()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("driver", cfg.StoreDriver).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// openStore picks the backend named by STORE_DRIVER. The returned func
// releases whatever the backend holds open.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (interfaces.LedgerStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewPostgresLedgerStore(db), closer(db, log), nil

	case config.DriverBadger:
		store, err := badger.Open(cfg.BadgerDir, log)
		if err != nil {
			return nil, nil, err
		}
		return store, closer(store, log), nil

	default:
		return memory.NewMemoryLedgerStore(), func() {}, nil
	}
}

func closer(c io.Closer, log zerolog.Logger) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close ledger store")
		}
	}
}
