package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/openaid/donation-market/internal/app"
	"github.com/openaid/donation-market/internal/app/httpapi"
	"github.com/openaid/donation-market/internal/app/metrics"
	"github.com/openaid/donation-market/internal/app/storage/postgres"
	"github.com/openaid/donation-market/internal/config"
	"github.com/openaid/donation-market/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/marketd.yaml", "path to configuration file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	owner := flag.String("owner", "", "owner identity (overrides config)")
	flag.Parse()

	if *owner != "" {
		os.Setenv("MARKETD_OWNER", *owner)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "marketd: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: "marketd",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var stores app.Stores
	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			log.WithError(err).Error("open database")
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.WithError(err).Error("ping database")
			os.Exit(1)
		}

		store := postgres.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			log.WithError(err).Error("prepare database schema")
			os.Exit(1)
		}
		stores = app.Stores{Actors: store, Listings: store, Requests: store, Ledger: store}
		log.Info("using postgres storage")
	} else {
		log.Info("using in-memory storage")
	}

	application, err := app.New(stores, app.Config{
		OwnerIdentity:       cfg.Market.OwnerIdentity,
		ConversionRate:      cfg.Market.ConversionRate,
		WalletLimit:         cfg.Market.WalletLimit,
		SupplyCeiling:       cfg.Market.SupplyCeiling,
		StrictCategoryMatch: cfg.Market.StrictCategoryMatch,
		EventHistory:        cfg.Events.History,
		EventLogPath:        cfg.Events.LogPath,
	}, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("start application")
		os.Exit(1)
	}

	identity := httpapi.NewIdentityMiddleware(
		cfg.Auth.StaticTokens,
		[]byte(cfg.Auth.JWTSecret),
		log,
		[]string{"/healthz", "/metrics"},
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", identity.Handler(httpapi.NewHandler(application)))

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      metrics.InstrumentHandler(mux),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("marketd listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop incomplete")
	}
	log.Info("marketd stopped")
}
