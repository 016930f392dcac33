package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	appconfig "remitlend/config"
	"remitlend/core"
	"remitlend/core/events"
	"remitlend/native/common"
	"remitlend/observability"
	"remitlend/observability/logging"
	"remitlend/observability/metrics"
	telemetry "remitlend/observability/otel"
	"remitlend/services/lendingd/config"
	"remitlend/services/lendingd/indexer"
	"remitlend/services/lendingd/server"
	"remitlend/services/lendingd/webhook"
	"remitlend/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("REMITLEND_ENV"))
	logOpts := logging.Options{Level: logging.ParseLevel(cfg.Logging.Level)}
	if cfg.Logging.File != "" {
		logOpts.File = &logging.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   true,
		}
	}
	logger := logging.Setup("lendingd", env, logOpts)

	shutdownTelemetry, err := telemetry.Init(context.Background(), cfg.Telemetry.Exporter("lendingd", os.LookupEnv))
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("open storage: %v", err)
	}
	defer db.Close()

	genesis, err := appconfig.LoadGenesis(cfg.GenesisPath)
	if err != nil {
		log.Fatalf("load genesis: %v", err)
	}

	indexDB, err := indexer.Open(cfg.Index.Driver, cfg.Index.DSN)
	if err != nil {
		log.Fatalf("open event index: %v", err)
	}
	idx, err := indexer.New(indexDB, logger)
	if err != nil {
		log.Fatalf("init event index: %v", err)
	}
	defer func() {
		if sqlDB, err := indexDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	lendingMetrics := metrics.Lending()
	sink := events.NewFanout(
		events.LogEmitter{Logger: logger, Level: slog.LevelDebug},
		observability.Events(),
		core.LoanTransitionSink{Metrics: lendingMetrics},
		idx,
	)
	if cfg.Webhook.Enabled() {
		dispatcher, err := webhook.NewDispatcher(cfg.Webhook.URL, []byte(cfg.Webhook.Secret),
			webhook.WithTypes(cfg.Webhook.Types...),
			webhook.WithRetryPolicy(cfg.Webhook.MaxAttempts, 0, 0),
			webhook.WithLogger(logger),
		)
		if err != nil {
			log.Fatalf("init webhook: %v", err)
		}
		defer dispatcher.Close()
		sink.Add(dispatcher)
		logger.Info("webhook delivery enabled", slog.Int("types", len(cfg.Webhook.Types)))
	}
	ledger, err := core.New(db,
		core.WithEmitter(sink),
		core.WithPauses(genesis.PauseSet()),
		core.WithMetrics(lendingMetrics),
		core.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	if err := ledger.Bootstrap(context.Background(), genesis); err != nil {
		if !errors.Is(err, common.ErrAlreadyInitialized) {
			log.Fatalf("bootstrap ledger: %v", err)
		}
		logger.Info("ledger already bootstrapped", slog.String("asset", ledger.Asset()))
	} else {
		logger.Info("ledger bootstrapped from genesis", slog.String("asset", ledger.Asset()), slog.String("genesis", cfg.GenesisPath))
	}

	auth := server.NewAuthenticator(cfg.Auth, logger)
	limiter := server.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	srv := server.New(ledger, idx, auth, server.Options{
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
	})

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.ListenAddress, err)
	}
	if !cfg.TLS.Enabled() {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			log.Fatalf("plaintext lendingd mode is restricted to loopback listeners or dev environment")
		}
	}

	httpServer := &http.Server{
		Handler:           otelhttp.NewHandler(srv.Routes(), "lendingd"),
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", slog.String("addr", cfg.ListenAddress), slog.Bool("tls", cfg.TLS.Enabled()))
		if cfg.TLS.Enabled() {
			serverErr <- httpServer.ServeTLS(listener, cfg.TLS.CertPath, cfg.TLS.KeyPath)
			return
		}
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.String("error", err.Error()))
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}
}

func openStorage(cfg config.Config) (storage.Database, error) {
	if cfg.Storage == "memory" {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, err
	}
	return storage.NewLevelDB(cfg.DataDir)
}
