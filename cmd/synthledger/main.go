package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"SynthLedger/internal/config"
	"SynthLedger/internal/engine"
	"SynthLedger/internal/event"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/persistence"
	"SynthLedger/internal/registry"
	"SynthLedger/internal/server"
	"SynthLedger/internal/stream"
	"SynthLedger/internal/token"
)

func main() {
	configPath := flag.String("config", envOrDefault("SYNTH_CONFIG", "config.yaml"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: invalid config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := observability.NewLoggerWithLevel("main", level)
	logger.Info().Str("config", *configPath).Msg("SynthLedger starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("postgres ping")
	}
	logger.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	logger.Info().Msg("migrations applied")

	// --- NATS ---
	nc, err := nats.Connect(cfg.NATS.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		logger.Fatal().Err(err).Msg("jetstream init")
	}
	if err := stream.EnsureStream(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure outbound stream")
	}
	logger.Info().Str("url", cfg.NATS.URL).Msg("nats connected")

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Price feeds and registry ---
	listener := oracle.NewFeedListener(nc, observability.NewLoggerWithLevel("oracle", level))
	defer listener.Close()

	assets := make([]ledger.Asset, 0, len(cfg.Engine.Assets))
	feeds := make([]oracle.PriceFeed, 0, len(cfg.Engine.Assets))
	collateralTokens := make(map[ledger.Asset]token.CollateralToken, len(cfg.Engine.Assets))
	for _, a := range cfg.Engine.Assets {
		feed := oracle.NewLiveFeed()
		if err := listener.Listen(a.PriceSubject, feed); err != nil {
			logger.Fatal().Err(err).Str("asset", a.Symbol).Msg("subscribe price feed")
		}
		assets = append(assets, ledger.Asset(a.Symbol))
		feeds = append(feeds, feed)
		collateralTokens[ledger.Asset(a.Symbol)] = token.NewBook(engine.DefaultCustody)
	}

	reg, err := registry.New(assets, feeds)
	if err != nil {
		logger.Fatal().Err(err).Msg("build asset registry")
	}

	// --- Engine ---
	minHealthFactor, err := cfg.MinHealthFactor()
	if err != nil {
		logger.Fatal().Err(err).Msg("parse min health factor")
	}
	params := engine.Params{
		LiquidationThreshold: big.NewInt(cfg.Engine.LiquidationThreshold),
		LiquidationBonus:     big.NewInt(cfg.Engine.LiquidationBonus),
		LiquidationPrecision: big.NewInt(100),
		MinHealthFactor:      minHealthFactor,
	}

	persistChan := make(chan event.Envelope, cfg.Engine.PersistChanSize)
	publishChan := make(chan event.Envelope, cfg.Engine.PublishChanSize)

	eng, err := engine.New(engine.Config{
		Params:      params,
		Registry:    reg,
		Synthetic:   token.NewBook(engine.DefaultCustody),
		Collateral:  collateralTokens,
		Logger:      observability.NewLoggerWithLevel("engine", level),
		Metrics:     metrics,
		PersistChan: persistChan,
		PublishChan: publishChan,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("build engine")
	}

	// --- Workers and servers ---
	errChan := make(chan error, 8)

	worker := persistence.NewWorker(db, persistChan, cfg.Persistence.BatchSize, cfg.Persistence.FlushTimeout, metrics)
	go func() {
		errChan <- worker.Run(ctx)
	}()

	publisher := stream.NewPublisher(js, publishChan, observability.NewLoggerWithLevel("stream", level), metrics)
	go func() {
		errChan <- publisher.Run(ctx)
	}()

	grpcServer := server.NewGRPCServer(cfg.Server.GRPCAddr, observability.NewLoggerWithLevel("grpc", level))
	go func() {
		errChan <- grpcServer.Run(ctx)
	}()

	handler := server.NewHandler(eng, healthChecker)
	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: handler.Router(),
	}
	go func() {
		logger.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:    cfg.Server.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		logger.Info().Str("addr", cfg.Server.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.SetReady(true)
	grpcServer.SetServing(true)
	logger.Info().
		Str("http", cfg.Server.HTTPAddr).
		Str("grpc", cfg.Server.GRPCAddr).
		Str("metrics", cfg.Server.MetricsAddr).
		Msg("SynthLedger ready")

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("worker failed, shutting down")
	}

	healthChecker.SetReady(false)
	grpcServer.SetServing(false)

	// Stop accepting operations before tearing down the workers so nothing
	// sends on a channel the workers no longer drain.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	cancel()
	close(persistChan)
	close(publishChan)

	logger.Info().Msg("SynthLedger shutdown complete")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
