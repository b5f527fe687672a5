package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"oraclepair/config"
	"oraclepair/core/events"
	"oraclepair/observability"
	"oraclepair/observability/logging"
	telemetry "oraclepair/observability/otel"
	"oraclepair/services/paird/node"
	"oraclepair/services/paird/server"
	"oraclepair/services/paird/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "paird.toml", "path to paird configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("paird: load config: %v", err)
	}

	logger, err := logging.SetupWithOptions(logging.Options{
		Service:    "paird",
		Env:        cfg.Environment,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("paird: configure logging: %v", err)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "paird",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatalf("paird: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	if err := run(cfgPath, cfg, logger); err != nil {
		logger.Error("paird exited", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string, cfg *config.Config, logger *slog.Logger) error {
	genesis, err := config.LoadGenesis(cfg.GenesisPath(cfgPath))
	if err != nil {
		return err
	}

	n, err := node.Open(cfg, genesis, logger)
	if err != nil {
		return err
	}
	defer n.Close()

	history, err := storage.Open(cfg.History.Driver, cfg.HistoryDSN())
	if err != nil {
		return err
	}
	defer history.Close()
	dsn := cfg.HistoryDSN()
	if cfg.History.Driver == config.HistoryPostgres {
		dsn = logging.MaskDSN(dsn)
	}
	logger.Info("swap history ready", "driver", cfg.History.Driver, slog.String("dsn", dsn))

	recorder := storage.NewRecorder(history, logger)
	n.Engine.SetEmitter(events.Fanout{
		events.LogEmitter{Logger: logger},
		observability.Events(),
		recorder,
	})

	if cfg.Auth.HMACSecretEnv == "" && cfg.Auth.HMACSecret != "" {
		logger.Warn("auth secret configured inline; prefer HMACSecretEnv",
			logging.MaskField("secret", cfg.Auth.HMACSecret))
	}
	authenticator, err := server.NewAuthenticator(server.AuthConfig{
		HMACSecret: cfg.Auth.Secret(),
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew(),
	})
	if err != nil {
		return err
	}

	quota, err := genesis.Limits.Quota()
	if err != nil {
		return err
	}

	var tlsConfig *tls.Config
	if cfg.TLS.Enabled() {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		TLS: server.TLSConfig{
			CertFile: cfg.TLS.CertFile,
			KeyFile:  cfg.TLS.KeyFile,
			Config:   tlsConfig,
		},
		Limits: server.LimitConfig{
			RequestsPerMinute: genesis.Limits.RequestsPerMinute,
			Burst:             genesis.Limits.Burst,
			Quota:             quota,
		},
	}, n.Engine, history, recorder, authenticator, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
