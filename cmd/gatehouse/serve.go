// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the credential service",
		Long: `Run the credential service: connect to PostgreSQL, apply pending
migrations, and serve metrics and health probes until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd.Flags())
		},
	}

	cmd.Flags().String("observability.addr", "", "metrics/health HTTP address")
	cmd.Flags().String("log.level", "", "log level (debug, info, warn, error)")
	cmd.Flags().String("log.format", "", "log format (json or text)")

	return cmd
}

func runServe(ctx context.Context, flags *pflag.FlagSet) error {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}

	logging.SetDefault("gatehouse", version, logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	logger := slog.Default()

	if cfg.ResetSecretFallback {
		logger.Warn("reset token secret not set, falling back to session secret")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		errutil.LogError(logger, "database connection failed", err)
		return err
	}
	defer pool.Close()
	logger.Info("connected to database")

	migrator, err := postgres.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close() //nolint:errcheck // migration error takes precedence
		return err
	}
	if err := migrator.Close(); err != nil {
		return err
	}
	logger.Info("migrations applied")

	obs := observability.NewServer(cfg.Observability.Addr, func(ctx context.Context) bool {
		return pool.Ping(ctx) == nil
	})
	obsErrCh, err := obs.Start()
	if err != nil {
		return err
	}
	go monitorServerErrors(ctx, cancel, obsErrCh, "observability")

	// Fail fast on unusable token or OTP settings before reporting ready.
	if _, err := newAuthService(cfg, pool, obs.Metrics(), logger); err != nil {
		stopObservability(obs, logger)
		return err
	}
	logger.Info("credential service ready",
		"observability_addr", obs.Addr(),
		"session_ttl", cfg.Session.TTL,
		"otp_ttl", cfg.OTP.TTL,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	stopObservability(obs, logger)
	return nil
}

// newAuthService wires the credential flows over the given pool.
func newAuthService(cfg *config.Config, pool *pgxpool.Pool, observer auth.FlowObserver, logger *slog.Logger) (*auth.Service, error) {
	codec, err := auth.NewTokenCodec(
		auth.TokenConfig{Secret: []byte(cfg.Session.Secret), Algorithm: cfg.Session.Algorithm, TTL: cfg.Session.TTL},
		auth.TokenConfig{Secret: []byte(cfg.Reset.Secret), Algorithm: cfg.Reset.Algorithm, TTL: cfg.Reset.TTL},
	)
	if err != nil {
		return nil, err
	}

	generator, err := auth.NewOTPGenerator(cfg.OTP.Digits)
	if err != nil {
		return nil, err
	}

	return auth.NewService(
		postgres.NewUserRepository(pool),
		postgres.NewOTPChallengeRepository(pool),
		auth.NewArgon2idHasher(),
		codec,
		generator,
		logSender{logger: logger},
		auth.ServiceOptions{
			OTPTTL:   cfg.OTP.TTL,
			Logger:   logger,
			Observer: observer,
		},
	)
}

// logSender is a development stand-in for an out-of-band code sender. A real
// deployment substitutes an email or SMS integration; this one only records
// that a delivery would have happened.
type logSender struct {
	logger *slog.Logger
}

func (s logSender) Send(ctx context.Context, email, _ string) error {
	s.logger.InfoContext(ctx, "otp delivery requested", "email", email)
	return nil
}

// monitorServerErrors cancels the run context when a background server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			slog.Error("background server failed", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}

func stopObservability(obs *observability.Server, logger *slog.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := obs.Stop(shutdownCtx); err != nil {
		errutil.LogError(logger, "observability server shutdown failed", err)
	}
}
