// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
)

// bootstrapConfig holds flags for the bootstrap subcommand.
type bootstrapConfig struct {
	email    string
	password string
	admin    bool
}

// NewBootstrapCmd creates the bootstrap subcommand.
func NewBootstrapCmd() *cobra.Command {
	bc := &bootstrapConfig{}

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create an initial account",
		Long: `Create an initial account directly in the store, optionally with
admin rights. Intended for first-run provisioning.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBootstrap(cmd, bc)
		},
	}

	cmd.Flags().StringVar(&bc.email, "email", "", "account email (required)")
	cmd.Flags().StringVar(&bc.password, "password", "", "account password (required)")
	cmd.Flags().BoolVar(&bc.admin, "admin", false, "grant admin rights")
	_ = cmd.MarkFlagRequired("email")    //nolint:errcheck // flag exists
	_ = cmd.MarkFlagRequired("password") //nolint:errcheck // flag exists

	return cmd
}

func runBootstrap(cmd *cobra.Command, bc *bootstrapConfig) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	email := auth.NormalizeEmail(bc.email)
	if email == "" {
		return oops.Code("BOOTSTRAP_INVALID").Errorf("email must not be empty")
	}

	hash, err := auth.NewArgon2idHasher().Hash(bc.password)
	if err != nil {
		return err
	}

	users := postgres.NewUserRepository(pool)
	id, err := users.Insert(ctx, &auth.User{
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      bc.admin,
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Is(err, auth.ErrDuplicateEmail) {
		return oops.Code("BOOTSTRAP_DUPLICATE").
			With("email", email).
			Errorf("an account with that email already exists")
	}
	if err != nil {
		return err
	}

	slog.Info("account created", "id", id, "email", email, "admin", bc.admin)
	cmd.Printf("created account %s (%s)\n", email, id)
	return nil
}
