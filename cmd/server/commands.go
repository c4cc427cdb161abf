package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/postpilot/internal/auth"
	"github.com/phrazzld/postpilot/internal/config"
	"github.com/phrazzld/postpilot/internal/platform/postgres"
	"github.com/spf13/cobra"
)

// errNeedsPostgres is returned by commands that only make sense against a
// durable database.
var errNeedsPostgres = errors.New("this command requires database.driver=postgres")

// --- serve ---

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the task engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}

	app, err := newApplication(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(cmd.Context())
}

// --- migrate ---

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Manage the database schema with the migrations embedded in the binary.

Examples:
  postpilot migrate up
  postpilot migrate status
  postpilot migrate down`,
	}

	short := map[string]string{
		"up":      "Apply all pending migrations",
		"down":    "Roll back the most recent migration",
		"reset":   "Roll back every migration",
		"status":  "Show applied and pending migrations",
		"version": "Print the current schema version",
	}
	for _, name := range postgres.MigrationCommands {
		command := name
		cmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: short[command],
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := opts.load()
				if err != nil {
					return err
				}
				if cfg.Database.Driver != "postgres" {
					return errNeedsPostgres
				}

				db, err := postgres.OpenDB(cmd.Context(), cfg.Database.URL, 2, 1, time.Minute)
				if err != nil {
					return err
				}
				defer db.Close()

				return postgres.Migrate(cmd.Context(), db, command, log)
			},
		})
	}
	return cmd
}

// --- token ---

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for the REST API",
		Long: `Mint an operator token signed with auth.jwt_secret.

Examples:
  postpilot token --subject deploy-bot`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			token, err := mintToken(cmd.Context(), cfg.Auth, subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "who the token identifies")
	return cmd
}

func mintToken(ctx context.Context, cfg config.AuthConfig, subject string) (string, error) {
	tokens, err := auth.NewTokenService(cfg, nil)
	if err != nil {
		return "", fmt.Errorf("failed to initialize token service: %w", err)
	}
	token, err := tokens.GenerateToken(ctx, subject)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

// --- account ---

func newAccountCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage publishing accounts",
	}

	var seed config.AccountSeed
	put := &cobra.Command{
		Use:   "put",
		Short: "Create or update a publishing account",
		Long: `Create or update a publishing account in the database.

Examples:
  postpilot account put --platform xiaohongshu --name "tea shop"
  postpilot account put --id 6f1c1a52-5b0e-4b8c-9f8e-2d3f4a5b6c7d --platform weibo --name shop --status suspended`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if seed.ID == "" {
				seed.ID = uuid.NewString()
			}
			account, err := accountFromSeed(seed, time.Now())
			if err != nil {
				return err
			}

			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return errNeedsPostgres
			}

			db, err := postgres.OpenDB(cmd.Context(), cfg.Database.URL, 2, 1, time.Minute)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.NewPostgresAccountStore(db, log).PutAccount(cmd.Context(), account); err != nil {
				return fmt.Errorf("failed to save account: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), account.ID)
			return nil
		},
	}
	put.Flags().StringVar(&seed.ID, "id", "", "account ID (generated when empty)")
	put.Flags().StringVar(&seed.Platform, "platform", "", "platform the account publishes to")
	put.Flags().StringVar(&seed.Name, "name", "", "display name")
	put.Flags().StringVar(&seed.Status, "status", "active", "active, inactive or suspended")
	_ = put.MarkFlagRequired("platform")
	_ = put.MarkFlagRequired("name")

	cmd.AddCommand(put)
	return cmd
}
