package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/postpilot/internal/config"
	"github.com/phrazzld/postpilot/internal/platform/logger"
	"github.com/spf13/cobra"
)

// rootOptions carries the persistent flags shared by every command.
type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "postpilot",
		Short: "Content generation and publishing service",
		Long: `postpilot generates social media content with an LLM and publishes it
through the platform bridge. Running it without a subcommand starts the server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"path to a YAML config file (default ./config.yaml)")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newTokenCmd(opts),
		newAccountCmd(opts),
	)
	return root
}

// load reads configuration and sets up the structured logger.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFile(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(logger.LoggerConfig{Level: cfg.Server.LogLevel})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver,
		"llm_provider", cfg.LLM.Provider)
	if cfg.Database.URL != "" {
		l.Debug("database configuration", "url_present", true)
	}
	return cfg, l, nil
}
