// Package cmd defines the CLI commands for the dealposter executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clicou/dealposter/internal/config"
	"github.com/clicou/dealposter/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dealposter",
		Short: "Turns Mercado Livre product links into social deal images.",
		Long: `dealposter reads product page links, extracts title, prices and photo
from each page, renders a square deal image for social posting and records
every processed product in a durable ledger so reruns only pick up new links.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus DEALPOSTER_* env)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// loadConfigAndLogger builds the runtime configuration and logger shared by
// all subcommands.
func loadConfigAndLogger() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
