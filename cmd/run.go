package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clicou/dealposter/internal/input"
)

// newRunCmd creates the 'run' subcommand, which processes the configured
// links file once and exits.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process the configured product links once",
		Long: `Reads the product links CSV, extracts and renders every product not yet
in the ledger and prints a summary. Already recorded products are skipped,
so the command is safe to re-run after a crash or with an extended link list.`,
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	links, err := input.ReadLinks(cfg.Input.CSVPath)
	if err != nil {
		return fmt.Errorf("read links: %w", err)
	}
	if len(links) == 0 {
		logger.Warn("no links to process", zap.String("csv", cfg.Input.CSVPath))
		return nil
	}

	summary, err := a.pipeline.Run(ctx, links)
	logger.Info("run summary",
		zap.String("run_id", summary.RunID),
		zap.Int("successful", summary.Succeeded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run pipeline: %w", err)
	}
	return nil
}
