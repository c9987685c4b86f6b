package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docvat/internal/config"
	"docvat/internal/logger"
)

var version = "1.0.0"

// appConfig is set by Execute before any command runs.
var appConfig = config.Default()

var rootCmd = &cobra.Command{
	Use:   "docvat",
	Short: "Swiss VAT document pipeline and declaration engine",
	Long: `docvat reads invoices, expense notes and receipts, extracts a structured
record from each (OCR, heuristics and optional language-model enrichment),
validates it against Swiss VAT rules, and prepares the quarterly or monthly
AFC VAT declaration from the accounting data.

Configuration is read from environment variables (a .env file is loaded when
present) and optionally from the YAML file named by DOCVAT_CONFIG.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with cfg.
func Execute(cfg *config.Config) {
	log := logger.WithComponent("cmd")

	if cfg != nil {
		appConfig = cfg
	}

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

// createContextWithTimeout returns a context canceled after timeout or on
// SIGINT/SIGTERM. A zero timeout only listens for signals.
func createContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
