package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"docvat/internal/api"
	"docvat/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the document pipeline and the VAT engine over HTTP",
	Long: `Start an HTTP server exposing document upload and extraction, the stored
records, and the VAT declaration lifecycle (open, update, controls, submit,
archive, AFC XML export, method comparison, history).

Environment variables:
  HTTP_ADDR - listen address (default: :8080)`,
	Example: `  docvat serve
  docvat serve --addr 127.0.0.1:9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: HTTP_ADDR)")
	serveCmd.Flags().Duration("shutdown-timeout", 15*time.Second, "Graceful shutdown timeout")
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("serve")

	addr, _ := cmd.Flags().GetString("addr")
	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
	if addr == "" {
		addr = appConfig.HTTPAddr
	}

	ctx, cancel := createContextWithTimeout(0)
	defer cancel()

	a, err := newApp(ctx, appConfig, appOptions{OCR: true, Enrichment: true, Store: true, Sheets: true})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.New(a.processor, a.engine).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      appConfig.OCRTimeout + appConfig.EnrichmentTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown failed: %w", err)
	}
	return nil
}
