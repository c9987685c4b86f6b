package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docvat/internal/logger"
	"docvat/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Process every document of a folder and write the records to Google Sheets",
	Long: `Process all supported documents of a folder (PDF, JPEG, PNG, GIF, HEIC, HEIF and
plain text) through the pipeline with a bounded pool of workers, then append
one row per document to the Google Sheet.

Rows are written to the tab matching the document type:
- facture_client → "Debitoren"
- facture_fournisseur → "Kreditoren"
- note_frais, ticket_cb → "Spesen"
- devis → "Devis"
- unreadable documents → "Erreurs"

A failed document never stops the batch.

Environment variables:
  GOOGLE_SHEET_URL - Google Sheets URL to write results (not needed with --dry-run)
  BATCH_WORKERS - Number of parallel workers (default: 4)
  STORE_PATH - local record store, used with --save`,
	Example: `  # Process a folder and write to the sheet
  docvat batch ./documents

  # Dry run without enrichment
  docvat batch ./documents --dry-run --no-enrich

  # More workers, verbose output
  docvat batch ./documents --workers 8 --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var supportedExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true,
	".gif": true, ".heic": true, ".heif": true, ".txt": true,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().Bool("dry-run", false, "Process files but don't write to Google Sheet")
	batchCmd.Flags().Bool("no-enrich", false, "Skip language-model enrichment")
	batchCmd.Flags().Bool("save", false, "Persist the records in the local store")
	batchCmd.Flags().Bool("verbose", false, "Show detailed processing information")
	batchCmd.Flags().Int("workers", 0, "Number of parallel workers (default: BATCH_WORKERS)")
	batchCmd.Flags().Duration("timeout", 30*time.Minute, "Overall processing timeout")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	folderPath := args[0]
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noEnrich, _ := cmd.Flags().GetBool("no-enrich")
	save, _ := cmd.Flags().GetBool("save")
	verbose, _ := cmd.Flags().GetBool("verbose")
	workers, _ := cmd.Flags().GetInt("workers")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if workers <= 0 {
		workers = appConfig.BatchWorkers
	}

	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}
	if !dryRun && appConfig.GoogleSheetURL == "" {
		return fmt.Errorf("GOOGLE_SHEET_URL environment variable is required (or use --dry-run)")
	}

	log.Info().
		Str("folder", folderPath).
		Bool("dry_run", dryRun).
		Bool("no_enrich", noEnrich).
		Int("workers", workers).
		Msg("Starting batch processing")

	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("                         TRAITEMENT PAR LOT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Dossier: %s\n", folderPath)
	if noEnrich {
		fmt.Println("Enrichissement: désactivé")
	}
	if dryRun {
		fmt.Println("Mode: Dry Run (aucune écriture Google Sheets)")
	}
	fmt.Println()

	ctx, cancel := createContextWithTimeout(timeout)
	defer cancel()

	files, err := findDocuments(folderPath)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("Aucun document trouvé dans le dossier.")
		return nil
	}

	a, err := newApp(ctx, appConfig, appOptions{
		OCR:        true,
		Enrichment: !noEnrich,
		Store:      save,
		Sheets:     !dryRun,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	if !dryRun && a.sheets == nil {
		return fmt.Errorf("failed to connect to Google Sheet %s", appConfig.GoogleSheetURL)
	}

	docs, readErrs := loadDocuments(files, noEnrich)
	fmt.Printf("Traitement de %d documents avec %d workers...\n", len(files), workers)
	fmt.Println()

	items := a.processor.ProcessBatch(ctx, docs, workers, func(done, total int, item pipeline.BatchItem) {
		fmt.Printf("[%d/%d] %s - %s", done, total, item.Name, statusEmoji(item.Status))
		switch {
		case item.Err != nil:
			fmt.Printf(" (%s)", item.Err.Error())
		case item.Result != nil:
			r := item.Result.Record
			fmt.Printf(" (%s %.2f)", r.Currency, r.Amounts.GrossTTC)
			if verbose {
				fmt.Printf(" %s %s score=%.2f %s", r.DocumentType, r.DocumentNumber, item.Result.Report.Score, item.Result.Outcome.EnrichmentPath)
			}
		}
		fmt.Println()
	})
	items = append(items, readErrs...)

	fmt.Println()

	counts := map[pipeline.BatchStatus]int{}
	for _, item := range items {
		counts[item.Status]++
	}

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("                 RÉSULTAT")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Succès: %d\n", counts[pipeline.BatchSuccess])
	if counts[pipeline.BatchWarning] > 0 {
		fmt.Printf("Avec avertissements: %d\n", counts[pipeline.BatchWarning])
	}
	if counts[pipeline.BatchError] > 0 {
		fmt.Printf("Erreurs: %d\n", counts[pipeline.BatchError])
	}
	fmt.Println()

	if !dryRun {
		fmt.Println("Écriture dans Google Sheet...")
		written, err := a.sheets.WriteResults(ctx, items, time.Now())
		if err != nil {
			return fmt.Errorf("failed to write to Google Sheet: %w", err)
		}

		tabs := make([]string, 0, len(written))
		for tab := range written {
			tabs = append(tabs, tab)
		}
		sort.Strings(tabs)
		for _, tab := range tabs {
			fmt.Printf("Onglet %s: %d lignes ajoutées\n", tab, written[tab])
		}
		fmt.Printf("URL: %s\n", appConfig.GoogleSheetURL)
	}

	fmt.Println(strings.Repeat("=", 80))

	log.Info().
		Int("total", len(items)).
		Int("success", counts[pipeline.BatchSuccess]).
		Int("warnings", counts[pipeline.BatchWarning]).
		Int("errors", counts[pipeline.BatchError]).
		Msg("Batch processing completed")

	return nil
}

// findDocuments lists supported files under folderPath in lexical order.
func findDocuments(folderPath string) ([]string, error) {
	var files []string
	err := filepath.Walk(folderPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && supportedExtensions[strings.ToLower(filepath.Ext(info.Name()))] {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// loadDocuments reads files; unreadable ones become error items.
func loadDocuments(files []string, noEnrich bool) ([]pipeline.Document, []pipeline.BatchItem) {
	docs := make([]pipeline.Document, 0, len(files))
	var failed []pipeline.BatchItem
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			failed = append(failed, pipeline.BatchItem{
				Index:  len(files) + len(failed),
				Name:   filepath.Base(path),
				Err:    fmt.Errorf("failed to read file: %w", err),
				Status: pipeline.BatchError,
			})
			continue
		}
		doc := pipeline.Document{Name: filepath.Base(path), Data: data, SkipEnrichment: noEnrich}
		if isPlainText(path) {
			doc.ContentType = "text/plain"
		}
		docs = append(docs, doc)
	}
	return docs, failed
}

func statusEmoji(status pipeline.BatchStatus) string {
	switch status {
	case pipeline.BatchSuccess:
		return "✅"
	case pipeline.BatchWarning:
		return "⚠️"
	case pipeline.BatchError:
		return "❌"
	default:
		return "❓"
	}
}
