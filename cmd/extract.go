package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"docvat/internal/logger"
	"docvat/internal/ocr"
	"docvat/internal/pipeline"
	"docvat/pkg/models"
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract and validate a VAT record from one document",
	Long: `Run one document (PDF, JPEG, PNG, GIF, HEIC, HEIF or plain text) through the
pipeline: OCR, heuristic extraction, optional language-model enrichment, merge
and Swiss VAT validation.

Plain-text files skip OCR. When OCR is unavailable the record is built from
placeholder text and flagged; when enrichment fails the heuristic record is
kept.

Environment variables:
  OCR_PROVIDER - vision, documentai or none (default: vision)
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS - Google Cloud credentials
  ENRICHMENT_PROVIDER - openai, gemini, ollama or none (default: openai)
  OPENAI_API_KEY / GEMINI_API_KEY / OLLAMA_URL - provider settings
  STORE_PATH - local record store, used with --save`,
	Example: `  # Print a summary of an invoice
  docvat extract facture.pdf

  # Heuristics only, JSON output to a file
  docvat extract facture.pdf --no-enrich --json -o record.json

  # Process pasted OCR text and keep the record
  docvat extract scan.txt --save`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

// ExtractOutput is the JSON written with --json.
type ExtractOutput struct {
	FileName string           `json:"file_name"`
	FileSize int64            `json:"file_size"`
	Result   *pipeline.Result `json:"result"`
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().Bool("json", false, "Output as JSON")
	extractCmd.Flags().Bool("no-enrich", false, "Skip language-model enrichment")
	extractCmd.Flags().Bool("text", false, "Include the recognized text in the summary")
	extractCmd.Flags().Bool("save", false, "Persist the record in the local store")
	extractCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	noEnrich, _ := cmd.Flags().GetBool("no-enrich")
	showText, _ := cmd.Flags().GetBool("text")
	save, _ := cmd.Flags().GetBool("save")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	path := args[0]

	log.Info().
		Str("file", path).
		Str("output", outputPath).
		Bool("json", jsonOutput).
		Bool("no_enrich", noEnrich).
		Int("timeout", timeoutSecs).
		Msg("Starting document extraction")

	fileInfo, err := validateDocumentFile(path, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs) * time.Second)
	defer cancel()

	plainText := isPlainText(path)
	a, err := newApp(ctx, appConfig, appOptions{
		OCR:        !plainText,
		Enrichment: !noEnrich,
		Store:      save,
	})
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error().
			Err(err).
			Str("file", path).
			Msg("Failed to read document")
		return fmt.Errorf("failed to read document: %w", err)
	}

	doc := pipeline.Document{Name: filepath.Base(path), Data: data, SkipEnrichment: noEnrich}

	var result *pipeline.Result
	if plainText {
		result, err = a.processor.ProcessText(ctx, doc, string(data))
	} else {
		result, err = a.processor.Process(ctx, doc)
	}
	if err != nil {
		return handleExtractError(err, log)
	}

	var out []byte
	if jsonOutput {
		out, err = json.MarshalIndent(ExtractOutput{
			FileName: filepath.Base(fileInfo.Name()),
			FileSize: fileInfo.Size(),
			Result:   result,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
	} else {
		out = []byte(formatResult(result, showText))
	}

	return writeOutput(out, outputPath, log)
}

func isPlainText(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ".text"
}

// validateDocumentFile checks that path is a non-empty regular file within
// the size limit.
func validateDocumentFile(path string, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("Document not found")
			return nil, fmt.Errorf("document not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().Str("file", path).Msg("Permission denied accessing document")
			return nil, fmt.Errorf("permission denied accessing document: %s", path)
		}
		return nil, fmt.Errorf("error accessing document: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}
	if fileInfo.Size() == 0 {
		log.Error().Str("file", path).Msg("Document is empty")
		return nil, fmt.Errorf("document is empty: %s", path)
	}
	if fileInfo.Size() > ocr.MaxFileSizeBytes {
		log.Error().
			Str("file", path).
			Int64("size", fileInfo.Size()).
			Int64("max_size", ocr.MaxFileSizeBytes).
			Msg("Document exceeds maximum size limit")
		return nil, fmt.Errorf("document too large (%d bytes). Maximum size is %d bytes (20MB)",
			fileInfo.Size(), ocr.MaxFileSizeBytes)
	}

	return fileInfo, nil
}

// handleExtractError turns pipeline failures into user-facing messages.
func handleExtractError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Document extraction failed")

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout or processing a smaller file")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, ocr.ErrDocumentTooLarge):
		return fmt.Errorf("document is too large (maximum 20MB). Try compressing or splitting the file")
	case errors.Is(err, ocr.ErrUnsupportedFormat):
		return fmt.Errorf("unsupported document format. Supported formats are PDF, JPEG, PNG, GIF, HEIC and HEIF")
	case errors.Is(err, ocr.ErrAcquisitionFailure):
		return fmt.Errorf("the document could not be read. Please check the file integrity: %w", err)
	default:
		return fmt.Errorf("document extraction failed: %w", err)
	}
}

func formatResult(result *pipeline.Result, showText bool) string {
	r := result.Record
	var b strings.Builder

	fmt.Fprintf(&b, "=== %s ===\n", displayName(result))
	fmt.Fprintf(&b, "Type: %s (confiance %.0f%%)\n", r.DocumentType, r.TypeConfidence*100)
	fmt.Fprintf(&b, "Entité: %s\n", r.Entity)
	if r.DocumentNumber != "" {
		fmt.Fprintf(&b, "Numéro: %s\n", r.DocumentNumber)
	}
	if !r.IssueDate.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", r.IssueDate.Format("02.01.2006"))
	}
	fmt.Fprintf(&b, "Partenaire: %s\n", partnerOf(r))
	if r.Amounts.NetHT != nil {
		fmt.Fprintf(&b, "Montant HT: %.2f %s\n", *r.Amounts.NetHT, r.Currency)
	}
	if r.Amounts.VAT != nil {
		fmt.Fprintf(&b, "TVA (%.1f%%): %.2f %s\n", r.VATRate, *r.Amounts.VAT, r.Currency)
	}
	fmt.Fprintf(&b, "Montant TTC: %.2f %s\n", r.Amounts.GrossTTC, r.Currency)
	fmt.Fprintf(&b, "Statut TVA: %s\n", r.VATStatus)
	fmt.Fprintf(&b, "Source: %s (confiance %.2f)\n", r.Source, r.Confidence)
	fmt.Fprintf(&b, "Enrichissement: %s\n", result.Outcome.EnrichmentPath)
	if result.Outcome.OCRPlaceholder {
		b.WriteString("OCR: indisponible, texte de remplacement utilisé\n")
	}

	fmt.Fprintf(&b, "\nValidation: %s (score %.2f)\n", validity(result.Report.Valid), result.Report.Score)
	for _, issue := range result.Report.Errors {
		fmt.Fprintf(&b, "  ❌ %s: %s\n", issue.Field, issue.Message)
	}
	for _, issue := range result.Report.Warnings {
		fmt.Fprintf(&b, "  ⚠️  %s: %s\n", issue.Field, issue.Message)
	}
	if result.Outcome.Persisted {
		fmt.Fprintf(&b, "\nEnregistré: %s\n", result.Outcome.StoreID)
	} else if result.Outcome.PersistenceError != "" {
		fmt.Fprintf(&b, "\nNon enregistré: %s\n", result.Outcome.PersistenceError)
	}

	if showText && result.Text != nil {
		b.WriteString("\n=== Texte reconnu ===\n\n")
		b.WriteString(result.Text.Text)
		b.WriteString("\n")
	}
	return b.String()
}

func displayName(result *pipeline.Result) string {
	if result.Name != "" {
		return result.Name
	}
	return result.DocumentID
}

func partnerOf(r models.ExtractionRecord) string {
	if r.DocumentType == models.DocClientInvoice || r.DocumentType == models.DocQuote {
		return r.Client.Name
	}
	return r.Supplier.Name
}

func validity(valid bool) string {
	if valid {
		return "✅ valide"
	}
	return "❌ invalide"
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(data []byte, path string, log zerolog.Logger) error {
	if path == "" {
		if _, err := os.Stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", path).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}
	log.Info().
		Str("output_file", path).
		Int("bytes", len(data)).
		Msg("Output written to file")
	return nil
}
