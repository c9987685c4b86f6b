package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docvat/internal/logger"
	"docvat/internal/vat"
)

var vatCmd = &cobra.Command{
	Use:   "vat",
	Short: "Prepare, submit and export AFC VAT declarations",
	Long: `Prepare Swiss VAT declarations (AFC form, effective method) from the
accounting data in Google Sheets, or from the built-in fallback dataset when
the sheet is not configured or unreachable.

Environment variables:
  GOOGLE_SHEET_URL - accounting sheet (Debitoren, Kreditoren, Spesen tabs)
  VAT_ENTITY, VAT_NUMBER - declaring entity
  VAT_SUBMIT_POLICY - keep-local or rollback when the store rejects a write
  STORE_PATH - declaration store`,
}

var vatPeriodsCmd = &cobra.Command{
	Use:   "periods",
	Short: "List the declaration periods of a year",
	Example: `  docvat vat periods --year 2025
  docvat vat periods --year 2025 --monthly`,
	RunE: runVATPeriods,
}

var vatDeclareCmd = &cobra.Command{
	Use:   "declare",
	Short: "Compute a declaration from the accounting data and run the controls",
	Example: `  # Current quarter
  docvat vat declare

  # A given period, as JSON
  docvat vat declare --year 2025 --period Q1 --json`,
	RunE: runVATDeclare,
}

var vatSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Compute, submit and store a declaration",
	Example: `  docvat vat submit --year 2025 --period Q1
  docvat vat submit --year 2025 --period Q1 --archive`,
	RunE: runVATSubmit,
}

var vatExportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Export a declaration as AFC XML",
	Example: `  docvat vat export --year 2025 --period Q1 -o TVA-2025-Q1.xml`,
	RunE:    runVATExport,
}

var vatCompareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare the effective method with the flat rates",
	Example: `  # Against the current declaration
  docvat vat compare --revenue 520000 --year 2025 --period Q1`,
	RunE: runVATCompare,
}

var vatHistoryCmd = &cobra.Command{
	Use:     "history",
	Short:   "List stored declarations",
	Example: `  docvat vat history --year 2025`,
	RunE:    runVATHistory,
}

func init() {
	rootCmd.AddCommand(vatCmd)
	vatCmd.AddCommand(vatPeriodsCmd, vatDeclareCmd, vatSubmitCmd, vatExportCmd, vatCompareCmd, vatHistoryCmd)

	vatCmd.PersistentFlags().Int("year", 0, "Declaration year (default: year of the current quarter)")
	vatCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	vatPeriodsCmd.Flags().Bool("monthly", false, "List monthly periods")

	for _, c := range []*cobra.Command{vatDeclareCmd, vatSubmitCmd, vatExportCmd, vatCompareCmd} {
		c.Flags().String("period", "", "Period code Q1-Q4 or M1-M12 (default: current quarter)")
		c.Flags().Duration("timeout", 2*time.Minute, "Accounting read timeout")
	}
	vatSubmitCmd.Flags().Bool("archive", false, "Archive the declaration after submission")
	vatExportCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	vatCompareCmd.Flags().Float64("revenue", 0, "Annual revenue in CHF [REQUIRED]")
	_ = vatCompareCmd.MarkFlagRequired("revenue")
}

// periodFlags resolves --year and --period, defaulting to the current quarter.
func periodFlags(cmd *cobra.Command) (int, string) {
	year, _ := cmd.Flags().GetInt("year")
	period, _ := cmd.Flags().GetString("period")
	if year == 0 || period == "" {
		current := vat.CurrentQuarter(time.Now())
		if year == 0 {
			year = current.Year
		}
		if period == "" {
			period = current.Code
		}
	}
	return year, strings.ToUpper(period)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runVATPeriods(cmd *cobra.Command, _ []string) error {
	year, _ := cmd.Flags().GetInt("year")
	if year == 0 {
		year = vat.CurrentQuarter(time.Now()).Year
	}
	monthly, _ := cmd.Flags().GetBool("monthly")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	periodType := vat.PeriodQuarterly
	if monthly {
		periodType = vat.PeriodMonthly
	}
	periods, err := vat.PeriodsOf(year, periodType)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(periods)
	}

	for _, p := range periods {
		fmt.Printf("%-4s %-16s %s → %s  échéance %s\n",
			p.Code, p.Name, p.Start.Format("02.01.2006"), p.End.Format("02.01.2006"), p.Due.Format("02.01.2006"))
	}
	return nil
}

// loadDeclaration wires the engine and computes the declaration from the
// accounting source.
func loadDeclaration(cmd *cobra.Command, store bool) (context.Context, *app, *vat.LoadResult, func(), error) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := createContextWithTimeout(timeout)

	a, err := newApp(ctx, appConfig, appOptions{Store: store, Sheets: true})
	if err != nil {
		cancel()
		return nil, nil, nil, nil, err
	}

	year, period := periodFlags(cmd)
	result, err := a.engine.LoadFromAccounting(ctx, year, period)
	if err != nil {
		a.Close()
		cancel()
		return nil, nil, nil, nil, err
	}
	return ctx, a, result, func() { a.Close(); cancel() }, nil
}

func runVATDeclare(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("vat")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	_, a, result, done, err := loadDeclaration(cmd, false)
	if err != nil {
		return err
	}
	defer done()

	decl := result.Declaration
	controls, err := a.engine.Controls(decl.Period.Year, decl.Period.Code)
	if err != nil {
		return err
	}

	log.Info().
		Str("declaration_id", decl.ID).
		Bool("used_fallback", result.UsedFallback).
		Float64("vat_to_pay", decl.Result.VATToPay).
		Msg("Declaration computed")

	if jsonOutput {
		return printJSON(map[string]any{
			"declaration":   decl,
			"data":          result.Data,
			"used_fallback": result.UsedFallback,
			"controls":      controls,
		})
	}

	printDeclaration(decl, result.UsedFallback)
	printControls(controls)
	return nil
}

func runVATSubmit(cmd *cobra.Command, _ []string) error {
	archive, _ := cmd.Flags().GetBool("archive")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx, a, result, done, err := loadDeclaration(cmd, true)
	if err != nil {
		return err
	}
	defer done()

	decl := result.Declaration
	submitted, err := a.engine.Submit(ctx, decl.Period.Year, decl.Period.Code)
	if err != nil {
		var declErr *vat.DeclarationError
		if errors.As(err, &declErr) && len(declErr.Controls) > 0 {
			printControls(declErr.Controls)
		}
		return fmt.Errorf("submission refused: %w", err)
	}

	if archive {
		if submitted, err = a.engine.Archive(ctx, decl.Period.Year, decl.Period.Code); err != nil {
			return fmt.Errorf("archive failed: %w", err)
		}
	}

	if jsonOutput {
		return printJSON(submitted)
	}

	printDeclaration(submitted, result.UsedFallback)
	fmt.Printf("Statut: %s\n", submitted.Status)
	fmt.Printf("Référence de paiement: %s\n", submitted.Result.PaymentReference)
	fmt.Printf("Échéance: %s\n", submitted.Period.Due.Format("02.01.2006"))
	if submitted.RetentionUntil != nil {
		fmt.Printf("Conservation jusqu'au: %s\n", submitted.RetentionUntil.Format("02.01.2006"))
	}
	if submitted.PersistenceError != "" {
		fmt.Printf("⚠️  Non enregistrée: %s\n", submitted.PersistenceError)
	}
	return nil
}

func runVATExport(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("vat")
	outputPath, _ := cmd.Flags().GetString("output")

	_, a, result, done, err := loadDeclaration(cmd, false)
	if err != nil {
		return err
	}
	defer done()

	out, err := a.engine.Export(result.Declaration.Period.Year, result.Declaration.Period.Code)
	if err != nil {
		return err
	}
	return writeOutput(out, outputPath, log)
}

func runVATCompare(cmd *cobra.Command, _ []string) error {
	revenue, _ := cmd.Flags().GetFloat64("revenue")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	if revenue < 0 {
		return fmt.Errorf("revenue must not be negative")
	}

	_, a, _, done, err := loadDeclaration(cmd, false)
	if err != nil {
		return err
	}
	defer done()

	cmp := a.engine.CompareMethods(revenue)
	if jsonOutput {
		return printJSON(cmp)
	}

	fmt.Printf("Chiffre d'affaires: CHF %s\n", vat.FormatSwissAmount(cmp.Revenue))
	fmt.Printf("Méthode effective: CHF %s\n", vat.FormatSwissAmount(cmp.Effective))
	for _, fr := range cmp.Forfait {
		fmt.Printf("  Forfait %-24s %4.1f%%  CHF %s\n", fr.BusinessType, fr.Percent, vat.FormatSwissAmount(fr.Amount))
	}
	fmt.Printf("Recommandation: %s\n", cmp.Recommendation)
	return nil
}

func runVATHistory(cmd *cobra.Command, _ []string) error {
	year, _ := cmd.Flags().GetInt("year")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx, cancel := createContextWithTimeout(time.Minute)
	defer cancel()

	a, err := newApp(ctx, appConfig, appOptions{Store: true})
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.engine.History(ctx, year)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Println("Aucune déclaration enregistrée.")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%-14s %-10s %s → %s  à payer CHF %s  %s\n",
			e.DeclarationID, e.Status, e.StartDate, e.EndDate, vat.FormatSwissAmount(e.VATToPay), e.PaymentReference)
	}
	return nil
}

func printDeclaration(d *vat.Declaration, usedFallback bool) {
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("  DÉCLARATION TVA %s - %s\n", d.ID, d.Period.Name)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Entité: %s (%s)\n", d.Entity, d.VATNumber)
	fmt.Printf("Période: %s → %s\n", d.Period.Start.Format("02.01.2006"), d.Period.End.Format("02.01.2006"))
	if usedFallback {
		fmt.Println("⚠️  Données de démonstration (comptabilité indisponible)")
	}
	fmt.Println()

	fmt.Println("TVA collectée")
	fmt.Printf("  Taux normal  %5.1f%%  HT %14s  TVA %12s\n", d.Collected.NormalRate.Rate,
		vat.FormatSwissAmount(d.Collected.NormalRate.NetAmount), vat.FormatSwissAmount(d.Collected.NormalRate.VATAmount))
	fmt.Printf("  Taux réduit  %5.1f%%  HT %14s  TVA %12s\n", d.Collected.ReducedRate.Rate,
		vat.FormatSwissAmount(d.Collected.ReducedRate.NetAmount), vat.FormatSwissAmount(d.Collected.ReducedRate.VATAmount))
	fmt.Printf("  Hébergement  %5.1f%%  HT %14s  TVA %12s\n", d.Collected.LodgingRate.Rate,
		vat.FormatSwissAmount(d.Collected.LodgingRate.NetAmount), vat.FormatSwissAmount(d.Collected.LodgingRate.VATAmount))
	fmt.Printf("  Total                                   %12s\n", vat.FormatSwissAmount(d.Collected.TotalCollected))
	fmt.Println()

	fmt.Println("Impôt préalable")
	fmt.Printf("  Marchandises   %12s\n", vat.FormatSwissAmount(d.Deductible.Goods.VATAmount))
	fmt.Printf("  Services       %12s\n", vat.FormatSwissAmount(d.Deductible.Services.VATAmount))
	fmt.Printf("  Investissements%12s\n", vat.FormatSwissAmount(d.Deductible.Investments.VATAmount))
	if d.Deductible.Corrections != 0 {
		fmt.Printf("  Corrections    %12s\n", vat.FormatSwissAmount(d.Deductible.Corrections))
	}
	fmt.Printf("  Total          %12s\n", vat.FormatSwissAmount(d.Deductible.TotalDeductible))
	fmt.Println()

	if d.Result.VATToRecover > 0 {
		fmt.Printf("TVA à récupérer: CHF %s\n", vat.FormatSwissAmount(d.Result.VATToRecover))
	} else {
		fmt.Printf("TVA à payer: CHF %s\n", vat.FormatSwissAmount(d.Result.VATToPay))
	}
}

func printControls(controls []vat.Control) {
	fmt.Println()
	fmt.Println("Contrôles")
	for _, c := range controls {
		icon := "✅"
		switch c.Status {
		case vat.ControlWarning:
			icon = "⚠️ "
		case vat.ControlError:
			icon = "❌"
		}
		fmt.Printf("  %s %s: %s\n", icon, c.Name, c.Message)
	}
}
