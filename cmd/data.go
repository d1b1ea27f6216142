package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"installments/internal/ledger"
	"installments/internal/reconciliation"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export customers and sales as JSON or CSV",
	Example: `  installments export
  installments export --csv -o ledger.csv
  installments export -o -`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Import an export document",
	Long: `Import a JSON export. Only the collections present in the document
(customers, sales) are replaced; the others are left as they are. Payment
schedules are recalculated afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all customers, sales and activity",
	Long:  `Delete all customers, sales and the activity log. Settings, users and backups are kept.`,
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Recalculate every payment schedule from its payments",
	Args:  cobra.NoArgs,
	RunE:  runResync,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that every sale's schedule adds up",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd, clearCmd, resyncCmd, verifyCmd)

	exportCmd.Flags().StringP("output", "o", "", "Output file (default installments_export_<date>.json or .csv, - for stdout)")
	exportCmd.Flags().Bool("csv", false, "Write CSV instead of JSON")

	clearCmd.Flags().Bool("yes", false, "Do not ask for confirmation")
}

func runExport(cmd *cobra.Command, args []string) error {
	asCSV, _ := cmd.Flags().GetBool("csv")
	path, _ := cmd.Flags().GetString("output")

	ext := "json"
	if asCSV {
		ext = "csv"
	}
	if path == "" {
		path = ledger.ExportFileName(current.ledger.Now(), ext)
	}

	w, err := openOutput(path)
	if err != nil {
		return err
	}
	if asCSV {
		err = current.ledger.ExportCSV(cmd.Context(), w)
	} else {
		err = current.ledger.WriteExport(cmd.Context(), w)
	}
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	if path != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "✅ Exported to %s\n", path)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	result, err := current.ledger.Import(cmd.Context(), f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "✅ Import complete")
	if result.CustomersReplaced {
		fmt.Fprintf(out, "  Customers replaced: %d\n", result.Customers)
	}
	if result.SalesReplaced {
		fmt.Fprintf(out, "  Sales replaced:     %d\n", result.Sales)
	}
	if !result.CustomersReplaced && !result.SalesReplaced {
		fmt.Fprintln(out, "  The document held no customers or sales; nothing changed.")
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		ok, err := confirm(cmd, "Delete ALL customers, sales and activity?")
		if err != nil || !ok {
			return err
		}
	}
	if err := current.ledger.ClearAll(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "🗑️  All data cleared")
	return nil
}

func runResync(cmd *cobra.Command, args []string) error {
	results, err := current.ledger.ResyncAll(cmd.Context())
	if err != nil {
		return err
	}

	changed := printResync(cmd.OutOrStdout(), results)
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %d schedule(s) checked, %d corrected\n", len(results), changed)
	return nil
}

// printResync lists the corrected sales and returns how many there were.
func printResync(out io.Writer, results []reconciliation.Result) int {
	changed := 0
	for _, r := range results {
		if !r.Changed {
			continue
		}
		changed++
		fmt.Fprintf(out, "  %s: paid installments %d -> %d", r.SaleID, r.PaidBefore, r.PaidAfter)
		if r.UnattributedCredit.IsPositive() {
			fmt.Fprintf(out, " (unattributed credit %s)", current.money(r.UnattributedCredit))
		}
		fmt.Fprintln(out)
	}
	return changed
}

func runVerify(cmd *cobra.Command, args []string) error {
	problems := current.ledger.VerifyAll(cmd.Context())
	out := cmd.OutOrStdout()
	if len(problems) == 0 {
		fmt.Fprintln(out, "✅ All sales reconcile")
		return nil
	}

	ids := make([]string, 0, len(problems))
	for id := range problems {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "❌ %s: %v\n", id, problems[id])
	}
	return fmt.Errorf("%d sale(s) do not reconcile, run: installments resync", len(problems))
}
