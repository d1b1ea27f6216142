package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"installments/internal/ledger"
	"installments/internal/metrics"
	"installments/internal/ocr"
	"installments/internal/reconciliation"
	"installments/pkg/models"
)

var saleCmd = &cobra.Command{
	Use:     "sale",
	Aliases: []string{"sales"},
	Short:   "Manage sales and their installment schedules",
}

var saleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a sale on credit",
	Long: `Record a sale for an existing customer.

With --installments N the total is split into N monthly installments starting at
--first-due (default today). The split is even in whole units, the first entries
taking the extra unit: 1000 over 3 becomes 334, 333, 333. --installment-amount
fixes every installment but the last, which takes what is left.

Without --installments the sale is paid as one lump sum.

When no contract text is given, one is generated from the sale's terms.`,
	Example: `  installments sale add --customer 3f2c... --product "Fridge" --total 1000 --installments 3
  installments sale add --customer 3f2c... --product "TV" --total 1200 --installments 4 --first-due 2024-04-01`,
	Args: cobra.NoArgs,
	RunE: runSaleAdd,
}

var saleEditCmd = &cobra.Command{
	Use:   "edit <sale-id>",
	Short: "Change a sale's product, total or contract",
	Long: `Change a sale. A new total may not be lower than what has been paid; the
schedule is re-planned over the same installments and due dates and the payments
are applied again.`,
	Args: cobra.ExactArgs(1),
	RunE: runSaleEdit,
}

var saleDeleteCmd = &cobra.Command{
	Use:   "delete <sale-id>",
	Short: "Delete a sale",
	Args:  cobra.ExactArgs(1),
	RunE:  runSaleDelete,
}

var saleShowCmd = &cobra.Command{
	Use:   "show <sale-id>",
	Short: "Show a sale with its schedule and payments",
	Args:  cobra.ExactArgs(1),
	RunE:  runSaleShow,
}

var saleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sales",
	Example: `  installments sale list --status late
  installments sale list --from 2024-01-01 --to 2024-03-31 --min 500`,
	Args: cobra.NoArgs,
	RunE: runSaleList,
}

var saleContractCmd = &cobra.Command{
	Use:   "contract <sale-id>",
	Short: "Print a sale's contract, or replace it from a scan",
	Long: `Print the contract text of a sale.

With --scan the text of a scanned, signed contract (PDF, at most 5 pages and
20MB) is read with Google Cloud Vision and stored as the sale's contract.

Required environment variables for --scan:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string`,
	Example: `  installments sale contract SALE-20240301-0001
  installments sale contract SALE-20240301-0001 --scan signed.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runSaleContract,
}

var contractDraftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Print the blank contract template",
	Args:  cobra.NoArgs,
	RunE:  runContractDraft,
}

func init() {
	rootCmd.AddCommand(saleCmd)
	saleCmd.AddCommand(saleAddCmd, saleEditCmd, saleDeleteCmd, saleShowCmd, saleListCmd, saleContractCmd)
	saleContractCmd.AddCommand(contractDraftCmd)

	saleAddCmd.Flags().String("customer", "", "Customer id")
	saleAddCmd.Flags().String("product", "", "Product sold")
	saleAddCmd.Flags().String("total", "", "Total amount")
	saleAddCmd.Flags().Int("installments", 0, "Number of monthly installments (0 for a lump sum)")
	saleAddCmd.Flags().String("installment-amount", "", "Amount of each installment but the last")
	saleAddCmd.Flags().String("first-due", "", "First due date (YYYY-MM-DD, default today)")
	saleAddCmd.Flags().String("contract-file", "", "Read the contract text from a file")
	saleAddCmd.MarkFlagRequired("customer")
	saleAddCmd.MarkFlagRequired("product")
	saleAddCmd.MarkFlagRequired("total")

	saleEditCmd.Flags().String("product", "", "Product sold")
	saleEditCmd.Flags().String("total", "", "Total amount")
	saleEditCmd.Flags().String("contract-file", "", "Read the contract text from a file")

	saleDeleteCmd.Flags().Bool("yes", false, "Do not ask for confirmation")

	saleShowCmd.Flags().Bool("json", false, "Output as JSON")

	saleListCmd.Flags().StringP("query", "q", "", "Match customer name, product or sale id")
	saleListCmd.Flags().String("customer", "", "Only sales of this customer id")
	saleListCmd.Flags().String("status", "all", "all, active, late or completed")
	saleListCmd.Flags().String("from", "", "Sold on or after (YYYY-MM-DD)")
	saleListCmd.Flags().String("to", "", "Sold on or before (YYYY-MM-DD)")
	saleListCmd.Flags().String("min", "", "Minimum total")
	saleListCmd.Flags().String("max", "", "Maximum total")
	saleListCmd.Flags().Bool("json", false, "Output as JSON")

	saleContractCmd.Flags().String("scan", "", "Scanned contract PDF to read")
	saleContractCmd.Flags().Int("timeout", 300, "Scan timeout in seconds")
}

func readContractFile(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("contract-file")
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read contract file: %w", err)
	}
	return string(data), nil
}

func runSaleAdd(cmd *cobra.Command, args []string) error {
	customerID, _ := cmd.Flags().GetString("customer")
	product, _ := cmd.Flags().GetString("product")
	totalStr, _ := cmd.Flags().GetString("total")
	count, _ := cmd.Flags().GetInt("installments")
	perStr, _ := cmd.Flags().GetString("installment-amount")
	firstDueStr, _ := cmd.Flags().GetString("first-due")

	total, err := parseAmount("total", totalStr)
	if err != nil {
		return err
	}
	per, err := parseAmount("installment amount", perStr)
	if err != nil {
		return err
	}
	firstDue, err := parseDate("first due date", firstDueStr)
	if err != nil {
		return err
	}
	contract, err := readContractFile(cmd)
	if err != nil {
		return err
	}

	sale, err := current.ledger.AddSale(cmd.Context(), ledger.SaleInput{
		CustomerID:        customerID,
		Product:           product,
		TotalAmount:       total,
		InstallmentsCount: count,
		InstallmentAmount: per,
		FirstDueDate:      firstDue,
		ContractText:      contract,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ Sale %s recorded: %s for %s, %s\n",
		sale.ID, sale.Product, sale.CustomerName, current.money(sale.TotalAmount))
	if sale.HasSchedule() {
		printSchedule(out, sale.Schedule)
	} else {
		fmt.Fprintf(out, "Lump sum due %s\n", formatDate(sale.DueDate))
	}
	return nil
}

func runSaleEdit(cmd *cobra.Command, args []string) error {
	view, err := current.ledger.GetSale(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	edit := ledger.SaleEdit{Product: view.Product, TotalAmount: view.TotalAmount}
	if cmd.Flags().Changed("product") {
		edit.Product, _ = cmd.Flags().GetString("product")
	}
	if cmd.Flags().Changed("total") {
		totalStr, _ := cmd.Flags().GetString("total")
		if edit.TotalAmount, err = parseAmount("total", totalStr); err != nil {
			return err
		}
	}
	if edit.ContractText, err = readContractFile(cmd); err != nil {
		return err
	}

	sale, err := current.ledger.EditSale(cmd.Context(), args[0], edit)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Sale %s updated: %s, %s (%s remaining)\n",
		sale.ID, sale.Product, current.money(sale.TotalAmount), current.money(sale.Remaining()))
	return nil
}

func runSaleDelete(cmd *cobra.Command, args []string) error {
	view, err := current.ledger.GetSale(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		ok, err := confirm(cmd, fmt.Sprintf("Delete sale %s (%s, %s)?", view.ID, view.Product, view.CustomerName))
		if err != nil || !ok {
			return err
		}
	}
	if err := current.ledger.DeleteSale(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Sale %s deleted\n", view.ID)
	return nil
}

func runSaleShow(cmd *cobra.Command, args []string) error {
	view, err := current.ledger.GetSale(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), view)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s\n", view.ID, statusLabel(view.Status))
	fmt.Fprintf(out, "  Customer:  %s\n", view.CustomerName)
	fmt.Fprintf(out, "  Product:   %s\n", view.Product)
	fmt.Fprintf(out, "  Date:      %s\n", formatDate(view.Date))
	fmt.Fprintf(out, "  Total:     %s\n", current.money(view.TotalAmount))
	fmt.Fprintf(out, "  Paid:      %s\n", current.money(view.PaidAmount))
	fmt.Fprintf(out, "  Remaining: %s\n", current.money(view.Remaining))

	if view.HasSchedule() {
		fmt.Fprintf(out, "\nSchedule (%d of %d paid):\n",
			reconciliation.PaidCount(view.Schedule), len(view.Schedule))
		printSchedule(out, view.Schedule)
	} else {
		fmt.Fprintf(out, "  Due:       %s\n", formatDate(view.DueDate))
	}

	if len(view.Payments) > 0 {
		fmt.Fprintln(out, "\nPayments:")
		tw := newTable(out)
		fmt.Fprintln(tw, "DATE\tAMOUNT\tNOTE")
		for _, p := range view.Payments {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Date.Local().Format("2006-01-02 15:04"), current.money(p.Amount), p.Note)
		}
		return tw.Flush()
	}
	return nil
}

func runSaleList(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	query, _ := flags.GetString("query")
	customerID, _ := flags.GetString("customer")
	status, _ := flags.GetString("status")
	fromStr, _ := flags.GetString("from")
	toStr, _ := flags.GetString("to")
	minStr, _ := flags.GetString("min")
	maxStr, _ := flags.GetString("max")

	filter := ledger.SaleFilter{Query: query, CustomerID: customerID}
	if status != "" && status != "all" {
		filter.Status = metrics.Status(strings.ToLower(status))
	}

	var err error
	if filter.From, err = parseDate("from", fromStr); err != nil {
		return err
	}
	if filter.To, err = parseDate("to", toStr); err != nil {
		return err
	}
	if !filter.To.IsZero() {
		// Inclusive of the whole last day.
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}
	if filter.MinAmount, err = parseAmount("min", minStr); err != nil {
		return err
	}
	if filter.MaxAmount, err = parseAmount("max", maxStr); err != nil {
		return err
	}

	views := current.ledger.ListSales(cmd.Context(), filter)
	if asJSON, _ := flags.GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), views)
	}
	if len(views) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sales found.")
		return nil
	}
	return printSales(cmd.OutOrStdout(), views)
}

func runSaleContract(cmd *cobra.Command, args []string) error {
	scanPath, _ := cmd.Flags().GetString("scan")
	if scanPath == "" {
		view, err := current.ledger.GetSale(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), view.ContractText)
		return nil
	}

	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSecs)*time.Second)
	defer cancel()

	pdfFile, err := os.Open(scanPath)
	if err != nil {
		return fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer pdfFile.Close()

	scanner, err := ocr.NewVisionScanner(ctx)
	if err != nil {
		return err
	}
	defer scanner.Close()

	sale, err := current.ledger.ContractFromScan(ctx, args[0], scanner, pdfFile)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Contract of %s replaced from %s (%d characters)\n",
		sale.ID, scanPath, len(sale.ContractText))
	return nil
}

func runContractDraft(cmd *cobra.Command, args []string) error {
	text, err := current.ledger.ContractDraft(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func statusLabel(s metrics.Status) string {
	switch s {
	case metrics.StatusCompleted:
		return "✅ completed"
	case metrics.StatusLate:
		return "⚠️  late"
	default:
		return "🕒 active"
	}
}

func printSales(w io.Writer, views []ledger.SaleView) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tCUSTOMER\tPRODUCT\tTOTAL\tPAID\tREMAINING\tSTATUS\tDATE")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ID, v.CustomerName, v.Product,
			current.money(v.TotalAmount), current.money(v.PaidAmount), current.money(v.Remaining),
			v.Status, formatDate(v.Date))
	}
	return tw.Flush()
}

func printSchedule(w io.Writer, schedule []models.Installment) {
	tw := newTable(w)
	fmt.Fprintln(tw, "#\tDUE\tPLANNED\tOWED\tPAID")
	for _, inst := range schedule {
		paid := ""
		if inst.Paid {
			paid = "✓"
			if inst.PaidDate != nil {
				paid += " " + formatDate(*inst.PaidDate)
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			inst.Number, formatDate(inst.DueDate),
			current.money(inst.OriginalAmount), current.money(inst.Amount), paid)
	}
	tw.Flush()
}
