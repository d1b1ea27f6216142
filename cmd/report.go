package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"installments/internal/lateness"
	"installments/internal/metrics"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the overview of sales and collections",
	Args:  cobra.NoArgs,
	RunE:  runDashboard,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize sales of a period",
	Long: `Summarize the sales created in the current month, the current year or all
time, with the top customers and the totals of the last six months.`,
	Example: `  installments report --period year`,
	Args:    cobra.NoArgs,
	RunE:    runReport,
}

var lateCmd = &cobra.Command{
	Use:   "late",
	Short: "List sales with no payment for longer than the late threshold",
	Args:  cobra.NoArgs,
	RunE:  runLate,
}

var upcomingCmd = &cobra.Command{
	Use:   "upcoming",
	Short: "List installments due within the next 7 days",
	Args:  cobra.NoArgs,
	RunE:  runUpcoming,
}

func init() {
	rootCmd.AddCommand(dashboardCmd, reportCmd, lateCmd, upcomingCmd)

	reportCmd.Flags().String("period", string(metrics.PeriodMonth), "month, year or all")
	for _, c := range []*cobra.Command{dashboardCmd, reportCmd, lateCmd, upcomingCmd} {
		c.Flags().Bool("json", false, "Output as JSON")
	}
}

func printSummary(w io.Writer, s metrics.Summary) {
	fmt.Fprintf(w, "  Sales:            %d (%d active, %d late, %d completed)\n", s.SaleCount, s.Active, s.Late, s.Completed)
	fmt.Fprintf(w, "  Total sold:       %s\n", current.money(s.Total))
	fmt.Fprintf(w, "  Collected:        %s (%d%%)\n", current.money(s.Collected), s.CollectionRate)
	fmt.Fprintf(w, "  Outstanding:      %s\n", current.money(s.Outstanding))
	fmt.Fprintf(w, "  Late debt:        %s\n", current.money(s.LateDebt))
	fmt.Fprintf(w, "  Payments:         %d (average %s)\n", s.PaymentCount, current.money(s.AveragePayment))
	fmt.Fprintf(w, "  Average sale:     %s\n", current.money(s.AverageSale))
	fmt.Fprintf(w, "  Completion rate:  %d%%\n", s.CompletionRate)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	d := current.ledger.Dashboard(cmd.Context())
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), d)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "📊 Dashboard")
	fmt.Fprintf(out, "  Customers:        %d\n", d.Customers)
	printSummary(out, d.Summary)
	fmt.Fprintf(out, "  This month:       %d sale(s), %s collected\n", d.MonthSales, current.money(d.MonthCollected))

	if len(d.Upcoming) > 0 {
		fmt.Fprintln(out, "\nDue in the next 7 days:")
		return printUpcoming(out, d.Upcoming)
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	periodStr, _ := cmd.Flags().GetString("period")
	r := current.ledger.Report(cmd.Context(), metrics.ParsePeriod(periodStr))
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), r)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📈 Report (%s)\n", r.Period)
	printSummary(out, r.Summary)

	if len(r.TopCustomers) > 0 {
		fmt.Fprintln(out, "\nTop customers:")
		tw := newTable(out)
		fmt.Fprintln(tw, "#\tCUSTOMER\tSALES\tTOTAL")
		for i, c := range r.TopCustomers {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", i+1, c.Name, c.Count, current.money(c.Total))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nLast 6 months:")
	tw := newTable(out)
	fmt.Fprintln(tw, "MONTH\tSOLD\tCOLLECTED")
	for _, m := range r.Monthly {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.Month.Format("2006-01"), current.money(m.Total), current.money(m.Collected))
	}
	return tw.Flush()
}

func runLate(cmd *cobra.Command, args []string) error {
	views := current.ledger.LateSales(cmd.Context())
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), views)
	}
	if len(views) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No late sales.")
		return nil
	}

	now := current.ledger.Now()
	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "ID\tCUSTOMER\tPRODUCT\tREMAINING\tDAYS SINCE PAYMENT")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
			v.ID, v.CustomerName, v.Product, current.money(v.Remaining), lateness.DaysSince(v.Sale, now))
	}
	return tw.Flush()
}

func runUpcoming(cmd *cobra.Command, args []string) error {
	upcoming := current.ledger.Upcoming(cmd.Context())
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), upcoming)
	}
	if len(upcoming) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing due in the next 7 days.")
		return nil
	}
	return printUpcoming(cmd.OutOrStdout(), upcoming)
}

func printUpcoming(w io.Writer, upcoming []metrics.Upcoming) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "DUE\tIN DAYS\tSALE\tCUSTOMER\t#\tAMOUNT")
	for _, u := range upcoming {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\n",
			formatDate(u.DueDate), u.DaysUntil, u.SaleID, u.CustomerName, u.Number, current.money(u.Amount))
	}
	return tw.Flush()
}
