package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"installments/internal/ledger"
	"installments/internal/reconciliation"
)

var payCmd = &cobra.Command{
	Use:   "pay <sale-id> <amount>",
	Short: "Record a payment against a sale",
	Long: `Record money received for a sale. The payment settles installments in due
order; a partial payment reduces the next unpaid installment. A payment larger
than the remaining balance is rejected.`,
	Example: `  installments pay SALE-20240301-0001 500
  installments pay SALE-20240301-0001 250 --note "Cash at shop"`,
	Args: cobra.ExactArgs(2),
	RunE: runPay,
}

func init() {
	rootCmd.AddCommand(payCmd)
	payCmd.Flags().String("note", "", "Note stored with the payment (default \"Installment <n>\")")
}

func runPay(cmd *cobra.Command, args []string) error {
	amount, err := parseAmount("amount", args[1])
	if err != nil {
		return err
	}
	note, _ := cmd.Flags().GetString("note")

	sale, payment, err := current.ledger.RecordPayment(cmd.Context(), args[0], ledger.PaymentInput{
		Amount: amount,
		Note:   note,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✅ Payment of %s recorded for %s (%s)\n",
		current.money(payment.Amount), sale.CustomerName, payment.Note)
	if sale.IsCompleted() {
		fmt.Fprintln(out, "🎉 Sale fully paid")
		return nil
	}
	fmt.Fprintf(out, "Remaining: %s", current.money(sale.Remaining()))
	if sale.HasSchedule() {
		fmt.Fprintf(out, " (%d of %d installments paid)",
			reconciliation.PaidCount(sale.Schedule), len(sale.Schedule))
	}
	fmt.Fprintln(out)
	return nil
}
