package reconciliation

import (
	"fmt"

	"github.com/shopspring/decimal"
	"installments/pkg/models"
)

// Verify checks that a scheduled sale reconciles: planned amounts sum to the total,
// no installment owes a negative amount, and what is still owed plus what was applied
// equals the total. Sales without a schedule always verify.
func Verify(sale models.Sale) error {
	const op = "Verify"

	if !sale.HasSchedule() {
		return nil
	}

	planned := decimal.Zero
	for _, inst := range sale.Schedule {
		if inst.Amount.IsNegative() {
			return fmt.Errorf("%s: %w: %s installment %d owes %s",
				op, ErrScheduleMismatch, sale.ID, inst.Number, inst.Amount)
		}
		planned = planned.Add(inst.OriginalAmount)
	}
	if !planned.Equal(sale.TotalAmount) {
		return fmt.Errorf("%s: %w: %s plans %s against total %s",
			op, ErrScheduleMismatch, sale.ID, planned, sale.TotalAmount)
	}

	applied := decimal.Min(sale.PaidAmount, sale.TotalAmount)
	if applied.IsNegative() {
		applied = decimal.Zero
	}
	outstanding := Outstanding(sale.Schedule)
	if !outstanding.Add(applied).Equal(sale.TotalAmount) {
		return fmt.Errorf("%s: %w: %s owes %s after %s paid of %s",
			op, ErrScheduleMismatch, sale.ID, outstanding, applied, sale.TotalAmount)
	}
	return nil
}
