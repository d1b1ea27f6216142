package reconciliation

import (
	"slices"

	"github.com/shopspring/decimal"
	"installments/pkg/models"
)

// ApplyPayment spends amount on the unpaid installments of schedule in due-date order
// (ties keep schedule order) and returns the part no installment absorbed.
//
// An installment whose owed amount is covered is marked paid. The first one that is
// not covered has its owed amount reduced by what is left and the sweep stops. Owed
// amounts never go negative.
func ApplyPayment(schedule []models.Installment, amount decimal.Decimal) decimal.Decimal {
	budget := amount
	for _, i := range dueOrder(schedule) {
		if !budget.IsPositive() {
			break
		}

		inst := &schedule[i]
		if inst.Paid {
			continue
		}
		if !inst.Amount.IsPositive() {
			// Nothing owed on a damaged record; settle it without spending budget.
			inst.Amount = decimal.Zero
			inst.Paid = true
			continue
		}

		remainder := inst.Amount.Sub(budget)
		if remainder.IsPositive() {
			inst.Amount = remainder
			budget = decimal.Zero
			break
		}

		// Covered: the overshoot carries forward to the next installment.
		inst.Paid = true
		budget = remainder.Neg()
	}
	return budget
}

// Resync rebuilds sale's schedule from its planned amounts and replays its payments in
// timestamp order. It is idempotent. Sales without a schedule are left untouched.
func Resync(sale *models.Sale) Result {
	result := Result{SaleID: sale.ID}
	if !sale.HasSchedule() {
		return result
	}

	before := slices.Clone(sale.Schedule)
	result.PaidBefore = PaidCount(before)

	result.UnattributedCredit = replay(sale.Schedule, plannedAmounts(*sale), *sale)

	result.PaidAfter = PaidCount(sale.Schedule)
	result.Changed = !sameSchedule(before, sale.Schedule)
	return result
}

// replay resets schedule to planned and applies sale's payments in timestamp order,
// then whatever paidAmount the payments do not account for. It returns that credit.
func replay(schedule []models.Installment, planned []decimal.Decimal, sale models.Sale) decimal.Decimal {
	for i := range schedule {
		schedule[i].OriginalAmount = planned[i]
		schedule[i].Amount = planned[i]
		schedule[i].Paid = false
	}

	payments := slices.Clone(sale.Payments)
	slices.SortStableFunc(payments, func(a, b models.Payment) int {
		return a.Date.Compare(b.Date)
	})
	for _, p := range payments {
		ApplyPayment(schedule, p.Amount)
	}

	credit := sale.PaidAmount.Sub(sale.PaymentsTotal())
	if !credit.IsPositive() {
		return decimal.Zero
	}
	ApplyPayment(schedule, credit)
	return credit
}

// PaidCount counts installments marked paid.
func PaidCount(schedule []models.Installment) int {
	n := 0
	for _, inst := range schedule {
		if inst.Paid {
			n++
		}
	}
	return n
}

// Outstanding sums what is still owed on unpaid installments.
func Outstanding(schedule []models.Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range schedule {
		if !inst.Paid {
			total = total.Add(inst.Amount)
		}
	}
	return total
}

// dueOrder returns schedule indices sorted by due date, stable on ties.
func dueOrder(schedule []models.Installment) []int {
	order := make([]int, len(schedule))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return schedule[a].DueDate.Compare(schedule[b].DueDate)
	})
	return order
}

func sameSchedule(a, b []models.Installment) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Paid != b[i].Paid ||
			!a[i].Amount.Equal(b[i].Amount) ||
			!a[i].OriginalAmount.Equal(b[i].OriginalAmount) {
			return false
		}
	}
	return true
}
