package reconciliation

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"installments/pkg/models"
)

// PlanAmounts splits total into count installments that sum exactly to total.
//
// With a positive per, the first count-1 installments are per and the last absorbs the
// remainder. Otherwise the total is split evenly in whole units: the first
// total mod count installments carry one unit more (so the first is ceil(total/count))
// and any fraction lands on the last.
func PlanAmounts(total decimal.Decimal, count int, per decimal.Decimal) ([]decimal.Decimal, error) {
	const op = "PlanAmounts"

	if count <= 0 {
		return nil, fmt.Errorf("%s: %w (got %d)", op, ErrInvalidCount, count)
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("%s: %w (got %s)", op, ErrInvalidTotal, total)
	}

	n := decimal.NewFromInt(int64(count))
	amounts := make([]decimal.Decimal, count)

	if per.IsPositive() {
		for i := 0; i < count-1; i++ {
			amounts[i] = per
		}
	} else {
		base := total.Div(n).Floor()
		extra := total.Sub(base.Mul(n)).Floor().IntPart()
		for i := 0; i < count-1; i++ {
			amounts[i] = base
			if int64(i) < extra {
				amounts[i] = base.Add(decimal.NewFromInt(1))
			}
		}
	}

	rest := total
	for _, a := range amounts[:count-1] {
		rest = rest.Sub(a)
	}
	amounts[count-1] = rest

	for i, a := range amounts {
		if !a.IsPositive() {
			return nil, fmt.Errorf("%s: %w: installment %d of %s for total %s",
				op, ErrPlanNotPositive, i+1, a, total)
		}
	}
	return amounts, nil
}

// BuildSchedule creates a fresh schedule of count monthly installments starting at
// firstDue. Installment i is due firstDue + i months.
func BuildSchedule(total decimal.Decimal, count int, per decimal.Decimal, firstDue time.Time) ([]models.Installment, error) {
	amounts, err := PlanAmounts(total, count, per)
	if err != nil {
		return nil, err
	}

	schedule := make([]models.Installment, count)
	for i, amount := range amounts {
		schedule[i] = models.Installment{
			Number:         i + 1,
			Amount:         amount,
			OriginalAmount: amount,
			DueDate:        firstDue.AddDate(0, i, 0),
		}
	}
	return schedule, nil
}

// Replan sets new planned amounts for total on sale's schedule, keeping its length
// and due dates. A plan built from a fixed installment amount keeps that amount when
// it still fits the new total; otherwise the total is split evenly. Paid state is left
// to a following Resync.
func Replan(sale *models.Sale, total decimal.Decimal) error {
	per := decimal.Zero
	if fixed, ok := fixedAmount(plannedAmounts(*sale)); ok {
		per = fixed
	}

	amounts, err := PlanAmounts(total, len(sale.Schedule), per)
	if err != nil && per.IsPositive() {
		amounts, err = PlanAmounts(total, len(sale.Schedule), decimal.Zero)
	}
	if err != nil {
		return err
	}
	for i := range sale.Schedule {
		sale.Schedule[i].OriginalAmount = amounts[i]
		sale.Schedule[i].Amount = amounts[i]
	}
	return nil
}

// fixedAmount reports the installment amount of a plan whose entries but the last are
// equal and which is neither the even split nor the ceil(total/count) split of its own
// total.
func fixedAmount(planned []decimal.Decimal) (decimal.Decimal, bool) {
	n := len(planned)
	if n < 2 {
		return decimal.Zero, false
	}
	for _, a := range planned[1 : n-1] {
		if !a.Equal(planned[0]) {
			return decimal.Zero, false
		}
	}

	total := decimal.Zero
	for _, a := range planned {
		total = total.Add(a)
	}
	if even, err := PlanAmounts(total, n, decimal.Zero); err == nil && sameAmounts(even, planned) {
		return decimal.Zero, false
	}
	if planned[0].Equal(ceilAmount(total, n)) {
		return decimal.Zero, false
	}
	return planned[0], true
}

// plannedAmounts returns each installment's planned amount. Schedules stored without
// planned amounts are recovered by legacyPlan.
func plannedAmounts(sale models.Sale) []decimal.Decimal {
	planned := make([]decimal.Decimal, len(sale.Schedule))
	for i, inst := range sale.Schedule {
		if !inst.OriginalAmount.IsPositive() {
			return legacyPlan(sale)
		}
		planned[i] = inst.OriginalAmount
	}
	return planned
}

// legacyPlan recovers the plan of a schedule stored without planned amounts. Such
// plans give every entry but the last one fixed amount, chosen at sale time or
// ceil(total/count), and the last the remainder. Entries left untouched by payments
// still hold that amount and partial payments only lower it, so the largest of them is
// the first candidate, ceil(total/count) the second and the even split the third. The
// first candidate whose replay reproduces the stored schedule wins, then the first
// valid one. The stored amounts are kept when no plan fits the total at all.
func legacyPlan(sale models.Sale) []decimal.Decimal {
	n := len(sale.Schedule)

	var candidates [][]decimal.Decimal
	try := func(per decimal.Decimal) {
		if amounts, err := PlanAmounts(sale.TotalAmount, n, per); err == nil {
			candidates = append(candidates, amounts)
		}
	}
	stored := decimal.Zero
	for _, inst := range sale.Schedule[:n-1] {
		stored = decimal.Max(stored, inst.Amount)
	}
	if stored.IsPositive() {
		try(stored)
	}
	try(ceilAmount(sale.TotalAmount, n))
	try(decimal.Zero)

	for _, planned := range candidates {
		if reproduces(sale, planned) {
			return planned
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}

	planned := make([]decimal.Decimal, n)
	for i, inst := range sale.Schedule {
		planned[i] = inst.Amount
	}
	return planned
}

// reproduces reports whether replaying sale's payments over planned yields the stored
// paid flags and the stored amounts owed on unpaid entries.
func reproduces(sale models.Sale, planned []decimal.Decimal) bool {
	trial := slices.Clone(sale.Schedule)
	replay(trial, planned, sale)
	for i := range trial {
		if trial[i].Paid != sale.Schedule[i].Paid {
			return false
		}
		if !trial[i].Paid && !trial[i].Amount.Equal(sale.Schedule[i].Amount) {
			return false
		}
	}
	return true
}

func ceilAmount(total decimal.Decimal, count int) decimal.Decimal {
	return total.Div(decimal.NewFromInt(int64(count))).Ceil()
}

func sameAmounts(a, b []decimal.Decimal) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
