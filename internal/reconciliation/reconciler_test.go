package reconciliation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"installments/pkg/models"
)

var firstDue = time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func amounts(schedule []models.Installment) []string {
	out := make([]string, len(schedule))
	for i, inst := range schedule {
		out[i] = inst.Amount.String()
	}
	return out
}

func paidFlags(schedule []models.Installment) []bool {
	out := make([]bool, len(schedule))
	for i, inst := range schedule {
		out[i] = inst.Paid
	}
	return out
}

func newSale(t *testing.T, total int64, count int) models.Sale {
	t.Helper()
	schedule, err := BuildSchedule(d(total), count, decimal.Zero, firstDue)
	require.NoError(t, err)
	return models.Sale{
		ID:                "SALE-20240301-0001",
		TotalAmount:       d(total),
		PaidAmount:        decimal.Zero,
		Payments:          []models.Payment{},
		InstallmentsCount: count,
		Schedule:          schedule,
	}
}

func pay(sale *models.Sale, amount int64, at time.Time) {
	sale.Payments = append(sale.Payments, models.Payment{ID: at.String(), Amount: d(amount), Date: at})
	sale.PaidAmount = sale.PaidAmount.Add(d(amount))
	ApplyPayment(sale.Schedule, d(amount))
}

func TestPlanAmounts(t *testing.T) {
	t.Run("even split carries extra units first", func(t *testing.T) {
		plan, err := PlanAmounts(d(1000), 3, decimal.Zero)
		require.NoError(t, err)
		assert.Equal(t, "334", plan[0].String())
		assert.Equal(t, "333", plan[1].String())
		assert.Equal(t, "333", plan[2].String())
	})

	t.Run("fraction lands on the last installment", func(t *testing.T) {
		plan, err := PlanAmounts(decimal.RequireFromString("1001.5"), 2, decimal.Zero)
		require.NoError(t, err)
		assert.Equal(t, "501", plan[0].String())
		assert.Equal(t, "500.5", plan[1].String())
	})

	t.Run("custom installment amount", func(t *testing.T) {
		plan, err := PlanAmounts(d(1000), 4, d(300))
		require.NoError(t, err)
		assert.Equal(t, []string{"300", "300", "300", "100"},
			[]string{plan[0].String(), plan[1].String(), plan[2].String(), plan[3].String()})
	})

	t.Run("single installment", func(t *testing.T) {
		plan, err := PlanAmounts(d(750), 1, decimal.Zero)
		require.NoError(t, err)
		require.Len(t, plan, 1)
		assert.Equal(t, "750", plan[0].String())
	})

	t.Run("rejects bad input", func(t *testing.T) {
		_, err := PlanAmounts(d(1000), 0, decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidCount)

		_, err = PlanAmounts(decimal.Zero, 3, decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidTotal)

		_, err = PlanAmounts(d(1000), 3, d(500))
		assert.ErrorIs(t, err, ErrPlanNotPositive)

		_, err = PlanAmounts(d(3), 4, decimal.Zero)
		assert.ErrorIs(t, err, ErrPlanNotPositive)
	})
}

func TestBuildSchedule(t *testing.T) {
	schedule, err := BuildSchedule(d(1000), 3, decimal.Zero, firstDue)
	require.NoError(t, err)
	require.Len(t, schedule, 3)

	for i, inst := range schedule {
		assert.Equal(t, i+1, inst.Number)
		assert.True(t, inst.Amount.Equal(inst.OriginalAmount))
		assert.False(t, inst.Paid)
		assert.Nil(t, inst.PaidDate)
		assert.Equal(t, firstDue.AddDate(0, i, 0), inst.DueDate)
	}
}

func TestApplyPayment(t *testing.T) {
	t.Run("partial payment reduces the next installment", func(t *testing.T) {
		sale := newSale(t, 1000, 3)
		left := ApplyPayment(sale.Schedule, d(500))

		assert.True(t, left.IsZero())
		assert.Equal(t, []bool{true, false, false}, paidFlags(sale.Schedule))
		assert.Equal(t, []string{"334", "167", "333"}, amounts(sale.Schedule))
		assert.Equal(t, "333", sale.Schedule[1].OriginalAmount.String())
	})

	t.Run("exact cover marks installment paid", func(t *testing.T) {
		sale := newSale(t, 1000, 3)
		ApplyPayment(sale.Schedule, d(334))
		assert.Equal(t, []bool{true, false, false}, paidFlags(sale.Schedule))
		assert.Equal(t, "333", sale.Schedule[1].Amount.String())
	})

	t.Run("surplus is returned", func(t *testing.T) {
		sale := newSale(t, 1000, 3)
		left := ApplyPayment(sale.Schedule, d(1200))
		assert.Equal(t, "200", left.String())
		assert.Equal(t, []bool{true, true, true}, paidFlags(sale.Schedule))
	})

	t.Run("due date order wins over position", func(t *testing.T) {
		sale := newSale(t, 1000, 3)
		sale.Schedule[0].DueDate, sale.Schedule[2].DueDate = sale.Schedule[2].DueDate, sale.Schedule[0].DueDate

		ApplyPayment(sale.Schedule, d(333))
		assert.Equal(t, []bool{false, false, true}, paidFlags(sale.Schedule))
	})

	t.Run("damaged negative amount never grows the budget", func(t *testing.T) {
		sale := newSale(t, 1000, 3)
		sale.Schedule[0].Amount = d(-50)

		left := ApplyPayment(sale.Schedule, d(100))
		assert.True(t, left.IsZero())
		assert.True(t, sale.Schedule[0].Paid)
		assert.True(t, sale.Schedule[0].Amount.IsZero())
		assert.Equal(t, "233", sale.Schedule[1].Amount.String())
	})
}

func TestResync(t *testing.T) {
	base := time.Date(2024, time.March, 20, 10, 0, 0, 0, time.UTC)

	t.Run("matches incremental application", func(t *testing.T) {
		sale := newSale(t, 1000, 3)
		pay(&sale, 200, base)
		pay(&sale, 300, base.Add(time.Hour))
		pay(&sale, 150, base.Add(2*time.Hour))
		want := amounts(sale.Schedule)
		wantPaid := paidFlags(sale.Schedule)

		res := Resync(&sale)
		assert.False(t, res.Changed)
		assert.Equal(t, want, amounts(sale.Schedule))
		assert.Equal(t, wantPaid, paidFlags(sale.Schedule))
		require.NoError(t, Verify(sale))
	})

	t.Run("replays payments in timestamp order", func(t *testing.T) {
		sale := newSale(t, 1000, 3)
		sale.Payments = []models.Payment{
			{ID: "b", Amount: d(100), Date: base.Add(time.Hour)},
			{ID: "a", Amount: d(400), Date: base},
		}
		sale.PaidAmount = d(500)

		res := Resync(&sale)
		assert.True(t, res.Changed)
		assert.Equal(t, 1, res.PaidAfter)
		assert.Equal(t, []string{"334", "167", "333"}, amounts(sale.Schedule))
	})

	t.Run("is idempotent", func(t *testing.T) {
		sale := newSale(t, 1000, 3)
		sale.Payments = []models.Payment{{ID: "a", Amount: d(700), Date: base}}
		sale.PaidAmount = d(700)

		Resync(&sale)
		first := amounts(sale.Schedule)
		res := Resync(&sale)

		assert.False(t, res.Changed)
		assert.Equal(t, first, amounts(sale.Schedule))
	})

	t.Run("paid installments form a prefix", func(t *testing.T) {
		sale := newSale(t, 1200, 6)
		sale.Schedule[3].Paid = true
		sale.Payments = []models.Payment{{ID: "a", Amount: d(450), Date: base}}
		sale.PaidAmount = d(450)

		Resync(&sale)
		flags := paidFlags(sale.Schedule)
		seenUnpaid := false
		for _, paid := range flags {
			if !paid {
				seenUnpaid = true
				continue
			}
			assert.False(t, seenUnpaid, "paid installment after an unpaid one: %v", flags)
		}
		assert.Equal(t, 2, PaidCount(sale.Schedule))
	})

	t.Run("applies legacy credit beyond recorded payments", func(t *testing.T) {
		sale := newSale(t, 1000, 3)
		sale.PaidAmount = d(400)

		res := Resync(&sale)
		assert.Equal(t, "400", res.UnattributedCredit.String())
		assert.Equal(t, []string{"334", "267", "333"}, amounts(sale.Schedule))
		require.NoError(t, Verify(sale))
	})

	t.Run("recovers plans stored without planned amounts", func(t *testing.T) {
		tests := []struct {
			name         string
			total        int64
			stored       []int64
			paid         []bool
			payments     []int64
			wantPlanned  []string
			wantAmounts  []string
			wantPaidFlag []bool
		}{
			{
				name:         "fixed installment amount",
				total:        1000,
				stored:       []int64{300, 300, 300, 100},
				paid:         []bool{true, false, false, false},
				payments:     []int64{300},
				wantPlanned:  []string{"300", "300", "300", "100"},
				wantAmounts:  []string{"300", "300", "300", "100"},
				wantPaidFlag: []bool{true, false, false, false},
			},
			{
				name:         "ceil split with a partial payment",
				total:        1000,
				stored:       []int64{334, 168, 332},
				paid:         []bool{true, false, false},
				payments:     []int64{500},
				wantPlanned:  []string{"334", "334", "332"},
				wantAmounts:  []string{"334", "168", "332"},
				wantPaidFlag: []bool{true, false, false},
			},
			{
				name:         "every fixed entry partly paid",
				total:        1000,
				stored:       []int64{300, 500},
				paid:         []bool{false, false},
				payments:     []int64{200},
				wantPlanned:  []string{"500", "500"},
				wantAmounts:  []string{"300", "500"},
				wantPaidFlag: []bool{false, false},
			},
			{
				name:         "untouched ceil split",
				total:        1000,
				stored:       []int64{334, 334, 332},
				paid:         []bool{false, false, false},
				wantPlanned:  []string{"334", "334", "332"},
				wantAmounts:  []string{"334", "334", "332"},
				wantPaidFlag: []bool{false, false, false},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				sale := models.Sale{ID: "SALE-LEGACY", TotalAmount: d(tt.total), PaidAmount: decimal.Zero}
				for i, amount := range tt.stored {
					sale.Schedule = append(sale.Schedule, models.Installment{
						Number:  i + 1,
						Amount:  d(amount),
						DueDate: firstDue.AddDate(0, i, 0),
						Paid:    tt.paid[i],
					})
				}
				for i, amount := range tt.payments {
					sale.Payments = append(sale.Payments, models.Payment{
						ID: "p", Amount: d(amount), Date: base.Add(time.Duration(i) * time.Hour),
					})
					sale.PaidAmount = sale.PaidAmount.Add(d(amount))
				}

				Resync(&sale)

				planned := make([]string, len(sale.Schedule))
				for i, inst := range sale.Schedule {
					planned[i] = inst.OriginalAmount.String()
				}
				assert.Equal(t, tt.wantPlanned, planned)
				assert.Equal(t, tt.wantAmounts, amounts(sale.Schedule))
				assert.Equal(t, tt.wantPaidFlag, paidFlags(sale.Schedule))
				require.NoError(t, Verify(sale))
			})
		}
	})

	t.Run("leaves lump sum sales alone", func(t *testing.T) {
		sale := models.Sale{ID: "SALE-1", TotalAmount: d(500), InstallmentsCount: 1}
		res := Resync(&sale)
		assert.False(t, res.Changed)
		assert.Empty(t, sale.Schedule)
	})
}

func TestReplan(t *testing.T) {
	t.Run("even plan stays even", func(t *testing.T) {
		sale := newSale(t, 1000, 3)
		require.NoError(t, Replan(&sale, d(1300)))
		assert.Equal(t, []string{"434", "433", "433"}, amounts(sale.Schedule))
		assert.Equal(t, firstDue, sale.Schedule[0].DueDate)
	})

	t.Run("keeps a fixed installment amount", func(t *testing.T) {
		schedule, err := BuildSchedule(d(1000), 4, d(300), firstDue)
		require.NoError(t, err)
		sale := models.Sale{ID: "SALE-1", TotalAmount: d(1000), Schedule: schedule}

		require.NoError(t, Replan(&sale, d(1200)))
		assert.Equal(t, []string{"300", "300", "300", "300"}, amounts(sale.Schedule))
	})

	t.Run("falls back to an even plan when the fixed amount no longer fits", func(t *testing.T) {
		schedule, err := BuildSchedule(d(1000), 4, d(300), firstDue)
		require.NoError(t, err)
		sale := models.Sale{ID: "SALE-1", TotalAmount: d(1000), Schedule: schedule}

		require.NoError(t, Replan(&sale, d(800)))
		assert.Equal(t, []string{"200", "200", "200", "200"}, amounts(sale.Schedule))
	})

	t.Run("ceil plan is not treated as fixed", func(t *testing.T) {
		sale := models.Sale{ID: "SALE-1", TotalAmount: d(1000), Schedule: []models.Installment{
			{Number: 1, Amount: d(334), OriginalAmount: d(334), DueDate: firstDue},
			{Number: 2, Amount: d(334), OriginalAmount: d(334), DueDate: firstDue.AddDate(0, 1, 0)},
			{Number: 3, Amount: d(332), OriginalAmount: d(332), DueDate: firstDue.AddDate(0, 2, 0)},
		}}

		require.NoError(t, Replan(&sale, d(1300)))
		assert.Equal(t, []string{"434", "433", "433"}, amounts(sale.Schedule))
	})
}

func TestVerify(t *testing.T) {
	sale := newSale(t, 1000, 3)
	pay(&sale, 500, firstDue)
	require.NoError(t, Verify(sale))

	sale.Schedule[2].OriginalAmount = d(100)
	assert.ErrorIs(t, Verify(sale), ErrScheduleMismatch)

	sale = newSale(t, 1000, 3)
	sale.PaidAmount = d(500)
	assert.ErrorIs(t, Verify(sale), ErrScheduleMismatch)
}
