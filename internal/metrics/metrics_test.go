package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"installments/pkg/models"
)

var now = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func sale(id, customer string, total, paid int64, created time.Time) models.Sale {
	s := models.Sale{
		ID:           id,
		CustomerID:   customer,
		CustomerName: "name-" + customer,
		TotalAmount:  d(total),
		PaidAmount:   d(paid),
		Payments:     []models.Payment{},
		Date:         created,
	}
	if paid > 0 {
		s.Payments = append(s.Payments, models.Payment{ID: id + "-p", Amount: d(paid), Date: created})
	}
	return s
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusCompleted, StatusOf(sale("a", "c", 100, 100, now.AddDate(-1, 0, 0)), now, 30))
	assert.Equal(t, StatusLate, StatusOf(sale("b", "c", 100, 10, now.AddDate(0, -2, 0)), now, 30))
	assert.Equal(t, StatusActive, StatusOf(sale("c", "c", 100, 10, now.AddDate(0, 0, -3)), now, 30))
}

func TestSummarize(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		s := Summarize(nil, now, 30)
		assert.Equal(t, 0, s.CollectionRate)
		assert.Equal(t, 0, s.CompletionRate)
		assert.True(t, s.AverageSale.IsZero())
		assert.True(t, s.AveragePayment.IsZero())
		assert.Empty(t, s.TopCustomers)
	})

	t.Run("zero total has zero collection rate", func(t *testing.T) {
		s := Summarize([]models.Sale{{ID: "z", TotalAmount: decimal.Zero, PaidAmount: decimal.Zero, Date: now}}, now, 30)
		assert.Equal(t, 0, s.CollectionRate)
	})

	t.Run("counts and money", func(t *testing.T) {
		sales := []models.Sale{
			sale("s1", "c1", 1000, 1000, now.AddDate(0, 0, -40)),
			sale("s2", "c2", 600, 100, now.AddDate(0, 0, -40)),
			sale("s3", "c1", 500, 0, now.AddDate(0, 0, -2)),
		}
		s := Summarize(sales, now, 30)

		assert.Equal(t, 3, s.SaleCount)
		assert.Equal(t, 2, s.PaymentCount)
		assert.Equal(t, 1, s.Completed)
		assert.Equal(t, 1, s.Late)
		assert.Equal(t, 1, s.Active)
		assert.Equal(t, "2100", s.Total.String())
		assert.Equal(t, "1100", s.Collected.String())
		assert.Equal(t, "1000", s.Outstanding.String())
		assert.Equal(t, "500", s.LateDebt.String())
		assert.Equal(t, 52, s.CollectionRate)
		assert.Equal(t, 33, s.CompletionRate)
		assert.Equal(t, "700", s.AverageSale.String())
		assert.Equal(t, "550", s.AveragePayment.String())

		require.Len(t, s.TopCustomers, 2)
		assert.Equal(t, "c1", s.TopCustomers[0].CustomerID)
		assert.Equal(t, 2, s.TopCustomers[0].Count)
		assert.Equal(t, "1500", s.TopCustomers[0].Total.String())
	})

	t.Run("ranking keeps five and is stable", func(t *testing.T) {
		var sales []models.Sale
		for i := 0; i < 7; i++ {
			sales = append(sales, sale(fmt.Sprintf("s%d", i), fmt.Sprintf("c%d", i), 100, 0, now))
		}
		sales = append(sales, sale("big", "c6", 50, 0, now))

		top := Summarize(sales, now, 30).TopCustomers
		require.Len(t, top, TopCustomerLimit)
		assert.Equal(t, "c6", top[0].CustomerID)
		for i, want := range []string{"c0", "c1", "c2", "c3"} {
			assert.Equal(t, want, top[i+1].CustomerID)
		}
	})
}

func TestFilterPeriod(t *testing.T) {
	sales := []models.Sale{
		sale("m", "c", 1, 0, now.AddDate(0, 0, -3)),
		sale("y", "c", 1, 0, time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)),
		sale("o", "c", 1, 0, time.Date(2023, time.June, 20, 0, 0, 0, 0, time.UTC)),
	}

	assert.Len(t, FilterPeriod(sales, now, PeriodMonth), 1)
	assert.Len(t, FilterPeriod(sales, now, PeriodYear), 2)
	assert.Len(t, FilterPeriod(sales, now, PeriodAll), 3)
	assert.Equal(t, PeriodMonth, ParsePeriod("bogus"))
	assert.Equal(t, PeriodYear, ParsePeriod(" YEAR "))
}

func TestUpcomingInstallments(t *testing.T) {
	scheduled := sale("s1", "c1", 900, 0, now.AddDate(0, -1, 0))
	scheduled.Schedule = []models.Installment{
		{Number: 1, Amount: d(300), DueDate: now.Add(-time.Hour)},
		{Number: 2, Amount: d(300), DueDate: now.Add(6 * 24 * time.Hour)},
		{Number: 3, Amount: d(300), DueDate: now.Add(8 * 24 * time.Hour)},
	}
	paid := sale("s2", "c2", 300, 0, now)
	paid.Schedule = []models.Installment{{Number: 1, Amount: d(300), Paid: true, DueDate: now.Add(time.Hour)}}

	lump := sale("s3", "c3", 500, 200, now)
	lump.DueDate = now.Add(2 * time.Hour)

	edge := sale("s4", "c4", 100, 0, now)
	edge.DueDate = now.Add(UpcomingWindow)

	settled := sale("s5", "c5", 100, 100, now)
	settled.DueDate = now.Add(time.Hour)

	got := UpcomingInstallments([]models.Sale{scheduled, paid, lump, edge, settled}, now, UpcomingWindow)
	require.Len(t, got, 3)

	assert.Equal(t, "s3", got[0].SaleID)
	assert.Equal(t, "300", got[0].Amount.String())
	assert.Equal(t, 1, got[0].DaysUntil)

	assert.Equal(t, "s1", got[1].SaleID)
	assert.Equal(t, 2, got[1].Number)
	assert.Equal(t, 6, got[1].DaysUntil)

	assert.Equal(t, "s4", got[2].SaleID)
	assert.Equal(t, 7, got[2].DaysUntil)
}

func TestMonthlyRollup(t *testing.T) {
	sales := []models.Sale{
		sale("a", "c", 100, 50, now),
		sale("b", "c", 200, 0, time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)),
		sale("c", "c", 400, 0, time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC)),
	}

	rollup := MonthlyRollup(sales, now, RollupMonths)
	require.Len(t, rollup, RollupMonths)
	assert.Equal(t, time.January, rollup[0].Month.Month())
	assert.Equal(t, time.June, rollup[5].Month.Month())
	assert.Equal(t, "200", rollup[0].Total.String())
	assert.Equal(t, "100", rollup[5].Total.String())
	assert.Equal(t, "50", rollup[5].Collected.String())
}

func TestBuildDashboard(t *testing.T) {
	sales := []models.Sale{
		sale("a", "c1", 100, 50, now.AddDate(0, 0, -1)),
		sale("b", "c2", 200, 20, now.AddDate(0, -3, 0)),
	}

	dash := BuildDashboard(4, sales, now, 30)
	assert.Equal(t, 4, dash.Customers)
	assert.Equal(t, 2, dash.SaleCount)
	assert.Equal(t, 1, dash.Late)
	assert.Equal(t, 1, dash.MonthSales)
	assert.Equal(t, "50", dash.MonthCollected.String())
	assert.Equal(t, 23, dash.CollectionRate)

	report := BuildReport(sales, now, 30, PeriodMonth)
	assert.Equal(t, 1, report.SaleCount)
	assert.Len(t, report.Monthly, RollupMonths)
}
