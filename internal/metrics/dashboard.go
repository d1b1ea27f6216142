package metrics

import (
	"time"

	"github.com/shopspring/decimal"
	"installments/pkg/models"
)

// RollupMonths is how many calendar months the monthly rollup covers.
const RollupMonths = 6

// MonthTotal is one month of the rollup.
type MonthTotal struct {
	Month     time.Time       `json:"month"`
	Total     decimal.Decimal `json:"total"`
	Collected decimal.Decimal `json:"collected"`
}

// MonthlyRollup totals sales per calendar month for the last months months, oldest
// first, ending with the month of now.
func MonthlyRollup(sales []models.Sale, now time.Time, months int) []MonthTotal {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	rollup := make([]MonthTotal, months)
	for i := range rollup {
		rollup[i] = MonthTotal{
			Month:     start.AddDate(0, i-(months-1), 0),
			Total:     decimal.Zero,
			Collected: decimal.Zero,
		}
	}

	for _, sale := range sales {
		d := sale.Date.In(now.Location())
		for i := range rollup {
			m := rollup[i].Month
			if d.Year() == m.Year() && d.Month() == m.Month() {
				rollup[i].Total = rollup[i].Total.Add(sale.TotalAmount)
				rollup[i].Collected = rollup[i].Collected.Add(sale.PaidAmount)
				break
			}
		}
	}
	return rollup
}

// Dashboard is the overview screen.
type Dashboard struct {
	Customers int `json:"customers"`
	Summary

	MonthSales     int             `json:"monthSales"`
	MonthCollected decimal.Decimal `json:"monthCollected"`

	Upcoming []Upcoming `json:"upcoming"`
}

// BuildDashboard computes the overview across all sales.
func BuildDashboard(customers int, sales []models.Sale, now time.Time, lateDays int) Dashboard {
	d := Dashboard{
		Customers:      customers,
		Summary:        Summarize(sales, now, lateDays),
		MonthCollected: decimal.Zero,
		Upcoming:       UpcomingInstallments(sales, now, UpcomingWindow),
	}

	for _, sale := range FilterPeriod(sales, now, PeriodMonth) {
		d.MonthSales++
		d.MonthCollected = d.MonthCollected.Add(sale.PaidAmount)
	}
	return d
}

// Report is the period report.
type Report struct {
	Period Period `json:"period"`
	Summary
	Monthly []MonthTotal `json:"monthly"`
}

// BuildReport summarizes the sales created within period. The monthly rollup always
// covers all sales.
func BuildReport(sales []models.Sale, now time.Time, lateDays int, period Period) Report {
	return Report{
		Period:  period,
		Summary: Summarize(FilterPeriod(sales, now, period), now, lateDays),
		Monthly: MonthlyRollup(sales, now, RollupMonths),
	}
}
