package metrics

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"installments/pkg/models"
)

// UpcomingWindow is how far ahead upcoming installments are listed.
const UpcomingWindow = 7 * 24 * time.Hour

// Upcoming is an unpaid installment falling due soon. Sales without a schedule show
// their remaining balance as installment 1.
type Upcoming struct {
	SaleID       string          `json:"saleId"`
	CustomerName string          `json:"customerName"`
	Product      string          `json:"product"`
	Number       int             `json:"number"`
	Amount       decimal.Decimal `json:"amount"`
	DueDate      time.Time       `json:"dueDate"`
	DaysUntil    int             `json:"daysUntil"`
}

// UpcomingInstallments lists unpaid installments due within [now, now+window],
// earliest first.
func UpcomingInstallments(sales []models.Sale, now time.Time, window time.Duration) []Upcoming {
	end := now.Add(window)
	inWindow := func(t time.Time) bool {
		return !t.IsZero() && !t.Before(now) && !t.After(end)
	}

	upcoming := make([]Upcoming, 0)
	for _, sale := range sales {
		if sale.HasSchedule() {
			for _, inst := range sale.Schedule {
				if inst.Paid || !inWindow(inst.DueDate) {
					continue
				}
				upcoming = append(upcoming, newUpcoming(sale, inst.Number, inst.Amount, inst.DueDate, now))
			}
			continue
		}

		if remaining := sale.Remaining(); remaining.IsPositive() && inWindow(sale.DueDate) {
			upcoming = append(upcoming, newUpcoming(sale, 1, remaining, sale.DueDate, now))
		}
	}

	slices.SortStableFunc(upcoming, func(a, b Upcoming) int {
		return a.DueDate.Compare(b.DueDate)
	})
	return upcoming
}

func newUpcoming(sale models.Sale, number int, amount decimal.Decimal, due, now time.Time) Upcoming {
	days := due.Sub(now) / (24 * time.Hour)
	if due.Sub(now)%(24*time.Hour) > 0 {
		days++
	}
	return Upcoming{
		SaleID:       sale.ID,
		CustomerName: sale.CustomerName,
		Product:      sale.Product,
		Number:       number,
		Amount:       amount,
		DueDate:      due,
		DaysUntil:    int(days),
	}
}
