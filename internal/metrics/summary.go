package metrics

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"installments/pkg/models"
)

// TopCustomerLimit is how many customers the ranking keeps.
const TopCustomerLimit = 5

var hundred = decimal.NewFromInt(100)

// CustomerTotal is one row of the customer ranking.
type CustomerTotal struct {
	CustomerID string          `json:"customerId"`
	Name       string          `json:"name"`
	Count      int             `json:"count"`
	Total      decimal.Decimal `json:"total"`
}

// Summary aggregates a set of sales.
type Summary struct {
	SaleCount    int `json:"saleCount"`
	PaymentCount int `json:"paymentCount"`
	Completed    int `json:"completed"`
	Active       int `json:"active"`
	Late         int `json:"late"`

	Total          decimal.Decimal `json:"total"`
	Collected      decimal.Decimal `json:"collected"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	LateDebt       decimal.Decimal `json:"lateDebt"`
	AverageSale    decimal.Decimal `json:"averageSale"`
	AveragePayment decimal.Decimal `json:"averagePayment"`

	// Percentages rounded to whole numbers.
	CollectionRate int `json:"collectionRate"`
	CompletionRate int `json:"completionRate"`

	TopCustomers []CustomerTotal `json:"topCustomers"`
}

// Summarize folds sales into a Summary.
func Summarize(sales []models.Sale, now time.Time, lateDays int) Summary {
	s := Summary{
		SaleCount:    len(sales),
		Total:        decimal.Zero,
		Collected:    decimal.Zero,
		Outstanding:  decimal.Zero,
		LateDebt:     decimal.Zero,
		TopCustomers: rankCustomers(sales),
	}

	for _, sale := range sales {
		s.Total = s.Total.Add(sale.TotalAmount)
		s.Collected = s.Collected.Add(sale.PaidAmount)
		s.Outstanding = s.Outstanding.Add(sale.Remaining())
		s.PaymentCount += len(sale.Payments)

		switch StatusOf(sale, now, lateDays) {
		case StatusCompleted:
			s.Completed++
		case StatusLate:
			s.Late++
			s.LateDebt = s.LateDebt.Add(sale.Remaining())
		default:
			s.Active++
		}
	}

	s.CollectionRate = percent(s.Collected, s.Total)
	s.CompletionRate = percent(decimal.NewFromInt(int64(s.Completed)), decimal.NewFromInt(int64(s.SaleCount)))
	s.AverageSale = average(s.Total, s.SaleCount)
	s.AveragePayment = average(s.Collected, s.PaymentCount)
	return s
}

// rankCustomers groups sales by customer and keeps the largest totals. Ties keep the
// order in which customers first appear.
func rankCustomers(sales []models.Sale) []CustomerTotal {
	index := make(map[string]int)
	ranked := make([]CustomerTotal, 0)
	for _, sale := range sales {
		i, ok := index[sale.CustomerID]
		if !ok {
			i = len(ranked)
			index[sale.CustomerID] = i
			ranked = append(ranked, CustomerTotal{
				CustomerID: sale.CustomerID,
				Name:       sale.CustomerName,
				Total:      decimal.Zero,
			})
		}
		ranked[i].Count++
		ranked[i].Total = ranked[i].Total.Add(sale.TotalAmount)
	}

	slices.SortStableFunc(ranked, func(a, b CustomerTotal) int {
		return b.Total.Cmp(a.Total)
	})
	if len(ranked) > TopCustomerLimit {
		ranked = ranked[:TopCustomerLimit]
	}
	return ranked
}

// percent is round(part/whole*100), or 0 when whole is not positive.
func percent(part, whole decimal.Decimal) int {
	if !whole.IsPositive() {
		return 0
	}
	return int(part.Div(whole).Mul(hundred).Round(0).IntPart())
}

// average is round(sum/n), or 0 when n is 0.
func average(sum decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n))).Round(0)
}
