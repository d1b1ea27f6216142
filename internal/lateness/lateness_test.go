package lateness

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"installments/pkg/models"
)

func TestIsLate(t *testing.T) {
	now := time.Date(2024, time.June, 30, 12, 0, 0, 0, time.UTC)
	created := now.AddDate(0, -3, 0)

	withPayment := func(at time.Time) models.Sale {
		return models.Sale{
			Date:     created,
			Payments: []models.Payment{{ID: "p1", Amount: decimal.NewFromInt(10), Date: at}},
		}
	}

	tests := []struct {
		name     string
		sale     models.Sale
		lateDays int
		want     bool
	}{
		{"no payments, old sale", models.Sale{Date: created}, 30, true},
		{"no payments, recent sale", models.Sale{Date: now.AddDate(0, 0, -5)}, 30, false},
		{"payment exactly on the threshold", withPayment(now.Add(-30 * day)), 30, false},
		{"payment one day past the threshold", withPayment(now.Add(-31 * day)), 30, true},
		{"payment one second past the threshold", withPayment(now.Add(-30*day - time.Second)), 30, true},
		{"custom threshold", withPayment(now.Add(-10 * day)), 7, true},
		{"non-positive threshold uses default", withPayment(now.Add(-20 * day)), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsLate(tt.sale, now, tt.lateDays))
		})
	}
}

func TestReferenceUsesLatestPayment(t *testing.T) {
	base := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	sale := models.Sale{
		Date: base,
		Payments: []models.Payment{
			{ID: "b", Date: base.AddDate(0, 0, 20)},
			{ID: "a", Date: base.AddDate(0, 0, 5)},
		},
	}

	assert.Equal(t, base.AddDate(0, 0, 20), Reference(sale))
	assert.Equal(t, 10, DaysSince(sale, base.AddDate(0, 0, 30)))
	assert.Equal(t, 0, DaysSince(sale, base))
}
