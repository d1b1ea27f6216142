// Package lateness decides whether a sale is overdue. It answers a time question only:
// callers exclude fully paid sales themselves.
package lateness

import (
	"time"

	"installments/pkg/models"
)

const day = 24 * time.Hour

// Reference returns the instant lateness is measured from: the most recent payment,
// or the sale date when nothing was paid yet.
func Reference(sale models.Sale) time.Time {
	if last, ok := sale.LastPayment(); ok {
		return last.Date
	}
	return sale.Date
}

// IsLate reports whether more than lateDays days have passed since Reference(sale).
// Exactly lateDays days is not late. A non-positive lateDays uses the default.
func IsLate(sale models.Sale, now time.Time, lateDays int) bool {
	if lateDays <= 0 {
		lateDays = models.DefaultLateDays
	}
	return now.Sub(Reference(sale)) > time.Duration(lateDays)*day
}

// DaysSince returns whole days elapsed since Reference(sale), never negative.
func DaysSince(sale models.Sale, now time.Time) int {
	elapsed := now.Sub(Reference(sale))
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / day)
}
