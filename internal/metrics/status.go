// Package metrics folds sale records into dashboard and report figures.
//
// Everything here is a pure function of the records, the current time and the
// lateness threshold. Status is always derived, never stored.
package metrics

import (
	"strings"
	"time"

	"installments/internal/lateness"
	"installments/pkg/models"
)

// Status is the derived lifecycle state of a sale.
type Status string

const (
	StatusActive    Status = "active"
	StatusLate      Status = "late"
	StatusCompleted Status = "completed"
)

// StatusOf derives a sale's state. Completed wins over late.
func StatusOf(sale models.Sale, now time.Time, lateDays int) Status {
	switch {
	case sale.IsCompleted():
		return StatusCompleted
	case lateness.IsLate(sale, now, lateDays):
		return StatusLate
	default:
		return StatusActive
	}
}

// LateSales returns the sales with a balance left that are late, in input order.
func LateSales(sales []models.Sale, now time.Time, lateDays int) []models.Sale {
	late := make([]models.Sale, 0)
	for _, s := range sales {
		if StatusOf(s, now, lateDays) == StatusLate {
			late = append(late, s)
		}
	}
	return late
}

// Period is a report window anchored on the current time.
type Period string

const (
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

// ParsePeriod maps free text to a period, falling back to the current month.
func ParsePeriod(s string) Period {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodYear:
		return PeriodYear
	case PeriodAll:
		return PeriodAll
	default:
		return PeriodMonth
	}
}

// InPeriod reports whether t falls in p relative to now, in now's location.
func InPeriod(t, now time.Time, p Period) bool {
	t = t.In(now.Location())
	switch p {
	case PeriodYear:
		return t.Year() == now.Year()
	case PeriodMonth:
		return t.Year() == now.Year() && t.Month() == now.Month()
	default:
		return true
	}
}

// FilterPeriod keeps the sales created within p.
func FilterPeriod(sales []models.Sale, now time.Time, p Period) []models.Sale {
	filtered := make([]models.Sale, 0, len(sales))
	for _, s := range sales {
		if InPeriod(s.Date, now, p) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}
