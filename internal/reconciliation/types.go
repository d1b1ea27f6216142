// Package reconciliation keeps a sale's installment schedule consistent with the money
// paid against it.
//
// Incremental application is the single algorithm: every payment is spent on unpaid
// installments in due-date order, partially crediting the first one it cannot cover.
// A full resync rebuilds the schedule from its planned amounts and replays the sale's
// payments in timestamp order, so both paths always agree.
//
// Neither path changes a sale's total, the number of installments or any due date.
package reconciliation

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCount is returned when a schedule is requested with no installments.
	ErrInvalidCount = errors.New("installment count must be positive")

	// ErrInvalidTotal is returned when a schedule is requested for a non-positive total.
	ErrInvalidTotal = errors.New("total amount must be positive")

	// ErrPlanNotPositive is returned when a plan would leave an installment with
	// nothing to pay.
	ErrPlanNotPositive = errors.New("installment plan leaves an installment with nothing to pay")

	// ErrScheduleMismatch is returned by Verify when a schedule does not reconcile.
	ErrScheduleMismatch = errors.New("schedule does not reconcile with sale")
)

// Result describes what a resync did to one sale.
type Result struct {
	SaleID  string
	Changed bool

	// PaidBefore and PaidAfter count installments marked paid.
	PaidBefore int
	PaidAfter  int

	// UnattributedCredit is paidAmount beyond the recorded payments, applied last.
	UnattributedCredit decimal.Decimal
}
