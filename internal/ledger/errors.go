package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Common ledger errors
var (
	// ErrCustomerNotFound is returned when no customer has the requested id.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrSaleNotFound is returned when no sale has the requested id.
	ErrSaleNotFound = errors.New("sale not found")

	// ErrPaymentExceedsRemaining is returned when a payment is larger than what is
	// still owed on the sale.
	ErrPaymentExceedsRemaining = errors.New("payment exceeds remaining balance")

	// ErrTotalBelowPaid is returned when an edit would set a sale's total below what
	// was already paid.
	ErrTotalBelowPaid = errors.New("total amount is below the amount already paid")

	// ErrInvalidImport is returned when an import document cannot be read.
	ErrInvalidImport = errors.New("invalid import document")

	// ErrNoContractReader is returned when a contract scan is requested without an
	// OCR service.
	ErrNoContractReader = errors.New("no contract reader configured")

	// ErrEmptyScan is returned when a scanned contract yields no text.
	ErrEmptyScan = errors.New("scanned contract contains no text")
)

// ValidationError reports input rejected before any state was touched.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// fromValidator turns the first validator failure into a ValidationError.
func fromValidator(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "max":
		msg = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		msg = fmt.Sprintf("must be at least %s", fe.Param())
	case "gte":
		msg = fmt.Sprintf("must be %s or more", fe.Param())
	case "oneof":
		msg = fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		msg = fmt.Sprintf("failed %s check", fe.Tag())
	}
	return NewValidationError(field, fe.Value(), msg)
}
