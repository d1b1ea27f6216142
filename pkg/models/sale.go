package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers so exported documents stay readable by spreadsheet
	// tools and by older copies of the data.
	decimal.MarshalJSONWithoutQuotes = true
}

// Payment is an immutable record of money received against a sale.
type Payment struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
	Date   time.Time       `json:"date"`
}

// Installment is one scheduled portion of a sale's total.
//
// Amount is the balance still owed on the entry while it is unpaid and is reduced by
// partial payments. OriginalAmount is the planned amount and never changes after the
// schedule is built (or re-planned after a total edit).
type Installment struct {
	Number         int             `json:"number"`
	Amount         decimal.Decimal `json:"amount"`
	OriginalAmount decimal.Decimal `json:"originalAmount"`
	DueDate        time.Time       `json:"dueDate"`
	Paid           bool            `json:"paid"`
	PaidDate       *time.Time      `json:"paidDate"`
}

// Sale is a credit transaction for one customer.
type Sale struct {
	ID                string          `json:"id"`
	CustomerID        string          `json:"customerId"`
	CustomerName      string          `json:"customerName"`
	Product           string          `json:"product"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	PaidAmount        decimal.Decimal `json:"paidAmount"`
	Payments          []Payment       `json:"payments"`
	ContractText      string          `json:"contractText"`
	InstallmentsCount int             `json:"installmentsCount"`
	Schedule          []Installment   `json:"installmentsSchedule"`
	DueDate           time.Time       `json:"dueDate"`
	Date              time.Time       `json:"date"`
}

// Remaining is the balance still owed on the sale.
func (s Sale) Remaining() decimal.Decimal {
	return s.TotalAmount.Sub(s.PaidAmount)
}

// IsCompleted reports whether nothing remains to be paid.
func (s Sale) IsCompleted() bool {
	return !s.Remaining().IsPositive()
}

// HasSchedule reports whether the sale is paid in scheduled installments.
func (s Sale) HasSchedule() bool {
	return len(s.Schedule) > 0
}

// PaymentsTotal sums the amounts of all recorded payments.
func (s Sale) PaymentsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// LastPayment returns the payment with the latest timestamp.
func (s Sale) LastPayment() (Payment, bool) {
	if len(s.Payments) == 0 {
		return Payment{}, false
	}
	last := s.Payments[0]
	for _, p := range s.Payments[1:] {
		if !p.Date.Before(last.Date) {
			last = p
		}
	}
	return last, true
}

// Clone returns a deep copy so callers can mutate payments and schedule freely.
func (s Sale) Clone() Sale {
	c := s
	c.Payments = append([]Payment(nil), s.Payments...)
	c.Schedule = make([]Installment, len(s.Schedule))
	for i, inst := range s.Schedule {
		if inst.PaidDate != nil {
			d := *inst.PaidDate
			inst.PaidDate = &d
		}
		c.Schedule[i] = inst
	}
	return c
}

// UnmarshalJSON accepts the date-only due dates that older records carry.
func (s *Sale) UnmarshalJSON(data []byte) error {
	type alias Sale
	aux := struct {
		*alias
		DueDate json.RawMessage `json:"dueDate"`
		Date    json.RawMessage `json:"date"`
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if s.DueDate, err = parseFlexibleTime(aux.DueDate); err != nil {
		return fmt.Errorf("sale %s: dueDate: %w", s.ID, err)
	}
	if s.Date, err = parseFlexibleTime(aux.Date); err != nil {
		return fmt.Errorf("sale %s: date: %w", s.ID, err)
	}
	if s.Payments == nil {
		s.Payments = []Payment{}
	}
	if s.Schedule == nil {
		s.Schedule = []Installment{}
	}
	if s.InstallmentsCount < 1 {
		s.InstallmentsCount = 1
	}
	return nil
}

// UnmarshalJSON accepts date-only payment dates.
func (p *Payment) UnmarshalJSON(data []byte) error {
	type alias Payment
	aux := struct {
		*alias
		Date json.RawMessage `json:"date"`
	}{alias: (*alias)(p)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if p.Date, err = parseFlexibleTime(aux.Date); err != nil {
		return fmt.Errorf("payment %s: date: %w", p.ID, err)
	}
	return nil
}

// UnmarshalJSON accepts date-only due and paid dates.
func (i *Installment) UnmarshalJSON(data []byte) error {
	type alias Installment
	aux := struct {
		*alias
		DueDate  json.RawMessage `json:"dueDate"`
		PaidDate json.RawMessage `json:"paidDate"`
	}{alias: (*alias)(i)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if i.DueDate, err = parseFlexibleTime(aux.DueDate); err != nil {
		return fmt.Errorf("installment %d: dueDate: %w", i.Number, err)
	}
	paid, err := parseFlexibleTime(aux.PaidDate)
	if err != nil {
		return fmt.Errorf("installment %d: paidDate: %w", i.Number, err)
	}
	i.PaidDate = nil
	if !paid.IsZero() {
		i.PaidDate = &paid
	}
	return nil
}

// parseFlexibleTime parses RFC3339 timestamps and plain YYYY-MM-DD dates.
func parseFlexibleTime(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return time.Time{}, err
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return time.Time{}, nil
	}

	formats := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, str); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse time: %s", str)
}
