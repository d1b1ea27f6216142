package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"installments/pkg/models"
)

// CustomerInput holds the editable customer fields.
type CustomerInput struct {
	Name     string `validate:"required,max=120"`
	Phone    string `validate:"max=40"`
	Address  string `validate:"max=300"`
	Notes    string `validate:"max=2000"`
	Category string `validate:"omitempty,oneof=normal vip problematic"`
}

func (in CustomerInput) trimmed() CustomerInput {
	return CustomerInput{
		Name:     strings.TrimSpace(in.Name),
		Phone:    strings.TrimSpace(in.Phone),
		Address:  strings.TrimSpace(in.Address),
		Notes:    strings.TrimSpace(in.Notes),
		Category: strings.ToLower(strings.TrimSpace(in.Category)),
	}
}

// CustomerView is a customer with totals over their sales.
type CustomerView struct {
	models.Customer
	SaleCount int             `json:"saleCount"`
	Total     decimal.Decimal `json:"total"`
	Paid      decimal.Decimal `json:"paid"`
	Remaining decimal.Decimal `json:"remaining"`
}

// CustomerFilter narrows ListCustomers. Empty fields match everything.
type CustomerFilter struct {
	Query    string
	Category string
}

func (s *Service) AddCustomer(ctx context.Context, in CustomerInput) (models.Customer, error) {
	const op = "AddCustomer"

	in = in.trimmed()
	if err := s.check(in); err != nil {
		return models.Customer{}, err
	}

	customer := models.Customer{
		ID:       uuid.NewString(),
		Name:     in.Name,
		Phone:    in.Phone,
		Address:  in.Address,
		Notes:    in.Notes,
		Category: models.ParseCustomerCategory(in.Category),
	}

	customers, err := s.records.Customers(ctx).ForUpdate()
	if err != nil {
		return models.Customer{}, fmt.Errorf("%s: %w", op, err)
	}
	customers = append(customers, customer)
	if err := s.records.SaveCustomers(ctx, customers); err != nil {
		return models.Customer{}, fmt.Errorf("%s: %w", op, err)
	}

	s.record(ctx, models.ActivityCustomer, "Added customer: "+customer.Name,
		map[string]string{"customerId": customer.ID})
	s.mirrorSave(models.CollectionCustomers, customer.ID, customer)

	s.log.Info().Str("customer_id", customer.ID).Msg("Customer added")
	return customer, nil
}

// UpdateCustomer replaces the editable fields of an existing customer. Sales keep the
// name they were created with.
func (s *Service) UpdateCustomer(ctx context.Context, id string, in CustomerInput) (models.Customer, error) {
	const op = "UpdateCustomer"

	in = in.trimmed()
	if err := s.check(in); err != nil {
		return models.Customer{}, err
	}

	customers, err := s.records.Customers(ctx).ForUpdate()
	if err != nil {
		return models.Customer{}, fmt.Errorf("%s: %w", op, err)
	}
	idx := indexCustomer(customers, id)
	if idx < 0 {
		return models.Customer{}, fmt.Errorf("%s: %w: %s", op, ErrCustomerNotFound, id)
	}

	c := &customers[idx]
	c.Name = in.Name
	c.Phone = in.Phone
	c.Address = in.Address
	c.Notes = in.Notes
	c.Category = models.ParseCustomerCategory(in.Category)

	if err := s.records.SaveCustomers(ctx, customers); err != nil {
		return models.Customer{}, fmt.Errorf("%s: %w", op, err)
	}

	s.record(ctx, models.ActivityCustomer, "Updated customer: "+c.Name,
		map[string]string{"customerId": id})
	s.mirrorSave(models.CollectionCustomers, id, *c)
	return *c, nil
}

// DeleteCustomer removes a customer and every sale referencing them. It returns the
// number of sales removed.
func (s *Service) DeleteCustomer(ctx context.Context, id string) (int, error) {
	const op = "DeleteCustomer"

	customers, err := s.records.Customers(ctx).ForUpdate()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	idx := indexCustomer(customers, id)
	if idx < 0 {
		return 0, fmt.Errorf("%s: %w: %s", op, ErrCustomerNotFound, id)
	}
	name := customers[idx].Name

	sales, err := s.records.Sales(ctx).ForUpdate()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	kept := make([]models.Sale, 0, len(sales))
	var removed []string
	for _, sale := range sales {
		if sale.CustomerID == id {
			removed = append(removed, sale.ID)
			continue
		}
		kept = append(kept, sale)
	}

	// Orphaned sales are tolerated on read, so the customer goes first.
	remaining := append(customers[:idx:idx], customers[idx+1:]...)
	if err := s.records.SaveCustomers(ctx, remaining); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(removed) > 0 {
		if err := s.records.SaveSales(ctx, kept); err != nil {
			return 0, fmt.Errorf("%s: failed to remove sales of %s: %w", op, id, err)
		}
	}

	s.record(ctx, models.ActivityCustomer, "Deleted customer: "+name,
		map[string]string{"customerId": id})
	s.mirrorDelete(models.CollectionCustomers, id)
	for _, saleID := range removed {
		s.mirrorDelete(models.CollectionSales, saleID)
	}

	s.log.Info().
		Str("customer_id", id).
		Int("sales_removed", len(removed)).
		Msg("Customer deleted")
	return len(removed), nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (CustomerView, error) {
	customers := s.records.Customers(ctx).Value
	idx := indexCustomer(customers, id)
	if idx < 0 {
		return CustomerView{}, fmt.Errorf("GetCustomer: %w: %s", ErrCustomerNotFound, id)
	}
	return viewCustomer(customers[idx], s.records.Sales(ctx).Value), nil
}

// ListCustomers returns matching customers in stored order. The query matches name,
// phone, address and notes case-insensitively.
func (s *Service) ListCustomers(ctx context.Context, filter CustomerFilter) []CustomerView {
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	category := strings.ToLower(strings.TrimSpace(filter.Category))
	sales := s.records.Sales(ctx).Value

	views := make([]CustomerView, 0)
	for _, c := range s.records.Customers(ctx).Value {
		if category != "" && category != "all" && string(c.Category) != category {
			continue
		}
		if q != "" && !containsAny(q, c.Name, c.Phone, c.Address, c.Notes) {
			continue
		}
		views = append(views, viewCustomer(c, sales))
	}
	return views
}

func viewCustomer(c models.Customer, sales []models.Sale) CustomerView {
	v := CustomerView{Customer: c, Total: decimal.Zero, Paid: decimal.Zero}
	for _, sale := range sales {
		if sale.CustomerID != c.ID {
			continue
		}
		v.SaleCount++
		v.Total = v.Total.Add(sale.TotalAmount)
		v.Paid = v.Paid.Add(sale.PaidAmount)
	}
	v.Remaining = v.Total.Sub(v.Paid)
	return v
}

func indexCustomer(customers []models.Customer, id string) int {
	for i, c := range customers {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// containsAny reports whether any field contains q, ignoring case. q is lower case.
func containsAny(q string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
