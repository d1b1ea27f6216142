package ledger

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"installments/internal/metrics"
	"installments/internal/reconciliation"
	"installments/pkg/models"
)

// MinSaleAmount is the smallest accepted sale total.
var MinSaleAmount = decimal.NewFromInt(1)

// SaleInput describes a new sale. InstallmentsCount 0 means a single lump-sum payment.
// InstallmentAmount, when positive, fixes every installment but the last.
type SaleInput struct {
	CustomerID        string `validate:"required"`
	Product           string `validate:"required,max=200"`
	TotalAmount       decimal.Decimal
	InstallmentsCount int `validate:"gte=0,max=360"`
	InstallmentAmount decimal.Decimal
	FirstDueDate      time.Time
	ContractText      string
}

// SaleEdit holds the fields of a sale that may change after creation.
type SaleEdit struct {
	Product      string `validate:"required,max=200"`
	TotalAmount  decimal.Decimal
	ContractText string
}

// SaleView is a sale with its derived state.
type SaleView struct {
	models.Sale
	Status    metrics.Status  `json:"status"`
	Remaining decimal.Decimal `json:"remaining"`
}

// SaleFilter narrows ListSales. Zero fields match everything.
type SaleFilter struct {
	Query      string
	CustomerID string
	Status     metrics.Status
	From       time.Time
	To         time.Time
	MinAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
}

// AddSale records a new sale with its installment schedule and contract.
func (s *Service) AddSale(ctx context.Context, in SaleInput) (models.Sale, error) {
	const op = "AddSale"

	in.CustomerID = strings.TrimSpace(in.CustomerID)
	in.Product = strings.TrimSpace(in.Product)
	in.ContractText = strings.TrimSpace(in.ContractText)
	if err := s.check(in); err != nil {
		return models.Sale{}, err
	}
	if in.TotalAmount.LessThan(MinSaleAmount) {
		return models.Sale{}, NewValidationError("totalAmount", in.TotalAmount, "must be at least 1")
	}
	if in.InstallmentAmount.IsNegative() {
		return models.Sale{}, NewValidationError("installmentAmount", in.InstallmentAmount, "must not be negative")
	}

	customers := s.records.Customers(ctx).Value
	idx := indexCustomer(customers, in.CustomerID)
	if idx < 0 {
		return models.Sale{}, fmt.Errorf("%s: %w: %s", op, ErrCustomerNotFound, in.CustomerID)
	}
	customer := customers[idx]

	now := s.clock()
	firstDue := in.FirstDueDate
	if firstDue.IsZero() {
		firstDue = now
	}

	var schedule []models.Installment
	if in.InstallmentsCount > 0 {
		var err error
		schedule, err = reconciliation.BuildSchedule(in.TotalAmount, in.InstallmentsCount, in.InstallmentAmount, firstDue)
		if err != nil {
			return models.Sale{}, NewValidationError("installmentAmount", in.InstallmentAmount, err.Error())
		}
	}

	sales, err := s.records.Sales(ctx).ForUpdate()
	if err != nil {
		return models.Sale{}, fmt.Errorf("%s: %w", op, err)
	}
	id := NextSaleID(sales, now)

	contract := in.ContractText
	if s.needsGeneratedContract(contract, in.TotalAmount) {
		terms := contractTerms{
			Customer:          &customer,
			Product:           in.Product,
			Total:             in.TotalAmount,
			Paid:              decimal.Zero,
			InstallmentsCount: in.InstallmentsCount,
			FirstDue:          firstDue,
			LateDays:          s.lateDays(ctx),
		}
		if len(schedule) > 0 {
			terms.FirstInstallment = schedule[0].Amount
		}
		generated, err := s.generateContract(terms)
		if err != nil {
			return models.Sale{}, fmt.Errorf("%s: failed to render contract: %w", op, err)
		}
		contract = generated
	}
	contract = strings.ReplaceAll(contract, PlaceholderContractNo, id)

	sale := models.Sale{
		ID:                id,
		CustomerID:        customer.ID,
		CustomerName:      customer.Name,
		Product:           in.Product,
		TotalAmount:       in.TotalAmount,
		PaidAmount:        decimal.Zero,
		Payments:          []models.Payment{},
		ContractText:      contract,
		InstallmentsCount: max(in.InstallmentsCount, 1),
		Schedule:          schedule,
		DueDate:           firstDue,
		Date:              now.UTC(),
	}
	if sale.Schedule == nil {
		sale.Schedule = []models.Installment{}
	}

	// Newest sales come first.
	sales = append([]models.Sale{sale}, sales...)
	if err := s.records.SaveSales(ctx, sales); err != nil {
		return models.Sale{}, fmt.Errorf("%s: %w", op, err)
	}

	s.record(ctx, models.ActivitySale,
		fmt.Sprintf("New sale: %s for %s - %s", sale.Product, sale.CustomerName, s.Money(sale.TotalAmount)),
		map[string]string{"saleId": sale.ID, "customerId": sale.CustomerID})
	s.mirrorSave(models.CollectionSales, sale.ID, sale)

	s.log.Info().
		Str("sale_id", sale.ID).
		Str("customer_id", sale.CustomerID).
		Str("total", sale.TotalAmount.String()).
		Int("installments", len(sale.Schedule)).
		Msg("Sale recorded")
	return sale, nil
}

// NextSaleID returns SALE-YYYYMMDD-NNNN for now's UTC date, NNNN being one more than
// the highest sequence already used that day.
func NextSaleID(sales []models.Sale, now time.Time) string {
	prefix := "SALE-" + now.UTC().Format("20060102") + "-"

	highest := 0
	for _, sale := range sales {
		seq, ok := strings.CutPrefix(sale.ID, prefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(seq); err == nil && n > highest {
			highest = n
		}
	}
	return fmt.Sprintf("%s%04d", prefix, highest+1)
}

// EditSale changes a sale's product, total and contract text. A new total re-plans
// the schedule over the same installments and due dates and replays the payments.
func (s *Service) EditSale(ctx context.Context, id string, edit SaleEdit) (models.Sale, error) {
	const op = "EditSale"

	edit.Product = strings.TrimSpace(edit.Product)
	edit.ContractText = strings.TrimSpace(edit.ContractText)
	if err := s.check(edit); err != nil {
		return models.Sale{}, err
	}
	if edit.TotalAmount.LessThan(MinSaleAmount) {
		return models.Sale{}, NewValidationError("totalAmount", edit.TotalAmount, "must be at least 1")
	}

	sales, err := s.records.Sales(ctx).ForUpdate()
	if err != nil {
		return models.Sale{}, fmt.Errorf("%s: %w", op, err)
	}
	idx := indexSale(sales, id)
	if idx < 0 {
		return models.Sale{}, fmt.Errorf("%s: %w: %s", op, ErrSaleNotFound, id)
	}

	sale := sales[idx].Clone()
	if edit.TotalAmount.LessThan(sale.PaidAmount) {
		return models.Sale{}, fmt.Errorf("%s: %w: %s < %s", op, ErrTotalBelowPaid, edit.TotalAmount, sale.PaidAmount)
	}

	if !edit.TotalAmount.Equal(sale.TotalAmount) && sale.HasSchedule() {
		if err := reconciliation.Replan(&sale, edit.TotalAmount); err != nil {
			return models.Sale{}, NewValidationError("totalAmount", edit.TotalAmount, err.Error())
		}
		sale.TotalAmount = edit.TotalAmount
		reconciliation.Resync(&sale)
	}
	sale.TotalAmount = edit.TotalAmount
	sale.Product = edit.Product
	if edit.ContractText != "" {
		sale.ContractText = edit.ContractText
	}

	sales[idx] = sale
	if err := s.records.SaveSales(ctx, sales); err != nil {
		return models.Sale{}, fmt.Errorf("%s: %w", op, err)
	}

	s.record(ctx, models.ActivitySale, "Edited sale: "+sale.Product, map[string]string{"saleId": id})
	s.mirrorSave(models.CollectionSales, id, sale)
	return sale, nil
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	const op = "DeleteSale"

	sales, err := s.records.Sales(ctx).ForUpdate()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	idx := indexSale(sales, id)
	if idx < 0 {
		return fmt.Errorf("%s: %w: %s", op, ErrSaleNotFound, id)
	}
	sale := sales[idx]

	sales = append(sales[:idx:idx], sales[idx+1:]...)
	if err := s.records.SaveSales(ctx, sales); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.record(ctx, models.ActivitySale,
		fmt.Sprintf("Deleted sale: %s (%s)", sale.Product, sale.CustomerName),
		map[string]string{"saleId": id})
	s.mirrorDelete(models.CollectionSales, id)
	return nil
}

func (s *Service) GetSale(ctx context.Context, id string) (SaleView, error) {
	sales := s.records.Sales(ctx).Value
	idx := indexSale(sales, id)
	if idx < 0 {
		return SaleView{}, fmt.Errorf("GetSale: %w: %s", ErrSaleNotFound, id)
	}
	return s.view(sales[idx], s.clock(), s.lateDays(ctx)), nil
}

// ListSales returns matching sales in stored order (newest first). The query matches
// customer name, product and id case-insensitively.
func (s *Service) ListSales(ctx context.Context, filter SaleFilter) []SaleView {
	now := s.clock()
	lateDays := s.lateDays(ctx)
	q := strings.ToLower(strings.TrimSpace(filter.Query))

	views := make([]SaleView, 0)
	for _, sale := range s.records.Sales(ctx).Value {
		v := s.view(sale, now, lateDays)
		switch {
		case filter.CustomerID != "" && sale.CustomerID != filter.CustomerID:
		case q != "" && !containsAny(q, sale.CustomerName, sale.Product, sale.ID):
		case filter.Status != "" && v.Status != filter.Status:
		case !filter.From.IsZero() && sale.Date.Before(filter.From):
		case !filter.To.IsZero() && sale.Date.After(filter.To):
		case filter.MinAmount.IsPositive() && sale.TotalAmount.LessThan(filter.MinAmount):
		case filter.MaxAmount.IsPositive() && sale.TotalAmount.GreaterThan(filter.MaxAmount):
		default:
			views = append(views, v)
		}
	}
	return views
}

// ContractFromScan replaces a sale's contract text with the text read from a scanned
// PDF.
func (s *Service) ContractFromScan(ctx context.Context, id string, reader ContractReader, pdf io.Reader) (models.Sale, error) {
	const op = "ContractFromScan"

	if reader == nil {
		return models.Sale{}, fmt.Errorf("%s: %w", op, ErrNoContractReader)
	}

	sales, err := s.records.Sales(ctx).ForUpdate()
	if err != nil {
		return models.Sale{}, fmt.Errorf("%s: %w", op, err)
	}
	idx := indexSale(sales, id)
	if idx < 0 {
		return models.Sale{}, fmt.Errorf("%s: %w: %s", op, ErrSaleNotFound, id)
	}

	text, err := reader.ProcessPDF(ctx, pdf)
	if err != nil {
		return models.Sale{}, fmt.Errorf("%s: %w", op, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Sale{}, fmt.Errorf("%s: %w: %s", op, ErrEmptyScan, id)
	}

	sales[idx].ContractText = text
	if err := s.records.SaveSales(ctx, sales); err != nil {
		return models.Sale{}, fmt.Errorf("%s: %w", op, err)
	}

	s.record(ctx, models.ActivitySale, "Contract scanned for sale: "+sales[idx].Product,
		map[string]string{"saleId": id})
	s.mirrorSave(models.CollectionSales, id, sales[idx])
	return sales[idx], nil
}

func (s *Service) view(sale models.Sale, now time.Time, lateDays int) SaleView {
	return SaleView{
		Sale:      sale,
		Status:    metrics.StatusOf(sale, now, lateDays),
		Remaining: sale.Remaining(),
	}
}

func indexSale(sales []models.Sale, id string) int {
	for i, sale := range sales {
		if sale.ID == id {
			return i
		}
	}
	return -1
}
