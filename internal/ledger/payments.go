package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"installments/internal/logger"
	"installments/internal/reconciliation"
	"installments/pkg/models"
)

// PaymentInput is money received against a sale. An empty note becomes
// "Installment <n>".
type PaymentInput struct {
	Amount decimal.Decimal
	Note   string `validate:"max=500"`
}

// RecordPayment appends a payment to a sale and applies it to the schedule. A payment
// larger than the remaining balance is rejected and nothing changes.
func (s *Service) RecordPayment(ctx context.Context, saleID string, in PaymentInput) (models.Sale, models.Payment, error) {
	const op = "RecordPayment"

	in.Note = strings.TrimSpace(in.Note)
	if err := s.check(in); err != nil {
		return models.Sale{}, models.Payment{}, err
	}
	if !in.Amount.IsPositive() {
		return models.Sale{}, models.Payment{}, NewValidationError("amount", in.Amount, "must be positive")
	}

	sales, err := s.records.Sales(ctx).ForUpdate()
	if err != nil {
		return models.Sale{}, models.Payment{}, fmt.Errorf("%s: %w", op, err)
	}
	idx := indexSale(sales, saleID)
	if idx < 0 {
		return models.Sale{}, models.Payment{}, fmt.Errorf("%s: %w: %s", op, ErrSaleNotFound, saleID)
	}

	sale := sales[idx].Clone()
	if remaining := sale.Remaining(); in.Amount.GreaterThan(remaining) {
		return models.Sale{}, models.Payment{}, fmt.Errorf("%s: %w: %s > %s",
			op, ErrPaymentExceedsRemaining, in.Amount, remaining)
	}

	payment := models.Payment{
		ID:     uuid.NewString(),
		Amount: in.Amount,
		Note:   in.Note,
		Date:   s.clock().UTC(),
	}
	if payment.Note == "" {
		payment.Note = fmt.Sprintf("Installment %d", len(sale.Payments)+1)
	}

	sale.Payments = append(sale.Payments, payment)
	sale.PaidAmount = sale.PaidAmount.Add(payment.Amount)
	if sale.HasSchedule() {
		reconciliation.ApplyPayment(sale.Schedule, payment.Amount)
	}

	sales[idx] = sale
	if err := s.records.SaveSales(ctx, sales); err != nil {
		return models.Sale{}, models.Payment{}, fmt.Errorf("%s: %w", op, err)
	}

	s.record(ctx, models.ActivityPayment,
		fmt.Sprintf("Payment: %s - %s (%s)", s.Money(payment.Amount), sale.Product, sale.CustomerName),
		map[string]string{"saleId": sale.ID, "paymentId": payment.ID})
	s.mirrorSave(models.CollectionSales, sale.ID, sale)

	saleLog := logger.WithSale("ledger", sale.ID)
	saleLog.Info().
		Str("amount", payment.Amount.String()).
		Str("remaining", sale.Remaining().String()).
		Msg("Payment recorded")
	return sale, payment, nil
}

// ResyncAll replays every scheduled sale's payments onto a fresh schedule and stores
// the sales that changed. It returns one result per scheduled sale.
func (s *Service) ResyncAll(ctx context.Context) ([]reconciliation.Result, error) {
	const op = "ResyncAll"

	sales, err := s.records.Sales(ctx).ForUpdate()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	results := make([]reconciliation.Result, 0, len(sales))
	var changed []int

	for i := range sales {
		if !sales[i].HasSchedule() {
			continue
		}
		res := reconciliation.Resync(&sales[i])
		results = append(results, res)
		if res.Changed {
			changed = append(changed, i)
		}
		if err := reconciliation.Verify(sales[i]); err != nil {
			s.log.Warn().Err(err).Str("sale_id", sales[i].ID).Msg("Sale does not reconcile after resync")
		}
	}

	if len(changed) == 0 {
		return results, nil
	}
	if err := s.records.SaveSales(ctx, sales); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, i := range changed {
		s.mirrorSave(models.CollectionSales, sales[i].ID, sales[i])
	}

	s.log.Info().Int("changed", len(changed)).Int("checked", len(results)).Msg("Schedules resynced")
	return results, nil
}

// VerifyAll checks every sale and returns the problems found, keyed by sale id.
func (s *Service) VerifyAll(ctx context.Context) map[string]error {
	problems := make(map[string]error)
	for _, sale := range s.records.Sales(ctx).Value {
		if err := reconciliation.Verify(sale); err != nil {
			problems[sale.ID] = err
		}
	}
	return problems
}
