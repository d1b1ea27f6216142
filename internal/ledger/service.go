// Package ledger implements the installment-sales operations: customers, sales,
// payments, reports, data transfer and search.
//
// Every operation reads the collections it needs, mutates them in memory and writes
// them back whole. Input is validated before anything is written, so a rejected
// operation leaves the store unchanged. Changed records are handed to an optional
// Shadow (the remote mirror) without waiting on it.
package ledger

import (
	"context"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"installments/internal/logger"
	"installments/internal/store"
	"installments/pkg/models"
)

// Shadow receives copies of changed records. Implementations must not block.
type Shadow interface {
	SaveRecord(collection, id string, record any)
	DeleteRecord(collection, id string)
}

// ContractReader extracts text from a scanned contract.
type ContractReader interface {
	ProcessPDF(ctx context.Context, pdfData io.Reader) (string, error)
}

// Service is the ledger.
type Service struct {
	records  *store.Records
	shadow   Shadow
	validate *validator.Validate
	clock    func() time.Time
	currency string
	log      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithShadow mirrors every changed record to shadow.
func WithShadow(shadow Shadow) Option {
	return func(s *Service) {
		s.shadow = shadow
	}
}

// WithCurrencyLabel sets the label used in generated texts.
func WithCurrencyLabel(label string) Option {
	return func(s *Service) {
		if label != "" {
			s.currency = label
		}
	}
}

// New creates a ledger on top of records.
func New(records *store.Records, opts ...Option) *Service {
	s := &Service{
		records:  records,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		clock:    time.Now,
		currency: models.DefaultCurrencyLabel,
		log:      logger.WithComponent("ledger"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Records exposes the underlying collections.
func (s *Service) Records() *store.Records {
	return s.records
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock()
}

// Money formats an amount with the configured currency label.
func (s *Service) Money(amount decimal.Decimal) string {
	return models.FormatMoney(amount, s.currency)
}

func (s *Service) lateDays(ctx context.Context) int {
	return s.records.Settings(ctx).Value.LateDays
}

func (s *Service) check(input any) error {
	if err := s.validate.Struct(input); err != nil {
		return fromValidator(err)
	}
	return nil
}

// record appends an activity entry. The log is an audit aid; failing to write it
// does not undo the operation.
func (s *Service) record(ctx context.Context, kind models.ActivityType, text string, meta map[string]string) {
	entry := models.Activity{
		ID:   uuid.NewString(),
		Type: kind,
		Text: text,
		Meta: meta,
		Date: s.clock().UTC(),
	}
	if err := s.records.AppendActivity(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("type", string(kind)).Msg("Failed to append activity")
	}
}

func (s *Service) mirrorSave(collection, id string, record any) {
	if s.shadow != nil {
		s.shadow.SaveRecord(collection, id, record)
	}
}

func (s *Service) mirrorDelete(collection, id string) {
	if s.shadow != nil {
		s.shadow.DeleteRecord(collection, id)
	}
}
