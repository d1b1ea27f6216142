package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"installments/internal/logger"
	"installments/pkg/models"
)

// Records exposes the four ledger collections on top of a KV.
//
// Reads never fail: a malformed or unreadable collection is logged and replaced with
// its empty/default value, for that collection only.
type Records struct {
	kv  KV
	log zerolog.Logger
}

func NewRecords(kv KV) *Records {
	return &Records{
		kv:  kv,
		log: logger.WithComponent("records"),
	}
}

// KV returns the underlying store for packages that keep their own keys.
func (r *Records) KV() KV {
	return r.kv
}

func (r *Records) Customers(ctx context.Context) Decoded[[]models.Customer] {
	d := Load(ctx, r.kv, KeyCustomers, func() []models.Customer { return []models.Customer{} })
	r.logFallback(KeyCustomers, d.Err)
	if d.Value == nil {
		d.Value = []models.Customer{}
	}
	for i := range d.Value {
		d.Value[i] = d.Value[i].Normalized()
	}
	return d
}

func (r *Records) SaveCustomers(ctx context.Context, customers []models.Customer) error {
	if customers == nil {
		customers = []models.Customer{}
	}
	return Save(ctx, r.kv, KeyCustomers, customers)
}

func (r *Records) Sales(ctx context.Context) Decoded[[]models.Sale] {
	d := Load(ctx, r.kv, KeySales, func() []models.Sale { return []models.Sale{} })
	r.logFallback(KeySales, d.Err)
	if d.Value == nil {
		d.Value = []models.Sale{}
	}
	return d
}

func (r *Records) SaveSales(ctx context.Context, sales []models.Sale) error {
	if sales == nil {
		sales = []models.Sale{}
	}
	return Save(ctx, r.kv, KeySales, sales)
}

func (r *Records) Activity(ctx context.Context) Decoded[[]models.Activity] {
	d := Load(ctx, r.kv, KeyActivity, func() []models.Activity { return []models.Activity{} })
	r.logFallback(KeyActivity, d.Err)
	if d.Value == nil {
		d.Value = []models.Activity{}
	}
	return d
}

// SaveActivity stores the log, keeping only the newest MaxActivityEntries.
// Entries are ordered newest first.
func (r *Records) SaveActivity(ctx context.Context, entries []models.Activity) error {
	if entries == nil {
		entries = []models.Activity{}
	}
	if len(entries) > models.MaxActivityEntries {
		entries = entries[:models.MaxActivityEntries]
	}
	return Save(ctx, r.kv, KeyActivity, entries)
}

// AppendActivity puts entry at the head of the log and trims the tail.
func (r *Records) AppendActivity(ctx context.Context, entry models.Activity) error {
	const op = "AppendActivity"

	current, err := r.Activity(ctx).ForUpdate()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	entries := make([]models.Activity, 0, len(current)+1)
	entries = append(entries, entry)
	entries = append(entries, current...)

	if err := r.SaveActivity(ctx, entries); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Settings returns the stored settings merged over the defaults.
func (r *Records) Settings(ctx context.Context) Decoded[models.Settings] {
	d := Load(ctx, r.kv, KeySettings, models.DefaultSettings)
	r.logFallback(KeySettings, d.Err)
	d.Value = d.Value.Normalized()
	return d
}

func (r *Records) SaveSettings(ctx context.Context, settings models.Settings) error {
	return Save(ctx, r.kv, KeySettings, settings)
}

// Remove deletes whole collections.
func (r *Records) Remove(ctx context.Context, keys ...string) error {
	return r.kv.Delete(ctx, keys...)
}

func (r *Records) logFallback(key string, err error) {
	if err == nil {
		return
	}
	r.log.Warn().
		Err(err).
		Str("key", key).
		Msg("Stored collection unreadable, using empty value")
}
