// Package mirror keeps a best-effort remote copy of the ledger collections.
//
// The local store stays authoritative. A Mirror is written to through a Dispatcher, which
// never blocks the caller and only logs failures.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"installments/internal/config"
	"installments/pkg/models"
)

// Change is one remote modification delivered to subscribers.
type Change struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Deleted    bool            `json:"deleted"`
	Record     json.RawMessage `json:"record,omitempty"`
}

// Mirror is a remote store holding one record per id in each collection.
type Mirror interface {
	// LoadCollection returns every record of collection keyed by id.
	LoadCollection(ctx context.Context, collection string) (map[string]json.RawMessage, error)
	SaveRecord(ctx context.Context, collection, id string, record any) error
	DeleteRecord(ctx context.Context, collection, id string) error
	// Subscribe calls fn for each remote change to collection until ctx is done.
	Subscribe(ctx context.Context, collection string, fn func(Change)) error
	Close() error
}

// New builds the mirror selected by cfg.MirrorBackend. It returns nil when mirroring
// is disabled.
func New(ctx context.Context, cfg *config.Config) (Mirror, error) {
	const op = "New"

	switch cfg.MirrorBackend {
	case config.MirrorNone, "":
		return nil, nil
	case config.MirrorRedis:
		m, err := NewRedisMirror(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return m, nil
	case config.MirrorSheets:
		m, err := NewSheetsMirror(ctx, cfg.Sheets)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%s: unknown backend %q", op, cfg.MirrorBackend)
	}
}

func encodeRecord(record any) (json.RawMessage, error) {
	if raw, ok := record.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(record)
}

func sortChanges(changes []Change) {
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].ID < changes[j].ID
	})
}

// PushAll writes every customer and sale to m and waits for the calls. Failures are
// collected so one bad record does not stop the rest.
func PushAll(ctx context.Context, m Mirror, customers []models.Customer, sales []models.Sale) (int, error) {
	var (
		pushed int
		errs   []error
	)
	for _, c := range customers {
		if err := m.SaveRecord(ctx, models.CollectionCustomers, c.ID, c); err != nil {
			errs = append(errs, err)
			continue
		}
		pushed++
	}
	for _, s := range sales {
		if err := m.SaveRecord(ctx, models.CollectionSales, s.ID, s); err != nil {
			errs = append(errs, err)
			continue
		}
		pushed++
	}
	return pushed, errors.Join(errs...)
}
