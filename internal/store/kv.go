// Package store provides the local key-value persistence the ledger runs on.
//
// Every collection is a single JSON document under a fixed key, read and written
// whole. The store has exactly one writer (the running process), so operations are
// read-modify-write without locking across keys.
package store

import (
	"context"
	"errors"
)

// Fixed keys of the persisted collections.
const (
	KeyCustomers   = "installments_customers"
	KeySales       = "installments_sales"
	KeyActivity    = "installments_activity"
	KeySettings    = "installments_settings"
	KeyAuthUsers   = "installments_auth_users"
	KeyAuthSession = "installments_auth_session"

	PrefixManualBackup = "installments_backup_"
	PrefixAutoBackup   = "installments_auto_backup_"
)

var (
	// ErrMalformedRecord is returned when a stored document cannot be decoded.
	ErrMalformedRecord = errors.New("malformed stored record")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// KV is a string-to-string store with prefix listing.
type KV interface {
	// Get returns the value under key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Keys lists the keys starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases the underlying resources.
	Close() error
}
