package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Decoded is the outcome of reading a stored document. When Err is set, Value holds
// the fallback for that document and the caller carries on with it.
type Decoded[T any] struct {
	Value T
	Err   error
}

// Fallback reports whether Value is a fallback rather than the stored document.
func (d Decoded[T]) Fallback() bool {
	return d.Err != nil
}

// ForUpdate returns Value for a read-modify-write. It fails with Err when the stored
// document could not be read, so a fallback is never written over stored data.
func (d Decoded[T]) ForUpdate() (T, error) {
	if d.Err != nil {
		var zero T
		return zero, d.Err
	}
	return d.Value, nil
}

// Load reads the JSON document under key. A missing key yields the fallback without
// error. Unreadable or malformed documents yield the fallback and the cause.
//
// The document is decoded on top of the fallback value, so a partially stored object
// keeps the fallback's fields for everything it omits.
func Load[T any](ctx context.Context, kv KV, key string, fallback func() T) Decoded[T] {
	const op = "Load"

	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return Decoded[T]{Value: fallback(), Err: fmt.Errorf("%s: %w", op, err)}
	}
	if !ok || raw == "" {
		return Decoded[T]{Value: fallback()}
	}

	value := fallback()
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return Decoded[T]{
			Value: fallback(),
			Err:   fmt.Errorf("%s: %w: %s: %v", op, ErrMalformedRecord, key, err),
		}
	}
	return Decoded[T]{Value: value}
}

// Save encodes value as JSON and stores it under key.
func Save(ctx context.Context, kv KV, key string, value any) error {
	const op = "Save"

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%s: failed to encode %s: %w", op, key, err)
	}
	return kv.Set(ctx, key, string(data))
}
