package mirror

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingID is returned when a record is saved or deleted without an id.
	ErrMissingID = errors.New("record id is required")

	// ErrUnknownCollection is returned for collections the mirror does not keep.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrMissingCredentials is returned when no Google credentials are configured.
	ErrMissingCredentials = errors.New("missing Google credentials")

	// ErrInvalidSheetURL is returned when the spreadsheet id cannot be found in the URL.
	ErrInvalidSheetURL = errors.New("invalid Google Sheets URL format")

	// ErrQueueFull is returned when the dispatcher cannot accept more work.
	ErrQueueFull = errors.New("mirror queue is full")

	// ErrClosed is returned by a dispatcher after Close.
	ErrClosed = errors.New("mirror dispatcher is closed")
)

// MirrorError wraps a failed remote call with the operation and collection involved.
type MirrorError struct {
	Op         string
	Collection string
	Err        error
}

func (e *MirrorError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("mirror: %s %s failed: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("mirror: %s failed: %v", e.Op, e.Err)
}

func (e *MirrorError) Unwrap() error {
	return e.Err
}

func (e *MirrorError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newMirrorError(op, collection string, err error) error {
	if err == nil {
		return nil
	}
	var me *MirrorError
	if errors.As(err, &me) {
		return err
	}
	return &MirrorError{Op: op, Collection: collection, Err: err}
}
