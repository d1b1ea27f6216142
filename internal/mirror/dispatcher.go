package mirror

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"installments/internal/logger"
)

const (
	DefaultWorkers   = 4
	DefaultTimeout   = 10 * time.Second
	DefaultQueueSize = 256
)

type job struct {
	collection string
	id         string
	record     json.RawMessage
	delete     bool
}

// Dispatcher forwards record changes to a Mirror from a pool of workers.
//
// SaveRecord and DeleteRecord enqueue and return at once. A full queue drops the job.
// Remote failures are logged and not retried.
type Dispatcher struct {
	mirror  Mirror
	timeout time.Duration
	jobs    chan job
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	log     zerolog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherOptions)

type dispatcherOptions struct {
	workers   int
	timeout   time.Duration
	queueSize int
}

func WithWorkers(n int) DispatcherOption {
	return func(o *dispatcherOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithTimeout bounds each remote call.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(o *dispatcherOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithQueueSize(n int) DispatcherOption {
	return func(o *dispatcherOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// NewDispatcher starts the workers. Call Close to drain them.
func NewDispatcher(m Mirror, opts ...DispatcherOption) *Dispatcher {
	o := dispatcherOptions{
		workers:   DefaultWorkers,
		timeout:   DefaultTimeout,
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	d := &Dispatcher{
		mirror:  m,
		timeout: o.timeout,
		jobs:    make(chan job, o.queueSize),
		log:     logger.WithComponent("mirror"),
	}

	for w := 0; w < o.workers; w++ {
		d.wg.Add(1)
		go d.work(w)
	}
	return d
}

// SaveRecord queues an upsert of record.
func (d *Dispatcher) SaveRecord(collection, id string, record any) {
	raw, err := encodeRecord(record)
	if err != nil {
		d.log.Error().Err(err).Str("collection", collection).Str("id", id).Msg("Failed to encode record for mirror")
		return
	}
	d.enqueue(job{collection: collection, id: id, record: raw})
}

// DeleteRecord queues a removal.
func (d *Dispatcher) DeleteRecord(collection, id string) {
	d.enqueue(job{collection: collection, id: id, delete: true})
}

func (d *Dispatcher) enqueue(j job) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.log.Warn().Err(ErrClosed).Str("collection", j.collection).Str("id", j.id).Msg("Dropping mirror update")
		return
	}

	select {
	case d.jobs <- j:
	default:
		d.log.Warn().Err(ErrQueueFull).Str("collection", j.collection).Str("id", j.id).Msg("Dropping mirror update")
	}
}

func (d *Dispatcher) work(workerID int) {
	defer d.wg.Done()

	for j := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		var err error
		if j.delete {
			err = d.mirror.DeleteRecord(ctx, j.collection, j.id)
		} else {
			err = d.mirror.SaveRecord(ctx, j.collection, j.id, j.record)
		}
		cancel()

		if err != nil {
			d.log.Error().
				Err(err).
				Int("worker", workerID).
				Str("collection", j.collection).
				Str("id", j.id).
				Bool("delete", j.delete).
				Msg("Mirror update failed")
			continue
		}

		d.log.Debug().
			Int("worker", workerID).
			Str("collection", j.collection).
			Str("id", j.id).
			Bool("delete", j.delete).
			Msg("Mirror updated")
	}
}

// Close stops accepting work and waits for queued updates until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.log.Warn().Int("pending", len(d.jobs)).Msg("Mirror drain interrupted")
		return ctx.Err()
	}
}
