package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultConnectTimeout bounds a shared connect attempt independently of any caller.
const DefaultConnectTimeout = 10 * time.Second

var ErrDispatcherClosed = errors.New("dispatcher is closed")

// Dispatcher publishes work messages over one lazily established Queue handle.
// The handle is created on first use and reused until Close.
type Dispatcher struct {
	connect        Connector
	retention      time.Duration
	connectTimeout time.Duration

	mu     sync.RWMutex
	handle Queue
	closed bool
	group  singleflight.Group
}

func NewDispatcher(connect Connector, retention time.Duration) *Dispatcher {
	return &Dispatcher{
		connect:        connect,
		retention:      retention,
		connectTimeout: DefaultConnectTimeout,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, message string) error {
	handle, err := d.queue(ctx)
	if err != nil {
		return err
	}
	return handle.Send(ctx, message, d.retention)
}

// queue returns the shared handle, connecting at most once at a time.
// The connect outlives the caller that started it, so a caller giving up
// does not fail the others. A failed connect is not cached.
func (d *Dispatcher) queue(ctx context.Context) (Queue, error) {
	handle, err := d.current()
	if err != nil || handle != nil {
		return handle, err
	}

	results := d.group.DoChan("connect", func() (any, error) {
		if handle, err := d.current(); err != nil || handle != nil {
			return handle, err
		}

		connectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.connectTimeout)
		defer cancel()
		handle, err := d.connect(connectCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to queue: %w", err)
		}

		d.mu.Lock()
		defer d.mu.Unlock()
		if d.closed {
			_ = handle.Close()
			return nil, ErrDispatcherClosed
		}
		d.handle = handle
		return handle, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for queue connection: %w", ctx.Err())
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(Queue), nil
	}
}

func (d *Dispatcher) current() (Queue, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrDispatcherClosed
	}
	return d.handle, nil
}

// Close releases the handle. Dispatch fails with ErrDispatcherClosed afterwards,
// and a connect still in flight discards its handle.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.handle == nil {
		return nil
	}
	err := d.handle.Close()
	d.handle = nil
	return err
}
