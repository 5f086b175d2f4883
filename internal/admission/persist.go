package admission

import (
	"context"
	"sync"
	"time"
)

// debouncer coalesces write requests.
//
// At most one write is scheduled or in flight at a time. A request that
// arrives while a write is running marks the state dirty, and another write
// is scheduled when the running one finishes.
type debouncer struct {
	window time.Duration
	write  func() error
	onErr  func(error)

	mu        sync.Mutex
	scheduled bool
	writing   bool
	dirty     bool

	writeMu sync.Mutex // serializes write with Flush
	wg      sync.WaitGroup
}

func newDebouncer(window time.Duration, write func() error, onErr func(error)) *debouncer {
	return &debouncer{window: window, write: write, onErr: onErr}
}

// Schedule requests a write. It never blocks on I/O.
func (d *debouncer) Schedule() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.scheduled {
		return
	}
	if d.writing {
		d.dirty = true
		return
	}

	d.scheduled = true
	d.wg.Add(1)
	time.AfterFunc(d.window, d.fire)
}

func (d *debouncer) fire() {
	defer d.wg.Done()

	d.mu.Lock()
	d.scheduled = false
	d.writing = true
	d.mu.Unlock()

	d.writeMu.Lock()
	err := d.write()
	d.writeMu.Unlock()
	if err != nil && d.onErr != nil {
		d.onErr(err)
	}

	d.mu.Lock()
	d.writing = false
	again := d.dirty
	d.dirty = false
	d.mu.Unlock()

	// Registers with wg before our deferred Done runs
	if again {
		d.Schedule()
	}
}

// Wait blocks until no write is scheduled or in flight, or ctx is done
func (d *debouncer) Wait(ctx context.Context) error {
	return waitGroup(ctx, &d.wg)
}

// WriteNow performs a synchronous write outside the debounce window
func (d *debouncer) WriteNow() error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.write()
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
