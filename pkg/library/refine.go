package library

import (
	"context"
	"sync"
	"time"
)

// Refiner is a single-slot task supervisor behind a trailing debounce.
// Triggers inside the debounce window collapse to one run. While a run is in
// flight at most one follow-up is queued; a newer trigger replaces the queued
// one rather than piling up.
type Refiner struct {
	run      func(context.Context)
	debounce time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	inFlight bool
	pending  bool
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefiner wraps run. Each execution receives a context cancelled by Stop.
func NewRefiner(run func(context.Context), debounce time.Duration) *Refiner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Refiner{
		run:      run,
		debounce: debounce,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Trigger requests a refinement. The debounce timer restarts on every call,
// so only the last trigger in a burst fires.
func (r *Refiner) Trigger() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, r.fire)
}

// fire runs after the debounce elapses.
func (r *Refiner) fire() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if r.inFlight {
		// Replace whatever was queued; the run closure reads the
		// freshest state when it eventually executes.
		r.pending = true
		r.mu.Unlock()
		return
	}
	r.inFlight = true
	r.wg.Add(1)
	r.mu.Unlock()

	go r.loop()
}

// loop executes the run and any follow-up queued while it was in flight.
func (r *Refiner) loop() {
	defer r.wg.Done()
	for {
		r.run(r.ctx)

		r.mu.Lock()
		if r.pending && !r.stopped {
			r.pending = false
			r.mu.Unlock()
			continue
		}
		r.inFlight = false
		r.mu.Unlock()
		return
	}
}

// Stop cancels any in-flight run and waits for it to return. Idempotent.
func (r *Refiner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
