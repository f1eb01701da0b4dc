// Package sched provides fixed-rate pacing for operator-paced procedures
package sched

import (
	"context"
	"sync"
	"time"
)

// Scheduler denotes the scheduling capability used for fixed-rate waits
type Scheduler interface {

	// Now returns the current time of the scheduler
	Now() time.Time

	// DelayUntil blocks until lastWake+period, then advances lastWake by period.
	// Since the next wake time is derived from the previous one (and not from
	// the time of the call) successive calls do not accumulate drift
	DelayUntil(ctx context.Context, lastWake *time.Time, period time.Duration) error
}

// Clock denotes a Scheduler based on the wall clock
type Clock struct{}

// Now returns the current wall clock time
func (Clock) Now() time.Time {
	return time.Now()
}

// DelayUntil blocks until lastWake+period or until the context is done
func (Clock) DelayUntil(ctx context.Context, lastWake *time.Time, period time.Duration) error {
	*lastWake = lastWake.Add(period)

	wait := time.Until(*lastWake)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Virtual denotes a Scheduler whose time only advances through DelayUntil,
// making procedures paced in seconds run instantly and deterministically
type Virtual struct {
	now    time.Time
	delays []time.Duration

	onDelay func(n int, now time.Time)
	mu      sync.Mutex
}

// NewVirtual instantiates a new Virtual scheduler starting at the given time
func NewVirtual(start time.Time) *Virtual {
	return &Virtual{
		now: start,
	}
}

// OnDelay registers a function that is called after each completed delay with
// the (1-based) number of the delay and the new virtual time
func (v *Virtual) OnDelay(fn func(n int, now time.Time)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onDelay = fn
}

// Now returns the current virtual time
func (v *Virtual) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// DelayUntil advances the virtual time to lastWake+period (if that lies in the future)
func (v *Virtual) DelayUntil(ctx context.Context, lastWake *time.Time, period time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	*lastWake = lastWake.Add(period)
	if lastWake.After(v.now) {
		v.now = *lastWake
	}
	v.delays = append(v.delays, period)
	n, now, fn := len(v.delays), v.now, v.onDelay
	v.mu.Unlock()

	if fn != nil {
		fn(n, now)
	}

	return ctx.Err()
}

// Advance moves the virtual time forward without a delay being requested
func (v *Virtual) Advance(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = v.now.Add(d)
}

// Delays returns the periods of all delays requested so far
func (v *Virtual) Delays() []time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]time.Duration(nil), v.delays...)
}
