// Package clock abstracts time so polling and TTL logic can be driven
// deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time and timer channels.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the current time after d elapses.
	After(d time.Duration) <-chan time.Time
}

type wall struct{}

func (wall) Now() time.Time                         { return time.Now() }
func (wall) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Real returns the wall clock.
func Real() Clock {
	return wall{}
}

// Fake is a manually driven clock. Every After call advances the fake time by d
// and fires immediately, so code that waits between steps runs without sleeping.
type Fake struct {
	mux    sync.Mutex
	now    time.Time
	waits  []time.Duration
	frozen bool
}

// NewFake creates a fake clock starting at now.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.now
}

// After records d, advances the fake time by d and returns a fired channel.
// When the clock is frozen the returned channel never fires.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.waits = append(f.waits, d)
	ch := make(chan time.Time, 1)
	if f.frozen {
		return ch
	}
	if d > 0 {
		f.now = f.now.Add(d)
	}
	ch <- f.now
	return ch
}

// Advance moves the fake time forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mux.Lock()
	f.now = f.now.Add(d)
	f.mux.Unlock()
}

// Freeze makes subsequent After channels block until the caller gives up.
func (f *Fake) Freeze() {
	f.mux.Lock()
	f.frozen = true
	f.mux.Unlock()
}

// Waits returns the durations passed to After, in call order.
func (f *Fake) Waits() []time.Duration {
	f.mux.Lock()
	defer f.mux.Unlock()
	return append([]time.Duration(nil), f.waits...)
}
