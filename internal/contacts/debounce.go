package contacts

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid scheduling: any pending timer is canceled before a
// new one starts, so only the last function scheduled within the interval
// runs. Username-availability checks and contact search sit behind one.
type Debouncer struct {
	interval time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebouncer constructs a Debouncer with the given quiet interval.
func NewDebouncer(interval time.Duration) *Debouncer {
	if interval <= 0 {
		interval = 300 * time.Millisecond
	}
	return &Debouncer{interval: interval}
}

// Do schedules fn after the quiet interval, canceling any pending schedule.
func (d *Debouncer) Do(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, fn)
}

// Stop cancels any pending schedule. Call it when the owning view is torn
// down so no timer leaks across navigation.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
