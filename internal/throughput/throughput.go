package throughput

import (
	"strconv"
	"time"
)

// DefaultInterval is the reporting window used by the receiver.
const DefaultInterval = 5 * time.Second

// Rate is the outcome of one closed window.
type Rate struct {
	Count       uint64
	WindowStart time.Time
	WindowEnd   time.Time
	PerSecond   float64
}

// Elapsed is the window length the rate was computed over.
func (r Rate) Elapsed() time.Duration { return r.WindowEnd.Sub(r.WindowStart) }

// String renders the rate with one decimal place.
func (r Rate) String() string { return strconv.FormatFloat(r.PerSecond, 'f', 1, 64) }

// Counter counts received datagrams per reporting window. It is owned by a
// single loop and is not safe for concurrent use.
type Counter struct {
	interval   time.Duration
	count      uint64
	lastReport time.Time
}

// New starts the first window at now.
func New(interval time.Duration, now time.Time) *Counter {
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Counter{interval: interval, lastReport: now}
}

// Observe counts one received datagram, whatever its decode outcome.
func (c *Counter) Observe() { c.count++ }

// Update observes a datagram received at now and closes the window if due.
func (c *Counter) Update(now time.Time) (Rate, bool) {
	c.Observe()
	return c.Check(now)
}

// Check closes the window when at least one interval has passed since the last
// report. A window with no datagrams is restarted without producing a rate.
func (c *Counter) Check(now time.Time) (Rate, bool) {
	elapsed := now.Sub(c.lastReport)
	if elapsed < c.interval {
		return Rate{}, false
	}

	if c.count == 0 {
		c.lastReport = now
		return Rate{}, false
	}

	r := Rate{
		Count:       c.count,
		WindowStart: c.lastReport,
		WindowEnd:   now,
		PerSecond:   float64(c.count) / elapsed.Seconds(),
	}

	c.count = 0
	c.lastReport = now

	return r, true
}

// Count returns datagrams observed in the open window.
func (c *Counter) Count() uint64 { return c.count }

// LastReport returns the start of the open window.
func (c *Counter) LastReport() time.Time { return c.lastReport }

// Interval returns the window length.
func (c *Counter) Interval() time.Duration { return c.interval }
