package client

import "time"

// expBackoff is the handshake retry schedule: delays double from base up
// to max. It lives in the loop goroutine only, so no locking.
type expBackoff struct {
	base time.Duration
	max  time.Duration
	next time.Duration
}

func newExpBackoff(base, max time.Duration) *expBackoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &expBackoff{base: base, max: max, next: base}
}

// Next returns the current delay and advances the schedule.
func (b *expBackoff) Next() time.Duration {
	d := b.next
	doubled := b.next * 2
	if doubled > b.max {
		doubled = b.max
	}
	b.next = doubled
	return d
}

// Reset rewinds the schedule to the base delay.
func (b *expBackoff) Reset() {
	b.next = b.base
}
