package erp

import (
	"sync"
	"time"

	"github.com/avolkov/seedtrack/internal/common"
)

const (
	breakerThreshold = 5
	breakerCooldown  = 60 * time.Second
)

// circuitBreaker trips after a run of consecutive upstream failures so a
// struggling ERP system is not hammered from the clinic floor. After the
// cooldown one trial request is let through; its outcome closes or re-opens
// the circuit.
type circuitBreaker struct {
	mu        sync.Mutex
	failures  int
	openUntil time.Time
	halfOpen  bool
	now       func() time.Time
}

func newCircuitBreaker(now func() time.Time) *circuitBreaker {
	if now == nil {
		now = time.Now
	}
	return &circuitBreaker{now: now}
}

// Allow reports whether a request may go upstream. While open it returns
// common.ErrCircuitOpen; once the cooldown has passed it admits a single
// trial request.
func (b *circuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < breakerThreshold {
		return nil
	}
	if b.now().Before(b.openUntil) {
		return common.ErrCircuitOpen
	}
	if b.halfOpen {
		return common.ErrCircuitOpen
	}
	b.halfOpen = true
	return nil
}

func (b *circuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.halfOpen = false
}

func (b *circuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.halfOpen = false
	if b.failures >= breakerThreshold {
		b.openUntil = b.now().Add(breakerCooldown)
	}
}
