package scheduler

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

/*
ResourceGate is the mutable per-resource-key state spec §3 defines:
{ limited, eligible_at }. limited/eligibleAt is the sole admission
authority (invariant 3 in spec §3) — nothing else in this package may
block a job except this pair.

Two supporting, non-authoritative layers ride alongside it:
  - a golang.org/x/time/rate.Limiter that Admit consults on every
    admission; its answer is discarded, so it enforces no spacing;
  - a sony/gobreaker.CircuitBreaker fed every outcome for observability —
    its state is readable through BreakerState() and is not part of the
    run report; opening the breaker never by itself blocks admission; only
    limited/eligibleAt does.
*/
type ResourceGate struct {
	mu         sync.Mutex
	limited    bool
	eligibleAt time.Time

	floor   *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	requestCount int
	lastRequest  time.Time
}

func NewResourceGate(key string, floorInterval time.Duration) *ResourceGate {
	g := &ResourceGate{
		floor: rate.NewLimiter(rate.Every(floorInterval), 1),
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: key,
	})
	return g
}

// Admit reports whether a job bound to this resource may run right now. It
// does not mutate state beyond clearing an elapsed limited flag.
func (g *ResourceGate) Admit(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.limited {
		if now.Before(g.eligibleAt) {
			return false
		}
		g.limited = false
	}
	// Observed only: the floor limiter never vetoes or permits a job on
	// its own. limited/eligibleAt alone decide admission.
	g.floor.AllowN(now, 1)
	return true
}

// MarkLimited flips the gate limited with the given absolute deadline.
// While limited, invariant 3 (spec §3) holds: no job bound to this
// resource runs.
func (g *ResourceGate) MarkLimited(eligibleAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limited = true
	if eligibleAt.After(g.eligibleAt) {
		g.eligibleAt = eligibleAt
	}
}

// Reset clears the limited flag, used after a successful execution.
func (g *ResourceGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limited = false
}

func (g *ResourceGate) EligibleAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eligibleAt
}

func (g *ResourceGate) IsLimited(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limited && now.Before(g.eligibleAt)
}

// NoteRequest records a request observation — kept for reporting only, per
// the original queue's request_count/last_request bookkeeping; it never
// feeds admission decisions.
func (g *ResourceGate) NoteRequest(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requestCount++
	g.lastRequest = now
}

func (g *ResourceGate) Observed() (count int, last time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requestCount, g.lastRequest
}

// RecordOutcome feeds the circuit breaker for observability; it never
// changes admission itself.
func (g *ResourceGate) RecordOutcome(success bool) {
	_, _ = g.breaker.Execute(func() (interface{}, error) {
		if success {
			return nil, nil
		}
		return nil, errOutcomeFailure
	})
}

func (g *ResourceGate) BreakerState() gobreaker.State {
	return g.breaker.State()
}

var errOutcomeFailure = breakerFailure{}

type breakerFailure struct{}

func (breakerFailure) Error() string { return "extraction outcome failure" }
