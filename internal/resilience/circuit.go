package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

var stateNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half_open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// window is a fixed-size ring of the most recent call outcomes.
type window struct {
	failed   []bool
	next     int
	size     int
	failures int
}

func newWindow(capacity int) window {
	return window{failed: make([]bool, capacity)}
}

func (w *window) push(failed bool) {
	if w.size == len(w.failed) {
		if w.failed[w.next] {
			w.failures--
		}
	} else {
		w.size++
	}
	w.failed[w.next] = failed
	if failed {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.failed)
}

func (w *window) ratio() float64 {
	if w.size == 0 {
		return 0
	}
	return float64(w.failures) / float64(w.size)
}

func (w *window) reset() {
	clear(w.failed)
	w.next, w.size, w.failures = 0, 0, 0
}

// Breaker opens when the failure ratio over its recent calls reaches a
// threshold. While open it rejects calls; after openFor it lets a single
// probe through and closes again if that probe succeeds.
type Breaker struct {
	mu           sync.Mutex
	state        State
	recent       window
	minRequests  int
	failureRatio float64
	openFor      time.Duration
	openedAt     time.Time
	probing      bool
	target       string
	logger       zerolog.Logger
	now          func() time.Time
}

// NewBreaker returns a closed breaker. The ratio is only evaluated once at
// least minRequests outcomes are in the window.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	minRequests = max(minRequests, 1)
	if failureRatio <= 0 || failureRatio > 1 {
		failureRatio = min(max(failureRatio, 0.5), 1)
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		recent:       newWindow(max(2*minRequests, 4)),
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
		target:       "default",
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
}

// WithTarget names the guarded dependency in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if target = strings.TrimSpace(target); target != "" {
		b.target = target
	}
	b.publishState()
	return b
}

func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
	}
	return b
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. Every admitted call must be
// followed by Report.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Before(b.openedAt.Add(b.openFor)) {
			return false
		}
		b.moveTo(ctx, HalfOpen)
	}
	if b.probing {
		return false
	}
	b.probing = true
	return true
}

// Report records the outcome of an admitted call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.probing = false
		if success {
			b.moveTo(ctx, Closed)
		} else {
			b.moveTo(ctx, Open)
		}
	case Closed:
		b.recent.push(!success)
		if b.recent.size >= b.minRequests && b.recent.ratio() >= b.failureRatio {
			b.moveTo(ctx, Open)
		}
	}
}

// Do runs fn when the breaker admits it. Errors for which countable returns
// false are business outcomes and count as successes. A refused call returns
// ErrOpenCircuit without running fn.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error, countable func(error) bool) error {
	if !b.Allow(ctx) {
		if BreakerRejected != nil {
			BreakerRejected.WithLabelValues(b.target).Inc()
		}
		return ErrOpenCircuit
	}
	err := fn(ctx)
	b.Report(ctx, err == nil || (countable != nil && !countable(err)))
	return err
}

func (b *Breaker) moveTo(ctx context.Context, next State) {
	prev := b.state
	b.state = next
	b.recent.reset()
	if next == Open {
		b.openedAt = b.now()
	}
	b.publishState()
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.target, prev.String(), next.String()).Inc()
	}

	evt := b.logger.Info()
	if next == Open {
		evt = b.logger.Warn()
	}
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Str("target", b.target).
		Stringer("from_state", prev).
		Stringer("to_state", next).
		Msg("breaker_transition")
}

func (b *Breaker) publishState() {
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.target).Set(float64(b.state))
	}
}
