// Package breaker implements the per-adapter circuit breaker guarding each
// carrier's outbound call path.
//
// The breaker is an explicit three-state machine:
//
//	closed ──(error %% over threshold in rolling window)──▶ open
//	open ──(reset timeout elapsed)──▶ half_open
//	half_open ──(trial success)──▶ closed
//	half_open ──(trial failure)──▶ open
package breaker

import (
	"sync"
	"time"
)

// State is the breaker state, serialized as closed | open | half_open.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

const (
	defaultErrorThresholdPct = 50
	defaultWindow            = 10 * time.Second
	defaultBuckets           = 10
	defaultResetTimeout      = 30 * time.Second
)

// Config tunes one breaker instance. Zero values fall back to defaults.
type Config struct {
	// ErrorThresholdPct opens the breaker once the failure percentage in the
	// rolling window reaches it. Default 50.
	ErrorThresholdPct int
	// Window is the rolling window duration. Default 10s.
	Window time.Duration
	// Buckets divides the window. Default 10.
	Buckets int
	// ResetTimeout is how long the breaker stays open before allowing a
	// half-open trial call. Default 30s.
	ResetTimeout time.Duration
	// OnStateChange, when set, observes transitions. Called outside the lock.
	OnStateChange func(from, to State)
	// Now overrides the clock. Tests only.
	Now func() time.Time
}

type bucket struct {
	success int
	failure int
}

// Breaker guards a single outbound call path. Safe for concurrent use; the
// lock is only held around counter updates, never across a network call.
type Breaker struct {
	mu sync.Mutex

	cfg         Config
	state       State
	buckets     []bucket
	bucketIdx   int
	bucketStart time.Time
	openedAt    time.Time
	trialActive bool

	now func() time.Time
}

// New builds a Breaker from cfg, applying defaults for zero values.
func New(cfg Config) *Breaker {
	if cfg.ErrorThresholdPct <= 0 {
		cfg.ErrorThresholdPct = defaultErrorThresholdPct
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Buckets <= 0 {
		cfg.Buckets = defaultBuckets
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		cfg:         cfg,
		state:       StateClosed,
		buckets:     make([]bucket, cfg.Buckets),
		bucketStart: now(),
		now:         now,
	}
}

// Allow reports whether a call may proceed. In the open state it starts a
// single half-open trial once the reset timeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.rotate()
		b.mu.Unlock()
		return true

	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return false
		}
		from := b.state
		b.state = StateHalfOpen
		b.trialActive = true
		b.mu.Unlock()
		b.notify(from, StateHalfOpen)
		return true

	default: // StateHalfOpen: exactly one trial call at a time
		if b.trialActive {
			b.mu.Unlock()
			return false
		}
		b.trialActive = true
		b.mu.Unlock()
		return true
	}
}

// RecordResult feeds the outcome of an allowed call back into the breaker.
func (b *Breaker) RecordResult(success bool) {
	b.mu.Lock()

	switch b.state {
	case StateHalfOpen:
		b.trialActive = false
		if success {
			b.reset()
			b.state = StateClosed
			b.mu.Unlock()
			b.notify(StateHalfOpen, StateClosed)
			return
		}
		b.state = StateOpen
		b.openedAt = b.now()
		b.mu.Unlock()
		b.notify(StateHalfOpen, StateOpen)
		return

	case StateClosed:
		b.rotate()
		if success {
			b.buckets[b.bucketIdx].success++
			b.mu.Unlock()
			return
		}
		b.buckets[b.bucketIdx].failure++
		if b.errorPct() >= b.cfg.ErrorThresholdPct {
			b.state = StateOpen
			b.openedAt = b.now()
			b.mu.Unlock()
			b.notify(StateClosed, StateOpen)
			return
		}
		b.mu.Unlock()
		return

	default: // StateOpen: result of a call allowed before opening; drop it
		b.mu.Unlock()
	}
}

// State returns the current state, honoring reset-timeout expiry is left to
// Allow; this is a plain snapshot for logging and health reporting.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// rotate advances the bucket ring to the bucket covering now, zeroing every
// bucket that has fallen out of the window. Caller holds b.mu.
func (b *Breaker) rotate() {
	interval := b.cfg.Window / time.Duration(b.cfg.Buckets)
	elapsed := b.now().Sub(b.bucketStart)
	steps := int(elapsed / interval)
	if steps <= 0 {
		return
	}
	if steps >= b.cfg.Buckets {
		for i := range b.buckets {
			b.buckets[i] = bucket{}
		}
		b.bucketIdx = 0
		b.bucketStart = b.now()
		return
	}
	for i := 0; i < steps; i++ {
		b.bucketIdx = (b.bucketIdx + 1) % b.cfg.Buckets
		b.buckets[b.bucketIdx] = bucket{}
	}
	b.bucketStart = b.bucketStart.Add(time.Duration(steps) * interval)
}

// errorPct computes the failure percentage across the window. Caller holds b.mu.
func (b *Breaker) errorPct() int {
	var success, failure int
	for _, bk := range b.buckets {
		success += bk.success
		failure += bk.failure
	}
	total := success + failure
	if total == 0 {
		return 0
	}
	return failure * 100 / total
}

// reset clears all rolling counters. Caller holds b.mu.
func (b *Breaker) reset() {
	for i := range b.buckets {
		b.buckets[i] = bucket{}
	}
	b.bucketIdx = 0
	b.bucketStart = b.now()
	b.trialActive = false
}

func (b *Breaker) notify(from, to State) {
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
