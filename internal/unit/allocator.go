package unit

import (
	"context"
	"log/slog"
	"time"
)

// Default acquisition policy: ten idle lookups one second apart, then fallback.
const (
	DefaultAcquireRetries  = 10
	DefaultAcquireInterval = time.Second
)

// Sleeper pauses between idle lookups. It returns early with the context
// error when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// AcquireObserver is told how an acquisition ended.
// outcome is one of "idle", "fallback" or "none".
type AcquireObserver func(capability, outcome string)

// Allocator hands out units for a capability.
type Allocator struct {
	registry *Registry
	idle     func(capability string) *Unit
	retries  int
	interval time.Duration
	sleep    Sleeper
	observe  AcquireObserver
	logger   *slog.Logger
}

// AllocatorOption configures an Allocator.
type AllocatorOption func(*Allocator)

// WithRetries sets how many idle lookups are made before falling back. Zero
// behaves like one.
func WithRetries(n int) AllocatorOption {
	return func(a *Allocator) {
		if n >= 0 {
			a.retries = n
		}
	}
}

// WithInterval sets the pause between idle lookups.
func WithInterval(d time.Duration) AllocatorOption {
	return func(a *Allocator) {
		if d >= 0 {
			a.interval = d
		}
	}
}

// WithSleeper replaces the pause implementation, mainly for tests.
func WithSleeper(s Sleeper) AllocatorOption {
	return func(a *Allocator) {
		if s != nil {
			a.sleep = s
		}
	}
}

// WithObserver registers a callback for acquisition outcomes.
func WithObserver(o AcquireObserver) AllocatorOption {
	return func(a *Allocator) { a.observe = o }
}

// WithLogger sets the allocator logger.
func WithLogger(l *slog.Logger) AllocatorOption {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAllocator creates an allocator over the given registry.
func NewAllocator(registry *Registry, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		registry: registry,
		idle:     registry.claimIdle,
		retries:  DefaultAcquireRetries,
		interval: DefaultAcquireInterval,
		sleep:    sleepContext,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "unit_allocator")
	return a
}

// Acquire returns a leased unit of the capability. The caller must call
// Release on the unit when the stage call returns.
//
// An idle unit is preferred. The allocator looks for one up to the
// configured number of times, pausing between lookups, and after the last
// miss falls back at once to any unit of the capability even if it is busy.
// ok is false when the capability has no units at all or ctx ends during a
// pause.
func (a *Allocator) Acquire(ctx context.Context, capability string) (*Unit, bool) {
	if a.registry.LiveCount(capability) == 0 {
		a.logger.WarnContext(ctx, "no units registered for capability", "capability", capability)
		a.report(capability, "none")
		return nil, false
	}

	attempts := max(a.retries, 1)
	for attempt := 1; attempt <= attempts; attempt++ {
		if u := a.idle(capability); u != nil {
			a.report(capability, "idle")
			return u, true
		}
		if attempt == attempts {
			break
		}

		a.logger.DebugContext(ctx, "no idle unit, waiting",
			"capability", capability,
			"attempt", attempt,
			"max_attempts", attempts)

		if err := a.sleep(ctx, a.interval); err != nil {
			a.logger.WarnContext(ctx, "unit acquisition cancelled",
				"capability", capability,
				"attempt", attempt,
				"error", err)
			a.report(capability, "none")
			return nil, false
		}
	}

	if u := a.registry.claimAny(capability); u != nil {
		a.logger.InfoContext(ctx, "falling back to busy unit",
			"capability", capability,
			"unit", u.String(),
			"leases", u.Leases())
		a.report(capability, "fallback")
		return u, true
	}

	a.report(capability, "none")
	return nil, false
}

func (a *Allocator) report(capability, outcome string) {
	if a.observe != nil {
		a.observe(capability, outcome)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
