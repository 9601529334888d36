package poller

import (
	"context"
	"sync"
	"time"

	"qms/queue-client/internal/metrics"
)

const maxBackoffMultiplier = 5.0

// BackoffMultiplier is the interval scale after consecutive failed
// fetches: a linear ramp of 0.5 per error, capped at 5x.
func BackoffMultiplier(consecutiveErrors int) float64 {
	multiplier := 1 + 0.5*float64(consecutiveErrors)
	if multiplier > maxBackoffMultiplier {
		return maxBackoffMultiplier
	}
	return multiplier
}

// NetworkSource scales the base interval by connection quality.
type NetworkSource interface {
	Multiplier() float64
}

type Config struct {
	// Name labels metrics for this polled resource.
	Name         string
	BaseInterval time.Duration
	// Timeout bounds each fetch. Defaults to 5s.
	Timeout time.Duration
	Fetch   func(ctx context.Context) error
	// OnError is invoked after each failed fetch. Polling continues.
	OnError   func(error)
	Network   NetworkSource
	Scheduler Scheduler
}

// Poller repeatedly invokes Fetch at an interval tuned to network quality
// and failure history. While the client is not visible no fetches are
// issued, but the polling intent survives until Stop.
type Poller struct {
	mu      sync.Mutex
	cfg     Config
	running bool
	visible bool
	errors  int
	pending Handle
}

func New(cfg Config) *Poller {
	if cfg.Name == "" {
		cfg.Name = "resource"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = TimerScheduler{}
	}
	return &Poller{cfg: cfg, visible: true}
}

// Start begins polling with an immediate first fetch. No-op when enabled
// is false or polling is already active.
func (p *Poller) Start(enabled bool) {
	if !enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.cfg.Fetch == nil {
		return
	}
	p.running = true
	p.scheduleLocked(0)
}

// Stop cancels the pending fire. Safe to call repeatedly; no fetch is
// issued and no callback fires after it returns. A fetch already in
// flight completes but its outcome is discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.cancelPendingLocked()
}

// Refetch bypasses the current interval and backoff and fires now.
func (p *Poller) Refetch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.scheduleLocked(0)
}

// SetVisible tracks tab/app visibility. Going hidden cancels the pending
// fire without stopping; returning visible fetches immediately.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if visible == p.visible {
		return
	}
	p.visible = visible
	if !visible {
		p.cancelPendingLocked()
		return
	}
	if p.running {
		p.scheduleLocked(0)
	}
}

func (p *Poller) fire() {
	p.mu.Lock()
	p.pending = nil
	if !p.running {
		p.mu.Unlock()
		return
	}
	if !p.visible {
		// Keep the schedule alive so polling resumes on visibility.
		p.scheduleLocked(p.intervalLocked())
		p.mu.Unlock()
		return
	}
	fetch := p.cfg.Fetch
	timeout := p.cfg.Timeout
	name := p.cfg.Name
	p.mu.Unlock()

	metrics.PollsTotal.WithLabelValues(name).Inc()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	err := fetch(ctx)
	cancel()

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	var onError func(error)
	if err != nil {
		p.errors++
		metrics.PollErrorsTotal.WithLabelValues(name).Inc()
		onError = p.cfg.OnError
	} else {
		p.errors = 0
	}
	p.scheduleLocked(p.intervalLocked())
	p.mu.Unlock()

	if err != nil && onError != nil {
		onError(err)
	}
}

// scheduleLocked replaces the pending fire; at most one exists at a time.
// Idle-flavored scheduling is only used while the error count is zero.
func (p *Poller) scheduleLocked(d time.Duration) {
	p.cancelPendingLocked()
	idle := p.errors == 0
	p.pending = p.cfg.Scheduler.Schedule(d, idle, p.fire)
}

func (p *Poller) cancelPendingLocked() {
	if p.pending != nil {
		p.pending.Cancel()
		p.pending = nil
	}
}

func (p *Poller) intervalLocked() time.Duration {
	networkMultiplier := 1.0
	if p.cfg.Network != nil {
		networkMultiplier = p.cfg.Network.Multiplier()
	}
	scale := networkMultiplier * BackoffMultiplier(p.errors)
	return time.Duration(float64(p.cfg.BaseInterval) * scale)
}
