package handoff

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zecrypt/zecrypt-go/internal/common"
	"github.com/zecrypt/zecrypt-go/internal/logging"
)

// PollState is the lifecycle of one polling run.
type PollState int

const (
	// PollIdle means no run has started yet, or the last one finished.
	PollIdle PollState = iota
	// PollPolling means a run is probing the bridge slot on an interval.
	PollPolling
	// PollFound means a run delivered a payload.
	PollFound
	// PollTimedOut means a run exhausted its attempt budget.
	PollTimedOut
	// PollStopped means a run was cancelled before finding anything.
	PollStopped
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollAttempts = 30
)

// Poller owns one background probe loop against the browser bridge slot. All
// lifecycle state lives here, guarded by the mutex; Start and Stop are
// idempotent, and at most one loop runs at a time.
type Poller struct {
	mu       sync.Mutex
	state    PollState
	attempts int
	cancel   context.CancelFunc

	interval    time.Duration
	maxAttempts int

	browser Browser
	onFound func(ctx context.Context, payload *BridgePayload)
	log     logging.Logger
}

// NewPoller builds a poller that calls onFound once when a payload turns up.
func NewPoller(browser Browser, onFound func(ctx context.Context, payload *BridgePayload), log logging.Logger) *Poller {
	return &Poller{
		interval:    defaultPollInterval,
		maxAttempts: defaultPollAttempts,
		browser:     browser,
		onFound:     onFound,
		log:         log,
	}
}

// Configure overrides the probe interval and attempt budget. Call before
// Start; an active run keeps its current timing.
func (p *Poller) Configure(interval time.Duration, maxAttempts int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if interval > 0 {
		p.interval = interval
	}
	if maxAttempts > 0 {
		p.maxAttempts = maxAttempts
	}
}

// State returns the current lifecycle state.
func (p *Poller) State() PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Attempts returns how many probes the current or last run has made.
func (p *Poller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Start begins a polling run. Calling Start while a run is active is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.state == PollPolling {
		p.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.state = PollPolling
	p.attempts = 0
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(ctx, runCtx)
}

// Stop cancels the active run, if any. Safe to call in any state.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PollPolling {
		return
	}
	p.cancel()
	p.state = PollStopped
}

// run probes on ctx, which is cancelled when the run ends. The found callback
// gets the parent context instead: finishing the run must not cut short the
// persistence work it triggers.
func (p *Poller) run(parent, ctx context.Context) {
	p.mu.Lock()
	interval, maxAttempts := p.interval, p.maxAttempts
	p.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.finish(PollStopped)
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		if p.state != PollPolling {
			p.mu.Unlock()
			return
		}
		p.attempts++
		attempt := p.attempts
		p.mu.Unlock()

		payload, err := p.checkOnce(ctx)
		if err == nil {
			p.finish(PollFound)
			p.onFound(parent, payload)
			return
		}
		if !errors.Is(err, common.ErrNotFound) && !errors.Is(err, common.ErrBridgeUnavailable) {
			p.log.Debug(ctx, "bridge probe failed", "attempt", attempt, "error", err)
		}

		if attempt >= maxAttempts {
			p.finish(PollTimedOut)
			return
		}
	}
}

// finish moves a live run to its terminal state. A run that was already
// stopped keeps PollStopped.
func (p *Poller) finish(state PollState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == PollPolling {
		p.state = state
		if p.cancel != nil {
			p.cancel()
		}
	}
}

// checkOnce makes a single probe: verify the active tab is an eligible login
// page, then take and decode the bridge slot. common.ErrNotFound means
// nothing was there; other errors mean the probe could not run.
func (p *Poller) checkOnce(ctx context.Context) (*BridgePayload, error) {
	if p.browser == nil {
		return nil, common.ErrBridgeUnavailable
	}
	tabURL, err := p.browser.ActiveTabURL(ctx)
	if err != nil {
		return nil, err
	}
	if !eligibleURL(tabURL) {
		return nil, common.ErrBridgeUnavailable
	}

	raw, err := p.browser.TakeBridgePayload(ctx)
	if err != nil {
		return nil, err
	}
	return parseBridgePayload(raw)
}
