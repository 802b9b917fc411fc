package surface

import (
	"alcyxob/session-tracker/internal/clock"
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPollInterval is the auto-refresh period of the trainer and admin surfaces.
const DefaultPollInterval = 30 * time.Second

// Poller calls a refresh func every interval and on demand. Refreshes,
// scheduled or manual, are bounded to one per minGap.
type Poller struct {
	clock    clock.Clock
	interval time.Duration
	limiter  *rate.Limiter
	refresh  func(ctx context.Context)

	mu      sync.Mutex
	trigger chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller creates a stopped poller. A manual refresh is accepted at most
// once per quarter interval.
func NewPoller(clk clock.Clock, interval time.Duration, refresh func(ctx context.Context)) *Poller {
	if clk == nil {
		clk = clock.Real{}
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	minGap := interval / 4
	return &Poller{
		clock:    clk,
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(minGap), 1),
		refresh:  refresh,
		trigger:  make(chan struct{}, 1),
	}
}

// Start launches the polling goroutine. It is a no-op while running.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	ticker := p.clock.NewTicker(p.interval)
	go p.loop(ctx, ticker, p.done)
}

// Trigger requests an immediate refresh. It returns false when the request
// was rate limited.
func (p *Poller) Trigger() bool {
	if !p.limiter.AllowN(p.clock.Now(), 1) {
		return false
	}
	select {
	case p.trigger <- struct{}{}:
	default:
	}
	return true
}

// Stop cancels the goroutine and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the goroutine is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) loop(ctx context.Context, ticker clock.Ticker, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if p.limiter.AllowN(p.clock.Now(), 1) {
				p.refresh(ctx)
			}
		case <-p.trigger:
			p.refresh(ctx)
		}
	}
}
