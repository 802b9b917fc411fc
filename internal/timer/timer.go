// Package timer derives the elapsed time of the current session. One Timer is
// shared by every surface so all of them read the same value.
package timer

import (
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/domain"
	"sync"
	"time"
)

// TickInterval is how often listeners are notified while a session is active.
const TickInterval = time.Second

// Timer follows the lifecycle status. The elapsed value is computed from the
// clock, never counted, so missed ticks cannot cause drift.
type Timer struct {
	clock clock.Clock
	// deliver is held while listeners run, so a stop waits out a tick in
	// progress.
	deliver sync.Mutex

	mu          sync.Mutex
	status      domain.SessionStatus
	baseline    int64
	activeSince time.Time
	ticker      clock.Ticker
	stop        chan struct{}
	done        chan struct{}
	listeners   map[int]func(elapsed int64)
	nextID      int
	closed      bool
}

func New(clk clock.Clock) *Timer {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Timer{clock: clk, listeners: map[int]func(int64){}}
}

// Sync moves the timer to status. baseline is the frozen duration; while
// active, activeSince marks when the running interval began (now if nil).
// Pass an empty status when there is no current session. Once Sync returns
// no tick from an earlier state is delivered, so listeners must not call it.
func (t *Timer) Sync(status domain.SessionStatus, baseline int64, activeSince *time.Time) {
	t.deliver.Lock()
	defer t.deliver.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if baseline < 0 {
		baseline = 0
	}
	if status == "" {
		baseline = 0
	}
	t.status = status
	t.baseline = baseline

	if status != domain.SessionActive {
		t.activeSince = time.Time{}
		t.stopLocked()
		return
	}
	if activeSince != nil {
		t.activeSince = *activeSince
	} else {
		t.activeSince = t.clock.Now()
	}
	if t.ticker == nil {
		t.startLocked()
	}
}

// Elapsed returns the current elapsed seconds.
func (t *Timer) Elapsed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsedLocked()
}

func (t *Timer) elapsedLocked() int64 {
	if t.status != domain.SessionActive {
		return t.baseline
	}
	running := t.clock.Now().Sub(t.activeSince)
	if running < 0 {
		running = 0
	}
	return t.baseline + int64(running/time.Second)
}

// Running reports whether the tick resource is held.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ticker != nil
}

// Subscribe registers fn for tick notifications. The returned func removes it.
func (t *Timer) Subscribe(fn func(elapsed int64)) func() {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

// Close stops ticking and waits for the tick goroutine to exit.
func (t *Timer) Close() {
	t.mu.Lock()
	t.closed = true
	done := t.done
	t.stopLocked()
	t.listeners = map[int]func(int64){}
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (t *Timer) startLocked() {
	t.ticker = t.clock.NewTicker(TickInterval)
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.loop(t.ticker, t.stop, t.done)
}

func (t *Timer) stopLocked() {
	if t.ticker == nil {
		return
	}
	t.ticker.Stop()
	close(t.stop)
	t.ticker, t.stop, t.done = nil, nil, nil
}

func (t *Timer) loop(ticker clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			t.notify(stop)
		}
	}
}

func (t *Timer) notify(stop <-chan struct{}) {
	t.deliver.Lock()
	defer t.deliver.Unlock()
	t.mu.Lock()
	select {
	case <-stop:
		// stopped while the tick was pending
		t.mu.Unlock()
		return
	default:
	}
	elapsed := t.elapsedLocked()
	fns := make([]func(int64), 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(elapsed)
	}
}
