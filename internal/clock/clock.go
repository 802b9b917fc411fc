// Package clock abstracts wall time so timers, pollers and services can run
// against simulated time in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock supplies the current time and tickers.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks like time.Ticker. Slow receivers drop ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Manual is a clock that only moves when told to.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

// NewManual returns a Manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{
		clock:  m,
		every:  d,
		next:   m.now.Add(d),
		ch:     make(chan time.Time, 1),
		active: true,
	}
	m.tickers = append(m.tickers, t)
	return t
}

// Set moves the clock to t without firing tickers.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	for _, tk := range m.tickers {
		tk.next = t.Add(tk.every)
	}
	m.mu.Unlock()
}

// Advance moves the clock forward by d, firing every tick that falls due in
// order. Each tick is delivered before the clock moves past it, so a receiver
// that drains the channel synchronously observes every tick.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	for {
		tk := m.nextDue(target)
		if tk == nil {
			break
		}
		m.now = tk.next
		tk.next = tk.next.Add(tk.every)
		at := m.now
		m.mu.Unlock()
		tk.fire(at)
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// Tickers reports how many tickers are running.
func (m *Manual) Tickers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

func (m *Manual) nextDue(target time.Time) *manualTicker {
	due := make([]*manualTicker, 0, len(m.tickers))
	for _, tk := range m.tickers {
		if !tk.next.After(target) {
			due = append(due, tk)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool { return due[i].next.Before(due[j].next) })
	return due[0]
}

func (m *Manual) remove(t *manualTicker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, tk := range m.tickers {
		if tk == t {
			m.tickers = append(m.tickers[:i], m.tickers[i+1:]...)
			return
		}
	}
}

type manualTicker struct {
	clock  *Manual
	every  time.Duration
	next   time.Time
	ch     chan time.Time
	mu     sync.Mutex
	active bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	t.mu.Unlock()
	t.clock.remove(t)
}

func (t *manualTicker) fire(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return
	}
	select {
	case t.ch <- at:
	default:
	}
}
