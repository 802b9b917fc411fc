package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func TestManualAdvanceMovesNow(t *testing.T) {
	m := NewManual(epoch)
	m.Advance(90 * time.Second)
	require.Equal(t, epoch.Add(90*time.Second), m.Now())
}

func TestManualTickerFires(t *testing.T) {
	m := NewManual(epoch)
	tk := m.NewTicker(time.Second)
	defer tk.Stop()

	m.Advance(500 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("tick before interval elapsed")
	default:
	}

	m.Advance(500 * time.Millisecond)
	select {
	case at := <-tk.C():
		require.Equal(t, epoch.Add(time.Second), at)
	default:
		t.Fatal("expected a tick")
	}
}

func TestManualTickerDropsForSlowReceivers(t *testing.T) {
	m := NewManual(epoch)
	tk := m.NewTicker(time.Second)
	defer tk.Stop()

	m.Advance(5 * time.Second)
	require.Len(t, tk.C(), 1)
	require.Equal(t, epoch.Add(5*time.Second), m.Now())
}

func TestManualTickerStop(t *testing.T) {
	m := NewManual(epoch)
	tk := m.NewTicker(time.Second)
	require.Equal(t, 1, m.Tickers())

	tk.Stop()
	tk.Stop()
	require.Equal(t, 0, m.Tickers())

	m.Advance(3 * time.Second)
	require.Len(t, tk.C(), 0)
}

func TestRealClock(t *testing.T) {
	var c Clock = Real{}
	before := time.Now()
	require.False(t, c.Now().Before(before))

	tk := c.NewTicker(time.Millisecond)
	defer tk.Stop()
	select {
	case <-tk.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker never fired")
	}
}
