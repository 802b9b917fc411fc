package surface

import (
	"alcyxob/session-tracker/internal/clock"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollerRefreshesOnTicks(t *testing.T) {
	clk := clock.NewManual(now)
	var calls atomic.Int32
	p := NewPoller(clk, time.Minute, func(context.Context) { calls.Add(1) })

	p.Start(context.Background())
	p.Start(context.Background())
	require.True(t, p.Running())
	require.Equal(t, 1, clk.Tickers())

	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)

	p.Stop()
	require.False(t, p.Running())
	require.Zero(t, clk.Tickers())
	p.Stop()
}

func TestPollerTriggerIsRateLimited(t *testing.T) {
	clk := clock.NewManual(now)
	var calls atomic.Int32
	p := NewPoller(clk, time.Minute, func(context.Context) { calls.Add(1) })
	p.Start(context.Background())
	defer p.Stop()

	require.True(t, p.Trigger())
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	require.False(t, p.Trigger())

	clk.Set(now.Add(20 * time.Second))
	require.True(t, p.Trigger())
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
}
