package surface

import (
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/datasource"
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/lifecycle"
	"alcyxob/session-tracker/internal/recovery"
	"alcyxob/session-tracker/internal/service"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// brokenSurface renders through a region whose render always panics.
type brokenSurface struct {
	notifier
	region     *recovery.Region[string]
	mountPanic bool
	renders    int
}

func newBrokenSurface(sink recovery.Sink) *brokenSurface {
	b := &brokenSurface{notifier: newNotifier()}
	b.region = recovery.NewRegion("broken", func(context.Context) (string, error) {
		b.renders++
		panic("nil map write")
	}, recovery.RegionOptions{Sink: sink, MaxRetries: 1})
	return b
}

func (b *brokenSurface) Name() string { return "broken" }

func (b *brokenSurface) Mount(context.Context) error {
	if b.mountPanic {
		panic("mount exploded")
	}
	return nil
}

func (b *brokenSurface) Unmount() {}

func (b *brokenSurface) Render(ctx context.Context) Frame {
	v, fb := b.region.Render(ctx)
	return frameOf("broken", v, fb)
}

func (b *brokenSurface) Retry(ctx context.Context) Frame {
	v, fb := b.region.Retry(ctx)
	return frameOf("broken", v, fb)
}

func TestShellIsolatesFailingSurface(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(now)
	offline := datasource.NewOffline(clk)
	ctrl := newController(t, clk, offline.As(service.Actor{UserID: "owner-1", Role: domain.RoleClient}))
	sink := &recovery.MemorySink{}
	opts := Options{Clock: clk, Sink: sink}

	broken := newBrokenSurface(sink)
	shell := NewShell(NewSelfSurface(ctrl, opts), broken, NewWidgetSurface(ctrl, opts))
	require.NoError(t, shell.Mount(ctx))
	defer shell.Unmount()

	frames := shell.RenderAll(ctx)
	require.Len(t, frames, 3)
	require.False(t, frames[0].Failed())
	require.True(t, frames[1].Failed())
	require.False(t, frames[2].Failed())

	fb := frames[1].Fallback
	require.True(t, fb.CanRetry)
	require.True(t, fb.Err.Panicked)
	require.Len(t, sink.Incidents(), 1)
	require.Equal(t, fb.IncidentID, sink.Incidents()[0].ID)

	_, err := ctrl.Start(ctx, lifecycle.StartInput{})
	require.NoError(t, err)
	frames = shell.RenderAll(ctx)
	require.NotNil(t, frames[0].View.(SelfView).Current)
	require.True(t, frames[2].View.(WidgetView).HasSession)
	require.True(t, frames[1].Failed())

	// one retry allowed, then the fallback is terminal and rendering stops
	fb = broken.Retry(ctx).Fallback
	require.True(t, fb.Terminal)
	require.False(t, fb.CanRetry)
	require.Contains(t, fb.Message, fb.IncidentID)
	rendered := broken.renders
	broken.Retry(ctx)
	shell.RenderAll(ctx)
	require.Equal(t, rendered, broken.renders)
}

func TestShellMountFailureSkipsOnlyThatSurface(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(now)
	offline := datasource.NewOffline(clk)
	ctrl := newController(t, clk, offline.As(service.Actor{UserID: "owner-1", Role: domain.RoleClient}))

	broken := newBrokenSurface(&recovery.MemorySink{})
	broken.mountPanic = true
	self := NewSelfSurface(ctrl, Options{Clock: clk})
	shell := NewShell(broken, self)

	err := shell.Mount(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "mount broken")

	got, ok := shell.Lookup(NameSelf)
	require.True(t, ok)
	require.Same(t, self, got)
	_, ok = shell.Lookup("missing")
	require.False(t, ok)
	shell.Unmount()
}

func TestShellRunRedrawsOnChange(t *testing.T) {
	clk := clock.NewManual(now)
	offline := datasource.NewOffline(clk)
	ctrl := newController(t, clk, offline.As(service.Actor{UserID: "owner-1", Role: domain.RoleClient}))
	self := NewSelfSurface(ctrl, Options{Clock: clk})
	shell := NewShell(self)
	require.NoError(t, shell.Mount(context.Background()))
	defer shell.Unmount()

	ctx, cancel := context.WithCancel(context.Background())
	draws := make(chan []Frame, 16)
	done := make(chan error, 1)
	go func() {
		done <- shell.Run(ctx, func(frames []Frame) {
			select {
			case draws <- frames:
			default:
			}
		})
	}()

	first := <-draws
	require.True(t, first[0].View.(SelfView).CanStart)

	_, err := ctrl.Start(context.Background(), lifecycle.StartInput{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		select {
		case frames := <-draws:
			return frames[0].View.(SelfView).Current != nil
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	cancel()
	require.True(t, errors.Is(<-done, context.Canceled))
}
