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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Go(path string) {
	n.mu.Lock()
	n.paths = append(n.paths, path)
	n.mu.Unlock()
}

func (n *recordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

func seededOffline(t *testing.T, clk *clock.Manual) (*datasource.Offline, recovery.Dataset) {
	t.Helper()
	ds := recovery.NewGenerator(7).Dataset(clk.Now())
	offline := datasource.NewOffline(clk)
	require.NoError(t, offline.Seed(context.Background(), ds))
	return offline, ds
}

func newController(t *testing.T, clk *clock.Manual, src datasource.Source) *lifecycle.Controller {
	ctrl := lifecycle.NewController(lifecycle.Options{
		OwnerID:   "owner-1",
		OwnerRole: domain.RoleClient,
		Source:    src,
		Clock:     clk,
	})
	t.Cleanup(ctrl.Close)
	return ctrl
}

func drain(ch <-chan struct{}) {
	select {
	case <-ch:
	default:
	}
}

// loaded renders sf until its first fetch has landed.
func loaded(t *testing.T, ctx context.Context, sf Surface) Frame {
	t.Helper()
	var f Frame
	require.Eventually(t, func() bool {
		f = sf.Render(ctx)
		switch v := f.View.(type) {
		case RosterView:
			return !v.Loading
		case AdminView:
			return !v.Loading
		}
		return true
	}, time.Second, time.Millisecond)
	return f
}

func TestSelfAndWidgetShowTheSameSession(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(now)
	offline := datasource.NewOffline(clk)
	ctrl := newController(t, clk, offline.As(service.Actor{UserID: "owner-1", Role: domain.RoleClient}))
	nav := &recordingNavigator{}
	opts := Options{Clock: clk, Navigator: nav, Sink: &recovery.MemorySink{}}

	self := NewSelfSurface(ctrl, opts)
	widget := NewWidgetSurface(ctrl, opts)
	shell := NewShell(self, widget)
	require.NoError(t, shell.Mount(ctx))
	defer shell.Unmount()

	frames := shell.RenderAll(ctx)
	require.True(t, frames[0].View.(SelfView).CanStart)
	require.True(t, frames[1].View.(WidgetView).CanStart)

	drain(self.Changed())
	_, err := widget.Start(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		select {
		case <-self.Changed():
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	clk.Advance(5 * time.Second)
	require.True(t, widget.Toggle())
	frames = shell.RenderAll(ctx)
	sv := frames[0].View.(SelfView)
	wv := frames[1].View.(WidgetView)
	require.Equal(t, sv.Current.Status, wv.Status)
	require.Equal(t, int64(5), sv.Elapsed)
	require.Equal(t, sv.Elapsed, wv.Elapsed)

	_, err = self.Pause(ctx)
	require.NoError(t, err)
	wv = widget.Render(ctx).View.(WidgetView)
	require.Equal(t, GlyphPaused, wv.Glyph)

	_, err = widget.Complete(ctx)
	require.NoError(t, err)
	sv = self.Render(ctx).View.(SelfView)
	require.Nil(t, sv.Current)
	require.Equal(t, domain.SessionCompleted, sv.History[0].Status)
	require.True(t, widget.Render(ctx).View.(WidgetView).CanStart)

	widget.OpenDashboard()
	require.Equal(t, []string{"/client/dashboard"}, nav.Paths())
}

func TestTrainerSurfaceRoster(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(now)
	offline, ds := seededOffline(t, clk)
	trainer := ds.Users[0]
	nav := &recordingNavigator{}
	src := offline.As(service.Actor{UserID: trainer.ID.Hex(), Role: domain.RoleTrainer})

	roster := NewTrainerSurface(src, trainer.ID.Hex(), Options{Clock: clk, Navigator: nav, PollInterval: time.Minute})
	require.NoError(t, roster.Mount(ctx))
	defer roster.Unmount()

	frame := loaded(t, ctx, roster)
	require.False(t, frame.Failed())
	v := frame.View.(RosterView)
	require.Equal(t, recovery.OriginLive, v.Origin)
	require.Len(t, v.Clients, 2)
	live := 0
	for _, c := range v.Clients {
		if c.Current != nil {
			live++
			require.True(t, c.Current.Status.IsOpen())
		}
	}
	require.Equal(t, 2, live)

	roster.Monitor(v.Clients[0].ClientID)
	roster.Message(v.Clients[0].ClientID)
	roster.Progress(v.Clients[1].ClientID)
	require.Equal(t, []string{
		"/trainer/clients/" + v.Clients[0].ClientID + "/monitor",
		"/messages/" + v.Clients[0].ClientID,
		"/trainer/clients/" + v.Clients[1].ClientID + "/progress",
	}, nav.Paths())
}

type failingSource struct {
	datasource.Source
	err error
}

func (f failingSource) TrainerStats(context.Context) (*domain.TrainerStats, error) { return nil, f.err }

func (f failingSource) AdminStats(context.Context) (*domain.AdminStats, error) { return nil, f.err }

func (f failingSource) ListSessions(context.Context, service.ListQuery) ([]domain.Session, error) {
	return nil, f.err
}

func TestPolledSurfacesFallBackToSyntheticData(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(now)
	src := failingSource{err: errors.New("permission denied")}
	gen := recovery.NewGenerator(3)
	opts := Options{Clock: clk, Synthetic: gen, FetchRetry: recovery.RetryConfig{MaxAttempts: 1}}

	trainerID := gen.Dataset(now).Users[0].ID.Hex()
	roster := NewTrainerSurface(src, trainerID, opts)
	v := loaded(t, ctx, roster).View.(RosterView)
	require.Equal(t, recovery.OriginSynthetic, v.Origin)
	require.Len(t, v.Clients, 2)

	admin := NewAdminSurface(src, opts)
	require.NoError(t, admin.SetFilter(AdminFilter{Status: StatusAll, Role: RoleAll, Range: domain.RangeAll}))
	av := loaded(t, ctx, admin).View.(AdminView)
	require.Equal(t, recovery.OriginSynthetic, av.Origin)
	require.Equal(t, gen.AdminStats(now).TotalSessions, av.Stats.TotalSessions)
	require.Len(t, av.Rows, av.Stats.TotalSessions)
}

func TestAdminSurfaceFilterAndEndSession(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(now)
	offline, _ := seededOffline(t, clk)
	src := offline.As(service.Actor{UserID: "admin", Role: domain.RoleAdmin})

	admin := NewAdminSurface(src, Options{Clock: clk, PollInterval: time.Minute})
	require.NoError(t, admin.Mount(ctx))
	defer admin.Unmount()
	loaded(t, ctx, admin)

	require.Equal(t, DefaultAdminFilter(), admin.Filter())
	require.Error(t, admin.SetFilter(AdminFilter{Status: "archived"}))

	require.NoError(t, admin.SetFilter(AdminFilter{Status: StatusActive, Role: RoleAll, Range: domain.RangeAll}))
	v := admin.Render(ctx).View.(AdminView)
	require.Equal(t, recovery.OriginLive, v.Origin)
	require.Len(t, v.Rows, 2)
	target := v.Rows[0]
	require.True(t, target.CanEnd)

	_, err := admin.EndSession(ctx, target.ID, domain.ActionPause)
	require.ErrorIs(t, err, ErrUnknownOutcome)

	ended, err := admin.EndSession(ctx, target.ID, domain.ActionComplete)
	require.NoError(t, err)
	require.Equal(t, domain.SessionCompleted, ended.Status)

	v = admin.Render(ctx).View.(AdminView)
	require.Len(t, v.Rows, 1)
	require.NotEqual(t, target.ID, v.Rows[0].ID)
	require.Equal(t, 1, v.Stats.ActiveSessions)

	require.NoError(t, admin.SetFilter(AdminFilter{Status: StatusPaused, Role: RoleTrainer, Range: domain.RangeToday}))
	v = admin.Render(ctx).View.(AdminView)
	require.True(t, v.Empty)
}

// stalledSource holds trainer and admin reads until release is closed.
type stalledSource struct {
	datasource.Source
	release chan struct{}
}

func (s stalledSource) wait(ctx context.Context) error {
	select {
	case <-s.release:
		return errors.New("upstream timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s stalledSource) TrainerStats(ctx context.Context) (*domain.TrainerStats, error) {
	return nil, s.wait(ctx)
}

func (s stalledSource) AdminStats(ctx context.Context) (*domain.AdminStats, error) {
	return nil, s.wait(ctx)
}

func (s stalledSource) ListSessions(ctx context.Context, _ service.ListQuery) ([]domain.Session, error) {
	return nil, s.wait(ctx)
}

func TestFirstFrameDoesNotWaitForTheDataSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk := clock.NewManual(now)
	src := stalledSource{release: make(chan struct{})}
	gen := recovery.NewGenerator(3)
	opts := Options{Clock: clk, Synthetic: gen, FetchRetry: recovery.RetryConfig{MaxAttempts: 1}, PollInterval: time.Minute}
	trainerID := gen.Dataset(now).Users[0].ID.Hex()

	roster := NewTrainerSurface(src, trainerID, opts)
	admin := NewAdminSurface(src, opts)
	for _, sf := range []Surface{roster, admin} {
		require.NoError(t, sf.Mount(ctx))
		defer sf.Unmount()
	}

	frames := make(chan []Frame, 1)
	go func() { frames <- []Frame{roster.Render(ctx), admin.Render(ctx)} }()
	select {
	case fs := <-frames:
		require.True(t, fs[0].View.(RosterView).Loading)
		require.Equal(t, trainerID, fs[0].View.(RosterView).TrainerID)
		require.True(t, fs[1].View.(AdminView).Loading)
	case <-time.After(time.Second):
		t.Fatal("render blocked on the first fetch")
	}

	close(src.release)
	<-roster.Changed()
	v := loaded(t, ctx, roster).View.(RosterView)
	require.Equal(t, recovery.OriginSynthetic, v.Origin)
	av := loaded(t, ctx, admin).View.(AdminView)
	require.Equal(t, recovery.OriginSynthetic, av.Origin)
}
