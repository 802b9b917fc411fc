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
	"fmt"
	"log"
	"sync"
	"time"
)

// Surface names, also used as incident surface labels.
const (
	NameSelf    = "self-view"
	NameTrainer = "trainer-roster"
	NameAdmin   = "admin-oversight"
	NameWidget  = "status-widget"
)

var ErrUnknownOutcome = errors.New("end session outcome must be complete or cancel")

// Navigator leaves the current surface for another route.
type Navigator interface {
	Go(path string)
}

// LogNavigator only records navigation requests.
type LogNavigator struct{}

func (LogNavigator) Go(path string) {
	log.Printf("INFO: Navigate to %s", path)
}

// Frame is one rendered surface: either its view or a fallback.
type Frame struct {
	Surface  string
	View     any
	Fallback *recovery.Fallback
}

// Failed reports whether the frame holds a fallback.
func (f Frame) Failed() bool { return f.Fallback != nil }

func frameOf[T any](name string, view T, fb *recovery.Fallback) Frame {
	if fb != nil {
		return Frame{Surface: name, Fallback: fb}
	}
	return Frame{Surface: name, View: view}
}

// Surface is a mounted, independently supervised view.
type Surface interface {
	Name() string
	Mount(ctx context.Context) error
	Unmount()
	Render(ctx context.Context) Frame
	// Retry re-renders after a fallback and spends one unit of the retry budget.
	Retry(ctx context.Context) Frame
	// Changed signals that the surface should be rendered again.
	Changed() <-chan struct{}
}

// Options are shared by all surfaces.
type Options struct {
	Sink         recovery.Sink
	MaxRetries   int
	HistoryLimit int
	PollInterval time.Duration
	Clock        clock.Clock
	Navigator    Navigator
	// Synthetic backs the trainer and admin reads when the data source fails.
	Synthetic  *recovery.Generator
	FetchRetry recovery.RetryConfig
}

func (o Options) withDefaults() Options {
	if o.Sink == nil {
		o.Sink = recovery.LogSink{}
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Navigator == nil {
		o.Navigator = LogNavigator{}
	}
	if o.Synthetic == nil {
		o.Synthetic = recovery.NewGenerator(1)
	}
	if o.FetchRetry.MaxAttempts == 0 {
		o.FetchRetry = recovery.DefaultRetryConfig()
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = lifecycle.DefaultHistoryLimit
	}
	return o
}

func (o Options) region(tags map[string]string) recovery.RegionOptions {
	return recovery.RegionOptions{
		Sink:       o.Sink,
		MaxRetries: o.MaxRetries,
		Context:    tags,
		Now:        o.Clock.Now,
	}
}

// notifier coalesces change signals into a channel of capacity one.
type notifier struct {
	ch chan struct{}
}

func newNotifier() notifier {
	return notifier{ch: make(chan struct{}, 1)}
}

func (n notifier) signal() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

func (n notifier) Changed() <-chan struct{} { return n.ch }

// controllerSurface follows the store and timer of a lifecycle controller.
type controllerSurface struct {
	notifier
	ctrl *lifecycle.Controller

	mu     sync.Mutex
	unsubs []func()
}

func (c *controllerSurface) mount() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubs != nil {
		return
	}
	c.unsubs = []func(){
		c.ctrl.Store().Subscribe(func(lifecycle.State) { c.signal() }),
		c.ctrl.Timer().Subscribe(func(int64) { c.signal() }),
	}
}

func (c *controllerSurface) unmount() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// snapshot reads the store and timer together and rejects a current session
// that breaks the record invariants.
func (c *controllerSurface) snapshot() (lifecycle.State, int64, error) {
	state := c.ctrl.Snapshot()
	elapsed := c.ctrl.Timer().Elapsed()
	if state.Current != nil {
		if err := state.Current.Validate(); err != nil {
			return state, 0, fmt.Errorf("current session %s: %w", state.Current.ID, err)
		}
	}
	return state, elapsed, nil
}

// SelfSurface is the client self-view with full session controls.
type SelfSurface struct {
	controllerSurface
	opts   Options
	region *recovery.Region[SelfView]
}

func NewSelfSurface(ctrl *lifecycle.Controller, opts Options) *SelfSurface {
	opts = opts.withDefaults()
	s := &SelfSurface{
		controllerSurface: controllerSurface{notifier: newNotifier(), ctrl: ctrl},
		opts:              opts,
	}
	s.region = recovery.NewRegion(NameSelf, s.project, opts.region(map[string]string{
		"ownerId": ctrl.OwnerID(),
		"role":    string(ctrl.OwnerRole()),
	}))
	return s
}

func (s *SelfSurface) Name() string { return NameSelf }

func (s *SelfSurface) Mount(context.Context) error {
	s.mount()
	return nil
}

func (s *SelfSurface) Unmount() { s.unmount() }

func (s *SelfSurface) project(context.Context) (SelfView, error) {
	state, elapsed, err := s.snapshot()
	if err != nil {
		return SelfView{}, err
	}
	return ProjectSelfView(state, elapsed, s.opts.HistoryLimit), nil
}

func (s *SelfSurface) Render(ctx context.Context) Frame {
	v, fb := s.region.Render(ctx)
	return frameOf(NameSelf, v, fb)
}

func (s *SelfSurface) Retry(ctx context.Context) Frame {
	v, fb := s.region.Retry(ctx)
	return frameOf(NameSelf, v, fb)
}

func (s *SelfSurface) Start(ctx context.Context, in lifecycle.StartInput) (*domain.Session, error) {
	return s.ctrl.Start(ctx, in)
}

func (s *SelfSurface) Pause(ctx context.Context) (*domain.Session, error) { return s.ctrl.Pause(ctx) }

func (s *SelfSurface) Resume(ctx context.Context) (*domain.Session, error) { return s.ctrl.Resume(ctx) }

func (s *SelfSurface) Complete(ctx context.Context, notes string) (*domain.Session, error) {
	return s.ctrl.Complete(ctx, notes)
}

func (s *SelfSurface) Cancel(ctx context.Context) (*domain.Session, error) { return s.ctrl.Cancel(ctx) }

// WidgetSurface is the floating status widget. Its expand flag is the only
// state it keeps.
type WidgetSurface struct {
	controllerSurface
	opts     Options
	region   *recovery.Region[WidgetView]
	expanded bool
}

func NewWidgetSurface(ctrl *lifecycle.Controller, opts Options) *WidgetSurface {
	opts = opts.withDefaults()
	w := &WidgetSurface{
		controllerSurface: controllerSurface{notifier: newNotifier(), ctrl: ctrl},
		opts:              opts,
	}
	w.region = recovery.NewRegion(NameWidget, w.project, opts.region(map[string]string{
		"ownerId": ctrl.OwnerID(),
	}))
	return w
}

func (w *WidgetSurface) Name() string { return NameWidget }

func (w *WidgetSurface) Mount(context.Context) error {
	w.mount()
	return nil
}

func (w *WidgetSurface) Unmount() { w.unmount() }

func (w *WidgetSurface) project(context.Context) (WidgetView, error) {
	state, elapsed, err := w.snapshot()
	if err != nil {
		return WidgetView{}, err
	}
	w.mu.Lock()
	expanded := w.expanded
	w.mu.Unlock()
	return ProjectWidget(state, elapsed, expanded), nil
}

func (w *WidgetSurface) Render(ctx context.Context) Frame {
	v, fb := w.region.Render(ctx)
	return frameOf(NameWidget, v, fb)
}

func (w *WidgetSurface) Retry(ctx context.Context) Frame {
	v, fb := w.region.Retry(ctx)
	return frameOf(NameWidget, v, fb)
}

// Toggle flips between collapsed and expanded and returns the new state.
func (w *WidgetSurface) Toggle() bool {
	w.mu.Lock()
	w.expanded = !w.expanded
	expanded := w.expanded
	w.mu.Unlock()
	w.signal()
	return expanded
}

func (w *WidgetSurface) Start(ctx context.Context) (*domain.Session, error) {
	return w.ctrl.Start(ctx, lifecycle.StartInput{})
}

func (w *WidgetSurface) Pause(ctx context.Context) (*domain.Session, error) { return w.ctrl.Pause(ctx) }

func (w *WidgetSurface) Resume(ctx context.Context) (*domain.Session, error) { return w.ctrl.Resume(ctx) }

func (w *WidgetSurface) Complete(ctx context.Context) (*domain.Session, error) {
	return w.ctrl.Complete(ctx, "")
}

// OpenDashboard navigates to the owner's dashboard.
func (w *WidgetSurface) OpenDashboard() {
	w.opts.Navigator.Go(DashboardPath(w.ctrl.OwnerRole()))
}

// DashboardPath is the landing route of each role.
func DashboardPath(role domain.Role) string {
	switch role {
	case domain.RoleTrainer:
		return "/trainer/dashboard"
	case domain.RoleAdmin:
		return "/admin/dashboard"
	}
	return "/client/dashboard"
}

// polledSurface holds the poller shared by the trainer and admin surfaces.
type polledSurface struct {
	notifier
	opts   Options
	source datasource.Source
	poller *Poller
	first  sync.Once
}

// mount starts the first load in the background. Frames show a loading view
// until it lands, so a slow data source never holds up the first render.
func (p *polledSurface) mount(ctx context.Context, refresh func(ctx context.Context)) {
	p.firstLoad(ctx, refresh)
	p.poller.Start(ctx)
}

func (p *polledSurface) firstLoad(ctx context.Context, refresh func(ctx context.Context)) {
	p.first.Do(func() { go refresh(ctx) })
}

// TrainerSurface shows the trainer's roster with one current session per client.
type TrainerSurface struct {
	polledSurface
	region *recovery.Region[RosterView]

	mu        sync.Mutex
	trainerID string
	stats     *recovery.Result[domain.TrainerStats]
}

func NewTrainerSurface(source datasource.Source, trainerID string, opts Options) *TrainerSurface {
	opts = opts.withDefaults()
	t := &TrainerSurface{
		polledSurface: polledSurface{notifier: newNotifier(), opts: opts, source: source},
		trainerID:     trainerID,
	}
	t.poller = NewPoller(opts.Clock, opts.PollInterval, t.refresh)
	t.region = recovery.NewRegion(NameTrainer, t.project, opts.region(map[string]string{
		"trainerId": trainerID,
	}))
	return t
}

func (t *TrainerSurface) Name() string { return NameTrainer }

func (t *TrainerSurface) Mount(ctx context.Context) error {
	t.mount(ctx, t.refresh)
	return nil
}

func (t *TrainerSurface) Unmount() { t.poller.Stop() }

func (t *TrainerSurface) refresh(ctx context.Context) {
	res := recovery.Fetch(ctx, "trainer stats", t.opts.FetchRetry,
		func(ctx context.Context) (domain.TrainerStats, error) {
			stats, err := t.source.TrainerStats(ctx)
			if err != nil {
				return domain.TrainerStats{}, err
			}
			return *stats, nil
		},
		func() domain.TrainerStats {
			return t.opts.Synthetic.TrainerStats(t.trainerID, t.opts.Clock.Now())
		})
	t.mu.Lock()
	t.stats = &res
	t.mu.Unlock()
	t.signal()
}

func (t *TrainerSurface) project(ctx context.Context) (RosterView, error) {
	t.mu.Lock()
	res := t.stats
	t.mu.Unlock()
	if res == nil {
		t.firstLoad(context.WithoutCancel(ctx), t.refresh)
		return RosterView{TrainerID: t.trainerID, Clients: []RosterEntry{}, Loading: true}, nil
	}
	for _, c := range res.Value.Clients {
		if c.Current != nil && !c.Current.Status.IsOpen() {
			return RosterView{}, fmt.Errorf("client %s: current session is %s", c.ClientID, c.Current.Status)
		}
	}
	v := ProjectRoster(res.Value)
	v.Origin = res.Origin
	return v, nil
}

func (t *TrainerSurface) Render(ctx context.Context) Frame {
	v, fb := t.region.Render(ctx)
	return frameOf(NameTrainer, v, fb)
}

func (t *TrainerSurface) Retry(ctx context.Context) Frame {
	v, fb := t.region.Retry(ctx)
	return frameOf(NameTrainer, v, fb)
}

// Refresh asks the poller for an early reload. It returns false when rate limited.
func (t *TrainerSurface) Refresh() bool { return t.poller.Trigger() }

// Monitor, Message and Progress hand the client over to other routes.
func (t *TrainerSurface) Monitor(clientID string) {
	t.opts.Navigator.Go("/trainer/clients/" + clientID + "/monitor")
}

func (t *TrainerSurface) Message(clientID string) {
	t.opts.Navigator.Go("/messages/" + clientID)
}

func (t *TrainerSurface) Progress(clientID string) {
	t.opts.Navigator.Go("/trainer/clients/" + clientID + "/progress")
}

// adminListLimit caps the sessions loaded into the oversight table.
const adminListLimit = 500

// AdminSurface is the platform oversight view.
type AdminSurface struct {
	polledSurface
	region *recovery.Region[AdminView]

	mu       sync.Mutex
	filter   AdminFilter
	stats    *recovery.Result[domain.AdminStats]
	sessions *recovery.Result[[]domain.Session]
}

func NewAdminSurface(source datasource.Source, opts Options) *AdminSurface {
	opts = opts.withDefaults()
	a := &AdminSurface{
		polledSurface: polledSurface{notifier: newNotifier(), opts: opts, source: source},
		filter:        DefaultAdminFilter(),
	}
	a.poller = NewPoller(opts.Clock, opts.PollInterval, a.refresh)
	a.region = recovery.NewRegion(NameAdmin, a.project, opts.region(map[string]string{
		"role": string(domain.RoleAdmin),
	}))
	return a
}

func (a *AdminSurface) Name() string { return NameAdmin }

func (a *AdminSurface) Mount(ctx context.Context) error {
	a.mount(ctx, a.refresh)
	return nil
}

func (a *AdminSurface) Unmount() { a.poller.Stop() }

func (a *AdminSurface) refresh(ctx context.Context) {
	now := a.opts.Clock.Now()
	stats := recovery.Fetch(ctx, "admin stats", a.opts.FetchRetry,
		func(ctx context.Context) (domain.AdminStats, error) {
			s, err := a.source.AdminStats(ctx)
			if err != nil {
				return domain.AdminStats{}, err
			}
			return *s, nil
		},
		func() domain.AdminStats { return a.opts.Synthetic.AdminStats(now) })
	sessions := recovery.Fetch(ctx, "admin sessions", a.opts.FetchRetry,
		func(ctx context.Context) ([]domain.Session, error) {
			return a.source.ListSessions(ctx, service.ListQuery{Limit: adminListLimit})
		},
		func() []domain.Session { return a.opts.Synthetic.Sessions(now) })

	a.mu.Lock()
	a.stats = &stats
	a.sessions = &sessions
	a.mu.Unlock()
	a.signal()
}

func (a *AdminSurface) project(ctx context.Context) (AdminView, error) {
	a.mu.Lock()
	if a.stats == nil {
		filter := a.filter
		a.mu.Unlock()
		a.firstLoad(context.WithoutCancel(ctx), a.refresh)
		return AdminView{Filter: filter, Rows: []AdminRow{}, Loading: true}, nil
	}
	stats, sessions, filter := *a.stats, *a.sessions, a.filter
	a.mu.Unlock()

	v := ProjectAdmin(stats.Value, sessions.Value, filter, a.opts.Clock.Now())
	v.Origin = recovery.OriginLive
	if stats.Synthetic() || sessions.Synthetic() {
		v.Origin = recovery.OriginSynthetic
	}
	return v, nil
}

func (a *AdminSurface) Render(ctx context.Context) Frame {
	v, fb := a.region.Render(ctx)
	return frameOf(NameAdmin, v, fb)
}

func (a *AdminSurface) Retry(ctx context.Context) Frame {
	v, fb := a.region.Retry(ctx)
	return frameOf(NameAdmin, v, fb)
}

// Filter returns the current table filter.
func (a *AdminSurface) Filter() AdminFilter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filter
}

// SetFilter replaces the table filter. Filtering never refetches.
func (a *AdminSurface) SetFilter(f AdminFilter) error {
	if err := f.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.filter = f
	a.mu.Unlock()
	a.signal()
	return nil
}

// Refresh asks the poller for an early reload. It returns false when rate limited.
func (a *AdminSurface) Refresh() bool { return a.poller.Trigger() }

// EndSession completes or cancels a session on the owner's behalf and reloads
// the table.
func (a *AdminSurface) EndSession(ctx context.Context, id string, outcome domain.Action) (*domain.Session, error) {
	if outcome != domain.ActionComplete && outcome != domain.ActionCancel {
		return nil, ErrUnknownOutcome
	}
	ended, err := a.source.EndSession(ctx, id, outcome)
	if err != nil {
		log.Printf("WARN: Admin %s of session %s failed: %v", outcome, id, err)
		return nil, err
	}
	log.Printf("INFO: Admin ended session %s (%s)", id, ended.Status)
	a.refresh(ctx)
	return ended, nil
}
