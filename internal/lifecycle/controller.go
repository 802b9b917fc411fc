package lifecycle

import (
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/datasource"
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/outbox"
	"alcyxob/session-tracker/internal/recovery"
	"alcyxob/session-tracker/internal/service"
	"alcyxob/session-tracker/internal/timer"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnsynced is returned with the locally kept session when a complete or
// cancel could not be delivered.
var ErrUnsynced = errors.New("saved on this device, it will sync when the server is reachable")

const (
	DefaultHistoryLimit  = 10
	DefaultAutosaveEvery = 30 * time.Second
	DefaultTimeout       = 10 * time.Second

	tempIDPrefix = "tmp-"
)

// failurePolicy is what a failed remote write does to the optimistic state.
type failurePolicy int

const (
	rollback failurePolicy = iota
	retainUnsynced
)

var policies = map[domain.Action]failurePolicy{
	domain.ActionStart:    rollback,
	domain.ActionPause:    rollback,
	domain.ActionResume:   rollback,
	domain.ActionComplete: retainUnsynced,
	domain.ActionCancel:   retainUnsynced,
}

// Options configure a Controller. Source is required.
type Options struct {
	OwnerID   string
	OwnerRole domain.Role
	TrainerID string
	Source    datasource.Source
	// Outbox keeps unsynced terminal sessions. Defaults to an in-memory store.
	Outbox outbox.Store
	Clock  clock.Clock
	// Timer is created from Clock when nil.
	Timer         *timer.Timer
	HistoryLimit  int
	AutosaveEvery time.Duration
	// Timeout bounds every data source call.
	Timeout time.Duration
	// Retry paces redelivery of unsynced sessions.
	Retry recovery.RetryConfig
}

// StartInput carries the optional fields of a new session.
type StartInput struct {
	Title      string
	Difficulty int
	Exercises  []domain.ExerciseEntry
}

// pending is the reconciliation token of one in-flight mutation.
type pending struct {
	token  string
	action domain.Action
	prior  *domain.Session
	carry  time.Duration
}

// Controller serializes lifecycle mutations for one owner. Construct one per
// process and hand it to every surface.
type Controller struct {
	opts      Options
	store     *Store
	timer     *timer.Timer
	clock     clock.Clock
	ownsTimer bool

	mu      sync.Mutex // one mutation in flight at a time
	drainMu sync.Mutex
}

func NewController(opts Options) *Controller {
	if opts.Source == nil {
		panic("lifecycle: Options.Source is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Outbox == nil {
		opts.Outbox = outbox.NewMemory()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.AutosaveEvery <= 0 {
		opts.AutosaveEvery = DefaultAutosaveEvery
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retry.InitialBackoff <= 0 {
		opts.Retry = recovery.RetryConfig{
			InitialBackoff:    5 * time.Second,
			MaxBackoff:        5 * time.Minute,
			BackoffMultiplier: 2,
			Jitter:            0.1,
		}
	}
	c := &Controller{
		opts:  opts,
		store: NewStore(),
		timer: opts.Timer,
		clock: opts.Clock,
	}
	if c.timer == nil {
		c.timer = timer.New(opts.Clock)
		c.ownsTimer = true
	}
	return c
}

func (c *Controller) Store() *Store { return c.store }

func (c *Controller) Timer() *timer.Timer { return c.timer }

func (c *Controller) Snapshot() State { return c.store.Snapshot() }

func (c *Controller) OwnerID() string { return c.opts.OwnerID }

func (c *Controller) OwnerRole() domain.Role { return c.opts.OwnerRole }

// Close releases the timer if the controller created it.
func (c *Controller) Close() {
	if c.ownsTimer {
		c.timer.Close()
	}
}

// writeCtx detaches from the caller so a write completes and reconciles even
// when the surface that issued it goes away.
func (c *Controller) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.opts.Timeout)
}

func (c *Controller) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opts.Timeout)
}

// Start begins a new session. It fails with domain.ErrConflict while another
// session is open.
func (c *Controller) Start(ctx context.Context, in StartInput) (*domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var from domain.SessionStatus
	if cur := c.store.Snapshot().Current; cur != nil {
		from = cur.Status
	}
	if _, err := domain.Next(from, domain.ActionStart); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			c.store.update(func(st *State) bool {
				st.LastError = domain.ErrConflict.Error()
				return true
			})
			return nil, err
		}
		return nil, c.precondition(domain.ActionStart, err)
	}

	now := c.clock.Now().UTC()
	since := now
	optimistic := &domain.Session{
		ID:          tempIDPrefix + uuid.NewString(),
		Title:       in.Title,
		Status:      domain.SessionActive,
		StartTime:   now,
		ActiveSince: &since,
		Exercises:   domain.CloneExercises(in.Exercises),
		Difficulty:  in.Difficulty,
		OwnerID:     c.opts.OwnerID,
		OwnerRole:   c.opts.OwnerRole,
		TrainerID:   c.opts.TrainerID,
	}
	optimistic.Normalize(now)
	p := c.begin(domain.ActionStart, nil, optimistic, 0)

	callCtx, cancel := c.writeCtx(ctx)
	defer cancel()
	created, err := c.opts.Source.CreateSession(callCtx, service.CreateSessionInput{
		Title:      optimistic.Title,
		Difficulty: optimistic.Difficulty,
		Exercises:  optimistic.Exercises,
		StartTime:  &now,
	})
	if err != nil {
		c.settleFailure(ctx, p, optimistic, err)
		c.keepDraft(ctx)
		return nil, err
	}
	log.Printf("INFO: Session %s started", created.ID)
	result := c.settleSuccess(p, optimistic, created)
	c.reloadAnalytics(ctx)
	c.keepDraft(ctx)
	return result, nil
}

// Pause freezes the running session at the timer's current value.
func (c *Controller) Pause(ctx context.Context) (*domain.Session, error) {
	return c.transition(ctx, domain.ActionPause, nil)
}

// Resume continues a paused session from its frozen duration.
func (c *Controller) Resume(ctx context.Context) (*domain.Session, error) {
	return c.transition(ctx, domain.ActionResume, nil)
}

// Complete finishes the session with its final duration. On delivery failure
// the completed session is kept locally and ErrUnsynced is returned with it.
func (c *Controller) Complete(ctx context.Context, notes string) (*domain.Session, error) {
	return c.transition(ctx, domain.ActionComplete, &notes)
}

// Cancel abandons the session, with the same delivery policy as Complete.
func (c *Controller) Cancel(ctx context.Context) (*domain.Session, error) {
	return c.transition(ctx, domain.ActionCancel, nil)
}

func (c *Controller) transition(ctx context.Context, action domain.Action, notes *string) (*domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.store.Snapshot()
	cur := snap.Current
	var from domain.SessionStatus
	if cur != nil {
		from = cur.Status
	}
	to, err := domain.Next(from, action)
	if err != nil {
		return nil, c.precondition(action, err)
	}

	now := c.clock.Now().UTC()
	elapsed, rest := cur.SplitElapsed(now)
	var carry time.Duration
	next := cur.Clone()
	next.Status = to
	switch {
	case to == domain.SessionActive:
		// The fraction left over from the pause keeps counting.
		since := now.Add(-snap.carry)
		next.ActiveSince = &since
	case to == domain.SessionPaused:
		next.DurationSeconds = elapsed
		next.ActiveSince = nil
		carry = rest
	case to.IsTerminal():
		end := now
		next.DurationSeconds = elapsed
		next.ActiveSince = nil
		next.EndTime = &end
		if notes != nil && *notes != "" {
			next.Notes = *notes
		}
	}
	p := c.begin(action, cur, next, carry)

	callCtx, cancel := c.writeCtx(ctx)
	defer cancel()
	remote, err := c.opts.Source.UpdateSession(callCtx, next.ID, domain.PatchFrom(next))
	if err != nil {
		c.settleFailure(ctx, p, next, err)
		c.keepDraft(ctx)
		if policies[action] == retainUnsynced {
			return next.Clone(), fmt.Errorf("%w: %w", ErrUnsynced, err)
		}
		return nil, err
	}
	log.Printf("INFO: Session %s %s", next.ID, to)
	result := c.settleSuccess(p, next, remote)
	c.reloadAnalytics(ctx)
	c.keepDraft(ctx)
	return result, nil
}

// begin publishes the optimistic state and returns its reconciliation token.
func (c *Controller) begin(action domain.Action, prior, next *domain.Session, carry time.Duration) pending {
	p := pending{token: uuid.NewString(), action: action, prior: prior.Clone()}
	c.store.update(func(st *State) bool {
		st.Pending[action] = p.token
		st.LastError = ""
		p.carry = st.carry
		st.carry = carry
		if next.Status.IsTerminal() {
			st.Current = nil
			st.History = upsertHistory(st.History, next, c.opts.HistoryLimit)
		} else {
			st.Current = next.Clone()
		}
		return true
	})
	c.syncTimer(next)
	return p
}

func (c *Controller) settleSuccess(p pending, sent, remote *domain.Session) *domain.Session {
	var result *domain.Session
	c.store.update(func(st *State) bool {
		if st.Pending[p.action] != p.token {
			return false
		}
		delete(st.Pending, p.action)
		local := sent
		if st.Current != nil && st.Current.ID == sent.ID {
			local = st.Current
		}
		merged := merge(local, remote)
		if merged.Status.IsTerminal() {
			if st.Current != nil && st.Current.ID == sent.ID {
				st.Current = nil
			}
		} else {
			st.Current = merged.Clone()
		}
		st.History = upsertHistory(st.History, merged, c.opts.HistoryLimit)
		st.Unsynced = removeUnsynced(st.Unsynced, merged.ID)
		c.deriveAnalytics(st)
		result = merged
		return true
	})
	if result == nil {
		return remote
	}
	if !result.Status.IsTerminal() {
		c.syncTimer(result)
	}
	return result.Clone()
}

func (c *Controller) settleFailure(ctx context.Context, p pending, sent *domain.Session, cause error) {
	switch policies[p.action] {
	case rollback:
		var restored *domain.Session
		c.store.update(func(st *State) bool {
			if st.Pending[p.action] != p.token {
				return false
			}
			delete(st.Pending, p.action)
			st.LastError = userMessage(cause)
			st.carry = p.carry
			switch {
			case p.prior == nil:
				st.Current = nil
			case st.Current != nil && st.Current.ID == p.prior.ID:
				// Only the fields this mutation touched are reverted.
				prior := p.prior.Clone()
				st.Current.Status = prior.Status
				st.Current.DurationSeconds = prior.DurationSeconds
				st.Current.ActiveSince = prior.ActiveSince
				st.Current.EndTime = prior.EndTime
			}
			restored = st.Current.Clone()
			return true
		})
		c.syncTimer(restored)
		log.Printf("WARN: %s of session %s failed and was rolled back: %v", p.action, sent.ID, cause)

	case retainUnsynced:
		c.store.update(func(st *State) bool {
			if st.Pending[p.action] != p.token {
				return false
			}
			delete(st.Pending, p.action)
			st.Unsynced = addUnsynced(st.Unsynced, sent.ID)
			st.LastError = ErrUnsynced.Error()
			c.deriveAnalytics(st)
			return true
		})
		c.enqueue(ctx, sent, cause)
		log.Printf("WARN: %s of session %s not acknowledged, kept locally: %v", p.action, sent.ID, cause)
	}
}

func (c *Controller) enqueue(ctx context.Context, s *domain.Session, cause error) {
	now := c.clock.Now().UTC()
	entry := outbox.Entry{
		Session:     *s.Clone(),
		Attempts:    1,
		LastError:   cause.Error(),
		QueuedAt:    now,
		NextAttempt: now.Add(recovery.Backoff(c.opts.Retry, 1)),
	}
	if err := c.opts.Outbox.Put(context.WithoutCancel(ctx), entry); err != nil {
		log.Printf("ERROR: Could not persist unsynced session %s: %v", s.ID, err)
	}
}

func (c *Controller) precondition(action domain.Action, err error) error {
	log.Printf("WARN: %s ignored: %v", action, err)
	return err
}

func (c *Controller) syncTimer(s *domain.Session) {
	if s == nil {
		c.timer.Sync("", 0, nil)
		return
	}
	c.timer.Sync(s.Status, s.DurationSeconds, s.ActiveSince)
}

// keepDraft mirrors the open session to the outbox so Restore can recover
// it without the data source.
func (c *Controller) keepDraft(ctx context.Context) {
	snap := c.store.Snapshot()
	ctx = context.WithoutCancel(ctx)
	var err error
	if cur := snap.Current; cur == nil || !cur.Status.IsOpen() {
		err = c.opts.Outbox.ClearDraft(ctx, c.opts.OwnerID)
	} else if !IsTemporaryID(cur.ID) {
		if cur.OwnerID == "" {
			cur.OwnerID = c.opts.OwnerID
		}
		err = c.opts.Outbox.SaveDraft(ctx, outbox.Draft{Session: *cur, Carry: snap.carry, SavedAt: c.clock.Now().UTC()})
	}
	if err != nil {
		log.Printf("ERROR: Could not keep a local copy of the open session: %v", err)
	}
}

// deriveAnalytics estimates analytics locally. Changes are folded onto the
// last fetched figures, since history only holds the most recent sessions.
func (c *Controller) deriveAnalytics(st *State) {
	now := c.clock.Now()
	var a domain.Analytics
	if st.base != nil {
		a = domain.FoldAnalytics(st.base.analytics, st.base.known, st.History, now)
	} else {
		a = domain.ComputeAnalytics(c.opts.OwnerID, st.History, now)
	}
	st.Analytics = &a
	st.AnalyticsOrigin = recovery.OriginLocal
}

// adoptAnalytics makes live the new base. They are shown as they are unless
// local changes are still waiting to sync.
func (c *Controller) adoptAnalytics(st *State, live *domain.Analytics) {
	known := make(map[string]domain.SessionStatus, len(st.History))
	for i := range st.History {
		known[st.History[i].ID] = st.History[i].Status
	}
	for _, id := range st.Unsynced {
		// still open on the server
		known[id] = domain.SessionActive
	}
	a := *live
	a.FavoriteExercises = append([]string{}, live.FavoriteExercises...)
	a.WeeklyProgress = append([]domain.WeeklyProgress(nil), live.WeeklyProgress...)
	st.base = &analyticsBase{analytics: a, known: known}
	if len(st.Unsynced) > 0 {
		c.deriveAnalytics(st)
		return
	}
	st.Analytics = &a
	st.AnalyticsOrigin = recovery.OriginLive
}

// reloadAnalytics refetches analytics after an acknowledged write. On failure
// the local estimate stays.
func (c *Controller) reloadAnalytics(ctx context.Context) {
	readCtx, cancel := c.readCtx(context.WithoutCancel(ctx))
	live, err := c.opts.Source.Analytics(readCtx, c.opts.OwnerID)
	cancel()
	if err != nil {
		log.Printf("WARN: Analytics reload failed, keeping local figures: %v", err)
		return
	}
	c.store.update(func(st *State) bool {
		c.adoptAnalytics(st, live)
		return true
	})
}

// merge adopts the server record but keeps the local exercise log and, when
// both agree on the status, the local timing.
func merge(local, remote *domain.Session) *domain.Session {
	l := local.Clone()
	out := remote.Clone()
	out.Exercises = l.Exercises
	if l.Notes != "" {
		out.Notes = l.Notes
	}
	if l.Status == out.Status {
		out.DurationSeconds = l.DurationSeconds
		out.ActiveSince = l.ActiveSince
		out.EndTime = l.EndTime
	}
	return out
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrConflict):
		return domain.ErrConflict.Error()
	case recovery.IsTransient(err):
		return "Couldn't reach the server. Check your connection and try again."
	case errors.Is(err, domain.ErrPrecondition):
		return "The session changed elsewhere. Refresh and try again."
	}
	return "The change could not be saved: " + err.Error()
}

// IsTemporaryID reports whether id was assigned locally and never reconciled.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}
