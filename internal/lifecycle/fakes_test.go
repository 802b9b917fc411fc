package lifecycle

import (
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/datasource"
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/outbox"
	"alcyxob/session-tracker/internal/recovery"
	"alcyxob/session-tracker/internal/service"
	"context"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

const owner = "owner-1"

// scriptedSource wraps a working source and injects failures or pauses.
type scriptedSource struct {
	datasource.Source

	mu   sync.Mutex
	fail map[string]error
	gate map[string]chan struct{}
}

func newScriptedSource(inner datasource.Source) *scriptedSource {
	return &scriptedSource{Source: inner, fail: map[string]error{}, gate: map[string]chan struct{}{}}
}

// failNext makes the next call of method return err.
func (s *scriptedSource) failNext(method string, err error) {
	s.mu.Lock()
	s.fail[method] = err
	s.mu.Unlock()
}

// hold blocks the next call of method until the returned func is called.
func (s *scriptedSource) hold(method string) func() {
	ch := make(chan struct{})
	s.mu.Lock()
	s.gate[method] = ch
	s.mu.Unlock()
	return func() { close(ch) }
}

func (s *scriptedSource) before(method string) error {
	s.mu.Lock()
	gate := s.gate[method]
	delete(s.gate, method)
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.fail[method]
	delete(s.fail, method)
	return err
}

func (s *scriptedSource) CreateSession(ctx context.Context, in service.CreateSessionInput) (*domain.Session, error) {
	if err := s.before("create"); err != nil {
		return nil, err
	}
	return s.Source.CreateSession(ctx, in)
}

func (s *scriptedSource) UpdateSession(ctx context.Context, id string, patch domain.SessionPatch) (*domain.Session, error) {
	if err := s.before("update"); err != nil {
		return nil, err
	}
	return s.Source.UpdateSession(ctx, id, patch)
}

func (s *scriptedSource) CurrentSession(ctx context.Context) (*domain.Session, error) {
	if err := s.before("current"); err != nil {
		return nil, err
	}
	return s.Source.CurrentSession(ctx)
}

func (s *scriptedSource) Analytics(ctx context.Context, ownerID string) (*domain.Analytics, error) {
	if err := s.before("analytics"); err != nil {
		return nil, err
	}
	return s.Source.Analytics(ctx, ownerID)
}

type harness struct {
	clock   *clock.Manual
	offline *datasource.Offline
	source  *scriptedSource
	outbox  *outbox.Memory
	ctrl    *Controller
}

func newHarness(t testing.TB) *harness {
	clk := clock.NewManual(t0)
	offline := datasource.NewOffline(clk)
	src := newScriptedSource(offline.As(service.Actor{UserID: owner, Role: domain.RoleClient}))
	box := outbox.NewMemory()
	ctrl := NewController(Options{
		OwnerID:   owner,
		OwnerRole: domain.RoleClient,
		Source:    src,
		Outbox:    box,
		Clock:     clk,
		Retry:     recovery.RetryConfig{InitialBackoff: 5 * time.Second, MaxBackoff: time.Minute, BackoffMultiplier: 2},
	})
	t.Cleanup(ctrl.Close)
	return &harness{clock: clk, offline: offline, source: src, outbox: box, ctrl: ctrl}
}

func (h *harness) serverRecord(t testing.TB, id string) *domain.Session {
	s, err := h.offline.Sessions.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("server record %s: %v", id, err)
	}
	return s
}
