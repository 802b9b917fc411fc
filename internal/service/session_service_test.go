package service

import (
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/repository/memory"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type sessionFixture struct {
	svc      SessionService
	sessions *memory.SessionRepository
	users    *memory.UserRepository
	cache    *countingCache
	clock    *clock.Manual
}

func newSessionFixture() *sessionFixture {
	f := &sessionFixture{
		sessions: memory.NewSessionRepository(),
		users:    memory.NewUserRepository(),
		cache:    newCountingCache(),
		clock:    clock.NewManual(t0),
	}
	f.svc = NewSessionService(f.sessions, f.users, f.cache, f.clock)
	return f
}

func actorOf(u *domain.User) Actor {
	return Actor{UserID: u.ID.Hex(), Role: u.Role}
}

func statusPatch(s domain.SessionStatus) domain.SessionPatch {
	return domain.SessionPatch{Status: &s}
}

func TestSessionLifecycleTiming(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	me := actorOf(addUser(f.users, "lisa", domain.RoleClient))

	s, err := f.svc.Create(ctx, me, CreateSessionInput{})
	require.NoError(t, err)
	require.Equal(t, domain.SessionActive, s.Status)
	require.Equal(t, "Workout Session 2026-10-18", s.Title)
	require.Equal(t, domain.DefaultDifficulty, s.Difficulty)

	f.clock.Advance(90 * time.Second)
	s, err = f.svc.Update(ctx, me, s.ID, statusPatch(domain.SessionPaused))
	require.NoError(t, err)
	require.Equal(t, int64(90), s.DurationSeconds)
	require.Nil(t, s.ActiveSince)

	f.clock.Advance(time.Minute)
	s, err = f.svc.Update(ctx, me, s.ID, statusPatch(domain.SessionActive))
	require.NoError(t, err)
	require.NotNil(t, s.ActiveSince)
	require.Equal(t, t0.Add(150*time.Second), *s.ActiveSince)

	f.clock.Advance(30 * time.Second)
	s, err = f.svc.Update(ctx, me, s.ID, statusPatch(domain.SessionCompleted))
	require.NoError(t, err)
	require.Equal(t, int64(120), s.DurationSeconds)
	require.NotNil(t, s.EndTime)
	require.Nil(t, s.ActiveSince)

	// A new session may start once the previous one is terminal.
	_, err = f.svc.Create(ctx, me, CreateSessionInput{Title: "Evening"})
	require.NoError(t, err)
}

func TestCreateConflictsWithOpenSession(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	me := actorOf(addUser(f.users, "lisa", domain.RoleClient))

	first, err := f.svc.Create(ctx, me, CreateSessionInput{})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, me, first.ID, statusPatch(domain.SessionPaused))
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, me, CreateSessionInput{})
	require.ErrorIs(t, err, domain.ErrConflict)

	current, err := f.svc.GetCurrent(ctx, me)
	require.NoError(t, err)
	require.Equal(t, first.ID, current.ID)
}

func TestCreateKeepsPastStartTime(t *testing.T) {
	f := newSessionFixture()
	me := actorOf(addUser(f.users, "lisa", domain.RoleClient))

	offline := t0.Add(-5 * time.Minute)
	s, err := f.svc.Create(context.Background(), me, CreateSessionInput{StartTime: &offline})
	require.NoError(t, err)
	require.Equal(t, offline, s.StartTime)
	require.Equal(t, int64(300), s.ElapsedAt(t0))

	future := t0.Add(time.Hour)
	f2 := newSessionFixture()
	s, err = f2.svc.Create(context.Background(), me, CreateSessionInput{StartTime: &future})
	require.NoError(t, err)
	require.Equal(t, t0, s.StartTime)
}

func TestUpdateRejectsInvalidTransitions(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	me := actorOf(addUser(f.users, "lisa", domain.RoleClient))

	s, err := f.svc.Create(ctx, me, CreateSessionInput{})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, me, s.ID, statusPatch(domain.SessionActive))
	require.NoError(t, err, "patching an active session with active is a plain save")

	_, err = f.svc.Update(ctx, me, s.ID, statusPatch(domain.SessionCancelled))
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, me, s.ID, statusPatch(domain.SessionActive))
	require.ErrorIs(t, err, domain.ErrPrecondition)
	_, err = f.svc.Update(ctx, me, s.ID, statusPatch(domain.SessionCompleted))
	require.ErrorIs(t, err, domain.ErrPrecondition)

	exercises := []domain.ExerciseEntry{{ID: "e1", Name: "Squat"}}
	_, err = f.svc.Update(ctx, me, s.ID, domain.SessionPatch{Exercises: &exercises})
	require.ErrorIs(t, err, domain.ErrPrecondition)

	notes := "felt heavy"
	updated, err := f.svc.Update(ctx, me, s.ID, domain.SessionPatch{Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, "felt heavy", updated.Notes)
}

func TestReplayedTerminalWriteIsIdempotent(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	me := actorOf(addUser(f.users, "lisa", domain.RoleClient))

	s, err := f.svc.Create(ctx, me, CreateSessionInput{})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	done, err := f.svc.Update(ctx, me, s.ID, statusPatch(domain.SessionCompleted))
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	again, err := f.svc.Update(ctx, me, s.ID, statusPatch(domain.SessionCompleted))
	require.NoError(t, err)
	require.Equal(t, done.DurationSeconds, again.DurationSeconds)
	require.Equal(t, *done.EndTime, *again.EndTime)
}

func TestUpdateByAnotherUserIsDenied(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	me := actorOf(addUser(f.users, "lisa", domain.RoleClient))
	other := actorOf(addUser(f.users, "tom", domain.RoleClient))

	s, err := f.svc.Create(ctx, me, CreateSessionInput{})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, other, s.ID, statusPatch(domain.SessionPaused))
	require.ErrorIs(t, err, ErrSessionAccessDenied)
	_, err = f.svc.Get(ctx, other, s.ID)
	require.ErrorIs(t, err, ErrSessionAccessDenied)
	_, err = f.svc.Get(ctx, me, "missing")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCreateAttributesTrainer(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	trainer := addUser(f.users, "sarah", domain.RoleTrainer)
	client := addUser(f.users, "lisa", domain.RoleClient)
	require.NoError(t, f.users.SetTrainerForClient(ctx, client.ID, trainer.ID))

	s, err := f.svc.Create(ctx, actorOf(client), CreateSessionInput{})
	require.NoError(t, err)
	require.Equal(t, trainer.ID.Hex(), s.TrainerID)
	require.Equal(t, domain.RoleClient, s.OwnerRole)

	own, err := f.svc.Create(ctx, actorOf(trainer), CreateSessionInput{})
	require.NoError(t, err)
	require.Equal(t, trainer.ID.Hex(), own.TrainerID)
}

func TestListIsRoleScoped(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	trainer := addUser(f.users, "sarah", domain.RoleTrainer)
	client := addUser(f.users, "lisa", domain.RoleClient)
	stranger := addUser(f.users, "tom", domain.RoleClient)
	admin := addUser(f.users, "root", domain.RoleAdmin)
	require.NoError(t, f.users.AddClientIDToTrainer(ctx, trainer.ID, client.ID))

	for _, u := range []*domain.User{trainer, client, stranger} {
		_, err := f.svc.Create(ctx, actorOf(u), CreateSessionInput{})
		require.NoError(t, err)
	}

	mine, err := f.svc.List(ctx, actorOf(client), ListQuery{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, client.ID.Hex(), mine[0].OwnerID)

	_, err = f.svc.List(ctx, actorOf(client), ListQuery{OwnerID: stranger.ID.Hex()})
	require.ErrorIs(t, err, ErrSessionAccessDenied)

	roster, err := f.svc.List(ctx, actorOf(trainer), ListQuery{})
	require.NoError(t, err)
	require.Len(t, roster, 2)

	_, err = f.svc.List(ctx, actorOf(trainer), ListQuery{OwnerID: stranger.ID.Hex()})
	require.ErrorIs(t, err, ErrSessionAccessDenied)

	all, err := f.svc.List(ctx, actorOf(admin), ListQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	trainers, err := f.svc.List(ctx, actorOf(admin), ListQuery{Role: domain.RoleTrainer, Status: domain.SessionActive, Range: domain.RangeToday})
	require.NoError(t, err)
	require.Len(t, trainers, 1)

	_, err = f.svc.List(ctx, actorOf(admin), ListQuery{Range: "year"})
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestAnalyticsUsesCacheAndInvalidation(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	client := addUser(f.users, "lisa", domain.RoleClient)
	me := actorOf(client)

	s, err := f.svc.Create(ctx, me, CreateSessionInput{})
	require.NoError(t, err)
	f.clock.Advance(20 * time.Minute)
	_, err = f.svc.Update(ctx, me, s.ID, statusPatch(domain.SessionCompleted))
	require.NoError(t, err)

	a, err := f.svc.Analytics(ctx, me, "")
	require.NoError(t, err)
	require.Equal(t, 1, a.CompletedSessions)
	require.Equal(t, int64(1200), a.TotalDurationSeconds)
	require.Equal(t, 0, f.cache.hits)

	_, err = f.svc.Analytics(ctx, me, me.UserID)
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.hits)

	_, err = f.svc.Create(ctx, me, CreateSessionInput{})
	require.NoError(t, err)
	a, err = f.svc.Analytics(ctx, me, "")
	require.NoError(t, err)
	require.Equal(t, 2, a.TotalSessions)
	require.Equal(t, 1, f.cache.hits)
	require.Contains(t, f.cache.invalidated, me.UserID)
}

func TestEndSession(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	client := actorOf(addUser(f.users, "lisa", domain.RoleClient))
	admin := actorOf(addUser(f.users, "root", domain.RoleAdmin))

	s, err := f.svc.Create(ctx, client, CreateSessionInput{})
	require.NoError(t, err)

	_, err = f.svc.EndSession(ctx, admin, s.ID, domain.ActionPause)
	require.ErrorIs(t, err, ErrInvalidOutcome)

	f.clock.Advance(10 * time.Minute)
	ended, err := f.svc.EndSession(ctx, admin, s.ID, domain.ActionCancel)
	require.NoError(t, err)
	require.Equal(t, domain.SessionCancelled, ended.Status)
	require.Equal(t, int64(600), ended.DurationSeconds)

	_, err = f.svc.EndSession(ctx, admin, s.ID, domain.ActionComplete)
	require.ErrorIs(t, err, domain.ErrPrecondition)

	_, err = f.svc.EndSession(ctx, admin, "missing", domain.ActionComplete)
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestAdminStats(t *testing.T) {
	f := newSessionFixture()
	ctx := context.Background()
	a := actorOf(addUser(f.users, "a", domain.RoleClient))
	b := actorOf(addUser(f.users, "b", domain.RoleClient))
	addUser(f.users, "root", domain.RoleAdmin)

	_, err := f.svc.Create(ctx, a, CreateSessionInput{})
	require.NoError(t, err)
	s, err := f.svc.Create(ctx, b, CreateSessionInput{})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, b, s.ID, statusPatch(domain.SessionPaused))
	require.NoError(t, err)

	stats, err := f.svc.AdminStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ActiveSessions)
	require.Equal(t, 1, stats.PausedSessions)
	require.Equal(t, 2, stats.TotalSessions)
	require.Equal(t, 3, stats.TotalUsers)
}
