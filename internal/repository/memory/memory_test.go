package memory

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/repository"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionRepositoryOneOpenPerOwner(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	now := time.Now().UTC()

	first := &domain.Session{OwnerID: "u1", Status: domain.SessionActive, StartTime: now, ActiveSince: &now}
	_, err := repo.Create(ctx, first)
	require.NoError(t, err)

	_, err = repo.Create(ctx, &domain.Session{OwnerID: "u1", Status: domain.SessionPaused, StartTime: now})
	require.ErrorIs(t, err, repository.ErrDuplicate)

	end := now
	_, err = repo.Create(ctx, &domain.Session{OwnerID: "u1", Status: domain.SessionCompleted, StartTime: now.Add(-time.Hour), EndTime: &end})
	require.NoError(t, err, "terminal sessions never conflict")

	open, err := repo.GetOpenByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, first.ID, open.ID)
}

func TestSessionRepositoryReplaceIsGuarded(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	now := time.Now().UTC()
	s := &domain.Session{OwnerID: "u1", Status: domain.SessionActive, StartTime: now, ActiveSince: &now}
	_, err := repo.Create(ctx, s)
	require.NoError(t, err)

	paused := s.Clone()
	paused.Status = domain.SessionPaused
	require.NoError(t, repo.Replace(ctx, paused, domain.SessionActive))

	stale := s.Clone()
	stale.Status = domain.SessionCancelled
	require.ErrorIs(t, repo.Replace(ctx, stale, domain.SessionActive), repository.ErrUpdateFailed)

	stale.ID = "missing"
	require.ErrorIs(t, repo.Replace(ctx, stale, domain.SessionActive), repository.ErrNotFound)
}

func TestSessionRepositoryListFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository()
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	for i, owner := range []string{"a", "b", "c"} {
		start := base.Add(-time.Duration(i) * 24 * time.Hour)
		_, err := repo.Create(ctx, &domain.Session{OwnerID: owner, OwnerRole: domain.RoleClient, Status: domain.SessionPaused, StartTime: start})
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, repository.SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "a", all[0].OwnerID, "newest first")

	recent, err := repo.List(ctx, repository.SessionFilter{Since: base.Add(-36 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, recent, 2)

	limited, err := repo.List(ctx, repository.SessionFilter{OwnerIDs: []string{"b", "c"}, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "b", limited[0].OwnerID)

	none, err := repo.List(ctx, repository.SessionFilter{OwnerRole: domain.RoleTrainer})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestUserRepositoryRoster(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()
	trainer := &domain.User{Name: "Sarah", Email: "sarah@example.com", Role: domain.RoleTrainer}
	client := &domain.User{Name: "Lisa", Email: "lisa@example.com", Role: domain.RoleClient}
	_, err := repo.Create(ctx, trainer)
	require.NoError(t, err)
	_, err = repo.Create(ctx, client)
	require.NoError(t, err)
	_, err = repo.Create(ctx, &domain.User{Name: "Dup", Email: "lisa@example.com", Role: domain.RoleClient})
	require.ErrorIs(t, err, repository.ErrDuplicate)

	require.NoError(t, repo.AddClientIDToTrainer(ctx, trainer.ID, client.ID))
	require.NoError(t, repo.AddClientIDToTrainer(ctx, trainer.ID, client.ID))
	require.NoError(t, repo.SetTrainerForClient(ctx, client.ID, trainer.ID))

	clients, err := repo.GetClientsByTrainerID(ctx, trainer.ID)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	require.Equal(t, trainer.ID, *clients[0].TrainerID)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
