package datasource

import (
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/recovery"
	"alcyxob/session-tracker/internal/service"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOfflineSeededFromSynthetic(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(t0)
	ds := recovery.NewGenerator(5).Dataset(t0)
	offline := NewOffline(clk)
	require.NoError(t, offline.Seed(ctx, ds))

	admin := offline.As(service.Actor{UserID: "admin", Role: domain.RoleAdmin})
	stats, err := admin.AdminStats(ctx)
	require.NoError(t, err)
	require.Equal(t, len(ds.Sessions), stats.TotalSessions)
	require.Equal(t, 2, stats.ActiveSessions)

	trainer := ds.Users[0]
	roster, err := offline.As(service.Actor{UserID: trainer.ID.Hex(), Role: domain.RoleTrainer}).TrainerStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, roster.TotalClients)

	client := ds.Users[1]
	self := offline.As(service.Actor{UserID: client.ID.Hex(), Role: domain.RoleClient})
	current, err := self.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, domain.SessionActive, current.Status)

	_, err = self.CreateSession(ctx, service.CreateSessionInput{})
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = self.AdminStats(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = self.EndSession(ctx, current.ID, domain.ActionCancel)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLocalCurrentSessionNone(t *testing.T) {
	offline := NewOffline(clock.NewManual(t0))
	src := offline.As(service.Actor{UserID: "u1", Role: domain.RoleClient})
	current, err := src.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, current)
}

func TestLocalUpdateTransitions(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(t0)
	src := NewOffline(clk).As(service.Actor{UserID: "u1", Role: domain.RoleClient})

	s, err := src.CreateSession(ctx, service.CreateSessionInput{Title: "Mobility"})
	require.NoError(t, err)

	clk.Advance(90 * time.Second)
	completed := domain.SessionCompleted
	done, err := src.UpdateSession(ctx, s.ID, domain.SessionPatch{Status: &completed})
	require.NoError(t, err)
	require.Equal(t, int64(90), done.DurationSeconds)

	paused := domain.SessionPaused
	_, err = src.UpdateSession(ctx, s.ID, domain.SessionPatch{Status: &paused})
	require.ErrorIs(t, err, domain.ErrPrecondition)
}
