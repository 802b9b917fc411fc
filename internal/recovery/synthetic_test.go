package recovery

import (
	"alcyxob/session-tracker/internal/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var syntheticNow = time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)

func TestGeneratorIsDeterministic(t *testing.T) {
	a := NewGenerator(7).Dataset(syntheticNow)
	b := NewGenerator(7).Dataset(syntheticNow)
	require.Equal(t, a, b)
}

func TestGeneratorDatasetIsConsistent(t *testing.T) {
	ds := NewGenerator(1).Dataset(syntheticNow)
	require.Len(t, ds.Users, 6)
	require.NotEmpty(t, ds.Sessions)

	users := map[string]domain.User{}
	for _, u := range ds.Users {
		users[u.ID.Hex()] = u
	}
	open := map[string]int{}
	for _, s := range ds.Sessions {
		require.NoError(t, s.Validate(), s.ID)
		require.False(t, s.StartTime.After(syntheticNow), s.ID)
		owner, ok := users[s.OwnerID]
		require.True(t, ok, s.ID)
		require.Equal(t, owner.Role, s.OwnerRole)
		if s.Status.IsOpen() {
			open[s.OwnerID]++
		}
	}
	for owner, n := range open {
		require.Equal(t, 1, n, owner)
	}
	for _, u := range ds.Users {
		if u.IsClient() {
			trainer := users[u.TrainerID.Hex()]
			require.Contains(t, trainer.ClientIDs, u.ID)
		}
	}
}

func TestGeneratorStats(t *testing.T) {
	g := NewGenerator(3)

	admin := g.AdminStats(syntheticNow)
	require.Positive(t, admin.TotalSessions)
	require.LessOrEqual(t, admin.ActiveSessions, admin.TotalSessions)
	require.Equal(t, 2, admin.ActiveSessions)
	require.Equal(t, 2, admin.PausedSessions)
	require.Equal(t, 6, admin.TotalUsers)

	roster := g.TrainerStats("trainer-1", syntheticNow)
	require.Equal(t, "trainer-1", roster.TrainerID)
	require.Equal(t, 2, roster.TotalClients)
	require.LessOrEqual(t, roster.ActiveClients, roster.TotalClients)
	require.Len(t, roster.Clients, 2)

	analytics := g.Analytics("me", syntheticNow)
	require.Equal(t, "me", analytics.OwnerID)
	require.Positive(t, analytics.TotalSessions)
	require.LessOrEqual(t, analytics.CompletedSessions, analytics.TotalSessions)

	sessions := g.Sessions(syntheticNow)
	for i := 1; i < len(sessions); i++ {
		require.False(t, sessions[i].StartTime.After(sessions[i-1].StartTime))
	}
}
