package datasource

import (
	"alcyxob/session-tracker/internal/api"
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/recovery"
	"alcyxob/session-tracker/internal/service"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

type testServer struct {
	*httptest.Server
	offline *Offline
	auth    service.AuthService
	clock   *clock.Manual
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	clk := clock.NewManual(t0)
	offline := NewOffline(clk)
	auth := service.NewAuthService(offline.Users, "datasource-test-secret", time.Hour)

	router := gin.New()
	api.SetupRoutes(router, auth.GetJWTSecret(), api.RateLimit{RequestsPerSecond: 1000, Burst: 1000}, api.Services{
		Auth:     auth,
		Sessions: offline.Backend.Sessions,
		Trainer:  offline.Backend.Trainer,
		Incident: offline.Backend.Incidents,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, offline: offline, auth: auth, clock: clk}
}

func (s *testServer) login(t *testing.T, name string, role domain.Role) (*HTTP, *LoginResult) {
	t.Helper()
	ctx := context.Background()
	email := name + "@example.com"
	if role == domain.RoleAdmin {
		require.NoError(t, s.auth.SeedAdmin(ctx, name, email, "password123"))
	} else {
		_, err := s.auth.Register(ctx, name, email, "password123", role)
		require.NoError(t, err)
	}
	res, err := NewHTTP(s.URL).Login(ctx, email, "password123")
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	return NewHTTP(s.URL, WithBearerToken(res.Token)), res
}

func TestHTTPSessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	src, who := srv.login(t, "lisa", domain.RoleClient)
	require.Equal(t, domain.RoleClient, who.Role)

	current, err := src.CurrentSession(ctx)
	require.NoError(t, err)
	require.Nil(t, current)

	created, err := src.CreateSession(ctx, service.CreateSessionInput{Title: "Leg Day"})
	require.NoError(t, err)
	require.Equal(t, domain.SessionActive, created.Status)
	require.Equal(t, who.UserID, created.OwnerID)

	_, err = src.CreateSession(ctx, service.CreateSessionInput{})
	require.ErrorIs(t, err, domain.ErrConflict)
	require.False(t, recovery.IsTransient(err))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusConflict, statusErr.Code)
	require.Equal(t, domain.ErrConflict.Error(), statusErr.Message)

	srv.clock.Advance(5 * time.Minute)
	paused := domain.SessionPaused
	updated, err := src.UpdateSession(ctx, created.ID, domain.SessionPatch{Status: &paused})
	require.NoError(t, err)
	require.Equal(t, domain.SessionPaused, updated.Status)
	require.Equal(t, int64(300), updated.DurationSeconds)

	active := domain.SessionActive
	_, err = src.UpdateSession(ctx, created.ID, domain.SessionPatch{Status: &active})
	require.NoError(t, err)
	_, err = src.UpdateSession(ctx, created.ID, domain.SessionPatch{Status: &paused})
	require.NoError(t, err)

	current, err = src.CurrentSession(ctx)
	require.NoError(t, err)
	require.Equal(t, created.ID, current.ID)

	listed, err := src.ListSessions(ctx, service.ListQuery{Status: domain.SessionPaused, Limit: 10})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	analytics, err := src.Analytics(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, analytics.TotalSessions)

	_, err = src.TrainerStats(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestHTTPAdminAndTrainerViews(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	client, who := srv.login(t, "tom", domain.RoleClient)
	trainer, _ := srv.login(t, "sarah", domain.RoleTrainer)
	admin, _ := srv.login(t, "root", domain.RoleAdmin)

	_, err := client.CreateSession(ctx, service.CreateSessionInput{})
	require.NoError(t, err)

	stats, err := admin.AdminStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ActiveSessions)
	require.Equal(t, 3, stats.TotalUsers)

	sessions, err := admin.ListSessions(ctx, service.ListQuery{Status: domain.SessionActive, Role: domain.RoleClient, Range: domain.RangeToday})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, who.UserID, sessions[0].OwnerID)

	ended, err := admin.EndSession(ctx, sessions[0].ID, domain.ActionCancel)
	require.NoError(t, err)
	require.Equal(t, domain.SessionCancelled, ended.Status)

	roster, err := trainer.TrainerStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, roster.TotalClients)

	_, err = client.AdminStats(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, client.ReportIncident(ctx, &domain.Incident{ID: "inc-1", Surface: "self", Message: "boom", Class: domain.ClassOther}))
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code      int
		target    error
		transient bool
	}{
		{http.StatusServiceUnavailable, recovery.ErrTransient, true},
		{http.StatusTooManyRequests, recovery.ErrTransient, true},
		{http.StatusUnprocessableEntity, domain.ErrPrecondition, false},
		{http.StatusPreconditionFailed, domain.ErrPrecondition, false},
		{http.StatusUnauthorized, ErrUnauthorized, false},
		{http.StatusBadRequest, ErrRejected, false},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			_, err := NewHTTP(srv.URL).AdminStats(context.Background())
			require.ErrorIs(t, err, tc.target)
			require.Equal(t, tc.transient, recovery.IsTransient(err))
			require.Contains(t, err.Error(), "nope")
		})
	}
}

func TestHTTPTransportFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTP(url, WithTimeout(time.Second)).ListSessions(context.Background(), service.ListQuery{})
	require.Error(t, err)
	require.True(t, recovery.IsTransient(err))
}

func TestHTTPSendsHeaders(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	src := NewHTTP(srv.URL+"/", WithBearerToken("tok"), WithHeader("X-Surface", "admin"))
	sessions, err := src.ListSessions(context.Background(), service.ListQuery{Role: domain.RoleClient})
	require.NoError(t, err)
	require.Empty(t, sessions)
	require.Equal(t, "/api/v1/sessions", got.URL.Path)
	require.Equal(t, "client", got.URL.Query().Get("role"))
	require.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
	require.Equal(t, "admin", got.Header.Get("X-Surface"))
}
