package service

import (
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/repository/memory"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReportIncident(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIncidentRepository()
	archive := &fakeArchive{}
	svc := NewIncidentService(repo, archive, clock.NewManual(t0))

	inc := &domain.Incident{
		ID:      "3b1f0c7e",
		Surface: "admin",
		Message: "stats unavailable\nmore detail",
		Class:   "weird",
		Stack:   strings.Repeat("x", maxStackBytes+10),
	}
	require.NoError(t, svc.Report(ctx, "u1", inc))
	require.NoError(t, svc.Report(ctx, "u1", inc), "re-sent incidents are accepted")

	report, err := svc.Get(ctx, "3b1f0c7e")
	require.NoError(t, err)
	require.Equal(t, domain.ClassOther, report.Incident.Class)
	require.Equal(t, t0, report.Incident.OccurredAt)
	require.Equal(t, "u1", report.Incident.ReporterID)
	require.Len(t, report.Incident.Stack, maxStackBytes)
	require.Equal(t, "https://archive.example.com/incidents/3b1f0c7e.json?sig=x", report.DownloadURL)

	_, err = svc.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrIncidentNotFound)
	require.ErrorIs(t, svc.Report(ctx, "u1", &domain.Incident{ID: "x"}), ErrInvalidIncident)
}

func TestReportIncidentSurvivesArchiveFailure(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewIncidentRepository()
	svc := NewIncidentService(repo, &fakeArchive{failPut: errors.New("bucket gone")}, clock.NewManual(t0))

	require.NoError(t, svc.Report(ctx, "u1", &domain.Incident{ID: "i2", Surface: "self", Message: "boom", Class: domain.ClassTransient}))
	report, err := svc.Get(ctx, "i2")
	require.NoError(t, err)
	require.Equal(t, domain.ClassTransient, report.Incident.Class)
	require.Empty(t, report.DownloadURL)
}
