package storage

import (
	"alcyxob/session-tracker/internal/config"
	"alcyxob/session-tracker/internal/domain"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIncidentKey(t *testing.T) {
	inc := &domain.Incident{
		ID:         "7f1c",
		OccurredAt: time.Date(2026, 10, 18, 23, 30, 0, 0, time.FixedZone("X", -2*3600)),
	}
	// Keys are bucketed by UTC day.
	require.Equal(t, "incidents/2026-10-19/7f1c.json", IncidentKey(inc))
}

func TestLogArchive(t *testing.T) {
	a := NewLogArchive()
	key, err := a.PutIncident(context.Background(), &domain.Incident{ID: "i1", Surface: "admin"})
	require.NoError(t, err)
	require.Empty(t, key)

	_, err = a.GeneratePresignedDownloadURL(context.Background(), "k", 0)
	require.ErrorIs(t, err, ErrArchiveDisabled)
}

func TestS3ArchivePresignsWithoutNetwork(t *testing.T) {
	a, err := NewS3Archive(context.Background(), config.S3Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		BucketName:      "incidents",
	})
	require.NoError(t, err)

	url, err := a.GeneratePresignedDownloadURL(context.Background(), "incidents/2026-10-18/i1.json", time.Minute)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://localhost:9000/incidents/incidents/2026-10-18/i1.json?"), url)
	require.Contains(t, url, "X-Amz-Expires=60")
}
