package storage

import (
	"alcyxob/session-tracker/internal/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
)

// Default expiry duration for presigned URLs
const DefaultPresignedURLExpiry = 15 * time.Minute

var (
	ErrArchiveDisabled = errors.New("incident archive is not configured")
)

// IncidentArchive keeps the full JSON report of each incident in object storage.
type IncidentArchive interface {
	// PutIncident stores the report and returns its object key.
	PutIncident(ctx context.Context, incident *domain.Incident) (string, error)

	// GeneratePresignedDownloadURL creates a temporary URL that allows GET requests
	// for downloading a report directly from the storage provider.
	GeneratePresignedDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error)
}

// IncidentKey is the object key of an incident report: incidents/<day>/<id>.json.
func IncidentKey(incident *domain.Incident) string {
	return fmt.Sprintf("incidents/%s/%s.json", incident.OccurredAt.UTC().Format("2006-01-02"), incident.ID)
}

func encodeIncident(incident *domain.Incident) ([]byte, error) {
	return json.MarshalIndent(incident, "", "  ")
}

// logArchive writes reports to the server log when no bucket is configured.
type logArchive struct{}

// NewLogArchive returns an archive that only logs.
func NewLogArchive() IncidentArchive { return logArchive{} }

func (logArchive) PutIncident(_ context.Context, incident *domain.Incident) (string, error) {
	body, err := encodeIncident(incident)
	if err != nil {
		return "", err
	}
	log.Printf("WARN: Incident %s on surface %s (archive disabled): %s", incident.ID, incident.Surface, body)
	return "", nil
}

func (logArchive) GeneratePresignedDownloadURL(context.Context, string, time.Duration) (string, error) {
	return "", ErrArchiveDisabled
}
