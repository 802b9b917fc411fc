package service

import (
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/repository"
	"alcyxob/session-tracker/internal/storage"
	"context"
	"errors"
	"log"
	"strings"
	"time"
)

var (
	ErrIncidentNotFound = errors.New("incident not found")
	ErrInvalidIncident  = errors.New("incident requires incidentId, surface and message")
)

const maxStackBytes = 16 << 10

// IncidentReport is what an admin gets back when looking up an incident.
type IncidentReport struct {
	Incident    *domain.Incident `json:"incident"`
	DownloadURL string           `json:"downloadUrl,omitempty"`
}

type IncidentService interface {
	// Report records an incident sent by a client surface. Re-sending the
	// same incident ID is a no-op.
	Report(ctx context.Context, reporterID string, incident *domain.Incident) error
	Get(ctx context.Context, id string) (*IncidentReport, error)
}

type incidentService struct {
	incidentRepo repository.IncidentRepository
	archive      storage.IncidentArchive
	clock        clock.Clock
	urlExpiry    time.Duration
}

// NewIncidentService creates a new instance of incidentService.
func NewIncidentService(incidentRepo repository.IncidentRepository, archive storage.IncidentArchive, clk clock.Clock) IncidentService {
	if archive == nil {
		archive = storage.NewLogArchive()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &incidentService{
		incidentRepo: incidentRepo,
		archive:      archive,
		clock:        clk,
		urlExpiry:    storage.DefaultPresignedURLExpiry,
	}
}

func (s *incidentService) Report(ctx context.Context, reporterID string, incident *domain.Incident) error {
	if incident == nil || incident.ID == "" || incident.Surface == "" || incident.Message == "" {
		return ErrInvalidIncident
	}
	if incident.Class != domain.ClassTransient {
		incident.Class = domain.ClassOther
	}
	if incident.OccurredAt.IsZero() {
		incident.OccurredAt = s.clock.Now().UTC()
	}
	if len(incident.Stack) > maxStackBytes {
		incident.Stack = incident.Stack[:maxStackBytes]
	}
	incident.ReporterID = reporterID

	key, err := s.archive.PutIncident(ctx, incident)
	if err != nil {
		// the record alone is still useful to support
		log.Printf("WARN: Incident %s not archived: %v", incident.ID, err)
	}
	incident.ArchiveKey = key

	if err := s.incidentRepo.Create(ctx, incident); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil
		}
		return err
	}
	log.Printf("ERROR: Surface %s failed (%s) incident=%s: %s", incident.Surface, incident.Class, incident.ID, firstLine(incident.Message))
	return nil
}

func (s *incidentService) Get(ctx context.Context, id string) (*IncidentReport, error) {
	incident, err := s.incidentRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrIncidentNotFound
		}
		return nil, err
	}
	report := &IncidentReport{Incident: incident}
	if incident.ArchiveKey == "" {
		return report, nil
	}
	url, err := s.archive.GeneratePresignedDownloadURL(ctx, incident.ArchiveKey, s.urlExpiry)
	if err != nil {
		log.Printf("WARN: No download URL for incident %s: %v", id, err)
		return report, nil
	}
	report.DownloadURL = url
	return report, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
