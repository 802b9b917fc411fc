// Package datasource is the client's view of the session backend. HTTP talks
// to the API server; Local calls the services in-process.
package datasource

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/service"
	"context"
	"errors"
)

var (
	ErrUnauthorized = errors.New("not authorized for this operation")
	ErrRejected     = errors.New("request rejected by the data source")
)

// Source is every backend operation the client surfaces use.
type Source interface {
	CreateSession(ctx context.Context, in service.CreateSessionInput) (*domain.Session, error)
	UpdateSession(ctx context.Context, id string, patch domain.SessionPatch) (*domain.Session, error)
	// CurrentSession returns nil, nil when the caller has no open session.
	CurrentSession(ctx context.Context) (*domain.Session, error)
	ListSessions(ctx context.Context, q service.ListQuery) ([]domain.Session, error)
	Analytics(ctx context.Context, ownerID string) (*domain.Analytics, error)
	TrainerStats(ctx context.Context) (*domain.TrainerStats, error)
	AdminStats(ctx context.Context) (*domain.AdminStats, error)
	EndSession(ctx context.Context, id string, outcome domain.Action) (*domain.Session, error)
	ReportIncident(ctx context.Context, incident *domain.Incident) error
}
