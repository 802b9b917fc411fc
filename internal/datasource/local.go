package datasource

import (
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/recovery"
	"alcyxob/session-tracker/internal/repository/memory"
	"alcyxob/session-tracker/internal/service"
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Backend is the set of services a Local source calls.
type Backend struct {
	Sessions  service.SessionService
	Trainer   service.TrainerService
	Incidents service.IncidentService
}

// Local implements Source by calling the services in-process as actor.
type Local struct {
	actor   service.Actor
	backend Backend
}

func NewLocal(actor service.Actor, backend Backend) *Local {
	return &Local{actor: actor, backend: backend}
}

var _ Source = (*Local)(nil)

func (l *Local) CreateSession(ctx context.Context, in service.CreateSessionInput) (*domain.Session, error) {
	return l.backend.Sessions.Create(ctx, l.actor, in)
}

func (l *Local) UpdateSession(ctx context.Context, id string, patch domain.SessionPatch) (*domain.Session, error) {
	s, err := l.backend.Sessions.Update(ctx, l.actor, id, patch)
	if errors.Is(err, service.ErrSessionChanged) {
		return nil, fmt.Errorf("%w: %w", domain.ErrPrecondition, err)
	}
	return s, err
}

func (l *Local) CurrentSession(ctx context.Context) (*domain.Session, error) {
	s, err := l.backend.Sessions.GetCurrent(ctx, l.actor)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	return s, err
}

func (l *Local) ListSessions(ctx context.Context, q service.ListQuery) ([]domain.Session, error) {
	return l.backend.Sessions.List(ctx, l.actor, q)
}

func (l *Local) Analytics(ctx context.Context, ownerID string) (*domain.Analytics, error) {
	return l.backend.Sessions.Analytics(ctx, l.actor, ownerID)
}

func (l *Local) TrainerStats(ctx context.Context) (*domain.TrainerStats, error) {
	if l.actor.Role != domain.RoleTrainer {
		return nil, ErrUnauthorized
	}
	id, err := primitive.ObjectIDFromHex(l.actor.UserID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return l.backend.Trainer.Stats(ctx, id)
}

func (l *Local) AdminStats(ctx context.Context) (*domain.AdminStats, error) {
	if l.actor.Role != domain.RoleAdmin {
		return nil, ErrUnauthorized
	}
	return l.backend.Sessions.AdminStats(ctx)
}

func (l *Local) EndSession(ctx context.Context, id string, outcome domain.Action) (*domain.Session, error) {
	if l.actor.Role != domain.RoleAdmin {
		return nil, ErrUnauthorized
	}
	return l.backend.Sessions.EndSession(ctx, l.actor, id, outcome)
}

func (l *Local) ReportIncident(ctx context.Context, incident *domain.Incident) error {
	if l.backend.Incidents == nil {
		return nil
	}
	return l.backend.Incidents.Report(ctx, l.actor.UserID, incident)
}

// Offline is an in-process backend over memory repositories.
type Offline struct {
	Users    *memory.UserRepository
	Sessions *memory.SessionRepository
	Backend  Backend
}

func NewOffline(clk clock.Clock) *Offline {
	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	return &Offline{
		Users:    users,
		Sessions: sessions,
		Backend: Backend{
			Sessions:  service.NewSessionService(sessions, users, nil, clk),
			Trainer:   service.NewTrainerService(users, sessions, clk),
			Incidents: service.NewIncidentService(memory.NewIncidentRepository(), nil, clk),
		},
	}
}

// Seed loads a dataset, typically a synthetic one, into the repositories.
func (o *Offline) Seed(ctx context.Context, ds recovery.Dataset) error {
	for i := range ds.Users {
		u := ds.Users[i]
		if _, err := o.Users.Create(ctx, &u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}
	for i := range ds.Sessions {
		s := ds.Sessions[i].Clone()
		if _, err := o.Sessions.Create(ctx, s); err != nil {
			return fmt.Errorf("seed session %s: %w", ds.Sessions[i].ID, err)
		}
	}
	log.Printf("INFO: Offline backend seeded with %d users and %d sessions", len(ds.Users), len(ds.Sessions))
	return nil
}

// As returns a Source acting as actor.
func (o *Offline) As(actor service.Actor) *Local {
	return NewLocal(actor, o.Backend)
}
