package repository

import (
	"alcyxob/session-tracker/internal/domain"
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrUpdateFailed = RepositoryError("update failed")
	ErrDuplicate    = RepositoryError("duplicate")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	AddClientIDToTrainer(ctx context.Context, trainerID, clientID primitive.ObjectID) error
	GetClientsByTrainerID(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error)
	SetTrainerForClient(ctx context.Context, clientID, trainerID primitive.ObjectID) error
	List(ctx context.Context) ([]domain.User, error)
	Count(ctx context.Context) (int64, error)
}

// SessionFilter narrows a session listing. Zero values mean "no constraint".
type SessionFilter struct {
	OwnerIDs  []string
	TrainerID string
	Statuses  []domain.SessionStatus
	OwnerRole domain.Role
	Since     time.Time
	Limit     int64
}

// SessionRepository defines the interface for interacting with session records.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) (string, error)
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// GetOpenByOwner returns the owner's active or paused session, or ErrNotFound.
	GetOpenByOwner(ctx context.Context, ownerID string) (*domain.Session, error)
	List(ctx context.Context, filter SessionFilter) ([]domain.Session, error)
	// Replace overwrites the stored session if its status still equals expected.
	Replace(ctx context.Context, session *domain.Session, expected domain.SessionStatus) error
}

// IncidentRepository stores incident records reported by the client surfaces.
type IncidentRepository interface {
	Create(ctx context.Context, incident *domain.Incident) error
	GetByID(ctx context.Context, id string) (*domain.Incident, error)
}
