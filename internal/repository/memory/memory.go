// Package memory holds in-process repository implementations. They back the
// offline data source of sessionctl and the service tests.
package memory

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/repository"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserRepository implements repository.UserRepository in memory.
type UserRepository struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]*domain.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: map[primitive.ObjectID]*domain.User{}}
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(_ context.Context, user *domain.User) (primitive.ObjectID, error) {
	if user.Email == "" || user.Role == "" {
		return primitive.NilObjectID, errors.New("user requires email and role")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return primitive.NilObjectID, repository.ErrDuplicate
		}
	}
	if user.ID == primitive.NilObjectID {
		user.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = cloneUser(user)
	return user.ID, nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *UserRepository) GetByID(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepository) AddClientIDToTrainer(_ context.Context, trainerID, clientID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.users[trainerID]
	if !ok || t.Role != domain.RoleTrainer {
		return repository.ErrNotFound
	}
	for _, id := range t.ClientIDs {
		if id == clientID {
			return nil
		}
	}
	t.ClientIDs = append(t.ClientIDs, clientID)
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepository) GetClientsByTrainerID(_ context.Context, trainerID primitive.ObjectID) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.users[trainerID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := []domain.User{}
	for _, id := range t.ClientIDs {
		if u, ok := r.users[id]; ok && u.Role == domain.RoleClient {
			out = append(out, *cloneUser(u))
		}
	}
	return out, nil
}

func (r *UserRepository) SetTrainerForClient(_ context.Context, clientID, trainerID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.users[clientID]
	if !ok || c.Role != domain.RoleClient {
		return repository.ErrNotFound
	}
	c.TrainerID = &trainerID
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// List returns all users ordered by name.
func (r *UserRepository) List(context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *UserRepository) Count(context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.users)), nil
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.ClientIDs = append([]primitive.ObjectID(nil), u.ClientIDs...)
	if u.TrainerID != nil {
		id := *u.TrainerID
		c.TrainerID = &id
	}
	return &c
}

// SessionRepository implements repository.SessionRepository in memory,
// including the one-open-session-per-owner constraint.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: map[string]*domain.Session{}}
}

var _ repository.SessionRepository = (*SessionRepository)(nil)

func (r *SessionRepository) Create(_ context.Context, session *domain.Session) (string, error) {
	if session.OwnerID == "" || session.Status == "" {
		return "", errors.New("session requires ownerId and status")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.Status.IsOpen() {
		for _, existing := range r.sessions {
			if existing.OwnerID == session.OwnerID && existing.Status.IsOpen() {
				return "", repository.ErrDuplicate
			}
		}
	}
	session.ID = primitive.NewObjectID().Hex()
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now
	r.sessions[session.ID] = session.Clone()
	return session.ID, nil
}

func (r *SessionRepository) GetByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.Clone(), nil
}

func (r *SessionRepository) GetOpenByOwner(_ context.Context, ownerID string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var found *domain.Session
	for _, s := range r.sessions {
		if s.OwnerID == ownerID && s.Status.IsOpen() && (found == nil || s.StartTime.After(found.StartTime)) {
			found = s
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found.Clone(), nil
}

func (r *SessionRepository) List(_ context.Context, f repository.SessionFilter) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.Session{}
	for _, s := range r.sessions {
		if !matches(s, f) {
			continue
		}
		out = append(out, *s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.After(out[j].StartTime)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && int64(len(out)) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func matches(s *domain.Session, f repository.SessionFilter) bool {
	if len(f.OwnerIDs) > 0 && !containsString(f.OwnerIDs, s.OwnerID) {
		return false
	}
	if f.TrainerID != "" && s.TrainerID != f.TrainerID {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, st := range f.Statuses {
			if st == s.Status {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.OwnerRole != "" && s.OwnerRole != f.OwnerRole {
		return false
	}
	if !f.Since.IsZero() && s.StartTime.Before(f.Since) {
		return false
	}
	return true
}

func (r *SessionRepository) Replace(_ context.Context, session *domain.Session, expected domain.SessionStatus) error {
	if session.ID == "" {
		return errors.New("session ID is required for update")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[session.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Status != expected {
		return repository.ErrUpdateFailed
	}
	session.UpdatedAt = time.Now().UTC()
	r.sessions[session.ID] = session.Clone()
	return nil
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// IncidentRepository implements repository.IncidentRepository in memory.
type IncidentRepository struct {
	mu        sync.RWMutex
	incidents map[string]domain.Incident
}

func NewIncidentRepository() *IncidentRepository {
	return &IncidentRepository{incidents: map[string]domain.Incident{}}
}

var _ repository.IncidentRepository = (*IncidentRepository)(nil)

func (r *IncidentRepository) Create(_ context.Context, incident *domain.Incident) error {
	if incident.ID == "" || incident.Surface == "" {
		return errors.New("incident requires id and surface")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.incidents[incident.ID]; ok {
		return repository.ErrDuplicate
	}
	incident.ReceivedAt = time.Now().UTC()
	r.incidents[incident.ID] = *incident
	return nil
}

func (r *IncidentRepository) GetByID(_ context.Context, id string) (*domain.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inc, ok := r.incidents[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &inc, nil
}
