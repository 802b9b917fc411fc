package service

import (
	"alcyxob/session-tracker/internal/cache"
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/repository"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrSessionAccessDenied = errors.New("access denied to this session")
	ErrSessionChanged      = errors.New("session was modified concurrently, reload and retry")
	ErrInvalidOutcome      = errors.New("outcome must be complete or cancel")
	ErrInvalidQuery        = errors.New("invalid session query")
)

// Actor is the authenticated caller, taken from the JWT claims.
type Actor struct {
	UserID string
	Role   domain.Role
}

// CreateSessionInput carries the client-chosen fields of a new session.
type CreateSessionInput struct {
	Title      string                 `json:"title"`
	Difficulty int                    `json:"difficulty"`
	Exercises  []domain.ExerciseEntry `json:"exercises"`
	// StartTime lets a client that started offline keep its original start.
	StartTime *time.Time `json:"startTime,omitempty"`
}

// ListQuery narrows a session listing. Zero values mean no constraint.
type ListQuery struct {
	OwnerID string
	Status  domain.SessionStatus
	Role    domain.Role
	Range   domain.DateRange
	Limit   int64
}

type SessionService interface {
	Create(ctx context.Context, actor Actor, in CreateSessionInput) (*domain.Session, error)
	Get(ctx context.Context, actor Actor, id string) (*domain.Session, error)
	GetCurrent(ctx context.Context, actor Actor) (*domain.Session, error)
	List(ctx context.Context, actor Actor, q ListQuery) ([]domain.Session, error)
	Update(ctx context.Context, actor Actor, id string, patch domain.SessionPatch) (*domain.Session, error)
	Analytics(ctx context.Context, actor Actor, ownerID string) (*domain.Analytics, error)
	AdminStats(ctx context.Context) (*domain.AdminStats, error)
	// EndSession lets an admin force an open session to completed or cancelled.
	EndSession(ctx context.Context, actor Actor, id string, outcome domain.Action) (*domain.Session, error)
}

type sessionService struct {
	sessionRepo repository.SessionRepository
	userRepo    repository.UserRepository
	analytics   cache.AnalyticsCache
	clock       clock.Clock
}

// NewSessionService creates a new instance of sessionService.
func NewSessionService(
	sessionRepo repository.SessionRepository,
	userRepo repository.UserRepository,
	analytics cache.AnalyticsCache,
	clk clock.Clock,
) SessionService {
	if analytics == nil {
		analytics = cache.NewNoopAnalyticsCache()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &sessionService{
		sessionRepo: sessionRepo,
		userRepo:    userRepo,
		analytics:   analytics,
		clock:       clk,
	}
}

// Create starts a new active session for the caller. At most one session per
// owner may be open.
func (s *sessionService) Create(ctx context.Context, actor Actor, in CreateSessionInput) (*domain.Session, error) {
	if _, err := domain.Next("", domain.ActionStart); err != nil {
		return nil, err
	}
	open, err := s.sessionRepo.GetOpenByOwner(ctx, actor.UserID)
	if err == nil && open != nil {
		return nil, domain.ErrConflict
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	now := s.clock.Now().UTC()
	start := now
	if in.StartTime != nil && !in.StartTime.IsZero() && !in.StartTime.After(now) {
		start = in.StartTime.UTC()
	}
	session := &domain.Session{
		Title:       in.Title,
		Status:      domain.SessionActive,
		StartTime:   start,
		ActiveSince: &start,
		Exercises:   domain.CloneExercises(in.Exercises),
		Difficulty:  in.Difficulty,
		OwnerID:     actor.UserID,
		OwnerRole:   actor.Role,
		TrainerID:   s.trainerFor(ctx, actor),
	}
	session.Normalize(now)
	if err := session.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.sessionRepo.Create(ctx, session); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, domain.ErrConflict
		}
		return nil, err
	}
	s.invalidate(ctx, session.OwnerID)
	log.Printf("INFO: Session %s started by %s (%s)", session.ID, actor.UserID, actor.Role)
	return session, nil
}

// trainerFor resolves which trainer a new session is attributed to: a client's
// assigned trainer, or the trainer themself.
func (s *sessionService) trainerFor(ctx context.Context, actor Actor) string {
	switch actor.Role {
	case domain.RoleTrainer:
		return actor.UserID
	case domain.RoleClient:
		id, err := primitive.ObjectIDFromHex(actor.UserID)
		if err != nil {
			return ""
		}
		user, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				log.Printf("WARN: Could not resolve trainer for client %s: %v", actor.UserID, err)
			}
			return ""
		}
		if user.TrainerID != nil {
			return user.TrainerID.Hex()
		}
	}
	return ""
}

func (s *sessionService) Get(ctx context.Context, actor Actor, id string) (*domain.Session, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, session.OwnerID); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *sessionService) GetCurrent(ctx context.Context, actor Actor) (*domain.Session, error) {
	session, err := s.sessionRepo.GetOpenByOwner(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// List returns sessions visible to the caller: clients see their own,
// trainers their own and their roster's, admins everything.
func (s *sessionService) List(ctx context.Context, actor Actor, q ListQuery) ([]domain.Session, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidQuery, q.Status)
	}
	if q.Role != "" && !q.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidQuery, q.Role)
	}
	if q.Range != "" && !q.Range.Valid() {
		return nil, fmt.Errorf("%w: unknown range %q", ErrInvalidQuery, q.Range)
	}

	owners, err := s.scope(ctx, actor, q.OwnerID)
	if err != nil {
		return nil, err
	}
	filter := repository.SessionFilter{
		OwnerIDs:  owners,
		OwnerRole: q.Role,
		Limit:     q.Limit,
		Since:     q.Range.Since(s.clock.Now()),
	}
	if q.Status != "" {
		filter.Statuses = []domain.SessionStatus{q.Status}
	}
	return s.sessionRepo.List(ctx, filter)
}

// scope resolves which owners the caller may read. A nil result means all.
func (s *sessionService) scope(ctx context.Context, actor Actor, ownerID string) ([]string, error) {
	switch actor.Role {
	case domain.RoleAdmin:
		if ownerID != "" {
			return []string{ownerID}, nil
		}
		return nil, nil
	case domain.RoleTrainer:
		visible, err := s.rosterOf(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		if ownerID == "" {
			return visible, nil
		}
		for _, id := range visible {
			if id == ownerID {
				return []string{ownerID}, nil
			}
		}
		return nil, ErrSessionAccessDenied
	default:
		if ownerID != "" && ownerID != actor.UserID {
			return nil, ErrSessionAccessDenied
		}
		return []string{actor.UserID}, nil
	}
}

// rosterOf returns the trainer's own ID followed by their clients' IDs.
func (s *sessionService) rosterOf(ctx context.Context, trainerID string) ([]string, error) {
	ids := []string{trainerID}
	oid, err := primitive.ObjectIDFromHex(trainerID)
	if err != nil {
		return ids, nil
	}
	trainer, err := s.userRepo.GetByID(ctx, oid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ids, nil
		}
		return nil, err
	}
	for _, c := range trainer.ClientIDs {
		ids = append(ids, c.Hex())
	}
	return ids, nil
}

func (s *sessionService) authorize(ctx context.Context, actor Actor, ownerID string) error {
	_, err := s.scope(ctx, actor, ownerID)
	return err
}

func (s *sessionService) load(ctx context.Context, id string) (*domain.Session, error) {
	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	return session, nil
}

// Update applies a partial update. Only the owner (or an admin) may write, and a
// status change must follow the transition table. Repeating the transition a
// session already went through is accepted so replayed writes are idempotent.
func (s *sessionService) Update(ctx context.Context, actor Actor, id string, patch domain.SessionPatch) (*domain.Session, error) {
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != actor.UserID && actor.Role != domain.RoleAdmin {
		return nil, ErrSessionAccessDenied
	}
	return s.apply(ctx, current, patch)
}

func (s *sessionService) apply(ctx context.Context, current *domain.Session, patch domain.SessionPatch) (*domain.Session, error) {
	now := s.clock.Now().UTC()
	from := current.Status
	to := from
	if patch.Status != nil {
		to = *patch.Status
	}

	if to != from {
		action, ok := domain.ActionFor(from, to)
		if !ok {
			return nil, fmt.Errorf("%w: cannot move from %s to %s", domain.ErrPrecondition, from, to)
		}
		if _, err := domain.Next(from, action); err != nil {
			return nil, err
		}
	} else if from.IsTerminal() {
		if patch.Status != nil {
			// replayed terminal write; the stored record wins
			return current, nil
		}
		if patch.Exercises != nil || patch.DurationSeconds != nil || patch.ActiveSince != nil || patch.EndTime != nil {
			return nil, fmt.Errorf("%w: session is %s", domain.ErrPrecondition, from)
		}
	}

	next := current.Clone()
	next.Apply(patch)
	next.Status = to

	// Timing fields follow the status, whatever the patch claimed.
	if to != from && from == domain.SessionActive && patch.DurationSeconds == nil {
		next.DurationSeconds = current.ElapsedAt(now)
	}
	if to == domain.SessionActive {
		if next.ActiveSince == nil || next.ActiveSince.After(now) {
			since := now
			next.ActiveSince = &since
		}
	} else {
		next.ActiveSince = nil
	}
	if to.IsTerminal() {
		if next.EndTime == nil || next.EndTime.After(now) {
			end := now
			next.EndTime = &end
		}
	} else {
		next.EndTime = nil
	}
	next.Normalize(now)
	if err := next.Validate(); err != nil {
		return nil, err
	}

	if err := s.sessionRepo.Replace(ctx, next, from); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, domain.ErrSessionNotFound
		case errors.Is(err, repository.ErrUpdateFailed):
			return nil, ErrSessionChanged
		}
		return nil, err
	}
	s.invalidate(ctx, next.OwnerID)
	if to != from {
		log.Printf("INFO: Session %s moved %s -> %s", next.ID, from, to)
	}
	return next, nil
}

func (s *sessionService) EndSession(ctx context.Context, actor Actor, id string, outcome domain.Action) (*domain.Session, error) {
	var to domain.SessionStatus
	switch outcome {
	case domain.ActionComplete:
		to = domain.SessionCompleted
	case domain.ActionCancel:
		to = domain.SessionCancelled
	default:
		return nil, ErrInvalidOutcome
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.IsOpen() {
		return nil, fmt.Errorf("%w: session is %s", domain.ErrPrecondition, current.Status)
	}
	ended, err := s.apply(ctx, current, domain.SessionPatch{Status: &to})
	if err != nil {
		return nil, err
	}
	log.Printf("INFO: Admin %s ended session %s (%s)", actor.UserID, id, outcome)
	return ended, nil
}

// Analytics returns the owner's analytics, served from the cache when fresh.
func (s *sessionService) Analytics(ctx context.Context, actor Actor, ownerID string) (*domain.Analytics, error) {
	if ownerID == "" {
		ownerID = actor.UserID
	}
	if err := s.authorize(ctx, actor, ownerID); err != nil {
		return nil, err
	}
	if cached, ok, err := s.analytics.Get(ctx, ownerID); err != nil {
		log.Printf("WARN: Analytics cache read failed for %s: %v", ownerID, err)
	} else if ok {
		return cached, nil
	}

	sessions, err := s.sessionRepo.List(ctx, repository.SessionFilter{OwnerIDs: []string{ownerID}})
	if err != nil {
		return nil, err
	}
	a := domain.ComputeAnalytics(ownerID, sessions, s.clock.Now())
	if err := s.analytics.Set(ctx, &a); err != nil {
		log.Printf("WARN: Analytics cache write failed for %s: %v", ownerID, err)
	}
	return &a, nil
}

func (s *sessionService) AdminStats(ctx context.Context) (*domain.AdminStats, error) {
	sessions, err := s.sessionRepo.List(ctx, repository.SessionFilter{})
	if err != nil {
		return nil, err
	}
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	stats := domain.ComputeAdminStats(sessions, users, s.clock.Now())
	return &stats, nil
}

func (s *sessionService) invalidate(ctx context.Context, ownerID string) {
	if err := s.analytics.Invalidate(ctx, ownerID); err != nil {
		log.Printf("WARN: Analytics cache invalidation failed for %s: %v", ownerID, err)
	}
}
