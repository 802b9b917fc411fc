package service

import (
	"alcyxob/session-tracker/internal/clock"
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/repository"
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrClientNotFound        = errors.New("client user not found")
	ErrClientNotRole         = errors.New("user found but is not a client")
	ErrClientAlreadyAssigned = errors.New("client is already assigned to a trainer")
)

type TrainerService interface {
	// Client Management
	AddClientByEmail(ctx context.Context, trainerID primitive.ObjectID, clientEmail string) (*domain.User, error)
	GetManagedClients(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error)

	// Stats aggregates the sessions of the trainer's roster for the roster view.
	Stats(ctx context.Context, trainerID primitive.ObjectID) (*domain.TrainerStats, error)
}

// trainerService implements the TrainerService interface.
type trainerService struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	clock       clock.Clock
}

// NewTrainerService creates a new instance of trainerService.
func NewTrainerService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository, clk clock.Clock) TrainerService {
	if clk == nil {
		clk = clock.Real{}
	}
	return &trainerService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		clock:       clk,
	}
}

// === Client Management ===

// AddClientByEmail finds a client by email and assigns them to the trainer.
func (s *trainerService) AddClientByEmail(ctx context.Context, trainerID primitive.ObjectID, clientEmail string) (*domain.User, error) {
	if trainerID == primitive.NilObjectID || clientEmail == "" {
		return nil, errors.New("trainer ID and client email are required")
	}

	client, err := s.userRepo.GetByEmail(ctx, clientEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	if client.Role != domain.RoleClient {
		return nil, ErrClientNotRole
	}

	if client.TrainerID != nil && *client.TrainerID != primitive.NilObjectID {
		if *client.TrainerID == trainerID {
			client.PasswordHash = ""
			return client, nil
		}
		return nil, ErrClientAlreadyAssigned
	}

	// Both sides of the link are written; there is no transaction around them.
	if err = s.userRepo.AddClientIDToTrainer(ctx, trainerID, client.ID); err != nil {
		return nil, err
	}
	if err = s.userRepo.SetTrainerForClient(ctx, client.ID, trainerID); err != nil {
		return nil, err
	}

	client.TrainerID = &trainerID
	client.PasswordHash = ""
	return client, nil
}

// GetManagedClients retrieves the list of clients managed by the trainer.
func (s *trainerService) GetManagedClients(ctx context.Context, trainerID primitive.ObjectID) ([]domain.User, error) {
	if trainerID == primitive.NilObjectID {
		return nil, errors.New("trainer ID is required")
	}
	clients, err := s.userRepo.GetClientsByTrainerID(ctx, trainerID)
	if err != nil {
		return nil, err
	}
	for i := range clients {
		clients[i].PasswordHash = ""
	}
	return clients, nil
}

func (s *trainerService) Stats(ctx context.Context, trainerID primitive.ObjectID) (*domain.TrainerStats, error) {
	clients, err := s.GetManagedClients(ctx, trainerID)
	if err != nil {
		return nil, err
	}
	var sessions []domain.Session
	if len(clients) > 0 {
		ids := make([]string, len(clients))
		for i, c := range clients {
			ids[i] = c.ID.Hex()
		}
		sessions, err = s.sessionRepo.List(ctx, repository.SessionFilter{OwnerIDs: ids})
		if err != nil {
			return nil, err
		}
	}
	stats := domain.ComputeTrainerStats(trainerID.Hex(), clients, sessions, s.clock.Now())
	return &stats, nil
}
