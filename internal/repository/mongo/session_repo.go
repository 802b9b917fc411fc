// internal/repository/mongo/session_repo.go
package mongo

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/repository"
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sessionCollectionName = "sessions"

var openStatuses = []domain.SessionStatus{domain.SessionActive, domain.SessionPaused}

// mongoSessionRepository implements repository.SessionRepository
type mongoSessionRepository struct {
	collection *mongo.Collection
}

// NewMongoSessionRepository creates a new Session repository.
func NewMongoSessionRepository(db *mongo.Database) repository.SessionRepository {
	return &mongoSessionRepository{
		collection: db.Collection(sessionCollectionName),
	}
}

// Create inserts a new session and returns its assigned ID.
func (r *mongoSessionRepository) Create(ctx context.Context, session *domain.Session) (string, error) {
	if session.OwnerID == "" || session.Status == "" {
		return "", errors.New("session requires ownerId and status")
	}
	session.ID = primitive.NewObjectID().Hex()
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, session); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// the partial unique index on open sessions
			return "", repository.ErrDuplicate
		}
		return "", err
	}
	return session.ID, nil
}

// GetByID retrieves a single session by its ID.
func (r *mongoSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var session domain.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// GetOpenByOwner returns the owner's active or paused session.
func (r *mongoSessionRepository) GetOpenByOwner(ctx context.Context, ownerID string) (*domain.Session, error) {
	var session domain.Session
	filter := bson.M{"ownerId": ownerID, "status": bson.M{"$in": openStatuses}}
	findOptions := options.FindOne().SetSort(bson.D{{Key: "startTime", Value: -1}})
	err := r.collection.FindOne(ctx, filter, findOptions).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// List retrieves sessions matching the filter, newest first.
func (r *mongoSessionRepository) List(ctx context.Context, f repository.SessionFilter) ([]domain.Session, error) {
	filter := bson.M{}
	if len(f.OwnerIDs) > 0 {
		filter["ownerId"] = bson.M{"$in": f.OwnerIDs}
	}
	if f.TrainerID != "" {
		filter["trainerId"] = f.TrainerID
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if f.OwnerRole != "" {
		filter["ownerRole"] = f.OwnerRole
	}
	if !f.Since.IsZero() {
		filter["startTime"] = bson.M{"$gte": f.Since}
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "startTime", Value: -1}})
	if f.Limit > 0 {
		findOptions.SetLimit(f.Limit)
	}

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	sessions := []domain.Session{}
	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	if err = cursor.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Replace overwrites the session document, guarded by its expected current status
// so two writers cannot both apply a transition from the same state.
func (r *mongoSessionRepository) Replace(ctx context.Context, session *domain.Session, expected domain.SessionStatus) error {
	if session.ID == "" {
		return errors.New("session ID is required for update")
	}
	session.UpdatedAt = time.Now().UTC()

	filter := bson.M{"_id": session.ID, "status": expected}
	result, err := r.collection.ReplaceOne(ctx, filter, session)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		if _, getErr := r.GetByID(ctx, session.ID); errors.Is(getErr, repository.ErrNotFound) {
			return repository.ErrNotFound
		}
		return repository.ErrUpdateFailed // status moved underneath us
	}
	return nil
}

// EnsureSessionIndexes creates necessary indexes. Call during startup.
func EnsureSessionIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// At most one open session per owner. $in in partial filters needs MongoDB 6.0+.
			Keys: bson.D{{Key: "ownerId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("one_open_session_per_owner").
				SetPartialFilterExpression(bson.M{"status": bson.M{"$in": openStatuses}}),
		},
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "startTime", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "trainerId", Value: 1}, {Key: "startTime", Value: -1}},
			Options: options.Index().SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "startTime", Value: -1}},
			Options: options.Index(),
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
