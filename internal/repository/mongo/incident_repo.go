package mongo

import (
	"alcyxob/session-tracker/internal/domain"
	"alcyxob/session-tracker/internal/repository"
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const incidentCollectionName = "incidents"

// mongoIncidentRepository implements repository.IncidentRepository
type mongoIncidentRepository struct {
	collection *mongo.Collection
}

// NewMongoIncidentRepository creates a new Incident repository backed by MongoDB.
func NewMongoIncidentRepository(db *mongo.Database) repository.IncidentRepository {
	return &mongoIncidentRepository{
		collection: db.Collection(incidentCollectionName),
	}
}

// Create inserts an incident record. The ID is chosen by the reporting client.
func (r *mongoIncidentRepository) Create(ctx context.Context, incident *domain.Incident) error {
	if incident.ID == "" || incident.Surface == "" {
		return errors.New("incident requires id and surface")
	}
	incident.ReceivedAt = time.Now().UTC()

	if _, err := r.collection.InsertOne(ctx, incident); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID retrieves an incident by its ID.
func (r *mongoIncidentRepository) GetByID(ctx context.Context, id string) (*domain.Incident, error) {
	var incident domain.Incident
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&incident)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &incident, nil
}

// EnsureIncidentIndexes creates necessary indexes. Call during startup.
func EnsureIncidentIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "surface", Value: 1}, {Key: "occurredAt", Value: -1}},
			Options: options.Index(),
		},
		{
			// Incidents are diagnostic only; keep 90 days.
			Keys:    bson.D{{Key: "receivedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 3600),
		},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Printf("WARN: Failed to create indexes for collection %s: %v", collection.Name(), err)
	}
}
