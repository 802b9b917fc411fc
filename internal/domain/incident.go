package domain

import "time"

// ErrorClass separates failures worth retrying from everything else.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassOther     ErrorClass = "other"
)

// Incident is the diagnostic record of a contained surface failure.
// The full report lives in object storage; the record keeps its key.
type Incident struct {
	ID         string            `bson:"_id" json:"incidentId"`
	Surface    string            `bson:"surface" json:"surface"`
	Message    string            `bson:"message" json:"message"`
	Stack      string            `bson:"stack,omitempty" json:"stack,omitempty"`
	Class      ErrorClass        `bson:"class" json:"class"`
	Context    map[string]string `bson:"context,omitempty" json:"context,omitempty"`
	OccurredAt time.Time         `bson:"occurredAt" json:"occurredAt"`
	ReporterID string            `bson:"reporterId,omitempty" json:"reporterId,omitempty"`
	ArchiveKey string            `bson:"archiveKey,omitempty" json:"-"` // internal use
	ReceivedAt time.Time         `bson:"receivedAt" json:"receivedAt"`
}
