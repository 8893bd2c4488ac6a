package collab

import "time"

// DocOpEvent is the applied-operation record published to Kafka for
// downstream consumers (activity feeds, audit, analytics). Delivery is
// best-effort; the in-memory log stays the source of truth.
type DocOpEvent struct {
	EventType   string    `json:"eventType"` // always "OP_APPLIED"
	SessionID   string    `json:"sessionId"`
	OperationID string    `json:"operationId"`
	UserID      string    `json:"userId"`
	Kind        string    `json:"kind"`
	Position    int       `json:"position"`
	Content     string    `json:"content,omitempty"`
	Length      int       `json:"length,omitempty"`
	BaseVersion uint64    `json:"baseVersion"`
	Version     uint64    `json:"version"`
	AppliedAt   time.Time `json:"appliedAt"`
}
