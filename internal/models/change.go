package models

import "time"

// ChangeNotification is one entry of the backend update list: an entity
// changed remotely and the device must re-fetch it as of OccurredAt.
type ChangeNotification struct {
	RemoteID   int64     `json:"remote_id"`
	EntityType string    `json:"entity_type"`
	EntityID   int64     `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
