package models

import "time"

// Conflict describes a queued mutation the server refused because its version of the
// entity is newer than the one the local edit was based on.
// It stays in the session conflict list until resolved.
type Conflict struct {
	DetectedAt    time.Time  `json:"detected_at"`
	ServerVersion Payload    `json:"server_version,omitempty"`
	LocalVersion  Payload    `json:"local_version"`
	RecordID      string     `json:"record_id"`
	EntityType    EntityType `json:"entity_type"`
	EntityID      string     `json:"entity_id"`
	Reason        string     `json:"reason"`
}
