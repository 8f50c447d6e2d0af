package entity

import "github.com/google/uuid"

// UsageRecord is the billable usage of one ended session
type UsageRecord struct {
	SessionID   uuid.UUID `json:"session_id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	ProjectID   uuid.UUID `json:"project_id"`
	UserID      uuid.UUID `json:"user_id"`
	VMType      VMType    `json:"vm_type"`
	Seconds     int64     `json:"seconds"`
	Credits     float64   `json:"credits"`
}
