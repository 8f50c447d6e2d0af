package entity

import (
	"time"

	"github.com/google/uuid"
)

// Heartbeat is an immutable health sample reported by a session's VM agent
type Heartbeat struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	SessionID     uuid.UUID `json:"session_id" gorm:"type:uuid;not null;index"`
	Status        string    `json:"status" gorm:"type:varchar(64);not null"`
	CPUPercent    *float64  `json:"cpu_percent,omitempty"`
	MemoryPercent *float64  `json:"memory_percent,omitempty"`
	RecordedAt    time.Time `json:"recorded_at" gorm:"not null;index"`
}

func (Heartbeat) TableName() string {
	return "session_heartbeats"
}
