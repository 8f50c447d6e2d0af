package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ClientContext is informational metadata captured at session start
type ClientContext struct {
	IPAddress string `json:"ip_address,omitempty"`
	Location  string `json:"location,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Session is one user's time-bounded claim on a VM
type Session struct {
	ID             uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	VMID           uuid.UUID     `json:"vm_id" gorm:"type:uuid;not null;index"`
	ProjectID      uuid.UUID     `json:"project_id" gorm:"type:uuid;not null;index"`
	WorkspaceID    uuid.UUID     `json:"workspace_id" gorm:"type:uuid;not null;index"`
	OrganizationID uuid.UUID     `json:"organization_id" gorm:"type:uuid;index"`
	UserID         uuid.UUID     `json:"user_id" gorm:"type:uuid;not null;index"`
	VMType         VMType        `json:"vm_type" gorm:"type:varchar(32);not null"`
	Status         SessionStatus `json:"status" gorm:"type:varchar(32);not null;default:'starting';index"`

	StartedAt       time.Time  `json:"started_at" gorm:"not null;index"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty" gorm:"index"`

	CreditsUsed          float64 `json:"credits_used" gorm:"not null;default:0"`
	BillingTransactionID string  `json:"billing_transaction_id,omitempty" gorm:"type:varchar(255)"`
	FailureReason        string  `json:"failure_reason,omitempty" gorm:"type:text"`

	ClientContext datatypes.JSONType[ClientContext] `json:"client_context"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
