package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CloudProvider selects the gateway driver for a VM
type CloudProvider string

const (
	CloudProviderAzure CloudProvider = "azure"
	CloudProviderAWS   CloudProvider = "aws"
)

type VM struct {
	ID            uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	Name          string        `json:"name" gorm:"type:varchar(255);uniqueIndex;not null"`
	VMType        VMType        `json:"vm_type" gorm:"type:varchar(32);not null;index:idx_vm_pool"`
	Provider      CloudProvider `json:"provider" gorm:"type:varchar(16);not null;default:'azure'"`
	ResourceGroup string        `json:"resource_group" gorm:"type:varchar(255)"`
	ResourceName  string        `json:"resource_name" gorm:"type:varchar(255);not null"` // VM name or instance id
	Region        string        `json:"region" gorm:"type:varchar(64)"`

	SubscriptionID string `json:"-" gorm:"type:varchar(255)"`
	TenantID       string `json:"-" gorm:"type:varchar(255)"`
	ClientID       string `json:"-" gorm:"type:varchar(255)"`
	ClientSecret   string `json:"-" gorm:"type:varchar(1024)"`

	ProjectID        uuid.UUID  `json:"project_id" gorm:"type:uuid;not null;index:idx_vm_pool"`
	Status           VMStatus   `json:"status" gorm:"type:varchar(32);not null;default:'available';index"`
	CurrentSessionID *uuid.UUID `json:"current_session_id,omitempty" gorm:"type:uuid;index"`
	LastReconciledAt *time.Time `json:"last_reconciled_at,omitempty"`

	IPAddress string            `json:"ip_address" gorm:"type:varchar(64)"`
	Port      int               `json:"port"`
	IsBusy    bool              `json:"is_busy" gorm:"not null;default:false"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// InUse reports whether the VM is assigned to a session.
func (v *VM) InUse() bool {
	return v.CurrentSessionID != nil
}
