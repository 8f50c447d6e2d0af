package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"github.com/tnqbao/gau-vm-session-service/infra/produce"
)

// Stores report a missing row with gorm.ErrRecordNotFound.

type VMStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.VM, error)
	FindAvailable(ctx context.Context, projectID uuid.UUID, vmType entity.VMType, limit int) ([]entity.VM, error)
	Claim(ctx context.Context, vmID, sessionID uuid.UUID) (bool, error)
	Release(ctx context.Context, vmID, sessionID uuid.UUID, status entity.VMStatus) (bool, error)
}

type SessionStore interface {
	Create(ctx context.Context, session *entity.Session) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error)
	FindNonTerminalByUser(ctx context.Context, userID uuid.UUID) (*entity.Session, error)
	ExistsNonTerminalForVM(ctx context.Context, vmID uuid.UUID) (bool, error)
	MarkTerminating(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, status entity.SessionStatus, endedAt time.Time, credits float64, billingRef string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, endedAt time.Time) (bool, error)
	Activate(ctx context.Context, id uuid.UUID) (bool, error)
	TouchHeartbeat(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type HeartbeatStore interface {
	Append(ctx context.Context, heartbeat *entity.Heartbeat) error
}

type DirectoryStore interface {
	FindProject(ctx context.Context, id uuid.UUID) (*entity.Project, error)
	FindWorkspace(ctx context.Context, id uuid.UUID) (*entity.Workspace, error)
}

type CloudGateway interface {
	Start(ctx context.Context, vm *entity.VM) error
	Stop(ctx context.Context, vm *entity.VM) error
	Status(ctx context.Context, vm *entity.VM) (entity.PowerState, error)
}

// Pricer converts usage into credits.
type Pricer interface {
	Credits(vmType entity.VMType, seconds int64) (float64, error)
}

type CreditChecker interface {
	HasSufficientCredits(ctx context.Context, workspaceID uuid.UUID, vmType entity.VMType, seconds int64) (bool, error)
}

// BillingSink records usage and returns the billing transaction reference.
type BillingSink interface {
	RecordUsage(ctx context.Context, usage entity.UsageRecord) (string, error)
}

type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, message produce.SessionEventMessage) error
}
