package sweep

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"github.com/tnqbao/gau-vm-session-service/service"
)

type SessionFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error)
	FindByStatuses(ctx context.Context, statuses []entity.SessionStatus) ([]entity.Session, error)
	FindStaleHeartbeats(ctx context.Context, cutoff time.Time) ([]entity.Session, error)
	FindStartedBefore(ctx context.Context, cutoff time.Time) ([]entity.Session, error)
	FindStuckTerminating(ctx context.Context, cutoff time.Time) ([]entity.Session, error)
}

type VMStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*entity.VM, error)
	FindAll(ctx context.Context) ([]entity.VM, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next entity.VMStatus) (bool, error)
	MarkDeallocated(ctx context.Context, id uuid.UUID) (bool, error)
	StampReconciled(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Gateway interface {
	Stop(ctx context.Context, vm *entity.VM) error
	Status(ctx context.Context, vm *entity.VM) (entity.PowerState, error)
}

// Terminator ends a session through the shared stop path.
type Terminator interface {
	ForceTerminate(ctx context.Context, sessionID uuid.UUID, reason string) (*service.SessionView, error)
	FinishTerminating(ctx context.Context, sessionID uuid.UUID) (*service.SessionView, error)
}

type ArchiveSessionFinder interface {
	FindArchivableIDs(ctx context.Context, endedBefore time.Time, limit int) ([]uuid.UUID, error)
}

type HeartbeatArchive interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]entity.Heartbeat, error)
	DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

type ObjectWriter interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// Lease grants one replica the right to run a sweep for ttl.
type Lease interface {
	AcquireLease(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
}
