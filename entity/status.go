package entity

// VMType is the size class a session asks for
type VMType string

const (
	VMTypeSmall  VMType = "small"
	VMTypeMedium VMType = "medium"
	VMTypeLarge  VMType = "large"
	VMTypeXLarge VMType = "xlarge"
	VMTypeGPU    VMType = "gpu"
)

var knownVMTypes = map[VMType]struct{}{
	VMTypeSmall:  {},
	VMTypeMedium: {},
	VMTypeLarge:  {},
	VMTypeXLarge: {},
	VMTypeGPU:    {},
}

func (t VMType) Valid() bool {
	_, ok := knownVMTypes[t]
	return ok
}

// VMStatus is the stored lifecycle status of a VM resource
type VMStatus string

const (
	VMStatusAvailable   VMStatus = "available"
	VMStatusStarting    VMStatus = "starting"
	VMStatusRunning     VMStatus = "running"
	VMStatusStopping    VMStatus = "stopping"
	VMStatusStopped     VMStatus = "stopped"
	VMStatusDeallocated VMStatus = "deallocated"
	VMStatusError       VMStatus = "error"
)

// StartableVMStatuses are the stored statuses a VM may be claimed from
var StartableVMStatuses = []VMStatus{VMStatusAvailable, VMStatusStopped, VMStatusDeallocated}

// PowerState is the cloud provider's view of a VM, normalized
type PowerState string

const (
	PowerStateRunning     PowerState = "running"
	PowerStateStopped     PowerState = "stopped"
	PowerStateDeallocated PowerState = "deallocated"
	PowerStateStarting    PowerState = "starting"
	PowerStateStopping    PowerState = "stopping"
	PowerStateError       PowerState = "error"
)

// Conclusive reports whether callers may act on this reading.
func (p PowerState) Conclusive() bool {
	switch p {
	case PowerStateRunning, PowerStateStopped, PowerStateDeallocated, PowerStateStarting, PowerStateStopping:
		return true
	default:
		return false
	}
}

// VMStatus returns the stored status matching a conclusive power state.
func (p PowerState) VMStatus() VMStatus {
	switch p {
	case PowerStateRunning:
		return VMStatusRunning
	case PowerStateStopped:
		return VMStatusStopped
	case PowerStateDeallocated:
		return VMStatusDeallocated
	case PowerStateStarting:
		return VMStatusStarting
	case PowerStateStopping:
		return VMStatusStopping
	default:
		return VMStatusError
	}
}

// SessionStatus represents the lifecycle status of a session
type SessionStatus string

const (
	SessionStatusStarting    SessionStatus = "starting"
	SessionStatusActive      SessionStatus = "active"
	SessionStatusTerminating SessionStatus = "terminating"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusFailed      SessionStatus = "failed"
	SessionStatusTerminated  SessionStatus = "terminated"
)

var (
	// ActiveSessionStatuses may still be stopped or terminated.
	ActiveSessionStatuses = []SessionStatus{SessionStatusStarting, SessionStatusActive}

	// NonTerminalSessionStatuses hold a VM and count against the one-session-per-user rule.
	NonTerminalSessionStatuses = []SessionStatus{SessionStatusStarting, SessionStatusActive, SessionStatusTerminating}
)

func (s SessionStatus) IsActive() bool {
	return s == SessionStatusStarting || s == SessionStatusActive
}

func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusTerminated:
		return true
	default:
		return false
	}
}
