package dto

import "github.com/tnqbao/gau-vm-session-service/service"

type StartSessionRequestDTO struct {
	ProjectID   string `json:"project_id" binding:"required,uuid"`
	WorkspaceID string `json:"workspace_id" binding:"required,uuid"`
	VMType      string `json:"vm_type" binding:"required"`
	Location    string `json:"location" binding:"max=128"`
}

// HeartbeatRequestDTO is sent by the agent running inside the session VM
type HeartbeatRequestDTO struct {
	Status        string   `json:"status" binding:"max=64"`
	CPUPercent    *float64 `json:"cpu_percent" binding:"omitempty,min=0,max=100"`
	MemoryPercent *float64 `json:"memory_percent" binding:"omitempty,min=0,max=100"`
}

type HeartbeatResponseDTO struct {
	Accepted bool `json:"accepted"`
}

type TerminateSessionRequestDTO struct {
	Reason string `json:"reason" binding:"max=255"`
	// Async hands the termination to the worker through the queue
	Async bool `json:"async"`
}

type TerminateQueuedResponseDTO struct {
	SessionID string `json:"session_id"`
	Queued    bool   `json:"queued"`
}

type ActiveSessionResponseDTO struct {
	Session *service.SessionView `json:"session"`
}
