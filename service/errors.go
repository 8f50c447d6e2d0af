package service

import (
	"errors"
	"fmt"
)

// Kind classifies an orchestrator failure for callers that map it onto a transport.
type Kind string

const (
	KindValidation Kind = "validation"
	KindCapacity   Kind = "capacity"
	KindOwnership  Kind = "ownership"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindCloud      Kind = "cloud"
	KindInternal   Kind = "internal"
)

var (
	ErrMissingUser         = errors.New("requester identity is required")
	ErrInvalidVMType       = errors.New("unknown vm type")
	ErrProjectNotFound     = errors.New("project not found")
	ErrWorkspaceNotFound   = errors.New("workspace not found")
	ErrWorkspaceMismatch   = errors.New("workspace does not belong to project")
	ErrActiveSessionExists = errors.New("user already has an open session")
	ErrInsufficientCredits = errors.New("insufficient workspace credits")
	ErrNoCapacity          = errors.New("no available vm of the requested type")
	ErrSessionNotFound     = errors.New("session not found")
	ErrNotOwner            = errors.New("session belongs to another user")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrCloudStart          = errors.New("cloud start failed")
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind carried by err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
