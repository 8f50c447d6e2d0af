// Package testutil provides in-memory stand-ins for the stores and remote
// collaborators used by the session service and the sweeps.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"gorm.io/gorm"
)

// Store bundles the in-memory stores so tests can seed and inspect one place.
type Store struct {
	VMs        *VMStore
	Sessions   *SessionStore
	Heartbeats *HeartbeatStore
	Directory  *Directory
}

func NewStore() *Store {
	heartbeats := &HeartbeatStore{}
	return &Store{
		VMs:        &VMStore{vms: make(map[uuid.UUID]*entity.VM)},
		Sessions:   &SessionStore{sessions: make(map[uuid.UUID]*entity.Session), heartbeats: heartbeats},
		Heartbeats: heartbeats,
		Directory: &Directory{
			projects:   make(map[uuid.UUID]*entity.Project),
			workspaces: make(map[uuid.UUID]*entity.Workspace),
		},
	}
}

type VMStore struct {
	mu  sync.Mutex
	vms map[uuid.UUID]*entity.VM
}

func (s *VMStore) Put(vm *entity.VM) *entity.VM {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vm.ID == uuid.Nil {
		vm.ID = uuid.New()
	}
	cp := *vm
	s.vms[vm.ID] = &cp
	return vm
}

// Get returns a copy of the stored VM, or nil.
func (s *VMStore) Get(id uuid.UUID) *entity.VM {
	s.mu.Lock()
	defer s.mu.Unlock()
	vm, ok := s.vms[id]
	if !ok {
		return nil
	}
	cp := *vm
	return &cp
}

func (s *VMStore) FindByID(_ context.Context, id uuid.UUID) (*entity.VM, error) {
	if vm := s.Get(id); vm != nil {
		return vm, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *VMStore) FindAll(_ context.Context) ([]entity.VM, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.VM, 0, len(s.vms))
	for _, vm := range s.vms {
		out = append(out, *vm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *VMStore) FindAvailable(_ context.Context, projectID uuid.UUID, vmType entity.VMType, limit int) ([]entity.VM, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.VM
	for _, vm := range s.vms {
		if vm.ProjectID != projectID || vm.VMType != vmType || vm.CurrentSessionID != nil || vm.IsBusy {
			continue
		}
		if !startable(vm.Status) {
			continue
		}
		out = append(out, *vm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func startable(status entity.VMStatus) bool {
	for _, s := range entity.StartableVMStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s *VMStore) Claim(_ context.Context, vmID, sessionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vm, ok := s.vms[vmID]
	if !ok || vm.CurrentSessionID != nil {
		return false, nil
	}
	id := sessionID
	vm.CurrentSessionID = &id
	vm.IsBusy = true
	vm.Status = entity.VMStatusStarting
	return true, nil
}

func (s *VMStore) Release(_ context.Context, vmID, sessionID uuid.UUID, status entity.VMStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vm, ok := s.vms[vmID]
	if !ok || vm.CurrentSessionID == nil || *vm.CurrentSessionID != sessionID {
		return false, nil
	}
	vm.CurrentSessionID = nil
	vm.IsBusy = false
	vm.Status = status
	return true, nil
}

func (s *VMStore) CompareAndSetStatus(_ context.Context, id uuid.UUID, expected, next entity.VMStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vm, ok := s.vms[id]
	if !ok || vm.Status != expected {
		return false, nil
	}
	vm.Status = next
	return true, nil
}

func (s *VMStore) MarkDeallocated(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vm, ok := s.vms[id]
	if !ok || vm.CurrentSessionID != nil {
		return false, nil
	}
	vm.Status = entity.VMStatusDeallocated
	vm.IsBusy = false
	return true, nil
}

func (s *VMStore) StampReconciled(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if vm, ok := s.vms[id]; ok {
		t := at
		vm.LastReconciledAt = &t
	}
	return nil
}

type SessionStore struct {
	mu         sync.Mutex
	sessions   map[uuid.UUID]*entity.Session
	heartbeats *HeartbeatStore
	// CreateErr, when set, is returned by Create.
	CreateErr error
	// CompleteErr, when set, is returned by Complete.
	CompleteErr error
}

func (s *SessionStore) Put(session *entity.Session) *entity.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return session
}

// Get returns a copy of the stored session, or nil.
func (s *SessionStore) Get(id uuid.UUID) *entity.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	cp := *session
	return &cp
}

func (s *SessionStore) All() []entity.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	return out
}

// Create enforces the one-open-session-per-user index.
func (s *SessionStore) Create(_ context.Context, session *entity.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	for _, existing := range s.sessions {
		if nonTerminal(existing.Status) && existing.UserID == session.UserID && nonTerminal(session.Status) {
			return gorm.ErrDuplicatedKey
		}
	}
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func nonTerminal(status entity.SessionStatus) bool {
	return !status.IsTerminal()
}

func (s *SessionStore) FindByID(_ context.Context, id uuid.UUID) (*entity.Session, error) {
	if session := s.Get(id); session != nil {
		return session, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *SessionStore) FindNonTerminalByUser(_ context.Context, userID uuid.UUID) (*entity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.UserID == userID && nonTerminal(session.Status) {
			cp := *session
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *SessionStore) ExistsNonTerminalForVM(_ context.Context, vmID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.VMID == vmID && nonTerminal(session.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (s *SessionStore) transition(id uuid.UUID, from []entity.SessionStatus, apply func(*entity.Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return false
	}
	for _, status := range from {
		if session.Status == status {
			apply(session)
			return true
		}
	}
	return false
}

func (s *SessionStore) MarkTerminating(_ context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	return s.transition(id, entity.ActiveSessionStatuses, func(session *entity.Session) {
		session.Status = entity.SessionStatusTerminating
		session.EndedAt = &at
		if reason != "" {
			session.FailureReason = reason
		}
	}), nil
}

func (s *SessionStore) Complete(_ context.Context, id uuid.UUID, status entity.SessionStatus, endedAt time.Time, credits float64, billingRef string) (bool, error) {
	s.mu.Lock()
	err := s.CompleteErr
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return s.transition(id, []entity.SessionStatus{entity.SessionStatusTerminating}, func(session *entity.Session) {
		session.Status = status
		session.EndedAt = &endedAt
		session.CreditsUsed = credits
		session.BillingTransactionID = billingRef
	}), nil
}

func (s *SessionStore) MarkFailed(_ context.Context, id uuid.UUID, reason string, endedAt time.Time) (bool, error) {
	return s.transition(id, []entity.SessionStatus{entity.SessionStatusStarting}, func(session *entity.Session) {
		session.Status = entity.SessionStatusFailed
		session.FailureReason = reason
		session.EndedAt = &endedAt
	}), nil
}

func (s *SessionStore) Activate(_ context.Context, id uuid.UUID) (bool, error) {
	return s.transition(id, []entity.SessionStatus{entity.SessionStatusStarting}, func(session *entity.Session) {
		session.Status = entity.SessionStatusActive
	}), nil
}

func (s *SessionStore) TouchHeartbeat(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return s.transition(id, entity.ActiveSessionStatuses, func(session *entity.Session) {
		session.LastHeartbeatAt = &at
	}), nil
}

func (s *SessionStore) filter(keep func(*entity.Session) bool) []entity.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Session
	for _, session := range s.sessions {
		if keep(session) {
			out = append(out, *session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (s *SessionStore) FindByStatuses(_ context.Context, statuses []entity.SessionStatus) ([]entity.Session, error) {
	return s.filter(func(session *entity.Session) bool {
		for _, status := range statuses {
			if session.Status == status {
				return true
			}
		}
		return false
	}), nil
}

func (s *SessionStore) FindStaleHeartbeats(_ context.Context, cutoff time.Time) ([]entity.Session, error) {
	return s.filter(func(session *entity.Session) bool {
		if !session.Status.IsActive() || !session.StartedAt.Before(cutoff) {
			return false
		}
		last := session.StartedAt
		if session.LastHeartbeatAt != nil {
			last = *session.LastHeartbeatAt
		}
		return last.Before(cutoff)
	}), nil
}

func (s *SessionStore) FindStartedBefore(_ context.Context, cutoff time.Time) ([]entity.Session, error) {
	return s.filter(func(session *entity.Session) bool {
		return session.Status.IsActive() && session.StartedAt.Before(cutoff)
	}), nil
}

func (s *SessionStore) FindStuckTerminating(_ context.Context, cutoff time.Time) ([]entity.Session, error) {
	return s.filter(func(session *entity.Session) bool {
		return session.Status == entity.SessionStatusTerminating && session.EndedAt != nil && session.EndedAt.Before(cutoff)
	}), nil
}

// SetCompleteErr changes the error Complete returns.
func (s *SessionStore) SetCompleteErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CompleteErr = err
}

func (s *SessionStore) FindArchivableIDs(_ context.Context, endedBefore time.Time, limit int) ([]uuid.UUID, error) {
	ended := s.filter(func(session *entity.Session) bool {
		return session.Status.IsTerminal() && session.EndedAt != nil && session.EndedAt.Before(endedBefore)
	})
	var ids []uuid.UUID
	for _, session := range ended {
		if s.heartbeats.count(session.ID) == 0 {
			continue
		}
		ids = append(ids, session.ID)
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids, nil
}

type HeartbeatStore struct {
	mu      sync.Mutex
	records []entity.Heartbeat
	// AppendErr, when set, is returned by Append.
	AppendErr error
}

func (s *HeartbeatStore) Append(_ context.Context, heartbeat *entity.Heartbeat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	if heartbeat.ID == uuid.Nil {
		heartbeat.ID = uuid.New()
	}
	s.records = append(s.records, *heartbeat)
	return nil
}

func (s *HeartbeatStore) ListBySession(_ context.Context, sessionID uuid.UUID) ([]entity.Heartbeat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Heartbeat
	for _, hb := range s.records {
		if hb.SessionID == sessionID {
			out = append(out, hb)
		}
	}
	return out, nil
}

func (s *HeartbeatStore) DeleteBySession(_ context.Context, sessionID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	var deleted int64
	for _, hb := range s.records {
		if hb.SessionID == sessionID {
			deleted++
			continue
		}
		kept = append(kept, hb)
	}
	s.records = kept
	return deleted, nil
}

func (s *HeartbeatStore) count(sessionID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, hb := range s.records {
		if hb.SessionID == sessionID {
			n++
		}
	}
	return n
}

type Directory struct {
	mu         sync.Mutex
	projects   map[uuid.UUID]*entity.Project
	workspaces map[uuid.UUID]*entity.Workspace
}

// AddWorkspace registers a project (if new) and a workspace inside it.
func (d *Directory) AddWorkspace(projectID, workspaceID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.projects[projectID]; !ok {
		d.projects[projectID] = &entity.Project{ID: projectID, OrganizationID: uuid.New(), Name: "project"}
	}
	d.workspaces[workspaceID] = &entity.Workspace{ID: workspaceID, ProjectID: projectID, Name: "workspace"}
}

func (d *Directory) FindProject(_ context.Context, id uuid.UUID) (*entity.Project, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.projects[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (d *Directory) FindWorkspace(_ context.Context, id uuid.UUID) (*entity.Workspace, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok := d.workspaces[id]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}
