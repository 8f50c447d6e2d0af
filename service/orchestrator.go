package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/clock"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"github.com/tnqbao/gau-vm-session-service/infra"
	"github.com/tnqbao/gau-vm-session-service/infra/produce"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/tnqbao/gau-vm-session-service/service")

const ReasonAdminTerminate = "terminated by administrator"

const (
	completeAttempts   = 3
	completeRetryDelay = 500 * time.Millisecond
)

type Deps struct {
	VMs        VMStore
	Sessions   SessionStore
	Heartbeats HeartbeatStore
	Directory  DirectoryStore
	Gateway    CloudGateway
	Pricer     Pricer
	Credits    CreditChecker
	Billing    BillingSink
	Events     EventPublisher
	Logger     *infra.LoggerClient
	Metrics    *infra.MetricsClient
	Clock      clock.Clock
}

type Options struct {
	// MinimumCreditSeconds is the usage a workspace must be able to afford before a start.
	MinimumCreditSeconds int64
	// CandidateLimit caps how many free VMs one lookup returns. Start keeps
	// looking until it claims one or the pool is exhausted.
	CandidateLimit int
}

// Orchestrator owns VM assignment and the session state machine.
type Orchestrator struct {
	vms        VMStore
	sessions   SessionStore
	heartbeats HeartbeatStore
	directory  DirectoryStore
	gateway    CloudGateway
	pricer     Pricer
	credits    CreditChecker
	billing    BillingSink
	events     EventPublisher
	logger     *infra.LoggerClient
	metrics    *infra.MetricsClient
	clock      clock.Clock

	minimumCreditSeconds int64
	candidateLimit       int
}

func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = infra.NewDiscardLogger()
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if opts.MinimumCreditSeconds <= 0 {
		opts.MinimumCreditSeconds = 60
	}
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = 5
	}

	return &Orchestrator{
		vms:                  deps.VMs,
		sessions:             deps.Sessions,
		heartbeats:           deps.Heartbeats,
		directory:            deps.Directory,
		gateway:              deps.Gateway,
		pricer:               deps.Pricer,
		credits:              deps.Credits,
		billing:              deps.Billing,
		events:               deps.Events,
		logger:               deps.Logger,
		metrics:              deps.Metrics,
		clock:                deps.Clock,
		minimumCreditSeconds: opts.MinimumCreditSeconds,
		candidateLimit:       opts.CandidateLimit,
	}
}

type StartInput struct {
	ProjectID   uuid.UUID
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
	VMType      entity.VMType
	Client      entity.ClientContext
}

type HeartbeatInput struct {
	Status        string
	CPUPercent    *float64
	MemoryPercent *float64
}

// Start validates the request, claims a free VM and powers it on.
func (o *Orchestrator) Start(ctx context.Context, in StartInput) (view *SessionView, err error) {
	const op = "session.start"
	ctx, span := tracer.Start(ctx, "Orchestrator.Start", trace.WithAttributes(
		attribute.String("user.id", in.UserID.String()),
		attribute.String("vm.type", string(in.VMType)),
	))
	defer func() {
		endSpan(span, err)
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
		}
		o.metrics.ObserveSessionStart(string(in.VMType), outcome)
	}()

	project, err := o.validateStart(ctx, op, in)
	if err != nil {
		return nil, err
	}

	existing, err := o.sessions.FindNonTerminalByUser(ctx, in.UserID)
	if err != nil {
		return nil, newError(KindInternal, op, err)
	}
	if existing != nil {
		return nil, newError(KindConflict, op, ErrActiveSessionExists)
	}

	sufficient, err := o.credits.HasSufficientCredits(ctx, in.WorkspaceID, in.VMType, o.minimumCreditSeconds)
	if err != nil {
		return nil, newError(KindInternal, op, fmt.Errorf("credit check: %w", err))
	}
	if !sufficient {
		return nil, newError(KindCapacity, op, ErrInsufficientCredits)
	}

	sessionID := uuid.New()
	vm, previous, err := o.claimVM(ctx, in, sessionID)
	if err != nil {
		return nil, newError(KindInternal, op, err)
	}
	if vm == nil {
		return nil, newError(KindCapacity, op, ErrNoCapacity)
	}
	span.SetAttributes(attribute.String("session.id", sessionID.String()), attribute.String("vm.id", vm.ID.String()))

	session := &entity.Session{
		ID:             sessionID,
		VMID:           vm.ID,
		ProjectID:      in.ProjectID,
		WorkspaceID:    in.WorkspaceID,
		OrganizationID: project.OrganizationID,
		UserID:         in.UserID,
		VMType:         in.VMType,
		Status:         entity.SessionStatusStarting,
		StartedAt:      o.clock.Now(),
		ClientContext:  datatypes.NewJSONType(in.Client),
	}
	if err := o.sessions.Create(ctx, session); err != nil {
		o.releaseVM(ctx, vm.ID, sessionID, previous)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, newError(KindConflict, op, ErrActiveSessionExists)
		}
		return nil, newError(KindInternal, op, fmt.Errorf("create session: %w", err))
	}

	if err := o.gateway.Start(ctx, vm); err != nil {
		o.logger.ErrorWithContextf(ctx, err, "[Orchestrator] Cloud start failed for VM %s (session %s): %v", vm.ID, sessionID, err)
		o.rollbackStart(ctx, session, vm.ID, previous, err)
		return nil, newError(KindCloud, op, fmt.Errorf("%w: %v", ErrCloudStart, err))
	}

	current, err := o.sessions.FindByID(ctx, sessionID)
	if err != nil {
		o.logger.WarningWithContextf(ctx, "[Orchestrator] Failed to re-read session %s after cloud start: %v", sessionID, err)
	} else if !current.Status.IsActive() {
		// A terminator won while the VM was powering on; its stop may have landed first.
		o.logger.WarningWithContextf(ctx, "[Orchestrator] Session %s became %s during cloud start, stopping VM %s", sessionID, current.Status, vm.ID)
		o.stopOrphanedVM(ctx, vm.ID, sessionID)
		return nil, newError(KindConflict, op, fmt.Errorf("%w: %s", ErrSessionNotActive, current.Status))
	}

	o.logger.InfoWithContextf(ctx, "[Orchestrator] Session %s started on VM %s for user %s", sessionID, vm.ID, in.UserID)
	o.publish(ctx, produce.SessionStartedRoutingKey, session, "")

	return &SessionView{Session: session, VM: describeVM(vm)}, nil
}

func (o *Orchestrator) validateStart(ctx context.Context, op string, in StartInput) (*entity.Project, error) {
	if in.UserID == uuid.Nil {
		return nil, newError(KindValidation, op, ErrMissingUser)
	}
	if !in.VMType.Valid() {
		return nil, newError(KindValidation, op, fmt.Errorf("%w: %q", ErrInvalidVMType, in.VMType))
	}

	project, err := o.directory.FindProject(ctx, in.ProjectID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindValidation, op, ErrProjectNotFound)
	}
	if err != nil {
		return nil, newError(KindInternal, op, err)
	}

	workspace, err := o.directory.FindWorkspace(ctx, in.WorkspaceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindValidation, op, ErrWorkspaceNotFound)
	}
	if err != nil {
		return nil, newError(KindInternal, op, err)
	}
	if workspace.ProjectID != project.ID {
		return nil, newError(KindValidation, op, ErrWorkspaceMismatch)
	}

	return project, nil
}

// claimVM walks the candidates and claims the first one no other session
// holds. Candidates lost to concurrent starts are skipped and the pool is
// queried again. A nil VM with a nil error means the pool is exhausted.
func (o *Orchestrator) claimVM(ctx context.Context, in StartInput, sessionID uuid.UUID) (*entity.VM, entity.VMStatus, error) {
	tried := make(map[uuid.UUID]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		candidates, err := o.vms.FindAvailable(ctx, in.ProjectID, in.VMType, o.candidateLimit+len(tried))
		if err != nil {
			return nil, "", fmt.Errorf("find available vms: %w", err)
		}

		fresh := 0
		for i := range candidates {
			vm := &candidates[i]
			if _, seen := tried[vm.ID]; seen {
				continue
			}
			tried[vm.ID] = struct{}{}
			fresh++

			busy, err := o.sessions.ExistsNonTerminalForVM(ctx, vm.ID)
			if err != nil {
				o.logger.WarningWithContextf(ctx, "[Orchestrator] Skipping VM %s, session check failed: %v", vm.ID, err)
				continue
			}
			if busy {
				continue
			}

			claimed, err := o.vms.Claim(ctx, vm.ID, sessionID)
			if err != nil {
				o.logger.WarningWithContextf(ctx, "[Orchestrator] Skipping VM %s, claim failed: %v", vm.ID, err)
				continue
			}
			if !claimed {
				o.logger.DebugWithContextf(ctx, "[Orchestrator] VM %s claimed concurrently, trying next candidate", vm.ID)
				continue
			}

			previous := vm.Status
			vm.CurrentSessionID = &sessionID
			vm.IsBusy = true
			vm.Status = entity.VMStatusStarting
			return vm, previous, nil
		}

		if fresh == 0 {
			return nil, "", nil
		}
	}
}

// stopOrphanedVM powers off a VM whose session ended before its cloud start
// returned, unless the VM has already been handed to another session.
func (o *Orchestrator) stopOrphanedVM(ctx context.Context, vmID, sessionID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	vm, err := o.vms.FindByID(ctx, vmID)
	if err != nil {
		o.logger.ErrorWithContextf(ctx, err, "[Orchestrator] VM %s not loadable, cannot stop it: %v", vmID, err)
		return
	}
	if vm.CurrentSessionID != nil && *vm.CurrentSessionID != sessionID {
		o.logger.WarningWithContextf(ctx, "[Orchestrator] VM %s already belongs to session %s, leaving it running", vmID, *vm.CurrentSessionID)
		return
	}
	if err := o.gateway.Stop(ctx, vm); err != nil {
		o.logger.ErrorWithContextf(ctx, err, "[Orchestrator] Cloud stop failed for orphaned VM %s: %v", vmID, err)
	}
}

func (o *Orchestrator) rollbackStart(ctx context.Context, session *entity.Session, vmID uuid.UUID, previous entity.VMStatus, cause error) {
	ctx = context.WithoutCancel(ctx)
	o.releaseVM(ctx, vmID, session.ID, previous)

	now := o.clock.Now()
	reason := fmt.Sprintf("cloud start failed: %v", cause)
	if _, err := o.sessions.MarkFailed(ctx, session.ID, reason, now); err != nil {
		o.logger.ErrorWithContextf(ctx, err, "[Orchestrator] Failed to mark session %s failed: %v", session.ID, err)
	}
	session.Status = entity.SessionStatusFailed
	session.FailureReason = reason
	session.EndedAt = &now

	o.metrics.ObserveSessionEnd(string(session.VMType), string(entity.SessionStatusFailed), 0)
	o.publish(ctx, produce.SessionFailedRoutingKey, session, reason)
}

func (o *Orchestrator) releaseVM(ctx context.Context, vmID, sessionID uuid.UUID, status entity.VMStatus) {
	released, err := o.vms.Release(ctx, vmID, sessionID, status)
	if err != nil {
		o.logger.ErrorWithContextf(ctx, err, "[Orchestrator] Failed to release VM %s from session %s: %v", vmID, sessionID, err)
		return
	}
	if !released {
		o.logger.WarningWithContextf(ctx, "[Orchestrator] VM %s was no longer held by session %s", vmID, sessionID)
	}
}

// Stop ends the requester's own session.
func (o *Orchestrator) Stop(ctx context.Context, sessionID, requester uuid.UUID) (view *SessionView, err error) {
	const op = "session.stop"
	ctx, span := tracer.Start(ctx, "Orchestrator.Stop", trace.WithAttributes(attribute.String("session.id", sessionID.String())))
	defer func() { endSpan(span, err) }()

	session, err := o.findSession(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != requester {
		return nil, newError(KindOwnership, op, ErrNotOwner)
	}
	if !session.Status.IsActive() {
		return nil, newError(KindConflict, op, fmt.Errorf("%w: %s", ErrSessionNotActive, session.Status))
	}

	return o.stopSessionInternal(ctx, sessionID, "", entity.SessionStatusCompleted)
}

// ForceTerminate ends a session regardless of owner. Used by administrators,
// the liveness monitor and the reconciler.
func (o *Orchestrator) ForceTerminate(ctx context.Context, sessionID uuid.UUID, reason string) (view *SessionView, err error) {
	const op = "session.force_terminate"
	ctx, span := tracer.Start(ctx, "Orchestrator.ForceTerminate", trace.WithAttributes(
		attribute.String("session.id", sessionID.String()),
		attribute.String("reason", reason),
	))
	defer func() { endSpan(span, err) }()

	if _, err := o.findSession(ctx, op, sessionID); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = ReasonAdminTerminate
	}
	return o.stopSessionInternal(ctx, sessionID, reason, entity.SessionStatusTerminated)
}

// stopSessionInternal is the only path that ends a started session. The
// caller that flips the session to terminating bills it and releases the
// VM; every other caller gets the current row back untouched.
func (o *Orchestrator) stopSessionInternal(ctx context.Context, sessionID uuid.UUID, reason string, terminal entity.SessionStatus) (*SessionView, error) {
	const op = "session.stop_internal"

	won, err := o.sessions.MarkTerminating(ctx, sessionID, reason, o.clock.Now())
	if err != nil {
		return nil, newError(KindInternal, op, err)
	}
	if !won {
		o.logger.DebugWithContextf(ctx, "[Orchestrator] Session %s already leaving the active state, nothing to do", sessionID)
		return o.GetSession(ctx, sessionID)
	}

	// Once terminating, the close-out must finish even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	session, err := o.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, newError(KindInternal, op, err)
	}

	vm := o.loadVM(ctx, session)
	if vm != nil {
		if err := o.gateway.Stop(ctx, vm); err != nil {
			o.logger.WarningWithContextf(ctx, "[Orchestrator] Cloud stop failed for VM %s (session %s), closing session anyway: %v", vm.ID, sessionID, err)
		}
	}

	return o.closeOut(ctx, op, session, vm, reason, terminal, o.clock.Now())
}

// FinishTerminating completes a session left in terminating by a close-out
// that never reached its final write. Usage is recorded again under the same
// session id, which the billing sink deduplicates. Sessions in any other
// status are returned unchanged.
func (o *Orchestrator) FinishTerminating(ctx context.Context, sessionID uuid.UUID) (view *SessionView, err error) {
	const op = "session.finish_terminating"
	ctx, span := tracer.Start(ctx, "Orchestrator.FinishTerminating", trace.WithAttributes(attribute.String("session.id", sessionID.String())))
	defer func() { endSpan(span, err) }()

	session, err := o.findSession(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != entity.SessionStatusTerminating {
		return o.view(ctx, session), nil
	}

	ctx = context.WithoutCancel(ctx)
	o.logger.WarningWithContextf(ctx, "[Orchestrator] Finishing close-out of session %s stuck in terminating", sessionID)

	// Forced terminations always carry a reason; user stops never do.
	terminal := entity.SessionStatusCompleted
	if session.FailureReason != "" {
		terminal = entity.SessionStatusTerminated
	}

	vm := o.loadVM(ctx, session)
	if vm != nil && vm.CurrentSessionID != nil && *vm.CurrentSessionID == sessionID {
		if err := o.gateway.Stop(ctx, vm); err != nil {
			o.logger.WarningWithContextf(ctx, "[Orchestrator] Cloud stop failed for VM %s (session %s), closing session anyway: %v", vm.ID, sessionID, err)
		}
	}

	endedAt := o.clock.Now()
	if session.EndedAt != nil {
		endedAt = *session.EndedAt
	}
	return o.closeOut(ctx, op, session, vm, session.FailureReason, terminal, endedAt)
}

func (o *Orchestrator) loadVM(ctx context.Context, session *entity.Session) *entity.VM {
	vm, err := o.vms.FindByID(ctx, session.VMID)
	if err != nil {
		o.logger.ErrorWithContextf(ctx, err, "[Orchestrator] VM %s of session %s not loadable, skipping cloud stop: %v", session.VMID, session.ID, err)
		return nil
	}
	return vm
}

// closeOut bills a terminating session, records its terminal status and
// frees its VM. The VM is released even when the final write fails; the
// session then stays terminating until FinishTerminating picks it up.
func (o *Orchestrator) closeOut(ctx context.Context, op string, session *entity.Session, vm *entity.VM, reason string, terminal entity.SessionStatus, endedAt time.Time) (*SessionView, error) {
	sessionID := session.ID
	seconds := elapsedSeconds(session.StartedAt, endedAt)

	credits, err := o.pricer.Credits(session.VMType, seconds)
	if err != nil {
		o.logger.ErrorWithContextf(ctx, err, "[Orchestrator] Pricing failed for session %s: %v", sessionID, err)
		credits = 0
	}

	billingRef, err := o.billing.RecordUsage(ctx, entity.UsageRecord{
		SessionID:   session.ID,
		WorkspaceID: session.WorkspaceID,
		ProjectID:   session.ProjectID,
		UserID:      session.UserID,
		VMType:      session.VMType,
		Seconds:     seconds,
		Credits:     credits,
	})
	if err != nil {
		billingRef = ""
		o.logger.ErrorWithContextf(ctx, err, "[Orchestrator] Billing failed for session %s (%d s, %.2f credits): %v", sessionID, seconds, credits, err)
		failed := *session
		failed.CreditsUsed = credits
		o.publish(ctx, produce.SessionBillingFailedRoutingKey, &failed, err.Error())
	}

	completed, completeErr := o.complete(ctx, sessionID, terminal, endedAt, credits, billingRef)

	o.releaseVM(ctx, session.VMID, sessionID, entity.VMStatusStopped)

	if completeErr != nil {
		o.logger.ErrorWithContextf(ctx, completeErr, "[Orchestrator] Session %s left terminating, VM %s released: %v", sessionID, session.VMID, completeErr)
		return nil, newError(KindInternal, op, fmt.Errorf("complete session: %w", completeErr))
	}
	if !completed {
		o.logger.WarningWithContextf(ctx, "[Orchestrator] Session %s left terminating before completion", sessionID)
		return o.GetSession(ctx, sessionID)
	}

	session.Status = terminal
	session.EndedAt = &endedAt
	session.CreditsUsed = credits
	session.BillingTransactionID = billingRef
	if reason != "" {
		session.FailureReason = reason
	}

	routingKey := produce.SessionCompletedRoutingKey
	if terminal == entity.SessionStatusTerminated {
		routingKey = produce.SessionTerminatedRoutingKey
	}
	o.publish(ctx, routingKey, session, reason)
	o.metrics.ObserveSessionEnd(string(session.VMType), string(terminal), credits)

	o.logger.InfoWithContextf(ctx, "[Orchestrator] Session %s %s after %d s, %.2f credits, billing ref %q",
		sessionID, terminal, seconds, credits, billingRef)

	if vm != nil {
		vm.CurrentSessionID = nil
		vm.IsBusy = false
		vm.Status = entity.VMStatusStopped
	}
	return &SessionView{Session: session, VM: describeVM(vm)}, nil
}

func (o *Orchestrator) complete(ctx context.Context, sessionID uuid.UUID, terminal entity.SessionStatus, endedAt time.Time, credits float64, billingRef string) (bool, error) {
	var err error
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		var ok bool
		ok, err = o.sessions.Complete(ctx, sessionID, terminal, endedAt, credits, billingRef)
		if err == nil {
			return ok, nil
		}
		o.logger.WarningWithContextf(ctx, "[Orchestrator] Attempt %d/%d to complete session %s failed: %v", attempt, completeAttempts, sessionID, err)
		if attempt < completeAttempts {
			<-o.clock.After(time.Duration(attempt) * completeRetryDelay)
		}
	}
	return false, err
}

// Heartbeat records a liveness sample. It returns false without error for
// unknown or ended sessions so agents can stop reporting quietly.
func (o *Orchestrator) Heartbeat(ctx context.Context, sessionID, requester uuid.UUID, in HeartbeatInput) (bool, error) {
	const op = "session.heartbeat"

	session, err := o.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, newError(KindInternal, op, err)
	}
	if session.UserID != requester {
		return false, newError(KindOwnership, op, ErrNotOwner)
	}
	if !session.Status.IsActive() {
		return false, nil
	}

	now := o.clock.Now()
	status := in.Status
	if status == "" {
		status = "ok"
	}
	if err := o.heartbeats.Append(ctx, &entity.Heartbeat{
		ID:            uuid.New(),
		SessionID:     sessionID,
		Status:        status,
		CPUPercent:    in.CPUPercent,
		MemoryPercent: in.MemoryPercent,
		RecordedAt:    now,
	}); err != nil {
		return false, newError(KindInternal, op, err)
	}

	touched, err := o.sessions.TouchHeartbeat(ctx, sessionID, now)
	if err != nil {
		return false, newError(KindInternal, op, err)
	}
	if !touched {
		return false, nil
	}

	if session.Status == entity.SessionStatusStarting {
		if _, err := o.sessions.Activate(ctx, sessionID); err != nil {
			o.logger.WarningWithContextf(ctx, "[Orchestrator] Failed to activate session %s: %v", sessionID, err)
		}
	}
	return true, nil
}

func (o *Orchestrator) GetSession(ctx context.Context, sessionID uuid.UUID) (*SessionView, error) {
	session, err := o.findSession(ctx, "session.get", sessionID)
	if err != nil {
		return nil, err
	}
	return o.view(ctx, session), nil
}

// GetActiveSession returns the user's open session, or nil when there is none.
func (o *Orchestrator) GetActiveSession(ctx context.Context, userID uuid.UUID) (*SessionView, error) {
	session, err := o.sessions.FindNonTerminalByUser(ctx, userID)
	if err != nil {
		return nil, newError(KindInternal, "session.get_active", err)
	}
	if session == nil {
		return nil, nil
	}
	return o.view(ctx, session), nil
}

func (o *Orchestrator) findSession(ctx context.Context, op string, sessionID uuid.UUID) (*entity.Session, error) {
	session, err := o.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, op, ErrSessionNotFound)
	}
	if err != nil {
		return nil, newError(KindInternal, op, err)
	}
	return session, nil
}

func (o *Orchestrator) view(ctx context.Context, session *entity.Session) *SessionView {
	vm, err := o.vms.FindByID(ctx, session.VMID)
	if err != nil {
		o.logger.WarningWithContextf(ctx, "[Orchestrator] VM %s of session %s not loadable: %v", session.VMID, session.ID, err)
		return &SessionView{Session: session}
	}
	return &SessionView{Session: session, VM: describeVM(vm)}
}

func (o *Orchestrator) publish(ctx context.Context, routingKey string, session *entity.Session, reason string) {
	if o.events == nil {
		return
	}
	message := produce.SessionEventMessage{
		Event:                routingKey,
		SessionID:            session.ID.String(),
		VMID:                 session.VMID.String(),
		UserID:               session.UserID.String(),
		ProjectID:            session.ProjectID.String(),
		WorkspaceID:          session.WorkspaceID.String(),
		VMType:               string(session.VMType),
		Status:               string(session.Status),
		CreditsUsed:          session.CreditsUsed,
		BillingTransactionID: session.BillingTransactionID,
		Reason:               reason,
		OccurredAt:           o.clock.Now(),
	}
	if err := o.events.PublishSessionEvent(ctx, message); err != nil {
		o.logger.WarningWithContextf(ctx, "[Orchestrator] Failed to publish %s for session %s: %v", routingKey, session.ID, err)
	}
}

// elapsedSeconds rounds the session duration up to whole seconds.
func elapsedSeconds(start, end time.Time) int64 {
	d := end.Sub(start)
	if d <= 0 {
		return 0
	}
	seconds := int64(d / time.Second)
	if d%time.Second != 0 {
		seconds++
	}
	return seconds
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
