package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-vm-session-service/clock"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"github.com/tnqbao/gau-vm-session-service/infra/produce"
	"github.com/tnqbao/gau-vm-session-service/internal/testutil"
)

type harness struct {
	store   *testutil.Store
	gateway *testutil.Gateway
	credits *testutil.Credits
	billing *testutil.Billing
	events  *testutil.Events
	clock   *clock.Fake
	orch    *Orchestrator

	projectID   uuid.UUID
	workspaceID uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:       testutil.NewStore(),
		gateway:     testutil.NewGateway(),
		credits:     &testutil.Credits{Sufficient: true},
		billing:     &testutil.Billing{},
		events:      &testutil.Events{},
		clock:       clock.NewFake(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)),
		projectID:   uuid.New(),
		workspaceID: uuid.New(),
	}
	h.store.Directory.AddWorkspace(h.projectID, h.workspaceID)

	h.build(h.store.VMs, h.gateway)
	return h
}

// build wires the orchestrator over the harness fakes, with the VM store and
// gateway replaceable so tests can interleave concurrent actors.
func (h *harness) build(vms VMStore, gateway CloudGateway) {
	h.orch = NewOrchestrator(Deps{
		VMs:        vms,
		Sessions:   h.store.Sessions,
		Heartbeats: h.store.Heartbeats,
		Directory:  h.store.Directory,
		Gateway:    gateway,
		Pricer: NewRateTablePricer(map[entity.VMType]float64{
			entity.VMTypeSmall: 2.0,
			entity.VMTypeLarge: 8.0,
		}),
		Credits: h.credits,
		Billing: h.billing,
		Events:  h.events,
		Clock:   h.clock,
	}, Options{MinimumCreditSeconds: 60, CandidateLimit: 5})
}

func (h *harness) addVM(name string, vmType entity.VMType, status entity.VMStatus) *entity.VM {
	return h.store.VMs.Put(&entity.VM{
		ID:        uuid.New(),
		Name:      name,
		VMType:    vmType,
		Provider:  entity.CloudProviderAzure,
		ProjectID: h.projectID,
		Status:    status,
	})
}

func (h *harness) startInput(userID uuid.UUID) StartInput {
	return StartInput{
		ProjectID:   h.projectID,
		WorkspaceID: h.workspaceID,
		UserID:      userID,
		VMType:      entity.VMTypeSmall,
		Client:      entity.ClientContext{IPAddress: "10.0.0.1", UserAgent: "agent/1.0"},
	}
}

func (h *harness) start(t *testing.T, userID uuid.UUID) *SessionView {
	t.Helper()
	view, err := h.orch.Start(context.Background(), h.startInput(userID))
	require.NoError(t, err)
	return view
}

func TestStart_AssignsVM(t *testing.T) {
	h := newHarness(t)
	vm := h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusDeallocated)
	userID := uuid.New()

	view := h.start(t, userID)

	require.NotNil(t, view.VM)
	assert.Equal(t, vm.ID, view.VM.ID)
	assert.Equal(t, entity.SessionStatusStarting, view.Session.Status)
	assert.Equal(t, userID, view.Session.UserID)
	assert.Equal(t, "10.0.0.1", view.Session.ClientContext.Data().IPAddress)

	stored := h.store.VMs.Get(vm.ID)
	require.NotNil(t, stored.CurrentSessionID)
	assert.Equal(t, view.Session.ID, *stored.CurrentSessionID)
	assert.True(t, stored.IsBusy)

	assert.Equal(t, []uuid.UUID{vm.ID}, h.gateway.Starts)
	assert.Equal(t, []string{produce.SessionStartedRoutingKey}, h.events.Keys(view.Session.ID))
}

func TestStart_OneOpenSessionPerUser(t *testing.T) {
	h := newHarness(t)
	h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	h.addVM("vm-b", entity.VMTypeSmall, entity.VMStatusAvailable)
	userID := uuid.New()

	h.start(t, userID)

	_, err := h.orch.Start(context.Background(), h.startInput(userID))
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.ErrorIs(t, err, ErrActiveSessionExists)
	assert.Len(t, h.gateway.Starts, 1)
}

func TestStart_ConcurrentRequestsForLastVM(t *testing.T) {
	h := newHarness(t)
	vm := h.addVM("vm-last", entity.VMTypeSmall, entity.VMStatusAvailable)

	const contenders = 8
	var wg sync.WaitGroup
	results := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.orch.Start(context.Background(), h.startInput(uuid.New()))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, noCapacity int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrNoCapacity):
			noCapacity++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, contenders-1, noCapacity)

	open := 0
	for _, s := range h.store.Sessions.All() {
		if s.VMID == vm.ID && !s.Status.IsTerminal() {
			open++
		}
	}
	assert.Equal(t, 1, open)
}

// racingVMs claims every candidate it hands out for another session during
// the first rounds lookups, as if concurrent starts won each race.
type racingVMs struct {
	*testutil.VMStore
	mu     sync.Mutex
	rounds int
	lost   []uuid.UUID
}

func (r *racingVMs) FindAvailable(ctx context.Context, projectID uuid.UUID, vmType entity.VMType, limit int) ([]entity.VM, error) {
	vms, err := r.VMStore.FindAvailable(ctx, projectID, vmType, limit)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rounds > 0 {
		r.rounds--
		for _, vm := range vms {
			if ok, _ := r.VMStore.Claim(ctx, vm.ID, uuid.New()); ok {
				r.lost = append(r.lost, vm.ID)
			}
		}
	}
	return vms, nil
}

func TestStart_LookupsContinuePastLostCandidates(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 8; i++ {
		h.addVM(fmt.Sprintf("vm-%d", i), entity.VMTypeSmall, entity.VMStatusAvailable)
	}
	racer := &racingVMs{VMStore: h.store.VMs, rounds: 1}
	h.build(racer, h.gateway)

	view, err := h.orch.Start(context.Background(), h.startInput(uuid.New()))
	require.NoError(t, err)

	require.Len(t, racer.lost, 5)
	assert.NotContains(t, racer.lost, view.VM.ID)
	stored := h.store.VMs.Get(view.VM.ID)
	require.NotNil(t, stored.CurrentSessionID)
	assert.Equal(t, view.Session.ID, *stored.CurrentSessionID)
}

func TestStart_NoCapacityOnlyWhenPoolExhausted(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 8; i++ {
		h.addVM(fmt.Sprintf("vm-%d", i), entity.VMTypeSmall, entity.VMStatusAvailable)
	}
	racer := &racingVMs{VMStore: h.store.VMs, rounds: 2}
	h.build(racer, h.gateway)

	_, err := h.orch.Start(context.Background(), h.startInput(uuid.New()))
	assert.ErrorIs(t, err, ErrNoCapacity)
	assert.Len(t, racer.lost, 8)
	assert.Empty(t, h.store.Sessions.All())
}

// interruptingGateway ends the session from inside the cloud start, so the
// terminator's stop reaches the cloud before the start does.
type interruptingGateway struct {
	*testutil.Gateway
	interrupt func(sessionID uuid.UUID)
}

func (g *interruptingGateway) Start(ctx context.Context, vm *entity.VM) error {
	g.interrupt(*vm.CurrentSessionID)
	return g.Gateway.Start(ctx, vm)
}

func TestStart_SessionTerminatedDuringCloudStart(t *testing.T) {
	h := newHarness(t)
	vm := h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusDeallocated)
	gateway := &interruptingGateway{Gateway: h.gateway}
	h.build(h.store.VMs, gateway)
	gateway.interrupt = func(sessionID uuid.UUID) {
		_, err := h.orch.ForceTerminate(context.Background(), sessionID, "abuse")
		require.NoError(t, err)
	}

	_, err := h.orch.Start(context.Background(), h.startInput(uuid.New()))
	require.Error(t, err)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.ErrorIs(t, err, ErrSessionNotActive)

	sessions := h.store.Sessions.All()
	require.Len(t, sessions, 1)
	assert.Equal(t, entity.SessionStatusTerminated, sessions[0].Status)
	assert.NotContains(t, h.events.Keys(sessions[0].ID), produce.SessionStartedRoutingKey)

	assert.False(t, h.store.VMs.Get(vm.ID).InUse())
	assert.Equal(t, 2, h.gateway.StopCount(vm.ID))
	state, err := h.gateway.Status(context.Background(), vm)
	require.NoError(t, err)
	assert.Equal(t, entity.PowerStateDeallocated, state)
}

func TestStart_OrphanedVMHandedToAnotherSessionKeepsRunning(t *testing.T) {
	h := newHarness(t)
	vm := h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusDeallocated)
	gateway := &interruptingGateway{Gateway: h.gateway}
	h.build(h.store.VMs, gateway)
	next := uuid.New()
	gateway.interrupt = func(sessionID uuid.UUID) {
		_, err := h.orch.ForceTerminate(context.Background(), sessionID, "abuse")
		require.NoError(t, err)
		ok, err := h.store.VMs.Claim(context.Background(), vm.ID, next)
		require.NoError(t, err)
		require.True(t, ok)
	}

	_, err := h.orch.Start(context.Background(), h.startInput(uuid.New()))
	assert.Equal(t, KindConflict, KindOf(err))

	assert.Equal(t, 1, h.gateway.StopCount(vm.ID))
	stored := h.store.VMs.Get(vm.ID)
	require.NotNil(t, stored.CurrentSessionID)
	assert.Equal(t, next, *stored.CurrentSessionID)
}

func TestStart_InsufficientCredits(t *testing.T) {
	h := newHarness(t)
	vm := h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	h.credits.Sufficient = false

	_, err := h.orch.Start(context.Background(), h.startInput(uuid.New()))
	require.Error(t, err)
	assert.Equal(t, KindCapacity, KindOf(err))
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	assert.False(t, h.store.VMs.Get(vm.ID).InUse())
	assert.Empty(t, h.store.Sessions.All())
	assert.Empty(t, h.gateway.Starts)
}

func TestStart_NoCapacity(t *testing.T) {
	h := newHarness(t)
	h.addVM("vm-large", entity.VMTypeLarge, entity.VMStatusAvailable)
	h.addVM("vm-broken", entity.VMTypeSmall, entity.VMStatusError)

	_, err := h.orch.Start(context.Background(), h.startInput(uuid.New()))
	assert.Equal(t, KindCapacity, KindOf(err))
	assert.ErrorIs(t, err, ErrNoCapacity)
}

func TestStart_Validation(t *testing.T) {
	h := newHarness(t)
	h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)

	otherProject, otherWorkspace := uuid.New(), uuid.New()
	h.store.Directory.AddWorkspace(otherProject, otherWorkspace)

	tests := []struct {
		name   string
		mutate func(*StartInput)
		want   error
	}{
		{"missing user", func(in *StartInput) { in.UserID = uuid.Nil }, ErrMissingUser},
		{"unknown vm type", func(in *StartInput) { in.VMType = "huge" }, ErrInvalidVMType},
		{"unknown project", func(in *StartInput) { in.ProjectID = uuid.New() }, ErrProjectNotFound},
		{"unknown workspace", func(in *StartInput) { in.WorkspaceID = uuid.New() }, ErrWorkspaceNotFound},
		{"workspace of another project", func(in *StartInput) { in.WorkspaceID = otherWorkspace }, ErrWorkspaceMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := h.startInput(uuid.New())
			tt.mutate(&in)

			_, err := h.orch.Start(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Empty(t, h.store.Sessions.All())
	assert.Empty(t, h.gateway.Starts)
}

func TestStart_SkipsVMHeldByOpenSession(t *testing.T) {
	h := newHarness(t)
	stale := h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	free := h.addVM("vm-b", entity.VMTypeSmall, entity.VMStatusAvailable)

	// The VM row says unassigned but a session still references it.
	h.store.Sessions.Put(&entity.Session{
		VMID:      stale.ID,
		UserID:    uuid.New(),
		VMType:    entity.VMTypeSmall,
		Status:    entity.SessionStatusTerminating,
		StartedAt: h.clock.Now(),
	})

	view := h.start(t, uuid.New())
	assert.Equal(t, free.ID, view.VM.ID)
	assert.False(t, h.store.VMs.Get(stale.ID).InUse())
}

func TestStart_CloudFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	vm := h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusDeallocated)
	h.gateway.StartErr = errors.New("quota exceeded")

	_, err := h.orch.Start(context.Background(), h.startInput(uuid.New()))
	require.Error(t, err)
	assert.Equal(t, KindCloud, KindOf(err))
	assert.ErrorIs(t, err, ErrCloudStart)

	stored := h.store.VMs.Get(vm.ID)
	assert.False(t, stored.InUse())
	assert.False(t, stored.IsBusy)
	assert.Equal(t, entity.VMStatusDeallocated, stored.Status)

	sessions := h.store.Sessions.All()
	require.Len(t, sessions, 1)
	assert.Equal(t, entity.SessionStatusFailed, sessions[0].Status)
	assert.Contains(t, sessions[0].FailureReason, "quota exceeded")
	assert.NotNil(t, sessions[0].EndedAt)
	assert.Equal(t, []string{produce.SessionFailedRoutingKey}, h.events.Keys(sessions[0].ID))
	assert.Empty(t, h.billing.Records)
}

func TestStop_BillsElapsedTime(t *testing.T) {
	h := newHarness(t)
	vm := h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	userID := uuid.New()
	started := h.start(t, userID)

	h.clock.Advance(90 * time.Second)

	view, err := h.orch.Stop(context.Background(), started.Session.ID, userID)
	require.NoError(t, err)

	assert.Equal(t, entity.SessionStatusCompleted, view.Session.Status)
	assert.InDelta(t, 3.0, view.Session.CreditsUsed, 1e-9)
	assert.Equal(t, "txn-1", view.Session.BillingTransactionID)

	stored := h.store.Sessions.Get(started.Session.ID)
	assert.Equal(t, entity.SessionStatusCompleted, stored.Status)
	assert.InDelta(t, 3.0, stored.CreditsUsed, 1e-9)
	assert.Equal(t, "txn-1", stored.BillingTransactionID)
	require.NotNil(t, stored.EndedAt)
	assert.Equal(t, h.clock.Now(), *stored.EndedAt)

	records := h.billing.RecordsFor(started.Session.ID)
	require.Len(t, records, 1)
	assert.Equal(t, int64(90), records[0].Seconds)
	assert.Equal(t, h.workspaceID, records[0].WorkspaceID)

	storedVM := h.store.VMs.Get(vm.ID)
	assert.False(t, storedVM.InUse())
	assert.Equal(t, entity.VMStatusStopped, storedVM.Status)
	assert.Equal(t, 1, h.gateway.StopCount(vm.ID))

	assert.Equal(t, []string{produce.SessionStartedRoutingKey, produce.SessionCompletedRoutingKey}, h.events.Keys(started.Session.ID))
}

func TestStop_PartialSecondRoundsUp(t *testing.T) {
	h := newHarness(t)
	h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	userID := uuid.New()
	started := h.start(t, userID)

	h.clock.Advance(89*time.Second + 200*time.Millisecond)

	_, err := h.orch.Stop(context.Background(), started.Session.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(90), h.billing.RecordsFor(started.Session.ID)[0].Seconds)
}

func TestStop_Rejections(t *testing.T) {
	h := newHarness(t)
	h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	owner := uuid.New()
	started := h.start(t, owner)

	_, err := h.orch.Stop(context.Background(), uuid.New(), owner)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = h.orch.Stop(context.Background(), started.Session.ID, uuid.New())
	assert.Equal(t, KindOwnership, KindOf(err))
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = h.orch.Stop(context.Background(), started.Session.ID, owner)
	require.NoError(t, err)

	_, err = h.orch.Stop(context.Background(), started.Session.ID, owner)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.ErrorIs(t, err, ErrSessionNotActive)

	assert.Len(t, h.billing.Records, 1)
}

func TestStopSessionInternal_Idempotent(t *testing.T) {
	h := newHarness(t)
	vm := h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	started := h.start(t, uuid.New())
	h.clock.Advance(time.Minute)

	first, err := h.orch.stopSessionInternal(context.Background(), started.Session.ID, "", entity.SessionStatusCompleted)
	require.NoError(t, err)
	second, err := h.orch.stopSessionInternal(context.Background(), started.Session.ID, "", entity.SessionStatusCompleted)
	require.NoError(t, err)

	assert.Len(t, h.billing.RecordsFor(started.Session.ID), 1)
	assert.Equal(t, 1, h.gateway.StopCount(vm.ID))
	assert.Equal(t, first.Session.BillingTransactionID, second.Session.BillingTransactionID)
	assert.Equal(t, entity.SessionStatusCompleted, second.Session.Status)
}

func TestConcurrentTerminatorsBillOnce(t *testing.T) {
	h := newHarness(t)
	vm := h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	owner := uuid.New()
	started := h.start(t, owner)
	h.clock.Advance(5 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = h.orch.Stop(context.Background(), started.Session.ID, owner)
				return
			}
			_, _ = h.orch.ForceTerminate(context.Background(), started.Session.ID, "no heartbeat")
		}(i)
	}
	wg.Wait()

	assert.Len(t, h.billing.RecordsFor(started.Session.ID), 1)
	assert.Equal(t, 1, h.gateway.StopCount(vm.ID))
	assert.True(t, h.store.Sessions.Get(started.Session.ID).Status.IsTerminal())
	assert.False(t, h.store.VMs.Get(vm.ID).InUse())
}

func TestStop_CloudStopFailureStillClosesSession(t *testing.T) {
	h := newHarness(t)
	vm := h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	owner := uuid.New()
	started := h.start(t, owner)
	h.gateway.StopErr = errors.New("timeout")
	h.clock.Advance(30 * time.Second)

	view, err := h.orch.Stop(context.Background(), started.Session.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusCompleted, view.Session.Status)
	assert.InDelta(t, 1.0, view.Session.CreditsUsed, 1e-9)
	assert.False(t, h.store.VMs.Get(vm.ID).InUse())
}

func TestStop_BillingFailureIsReported(t *testing.T) {
	h := newHarness(t)
	h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	owner := uuid.New()
	started := h.start(t, owner)
	h.billing.Err = errors.New("credit service down")
	h.clock.Advance(90 * time.Second)

	view, err := h.orch.Stop(context.Background(), started.Session.ID, owner)
	require.NoError(t, err)

	assert.Equal(t, entity.SessionStatusCompleted, view.Session.Status)
	assert.Empty(t, view.Session.BillingTransactionID)
	assert.InDelta(t, 3.0, view.Session.CreditsUsed, 1e-9)
	assert.Contains(t, h.events.Keys(started.Session.ID), produce.SessionBillingFailedRoutingKey)
}

func TestStop_CompleteFailureReleasesVM(t *testing.T) {
	h := newHarness(t)
	vm := h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	owner := uuid.New()
	started := h.start(t, owner)
	h.clock.Advance(90 * time.Second)
	h.store.Sessions.SetCompleteErr(errors.New("connection reset"))

	_, err := h.orch.Stop(context.Background(), started.Session.ID, owner)
	require.Error(t, err)
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, h.clock.Pauses())

	stored := h.store.Sessions.Get(started.Session.ID)
	assert.Equal(t, entity.SessionStatusTerminating, stored.Status)
	assert.False(t, h.store.VMs.Get(vm.ID).InUse())
	assert.Len(t, h.billing.RecordsFor(started.Session.ID), 1)

	_, err = h.orch.Start(context.Background(), h.startInput(owner))
	assert.ErrorIs(t, err, ErrActiveSessionExists)

	h.store.Sessions.SetCompleteErr(nil)
	view, err := h.orch.FinishTerminating(context.Background(), started.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusCompleted, view.Session.Status)
	assert.Equal(t, "txn-1", view.Session.BillingTransactionID)
	assert.InDelta(t, 3.0, view.Session.CreditsUsed, 1e-9)

	records := h.billing.RecordsFor(started.Session.ID)
	require.Len(t, records, 2)
	assert.Equal(t, records[0].Seconds, records[1].Seconds)
	assert.Equal(t, 1, h.gateway.StopCount(vm.ID))
	assert.Contains(t, h.events.Keys(started.Session.ID), produce.SessionCompletedRoutingKey)

	again := h.start(t, owner)
	assert.Equal(t, vm.ID, again.VM.ID)
}

func TestFinishTerminating(t *testing.T) {
	h := newHarness(t)
	vm := h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	started := h.start(t, uuid.New())

	// A close-out that died right after the status flip.
	ok, err := h.store.Sessions.MarkTerminating(context.Background(), started.Session.ID, "no heartbeat", h.clock.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	h.clock.Advance(time.Hour)

	view, err := h.orch.FinishTerminating(context.Background(), started.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusTerminated, view.Session.Status)
	assert.Equal(t, "no heartbeat", view.Session.FailureReason)
	assert.InDelta(t, 2.0, view.Session.CreditsUsed, 1e-9)
	assert.Equal(t, 1, h.gateway.StopCount(vm.ID))
	assert.False(t, h.store.VMs.Get(vm.ID).InUse())

	again, err := h.orch.FinishTerminating(context.Background(), started.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusTerminated, again.Session.Status)
	assert.Len(t, h.billing.RecordsFor(started.Session.ID), 1)
	assert.Equal(t, 1, h.gateway.StopCount(vm.ID))

	_, err = h.orch.FinishTerminating(context.Background(), uuid.New())
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestForceTerminate(t *testing.T) {
	h := newHarness(t)
	h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	started := h.start(t, uuid.New())
	h.clock.Advance(time.Minute)

	view, err := h.orch.ForceTerminate(context.Background(), started.Session.ID, "")
	require.NoError(t, err)
	assert.Equal(t, entity.SessionStatusTerminated, view.Session.Status)
	assert.Equal(t, ReasonAdminTerminate, view.Session.FailureReason)
	assert.Contains(t, h.events.Keys(started.Session.ID), produce.SessionTerminatedRoutingKey)

	_, err = h.orch.ForceTerminate(context.Background(), uuid.New(), "gone")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestHeartbeat(t *testing.T) {
	h := newHarness(t)
	h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	owner := uuid.New()
	started := h.start(t, owner)
	cpu := 41.5

	ok, err := h.orch.Heartbeat(context.Background(), uuid.New(), owner, HeartbeatInput{Status: "ok"})
	require.NoError(t, err)
	assert.False(t, ok, "unknown session")

	ok, err = h.orch.Heartbeat(context.Background(), started.Session.ID, uuid.New(), HeartbeatInput{Status: "ok"})
	assert.False(t, ok)
	assert.Equal(t, KindOwnership, KindOf(err))

	h.clock.Advance(10 * time.Second)
	ok, err = h.orch.Heartbeat(context.Background(), started.Session.ID, owner, HeartbeatInput{Status: "ok", CPUPercent: &cpu})
	require.NoError(t, err)
	assert.True(t, ok)

	stored := h.store.Sessions.Get(started.Session.ID)
	assert.Equal(t, entity.SessionStatusActive, stored.Status)
	require.NotNil(t, stored.LastHeartbeatAt)
	assert.Equal(t, h.clock.Now(), *stored.LastHeartbeatAt)

	records, err := h.store.Heartbeats.ListBySession(context.Background(), started.Session.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, cpu, *records[0].CPUPercent, 1e-9)

	_, err = h.orch.Stop(context.Background(), started.Session.ID, owner)
	require.NoError(t, err)

	ok, err = h.orch.Heartbeat(context.Background(), started.Session.ID, owner, HeartbeatInput{Status: "ok"})
	require.NoError(t, err)
	assert.False(t, ok, "terminal session")
}

func TestGetSessionAndActiveSession(t *testing.T) {
	h := newHarness(t)
	h.addVM("vm-a", entity.VMTypeSmall, entity.VMStatusAvailable)
	owner := uuid.New()

	active, err := h.orch.GetActiveSession(context.Background(), owner)
	require.NoError(t, err)
	assert.Nil(t, active)

	started := h.start(t, owner)

	active, err = h.orch.GetActiveSession(context.Background(), owner)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, started.Session.ID, active.Session.ID)
	require.NotNil(t, active.VM)

	got, err := h.orch.GetSession(context.Background(), started.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, started.Session.ID, got.Session.ID)

	_, err = h.orch.GetSession(context.Background(), uuid.New())
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestElapsedSeconds(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		end  time.Time
		want int64
	}{
		{"exact", base.Add(90 * time.Second), 90},
		{"fraction rounds up", base.Add(90*time.Second + time.Nanosecond), 91},
		{"zero", base, 0},
		{"clock skew", base.Add(-time.Second), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, elapsedSeconds(base, tt.end))
		})
	}
}
