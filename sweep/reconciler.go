package sweep

import (
	"context"
	"time"

	"github.com/tnqbao/gau-vm-session-service/clock"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"github.com/tnqbao/gau-vm-session-service/infra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const ReasonStoppedInCloud = "VM found stopped in cloud"

type ReconcilerConfig struct {
	BatchSize  int
	BatchPause time.Duration
}

// Reconciler compares stored VM state with the cloud and heals drift.
type Reconciler struct {
	sessions   SessionFinder
	vms        VMStore
	gateway    Gateway
	terminator Terminator
	logger     *infra.LoggerClient
	metrics    *infra.MetricsClient
	clock      clock.Clock
	batchSize  int
	batchPause time.Duration
}

func NewReconciler(sessions SessionFinder, vms VMStore, gateway Gateway, terminator Terminator, logger *infra.LoggerClient, metrics *infra.MetricsClient, clk clock.Clock, cfg ReconcilerConfig) *Reconciler {
	if logger == nil {
		logger = infra.NewDiscardLogger()
	}
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Reconciler{
		sessions:   sessions,
		vms:        vms,
		gateway:    gateway,
		terminator: terminator,
		logger:     logger,
		metrics:    metrics,
		clock:      clk,
		batchSize:  cfg.BatchSize,
		batchPause: cfg.BatchPause,
	}
}

// FastSweep checks the VM of every active session.
func (r *Reconciler) FastSweep(ctx context.Context) SweepReport {
	report := newReport(SweepReconcileFast)
	ctx, span := tracer.Start(ctx, "Reconciler.FastSweep")
	defer span.End()

	sessions, err := r.sessions.FindByStatuses(ctx, []entity.SessionStatus{entity.SessionStatusActive})
	if err != nil {
		r.logger.ErrorWithContextf(ctx, err, "[Reconciler] Failed to list active sessions: %v", err)
		report.Errors++
		return finish(ctx, r.logger, r.metrics, report)
	}

	for i := range sessions {
		if ctx.Err() != nil {
			break
		}
		report.merge(r.reconcileSession(ctx, &sessions[i]))
	}

	span.SetAttributes(attribute.Int("sessions", len(sessions)))
	return finish(ctx, r.logger, r.metrics, report)
}

func (r *Reconciler) reconcileSession(ctx context.Context, session *entity.Session) SweepReport {
	var out SweepReport
	out.Checked = 1

	vm, err := r.vms.FindByID(ctx, session.VMID)
	if err != nil {
		r.logger.ErrorWithContextf(ctx, err, "[Reconciler] VM %s of session %s not loadable: %v", session.VMID, session.ID, err)
		out.Errors++
		return out
	}

	state, err := r.gateway.Status(ctx, vm)
	if err != nil || !state.Conclusive() {
		r.logger.WarningWithContextf(ctx, "[Reconciler] Inconclusive power state for VM %s (session %s), skipping: %v", vm.ID, session.ID, err)
		out.Inconclusive++
		return out
	}

	switch state {
	case entity.PowerStateStopped, entity.PowerStateDeallocated:
		current, err := r.sessions.FindByID(ctx, session.ID)
		if err != nil {
			r.logger.ErrorWithContextf(ctx, err, "[Reconciler] Failed to re-read session %s: %v", session.ID, err)
			out.Errors++
			return out
		}

		if current.Status == entity.SessionStatusActive || vm.Status == entity.VMStatusRunning {
			out.Mismatches++
			r.logger.WarningWithContextf(ctx, "[Reconciler] VM %s is %s in cloud while session %s is %s, terminating",
				vm.ID, state, session.ID, current.Status)
			r.storeStatus(ctx, vm, state.VMStatus(), &out)

			if _, err := r.terminator.ForceTerminate(ctx, session.ID, ReasonStoppedInCloud); err != nil {
				r.logger.ErrorWithContextf(ctx, err, "[Reconciler] Failed to terminate session %s: %v", session.ID, err)
				out.Errors++
				return out
			}
			out.Terminated++
			return out
		}

		if state == entity.PowerStateStopped {
			fresh, err := r.vms.FindByID(ctx, vm.ID)
			if err != nil {
				out.Errors++
				return out
			}
			if !fresh.InUse() {
				r.deallocate(ctx, fresh, &out)
			}
		}

	case entity.PowerStateRunning:
		// Bookkeeping only; a session is never resumed from here.
		if vm.Status != entity.VMStatusRunning {
			out.Mismatches++
			r.storeStatus(ctx, vm, entity.VMStatusRunning, &out)
		}

	case entity.PowerStateStarting, entity.PowerStateStopping:
		if vm.Status != state.VMStatus() {
			out.Mismatches++
			r.storeStatus(ctx, vm, state.VMStatus(), &out)
		}
	}

	return out
}

// FullSweep walks every VM in batches. Each batch is queried concurrently
// and batches are separated by the configured pause.
func (r *Reconciler) FullSweep(ctx context.Context) SweepReport {
	report := newReport(SweepReconcileFull)
	ctx, span := tracer.Start(ctx, "Reconciler.FullSweep")
	defer span.End()

	vms, err := r.vms.FindAll(ctx)
	if err != nil {
		r.logger.ErrorWithContextf(ctx, err, "[Reconciler] Failed to list VMs: %v", err)
		report.Errors++
		return finish(ctx, r.logger, r.metrics, report)
	}

	for start := 0; start < len(vms); start += r.batchSize {
		if start > 0 && r.batchPause > 0 {
			select {
			case <-ctx.Done():
				return finish(ctx, r.logger, r.metrics, report)
			case <-r.clock.After(r.batchPause):
			}
		}
		if ctx.Err() != nil {
			break
		}

		end := start + r.batchSize
		if end > len(vms) {
			end = len(vms)
		}
		batch := vms[start:end]
		results := make([]SweepReport, len(batch))

		var g errgroup.Group
		for i := range batch {
			i := i
			g.Go(func() error {
				results[i] = r.reconcileVM(ctx, &batch[i])
				return nil
			})
		}
		_ = g.Wait()

		for _, res := range results {
			report.merge(res)
		}
	}

	span.SetAttributes(attribute.Int("vms", len(vms)))
	return finish(ctx, r.logger, r.metrics, report)
}

func (r *Reconciler) reconcileVM(ctx context.Context, vm *entity.VM) SweepReport {
	var out SweepReport
	out.Checked = 1

	state, err := r.gateway.Status(ctx, vm)
	if err != nil || !state.Conclusive() {
		r.logger.WarningWithContextf(ctx, "[Reconciler] Power state query failed for VM %s, skipping: %v", vm.ID, err)
		if err != nil {
			out.Errors++
		} else {
			out.Inconclusive++
		}
		return out
	}

	if want := state.VMStatus(); vm.Status != want {
		out.Mismatches++
		r.storeStatus(ctx, vm, want, &out)
	}

	if state == entity.PowerStateStopped && !vm.InUse() {
		// The listing can be minutes old by now; a start may have claimed the VM since.
		fresh, err := r.vms.FindByID(ctx, vm.ID)
		if err != nil {
			r.logger.ErrorWithContextf(ctx, err, "[Reconciler] Failed to re-read VM %s: %v", vm.ID, err)
			out.Errors++
		} else if fresh.InUse() {
			r.logger.DebugWithContextf(ctx, "[Reconciler] VM %s claimed by session %s since listing, not deallocating", vm.ID, *fresh.CurrentSessionID)
		} else {
			r.deallocate(ctx, fresh, &out)
		}
	}

	if err := r.vms.StampReconciled(ctx, vm.ID, r.clock.Now()); err != nil {
		r.logger.ErrorWithContextf(ctx, err, "[Reconciler] Failed to stamp VM %s: %v", vm.ID, err)
		out.Errors++
	}
	return out
}

func (r *Reconciler) storeStatus(ctx context.Context, vm *entity.VM, next entity.VMStatus, out *SweepReport) {
	updated, err := r.vms.CompareAndSetStatus(ctx, vm.ID, vm.Status, next)
	if err != nil {
		r.logger.ErrorWithContextf(ctx, err, "[Reconciler] Failed to store status %s for VM %s: %v", next, vm.ID, err)
		out.Errors++
		return
	}
	if !updated {
		r.logger.DebugWithContextf(ctx, "[Reconciler] VM %s changed concurrently, status %s not stored", vm.ID, next)
		return
	}
	r.logger.InfoWithContextf(ctx, "[Reconciler] VM %s status %s -> %s", vm.ID, vm.Status, next)
	vm.Status = next
}

// deallocate releases the compute of a powered-off VM nobody holds.
func (r *Reconciler) deallocate(ctx context.Context, vm *entity.VM, out *SweepReport) {
	if err := r.gateway.Stop(ctx, vm); err != nil {
		r.logger.ErrorWithContextf(ctx, err, "[Reconciler] Deallocate failed for VM %s: %v", vm.ID, err)
		out.Errors++
		return
	}
	marked, err := r.vms.MarkDeallocated(ctx, vm.ID)
	if err != nil {
		r.logger.ErrorWithContextf(ctx, err, "[Reconciler] Failed to mark VM %s deallocated: %v", vm.ID, err)
		out.Errors++
		return
	}
	if marked {
		vm.Status = entity.VMStatusDeallocated
		out.Deallocated++
		r.logger.InfoWithContextf(ctx, "[Reconciler] VM %s deallocated", vm.ID)
	}
}
