package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/clock"
	"github.com/tnqbao/gau-vm-session-service/infra"
)

// Task is one periodic sweep.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Runner drives each task on its own ticker until stopped.
type Runner struct {
	tasks    []Task
	lease    Lease
	logger   *infra.LoggerClient
	clock    clock.Clock
	instance string

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner builds a runner. With a non-nil lease each tick first claims
// the task for this replica; ticks that lose the claim are skipped.
func NewRunner(logger *infra.LoggerClient, lease Lease, clk clock.Clock) *Runner {
	if logger == nil {
		logger = infra.NewDiscardLogger()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Runner{
		lease:    lease,
		logger:   logger,
		clock:    clk,
		instance: uuid.NewString(),
	}
}

func (r *Runner) Add(task Task) {
	r.tasks = append(r.tasks, task)
}

func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for _, task := range r.tasks {
		if task.Interval <= 0 {
			r.logger.WarningWithContextf(ctx, "[Runner] Task %s has no interval, not scheduled", task.Name)
			continue
		}
		ticker := r.clock.NewTicker(task.Interval)
		r.wg.Add(1)
		go r.loop(ctx, task, ticker)
		r.logger.InfoWithContextf(ctx, "[Runner] Scheduled %s every %s", task.Name, task.Interval)
	}
}

// Stop cancels all tasks and waits for in-flight runs to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, task Task, ticker clock.Ticker) {
	defer r.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.RunOnce(ctx, task)
		}
	}
}

// RunOnce executes a task a single time, honoring the lease and isolating panics.
func (r *Runner) RunOnce(ctx context.Context, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.ErrorWithContextf(ctx, fmt.Errorf("panic: %v", rec), "[Runner] Task %s panicked: %v", task.Name, rec)
		}
	}()

	if r.lease != nil {
		// Held slightly shorter than the interval so the next tick can claim it again.
		ttl := task.Interval * 9 / 10
		acquired, err := r.lease.AcquireLease(ctx, "sweep:lease:"+task.Name, r.instance, ttl)
		if err != nil {
			r.logger.WarningWithContextf(ctx, "[Runner] Lease check for %s failed, skipping tick: %v", task.Name, err)
			return
		}
		if !acquired {
			r.logger.DebugWithContextf(ctx, "[Runner] %s is running on another replica", task.Name)
			return
		}
	}

	task.Run(ctx)
}
