package cloud

import (
	"context"
	"time"

	"github.com/tnqbao/gau-vm-session-service/entity"
)

// CallObserver records the outcome of each cloud call.
type CallObserver interface {
	ObserveCloudCall(provider, operation string, started time.Time, err error)
}

// Gateway issues power operations for stored VMs using each VM's own credentials.
type Gateway struct {
	pool     *ClientPool
	timeout  time.Duration
	observer CallObserver
}

func NewGateway(pool *ClientPool, timeout time.Duration, observer CallObserver) *Gateway {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		pool:     pool,
		timeout:  timeout,
		observer: observer,
	}
}

func (g *Gateway) Start(ctx context.Context, vm *entity.VM) error {
	return g.call(ctx, vm, "start", func(ctx context.Context, d Driver) error {
		return d.Start(ctx, vm)
	})
}

// Stop powers the VM off and releases its compute.
func (g *Gateway) Stop(ctx context.Context, vm *entity.VM) error {
	return g.call(ctx, vm, "stop", func(ctx context.Context, d Driver) error {
		return d.Stop(ctx, vm)
	})
}

// Status returns the normalized power state. Any failure, including a
// timeout, yields PowerStateError along with the cause.
func (g *Gateway) Status(ctx context.Context, vm *entity.VM) (entity.PowerState, error) {
	state := entity.PowerStateError
	err := g.call(ctx, vm, "status", func(ctx context.Context, d Driver) error {
		s, err := d.PowerState(ctx, vm)
		if err != nil {
			return err
		}
		state = s
		return nil
	})
	if err != nil {
		return entity.PowerStateError, err
	}
	return state, nil
}

func (g *Gateway) call(ctx context.Context, vm *entity.VM, operation string, fn func(context.Context, Driver) error) error {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	creds := CredentialsFor(vm)
	err := g.do(ctx, creds, fn)
	if IsAuthError(err) {
		g.pool.Invalidate(creds)
	}

	if g.observer != nil {
		g.observer.ObserveCloudCall(string(vm.Provider), operation, started, err)
	}
	return err
}

func (g *Gateway) do(ctx context.Context, creds Credentials, fn func(context.Context, Driver) error) error {
	driver, err := g.pool.Get(ctx, creds)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- fn(ctx, driver)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
