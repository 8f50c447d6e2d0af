package sweep

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tnqbao/gau-vm-session-service/clock"
)

type fakeLease struct {
	mu      sync.Mutex
	grant   bool
	err     error
	keys    []string
	ttls    []time.Duration
	holders map[string]string
}

func (l *fakeLease) AcquireLease(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	l.ttls = append(l.ttls, ttl)
	if l.err != nil {
		return false, l.err
	}
	if l.holders == nil {
		l.holders = make(map[string]string)
	}
	if !l.grant {
		return false, nil
	}
	if holder, ok := l.holders[key]; ok && holder != token {
		return false, nil
	}
	l.holders[key] = token
	return true, nil
}

func countingTask(name string, interval time.Duration, n *atomic.Int32) Task {
	return Task{
		Name:     name,
		Interval: interval,
		Run:      func(context.Context) { n.Add(1) },
	}
}

func TestRunOnce_WithoutLease(t *testing.T) {
	var n atomic.Int32
	NewRunner(nil, nil, nil).RunOnce(context.Background(), countingTask("fast", time.Second, &n))
	assert.Equal(t, int32(1), n.Load())
}

func TestRunOnce_Lease(t *testing.T) {
	var n atomic.Int32
	lease := &fakeLease{grant: true}
	task := countingTask("reconcile_fast", 10*time.Second, &n)

	NewRunner(nil, lease, nil).RunOnce(context.Background(), task)
	assert.Equal(t, int32(1), n.Load())
	assert.Equal(t, []string{"sweep:lease:reconcile_fast"}, lease.keys)
	assert.Equal(t, []time.Duration{9 * time.Second}, lease.ttls)

	// A second replica loses the claim while the first one holds it.
	NewRunner(nil, lease, nil).RunOnce(context.Background(), task)
	assert.Equal(t, int32(1), n.Load())
}

func TestRunOnce_LeaseDeniedOrFailing(t *testing.T) {
	var n atomic.Int32
	task := countingTask("full", time.Minute, &n)

	NewRunner(nil, &fakeLease{grant: false}, nil).RunOnce(context.Background(), task)
	NewRunner(nil, &fakeLease{err: errors.New("redis down")}, nil).RunOnce(context.Background(), task)

	assert.Zero(t, n.Load())
}

func TestRunOnce_RecoversPanic(t *testing.T) {
	task := Task{Name: "boom", Interval: time.Second, Run: func(context.Context) { panic("nil map") }}
	assert.NotPanics(t, func() {
		NewRunner(nil, nil, nil).RunOnce(context.Background(), task)
	})
}

func TestRunner_StartStop(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	fast := make(chan struct{}, 1)
	broken := make(chan struct{}, 1)
	var unscheduled atomic.Int32

	r := NewRunner(nil, nil, clk)
	signal := func(ch chan struct{}) {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	r.Add(Task{Name: "fast", Interval: 10 * time.Second, Run: func(context.Context) { signal(fast) }})
	r.Add(Task{Name: "broken", Interval: time.Minute, Run: func(context.Context) {
		signal(broken)
		panic("sweep bug")
	}})
	r.Add(countingTask("never", 0, &unscheduled))
	r.Start(context.Background())

	wait := func(ch <-chan struct{}, name string) {
		t.Helper()
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("%s did not run", name)
		}
	}

	clk.Advance(10 * time.Second)
	wait(fast, "fast")

	clk.Advance(50 * time.Second)
	wait(fast, "fast")
	wait(broken, "broken")

	// A panicking task keeps its schedule.
	clk.Advance(time.Minute)
	wait(broken, "broken")
	wait(fast, "fast")

	r.Stop()
	select {
	case <-fast:
	default:
	}
	clk.Advance(time.Hour)
	select {
	case <-fast:
		t.Fatal("task ran after Stop")
	default:
	}
	assert.Zero(t, unscheduled.Load())

	// Stop is idempotent.
	r.Stop()
}
