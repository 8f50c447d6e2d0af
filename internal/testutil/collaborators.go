package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"github.com/tnqbao/gau-vm-session-service/infra/produce"
)

// Gateway is a scripted cloud gateway. Unscripted VMs report running.
type Gateway struct {
	mu       sync.Mutex
	states   map[uuid.UUID]entity.PowerState
	errs     map[uuid.UUID]error
	StartErr error
	StopErr  error
	Starts   []uuid.UUID
	Stops    []uuid.UUID
	Queries  []uuid.UUID
}

func NewGateway() *Gateway {
	return &Gateway{
		states: make(map[uuid.UUID]entity.PowerState),
		errs:   make(map[uuid.UUID]error),
	}
}

func (g *Gateway) SetState(vmID uuid.UUID, state entity.PowerState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[vmID] = state
}

// FailStatus makes Status return PowerStateError with err for the VM.
func (g *Gateway) FailStatus(vmID uuid.UUID, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs[vmID] = err
}

func (g *Gateway) Start(_ context.Context, vm *entity.VM) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Starts = append(g.Starts, vm.ID)
	if g.StartErr != nil {
		return g.StartErr
	}
	g.states[vm.ID] = entity.PowerStateStarting
	return nil
}

func (g *Gateway) Stop(_ context.Context, vm *entity.VM) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Stops = append(g.Stops, vm.ID)
	if g.StopErr != nil {
		return g.StopErr
	}
	g.states[vm.ID] = entity.PowerStateDeallocated
	return nil
}

func (g *Gateway) Status(_ context.Context, vm *entity.VM) (entity.PowerState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Queries = append(g.Queries, vm.ID)
	if err, ok := g.errs[vm.ID]; ok {
		return entity.PowerStateError, err
	}
	if state, ok := g.states[vm.ID]; ok {
		return state, nil
	}
	return entity.PowerStateRunning, nil
}

func (g *Gateway) StopCount(vmID uuid.UUID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, id := range g.Stops {
		if id == vmID {
			n++
		}
	}
	return n
}

func (g *Gateway) QueryCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Queries)
}

// Credits answers credit checks with a fixed verdict.
type Credits struct {
	Sufficient bool
	Err        error
}

func (c *Credits) HasSufficientCredits(context.Context, uuid.UUID, entity.VMType, int64) (bool, error) {
	return c.Sufficient, c.Err
}

// Billing records every usage call and hands out sequential transaction
// ids. Like the credit service, a repeated session id gets its first id back.
type Billing struct {
	mu      sync.Mutex
	Records []entity.UsageRecord
	Err     error
	refs    map[uuid.UUID]string
}

func (b *Billing) RecordUsage(_ context.Context, usage entity.UsageRecord) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return "", b.Err
	}
	b.Records = append(b.Records, usage)
	if b.refs == nil {
		b.refs = make(map[uuid.UUID]string)
	}
	if ref, ok := b.refs[usage.SessionID]; ok {
		return ref, nil
	}
	ref := fmt.Sprintf("txn-%d", len(b.refs)+1)
	b.refs[usage.SessionID] = ref
	return ref, nil
}

func (b *Billing) RecordsFor(sessionID uuid.UUID) []entity.UsageRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []entity.UsageRecord
	for _, r := range b.Records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out
}

// Events captures published session events.
type Events struct {
	mu       sync.Mutex
	Messages []produce.SessionEventMessage
}

func (e *Events) PublishSessionEvent(_ context.Context, message produce.SessionEventMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Messages = append(e.Messages, message)
	return nil
}

// Keys returns the routing keys published for a session, in order.
func (e *Events) Keys(sessionID uuid.UUID) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, m := range e.Messages {
		if m.SessionID == sessionID.String() {
			out = append(out, m.Event)
		}
	}
	return out
}

// ObjectStore keeps uploaded objects in memory.
type ObjectStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Err     error
}

func NewObjectStore() *ObjectStore {
	return &ObjectStore{Objects: make(map[string][]byte)}
}

func (o *ObjectStore) PutObject(_ context.Context, key string, data []byte, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.Objects[key] = append([]byte(nil), data...)
	return nil
}

func (o *ObjectStore) Get(key string) ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.Objects[key]
	return data, ok
}
