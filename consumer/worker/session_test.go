package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-vm-session-service/clock"
	"github.com/tnqbao/gau-vm-session-service/entity"
	"github.com/tnqbao/gau-vm-session-service/infra/produce"
	"github.com/tnqbao/gau-vm-session-service/service"
)

type ackRecorder struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue []bool
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type scriptedTerminator struct {
	mu      sync.Mutex
	errs    []error
	calls   []uuid.UUID
	reasons []string
}

func (s *scriptedTerminator) ForceTerminate(_ context.Context, id uuid.UUID, reason string) (*service.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, id)
	s.reasons = append(s.reasons, reason)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &service.SessionView{Session: &entity.Session{ID: id, Status: entity.SessionStatusTerminated}}, nil
}

func delivery(t *testing.T, ack *ackRecorder, payload interface{}) amqp.Delivery {
	t.Helper()
	body, ok := payload.([]byte)
	if !ok {
		var err error
		body, err = json.Marshal(payload)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
}

func newConsumer(term Terminator) (*SessionConsumer, *clock.Fake) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewSessionConsumer(nil, nil, term, clk), clk
}

func TestHandleForceTerminate(t *testing.T) {
	term := &scriptedTerminator{}
	c, _ := newConsumer(term)
	ack := &ackRecorder{}
	id := uuid.New()

	c.handleForceTerminate(context.Background(), delivery(t, ack, produce.ForceTerminateMessage{
		SessionID:   id.String(),
		Reason:      "abuse",
		RequestedBy: uuid.NewString(),
	}))

	assert.Equal(t, []uuid.UUID{id}, term.calls)
	assert.Equal(t, []string{"abuse"}, term.reasons)
	assert.Equal(t, 1, ack.acks)
	assert.Zero(t, ack.nacks)
}

func TestHandleForceTerminate_MalformedMessagesAreDropped(t *testing.T) {
	term := &scriptedTerminator{}
	c, _ := newConsumer(term)

	for _, body := range []interface{}{
		[]byte("{not json"),
		produce.ForceTerminateMessage{SessionID: "session-42"},
	} {
		ack := &ackRecorder{}
		c.handleForceTerminate(context.Background(), delivery(t, ack, body))
		assert.Equal(t, 1, ack.nacks)
		assert.Equal(t, []bool{false}, ack.requeue)
	}
	assert.Empty(t, term.calls)
}

func TestHandleForceTerminate_UnknownSessionIsAcked(t *testing.T) {
	term := &scriptedTerminator{errs: []error{&service.Error{Kind: service.KindNotFound, Err: service.ErrSessionNotFound}}}
	c, clk := newConsumer(term)
	ack := &ackRecorder{}

	c.handleForceTerminate(context.Background(), delivery(t, ack, produce.ForceTerminateMessage{SessionID: uuid.NewString()}))

	assert.Len(t, term.calls, 1)
	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, clk.Pauses())
}

func TestHandleForceTerminate_RetriesWithBackoff(t *testing.T) {
	boom := errors.New("database unavailable")
	term := &scriptedTerminator{errs: []error{boom, boom, nil}}
	c, clk := newConsumer(term)
	ack := &ackRecorder{}

	c.handleForceTerminate(context.Background(), delivery(t, ack, produce.ForceTerminateMessage{SessionID: uuid.NewString()}))

	assert.Len(t, term.calls, 3)
	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, clk.Pauses())
}

func TestHandleForceTerminate_GivesUp(t *testing.T) {
	boom := errors.New("database unavailable")

	term := &scriptedTerminator{errs: []error{boom, boom, boom}}
	c, _ := newConsumer(term)
	ack := &ackRecorder{}
	c.handleForceTerminate(context.Background(), delivery(t, ack, produce.ForceTerminateMessage{SessionID: uuid.NewString()}))
	assert.Equal(t, []bool{true}, ack.requeue)

	term = &scriptedTerminator{errs: []error{boom, boom, boom}}
	c, _ = newConsumer(term)
	ack = &ackRecorder{}
	msg := delivery(t, ack, produce.ForceTerminateMessage{SessionID: uuid.NewString()})
	msg.Redelivered = true
	c.handleForceTerminate(context.Background(), msg)
	assert.Equal(t, []bool{false}, ack.requeue)
	assert.Zero(t, ack.acks)
}

func TestConsumeStopsWhenChannelCloses(t *testing.T) {
	term := &scriptedTerminator{}
	c, _ := newConsumer(term)
	ack := &ackRecorder{}

	msgs := make(chan amqp.Delivery, 2)
	msgs <- delivery(t, ack, produce.ForceTerminateMessage{SessionID: uuid.NewString()})
	msgs <- delivery(t, ack, produce.ForceTerminateMessage{SessionID: uuid.NewString()})
	close(msgs)

	done := make(chan struct{})
	go func() {
		c.consume(context.Background(), msgs)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consume did not return after the channel closed")
	}
	assert.Equal(t, 2, ack.acks)
}
