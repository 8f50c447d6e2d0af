package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tnqbao/gau-vm-session-service/clock"
	"github.com/tnqbao/gau-vm-session-service/infra"
	"github.com/tnqbao/gau-vm-session-service/infra/produce"
	"github.com/tnqbao/gau-vm-session-service/service"
)

const maxRetries = 3

// Terminator ends a session through the shared stop path.
type Terminator interface {
	ForceTerminate(ctx context.Context, sessionID uuid.UUID, reason string) (*service.SessionView, error)
}

// SessionConsumer executes force-terminate requests queued by administrators.
type SessionConsumer struct {
	channel    *amqp.Channel
	logger     *infra.LoggerClient
	terminator Terminator
	clock      clock.Clock
	retryDelay time.Duration
}

func NewSessionConsumer(channel *amqp.Channel, logger *infra.LoggerClient, terminator Terminator, clk clock.Clock) *SessionConsumer {
	if logger == nil {
		logger = infra.NewDiscardLogger()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &SessionConsumer{
		channel:    channel,
		logger:     logger,
		terminator: terminator,
		clock:      clk,
		retryDelay: 2 * time.Second,
	}
}

func (c *SessionConsumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		produce.SessionForceTerminateQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register force terminate consumer: %w", err)
	}

	c.logger.InfoWithContextf(ctx, "[Session Consumer] Started listening for force terminate jobs on queue: %s", produce.SessionForceTerminateQueue)

	go c.consume(ctx, msgs)
	return nil
}

func (c *SessionConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			c.logger.InfoWithContextf(ctx, "[Session Consumer] Shutting down...")
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.WarningWithContextf(ctx, "[Session Consumer] Channel closed")
				return
			}
			c.handleForceTerminate(ctx, msg)
		}
	}
}

func (c *SessionConsumer) handleForceTerminate(ctx context.Context, msg amqp.Delivery) {
	var payload produce.ForceTerminateMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.logger.ErrorWithContextf(ctx, err, "[Session Consumer] Failed to unmarshal message: %v", err)
		_ = msg.Nack(false, false)
		return
	}

	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		c.logger.ErrorWithContextf(ctx, err, "[Session Consumer] Invalid session ID %q: %v", payload.SessionID, err)
		_ = msg.Nack(false, false)
		return
	}

	c.logger.InfoWithContextf(ctx, "[Session Consumer] Force terminate %s requested by %s: %s", sessionID, payload.RequestedBy, payload.Reason)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		view, err := c.terminator.ForceTerminate(ctx, sessionID, payload.Reason)
		if err == nil {
			c.logger.InfoWithContextf(ctx, "[Session Consumer] Session %s is %s", sessionID, view.Session.Status)
			_ = msg.Ack(false)
			return
		}

		var svcErr *service.Error
		if errors.As(err, &svcErr) && svcErr.Kind == service.KindNotFound {
			c.logger.WarningWithContextf(ctx, "[Session Consumer] Session %s does not exist, dropping request", sessionID)
			_ = msg.Ack(false)
			return
		}

		c.logger.ErrorWithContextf(ctx, err, "[Session Consumer] Attempt %d/%d failed: %v", attempt, maxRetries, err)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				_ = msg.Nack(false, true)
				return
			case <-c.clock.After(time.Duration(attempt) * c.retryDelay):
			}
		}
	}

	// A redelivered message already had its second chance.
	requeue := !msg.Redelivered
	c.logger.ErrorWithContextf(ctx, nil, "[Session Consumer] Giving up on session %s after %d attempts (requeue=%t)", sessionID, maxRetries, requeue)
	_ = msg.Nack(false, requeue)
}
