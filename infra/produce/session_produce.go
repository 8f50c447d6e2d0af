package produce

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	SessionExchange = "session.exchange"

	SessionStartedRoutingKey       = "session.started"
	SessionCompletedRoutingKey     = "session.completed"
	SessionTerminatedRoutingKey    = "session.terminated"
	SessionFailedRoutingKey        = "session.failed"
	SessionBillingFailedRoutingKey = "session.billing_failed"

	SessionForceTerminateQueue      = "session.force_terminate"
	SessionForceTerminateRoutingKey = "session.force_terminate"
)

// SessionEventMessage is published on every session lifecycle transition.
type SessionEventMessage struct {
	Event                string    `json:"event"`
	SessionID            string    `json:"session_id"`
	VMID                 string    `json:"vm_id"`
	UserID               string    `json:"user_id"`
	ProjectID            string    `json:"project_id"`
	WorkspaceID          string    `json:"workspace_id"`
	VMType               string    `json:"vm_type"`
	Status               string    `json:"status"`
	CreditsUsed          float64   `json:"credits_used,omitempty"`
	BillingTransactionID string    `json:"billing_transaction_id,omitempty"`
	Reason               string    `json:"reason,omitempty"`
	OccurredAt           time.Time `json:"occurred_at"`
}

type ForceTerminateMessage struct {
	SessionID   string `json:"session_id"`
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

type SessionService struct {
	channel *amqp.Channel
}

func InitSessionService(channel *amqp.Channel) *SessionService {
	service := &SessionService{
		channel: channel,
	}

	err := channel.ExchangeDeclare(
		SessionExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		panic("Failed to declare Session exchange: " + err.Error())
	}

	_, err = channel.QueueDeclare(
		SessionForceTerminateQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		panic("Failed to declare Session force terminate queue: " + err.Error())
	}

	err = channel.QueueBind(
		SessionForceTerminateQueue,
		SessionForceTerminateRoutingKey,
		SessionExchange,
		false,
		nil,
	)
	if err != nil {
		panic("Failed to bind Session force terminate queue: " + err.Error())
	}

	return service
}

func (s *SessionService) PublishSessionEvent(ctx context.Context, message SessionEventMessage) error {
	if message.Event == "" {
		return fmt.Errorf("session event has no routing key")
	}
	if message.OccurredAt.IsZero() {
		message.OccurredAt = time.Now().UTC()
	}
	return s.publish(ctx, message.Event, message)
}

func (s *SessionService) PublishForceTerminate(ctx context.Context, sessionID, reason, requestedBy string) error {
	message := ForceTerminateMessage{
		SessionID:   sessionID,
		Reason:      reason,
		RequestedBy: requestedBy,
		Timestamp:   time.Now().Unix(),
	}
	return s.publish(ctx, SessionForceTerminateRoutingKey, message)
}

func (s *SessionService) publish(ctx context.Context, routingKey string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal session message: %w", err)
	}

	return s.channel.PublishWithContext(
		ctx,
		SessionExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
}
