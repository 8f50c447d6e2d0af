package produce

import amqp "github.com/rabbitmq/amqp091-go"

type Produce struct {
	SessionService *SessionService
}

var produceInstance *Produce

func InitProduce(channel *amqp.Channel) *Produce {
	if produceInstance != nil {
		return produceInstance
	}

	sessionService := InitSessionService(channel)
	if sessionService == nil {
		panic("Failed to initialize Session produce service")
	}

	produceInstance = &Produce{
		SessionService: sessionService,
	}

	return produceInstance
}
