package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeName = "roadmap.events"
)

// Dial retry policy. The broker often starts after the API in local setups.
var (
	dialAttempts   = 5
	dialBackoff    = 500 * time.Millisecond
	dialMaxBackoff = 8 * time.Second

	dial  = amqp091.Dial
	sleep = time.Sleep
)

// NewConnection dials RabbitMQ, retrying with exponential backoff.
func NewConnection(url string, logger *zap.Logger) (*amqp091.Connection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	backoff := dialBackoff
	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err := dial(url)
		if err == nil {
			if attempt > 1 {
				logger.Info("Connected to RabbitMQ", zap.Int("attempt", attempt))
			}
			return conn, nil
		}
		lastErr = err
		if attempt == dialAttempts {
			break
		}

		logger.Warn("RabbitMQ dial failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		sleep(backoff)
		backoff *= 2
		if backoff > dialMaxBackoff {
			backoff = dialMaxBackoff
		}
	}
	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", dialAttempts, lastErr)
}

// DeclareExchange declares the durable topic exchange events are published to.
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
}
