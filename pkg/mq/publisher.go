package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"spmagent/pkg/trace"
)

// TraceHeader is the AMQP header carrying the originating request's trace ID.
const TraceHeader = "x-trace-id"

// ErrBlocked is returned while the broker has flow-controlled the connection.
// The outbox leaves the event for a later attempt.
var ErrBlocked = errors.New("rabbitmq connection blocked by broker")

type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	mu      sync.Mutex
	blocked atomic.Bool
	logger  *zap.Logger
}

func NewPublisher(url string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := NewConnection(url, logger)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p := &Publisher{
		conn:    conn,
		channel: ch,
		logger:  logger,
	}
	go p.watchBlocked(conn.NotifyBlocked(make(chan amqp091.Blocking, 1)))
	return p, nil
}

// watchBlocked tracks connection.blocked / unblocked notifications until the channel closes.
func (p *Publisher) watchBlocked(notifications <-chan amqp091.Blocking) {
	for b := range notifications {
		p.blocked.Store(b.Active)
		if b.Active {
			p.logger.Warn("RabbitMQ blocked the connection", zap.String("reason", b.Reason))
		} else {
			p.logger.Info("RabbitMQ unblocked the connection")
		}
	}
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// IsConnected reports whether the underlying connection is still open.
func (p *Publisher) IsConnected() bool {
	if p.conn == nil || p.channel == nil {
		return false
	}
	return !p.conn.IsClosed()
}

// IsBlocked reports whether the broker is currently refusing publishes.
func (p *Publisher) IsBlocked() bool {
	return p.blocked.Load()
}

// Publish publishes payload as JSON with the given routing key.
func (p *Publisher) Publish(routingKey string, payload any) error {
	return p.PublishWithContext(context.Background(), routingKey, payload)
}

// PublishWithContext publishes payload and copies the trace ID on ctx into the message headers.
func (p *Publisher) PublishWithContext(ctx context.Context, routingKey string, payload any) error {
	if p.blocked.Load() {
		return ErrBlocked
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		msg.Headers = amqp091.Table{TraceHeader: traceID}
		msg.CorrelationId = traceID
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx, ExchangeName, routingKey, false, false, msg)
}
