package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func stubDial(t *testing.T, fn func(string) (*amqp091.Connection, error)) *[]time.Duration {
	t.Helper()
	origDial, origSleep := dial, sleep
	t.Cleanup(func() { dial, sleep = origDial, origSleep })

	var waits []time.Duration
	dial = fn
	sleep = func(d time.Duration) { waits = append(waits, d) }
	return &waits
}

func TestNewConnection_RetriesWithBackoff(t *testing.T) {
	calls := 0
	waits := stubDial(t, func(string) (*amqp091.Connection, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection refused")
		}
		return &amqp091.Connection{}, nil
	})

	conn, err := NewConnection("amqp://localhost", zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, conn)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{dialBackoff, 2 * dialBackoff}, *waits)
}

func TestNewConnection_GivesUp(t *testing.T) {
	calls := 0
	waits := stubDial(t, func(string) (*amqp091.Connection, error) {
		calls++
		return nil, errors.New("connection refused")
	})

	_, err := NewConnection("amqp://localhost", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, dialAttempts, calls)
	assert.Len(t, *waits, dialAttempts-1)
	for _, w := range *waits {
		assert.LessOrEqual(t, w, dialMaxBackoff)
	}
}

func TestPublisher_BlockedRejectsPublish(t *testing.T) {
	p := &Publisher{logger: zap.NewNop()}
	notifications := make(chan amqp091.Blocking, 2)

	notifications <- amqp091.Blocking{Active: true, Reason: "low on memory"}
	close(notifications)
	p.watchBlocked(notifications)

	assert.True(t, p.IsBlocked())
	err := p.PublishWithContext(context.Background(), "project.created", map[string]string{"id": "p1"})
	assert.ErrorIs(t, err, ErrBlocked)

	unblock := make(chan amqp091.Blocking, 1)
	unblock <- amqp091.Blocking{Active: false}
	close(unblock)
	p.watchBlocked(unblock)
	assert.False(t, p.IsBlocked())
}

func TestPublisher_NotConnected(t *testing.T) {
	assert.False(t, (&Publisher{}).IsConnected())
}
