package outbox

import (
	"context"
	"encoding/json"
	"fmt"
)

// InsertEventInTx marshals payload and writes a pending event through tx.
func InsertEventInTx(
	ctx context.Context,
	tx Execer,
	aggregateType string,
	aggregateID string,
	routingKey string,
	payload any,
) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	event := &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       payloadJSON,
		Status:        StatusPending,
	}
	return insertEvent(ctx, tx, event)
}
