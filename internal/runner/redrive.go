package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"reservecore/internal/eventstore"
	"reservecore/internal/queue"
)

// Redrive re-publishes every event at or after fromVersion on one stream.
// Publishing happens after a durable append (spec.md §5), so a crash
// between the two leaves an event durable but never enqueued for
// projection; this is the acknowledged operational recovery path, run
// out-of-band against a known-stuck stream rather than automatically.
func Redrive(ctx context.Context, store *eventstore.Store, q queue.Queue, streamType eventstore.StreamType, streamID uuid.UUID, fromVersion int) (int, error) {
	events, err := store.LoadStream(ctx, streamType, streamID, fromVersion)
	if err != nil {
		return 0, fmt.Errorf("runner: redrive load stream: %w", err)
	}

	republished := 0
	for _, evt := range events {
		body, err := json.Marshal(evt)
		if err != nil {
			return republished, fmt.Errorf("runner: redrive marshal event v%d: %w", evt.Version, err)
		}
		if err := q.Publish(ctx, body); err != nil {
			return republished, fmt.Errorf("runner: redrive publish event v%d: %w", evt.Version, err)
		}
		republished++
	}
	return republished, nil
}
