package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reservecore/internal/docstore"
	"reservecore/internal/eventstore"
	"reservecore/internal/queue"
)

const (
	// ReceiveBatchSize and ReceiveMaxWait mirror the message queue's
	// documented receive contract (spec.md §6).
	ReceiveBatchSize = 10
	ReceiveMaxWait   = 20 * time.Second
)

// LagRow is the single-row projection-lag indicator surfaced to the query
// API in place of read-your-writes consistency (spec.md's Non-goals).
type LagRow struct {
	Projection        string    `json:"projection"`
	LastProjectedAtUtc time.Time `json:"lastProjectedAtUtc"`
	EventsBehind       int       `json:"eventsBehind"`
}

// LagTableKey is the fixed partition key of the single lag row.
const LagTableKey = "main"

// Worker drains a queue of appended events, applies their projection ops to
// the document store, and upserts the lag indicator, acknowledging each
// message by deletion only after it is fully applied.
type Worker struct {
	docs     docstore.Store
	queue    queue.Queue
	tables   Tables
	lagTable string
}

// NewWorker returns a Worker. lagTable is the projection-lag table name
// (spec.md's PROJECTION_LAG_TABLE).
func NewWorker(docs docstore.Store, q queue.Queue, tables Tables, lagTable string) *Worker {
	return &Worker{docs: docs, queue: q, tables: tables, lagTable: lagTable}
}

// Run is the single cooperative loop: receive up to ReceiveBatchSize
// messages, project and apply each, delete on success. It returns only when
// ctx is done; any other error is swallowed and the loop recurs, per
// spec.md §4.5.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := w.queue.Receive(ctx, ReceiveBatchSize, ReceiveMaxWait)
		if err != nil {
			continue
		}

		for _, msg := range msgs {
			if err := w.applyMessage(ctx, msg.Body); err != nil {
				// Left undeleted: at-least-once delivery redelivers it.
				continue
			}
			_ = w.queue.Delete(ctx, msg.ReceiptHandle)
		}
	}
}

func (w *Worker) applyMessage(ctx context.Context, body []byte) error {
	var evt eventstore.RecordedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return fmt.Errorf("projection: decode message: %w", err)
	}

	ops, err := Project(evt, w.tables)
	if err != nil {
		return err
	}

	for _, op := range ops {
		if err := w.apply(ctx, op); err != nil {
			return err
		}
	}

	return w.upsertLag(ctx, evt.OccurredAtUtc)
}

func (w *Worker) apply(ctx context.Context, op Op) error {
	switch op.Kind {
	case OpPutUser, OpPutResource, OpPutReservation:
		return w.docs.Put(ctx, op.Table, op.Key, docstore.Item(op.Item))
	case OpSetUserLastLogin, OpUpdateResourceDetails, OpCancelReservation:
		return w.docs.Update(ctx, op.Table, op.Key, docstore.Item(op.Attrs))
	default:
		return fmt.Errorf("projection: unknown op kind %q", op.Kind)
	}
}

func (w *Worker) upsertLag(ctx context.Context, occurredAtUtc time.Time) error {
	return w.docs.Put(ctx, w.lagTable, LagTableKey, docstore.Item{
		"projection":         LagTableKey,
		"lastProjectedAtUtc": occurredAtUtc,
		"eventsBehind":       0,
	})
}
