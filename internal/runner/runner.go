// Package runner implements the command runner: the per-request procedure
// that rehydrates an aggregate from its snapshot and tail, invokes a pure
// decider, appends the resulting event under optimistic concurrency with
// bounded retry, publishes it for projection, and conditionally snapshots.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"reservecore/internal/eventstore"
	"reservecore/internal/queue"
)

// Decision is the common shape of a decider's verdict: exactly one of
// EventType/Payload or Err is set. The user and resource deciders each
// return their own Decision type with this identical shape; callers adapt
// with a small closure (see cmd/commandservice for the wiring).
type Decision struct {
	EventType string
	Payload   json.RawMessage
	Err       error
}

// Fold folds one event onto state, returning the new state. Called
// repeatedly during rehydration; must be total and deterministic.
type Fold[S any] func(state *S, eventType string, payload json.RawMessage) (*S, error)

// Decide evaluates cmd against state without any I/O.
type Decide[S any, C any] func(state *S, cmd C) Decision

// Build consults read-side helpers (e.g. email-uniqueness, resource
// existence) to construct the command from the caller's inputs. These
// checks are advisory; the decider is the source of truth.
type Build[S any, C any] func(ctx context.Context, state *S) (C, error)

// ConflictPayload is the telemetry event emitted when a command exhausts
// its version-conflict retries and EmitConcurrencyConflictUnresolvedEvent is
// enabled (spec.md §4.3).
type ConflictPayload struct {
	ResourceID       uuid.UUID `json:"resourceId"`
	CommandName      string    `json:"commandName"`
	ActorUserID      uuid.UUID `json:"actorUserId"`
	Attempts         int       `json:"attempts"`
	LastKnownVersion int       `json:"lastKnownVersion"`
}

// EventConcurrencyConflictUnresolved is the telemetry event type appended
// when retries are exhausted; it folds as identity (see user/resource
// Fold's default case).
const EventConcurrencyConflictUnresolved = "ConcurrencyConflictUnresolved"

// Config configures a Runner. Zero value is not usable; use NewConfig for
// spec-compliant defaults.
type Config struct {
	StreamType                             eventstore.StreamType
	SnapshotThreshold                      int
	VersionConflictMaxRetries              int
	EmitConcurrencyConflictUnresolvedEvent bool
	Now                                    func() time.Time
}

// NewConfig applies spec.md §4.7 defaults: versionConflictMaxRetries must be
// non-negative and finite, falling back to 1 otherwise.
func NewConfig(streamType eventstore.StreamType, snapshotThreshold, versionConflictMaxRetries int, emitConflictEvent bool) Config {
	if versionConflictMaxRetries < 0 {
		versionConflictMaxRetries = 1
	}
	return Config{
		StreamType:                              streamType,
		SnapshotThreshold:                       snapshotThreshold,
		VersionConflictMaxRetries:               versionConflictMaxRetries,
		EmitConcurrencyConflictUnresolvedEvent:  emitConflictEvent,
		Now:                                     time.Now,
	}
}

// Runner is the generic command runner, instantiated once per aggregate
// type (S = state, C = command) with that aggregate's fold and decide
// functions.
type Runner[S any, C any] struct {
	store  *eventstore.Store
	queue  queue.Queue
	fold   Fold[S]
	decide Decide[S, C]
	cfg    Config
}

// New returns a Runner wired against store and queue for one aggregate's
// fold/decide pair.
func New[S any, C any](store *eventstore.Store, q queue.Queue, fold Fold[S], decide Decide[S, C], cfg Config) *Runner[S, C] {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if q == nil {
		q = queue.NoopQueue{}
	}
	return &Runner[S, C]{store: store, queue: q, fold: fold, decide: decide, cfg: cfg}
}

// rehydrated carries the loaded state and version out of rehydrate.
type rehydrated[S any] struct {
	state        *S
	lastVersion  int
}

func (r *Runner[S, C]) rehydrate(ctx context.Context, aggregateID uuid.UUID) (rehydrated[S], error) {
	snap, err := r.store.LoadLatestSnapshot(ctx, r.cfg.StreamType, aggregateID)
	if err != nil {
		return rehydrated[S]{}, fmt.Errorf("runner: load snapshot: %w", err)
	}

	var state *S
	start := 1
	lastVersion := 0
	if snap != nil {
		state = new(S)
		if err := json.Unmarshal(snap.State, state); err != nil {
			return rehydrated[S]{}, fmt.Errorf("runner: decode snapshot state: %w", err)
		}
		start = snap.LastEventVersion + 1
		lastVersion = snap.LastEventVersion
	}

	tail, err := r.store.LoadStream(ctx, r.cfg.StreamType, aggregateID, start)
	if err != nil {
		return rehydrated[S]{}, fmt.Errorf("runner: load tail: %w", err)
	}

	for _, evt := range tail {
		state, err = r.fold(state, evt.Type, evt.Payload)
		if err != nil {
			return rehydrated[S]{}, fmt.Errorf("runner: fold event v%d: %w", evt.Version, err)
		}
		lastVersion = evt.Version
	}

	return rehydrated[S]{state: state, lastVersion: lastVersion}, nil
}

// Execute runs one command attempt sequence to completion, retrying on
// ErrVersionConflict up to cfg.VersionConflictMaxRetries additional times.
func (r *Runner[S, C]) Execute(ctx context.Context, aggregateID uuid.UUID, commandName string, actorUserID uuid.UUID, build Build[S, C]) (eventstore.RecordedEvent, error) {
	maxAttempts := 1 + r.cfg.VersionConflictMaxRetries
	attempts := 0
	lastKnownVersion := 0

	policy := backoff.WithMaxTries[eventstore.RecordedEvent](uint(maxAttempts))
	evt, err := backoff.Retry(ctx, func() (eventstore.RecordedEvent, error) {
		attempts++

		rh, err := r.rehydrate(ctx, aggregateID)
		if err != nil {
			return eventstore.RecordedEvent{}, backoff.Permanent(err)
		}
		lastKnownVersion = rh.lastVersion

		cmd, err := build(ctx, rh.state)
		if err != nil {
			return eventstore.RecordedEvent{}, backoff.Permanent(err)
		}

		decision := r.decide(rh.state, cmd)
		if decision.Err != nil {
			return eventstore.RecordedEvent{}, backoff.Permanent(decision.Err)
		}

		evt := eventstore.RecordedEvent{
			StreamID:      aggregateID,
			StreamType:    r.cfg.StreamType,
			Version:       rh.lastVersion + 1,
			Type:          decision.EventType,
			Payload:       decision.Payload,
			OccurredAtUtc: r.cfg.Now().UTC(),
		}
		evt.EventID, err = uuid.NewV7()
		if err != nil {
			return eventstore.RecordedEvent{}, backoff.Permanent(fmt.Errorf("runner: generate event id: %w", err))
		}

		if err := r.store.AppendEvent(ctx, evt, rh.lastVersion); err != nil {
			if errors.Is(err, eventstore.ErrVersionConflict) {
				return eventstore.RecordedEvent{}, err
			}
			return eventstore.RecordedEvent{}, backoff.Permanent(fmt.Errorf("runner: append event: %w", err))
		}

		r.publish(ctx, evt)
		r.maybeSnapshot(ctx, aggregateID, rh.state, evt)
		return evt, nil
	}, policy)

	if err != nil {
		if errors.Is(err, eventstore.ErrVersionConflict) {
			if r.cfg.EmitConcurrencyConflictUnresolvedEvent {
				r.emitUnresolvedConflict(ctx, aggregateID, commandName, actorUserID, attempts, lastKnownVersion)
			}
			return eventstore.RecordedEvent{}, fmt.Errorf("runner: %w: exhausted %d attempts", eventstore.ErrVersionConflict, attempts)
		}
		return eventstore.RecordedEvent{}, err
	}
	return evt, nil
}

// publish enqueues the appended event; publishing is best-effort from the
// runner's perspective (spec.md §4.3 step 5) and never fails the command.
func (r *Runner[S, C]) publish(ctx context.Context, evt eventstore.RecordedEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		return
	}
	_ = r.queue.Publish(ctx, body)
}

// maybeSnapshot writes a snapshot if evt.Version lands on the configured
// threshold. Failures are swallowed; snapshots are an accelerator.
func (r *Runner[S, C]) maybeSnapshot(ctx context.Context, aggregateID uuid.UUID, priorState *S, evt eventstore.RecordedEvent) {
	threshold := r.cfg.SnapshotThreshold
	if threshold <= 0 || evt.Version%threshold != 0 {
		return
	}

	newState, err := r.fold(priorState, evt.Type, evt.Payload)
	if err != nil {
		return
	}
	stateJSON, err := json.Marshal(newState)
	if err != nil {
		return
	}

	_ = r.store.PutSnapshot(ctx, eventstore.Snapshot{
		StreamType:       r.cfg.StreamType,
		StreamID:         aggregateID,
		SnapshotVersion:  evt.Version,
		LastEventVersion: evt.Version,
		State:            stateJSON,
		CreatedAtUtc:     r.cfg.Now().UTC(),
	})
}

// emitUnresolvedConflict best-effort appends a telemetry event recording
// that a command gave up after exhausting its retries. It reloads the
// stream first since lastKnownVersion may already be stale by the time
// retries are exhausted.
func (r *Runner[S, C]) emitUnresolvedConflict(ctx context.Context, aggregateID uuid.UUID, commandName string, actorUserID uuid.UUID, attempts, lastKnownVersion int) {
	rh, err := r.rehydrate(ctx, aggregateID)
	if err != nil {
		return
	}

	payload, err := json.Marshal(ConflictPayload{
		ResourceID:       aggregateID,
		CommandName:      commandName,
		ActorUserID:      actorUserID,
		Attempts:         attempts,
		LastKnownVersion: lastKnownVersion,
	})
	if err != nil {
		return
	}

	eventID, err := uuid.NewV7()
	if err != nil {
		return
	}

	evt := eventstore.RecordedEvent{
		EventID:       eventID,
		StreamID:      aggregateID,
		StreamType:    r.cfg.StreamType,
		Version:       rh.lastVersion + 1,
		Type:          EventConcurrencyConflictUnresolved,
		Payload:       payload,
		OccurredAtUtc: r.cfg.Now().UTC(),
	}
	_ = r.store.AppendEvent(ctx, evt, rh.lastVersion)
}
