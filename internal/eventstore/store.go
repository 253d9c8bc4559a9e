// Package eventstore implements the append-only per-stream event log over
// an abstract ObjectStore, with snapshot acceleration and stream-version gap
// detection, per the command core's event store contract.
package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StreamType identifies which aggregate kind a stream belongs to.
type StreamType string

const (
	StreamUser     StreamType = "user"
	StreamResource StreamType = "resource"
)

// RecordedEvent is the immutable, durable unit of the event log.
type RecordedEvent struct {
	EventID       uuid.UUID       `json:"eventId"`
	StreamID      uuid.UUID       `json:"streamId"`
	StreamType    StreamType      `json:"streamType"`
	Version       int             `json:"version"`
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAtUtc time.Time       `json:"occurredAtUtc"`
	Meta          json.RawMessage `json:"meta,omitempty"`
}

// Snapshot is an accelerator over a stream; correctness never depends on it.
type Snapshot struct {
	StreamType       StreamType      `json:"streamType"`
	StreamID         uuid.UUID       `json:"streamId"`
	SnapshotVersion  int             `json:"snapshotVersion"`
	LastEventVersion int             `json:"lastEventVersion"`
	State            json.RawMessage `json:"state"`
	CreatedAtUtc     time.Time       `json:"createdAtUtc"`
}

// Store is the event store: an ObjectStore plus the append-only stream
// algorithms layered on top of it.
type Store struct {
	objects ObjectStore
	tracer  trace.Tracer
}

// New builds a Store over the given ObjectStore, wrapping it in the
// package's standard circuit breaker (see breaker.go).
func New(objects ObjectStore) *Store {
	return &Store{
		objects: withBreaker(objects),
		tracer:  otel.Tracer("reservecore/eventstore"),
	}
}

func eventKey(streamType StreamType, streamID uuid.UUID, version int) string {
	return fmt.Sprintf("%s/%s/%012d.json", streamType, streamID, version)
}

func eventPrefix(streamType StreamType, streamID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/", streamType, streamID)
}

func snapshotKey(streamType StreamType, streamID uuid.UUID, snapshotVersion int) string {
	return fmt.Sprintf("snapshots/%s/%s/%012d.json", streamType, streamID, snapshotVersion)
}

func snapshotPrefix(streamType StreamType, streamID uuid.UUID) string {
	return fmt.Sprintf("snapshots/%s/%s/", streamType, streamID)
}

func parseVersion(key, prefix string) (int, bool) {
	rest := strings.TrimPrefix(key, prefix)
	rest = strings.TrimSuffix(rest, ".json")
	if rest == key {
		return 0, false
	}
	v, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return v, true
}

// AppendEvent appends evt, which must carry version == expectedVersion+1, to
// its stream via a create-if-absent write on the version-keyed object. A
// losing concurrent writer observes ErrVersionConflict.
func (s *Store) AppendEvent(ctx context.Context, evt RecordedEvent, expectedVersion int) error {
	ctx, span := s.tracer.Start(ctx, "eventstore.append_event",
		trace.WithAttributes(
			attribute.String("stream.id", evt.StreamID.String()),
			attribute.String("stream.type", string(evt.StreamType)),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.version", evt.Version),
			attribute.String("event.type", evt.Type),
		),
	)
	defer span.End()

	if expectedVersion+1 != evt.Version {
		return fmt.Errorf("eventstore: invalid version: expected %d, event carries %d", expectedVersion+1, evt.Version)
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("eventstore: marshal event: %w", err)
	}

	key := eventKey(evt.StreamType, evt.StreamID, evt.Version)
	err = s.objects.Put(ctx, key, body, "application/json", nil, true)
	if err != nil {
		if isConflict(err) {
			span.SetAttributes(attribute.Bool("conflict.detected", true))
			return ErrVersionConflict
		}
		return fmt.Errorf("eventstore: put event: %w", err)
	}

	span.AddEvent("event.appended", trace.WithAttributes(
		attribute.Int("event.version", evt.Version),
		attribute.String("event.type", evt.Type),
	))
	return nil
}

// LoadStream lists, fetches, and decodes every event at or after
// fromInclusive on the given stream, sorted ascending by version, validating
// that the returned versions are contiguous. On a gap the whole load is
// retried exactly once; a gap that persists surfaces as *StreamGapError.
func (s *Store) LoadStream(ctx context.Context, streamType StreamType, streamID uuid.UUID, fromInclusive int) ([]RecordedEvent, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.load_stream",
		trace.WithAttributes(
			attribute.String("stream.id", streamID.String()),
			attribute.String("stream.type", string(streamType)),
			attribute.Int("from.inclusive", fromInclusive),
		),
	)
	defer span.End()

	policy := backoff.WithMaxTries[[]RecordedEvent](2)
	events, err := backoff.Retry(ctx, func() ([]RecordedEvent, error) {
		evts, gapErr := s.loadStreamOnce(ctx, streamType, streamID, fromInclusive)
		if gapErr != nil {
			var gap *StreamGapError
			if asStreamGap(gapErr, &gap) {
				return nil, gapErr
			}
			return nil, backoff.Permanent(gapErr)
		}
		return evts, nil
	}, policy)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

func asStreamGap(err error, target **StreamGapError) bool {
	gap, ok := err.(*StreamGapError)
	if ok {
		*target = gap
	}
	return ok
}

func (s *Store) loadStreamOnce(ctx context.Context, streamType StreamType, streamID uuid.UUID, fromInclusive int) ([]RecordedEvent, error) {
	keys, err := s.objects.List(ctx, eventPrefix(streamType, streamID))
	if err != nil {
		return nil, fmt.Errorf("eventstore: list stream: %w", err)
	}

	prefix := eventPrefix(streamType, streamID)
	type versionedKey struct {
		key     string
		version int
	}
	var filtered []versionedKey
	for _, k := range keys {
		v, ok := parseVersion(k.Key, prefix)
		if !ok {
			continue
		}
		if v >= fromInclusive {
			filtered = append(filtered, versionedKey{key: k.Key, version: v})
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].version < filtered[j].version })

	events := make([]RecordedEvent, 0, len(filtered))
	expected := fromInclusive
	for _, vk := range filtered {
		body, _, err := s.objects.Get(ctx, vk.key)
		if err != nil {
			return nil, fmt.Errorf("eventstore: get event %s: %w", vk.key, err)
		}
		var evt RecordedEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			return nil, fmt.Errorf("eventstore: decode event %s: %w", vk.key, err)
		}
		if evt.Version != expected {
			return nil, &StreamGapError{Expected: expected, Actual: evt.Version}
		}
		events = append(events, evt)
		expected++
	}

	return events, nil
}

// LoadLatestSnapshot returns the snapshot with the maximum snapshotVersion,
// or nil if none exists.
func (s *Store) LoadLatestSnapshot(ctx context.Context, streamType StreamType, streamID uuid.UUID) (*Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "eventstore.load_latest_snapshot",
		trace.WithAttributes(
			attribute.String("stream.id", streamID.String()),
			attribute.String("stream.type", string(streamType)),
		),
	)
	defer span.End()

	prefix := snapshotPrefix(streamType, streamID)
	keys, err := s.objects.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("eventstore: list snapshots: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	best := ""
	bestVersion := -1
	for _, k := range keys {
		v, ok := parseVersion(k.Key, prefix)
		if !ok {
			continue
		}
		if v > bestVersion {
			bestVersion = v
			best = k.Key
		}
	}
	if best == "" {
		return nil, nil
	}

	body, _, err := s.objects.Get(ctx, best)
	if err != nil {
		return nil, fmt.Errorf("eventstore: get snapshot: %w", err)
	}
	state, err := decompressSnapshotBody(body)
	if err != nil {
		return nil, fmt.Errorf("eventstore: decompress snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(state, &snap); err != nil {
		return nil, fmt.Errorf("eventstore: decode snapshot: %w", err)
	}
	span.SetAttributes(attribute.Int("snapshot.version", snap.SnapshotVersion))
	return &snap, nil
}

// PutSnapshot writes snap with a create-if-absent precondition keyed on its
// snapshotVersion. The already-exists case is not an error: another writer
// already created the same snapshot, which is fine because snapshots are an
// accelerator, not a source of truth.
func (s *Store) PutSnapshot(ctx context.Context, snap Snapshot) error {
	ctx, span := s.tracer.Start(ctx, "eventstore.put_snapshot",
		trace.WithAttributes(
			attribute.String("stream.id", snap.StreamID.String()),
			attribute.String("stream.type", string(snap.StreamType)),
			attribute.Int("snapshot.version", snap.SnapshotVersion),
		),
	)
	defer span.End()

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("eventstore: marshal snapshot: %w", err)
	}
	compressed, err := compressSnapshotBody(body)
	if err != nil {
		return fmt.Errorf("eventstore: compress snapshot: %w", err)
	}

	meta := map[string]string{
		"snapshotversion":  strconv.Itoa(snap.SnapshotVersion),
		"lasteventversion": strconv.Itoa(snap.LastEventVersion),
	}
	key := snapshotKey(snap.StreamType, snap.StreamID, snap.SnapshotVersion)
	err = s.objects.Put(ctx, key, compressed, "application/json", meta, true)
	if err != nil {
		if isConflict(err) {
			// Another writer already created this snapshot; not an error.
			return nil
		}
		return fmt.Errorf("eventstore: put snapshot: %w", err)
	}
	return nil
}
