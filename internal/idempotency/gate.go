// Package idempotency gates mutating commands behind a client-supplied
// Idempotency-Key: a command runs at most once per key, and any request
// repeating a key replays the first response instead of re-running the
// command, per spec.md §4.4.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrMissingKey is returned when a mutating command is attempted without
	// an Idempotency-Key.
	ErrMissingKey = errors.New("idempotency: missing idempotency key")

	// ErrHashMismatch is returned when a key is reused with content that
	// hashes differently than the first request that claimed it.
	ErrHashMismatch = errors.New("idempotency: key reused with different content")

	// ErrInFlight is returned when a key was claimed by another request that
	// has not yet recorded a response. The caller should surface this as a
	// retryable conflict rather than running the command a second time.
	ErrInFlight = errors.New("idempotency: command for this key is still in flight")

	// ErrRateLimited is returned when the gate's rate limiter rejects a
	// request.
	ErrRateLimited = errors.New("idempotency: rate limit exceeded")
)

// Result is what Execute returns: either the freshly computed response, or a
// replay of a previously recorded one.
type Result struct {
	Status   int
	Body     json.RawMessage
	Replayed bool
}

// Exec runs the gated command and returns the status code and response body
// to record against the idempotency key.
type Exec func(ctx context.Context) (status int, body json.RawMessage, err error)

// Gate wraps a Store with an optional rate limiter. The limiter is shared by
// all callers and is consulted on every Execute call, replays included; it
// is not keyed per actor.
type Gate struct {
	store   *Store
	limiter *rate.Limiter
}

// NewGate returns a Gate. limiter may be nil to disable rate limiting (used
// in tests).
func NewGate(store *Store, limiter *rate.Limiter) *Gate {
	return &Gate{store: store, limiter: limiter}
}

// Execute runs fn at most once for the given key. key must be non-empty;
// ErrMissingKey is returned otherwise so callers can translate it to
// MISSING_IDEMPOTENCY_KEY (spec.md §7).
func (g *Gate) Execute(ctx context.Context, key string, content Content, now time.Time, fn Exec) (Result, error) {
	if key == "" {
		return Result{}, ErrMissingKey
	}
	if g.limiter != nil && !g.limiter.Allow() {
		return Result{}, ErrRateLimited
	}

	hash, err := ContentHash(content)
	if err != nil {
		return Result{}, err
	}

	claimed, err := g.store.Reserve(ctx, key, hash, now)
	if err != nil {
		return Result{}, err
	}

	if !claimed {
		existing, ok, err := g.store.Load(ctx, key)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, fmt.Errorf("idempotency: key %q reported claimed but no record found", key)
		}
		if existing.ContentHash != hash {
			return Result{}, ErrHashMismatch
		}
		if existing.ResponseStatus == 0 {
			return Result{}, ErrInFlight
		}
		return Result{Status: existing.ResponseStatus, Body: existing.ResponseBody, Replayed: true}, nil
	}

	status, body, err := fn(ctx)
	if err != nil {
		return Result{}, err
	}

	// Best-effort: the command has already committed by this point, so a
	// failure to record the response must not surface as a command failure.
	_ = g.store.recordResponse(ctx, key, status, body)

	return Result{Status: status, Body: body, Replayed: false}, nil
}
