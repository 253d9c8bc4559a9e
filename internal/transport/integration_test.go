package transport_test

import (
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservecore/internal/resource"
	"reservecore/internal/user"
)

// TestHandleCommands_ConcurrentOverlappingReservations_OnlyOneWins exercises
// the full command-service stack (runner, idempotency gate, projection
// worker) end to end: many actors race to reserve the same interval on one
// resource, and the invariant the decider enforces, that no two active
// reservations on a resource overlap, must hold regardless of how many
// attempts collide on the optimistic-concurrency retry.
func TestHandleCommands_ConcurrentOverlappingReservations_OnlyOneWins(t *testing.T) {
	f := newFixture(t, "bootstrap-local-key")

	bootstrapRec := postCommand(t, f.handler, user.CmdBootstrapAdmin,
		map[string]any{"email": "admin@test.com", "password": "Password123"},
		"key-bootstrap", map[string]string{"X-Admin-Bootstrap-Key": "bootstrap-local-key"})
	require.Equal(t, http.StatusCreated, bootstrapRec.Code)
	var bootstrapResp struct {
		UserID string `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(bootstrapRec.Body.Bytes(), &bootstrapResp))
	f.drainProjection(t)

	createRec := postCommand(t, f.handler, resource.CmdCreateResource,
		map[string]any{"name": "SalaConcurrent", "details": "Piso 3"},
		"key-create", map[string]string{"X-Actor-User-Id": bootstrapResp.UserID, "X-Actor-Role": "admin"})
	require.Equal(t, http.StatusCreated, createRec.Code)
	var createResp struct {
		ResourceID string `json:"resourceId"`
	}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &createResp))
	f.drainProjection(t)

	from := time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	const racers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	successCount := 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := postCommand(t, f.handler, resource.CmdCreateReservationInResource,
				map[string]any{"resourceId": createResp.ResourceID, "fromUtc": from, "toUtc": to},
				idempotencyKeyFor(i), map[string]string{"X-Actor-User-Id": bootstrapResp.UserID, "X-Actor-Role": "user"})
			if rec.Code == http.StatusCreated {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successCount, "exactly one racer should win the interval")
}

func idempotencyKeyFor(i int) string {
	return "key-race-" + string(rune('a'+i))
}
