package resource_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"reservecore/internal/resource"
)

func genInterval(t *rapid.T) (time.Time, time.Time) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	startHour := rapid.IntRange(0, 23).Draw(t, "startHour")
	durationHours := rapid.IntRange(1, 4).Draw(t, "durationHours")
	from := base.Add(time.Duration(startHour) * time.Hour)
	to := from.Add(time.Duration(durationHours) * time.Hour)
	return from, to
}

// TestProperty_NoTwoActiveReservationsOverlap is spec §8's core invariant:
// for any sequence of accepted reservation events on a single resource, no
// two active reservations have overlapping [from, to) intervals.
func TestProperty_NoTwoActiveReservationsOverlap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nResources := 1
		_ = nResources
		state := &resource.State{ResourceID: uuid.New(), Status: resource.StatusActive}
		nowUtc := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

		attempts := rapid.IntRange(1, 25).Draw(t, "attempts")
		for i := 0; i < attempts; i++ {
			from, to := genInterval(t)
			d := resource.Decide(state, resource.Command{
				Kind:          resource.CmdCreateReservationInResource,
				ReservationID: uuid.New(),
				ActorUserID:   uuid.New(),
				NowUtc:        nowUtc,
				FromUtc:       from,
				ToUtc:         to,
			})
			if d.Err != nil {
				continue
			}
			next, err := resource.Fold(state, d.EventType, d.Payload)
			if err != nil {
				t.Fatalf("fold: %v", err)
			}
			state = next

			// Invariant: no two active reservations overlap.
			active := activeReservations(state)
			for i := 0; i < len(active); i++ {
				for j := i + 1; j < len(active); j++ {
					a, b := active[i], active[j]
					if a.FromUtc.Before(b.ToUtc) && b.FromUtc.Before(a.ToUtc) {
						t.Fatalf("overlap between %+v and %+v", a, b)
					}
				}
			}
		}
	})
}

func activeReservations(state *resource.State) []resource.Reservation {
	var out []resource.Reservation
	for _, r := range state.Reservations {
		if r.Status == resource.ReservationActive {
			out = append(out, r)
		}
	}
	return out
}
