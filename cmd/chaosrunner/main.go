// cmd/chaosrunner/main.go
package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"reservecore/internal/chaosengine"
	"reservecore/internal/config"
	"reservecore/internal/eventstore"
	"reservecore/internal/eventstore/fsobjectstore"
	"reservecore/internal/queue/memqueue"
	"reservecore/internal/resource"
	"reservecore/internal/runner"
	"reservecore/internal/telemetry"
)

func decideResource(state *resource.State, cmd resource.Command) runner.Decision {
	d := resource.Decide(state, cmd)
	return runner.Decision{EventType: d.EventType, Payload: d.Payload, Err: d.Err}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("chaosrunner: load config: %v", err)
	}

	shutdown, err := telemetry.Setup(context.Background(), telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: "dev",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
	})
	if err != nil {
		log.Fatalf("chaosrunner: telemetry setup: %v", err)
	}
	defer shutdown(context.Background())

	eventsDir := os.Getenv("CHAOS_EVENTS_DIR")
	if eventsDir == "" {
		eventsDir = "./data/chaos-events"
	}
	objects, err := fsobjectstore.New(eventsDir)
	if err != nil {
		log.Fatalf("chaosrunner: open event store dir: %v", err)
	}
	store := eventstore.New(objects)
	q := memqueue.New()

	runnerCfg := runner.NewConfig(eventstore.StreamResource, cfg.SnapshotByStreamType["resource"],
		cfg.VersionConflictMaxRetries, cfg.EmitConcurrencyConflictUnresolvedEvent)
	rr := runner.New[resource.State, resource.Command](store, q, resource.Fold, decideResource, runnerCfg)

	resourceID := uuid.New()
	adminID := uuid.New()
	ctx := context.Background()
	_, err = rr.Execute(ctx, resourceID, resource.CmdCreateResource, adminID,
		func(_ context.Context, _ *resource.State) (resource.Command, error) {
			return resource.Command{
				Kind:        resource.CmdCreateResource,
				ResourceID:  resourceID,
				ActorUserID: adminID,
				ActorRole:   resource.ActorAdmin,
				Name:        "chaos-runner-room",
				Details:     "provisioned for the concurrent-reservation-race experiment",
			}, nil
		})
	if err != nil {
		log.Fatalf("chaosrunner: seed resource: %v", err)
	}

	concurrency := 50
	if v := os.Getenv("CHAOS_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			concurrency = n
		}
	}

	engine := chaosengine.NewEngine()
	engine.Register(chaosengine.ConcurrentReservationRaceExperiment(rr, store, resourceID, concurrency))

	log.Printf("chaosrunner: starting game day against resource %s with %d concurrent writers", resourceID, concurrency)
	start := time.Now()
	results := engine.RunAll(ctx)
	for _, result := range results {
		status := "HELD"
		if !result.HypothesisHeld {
			status = "VIOLATED"
		}
		log.Printf("chaosrunner: experiment %q hypothesis %s (%d violations, duration %s)",
			result.ExperimentName, status, len(result.Violations), result.Duration)
	}
	log.Printf("chaosrunner: game day complete in %s", time.Since(start))
}
