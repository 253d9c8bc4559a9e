// Package chaosengine runs game-day style fault-injection experiments
// against a live command runner + event store, adapted from a generic
// checkout-availability chaos harness to exercise reservation overlap
// invariants and optimistic-concurrency behavior under contention.
package chaosengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ChaosExperiment is a single fault-injection trial: establish a steady
// state, inject a fault, observe metrics for Duration, roll back, then
// validate the hypothesis against the final observations.
type ChaosExperiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Metric
	Method      []Action
	Rollback    []Action
	Validation  []Assertion
	Duration    time.Duration
	BlastRadius float64 // 0.0 to 1.0, fraction of traffic the fault touches
}

// Metric is a measurable system property sampled during an experiment.
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Action is a fault-injection or recovery step.
type Action struct {
	Type    string
	Target  string
	Execute func(context.Context) error
}

// Assertion validates the final observation of one metric.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

// ExperimentResult captures what happened during one RunExperiment call.
type ExperimentResult struct {
	ExperimentName   string                 `json:"experimentName"`
	StartTime        time.Time              `json:"startTime"`
	EndTime          time.Time              `json:"endTime"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesisHeld"`
	SteadyStateValid bool                   `json:"steadyStateValid"`
	Violations       []MetricViolation      `json:"violations"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"errorEvents"`
}

type MetricViolation struct {
	MetricName string    `json:"metricName"`
	Expected   float64   `json:"expected"`
	Actual     float64   `json:"actual"`
	Timestamp  time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// Engine orchestrates registered experiments against whatever collaborators
// the caller's Metric/Action closures close over (runner, event store,
// queue); the engine itself holds no domain reference.
type Engine struct {
	tracer      trace.Tracer
	mu          sync.Mutex
	experiments []ChaosExperiment
	results     []ExperimentResult
}

func NewEngine() *Engine {
	return &Engine{
		tracer:      otel.Tracer("reservecore/chaosengine"),
		experiments: make([]ChaosExperiment, 0),
		results:     make([]ExperimentResult, 0),
	}
}

func (ce *Engine) Register(exp ChaosExperiment) {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	ce.experiments = append(ce.experiments, exp)
}

func (ce *Engine) Experiments() []ChaosExperiment {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	return append([]ChaosExperiment(nil), ce.experiments...)
}

func (ce *Engine) Results() []ExperimentResult {
	ce.mu.Lock()
	defer ce.mu.Unlock()
	return append([]ExperimentResult(nil), ce.results...)
}

// RunExperiment executes steady-state validation, fault injection,
// sampling, rollback and assertion validation in sequence.
func (ce *Engine) RunExperiment(ctx context.Context, exp ChaosExperiment) (*ExperimentResult, error) {
	ctx, span := ce.tracer.Start(ctx, "chaosengine.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := &ExperimentResult{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
		Observations:   make(map[string][]DataPoint),
		ErrorEvents:    make([]ErrorEvent, 0),
	}

	span.AddEvent("validating_steady_state")
	if valid, violations := ce.validateSteadyState(ctx, exp.SteadyState); !valid {
		result.SteadyStateValid = false
		result.Violations = violations
		result.EndTime = time.Now()
		return result, errors.New("chaosengine: steady state invalid, aborting experiment")
	}
	result.SteadyStateValid = true

	span.AddEvent("injecting_fault")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
				Timestamp: time.Now(), Error: err.Error(), Component: action.Target,
			})
			span.RecordError(err)
		}
	}

	span.AddEvent("observing")
	observeCtx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()

	ticker := time.NewTicker(sampleInterval(exp.Duration))
	defer ticker.Stop()

observe:
	for {
		select {
		case <-observeCtx.Done():
			break observe
		case <-ticker.C:
			for _, metric := range exp.SteadyState {
				value, err := metric.Query(ctx)
				if err != nil {
					result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
						Timestamp: time.Now(), Error: err.Error(), Component: metric.Name,
					})
					continue
				}
				result.Observations[metric.Name] = append(result.Observations[metric.Name], DataPoint{
					Timestamp: time.Now(), Value: value,
				})
				if !ce.evaluateThreshold(value, metric.Threshold) {
					result.Violations = append(result.Violations, MetricViolation{
						MetricName: metric.Name, Expected: metric.Threshold.Value, Actual: value, Timestamp: time.Now(),
					})
				}
			}
		}
	}

	span.AddEvent("rolling_back")
	for _, action := range exp.Rollback {
		if err := action.Execute(ctx); err != nil {
			span.RecordError(err)
		}
	}

	span.AddEvent("validating_assertions")
	result.HypothesisHeld = ce.validateAssertions(exp.Validation, result)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	ce.mu.Lock()
	ce.results = append(ce.results, *result)
	ce.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result, nil
}

// RunAll runs every registered experiment in order, continuing past
// individual failures so one bad hypothesis doesn't block the rest of the
// game day.
func (ce *Engine) RunAll(ctx context.Context) []ExperimentResult {
	var out []ExperimentResult
	for _, exp := range ce.Experiments() {
		result, err := ce.RunExperiment(ctx, exp)
		if err != nil {
			out = append(out, ExperimentResult{ExperimentName: exp.Name, HypothesisHeld: false})
			continue
		}
		out = append(out, *result)
	}
	return out
}

func (ce *Engine) validateSteadyState(ctx context.Context, metrics []Metric) (bool, []MetricViolation) {
	violations := make([]MetricViolation, 0)
	for _, metric := range metrics {
		value, err := metric.Query(ctx)
		if err != nil {
			violations = append(violations, MetricViolation{MetricName: metric.Name, Expected: metric.Threshold.Value, Actual: -1, Timestamp: time.Now()})
			continue
		}
		if !ce.evaluateThreshold(value, metric.Threshold) {
			violations = append(violations, MetricViolation{MetricName: metric.Name, Expected: metric.Threshold.Value, Actual: value, Timestamp: time.Now()})
		}
	}
	return len(violations) == 0, violations
}

func (ce *Engine) evaluateThreshold(value float64, threshold Threshold) bool {
	switch threshold.Operator {
	case ">":
		return value > threshold.Value
	case "<":
		return value < threshold.Value
	case ">=":
		return value >= threshold.Value
	case "<=":
		return value <= threshold.Value
	case "==":
		return value == threshold.Value
	default:
		return false
	}
}

func (ce *Engine) validateAssertions(assertions []Assertion, result *ExperimentResult) bool {
	for _, assertion := range assertions {
		observations, ok := result.Observations[assertion.Metric]
		if !ok || len(observations) == 0 {
			return false
		}
		if !assertion.Condition(observations[len(observations)-1].Value) {
			return false
		}
	}
	return true
}

func sampleInterval(duration time.Duration) time.Duration {
	if duration <= 0 {
		return time.Second
	}
	if interval := duration / 10; interval > 0 {
		return interval
	}
	return duration
}
