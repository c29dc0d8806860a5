package rateshop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
)

// ShipmentState is the per-shipment processing state.
type ShipmentState string

// Per-shipment states. Transitions are pending -> processing -> terminal;
// processing -> processing is permitted only as part of an internal retry.
// A result is terminal (completed or error) exactly once.
const (
	StatePending    ShipmentState = "pending"
	StateProcessing ShipmentState = "processing"
	StateCompleted  ShipmentState = "completed"
	StateError      ShipmentState = "error"
)

// RunStatus is the overall analysis run state.
type RunStatus string

// Run states.
const (
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunPaused     RunStatus = "paused"
)

// Hook event keys for the aggregator.
const (
	ResultEventCompleted = hookz.Key("result.completed")
	ResultEventOrphaned  = hookz.Key("result.orphaned")
)

// ResultEvent is emitted via hookz each time a shipment reaches a
// terminal state.
type ResultEvent struct {
	ShipmentID string
	State      ShipmentState
	Savings    float64
	Err        error
	Timestamp  time.Time
}

// Result is the analysis outcome for one shipment.
type Result struct {
	ShipmentID  string
	State       ShipmentState
	CurrentCost float64

	// BestRate matches the confirmed mapping's category when one rate
	// does; BestOverallRate is the absolute cheapest rate found.
	BestRate        *Rate
	BestOverallRate *Rate

	Savings          float64 // CurrentCost - BestRate.TotalCharges
	MaxSavings       float64 // CurrentCost - BestOverallRate.TotalCharges
	CategoryFallback bool

	// Failure context. Error is human-readable; MissingFields is set for
	// validation failures so the operator can resubmit the failed subset.
	Error         string
	ErrorType     string
	ErrorCategory ErrorCategory
	MissingFields []Field
	AttemptCount  int
}

// Run is the finalized analysis artifact handed to reporting. It is
// immutable: the aggregator builds it exactly once.
type Run struct {
	ID         string
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt time.Time

	TotalCurrentCost float64 // sum over completed results only
	TotalSavings     float64 // sum over completed results only

	Recommendations   []Result // completed shipments
	OrphanedShipments []Result // failed shipments, with reasons
	Excluded          int      // still pending/processing at an early stop
	FailureReason     string   // set only on run-level failure

	Telemetry Snapshot
}

// Transition errors.
var (
	ErrUnknownShipment = errors.New("unknown shipment identity")
	ErrTerminalResult  = errors.New("result already terminal")
	ErrRunFinalized    = errors.New("run already finalized")
)

// Aggregator owns all per-shipment results and the run state machine.
// Results are keyed by shipment identity, never positional index, so
// completions arriving out of order cannot race.
type Aggregator struct {
	mu        sync.Mutex
	runID     string
	status    RunStatus
	results   map[string]*Result
	order     []string
	startedAt time.Time
	finalized bool

	clock clockz.Clock
	hooks *hookz.Hooks[ResultEvent]
}

// NewAggregator creates an aggregator with every shipment pending.
// Records sharing an identity collapse to one result (exactly one
// terminal outcome per identity).
func NewAggregator(shipments []ShipmentRecord) *Aggregator {
	a := &Aggregator{
		runID:   uuid.NewString(),
		status:  RunProcessing,
		results: make(map[string]*Result, len(shipments)),
		clock:   clockz.RealClock,
		hooks:   hookz.New[ResultEvent](),
	}
	for i, rec := range shipments {
		id := rec.ID()
		if id == "" {
			id = fmt.Sprintf("row-%d", i+1)
		}
		if _, exists := a.results[id]; exists {
			continue
		}
		a.results[id] = &Result{
			ShipmentID:  id,
			State:       StatePending,
			CurrentCost: rec.CurrentCost,
		}
		a.order = append(a.order, id)
	}
	a.startedAt = a.clock.Now()
	return a
}

// WithClock sets a custom clock for testing.
func (a *Aggregator) WithClock(clock clockz.Clock) *Aggregator {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clock = clock
	a.startedAt = clock.Now()
	return a
}

// RunID returns the analysis run identifier.
func (a *Aggregator) RunID() string { return a.runID }

// Status returns the current overall run status.
func (a *Aggregator) Status() RunStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Begin transitions a shipment to processing. pending -> processing is
// the normal path; processing -> processing is allowed for internal
// retries. Terminal results reject the transition.
func (a *Aggregator) Begin(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.results[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownShipment, id)
	}
	switch r.State {
	case StatePending, StateProcessing:
		r.State = StateProcessing
		return nil
	default:
		return fmt.Errorf("%w: %s is %s", ErrTerminalResult, id, r.State)
	}
}

// Complete records a successful quote outcome and transitions the
// shipment to completed. A terminal result rejects the transition: there
// is exactly one terminal outcome per shipment identity.
func (a *Aggregator) Complete(id string, quote ShipmentQuote) error {
	a.mu.Lock()
	r, ok := a.results[id]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownShipment, id)
	}
	if r.State == StateCompleted || r.State == StateError {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTerminalResult, id, r.State)
	}

	r.State = StateCompleted
	r.BestRate = quote.Best
	r.BestOverallRate = quote.BestOverall
	r.Savings = quote.Savings
	r.MaxSavings = quote.MaxSavings
	r.CategoryFallback = quote.CategoryFallback
	r.AttemptCount = quote.Attempts
	savings := r.Savings
	now := a.clock.Now()
	a.mu.Unlock()

	_ = a.hooks.Emit(context.Background(), ResultEventCompleted, ResultEvent{ //nolint:errcheck
		ShipmentID: id,
		State:      StateCompleted,
		Savings:    savings,
		Timestamp:  now,
	})
	return nil
}

// Fail records a terminal failure with its human-readable reason,
// classification, and attempt count. Validation failures also carry the
// exact missing-field list.
func (a *Aggregator) Fail(id string, cause error, attempts int) error {
	a.mu.Lock()
	r, ok := a.results[id]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownShipment, id)
	}
	if r.State == StateCompleted || r.State == StateError {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrTerminalResult, id, r.State)
	}

	r.State = StateError
	r.Error = cause.Error()
	r.ErrorType = ErrorType(cause)
	r.ErrorCategory = Categorize(cause)
	r.AttemptCount = attempts
	var validationErr *ValidationError
	if errors.As(cause, &validationErr) {
		r.MissingFields = append([]Field(nil), validationErr.MissingFields...)
	}
	now := a.clock.Now()
	a.mu.Unlock()

	_ = a.hooks.Emit(context.Background(), ResultEventOrphaned, ResultEvent{ //nolint:errcheck
		ShipmentID: id,
		State:      StateError,
		Err:        cause,
		Timestamp:  now,
	})
	return nil
}

// Pause marks the run paused. Only an in-flight run can pause.
func (a *Aggregator) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == RunProcessing {
		a.status = RunPaused
	}
}

// Resume returns a paused run to processing.
func (a *Aggregator) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == RunPaused {
		a.status = RunProcessing
	}
}

// Result returns a copy of one shipment's current result.
func (a *Aggregator) Result(id string) (Result, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.results[id]
	if !ok {
		return Result{}, false
	}
	return *r, true
}

// Totals returns the running totals over completed results.
func (a *Aggregator) Totals() (currentCost, savings float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range a.order {
		r := a.results[id]
		if r.State == StateCompleted {
			currentCost += r.CurrentCost
			savings += r.Savings
		}
	}
	return currentCost, savings
}

// Counts returns the number of results per state.
func (a *Aggregator) Counts() (pending, processing, completed, failed int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.results {
		switch r.State {
		case StatePending:
			pending++
		case StateProcessing:
			processing++
		case StateCompleted:
			completed++
		case StateError:
			failed++
		}
	}
	return pending, processing, completed, failed
}

// OnCompleted registers a handler called each time a shipment completes.
func (a *Aggregator) OnCompleted(handler func(context.Context, ResultEvent) error) error {
	_, err := a.hooks.Hook(ResultEventCompleted, handler)
	return err
}

// OnOrphaned registers a handler called each time a shipment is orphaned.
func (a *Aggregator) OnOrphaned(handler func(context.Context, ResultEvent) error) error {
	_, err := a.hooks.Hook(ResultEventOrphaned, handler)
	return err
}

// Finalize builds the immutable Run artifact and closes the aggregator.
// With partial set (user "stop and view results"), still-pending and
// still-processing shipments are counted as intentionally excluded, not
// as errors. Totals are sums over completed results only. Finalize may be
// called exactly once.
func (a *Aggregator) Finalize(partial bool) (*Run, error) {
	a.mu.Lock()
	if a.finalized {
		a.mu.Unlock()
		return nil, ErrRunFinalized
	}
	a.finalized = true

	run := &Run{
		ID:         a.runID,
		Status:     RunCompleted,
		StartedAt:  a.startedAt,
		FinishedAt: a.clock.Now(),
	}
	for _, id := range a.order {
		r := *a.results[id]
		switch r.State {
		case StateCompleted:
			run.TotalCurrentCost += r.CurrentCost
			run.TotalSavings += r.Savings
			run.Recommendations = append(run.Recommendations, r)
		case StateError:
			run.OrphanedShipments = append(run.OrphanedShipments, r)
		default:
			if partial {
				run.Excluded++
			}
		}
	}
	a.status = RunCompleted
	a.mu.Unlock()

	a.hooks.Close()
	return run, nil
}

// FailRun finalizes the run as failed before any shipment processing, for
// run-level failures such as zero valid carrier configurations.
func (a *Aggregator) FailRun(cause error) (*Run, error) {
	a.mu.Lock()
	if a.finalized {
		a.mu.Unlock()
		return nil, ErrRunFinalized
	}
	a.finalized = true
	a.status = RunFailed
	run := &Run{
		ID:            a.runID,
		Status:        RunFailed,
		StartedAt:     a.startedAt,
		FinishedAt:    a.clock.Now(),
		FailureReason: cause.Error(),
	}
	a.mu.Unlock()

	a.hooks.Close()
	return run, nil
}
