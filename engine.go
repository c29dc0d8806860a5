package rateshop

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// Analyzer is the engine front door. It validates the input set, drives
// the orchestrator through adaptively sized batches (or chunked streaming
// for large sets), records every outcome in the aggregator, and emits
// the finalized Run artifact.
//
// A run can be paused (in-flight quotes finish, no new quotes are
// issued), resumed, and stopped (immediate finalization over whatever
// results exist). Per-shipment failures never abort the run.
type Analyzer struct {
	cfg        Config
	normalizer *Normalizer
	shopper    *Shopper
	telemetry  *TelemetryWindow
	chunker    *ChunkRunner

	agg *Aggregator // non-nil only while a run is active

	paused  atomic.Bool
	stopped atomic.Bool

	clock clockz.Clock
	mu    sync.Mutex
}

// NewAnalyzer composes an engine from its collaborators. The carrier
// integrations are the only external dependency; everything else is
// constructed internally from the config.
func NewAnalyzer(cfg Config, taxonomy *Taxonomy, mappings MappingSet, carriers []Carrier) *Analyzer {
	cfg.applyDefaults()

	telemetry := NewTelemetryWindow()
	shopper := NewShopper("rate-shopper", taxonomy, mappings, carriers).
		WithTelemetry(telemetry)
	if cfg.ResidentialOverride != nil {
		shopper.WithResidentialOverride(*cfg.ResidentialOverride)
	}

	return &Analyzer{
		cfg:        cfg,
		normalizer: NewNormalizer(cfg.RequiredFields...),
		shopper:    shopper,
		telemetry:  telemetry,
		chunker:    NewChunkRunner("shipment-chunks", cfg.ChunkSize, cfg.ChunkConcurrency),
		clock:      clockz.RealClock,
	}
}

// WithClock sets a custom clock for testing.
func (a *Analyzer) WithClock(clock clockz.Clock) *Analyzer {
	a.clock = clock
	a.shopper.WithClock(clock)
	return a
}

// WithProgress sets the chunk progress callback used in streaming mode.
func (a *Analyzer) WithProgress(fn ProgressFunc) *Analyzer {
	a.chunker.WithProgress(fn)
	return a
}

// WithLocator sets the ZIP locator used to backfill city/state.
func (a *Analyzer) WithLocator(locator ZipLocator) *Analyzer {
	a.normalizer.WithLocator(locator)
	return a
}

// Telemetry returns the run's telemetry window.
func (a *Analyzer) Telemetry() *TelemetryWindow { return a.telemetry }

// Shopper returns the underlying orchestrator.
func (a *Analyzer) Shopper() *Shopper { return a.shopper }

// Aggregator returns the active run's aggregator, nil when idle. Useful
// for registering completion hooks before calling Run.
func (a *Analyzer) Aggregator() *Aggregator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.agg
}

// Pause stops the issuance of new quote calls; in-flight quotes finish.
func (a *Analyzer) Pause() {
	if a.paused.CompareAndSwap(false, true) {
		a.mu.Lock()
		if a.agg != nil {
			a.agg.Pause()
			capitan.Info(context.Background(), SignalRunPaused,
				FieldRunID.Field(a.agg.RunID()),
			)
		}
		a.mu.Unlock()
	}
}

// Resume continues a paused run.
func (a *Analyzer) Resume() {
	if a.paused.CompareAndSwap(true, false) {
		a.mu.Lock()
		if a.agg != nil {
			a.agg.Resume()
			capitan.Info(context.Background(), SignalRunResumed,
				FieldRunID.Field(a.agg.RunID()),
			)
		}
		a.mu.Unlock()
	}
}

// Stop requests immediate finalization using whatever results exist.
// Still-pending shipments are excluded from the artifact, not errored.
func (a *Analyzer) Stop() {
	if a.stopped.CompareAndSwap(false, true) {
		a.paused.Store(false)
		a.mu.Lock()
		if a.agg != nil {
			a.agg.Resume()
			capitan.Info(context.Background(), SignalRunStopped,
				FieldRunID.Field(a.agg.RunID()),
			)
		}
		a.mu.Unlock()
	}
}

// Prepare validates and registers the shipment set and returns the
// aggregator for the upcoming run, letting callers attach hooks before
// processing starts. Run calls it implicitly when not already prepared.
func (a *Analyzer) Prepare(shipments []ShipmentRecord) *Aggregator {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.agg == nil {
		a.agg = NewAggregator(shipments)
	}
	return a.agg
}

// Run analyzes the full shipment set and returns the finalized artifact.
// The only run-level failure is a configuration with zero carrier
// integrations, reported before any shipment is processed; every other
// failure is per-shipment and lands in the orphaned list.
func (a *Analyzer) Run(ctx context.Context, shipments []ShipmentRecord) (*Run, error) {
	a.stopped.Store(false)
	agg := a.Prepare(shipments)
	defer func() {
		a.mu.Lock()
		a.agg = nil
		a.mu.Unlock()
	}()

	if len(a.shopper.Carriers()) == 0 {
		run, err := agg.FailRun(ErrNoCarriers)
		if err != nil {
			return nil, err
		}
		return run, ErrNoCarriers
	}

	// Validate up front; invalid records orphan immediately and never
	// reach a carrier.
	valid := make([]ShipmentRecord, 0, len(shipments))
	for i := range shipments {
		rec := shipments[i].Clone()
		if rec.TrackingID == "" {
			rec.TrackingID = fmt.Sprintf("row-%d", i+1)
		}
		if err := a.normalizer.ValidateRecord(&rec); err != nil {
			if failErr := agg.Fail(rec.ID(), err, 0); failErr != nil {
				continue // duplicate identity already terminal
			}
			continue
		}
		valid = append(valid, rec)
	}

	var runErr error
	if len(valid) > a.cfg.StreamThreshold {
		runErr = a.chunker.Run(ctx, valid, func(ctx context.Context, _ int, chunk []ShipmentRecord) error {
			return a.processBatches(ctx, agg, chunk, len(valid))
		})
	} else {
		runErr = a.processBatches(ctx, agg, valid, len(valid))
	}
	if runErr != nil && ctx.Err() != nil {
		// Context cancellation finalizes partial, like an explicit stop.
		a.stopped.Store(true)
	}

	run, err := agg.Finalize(a.stopped.Load())
	if err != nil {
		return nil, err
	}
	run.Telemetry = a.telemetry.Snapshot()

	capitan.Info(context.Background(), SignalRunFinalized,
		FieldRunID.Field(run.ID),
		FieldCompleted.Field(len(run.Recommendations)),
		FieldOrphaned.Field(len(run.OrphanedShipments)),
		FieldExcluded.Field(run.Excluded),
	)
	return run, nil
}

// processBatches walks the shipment list in planner-sized batches. Each
// batch runs under its own bounded worker pool at the planned concurrency
// and is followed by the planned inter-batch delay.
func (a *Analyzer) processBatches(ctx context.Context, agg *Aggregator, shipments []ShipmentRecord, totalItems int) error {
	for start := 0; start < len(shipments); {
		if a.stopped.Load() {
			return nil
		}
		if err := a.waitWhilePaused(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		plan := a.telemetry.Plan(totalItems)
		end := start + plan.BatchSize
		if end > len(shipments) {
			end = len(shipments)
		}
		batch := shipments[start:end]
		a.runBatch(ctx, agg, batch, plan)
		start = end

		if start < len(shipments) && !a.stopped.Load() {
			select {
			case <-a.clock.After(plan.InterBatchDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// runBatch dispatches one batch through a bounded worker pool and blocks
// until every task resolves. A task failure only frees its slot early;
// the rest of the batch keeps going.
func (a *Analyzer) runBatch(ctx context.Context, agg *Aggregator, batch []ShipmentRecord, plan Plan) {
	pool := NewWorkerPool("quote-pool", plan.Concurrency).WithClock(a.clock)
	retry := NewRetryPolicy("carrier-quote", *a.cfg.MaxRetries, plan.RetryBaseDelay).
		WithClock(a.clock)

	tasks := make([]*Task, 0, len(batch))
	for i := range batch {
		rec := batch[i]
		if err := agg.Begin(rec.ID()); err != nil {
			continue // already terminal, e.g. duplicate identity
		}
		task := pool.Submit(ctx, Name("quote-"+rec.ID()), func(taskCtx context.Context) error {
			// Re-checked at dequeue time: a pause or stop must not issue
			// quote calls for tasks still queued, only let running ones
			// finish. A stop leaves the shipment non-terminal so partial
			// finalization counts it as excluded.
			if err := a.waitWhilePaused(taskCtx); err != nil {
				return err
			}
			if a.stopped.Load() {
				return nil
			}
			quote, err := a.shopper.Shop(taskCtx, rec, retry)
			if err != nil {
				return agg.Fail(rec.ID(), err, quote.Attempts)
			}
			return agg.Complete(rec.ID(), quote)
		})
		tasks = append(tasks, task)
	}
	for _, task := range tasks {
		_ = task.Wait() //nolint:errcheck // outcomes are recorded in the aggregator
	}
	pool.Close()
}

// waitWhilePaused blocks between batches while the run is paused.
func (a *Analyzer) waitWhilePaused(ctx context.Context) error {
	for a.paused.Load() && !a.stopped.Load() {
		select {
		case <-a.clock.After(a.cfg.PauseTick):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
