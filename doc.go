// Package rateshop provides a multi-carrier rate-shopping and batch analysis
// engine for comparing historical shipment costs against live carrier quotes.
//
// # Overview
//
// rateshop takes a set of normalized shipment records plus user-confirmed
// mappings from free-text service names to a carrier-agnostic service
// taxonomy, fans quote requests out to one or more carrier integrations
// under bounded concurrency with adaptive batch sizing and retry/backoff,
// selects the best matching and best overall rate per shipment, computes
// savings, and produces a final analysis artifact that separates
// successfully analyzed shipments from orphaned (unprocessable) ones.
//
// # Core Concepts
//
// The engine is built from small, independently testable components:
//
//   - Taxonomy: fixed bidirectional map between carrier-native service
//     codes and universal categories (GROUND, OVERNIGHT, ...)
//   - Normalizer: cleans and validates one raw shipment record
//   - TelemetryWindow: rolling latency/outcome buffers that drive the
//     adaptive batch planner
//   - WorkerPool: bounded-parallelism FIFO executor
//   - RetryPolicy: exponential-backoff retry with error classification
//   - Shopper: per-shipment quote fan-out and rate selection
//   - Aggregator: per-shipment state machine and run finalization
//   - ChunkRunner: chunked streaming for large datasets
//   - Analyzer: the front door composing all of the above
//
// # Quick Start
//
//	taxonomy := rateshop.NewTaxonomy()
//	mappings := rateshop.NewMappingSet([]rateshop.ServiceMapping{
//	    {Service: "Ground Shipping", Category: rateshop.CategoryGround, Confirmed: true},
//	})
//
//	analyzer := rateshop.NewAnalyzer(rateshop.DefaultConfig(), taxonomy, mappings,
//	    []rateshop.Carrier{upsAdapter, fedexAdapter},
//	)
//	run, err := analyzer.Run(ctx, shipments)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("saved %.2f across %d shipments (%d orphaned)\n",
//	    run.TotalSavings, len(run.Recommendations), len(run.OrphanedShipments))
//
// # Partial Failure
//
// Per-shipment failures never abort a run. Validation and mapping failures
// orphan the shipment immediately; transient carrier failures are retried
// with exponential backoff and orphan the shipment only after the retry
// bound is exhausted. Only a run with zero usable carrier integrations
// fails at the run level, before any shipment is processed.
//
// # Concurrency
//
// Quote calls are the only blocking operations. They are dispatched through
// a bounded worker pool whose size, batch size, and inter-batch delay are
// derived from a rolling telemetry window, so throughput adapts to carrier
// health without manual tuning. Runs can be paused (in-flight quotes
// finish, no new ones are issued), resumed, or stopped early (immediate
// finalization over the results gathered so far).
package rateshop
