package rateshop

import "github.com/zoobzio/capitan"

// Signal definitions for engine events.
// Signals follow the pattern: <component>.<event>.
var (
	// Retry signals.
	SignalRetryAttemptStart = capitan.NewSignal(
		"retry.attempt-start",
		"Retry policy is starting an execution attempt",
	)
	SignalRetryAttemptFail = capitan.NewSignal(
		"retry.attempt-fail",
		"Retry policy attempt failed and will be retried if the error is retryable and attempts remain",
	)
	SignalRetryWaiting = capitan.NewSignal(
		"retry.waiting",
		"Retry policy is delaying before the next execution attempt",
	)
	SignalRetryExhausted = capitan.NewSignal(
		"retry.exhausted",
		"Retry policy has exhausted all retry attempts and is failing",
	)

	// Planner signals.
	SignalPlannerRegimeChange = capitan.NewSignal(
		"planner.regime-change",
		"Adaptive batch planner has moved to a different throughput regime",
	)

	// Worker pool signals.
	SignalPoolSaturated = capitan.NewSignal(
		"pool.saturated",
		"Worker pool has reached maximum capacity and queued the submitted task",
	)

	// Orchestrator signals.
	SignalCategoryFallback = capitan.NewSignal(
		"shop.category-fallback",
		"No rate matched the confirmed category; comparison fell back to the cheapest overall rate",
	)
	SignalMappingMismatch = capitan.NewSignal(
		"shop.mapping-mismatch",
		"Selected rate's resolved category does not match the confirmed mapping",
	)
	SignalUnknownServiceCode = capitan.NewSignal(
		"shop.unknown-service-code",
		"Carrier returned a native service code with no taxonomy mapping",
	)

	// Run signals.
	SignalRunPaused = capitan.NewSignal(
		"run.paused",
		"Analysis run paused; in-flight quotes finish, no new quotes are issued",
	)
	SignalRunResumed = capitan.NewSignal(
		"run.resumed",
		"Analysis run resumed after a pause",
	)
	SignalRunStopped = capitan.NewSignal(
		"run.stopped",
		"Analysis run stopped early; finalizing over results gathered so far",
	)
	SignalRunFinalized = capitan.NewSignal(
		"run.finalized",
		"Analysis run finalized into its report artifact",
	)
)

// Common field keys using capitan primitive types.
// All keys use primitive types to avoid custom struct serialization.
var (
	// Common fields.
	FieldName      = capitan.NewStringKey("name")       // Component instance name
	FieldError     = capitan.NewStringKey("error")      // Error message
	FieldTimestamp = capitan.NewFloat64Key("timestamp") // Unix timestamp

	// Retry fields.
	FieldAttempt     = capitan.NewIntKey("attempt")        // Current attempt number
	FieldMaxAttempts = capitan.NewIntKey("max_attempts")   // Maximum attempts
	FieldDelay       = capitan.NewFloat64Key("delay")      // Current backoff delay in seconds
	FieldNextDelay   = capitan.NewFloat64Key("next_delay") // Next delay if this attempt fails in seconds

	// Planner fields.
	FieldRegime      = capitan.NewStringKey("regime")        // fast/nominal/degraded
	FieldBatchSize   = capitan.NewIntKey("batch_size")       // Planned batch size
	FieldConcurrency = capitan.NewIntKey("concurrency")      // Planned concurrency level
	FieldSuccessRate = capitan.NewFloat64Key("success_rate") // Rolling success rate
	FieldAvgLatency  = capitan.NewFloat64Key("avg_latency")  // Rolling average latency in ms

	// Worker pool fields.
	FieldWorkerCount = capitan.NewIntKey("worker_count") // Total worker slots
	FieldQueueDepth  = capitan.NewIntKey("queue_depth")  // Tasks waiting for a worker

	// Orchestrator fields.
	FieldShipment    = capitan.NewStringKey("shipment") // Shipment identity
	FieldCarrier     = capitan.NewStringKey("carrier")  // Carrier name
	FieldServiceName = capitan.NewStringKey("service")  // Raw service name
	FieldCategory    = capitan.NewStringKey("category") // Universal category

	// Run fields.
	FieldRunID     = capitan.NewStringKey("run_id") // Analysis run identifier
	FieldCompleted = capitan.NewIntKey("completed") // Completed shipments
	FieldOrphaned  = capitan.NewIntKey("orphaned")  // Orphaned shipments
	FieldExcluded  = capitan.NewIntKey("excluded")  // Shipments excluded by an early stop
)
