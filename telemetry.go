package rateshop

import (
	"context"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/metricz"
)

// Observability constants for the telemetry window.
const (
	TelemetrySamplesTotal  = metricz.Key("telemetry.samples.total")
	TelemetryErrorsTotal   = metricz.Key("telemetry.errors.total")
	TelemetrySuccessRate   = metricz.Key("telemetry.success.rate")
	TelemetryAvgLatencyMs  = metricz.Key("telemetry.latency.avg.ms")
	PlannerBatchSize       = metricz.Key("planner.batch.size")
	PlannerConcurrency     = metricz.Key("planner.concurrency")
	PlannerInterBatchDelay = metricz.Key("planner.inter_batch.delay.ms")
)

// Rolling buffer capacities.
const (
	globalWindowSize  = 100
	carrierWindowSize = 20
)

// Regime is the throughput regime the planner is currently operating in.
type Regime string

// Planner regimes.
const (
	RegimeFast     Regime = "fast"     // reliable carriers, low latency
	RegimeNominal  Regime = "nominal"  // default operating point
	RegimeDegraded Regime = "degraded" // failing or slow carriers, shed load
)

// Plan is the batch-execution parameter set derived from the current
// rolling telemetry. It is a pure function of the window's averages; the
// planner never needs manual tuning per dataset size.
type Plan struct {
	BatchSize       int
	Concurrency     int
	InterBatchDelay time.Duration
	RetryBaseDelay  time.Duration
	Regime          Regime
}

type sample struct {
	elapsed time.Duration
	success bool
}

// ring is a fixed-capacity FIFO-evicting sample buffer.
type ring struct {
	buf  []sample
	next int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]sample, capacity)}
}

func (r *ring) append(s sample) {
	r.buf[r.next] = s
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *ring) stats() (avg time.Duration, successRate float64) {
	if r.size == 0 {
		return 0, 1.0
	}
	var total time.Duration
	successes := 0
	for i := 0; i < r.size; i++ {
		total += r.buf[i].elapsed
		if r.buf[i].success {
			successes++
		}
	}
	return total / time.Duration(r.size), float64(successes) / float64(r.size)
}

// TelemetryWindow maintains rolling buffers of quote response times and
// outcomes: a global buffer of the last 100 samples and a per-carrier
// buffer of the last 20. It is purely derived state, rebuilt each run,
// never persisted. Appends are synchronized; the window is read far more
// often (for planning) than written.
type TelemetryWindow struct {
	mu         sync.Mutex
	global     *ring
	perCarrier map[string]*ring
	lastErrors []string
	lastRegime Regime
	metrics    *metricz.Registry
}

// NewTelemetryWindow creates an empty window.
func NewTelemetryWindow() *TelemetryWindow {
	metrics := metricz.New()
	metrics.Counter(TelemetrySamplesTotal)
	metrics.Counter(TelemetryErrorsTotal)
	metrics.Gauge(TelemetrySuccessRate)
	metrics.Gauge(TelemetryAvgLatencyMs)
	metrics.Gauge(PlannerBatchSize)
	metrics.Gauge(PlannerConcurrency)
	metrics.Gauge(PlannerInterBatchDelay)

	return &TelemetryWindow{
		global:     newRing(globalWindowSize),
		perCarrier: make(map[string]*ring),
		metrics:    metrics,
	}
}

// Record appends one quote outcome to the rolling buffers.
func (w *TelemetryWindow) Record(carrier string, elapsed time.Duration, success bool, errMsg string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := sample{elapsed: elapsed, success: success}
	w.global.append(s)

	key := carrierKey(carrier)
	if w.perCarrier[key] == nil {
		w.perCarrier[key] = newRing(carrierWindowSize)
	}
	w.perCarrier[key].append(s)

	if !success {
		w.metrics.Counter(TelemetryErrorsTotal).Inc()
		if errMsg != "" {
			w.lastErrors = append(w.lastErrors, errMsg)
			if len(w.lastErrors) > carrierWindowSize {
				w.lastErrors = w.lastErrors[1:]
			}
		}
	}
	w.metrics.Counter(TelemetrySamplesTotal).Inc()

	avg, rate := w.global.stats()
	w.metrics.Gauge(TelemetryAvgLatencyMs).Set(float64(avg.Milliseconds()))
	w.metrics.Gauge(TelemetrySuccessRate).Set(rate)
}

// AvgLatency returns the rolling average response time across carriers.
func (w *TelemetryWindow) AvgLatency() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	avg, _ := w.global.stats()
	return avg
}

// SuccessRate returns the rolling success rate. An empty window reports
// 1.0 so a fresh run starts in the fast regime.
func (w *TelemetryWindow) SuccessRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, rate := w.global.stats()
	return rate
}

// CarrierAvgLatency returns the rolling average response time for a
// single carrier.
func (w *TelemetryWindow) CarrierAvgLatency(carrier string) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.perCarrier[carrierKey(carrier)]
	if !ok {
		return 0
	}
	avg, _ := r.stats()
	return avg
}

// Samples returns the number of samples currently in the global window.
func (w *TelemetryWindow) Samples() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.global.size
}

// LastErrors returns the most recent error messages, oldest first.
func (w *TelemetryWindow) LastErrors() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.lastErrors))
	copy(out, w.lastErrors)
	return out
}

// Plan derives the batch parameters for the given total item count from
// the current rolling averages:
//
//   - success rate >= 0.95 and average latency under 1s: fast regime
//     (batch min(50, n/10), concurrency 8)
//   - success rate under 0.80 or average latency over 3s: degraded regime
//     (batch max(10, n/20), concurrency 3)
//   - otherwise: nominal regime (batch min(35, n/15), concurrency 5)
//
// The inter-batch delay is avg/10 clamped to [50ms, 200ms] and the retry
// base delay is max(1s, 2*avg), so the engine trades throughput for
// stability instead of amplifying load into a failing carrier.
func (w *TelemetryWindow) Plan(totalItems int) Plan {
	w.mu.Lock()
	avg, rate := w.global.stats()
	prev := w.lastRegime

	var plan Plan
	avgMs := float64(avg.Milliseconds())
	switch {
	case rate >= 0.95 && avgMs < 1000:
		plan.Regime = RegimeFast
		plan.BatchSize = minInt(50, totalItems/10)
		plan.Concurrency = 8
	case rate < 0.80 || avgMs > 3000:
		plan.Regime = RegimeDegraded
		plan.BatchSize = maxInt(10, totalItems/20)
		plan.Concurrency = 3
	default:
		plan.Regime = RegimeNominal
		plan.BatchSize = minInt(35, totalItems/15)
		plan.Concurrency = 5
	}
	if plan.BatchSize < 1 {
		plan.BatchSize = 1
	}
	plan.InterBatchDelay = clampDuration(avg/10, 50*time.Millisecond, 200*time.Millisecond)
	plan.RetryBaseDelay = maxDuration(time.Second, 2*avg)

	w.lastRegime = plan.Regime
	w.metrics.Gauge(PlannerBatchSize).Set(float64(plan.BatchSize))
	w.metrics.Gauge(PlannerConcurrency).Set(float64(plan.Concurrency))
	w.metrics.Gauge(PlannerInterBatchDelay).Set(float64(plan.InterBatchDelay.Milliseconds()))
	w.mu.Unlock()

	if prev != "" && prev != plan.Regime {
		capitan.Info(context.Background(), SignalPlannerRegimeChange,
			FieldRegime.Field(string(plan.Regime)),
			FieldSuccessRate.Field(rate),
			FieldAvgLatency.Field(avgMs),
			FieldBatchSize.Field(plan.BatchSize),
			FieldConcurrency.Field(plan.Concurrency),
		)
	}
	return plan
}

// Metrics returns the metrics registry for this window.
func (w *TelemetryWindow) Metrics() *metricz.Registry {
	return w.metrics
}

// Snapshot is a read-only view of the window, exposed after finalization.
type Snapshot struct {
	Samples     int
	SuccessRate float64
	AvgLatency  time.Duration
	LastErrors  []string
}

// Snapshot captures the window's current derived state.
func (w *TelemetryWindow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	avg, rate := w.global.stats()
	errs := make([]string, len(w.lastErrors))
	copy(errs, w.lastErrors)
	return Snapshot{
		Samples:     w.global.size,
		SuccessRate: rate,
		AvgLatency:  avg,
		LastErrors:  errs,
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
