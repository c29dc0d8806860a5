package rateshop

import (
	"testing"
	"time"
)

func fillWindow(w *TelemetryWindow, n int, latency time.Duration, successEvery int) {
	for i := 0; i < n; i++ {
		// successEvery=0 means all succeed; otherwise every Nth fails.
		success := successEvery == 0 || (i+1)%successEvery != 0
		msg := ""
		if !success {
			msg = "boom"
		}
		w.Record("ups", latency, success, msg)
	}
}

func TestTelemetryWindow(t *testing.T) {
	t.Run("Empty Window Defaults", func(t *testing.T) {
		w := NewTelemetryWindow()
		if rate := w.SuccessRate(); rate != 1.0 {
			t.Errorf("expected 1.0 for empty window, got %v", rate)
		}
		if avg := w.AvgLatency(); avg != 0 {
			t.Errorf("expected 0 latency, got %v", avg)
		}
	})

	t.Run("Global Buffer Evicts FIFO At 100", func(t *testing.T) {
		w := NewTelemetryWindow()
		// 100 slow failures, then 100 fast successes: the slow samples
		// must be fully evicted.
		for i := 0; i < 100; i++ {
			w.Record("ups", 5*time.Second, false, "timeout")
		}
		for i := 0; i < 100; i++ {
			w.Record("ups", 100*time.Millisecond, true, "")
		}
		if got := w.Samples(); got != 100 {
			t.Errorf("expected 100 samples, got %d", got)
		}
		if rate := w.SuccessRate(); rate != 1.0 {
			t.Errorf("expected 1.0 after eviction, got %v", rate)
		}
		if avg := w.AvgLatency(); avg != 100*time.Millisecond {
			t.Errorf("expected 100ms, got %v", avg)
		}
	})

	t.Run("Per Carrier Buffer Caps At 20", func(t *testing.T) {
		w := NewTelemetryWindow()
		for i := 0; i < 20; i++ {
			w.Record("fedex", time.Second, true, "")
		}
		for i := 0; i < 20; i++ {
			w.Record("fedex", 2*time.Second, true, "")
		}
		if avg := w.CarrierAvgLatency("fedex"); avg != 2*time.Second {
			t.Errorf("expected 2s after eviction, got %v", avg)
		}
		if avg := w.CarrierAvgLatency("ups"); avg != 0 {
			t.Errorf("expected 0 for unseen carrier, got %v", avg)
		}
	})

	t.Run("Last Errors Ring", func(t *testing.T) {
		w := NewTelemetryWindow()
		for i := 0; i < 30; i++ {
			w.Record("ups", time.Second, false, "503 from carrier")
		}
		errs := w.LastErrors()
		if len(errs) != 20 {
			t.Errorf("expected 20 retained errors, got %d", len(errs))
		}
	})
}

func TestPlan(t *testing.T) {
	t.Run("Fast Regime", func(t *testing.T) {
		// 50 samples averaging 500ms at 98% success selects the fast
		// regime: concurrency 8, batch min(50, n/10).
		w := NewTelemetryWindow()
		fillWindow(w, 50, 500*time.Millisecond, 50) // one failure in 50
		plan := w.Plan(1000)

		if plan.Regime != RegimeFast {
			t.Fatalf("expected fast regime, got %s", plan.Regime)
		}
		if plan.Concurrency != 8 {
			t.Errorf("expected concurrency 8, got %d", plan.Concurrency)
		}
		if plan.BatchSize != 50 {
			t.Errorf("expected batch 50, got %d", plan.BatchSize)
		}
	})

	t.Run("Fast Regime Small Dataset", func(t *testing.T) {
		w := NewTelemetryWindow()
		fillWindow(w, 50, 500*time.Millisecond, 0)
		plan := w.Plan(200)
		if plan.BatchSize != 20 {
			t.Errorf("expected batch 20 (200/10), got %d", plan.BatchSize)
		}
	})

	t.Run("Degraded Regime On Low Success", func(t *testing.T) {
		w := NewTelemetryWindow()
		fillWindow(w, 50, 500*time.Millisecond, 2) // 50% success
		plan := w.Plan(1000)

		if plan.Regime != RegimeDegraded {
			t.Fatalf("expected degraded regime, got %s", plan.Regime)
		}
		if plan.Concurrency != 3 {
			t.Errorf("expected concurrency 3, got %d", plan.Concurrency)
		}
		if plan.BatchSize != 50 {
			t.Errorf("expected batch max(10, 1000/20)=50, got %d", plan.BatchSize)
		}
	})

	t.Run("Degraded Regime On High Latency", func(t *testing.T) {
		w := NewTelemetryWindow()
		fillWindow(w, 10, 5*time.Second, 0)
		plan := w.Plan(100)

		if plan.Regime != RegimeDegraded {
			t.Fatalf("expected degraded regime, got %s", plan.Regime)
		}
		if plan.BatchSize != 10 {
			t.Errorf("expected batch max(10, 100/20)=10, got %d", plan.BatchSize)
		}
	})

	t.Run("Nominal Regime", func(t *testing.T) {
		w := NewTelemetryWindow()
		fillWindow(w, 50, 2*time.Second, 10) // 90% success, 2s latency
		plan := w.Plan(1000)

		if plan.Regime != RegimeNominal {
			t.Fatalf("expected nominal regime, got %s", plan.Regime)
		}
		if plan.Concurrency != 5 {
			t.Errorf("expected concurrency 5, got %d", plan.Concurrency)
		}
		if plan.BatchSize != 35 {
			t.Errorf("expected batch min(35, 1000/15)=35, got %d", plan.BatchSize)
		}
	})

	t.Run("Inter Batch Delay Clamps", func(t *testing.T) {
		w := NewTelemetryWindow()
		fillWindow(w, 10, 100*time.Millisecond, 0)
		if d := w.Plan(100).InterBatchDelay; d != 50*time.Millisecond {
			t.Errorf("expected 50ms floor, got %v", d)
		}

		w = NewTelemetryWindow()
		fillWindow(w, 10, 10*time.Second, 0)
		if d := w.Plan(100).InterBatchDelay; d != 200*time.Millisecond {
			t.Errorf("expected 200ms ceiling, got %v", d)
		}

		w = NewTelemetryWindow()
		fillWindow(w, 10, 900*time.Millisecond, 0)
		if d := w.Plan(100).InterBatchDelay; d != 90*time.Millisecond {
			t.Errorf("expected 90ms (avg/10), got %v", d)
		}
	})

	t.Run("Retry Base Delay", func(t *testing.T) {
		w := NewTelemetryWindow()
		fillWindow(w, 10, 100*time.Millisecond, 0)
		if d := w.Plan(100).RetryBaseDelay; d != time.Second {
			t.Errorf("expected 1s floor, got %v", d)
		}

		w = NewTelemetryWindow()
		fillWindow(w, 10, 2*time.Second, 0)
		if d := w.Plan(100).RetryBaseDelay; d != 4*time.Second {
			t.Errorf("expected 4s (2*avg), got %v", d)
		}
	})

	t.Run("Batch Size Never Zero", func(t *testing.T) {
		w := NewTelemetryWindow()
		if plan := w.Plan(3); plan.BatchSize < 1 {
			t.Errorf("expected batch >= 1, got %d", plan.BatchSize)
		}
	})

	t.Run("Snapshot", func(t *testing.T) {
		w := NewTelemetryWindow()
		fillWindow(w, 10, time.Second, 2)
		snap := w.Snapshot()
		if snap.Samples != 10 {
			t.Errorf("expected 10 samples, got %d", snap.Samples)
		}
		if snap.SuccessRate != 0.5 {
			t.Errorf("expected 0.5, got %v", snap.SuccessRate)
		}
		if snap.AvgLatency != time.Second {
			t.Errorf("expected 1s, got %v", snap.AvgLatency)
		}
	})
}
