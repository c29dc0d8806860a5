package rateshop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// stubCarrier is a configurable Carrier for tests. failures counts down:
// while positive, Quote returns failErr.
type stubCarrier struct {
	name     string
	rates    []Rate
	err      error
	failures int32
	calls    int32
	delay    time.Duration
}

func (c *stubCarrier) Name() string { return c.name }

func (c *stubCarrier) Quote(ctx context.Context, _ QuoteRequest) ([]Rate, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if atomic.AddInt32(&c.failures, -1) >= 0 {
		return nil, c.err
	}
	return c.rates, nil
}

// permanentErrCarrier always fails.
type permanentErrCarrier struct {
	name string
	err  error
}

func (c *permanentErrCarrier) Name() string { return c.name }
func (c *permanentErrCarrier) Quote(context.Context, QuoteRequest) ([]Rate, error) {
	return nil, c.err
}

func groundMapping() MappingSet {
	return NewMappingSet([]ServiceMapping{
		{Service: "Ground Shipping", Category: CategoryGround, Confidence: 1, Confirmed: true},
	})
}

func groundShipment() ShipmentRecord {
	return ShipmentRecord{
		TrackingID:  "pkg-1",
		OriginZip:   "60601",
		DestZip:     "90001",
		Weight:      2,
		WeightUnit:  "lb",
		Length:      10, Width: 8, Height: 4,
		CurrentCost: 20,
		Service:     "Ground Shipping",
	}
}

func fastRetry() *RetryPolicy {
	return NewRetryPolicy("test-retry", 2, time.Millisecond)
}

func TestShopper(t *testing.T) {
	t.Run("Selects Cheapest Matching Category", func(t *testing.T) {
		ups := &stubCarrier{name: "ups", rates: []Rate{
			{Carrier: "ups", NativeCode: "03", Category: CategoryGround, TotalCharges: 15},
			{Carrier: "ups", NativeCode: "02", Category: CategoryTwoDay, TotalCharges: 12},
		}}
		fedex := &stubCarrier{name: "fedex", rates: []Rate{
			{Carrier: "fedex", NativeCode: "FEDEX_GROUND", Category: CategoryGround, TotalCharges: 14},
		}}
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), []Carrier{ups, fedex})
		defer shopper.Close()

		quote, err := shopper.Shop(context.Background(), groundShipment(), fastRetry())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if quote.Best.Carrier != "fedex" || quote.Best.TotalCharges != 14 {
			t.Errorf("expected fedex 14 as best, got %+v", quote.Best)
		}
		if quote.Best.Category != CategoryGround {
			t.Errorf("best must match confirmed category, got %s", quote.Best.Category)
		}
		// Best overall ignores category: the 12 two-day rate wins.
		if quote.BestOverall.TotalCharges != 12 {
			t.Errorf("expected 12 as best overall, got %+v", quote.BestOverall)
		}
		if quote.Savings != 6 {
			t.Errorf("expected savings 20-14=6, got %v", quote.Savings)
		}
		if quote.MaxSavings != 8 {
			t.Errorf("expected max savings 20-12=8, got %v", quote.MaxSavings)
		}
		if quote.CategoryFallback {
			t.Error("expected mapping-exact comparison")
		}
	})

	t.Run("Falls Back To Cheapest Overall When Category Unmatched", func(t *testing.T) {
		ups := &stubCarrier{name: "ups", rates: []Rate{
			{Carrier: "ups", NativeCode: "02", Category: CategoryTwoDay, TotalCharges: 18},
			{Carrier: "ups", NativeCode: "01", Category: CategoryOvernight, TotalCharges: 25},
		}}
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), []Carrier{ups})
		defer shopper.Close()

		quote, err := shopper.Shop(context.Background(), groundShipment(), fastRetry())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !quote.CategoryFallback {
			t.Error("expected explicit category fallback flag")
		}
		if quote.Best.TotalCharges != 18 {
			t.Errorf("expected cheapest overall 18, got %+v", quote.Best)
		}
		if quote.Savings != 2 {
			t.Errorf("expected savings 2, got %v", quote.Savings)
		}
	})

	t.Run("Unmapped Service Fails Immediately", func(t *testing.T) {
		ups := &stubCarrier{name: "ups", rates: []Rate{
			{Carrier: "ups", NativeCode: "03", Category: CategoryGround, TotalCharges: 15},
		}}
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), []Carrier{ups})
		defer shopper.Close()

		rec := groundShipment()
		rec.Service = "Super Saver Select"
		_, err := shopper.Shop(context.Background(), rec, fastRetry())

		var mappingErr *MappingError
		if !errors.As(err, &mappingErr) {
			t.Fatalf("expected MappingError, got %v", err)
		}
		if atomic.LoadInt32(&ups.calls) != 0 {
			t.Error("carrier must not be called for unmapped service")
		}
	})

	t.Run("Unconfirmed Mapping Carries No Authority", func(t *testing.T) {
		mappings := NewMappingSet([]ServiceMapping{
			{Service: "Ground Shipping", Category: CategoryGround, Confidence: 0.9, Confirmed: false},
		})
		shopper := NewShopper("test-shopper", NewTaxonomy(), mappings, []Carrier{
			&stubCarrier{name: "ups"},
		})
		defer shopper.Close()

		_, err := shopper.Shop(context.Background(), groundShipment(), fastRetry())
		var mappingErr *MappingError
		if !errors.As(err, &mappingErr) {
			t.Fatalf("expected MappingError, got %v", err)
		}
	})

	t.Run("Resolves Native Code Through Taxonomy", func(t *testing.T) {
		// Carrier returns rates without resolved categories.
		ups := &stubCarrier{name: "ups", rates: []Rate{
			{Carrier: "ups", NativeCode: "03", TotalCharges: 15},
			{Carrier: "ups", NativeCode: "01", TotalCharges: 40},
		}}
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), []Carrier{ups})
		defer shopper.Close()

		quote, err := shopper.Shop(context.Background(), groundShipment(), fastRetry())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if quote.Best.Category != CategoryGround || quote.Best.TotalCharges != 15 {
			t.Errorf("expected resolved GROUND 15, got %+v", quote.Best)
		}
	})

	t.Run("No Rates Returned", func(t *testing.T) {
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), []Carrier{
			&stubCarrier{name: "ups"},
		})
		defer shopper.Close()

		_, err := shopper.Shop(context.Background(), groundShipment(), fastRetry())
		var noRates *NoRatesError
		if !errors.As(err, &noRates) {
			t.Fatalf("expected NoRatesError, got %v", err)
		}
	})

	t.Run("Invalid Rate Data Is Fatal", func(t *testing.T) {
		ups := &stubCarrier{name: "ups", rates: []Rate{
			{Carrier: "ups", NativeCode: "03", Category: CategoryGround},
		}}
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), []Carrier{ups})
		defer shopper.Close()

		_, err := shopper.Shop(context.Background(), groundShipment(), fastRetry())
		var invalid *InvalidRateError
		if !errors.As(err, &invalid) {
			t.Fatalf("expected InvalidRateError, got %v", err)
		}
	})

	t.Run("Partial Carrier Failure Still Selects", func(t *testing.T) {
		ups := &permanentErrCarrier{name: "ups", err: &CarrierAPIError{
			Carrier: "ups", StatusCode: 400, Err: errors.New("bad request"),
		}}
		fedex := &stubCarrier{name: "fedex", rates: []Rate{
			{Carrier: "fedex", NativeCode: "FEDEX_GROUND", Category: CategoryGround, TotalCharges: 14},
		}}
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), []Carrier{ups, fedex})
		defer shopper.Close()

		quote, err := shopper.Shop(context.Background(), groundShipment(), fastRetry())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if quote.Best.Carrier != "fedex" {
			t.Errorf("expected fedex rate, got %+v", quote.Best)
		}
	})

	t.Run("All Carriers Failing Propagates Error", func(t *testing.T) {
		cause := &CarrierAPIError{Carrier: "ups", StatusCode: 400, Err: errors.New("bad request")}
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), []Carrier{
			&permanentErrCarrier{name: "ups", err: cause},
		})
		defer shopper.Close()

		quote, err := shopper.Shop(context.Background(), groundShipment(), fastRetry())
		var carrierErr *CarrierAPIError
		if !errors.As(err, &carrierErr) {
			t.Fatalf("expected CarrierAPIError, got %v", err)
		}
		if quote.Attempts != 1 {
			t.Errorf("expected 1 attempt for non-retryable error, got %d", quote.Attempts)
		}
	})

	t.Run("Transient Failures Retry Then Succeed", func(t *testing.T) {
		ups := &stubCarrier{
			name:     "ups",
			failures: 2,
			err:      &CarrierAPIError{Carrier: "ups", StatusCode: 503, Err: errors.New("unavailable")},
			rates: []Rate{
				{Carrier: "ups", NativeCode: "03", Category: CategoryGround, TotalCharges: 15},
			},
		}
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), []Carrier{ups})
		defer shopper.Close()

		quote, err := shopper.Shop(context.Background(), groundShipment(), fastRetry())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if quote.Attempts != 3 {
			t.Errorf("expected 3 attempts, got %d", quote.Attempts)
		}
		if quote.Savings != 5 {
			t.Errorf("expected savings 5, got %v", quote.Savings)
		}
	})

	t.Run("Records Telemetry Per Carrier Call", func(t *testing.T) {
		telemetry := NewTelemetryWindow()
		ups := &stubCarrier{name: "ups", rates: []Rate{
			{Carrier: "ups", NativeCode: "03", Category: CategoryGround, TotalCharges: 15},
		}}
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), []Carrier{ups}).
			WithTelemetry(telemetry)
		defer shopper.Close()

		if _, err := shopper.Shop(context.Background(), groundShipment(), fastRetry()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if telemetry.Samples() != 1 {
			t.Errorf("expected 1 sample, got %d", telemetry.Samples())
		}
	})

	t.Run("Exposes Its Carriers", func(t *testing.T) {
		carriers := []Carrier{
			&stubCarrier{name: "ups"},
			&stubCarrier{name: "fedex"},
		}
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), carriers)
		defer shopper.Close()

		if got := shopper.Carriers(); len(got) != 2 {
			t.Errorf("expected 2 carriers, got %d", len(got))
		}
	})
}

func TestBuildRequest(t *testing.T) {
	t.Run("Residential Precedence CSV Over Override", func(t *testing.T) {
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), nil).
			WithResidentialOverride(false)

		rec := groundShipment()
		residential := true
		rec.Residential = &residential

		req := shopper.BuildRequest(rec, CategoryGround)
		if !req.To.Residential {
			t.Error("explicit CSV flag must win over override")
		}
		if req.ResidentialSource != ResidentialFromCSV {
			t.Errorf("expected csv provenance, got %s", req.ResidentialSource)
		}
	})

	t.Run("Residential Override Over Default", func(t *testing.T) {
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), nil).
			WithResidentialOverride(true)

		req := shopper.BuildRequest(groundShipment(), CategoryGround)
		if !req.To.Residential {
			t.Error("override must win over default")
		}
		if req.ResidentialSource != ResidentialFromOverride {
			t.Errorf("expected override provenance, got %s", req.ResidentialSource)
		}
	})

	t.Run("Default Is Commercial", func(t *testing.T) {
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), nil)

		req := shopper.BuildRequest(groundShipment(), CategoryGround)
		if req.To.Residential {
			t.Error("default must be commercial")
		}
		if req.ResidentialSource != ResidentialFromDefault {
			t.Errorf("expected default provenance, got %s", req.ResidentialSource)
		}
	})

	t.Run("Zone Override Passes Through", func(t *testing.T) {
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), nil)

		rec := groundShipment()
		zone := 7
		rec.Zone = &zone

		req := shopper.BuildRequest(rec, CategoryGround)
		if req.ZoneOverride == nil || *req.ZoneOverride != 7 {
			t.Error("expected zone 7 passed through")
		}
	})

	t.Run("Requested Category From Mapping", func(t *testing.T) {
		shopper := NewShopper("test-shopper", NewTaxonomy(), groundMapping(), nil)

		req := shopper.BuildRequest(groundShipment(), CategoryGround)
		if len(req.Categories) != 1 || req.Categories[0] != CategoryGround {
			t.Errorf("expected [GROUND], got %v", req.Categories)
		}
	})
}
