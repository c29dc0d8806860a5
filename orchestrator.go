package rateshop

import (
	"context"
	"fmt"
	"sync"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Shopper.
const (
	// Spans.
	ShopSpan      = tracez.Key("shop.shipment")
	ShopQuoteSpan = tracez.Key("shop.quote")

	// Tags.
	ShopTagShipment = tracez.Tag("shop.shipment_id")
	ShopTagCarrier  = tracez.Tag("shop.carrier")
	ShopTagRates    = tracez.Tag("shop.rate_count")
	ShopTagSuccess  = tracez.Tag("shop.success")
	ShopTagError    = tracez.Tag("shop.error")
)

// ShipmentQuote is the outcome of rate shopping one shipment: every rate
// collected across carriers, the selected comparison rate, the cheapest
// overall rate, and the derived savings.
type ShipmentQuote struct {
	Record  ShipmentRecord
	Request QuoteRequest
	Rates   []Rate

	// Best is the comparison rate: the cheapest rate whose resolved
	// category equals the confirmed mapping's category, or — when no rate
	// matches that category — the cheapest overall rate with
	// CategoryFallback set.
	Best *Rate

	// BestOverall is the cheapest rate regardless of category, used only
	// for the maximum-possible-savings metric.
	BestOverall *Rate

	Savings          float64
	MaxSavings       float64
	CategoryFallback bool // comparison was not mapping-exact
	MappingMismatch  bool // observational integrity warning
	Attempts         int  // most attempts any carrier call needed
}

// Shopper builds carrier-agnostic quote requests, fans them out to the
// selected carrier integrations under retry, and applies the rate
// selection algorithm. It never guesses: a shipment whose service name
// has no confirmed mapping fails immediately.
type Shopper struct {
	name      Name
	taxonomy  *Taxonomy
	mappings  MappingSet
	carriers  []Carrier
	telemetry *TelemetryWindow

	residentialOverride *bool

	clock  clockz.Clock
	tracer *tracez.Tracer
	mu     sync.RWMutex
}

// NewShopper creates a Shopper over the given carrier integrations.
func NewShopper(name Name, taxonomy *Taxonomy, mappings MappingSet, carriers []Carrier) *Shopper {
	return &Shopper{
		name:     name,
		taxonomy: taxonomy,
		mappings: mappings,
		carriers: carriers,
		clock:    clockz.RealClock,
		tracer:   tracez.New(),
	}
}

// WithTelemetry wires a telemetry window; every carrier call outcome is
// recorded into it.
func (s *Shopper) WithTelemetry(w *TelemetryWindow) *Shopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry = w
	return s
}

// WithResidentialOverride sets the manual residential override, which
// ranks below an explicit CSV flag and above the heuristic default.
func (s *Shopper) WithResidentialOverride(residential bool) *Shopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.residentialOverride = &residential
	return s
}

// WithClock sets a custom clock for testing.
func (s *Shopper) WithClock(clock clockz.Clock) *Shopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

// Name returns the name of this shopper.
func (s *Shopper) Name() Name { return s.name }

// Carriers returns the carrier integrations this shopper fans out to.
func (s *Shopper) Carriers() []Carrier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.carriers
}

// Tracer returns the tracer for this shopper.
func (s *Shopper) Tracer() *tracez.Tracer { return s.tracer }

// Close shuts down observability components.
func (s *Shopper) Close() error {
	if s.tracer != nil {
		s.tracer.Close()
	}
	return nil
}

// BuildRequest constructs the immutable carrier-agnostic quote request
// for a validated shipment. City/state fall through from the record; the
// residential flag resolves with precedence CSV flag > manual override >
// default (commercial); a CSV-supplied zone is passed through untouched.
func (s *Shopper) BuildRequest(rec ShipmentRecord, category Category) QuoteRequest {
	s.mu.RLock()
	override := s.residentialOverride
	s.mu.RUnlock()

	residential := false
	source := ResidentialFromDefault
	switch {
	case rec.Residential != nil:
		residential = *rec.Residential
		source = ResidentialFromCSV
	case override != nil:
		residential = *override
		source = ResidentialFromOverride
	}

	return QuoteRequest{
		ShipmentID: rec.ID(),
		From: Address{
			City:  rec.OriginCity,
			State: rec.OriginState,
			Zip:   rec.OriginZip,
		},
		To: Address{
			City:        rec.DestCity,
			State:       rec.DestState,
			Zip:         rec.DestZip,
			Residential: residential,
		},
		Package: Package{
			WeightLb: rec.Weight,
			Length:   rec.Length,
			Width:    rec.Width,
			Height:   rec.Height,
		},
		Categories:        []Category{category},
		ResidentialSource: source,
		ZoneOverride:      rec.Zone,
	}
}

// Shop rate-shops one validated shipment. The retry policy governs each
// carrier call independently; retryable transport failures back off and
// retry, everything else fails fast. Shop blocks until every carrier call
// has resolved.
func (s *Shopper) Shop(ctx context.Context, rec ShipmentRecord, retry *RetryPolicy) (ShipmentQuote, error) {
	s.mu.RLock()
	carriers := s.carriers
	telemetry := s.telemetry
	clock := s.clock
	s.mu.RUnlock()

	ctx, span := s.tracer.StartSpan(ctx, ShopSpan)
	span.SetTag(ShopTagShipment, rec.ID())
	defer span.Finish()

	mapping, ok := s.mappings.Resolve(rec.Service)
	if !ok {
		err := &MappingError{Service: rec.Service}
		span.SetTag(ShopTagError, err.Error())
		return ShipmentQuote{Record: rec, Attempts: 1}, err
	}

	quote := ShipmentQuote{
		Record:  rec,
		Request: s.BuildRequest(rec, mapping.Category),
	}

	type carrierOutcome struct {
		carrier  string
		rates    []Rate
		attempts int
		err      error
	}

	outcomes := make([]carrierOutcome, len(carriers))
	var wg sync.WaitGroup
	for i, carrier := range carriers {
		wg.Add(1)
		go func(i int, carrier Carrier) {
			defer wg.Done()

			quoteCtx, quoteSpan := s.tracer.StartSpan(ctx, ShopQuoteSpan)
			quoteSpan.SetTag(ShopTagCarrier, carrier.Name())
			defer quoteSpan.Finish()

			req := quote.Request.Clone()
			var rates []Rate
			attempts, err := retry.Do(quoteCtx, func(callCtx context.Context) error {
				start := clock.Now()
				got, callErr := carrier.Quote(callCtx, req)
				elapsed := clock.Now().Sub(start)
				if telemetry != nil {
					msg := ""
					if callErr != nil {
						msg = callErr.Error()
					}
					telemetry.Record(carrier.Name(), elapsed, callErr == nil, msg)
				}
				if callErr != nil {
					return callErr
				}
				rates = got
				return nil
			})

			quoteSpan.SetTag(ShopTagSuccess, fmt.Sprintf("%t", err == nil))
			if err != nil {
				quoteSpan.SetTag(ShopTagError, err.Error())
			} else {
				quoteSpan.SetTag(ShopTagRates, fmt.Sprintf("%d", len(rates)))
			}
			outcomes[i] = carrierOutcome{
				carrier:  carrier.Name(),
				rates:    rates,
				attempts: attempts,
				err:      err,
			}
		}(i, carrier)
	}
	wg.Wait()

	var (
		failed    []string
		lastErr   error
		succeeded []string
	)
	for _, outcome := range outcomes {
		if outcome.attempts > quote.Attempts {
			quote.Attempts = outcome.attempts
		}
		if outcome.err != nil {
			failed = append(failed, outcome.carrier)
			lastErr = outcome.err
			continue
		}
		succeeded = append(succeeded, outcome.carrier)
		for _, rate := range outcome.rates {
			if rate.TotalCharges <= 0 {
				err := &InvalidRateError{Carrier: outcome.carrier, NativeCode: rate.NativeCode}
				span.SetTag(ShopTagError, err.Error())
				return quote, err
			}
			if rate.Category == CategoryUnknown {
				resolved, known := s.taxonomy.ToUniversal(rate.Carrier, rate.NativeCode)
				if known {
					rate.Category = resolved
				} else {
					// Data-quality condition, never a crash.
					capitan.Warn(ctx, SignalUnknownServiceCode,
						FieldShipment.Field(rec.ID()),
						FieldCarrier.Field(outcome.carrier),
						FieldServiceName.Field(rate.NativeCode),
					)
				}
			}
			quote.Rates = append(quote.Rates, rate)
		}
	}

	if len(succeeded) == 0 && lastErr != nil {
		span.SetTag(ShopTagError, lastErr.Error())
		return quote, lastErr
	}
	if len(quote.Rates) == 0 {
		err := &NoRatesError{Carriers: append(succeeded, failed...)}
		span.SetTag(ShopTagError, err.Error())
		return quote, err
	}

	s.selectRates(ctx, &quote, mapping)
	span.SetTag(ShopTagRates, fmt.Sprintf("%d", len(quote.Rates)))
	span.SetTag(ShopTagSuccess, "true")
	return quote, nil
}

// selectRates applies the selection algorithm: the comparison rate is the
// cheapest rate in the confirmed category, falling back (explicitly
// flagged) to the cheapest overall; the best overall rate feeds only the
// maximum-savings metric.
func (s *Shopper) selectRates(ctx context.Context, quote *ShipmentQuote, mapping ServiceMapping) {
	var bestMatching, bestOverall *Rate
	for i := range quote.Rates {
		rate := &quote.Rates[i]
		if bestOverall == nil || rate.TotalCharges < bestOverall.TotalCharges {
			bestOverall = rate
		}
		if rate.Category == mapping.Category {
			if bestMatching == nil || rate.TotalCharges < bestMatching.TotalCharges {
				bestMatching = rate
			}
		}
	}

	quote.BestOverall = bestOverall
	if bestMatching != nil {
		quote.Best = bestMatching
	} else {
		quote.Best = bestOverall
		quote.CategoryFallback = true
		capitan.Warn(ctx, SignalCategoryFallback,
			FieldShipment.Field(quote.Record.ID()),
			FieldServiceName.Field(quote.Record.Service),
			FieldCategory.Field(string(mapping.Category)),
			FieldCarrier.Field(bestOverall.Carrier),
		)
	}

	quote.Savings = quote.Record.CurrentCost - quote.Best.TotalCharges
	quote.MaxSavings = quote.Record.CurrentCost - quote.BestOverall.TotalCharges

	// Mapping-integrity check: observational only, never changes the result.
	if !quote.CategoryFallback && quote.Best.Category != mapping.Category {
		quote.MappingMismatch = true
		capitan.Warn(ctx, SignalMappingMismatch,
			FieldShipment.Field(quote.Record.ID()),
			FieldCategory.Field(string(mapping.Category)),
			FieldCarrier.Field(quote.Best.Carrier),
		)
	}
}
