package rateshop

import "context"

// ResidentialSource records which rule resolved the residential flag on a
// quote request. Precedence is csv > override > default.
type ResidentialSource string

// Residential flag provenance.
const (
	ResidentialFromCSV      ResidentialSource = "csv"
	ResidentialFromOverride ResidentialSource = "override"
	ResidentialFromDefault  ResidentialSource = "default"
)

// Address is one end of a route.
type Address struct {
	City        string
	State       string
	Zip         string
	Residential bool
}

// Package is the physical parcel being quoted. Weight is always pounds by
// the time a request is built; dimensions are inches.
type Package struct {
	WeightLb float64
	Length   float64
	Width    float64
	Height   float64
}

// QuoteRequest is the carrier-agnostic representation of what must be
// quoted. It is built once per shipment and fanned out, immutable, to
// every selected carrier integration.
type QuoteRequest struct {
	ShipmentID        string
	From              Address
	To                Address
	Package           Package
	Categories        []Category // requested universal categories
	ResidentialSource ResidentialSource
	ZoneOverride      *int // optional CSV-supplied zone, passed through untouched
}

// Clone returns a deep copy safe for concurrent fan-out.
func (q QuoteRequest) Clone() QuoteRequest {
	out := q
	out.Categories = make([]Category, len(q.Categories))
	copy(out.Categories, q.Categories)
	if q.ZoneOverride != nil {
		v := *q.ZoneOverride
		out.ZoneOverride = &v
	}
	return out
}

// Rate is one returned quote from a carrier integration.
type Rate struct {
	Carrier      string
	NativeCode   string
	Category     Category // resolved universal category, empty when unmapped
	TotalCharges float64
	DeliveryDays int
	Metadata     map[string]string
}

// Carrier is the integration contract the engine depends on. Adapters for
// specific carrier APIs or static rate cards implement it externally; the
// engine is agnostic to how quotes are transported.
type Carrier interface {
	Name() string
	Quote(ctx context.Context, req QuoteRequest) ([]Rate, error)
}
