package rateshop

// Field identifies one logical column of a shipment record. Fields are the
// unit of missing-field reporting: a validation failure names the exact
// fields an operator has to fix before resubmitting.
type Field string

// Shipment record fields.
const (
	FieldTrackingID  Field = "tracking_id"
	FieldOriginZip   Field = "origin_zip"
	FieldDestZip     Field = "destination_zip"
	FieldService     Field = "service"
	FieldWeight      Field = "weight"
	FieldWeightUnit  Field = "weight_unit"
	FieldLength      Field = "length"
	FieldWidth       Field = "width"
	FieldHeight      Field = "height"
	FieldCurrentCost Field = "current_cost"
	FieldOriginCity  Field = "origin_city"
	FieldOriginState Field = "origin_state"
	FieldDestCity    Field = "destination_city"
	FieldDestState   Field = "destination_state"
	FieldResidential Field = "residential"
	FieldZone        Field = "zone"
)

// DefaultRequiredFields are the fields the normalizer requires by default.
var DefaultRequiredFields = []Field{
	FieldOriginZip,
	FieldDestZip,
	FieldService,
	FieldWeight,
	FieldLength,
	FieldWidth,
	FieldHeight,
}

// FieldMap is one raw input row keyed by field. It is built once, at the
// normalization boundary; nothing downstream of the Normalizer ever sees
// an untyped row.
type FieldMap map[Field]string

// ShipmentRecord is one row of input: identity, route, physical attributes,
// declared cost, and the shipper's free-text service name.
//
// Once normalized, Weight is always in pounds and the ZIPs are exactly five
// digits. The record is mutated in place during normalization and treated
// as immutable context afterward.
type ShipmentRecord struct {
	TrackingID  string
	OriginZip   string
	OriginCity  string
	OriginState string
	DestZip     string
	DestCity    string
	DestState   string
	Weight      float64
	WeightUnit  string
	Length      float64
	Width       float64
	Height      float64
	CurrentCost float64
	Service     string
	Residential *bool // optional explicit CSV flag
	Zone        *int  // optional explicit zone override
}

// ID returns the identity used to key results. Records without a tracking
// id are keyed by the synthetic id assigned at normalization time.
func (r ShipmentRecord) ID() string {
	return r.TrackingID
}

// Clone returns a deep copy safe for concurrent processing.
func (r ShipmentRecord) Clone() ShipmentRecord {
	out := r
	if r.Residential != nil {
		v := *r.Residential
		out.Residential = &v
	}
	if r.Zone != nil {
		v := *r.Zone
		out.Zone = &v
	}
	return out
}
