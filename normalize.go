package rateshop

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NormalizeServiceName produces the canonical form of a free-text service
// name: lowercased, trimmed, internal whitespace collapsed. This form is
// the lookup key for confirmed mappings; the raw string is never used.
func NormalizeServiceName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Normalizer cleans and validates raw shipment records. It either returns
// a validated, unit-normalized record or a structured validation failure;
// there is no partial accept.
type Normalizer struct {
	required []Field
	locator  ZipLocator
}

// NewNormalizer creates a Normalizer requiring the given fields. A nil or
// empty required set means DefaultRequiredFields.
func NewNormalizer(required ...Field) *Normalizer {
	if len(required) == 0 {
		required = DefaultRequiredFields
	}
	return &Normalizer{required: required, locator: DefaultZipLocator}
}

// WithLocator sets the ZIP locator used to backfill city/state.
func (n *Normalizer) WithLocator(locator ZipLocator) *Normalizer {
	n.locator = locator
	return n
}

// Normalize converts one raw input row into a validated ShipmentRecord.
// All string values are trimmed, missing required fields are collected
// into a single aggregated error, ZIPs are cleaned to exactly five digits,
// and weight is converted to pounds.
func (n *Normalizer) Normalize(row FieldMap) (ShipmentRecord, error) {
	trimmed := make(FieldMap, len(row))
	for field, value := range row {
		trimmed[field] = strings.TrimSpace(value)
	}

	var missing []Field
	for _, field := range n.required {
		if trimmed[field] == "" {
			missing = append(missing, field)
		}
	}
	id := trimmed[FieldTrackingID]
	if len(missing) > 0 {
		return ShipmentRecord{}, &ValidationError{ShipmentID: id, MissingFields: missing}
	}

	rec := ShipmentRecord{
		TrackingID:  id,
		OriginCity:  trimmed[FieldOriginCity],
		OriginState: trimmed[FieldOriginState],
		DestCity:    trimmed[FieldDestCity],
		DestState:   trimmed[FieldDestState],
		Service:     trimmed[FieldService],
		WeightUnit:  trimmed[FieldWeightUnit],
	}

	var err error
	if rec.OriginZip, err = CleanZip(trimmed[FieldOriginZip]); err != nil {
		return ShipmentRecord{}, &ValidationError{ShipmentID: id, Reason: fmt.Sprintf("origin zip: %v", err)}
	}
	if rec.DestZip, err = CleanZip(trimmed[FieldDestZip]); err != nil {
		return ShipmentRecord{}, &ValidationError{ShipmentID: id, Reason: fmt.Sprintf("destination zip: %v", err)}
	}

	weight, err := parsePositiveFloat(trimmed[FieldWeight])
	if err != nil {
		return ShipmentRecord{}, &ValidationError{ShipmentID: id, Reason: fmt.Sprintf("weight: %v", err)}
	}
	rec.Weight, err = NormalizeWeight(weight, rec.WeightUnit)
	if err != nil {
		return ShipmentRecord{}, &ValidationError{ShipmentID: id, Reason: err.Error()}
	}
	rec.WeightUnit = "lb"

	for _, dim := range []struct {
		field Field
		dst   *float64
	}{
		{FieldLength, &rec.Length},
		{FieldWidth, &rec.Width},
		{FieldHeight, &rec.Height},
	} {
		v, err := parsePositiveFloat(trimmed[dim.field])
		if err != nil {
			return ShipmentRecord{}, &ValidationError{ShipmentID: id, Reason: fmt.Sprintf("%s: %v", dim.field, err)}
		}
		*dim.dst = v
	}

	if raw := trimmed[FieldCurrentCost]; raw != "" {
		cost, err := strconv.ParseFloat(strings.TrimPrefix(raw, "$"), 64)
		if err != nil || math.IsNaN(cost) {
			return ShipmentRecord{}, &ValidationError{ShipmentID: id, Reason: fmt.Sprintf("current cost: invalid value %q", raw)}
		}
		rec.CurrentCost = cost
	}

	if raw := trimmed[FieldResidential]; raw != "" {
		switch strings.ToLower(raw) {
		case "true", "yes", "y", "1", "residential":
			v := true
			rec.Residential = &v
		case "false", "no", "n", "0", "commercial":
			v := false
			rec.Residential = &v
		}
	}
	if raw := trimmed[FieldZone]; raw != "" {
		if zone, err := strconv.Atoi(raw); err == nil {
			rec.Zone = &zone
		}
	}

	n.backfillLocation(&rec)
	return rec, nil
}

// ValidateRecord applies the same cleaning rules to a record that arrived
// already structured (the upstream mapping UI hands over structs, not
// rows). It checks the same required set as Normalize and mutates the
// record in place. Optional fields are still cleaned when present; an
// absent optional field is simply left alone.
func (n *Normalizer) ValidateRecord(rec *ShipmentRecord) error {
	rec.TrackingID = strings.TrimSpace(rec.TrackingID)
	rec.Service = strings.TrimSpace(rec.Service)

	var missing []Field
	for _, field := range n.required {
		if recordFieldMissing(rec, field) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{ShipmentID: rec.TrackingID, MissingFields: missing}
	}

	var err error
	if strings.TrimSpace(rec.OriginZip) != "" {
		if rec.OriginZip, err = CleanZip(rec.OriginZip); err != nil {
			return &ValidationError{ShipmentID: rec.TrackingID, Reason: fmt.Sprintf("origin zip: %v", err)}
		}
	}
	if strings.TrimSpace(rec.DestZip) != "" {
		if rec.DestZip, err = CleanZip(rec.DestZip); err != nil {
			return &ValidationError{ShipmentID: rec.TrackingID, Reason: fmt.Sprintf("destination zip: %v", err)}
		}
	}
	if rec.Weight != 0 {
		if rec.Weight, err = NormalizeWeight(rec.Weight, rec.WeightUnit); err != nil {
			return &ValidationError{ShipmentID: rec.TrackingID, Reason: err.Error()}
		}
		rec.WeightUnit = "lb"
	}

	n.backfillLocation(rec)
	return nil
}

// recordFieldMissing reports whether a structured record has no usable
// value for the given field.
func recordFieldMissing(rec *ShipmentRecord, field Field) bool {
	switch field {
	case FieldTrackingID:
		return rec.TrackingID == ""
	case FieldOriginZip:
		return strings.TrimSpace(rec.OriginZip) == ""
	case FieldDestZip:
		return strings.TrimSpace(rec.DestZip) == ""
	case FieldService:
		return rec.Service == ""
	case FieldWeight:
		return rec.Weight == 0
	case FieldWeightUnit:
		return strings.TrimSpace(rec.WeightUnit) == ""
	case FieldLength:
		return rec.Length == 0
	case FieldWidth:
		return rec.Width == 0
	case FieldHeight:
		return rec.Height == 0
	case FieldCurrentCost:
		return rec.CurrentCost == 0
	case FieldOriginCity:
		return strings.TrimSpace(rec.OriginCity) == ""
	case FieldOriginState:
		return strings.TrimSpace(rec.OriginState) == ""
	case FieldDestCity:
		return strings.TrimSpace(rec.DestCity) == ""
	case FieldDestState:
		return strings.TrimSpace(rec.DestState) == ""
	case FieldResidential:
		return rec.Residential == nil
	case FieldZone:
		return rec.Zone == nil
	default:
		return false
	}
}

func (n *Normalizer) backfillLocation(rec *ShipmentRecord) {
	if n.locator == nil {
		return
	}
	if rec.OriginCity == "" || rec.OriginState == "" {
		if city, state, ok := n.locator.Locate(rec.OriginZip); ok {
			if rec.OriginCity == "" {
				rec.OriginCity = city
			}
			if rec.OriginState == "" {
				rec.OriginState = state
			}
		}
	}
	if rec.DestCity == "" || rec.DestState == "" {
		if city, state, ok := n.locator.Locate(rec.DestZip); ok {
			if rec.DestCity == "" {
				rec.DestCity = city
			}
			if rec.DestState == "" {
				rec.DestState = state
			}
		}
	}
}

// CleanZip strips all non-digit characters and returns exactly five
// digits. Fewer than four remaining digits is an error; four digits are
// left-padded with a zero (spreadsheets drop leading zeros); more than
// five are truncated to the first five. The truncation is deliberately
// lossy and kept for compatibility with existing reports.
func CleanZip(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	cleaned := digits.String()
	switch {
	case len(cleaned) < 4:
		return "", fmt.Errorf("invalid zip %q: fewer than 4 digits", raw)
	case len(cleaned) == 4:
		return "0" + cleaned, nil
	default:
		return cleaned[:5], nil
	}
}

// NormalizeWeight converts a declared weight to pounds. Units indicating
// ounces divide by 16; anything else is taken as pounds already.
func NormalizeWeight(weight float64, unit string) (float64, error) {
	if math.IsNaN(weight) || weight <= 0 {
		return 0, fmt.Errorf("weight must be positive, got %v", weight)
	}
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "oz", "ounce", "ounces":
		return weight / 16, nil
	default:
		return weight, nil
	}
}

func parsePositiveFloat(raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("invalid numeric value %q", raw)
	}
	if v <= 0 {
		return 0, fmt.Errorf("value must be positive, got %v", v)
	}
	return v, nil
}
