package rateshop

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorCategory buckets a per-shipment failure for reporting.
type ErrorCategory string

// Error categories.
const (
	ErrorCategoryValidation  ErrorCategory = "validation"
	ErrorCategoryMapping     ErrorCategory = "mapping"
	ErrorCategoryNetwork     ErrorCategory = "network"
	ErrorCategoryCarrierAPI  ErrorCategory = "carrier_api"
	ErrorCategoryNoRates     ErrorCategory = "no_rates"
	ErrorCategoryInvalidRate ErrorCategory = "invalid_rate"
	ErrorCategoryInternal    ErrorCategory = "internal"
)

// ErrNoCarriers is the run-level failure returned before any shipment
// processing starts when zero usable carrier integrations are configured.
var ErrNoCarriers = errors.New("no carrier integrations configured")

// ErrPoolClosed is returned for tasks submitted to a closed worker pool.
var ErrPoolClosed = errors.New("worker pool closed")

// ValidationError reports missing or invalid shipment fields. It is fatal
// for the shipment, never retried, and carries the exact list of missing
// fields so the operator can fix and resubmit only the failed subset.
type ValidationError struct {
	ShipmentID    string
	MissingFields []Field
	Reason        string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.MissingFields) > 0 {
		names := make([]string, len(e.MissingFields))
		for i, f := range e.MissingFields {
			names[i] = string(f)
		}
		return fmt.Sprintf("shipment %q: missing required fields: %s",
			e.ShipmentID, strings.Join(names, ", "))
	}
	return fmt.Sprintf("shipment %q: %s", e.ShipmentID, e.Reason)
}

// MappingError reports a shipment whose normalized service name has no
// confirmed mapping. The engine never guesses a category for an unmapped
// name, so this is fatal for the shipment and never retried.
type MappingError struct {
	Service string
}

// Error implements the error interface.
func (e *MappingError) Error() string {
	return fmt.Sprintf("no confirmed service mapping for %q", e.Service)
}

// CarrierAPIError reports a failed carrier call. Whether it is retryable
// depends on the HTTP status: 429, 500 and 503 indicate transient carrier
// conditions; everything else fails fast.
type CarrierAPIError struct {
	Carrier    string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *CarrierAPIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("carrier %s: status %d: %v", e.Carrier, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("carrier %s: %v", e.Carrier, e.Err)
}

// Unwrap returns the underlying error, supporting error wrapping patterns.
func (e *CarrierAPIError) Unwrap() error { return e.Err }

// NoRatesError reports that every selected carrier responded but none
// returned a usable rate. Fatal for the shipment once the transport-level
// retries inside each carrier call are exhausted.
type NoRatesError struct {
	Carriers []string
}

// Error implements the error interface.
func (e *NoRatesError) Error() string {
	return fmt.Sprintf("no rates returned by carriers: %s", strings.Join(e.Carriers, ", "))
}

// InvalidRateError reports a returned rate that is missing its price.
type InvalidRateError struct {
	Carrier    string
	NativeCode string
}

// Error implements the error interface.
func (e *InvalidRateError) Error() string {
	return fmt.Sprintf("carrier %s returned rate %q with no price", e.Carrier, e.NativeCode)
}

// Categorize buckets an error into its reporting category.
func Categorize(err error) ErrorCategory {
	var (
		validationErr  *ValidationError
		mappingErr     *MappingError
		carrierErr     *CarrierAPIError
		noRatesErr     *NoRatesError
		invalidRateErr *InvalidRateError
	)
	switch {
	case errors.As(err, &validationErr):
		return ErrorCategoryValidation
	case errors.As(err, &mappingErr):
		return ErrorCategoryMapping
	case errors.As(err, &noRatesErr):
		return ErrorCategoryNoRates
	case errors.As(err, &invalidRateErr):
		return ErrorCategoryInvalidRate
	case errors.As(err, &carrierErr):
		return ErrorCategoryCarrierAPI
	case isNetworkError(err):
		return ErrorCategoryNetwork
	default:
		return ErrorCategoryInternal
	}
}

// ErrorType returns the short type name used in the final artifact.
func ErrorType(err error) string {
	switch Categorize(err) {
	case ErrorCategoryValidation:
		return "ValidationError"
	case ErrorCategoryMapping:
		return "MappingError"
	case ErrorCategoryNoRates:
		return "NoRatesReturned"
	case ErrorCategoryInvalidRate:
		return "InvalidRateData"
	case ErrorCategoryCarrierAPI:
		return "CarrierAPIError"
	case ErrorCategoryNetwork:
		return "NetworkError"
	default:
		return "InternalError"
	}
}

// IsRetryable reports whether an error indicates a transient condition
// worth retrying: timeouts, network failures, and carrier responses with
// HTTP 429, 500 or 503. Validation and mapping failures always fail fast.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var carrierErr *CarrierAPIError
	if errors.As(err, &carrierErr) {
		switch carrierErr.StatusCode {
		case 429, 500, 503:
			return true
		case 0:
			// No status: transport-level failure, classify the cause.
			return isNetworkError(carrierErr.Err) || errors.Is(carrierErr.Err, context.DeadlineExceeded)
		default:
			return false
		}
	}
	return isNetworkError(err)
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
