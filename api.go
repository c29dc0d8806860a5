package rateshop

// Name is a type alias for component instance names. Using this type
// encourages storing names as constants rather than inline strings.
//
// Example:
//
//	const (
//	    QuotePoolName Name = "quote-pool"
//	    ShopperName   Name = "rate-shopper"
//	)
type Name = string

// Cloner provides type-safe copying for values handed to concurrent
// workers. Implement it on any type processed in parallel so each worker
// operates on an isolated copy.
type Cloner[T any] interface {
	Clone() T
}
