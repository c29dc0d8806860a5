package rateshop

import (
	"strings"
	"sync"
)

// Category is a carrier-agnostic label for a shipping speed/class, used to
// compare rates across carriers. Categories form a closed enumeration; the
// engine never invents new ones at runtime.
type Category string

// Universal service categories.
const (
	CategoryOvernight      Category = "OVERNIGHT"
	CategoryOvernightSaver Category = "OVERNIGHT_SAVER"
	CategoryOvernightEarly Category = "OVERNIGHT_EARLY"
	CategoryTwoDay         Category = "TWO_DAY"
	CategoryTwoDayMorning  Category = "TWO_DAY_MORNING"
	CategoryThreeDay       Category = "THREE_DAY"
	CategoryGround         Category = "GROUND"
	CategoryIntlExpress    Category = "INTERNATIONAL_EXPRESS"
	CategoryIntlExpedited  Category = "INTERNATIONAL_EXPEDITED"
	CategoryIntlStandard   Category = "INTERNATIONAL_STANDARD"
	CategoryUnknown        Category = ""
)

// Categories lists every universal category in the closed enumeration.
var Categories = []Category{
	CategoryOvernight,
	CategoryOvernightSaver,
	CategoryOvernightEarly,
	CategoryTwoDay,
	CategoryTwoDayMorning,
	CategoryThreeDay,
	CategoryGround,
	CategoryIntlExpress,
	CategoryIntlExpedited,
	CategoryIntlStandard,
}

// Valid reports whether c is a member of the closed enumeration.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Taxonomy is a static bidirectional map between each carrier's native
// service codes and the universal categories. The built-in tables cover
// UPS, FedEx, USPS, and DHL; additional carriers can be registered at
// construction time.
//
// An unknown (carrier, code) pair yields "no mapping", which callers treat
// as a data-quality condition, never a failure.
type Taxonomy struct {
	mu          sync.RWMutex
	toUniversal map[string]map[string]Category
	toNative    map[string]map[Category]string
}

// NewTaxonomy creates a Taxonomy seeded with the built-in carrier tables.
func NewTaxonomy() *Taxonomy {
	t := &Taxonomy{
		toUniversal: make(map[string]map[string]Category),
		toNative:    make(map[string]map[Category]string),
	}
	for carrier, table := range builtinTables {
		for code, category := range table {
			t.Register(carrier, code, category)
		}
	}
	return t
}

// Register adds one (carrier, native code) -> category pair. The first
// registration for a (carrier, category) pair also becomes the inverse
// mapping used by ToNative.
func (t *Taxonomy) Register(carrier, nativeCode string, category Category) *Taxonomy {
	key := carrierKey(carrier)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.toUniversal[key] == nil {
		t.toUniversal[key] = make(map[string]Category)
		t.toNative[key] = make(map[Category]string)
	}
	t.toUniversal[key][nativeCode] = category
	if _, exists := t.toNative[key][category]; !exists {
		t.toNative[key][category] = nativeCode
	}
	return t
}

// ToUniversal resolves a carrier-native service code to its universal
// category. The second return is false when no mapping exists.
func (t *Taxonomy) ToUniversal(carrier, nativeCode string) (Category, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	table, ok := t.toUniversal[carrierKey(carrier)]
	if !ok {
		return CategoryUnknown, false
	}
	category, ok := table[nativeCode]
	return category, ok
}

// ToNative resolves a universal category to the carrier's native service
// code. The second return is false when the carrier has no service in that
// category.
func (t *Taxonomy) ToNative(carrier string, category Category) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	table, ok := t.toNative[carrierKey(carrier)]
	if !ok {
		return "", false
	}
	code, ok := table[category]
	return code, ok
}

// Carriers returns the carriers known to the taxonomy.
func (t *Taxonomy) Carriers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	carriers := make([]string, 0, len(t.toUniversal))
	for carrier := range t.toUniversal {
		carriers = append(carriers, carrier)
	}
	return carriers
}

func carrierKey(carrier string) string {
	return strings.ToLower(strings.TrimSpace(carrier))
}

// Built-in native code tables. Fixed data, not inferred.
var builtinTables = map[string]map[string]Category{
	"ups": {
		"01": CategoryOvernight,      // Next Day Air
		"13": CategoryOvernightSaver, // Next Day Air Saver
		"14": CategoryOvernightEarly, // Next Day Air Early
		"02": CategoryTwoDay,         // 2nd Day Air
		"59": CategoryTwoDayMorning,  // 2nd Day Air A.M.
		"12": CategoryThreeDay,       // 3 Day Select
		"03": CategoryGround,         // Ground
		"07": CategoryIntlExpress,    // Worldwide Express
		"08": CategoryIntlExpedited,  // Worldwide Expedited
		"11": CategoryIntlStandard,   // Standard
	},
	"fedex": {
		"PRIORITY_OVERNIGHT":               CategoryOvernight,
		"STANDARD_OVERNIGHT":               CategoryOvernightSaver,
		"FIRST_OVERNIGHT":                  CategoryOvernightEarly,
		"FEDEX_2_DAY":                      CategoryTwoDay,
		"FEDEX_2_DAY_AM":                   CategoryTwoDayMorning,
		"FEDEX_EXPRESS_SAVER":              CategoryThreeDay,
		"FEDEX_GROUND":                     CategoryGround,
		"GROUND_HOME_DELIVERY":             CategoryGround,
		"INTERNATIONAL_PRIORITY":           CategoryIntlExpress,
		"INTERNATIONAL_ECONOMY":            CategoryIntlExpedited,
		"INTERNATIONAL_FIRST":              CategoryIntlExpress,
		"FEDEX_INTERNATIONAL_CONNECT_PLUS": CategoryIntlStandard,
	},
	"usps": {
		"PRIORITY_MAIL_EXPRESS":       CategoryOvernight,
		"PRIORITY_MAIL":               CategoryTwoDay,
		"GROUND_ADVANTAGE":            CategoryGround,
		"PARCEL_SELECT":               CategoryGround,
		"PRIORITY_MAIL_EXPRESS_INTL":  CategoryIntlExpress,
		"PRIORITY_MAIL_INTERNATIONAL": CategoryIntlExpedited,
		"FIRST_CLASS_PACKAGE_INTL":    CategoryIntlStandard,
	},
	"dhl": {
		"EXPRESS_9_00":      CategoryOvernightEarly,
		"EXPRESS_10_30":     CategoryOvernight,
		"EXPRESS_12_00":     CategoryOvernightSaver,
		"EXPRESS_WORLDWIDE": CategoryIntlExpress,
		"EXPRESS_EASY":      CategoryIntlExpedited,
		"ECONOMY_SELECT":    CategoryIntlStandard,
	},
}
