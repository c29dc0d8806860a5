package rateshop

// ZipLocator resolves a five-digit ZIP to a city and state. The engine
// uses it when a record carries ZIPs but no city/state; a fuller
// implementation (database, geocoding service) can be plugged in.
type ZipLocator interface {
	Locate(zip string) (city, state string, ok bool)
}

// DefaultZipLocator resolves major-metro ZIP prefixes from a static table.
// Coverage is deliberately coarse: carrier rating APIs key on ZIP, so the
// city/state are advisory.
var DefaultZipLocator ZipLocator = prefixLocator{}

type prefixLocator struct{}

type zipArea struct {
	city  string
	state string
}

func (prefixLocator) Locate(zip string) (string, string, bool) {
	if len(zip) < 3 {
		return "", "", false
	}
	area, ok := zipPrefixes[zip[:3]]
	if !ok {
		return "", "", false
	}
	return area.city, area.state, true
}

// Three-digit ZIP prefix table for major metros.
var zipPrefixes = map[string]zipArea{
	"100": {"New York", "NY"},
	"101": {"New York", "NY"},
	"102": {"New York", "NY"},
	"112": {"Brooklyn", "NY"},
	"190": {"Philadelphia", "PA"},
	"191": {"Philadelphia", "PA"},
	"200": {"Washington", "DC"},
	"210": {"Baltimore", "MD"},
	"300": {"Atlanta", "GA"},
	"303": {"Atlanta", "GA"},
	"331": {"Miami", "FL"},
	"352": {"Birmingham", "AL"},
	"370": {"Nashville", "TN"},
	"441": {"Cleveland", "OH"},
	"452": {"Cincinnati", "OH"},
	"462": {"Indianapolis", "IN"},
	"482": {"Detroit", "MI"},
	"532": {"Milwaukee", "WI"},
	"553": {"Minneapolis", "MN"},
	"554": {"Minneapolis", "MN"},
	"606": {"Chicago", "IL"},
	"607": {"Chicago", "IL"},
	"631": {"St. Louis", "MO"},
	"641": {"Kansas City", "MO"},
	"700": {"New Orleans", "LA"},
	"750": {"Dallas", "TX"},
	"752": {"Dallas", "TX"},
	"770": {"Houston", "TX"},
	"782": {"San Antonio", "TX"},
	"787": {"Austin", "TX"},
	"800": {"Denver", "CO"},
	"802": {"Denver", "CO"},
	"850": {"Phoenix", "AZ"},
	"891": {"Las Vegas", "NV"},
	"900": {"Los Angeles", "CA"},
	"901": {"Los Angeles", "CA"},
	"921": {"San Diego", "CA"},
	"941": {"San Francisco", "CA"},
	"946": {"Oakland", "CA"},
	"950": {"San Jose", "CA"},
	"972": {"Portland", "OR"},
	"980": {"Seattle", "WA"},
	"981": {"Seattle", "WA"},
}
