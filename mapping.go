package rateshop

// ServiceMapping pairs a shipper's raw service string with a universal
// category and a confidence score. Confirmed (user-reviewed) mappings are
// authoritative; the engine never synthesizes a fallback mapping, so an
// unmapped service is a hard error for that shipment.
type ServiceMapping struct {
	Service    string
	Category   Category
	Confidence float64
	Confirmed  bool
}

// MappingSet holds confirmed service mappings keyed by normalized service
// name. It is built once from the user-reviewed mapping list and consumed
// read-only by the orchestrator.
type MappingSet map[string]ServiceMapping

// NewMappingSet builds a MappingSet from reviewed mappings. Only confirmed
// mappings are kept; unconfirmed suggestions carry no authority.
func NewMappingSet(mappings []ServiceMapping) MappingSet {
	set := make(MappingSet, len(mappings))
	for _, m := range mappings {
		if !m.Confirmed {
			continue
		}
		set[NormalizeServiceName(m.Service)] = m
	}
	return set
}

// Resolve looks up the confirmed mapping for a raw service name. The
// lookup key is always the normalized form, never the raw string.
func (s MappingSet) Resolve(service string) (ServiceMapping, bool) {
	m, ok := s[NormalizeServiceName(service)]
	return m, ok
}
