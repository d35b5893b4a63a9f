package service

// DiscoveryFilter binds a logical service ID (e.g. "DIAL") to the
// protocol-level search string a discovery provider looks for: an SSDP
// search target or an mDNS service type.
type DiscoveryFilter struct {
	ServiceID string `json:"service_id" yaml:"service_id"`
	Filter    string `json:"filter" yaml:"filter"`
}

// Valid reports whether both fields are set.
func (f DiscoveryFilter) Valid() bool {
	return f.ServiceID != "" && f.Filter != ""
}
