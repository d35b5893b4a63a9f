package capability

import "strings"

// Filter is an ordered AND-set of required capability names. A device
// matches a filter when it holds every listed capability. A list of filters
// is OR-ed by the discovery manager.
type Filter struct {
	Capabilities []string `json:"capabilities" yaml:"capabilities"`
}

// NewFilter creates a filter requiring all of names.
func NewFilter(names ...string) Filter {
	f := Filter{}
	f.Add(names...)
	return f
}

// Add appends names that are not empty and not already present.
func (f *Filter) Add(names ...string) {
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		dup := false
		for _, c := range f.Capabilities {
			if c == n {
				dup = true
				break
			}
		}
		if !dup {
			f.Capabilities = append(f.Capabilities, n)
		}
	}
}

// Satisfied reports whether has returns true for every capability.
func (f Filter) Satisfied(has func(name string) bool) bool {
	for _, c := range f.Capabilities {
		if !has(c) {
			return false
		}
	}
	return true
}

// String joins the names with " & ".
func (f Filter) String() string {
	return strings.Join(f.Capabilities, " & ")
}

// ParseFilter parses a comma separated capability list, e.g.
// "MediaPlayer.Play.Video, MediaControl.Any".
func ParseFilter(s string) Filter {
	return NewFilter(strings.Split(s, ",")...)
}
