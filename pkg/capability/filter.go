package capability

import (
	"path"
	"strings"
)

// Filter restricts which capabilities are handed to workers. Patterns are
// exact names or path.Match globs such as "decode_*".
type Filter struct {
	allow []string
	deny  []string
}

// NewFilter builds a filter. An empty allow list admits every capability
// not denied.
func NewFilter(allow, deny []string) *Filter {
	return &Filter{allow: clean(allow), deny: clean(deny)}
}

// Allowed reports whether name passes the filter. Deny wins over allow.
func (f *Filter) Allowed(name string) bool {
	if f == nil {
		return true
	}
	if matchesAny(name, f.deny) {
		return false
	}
	return len(f.allow) == 0 || matchesAny(name, f.allow)
}

// Apply returns the capabilities that pass the filter, keeping their order.
func (f *Filter) Apply(caps []*Capability) []*Capability {
	if f == nil || (len(f.allow) == 0 && len(f.deny) == 0) {
		return caps
	}
	out := make([]*Capability, 0, len(caps))
	for _, c := range caps {
		if f.Allowed(c.Name()) {
			out = append(out, c)
		}
	}
	return out
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

func clean(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
