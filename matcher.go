package unitpool

import "strings"

// NameMatcher tests names against a list of literal prefixes.
// Empty prefixes never match.
type NameMatcher struct {
	prefixes []string
}

func NewNameMatcher(prefixes ...string) NameMatcher {
	kept := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		kept = append(kept, p)
	}
	return NameMatcher{prefixes: kept}
}

// Match reports whether any configured prefix is a prefix of name.
func (m NameMatcher) Match(name string) bool {
	for _, p := range m.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Prefixes returns a copy of the non-empty configured prefixes.
func (m NameMatcher) Prefixes() []string {
	return append([]string(nil), m.prefixes...)
}

// PrefixFilter returns a name filter matching the given prefixes. Filtered
// names are always delegated to the parent first.
func PrefixFilter(prefixes ...string) func(name string) bool {
	return NewNameMatcher(prefixes...).Match
}

// packagePrefix returns name up to its last dot, or "" when name has none.
func packagePrefix(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[:i]
}
