package normalize

import (
	"fmt"
	"maps"
	"net/http"
	"slices"
)

// Policy decides what happens when a request's occurrence has no exact
// recorded counterpart.
type Policy int

// Occurrence fallback policies.
const (
	PolicyStrict Policy = iota
	PolicyFallbackFirst
	PolicyFallbackLast
)

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "strict":
		return PolicyStrict, nil
	case "fallbackFirst":
		return PolicyFallbackFirst, nil
	case "fallbackLast":
		return PolicyFallbackLast, nil
	}
	return PolicyStrict, fmt.Errorf("unknown occurrence policy %q", s)
}

func (p Policy) String() string {
	switch p {
	case PolicyFallbackFirst:
		return "fallbackFirst"
	case PolicyFallbackLast:
		return "fallbackLast"
	default:
		return "strict"
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Rules configures how requests are canonicalized before hashing and storage.
type Rules struct {
	QueryReplacements map[string]Value `yaml:"queryReplacements"`
	QueryRemovals     []string         `yaml:"queryRemovals"`

	BodyReplacements map[string]Value `yaml:"bodyReplacements"`
	BodyRemovals     []string         `yaml:"bodyRemovals"`

	ResponseBodyReplacements map[string]Value `yaml:"responseBodyReplacements"`
	ResponseBodyRemovals     []string         `yaml:"responseBodyRemovals"`

	HeaderReplacements map[string]Value `yaml:"headerReplacements"`
	HeaderRemovals     []string         `yaml:"headerRemovals"`

	AuthQueryParams []string `yaml:"authQueryParams"`
	AuthBodyParams  []string `yaml:"authBodyParams"`
	AuthHeaders     []string `yaml:"authHeaders"`

	IgnoreOccurrenceURLs      []string `yaml:"ignoreOccurrenceURLs"`
	OccurrencePolicy          Policy   `yaml:"occurrencePolicy"`
	IgnoreUnparsableMultipart bool     `yaml:"ignoreUnparsableMultipart"`
}

// Clone returns a deep copy of r.
func (r Rules) Clone() Rules {
	out := r
	out.QueryReplacements = maps.Clone(r.QueryReplacements)
	out.QueryRemovals = slices.Clone(r.QueryRemovals)
	out.BodyReplacements = maps.Clone(r.BodyReplacements)
	out.BodyRemovals = slices.Clone(r.BodyRemovals)
	out.ResponseBodyReplacements = maps.Clone(r.ResponseBodyReplacements)
	out.ResponseBodyRemovals = slices.Clone(r.ResponseBodyRemovals)
	out.HeaderReplacements = maps.Clone(r.HeaderReplacements)
	out.HeaderRemovals = slices.Clone(r.HeaderRemovals)
	out.AuthQueryParams = slices.Clone(r.AuthQueryParams)
	out.AuthBodyParams = slices.Clone(r.AuthBodyParams)
	out.AuthHeaders = slices.Clone(r.AuthHeaders)
	out.IgnoreOccurrenceURLs = slices.Clone(r.IgnoreOccurrenceURLs)
	return out
}

// IgnoresOccurrence reports whether urlNoQuery is exempt from occurrence
// matching. Entries ending in "*" match by prefix.
func (r Rules) IgnoresOccurrence(urlNoQuery string) bool {
	for _, pattern := range r.IgnoreOccurrenceURLs {
		if n := len(pattern); n > 0 && pattern[n-1] == '*' {
			if len(urlNoQuery) >= n-1 && urlNoQuery[:n-1] == pattern[:n-1] {
				return true
			}
			continue
		}
		if pattern == urlNoQuery {
			return true
		}
	}
	return false
}

type ruleSet struct {
	replace map[string]Value
	remove  map[string]struct{}
}

func newRuleSet(replace map[string]Value, remove []string) ruleSet {
	rs := ruleSet{replace: replace, remove: make(map[string]struct{}, len(remove))}
	for _, name := range remove {
		rs.remove[name] = struct{}{}
	}
	return rs
}

func newHeaderRuleSet(replace map[string]Value, remove []string) ruleSet {
	rs := ruleSet{
		replace: make(map[string]Value, len(replace)),
		remove:  make(map[string]struct{}, len(remove)),
	}
	for name, v := range replace {
		rs.replace[http.CanonicalHeaderKey(name)] = v
	}
	for _, name := range remove {
		rs.remove[http.CanonicalHeaderKey(name)] = struct{}{}
	}
	return rs
}

func (rs ruleSet) empty() bool { return len(rs.replace) == 0 && len(rs.remove) == 0 }

func (rs ruleSet) removes(name string) bool {
	_, ok := rs.remove[name]
	return ok
}

func (rs ruleSet) replacement(name string) (Value, bool) {
	v, ok := rs.replace[name]
	return v, ok
}
