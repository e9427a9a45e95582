package gate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	DefaultMandatory = []string{"ASUKA"}
	DefaultForbidden = []string{"WWE", "LUCHADORA", "WRESTLER"}
)

// Policy is the keyword rule applied to oracle labels. Keywords are matched
// as case-insensitive substrings.
type Policy struct {
	Mandatory []string `yaml:"mandatory"`
	Forbidden []string `yaml:"forbidden"`
}

// DefaultPolicy returns the built-in keyword lists.
func DefaultPolicy() Policy {
	return NewPolicy(DefaultMandatory, DefaultForbidden)
}

// NewPolicy normalizes keywords to upper case and drops blanks.
func NewPolicy(mandatory, forbidden []string) Policy {
	return Policy{Mandatory: normalizeKeywords(mandatory), Forbidden: normalizeKeywords(forbidden)}
}

// LoadPolicyFile reads a YAML document with mandatory and forbidden lists.
// Lists missing from the file fall back to the defaults.
func LoadPolicyFile(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if len(p.Mandatory) == 0 {
		p.Mandatory = DefaultMandatory
	}
	if p.Forbidden == nil {
		p.Forbidden = DefaultForbidden
	}
	return NewPolicy(p.Mandatory, p.Forbidden), nil
}

// Allows reports whether label contains at least one mandatory keyword and
// no forbidden keyword. The second value explains a refusal.
func (p Policy) Allows(label string) (bool, string) {
	upper := strings.ToUpper(label)

	for _, kw := range p.Forbidden {
		if strings.Contains(upper, kw) {
			return false, fmt.Sprintf("label contains forbidden keyword %q", kw)
		}
	}
	for _, kw := range p.Mandatory {
		if strings.Contains(upper, kw) {
			return true, ""
		}
	}
	return false, "label contains no mandatory keyword"
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		if kw = strings.ToUpper(strings.TrimSpace(kw)); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
