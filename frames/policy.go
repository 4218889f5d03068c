package frames

import (
	"fmt"
	"strings"
)

// Policy picks the victim frame when the pool is full.
type Policy int

const (
	// FailFast never evicts, a full pool fails the fault
	FailFast Policy = iota
	// Aging evicts the frame that was touched the longest time ago
	Aging
	// Random evicts any frame
	Random
)

var policyNames = map[Policy]string{
	FailFast: "fail-fast",
	Aging:    "aging",
	Random:   "random",
}

func (p Policy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fail-fast", "failfast", "none", "0":
		return FailFast, nil
	case "aging", "lru", "pseudo-lru", "1":
		return Aging, nil
	case "random", "2":
		return Random, nil
	default:
		return FailFast, fmt.Errorf("frames: unknown eviction policy %q", s)
	}
}

// MarshalText lets policies appear as strings in JSON configuration.
func (p Policy) MarshalText() ([]byte, error) {
	if _, ok := policyNames[p]; !ok {
		return nil, fmt.Errorf("frames: unknown eviction policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
