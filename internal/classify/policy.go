package classify

import (
	"fmt"
	"strings"
)

// MissingDeclaration decides how a record property with no declaration
// site classifies.
type MissingDeclaration int

const (
	// Permit treats an uninspectable property as serializable.
	Permit MissingDeclaration = iota
	// Deny treats an uninspectable property as not serializable.
	Deny
)

// String returns the config spelling of the policy.
func (m MissingDeclaration) String() string {
	if m == Deny {
		return "deny"
	}
	return "permit"
}

// ParseMissingDeclaration parses "permit" or "deny". An empty string is
// the default, Permit.
func ParseMissingDeclaration(s string) (MissingDeclaration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "permit":
		return Permit, nil
	case "deny":
		return Deny, nil
	}
	return Permit, fmt.Errorf("unknown missing-declaration policy %q (want permit or deny)", s)
}

// Cycle decides what a node that is revisited while still being
// classified is assumed to be.
type Cycle int

const (
	// Optimistic assumes the revisited node is serializable; the final
	// result still depends on every non-cyclic member.
	Optimistic Cycle = iota
	// Pessimistic assumes the revisited node is not serializable, so every
	// recursive type is rejected.
	Pessimistic
)

// String returns the config spelling of the policy.
func (c Cycle) String() string {
	if c == Pessimistic {
		return "pessimistic"
	}
	return "optimistic"
}

// ParseCycle parses "optimistic" or "pessimistic". An empty string is the
// default, Optimistic.
func ParseCycle(s string) (Cycle, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "optimistic":
		return Optimistic, nil
	case "pessimistic":
		return Pessimistic, nil
	}
	return Optimistic, fmt.Errorf("unknown cycle policy %q (want optimistic or pessimistic)", s)
}

// Policy groups the closed-world decisions the classifier cannot derive
// from structure alone.
type Policy struct {
	MissingDeclaration MissingDeclaration
	Cycle              Cycle
}

// DefaultPolicy returns Permit for missing declarations and Optimistic for
// cycles.
func DefaultPolicy() Policy {
	return Policy{MissingDeclaration: Permit, Cycle: Optimistic}
}

// String renders the policy for cache keys and logs.
func (p Policy) String() string {
	return "missing_declaration=" + p.MissingDeclaration.String() + ",cycle=" + p.Cycle.String()
}

func (p Policy) cycleAssumption() Result {
	if p.Cycle == Pessimistic {
		return NotSerializable
	}
	return Serializable
}

func (p Policy) missingDeclaration() Result {
	if p.MissingDeclaration == Deny {
		return NotSerializable
	}
	return Serializable
}
