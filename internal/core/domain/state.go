package domain

import (
	"fmt"
	"strings"
)

// ResourceState is the lifecycle phase of a resource as computed from the
// provider's raw status.
type ResourceState int

const (
	StateUnknown ResourceState = iota
	StatePending
	StateActive
	StateTransitioning
	StateTerminalSuccess
	StateTerminalFailure
)

var stateNames = map[ResourceState]string{
	StateUnknown:         "Unknown",
	StatePending:         "Pending",
	StateActive:          "Active",
	StateTransitioning:   "Transitioning",
	StateTerminalSuccess: "TerminalSuccess",
	StateTerminalFailure: "TerminalFailure",
}

func (s ResourceState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ResourceState(%d)", int(s))
}

// IsTerminal reports whether the loop stops polling once s is observed.
func (s ResourceState) IsTerminal() bool {
	return s == StateTerminalSuccess || s == StateTerminalFailure
}

func (s ResourceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ResourceState) UnmarshalText(text []byte) error {
	parsed, err := ParseResourceState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseResourceState accepts the canonical names case-insensitively, with or
// without a separator between "terminal" and its outcome.
func ParseResourceState(s string) (ResourceState, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "", "_", "", " ", "").Replace(norm)
	for state, name := range stateNames {
		if strings.ToLower(name) == norm {
			return state, nil
		}
	}
	return StateUnknown, fmt.Errorf("unknown resource state %q", s)
}
