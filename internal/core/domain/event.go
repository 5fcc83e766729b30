package domain

import (
	"fmt"
	"slices"
	"time"
)

// TransitionEvent records one observed change of classified state.
type TransitionEvent struct {
	Key  ResourceKey
	From ResourceState
	To   ResourceState
	At   time.Time
}

func (e TransitionEvent) String() string {
	return fmt.Sprintf("%s: %s -> %s", e.Key, e.From, e.To)
}

// EventFilter selects events by resource type and target state. Empty fields
// match everything.
type EventFilter struct {
	Types  []ResourceType
	States []ResourceState
}

func (f EventFilter) Matches(e TransitionEvent) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, e.Key.Type) {
		return false
	}
	if len(f.States) > 0 && !slices.Contains(f.States, e.To) {
		return false
	}
	return true
}
