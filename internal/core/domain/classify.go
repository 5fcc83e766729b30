package domain

import "strings"

// Raw status tables, keyed by lower-cased provider status.
var classificationTables = map[ResourceType]map[string]ResourceState{
	TypeInstance: {
		"pending":       StatePending,
		"running":       StateActive,
		"stopping":      StateTransitioning,
		"shutting-down": StateTransitioning,
		"stopped":       StateTerminalSuccess,
		"terminated":    StateTerminalSuccess,
	},
	TypeVolumeAttachment: {
		"attaching": StatePending,
		"attached":  StateActive,
		"busy":      StateTransitioning,
		"detaching": StateTransitioning,
		"detached":  StateTerminalSuccess,
		"error":     StateTerminalFailure,
	},
	TypeStack: {
		"review_in_progress":                           StatePending,
		"create_in_progress":                           StatePending,
		"create_complete":                              StateActive,
		"update_complete":                              StateActive,
		"import_complete":                              StateActive,
		"update_rollback_complete":                     StateActive,
		"import_rollback_complete":                     StateActive,
		"update_in_progress":                           StateTransitioning,
		"update_complete_cleanup_in_progress":          StateTransitioning,
		"update_rollback_in_progress":                  StateTransitioning,
		"update_rollback_complete_cleanup_in_progress": StateTransitioning,
		"import_in_progress":                           StateTransitioning,
		"import_rollback_in_progress":                  StateTransitioning,
		"rollback_in_progress":                         StateTransitioning,
		"delete_in_progress":                           StateTransitioning,
		"delete_complete":                              StateTerminalSuccess,
		"create_failed":                                StateTerminalFailure,
		"delete_failed":                                StateTerminalFailure,
		"rollback_complete":                            StateTerminalFailure,
		"rollback_failed":                              StateTerminalFailure,
		"update_failed":                                StateTerminalFailure,
		"update_rollback_failed":                       StateTerminalFailure,
		"import_rollback_failed":                       StateTerminalFailure,
	},
	TypeLoadBalancer: {
		"provisioning":    StatePending,
		"active":          StateActive,
		"active_impaired": StateActive,
		"failed":          StateTerminalFailure,
	},
	TypeBucket: {
		"creating": StatePending,
		"exists":   StateActive,
	},
	TypeTarget: {
		"initial":            StatePending,
		"unused":             StatePending,
		"healthy":            StateActive,
		"unavailable":        StateActive,
		"unhealthy":          StateTransitioning,
		"draining":           StateTransitioning,
		"unhealthy.draining": StateTransitioning,
		"unregistered":       StateTerminalSuccess,
	},
}

// genericTable is consulted for types without a table and for statuses a
// type's table does not know.
var genericTable = map[string]ResourceState{
	"pending":      StatePending,
	"creating":     StatePending,
	"provisioning": StatePending,
	"active":       StateActive,
	"available":    StateActive,
	"running":      StateActive,
	"in-use":       StateActive,
	"updating":     StateTransitioning,
	"deleting":     StateTransitioning,
	"deleted":      StateTerminalSuccess,
	"failed":       StateTerminalFailure,
	"error":        StateTerminalFailure,
}

// Classify maps a raw provider status to a ResourceState. It never fails:
// anything unrecognised is StateUnknown.
func Classify(rt ResourceType, raw string) ResourceState {
	status := strings.ToLower(strings.TrimSpace(raw))
	if status == "" {
		return StateUnknown
	}
	if table, ok := classificationTables[rt]; ok {
		if state, ok := table[status]; ok {
			return state
		}
	}
	if state, ok := genericTable[status]; ok {
		return state
	}
	return StateUnknown
}
