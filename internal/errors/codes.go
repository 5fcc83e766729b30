package errors

type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeInternal         Code = "INTERNAL_ERROR"
	CodeConfigValidation Code = "CONFIG_VALIDATION_ERROR"
	CodeConfigReadError  Code = "CONFIG_READ_ERROR"
	CodeConfigParseError Code = "CONFIG_PARSE_ERROR"
	CodeNotImplemented   Code = "NOT_IMPLEMENTED"
	CodeInvalidRequest   Code = "INVALID_REQUEST"

	// Gateway errors, surfaced by provider adapters
	CodeResourceNotFound    Code = "RESOURCE_NOT_FOUND"
	CodePlatformUnavailable Code = "PLATFORM_UNAVAILABLE"
	CodePlatformAuthError   Code = "PLATFORM_AUTH_ERROR"
	CodeRequestRejected     Code = "REQUEST_REJECTED"

	// Reconciliation outcomes
	CodeReconcileTimeout    Code = "RECONCILE_TIMEOUT"
	CodeResourceFailed      Code = "RESOURCE_FAILED"
	CodeReconcileCancelled  Code = "RECONCILE_CANCELLED"
	CodeAlreadyInFlight     Code = "ALREADY_IN_FLIGHT"
	CodeReconcileIncomplete Code = "RECONCILE_INCOMPLETE"

	// Plan sources
	CodePlanParseError Code = "PLAN_PARSE_ERROR"
	CodeStateReadError Code = "STATE_READ_ERROR"

	CodeNotificationError Code = "NOTIFICATION_ERROR"
)

func (c Code) String() string {
	return string(c)
}
