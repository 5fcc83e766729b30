package domain

import (
	"fmt"

	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
)

type ReconcileErrorKind int

const (
	ErrTimeout ReconcileErrorKind = iota + 1
	ErrResourceFailed
	ErrCancelled
	ErrNotFound
)

func (k ReconcileErrorKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrResourceFailed:
		return "resource failed"
	case ErrCancelled:
		return "cancelled"
	case ErrNotFound:
		return "not found"
	}
	return "unknown"
}

// ReconcileError is the terminal, non-successful outcome of a reconciliation.
// LastState is the most recent classified observation.
type ReconcileError struct {
	Kind      ReconcileErrorKind
	Key       ResourceKey
	LastState ResourceState
	Cause     error
}

func (e *ReconcileError) Error() string {
	msg := fmt.Sprintf("reconcile %s: %s (last observed state %s)", e.Key, e.Kind, e.LastState)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ReconcileError) Unwrap() error {
	return e.Cause
}

func (e *ReconcileError) Code() apperrors.Code {
	switch e.Kind {
	case ErrTimeout:
		return apperrors.CodeReconcileTimeout
	case ErrResourceFailed:
		return apperrors.CodeResourceFailed
	case ErrCancelled:
		return apperrors.CodeReconcileCancelled
	case ErrNotFound:
		return apperrors.CodeResourceNotFound
	}
	return apperrors.CodeUnknown
}
