package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
)

func TestNewRequest(t *testing.T) {
	key := NewResourceKey(ProviderAWS, TypeVolumeAttachment, "vol-1")
	args := map[string]string{ArgInstanceID: "i-1"}

	req, err := NewRequest(key, StateActive, Action{Verb: VerbAttach, Args: args}, time.Minute, time.Second)
	require.NoError(t, err)
	args[ArgInstanceID] = "i-2"
	assert.Equal(t, "i-1", req.Action.Arg(ArgInstanceID), "args are copied")
	assert.Equal(t, "attach aws/volume-attachment/vol-1 -> Active", req.String())

	req, err = NewRequest(key, StateActive, Action{}, time.Minute, time.Second)
	require.NoError(t, err)
	assert.Equal(t, VerbObserve, req.Action.Verb)
}

func TestNewRequest_Validation(t *testing.T) {
	key := NewResourceKey(ProviderAWS, TypeInstance, "i-1")
	tests := []struct {
		name    string
		key     ResourceKey
		desired ResourceState
		timeout time.Duration
		poll    time.Duration
	}{
		{"empty key", ResourceKey{}, StateActive, time.Minute, time.Second},
		{"unknown desired", key, StateUnknown, time.Minute, time.Second},
		{"pending desired", key, StatePending, time.Minute, time.Second},
		{"failure desired", key, StateTerminalFailure, time.Minute, time.Second},
		{"zero timeout", key, StateActive, 0, time.Second},
		{"negative poll", key, StateActive, time.Minute, -time.Second},
		{"poll above timeout", key, StateActive, time.Second, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRequest(tt.key, tt.desired, Action{Verb: VerbStart}, tt.timeout, tt.poll)
			assert.Error(t, err)
		})
	}
}

func TestDesiredStateFor(t *testing.T) {
	for _, v := range []Verb{VerbStart, VerbAttach, VerbCreate} {
		s, ok := DesiredStateFor(v)
		assert.True(t, ok)
		assert.Equal(t, StateActive, s, v)
	}
	for _, v := range []Verb{VerbStop, VerbTerminate, VerbDetach, VerbDelete} {
		s, ok := DesiredStateFor(v)
		assert.True(t, ok)
		assert.Equal(t, StateTerminalSuccess, s, v)
	}
	_, ok := DesiredStateFor(VerbObserve)
	assert.False(t, ok)
}

func TestEventFilter(t *testing.T) {
	event := TransitionEvent{Key: NewResourceKey(ProviderAWS, TypeInstance, "i-1"), From: StatePending, To: StateActive}

	assert.True(t, EventFilter{}.Matches(event))
	assert.True(t, EventFilter{Types: []ResourceType{TypeInstance}, States: []ResourceState{StateActive}}.Matches(event))
	assert.False(t, EventFilter{Types: []ResourceType{TypeBucket}}.Matches(event))
	assert.False(t, EventFilter{States: []ResourceState{StateTerminalFailure}}.Matches(event))
	assert.Equal(t, "aws/instance/i-1: Pending -> Active", event.String())
}

func TestReconcileError(t *testing.T) {
	cause := errors.New("throttled")
	err := &ReconcileError{Kind: ErrTimeout, Key: NewResourceKey(ProviderAWS, TypeStack, "s"), LastState: StatePending, Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "reconcile aws/stack/s: timeout (last observed state Pending): throttled", err.Error())
	assert.Equal(t, apperrors.CodeReconcileTimeout, err.Code())
	assert.Equal(t, apperrors.CodeResourceFailed, (&ReconcileError{Kind: ErrResourceFailed}).Code())
	assert.Equal(t, apperrors.CodeReconcileCancelled, (&ReconcileError{Kind: ErrCancelled}).Code())
	assert.Equal(t, apperrors.CodeResourceNotFound, (&ReconcileError{Kind: ErrNotFound}).Code())
}

func TestOutcome_Succeeded(t *testing.T) {
	req := ReconciliationRequest{Desired: StateActive}
	assert.True(t, Outcome{Request: req, State: StateActive}.Succeeded())
	assert.False(t, Outcome{Request: req, State: StateTerminalSuccess}.Succeeded())
	assert.False(t, Outcome{Request: req, State: StateActive, Err: errors.New("x")}.Succeeded())
}
