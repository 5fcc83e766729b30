package service

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
	"github.com/olusolaa/cloud-reconciler/mocks"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.TransitionEvent
}

func (r *eventRecorder) OnTransition(_ context.Context, e domain.TransitionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) Events() []domain.TransitionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TransitionEvent(nil), r.events...)
}

type loopFixture struct {
	clock    *fakeclock.FakeClock
	gateway  *mocks.MockGateway
	recorder *eventRecorder
	loop     *ReconciliationLoop
}

func newLoopFixture(t *testing.T, rt domain.ResourceType, opts ...LoopOption) *loopFixture {
	t.Helper()
	f := &loopFixture{
		clock:    fakeclock.NewFakeClock(epoch),
		gateway:  mocks.NewMockGateway(domain.ProviderAWS, rt),
		recorder: &eventRecorder{},
	}
	registry := NewGatewayRegistry()
	require.NoError(t, registry.Register(f.gateway))

	opts = append([]LoopOption{WithClock(f.clock), WithListeners(f.recorder)}, opts...)
	loop, err := NewReconciliationLoop(registry, mocks.NewPermissiveLogger(), opts...)
	require.NoError(t, err)
	f.loop = loop
	return f
}

type runResult struct {
	res LoopResult
	err error
}

func (f *loopFixture) start(ctx context.Context, req domain.ReconciliationRequest) <-chan runResult {
	out := make(chan runResult, 1)
	go func() {
		res, err := f.loop.Run(ctx, req)
		out <- runResult{res: res, err: err}
	}()
	return out
}

// advance fires the loop's wait timers one at a time.
func (f *loopFixture) advance(steps ...time.Duration) {
	for _, d := range steps {
		f.clock.WaitForWatcherAndIncrement(d)
	}
}

func wait(t *testing.T, ch <-chan runResult) runResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("reconciliation did not finish")
		return runResult{}
	}
}

func mustRequest(t *testing.T, key domain.ResourceKey, desired domain.ResourceState, verb domain.Verb, timeout, poll time.Duration) domain.ReconciliationRequest {
	t.Helper()
	req, err := domain.NewRequest(key, desired, domain.Action{Verb: verb}, timeout, poll)
	require.NoError(t, err)
	return req
}

func instanceKey(id string) domain.ResourceKey {
	return domain.NewResourceKey(domain.ProviderAWS, domain.TypeInstance, id)
}

func reconcileErr(t *testing.T, err error) *domain.ReconcileError {
	t.Helper()
	var re *domain.ReconcileError
	require.True(t, stderrors.As(err, &re), "expected *domain.ReconcileError, got %v", err)
	return re
}

func TestLoop_ReachesDesiredState(t *testing.T) {
	f := newLoopFixture(t, domain.TypeInstance)
	key := instanceKey("i-123")
	f.gateway.On("GetStatus", mock.Anything, key).Return("pending", nil).Twice()
	f.gateway.On("GetStatus", mock.Anything, key).Return("running", nil).Once()

	req := mustRequest(t, key, domain.StateActive, domain.VerbStart, 5*time.Minute, 5*time.Second)
	done := f.start(context.Background(), req)
	f.advance(5*time.Second, 5*time.Second)
	r := wait(t, done)

	require.NoError(t, r.err)
	assert.Equal(t, domain.StateActive, r.res.State)
	assert.Equal(t, 3, r.res.Attempts)
	assert.Equal(t, 10*time.Second, r.res.Elapsed)

	want := []domain.TransitionEvent{
		{Key: key, From: domain.StateUnknown, To: domain.StatePending, At: epoch},
		{Key: key, From: domain.StatePending, To: domain.StateActive, At: epoch.Add(10 * time.Second)},
	}
	if diff := cmp.Diff(want, f.recorder.Events()); diff != "" {
		t.Errorf("transition events mismatch (-want +got):\n%s", diff)
	}
	f.gateway.AssertExpectations(t)
}

func TestLoop_TimesOutWithinOneInterval(t *testing.T) {
	f := newLoopFixture(t, domain.TypeInstance)
	key := instanceKey("i-slow")
	f.gateway.On("GetStatus", mock.Anything, key).Return("pending", nil)

	req := mustRequest(t, key, domain.StateActive, domain.VerbObserve, 10*time.Second, 3*time.Second)
	done := f.start(context.Background(), req)
	// The last wait is clamped to the remaining budget.
	f.advance(3*time.Second, 3*time.Second, 3*time.Second, time.Second)
	r := wait(t, done)

	re := reconcileErr(t, r.err)
	assert.Equal(t, domain.ErrTimeout, re.Kind)
	assert.Equal(t, domain.StatePending, re.LastState)
	assert.Equal(t, errors.CodeReconcileTimeout, re.Code())
	assert.Equal(t, 5, r.res.Attempts)
	assert.LessOrEqual(t, r.res.Elapsed, req.Timeout+req.PollInterval)
}

func TestLoop_FailureShortCircuits(t *testing.T) {
	f := newLoopFixture(t, domain.TypeLoadBalancer)
	key := domain.NewResourceKey(domain.ProviderAWS, domain.TypeLoadBalancer, "lb-1")
	f.gateway.On("GetStatus", mock.Anything, key).Return("provisioning", nil).Once()
	f.gateway.On("GetStatus", mock.Anything, key).Return("failed", nil).Once()

	req := mustRequest(t, key, domain.StateActive, domain.VerbCreate, time.Hour, time.Second)
	done := f.start(context.Background(), req)
	f.advance(time.Second)
	r := wait(t, done)

	re := reconcileErr(t, r.err)
	assert.Equal(t, domain.ErrResourceFailed, re.Kind)
	assert.Equal(t, domain.StateTerminalFailure, re.LastState)
	assert.Equal(t, domain.StateTerminalFailure, r.res.State)
	assert.Equal(t, 2, r.res.Attempts)
	f.gateway.AssertNumberOfCalls(t, "GetStatus", 2)
}

func TestLoop_SettlesInOtherTerminalState(t *testing.T) {
	f := newLoopFixture(t, domain.TypeInstance)
	key := instanceKey("i-stopped")
	f.gateway.On("GetStatus", mock.Anything, key).Return("stopped", nil).Once()

	req := mustRequest(t, key, domain.StateActive, domain.VerbObserve, time.Minute, time.Second)
	r := wait(t, f.start(context.Background(), req))

	require.NoError(t, r.err)
	assert.Equal(t, domain.StateTerminalSuccess, r.res.State)
	assert.Equal(t, 1, r.res.Attempts)
}

func TestLoop_RetriesTransientErrors(t *testing.T) {
	f := newLoopFixture(t, domain.TypeInstance)
	key := instanceKey("i-flaky")
	f.gateway.On("GetStatus", mock.Anything, key).
		Return("", errors.New(errors.CodePlatformUnavailable, "throttled")).Once()
	f.gateway.On("GetStatus", mock.Anything, key).Return("running", nil).Once()

	req := mustRequest(t, key, domain.StateActive, domain.VerbStart, time.Minute, 2*time.Second)
	done := f.start(context.Background(), req)
	f.advance(2 * time.Second)
	r := wait(t, done)

	require.NoError(t, r.err)
	assert.Equal(t, domain.StateActive, r.res.State)
	assert.Equal(t, 2, r.res.Attempts)
}

func TestLoop_TimeoutCarriesLastError(t *testing.T) {
	f := newLoopFixture(t, domain.TypeInstance)
	key := instanceKey("i-down")
	cause := errors.New(errors.CodePlatformUnavailable, "endpoint unreachable")
	f.gateway.On("GetStatus", mock.Anything, key).Return("", cause)

	req := mustRequest(t, key, domain.StateActive, domain.VerbObserve, 2*time.Second, 2*time.Second)
	done := f.start(context.Background(), req)
	f.advance(2 * time.Second)
	r := wait(t, done)

	re := reconcileErr(t, r.err)
	assert.Equal(t, domain.ErrTimeout, re.Kind)
	assert.Equal(t, domain.StateUnknown, re.LastState)
	assert.ErrorIs(t, r.err, cause)
	assert.Empty(t, f.recorder.Events())
}

func TestLoop_NotFound(t *testing.T) {
	notFound := errors.New(errors.CodeResourceNotFound, "instance 'i-gone' not found")

	t.Run("fatal when the resource should exist", func(t *testing.T) {
		f := newLoopFixture(t, domain.TypeInstance)
		key := instanceKey("i-gone")
		f.gateway.On("GetStatus", mock.Anything, key).Return("", notFound).Once()

		req := mustRequest(t, key, domain.StateActive, domain.VerbStart, time.Minute, time.Second)
		r := wait(t, f.start(context.Background(), req))

		re := reconcileErr(t, r.err)
		assert.Equal(t, domain.ErrNotFound, re.Kind)
		assert.Equal(t, errors.CodeResourceNotFound, re.Code())
		assert.Equal(t, 1, r.res.Attempts)
	})

	t.Run("success when the resource should be gone", func(t *testing.T) {
		f := newLoopFixture(t, domain.TypeStack)
		key := domain.NewResourceKey(domain.ProviderAWS, domain.TypeStack, "webbucket1")
		f.gateway.On("GetStatus", mock.Anything, key).Return("DELETE_IN_PROGRESS", nil).Once()
		f.gateway.On("GetStatus", mock.Anything, key).Return("", notFound).Once()

		req := mustRequest(t, key, domain.StateTerminalSuccess, domain.VerbDelete, time.Minute, time.Second)
		done := f.start(context.Background(), req)
		f.advance(time.Second)
		r := wait(t, done)

		require.NoError(t, r.err)
		assert.Equal(t, domain.StateTerminalSuccess, r.res.State)
		want := []domain.TransitionEvent{
			{Key: key, From: domain.StateUnknown, To: domain.StateTransitioning, At: epoch},
			{Key: key, From: domain.StateTransitioning, To: domain.StateTerminalSuccess, At: epoch.Add(time.Second)},
		}
		if diff := cmp.Diff(want, f.recorder.Events()); diff != "" {
			t.Errorf("transition events mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestLoop_Cancellation(t *testing.T) {
	t.Run("before the first poll", func(t *testing.T) {
		f := newLoopFixture(t, domain.TypeInstance)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		req := mustRequest(t, instanceKey("i-1"), domain.StateActive, domain.VerbObserve, time.Minute, time.Second)
		r := wait(t, f.start(ctx, req))

		re := reconcileErr(t, r.err)
		assert.Equal(t, domain.ErrCancelled, re.Kind)
		assert.Equal(t, 0, r.res.Attempts)
		f.gateway.AssertNotCalled(t, "GetStatus", mock.Anything, mock.Anything)
	})

	t.Run("while waiting between polls", func(t *testing.T) {
		f := newLoopFixture(t, domain.TypeInstance)
		key := instanceKey("i-2")
		f.gateway.On("GetStatus", mock.Anything, key).Return("pending", nil)
		ctx, cancel := context.WithCancel(context.Background())

		req := mustRequest(t, key, domain.StateActive, domain.VerbObserve, time.Minute, time.Second)
		done := f.start(ctx, req)
		f.advance(0)
		cancel()
		r := wait(t, done)

		re := reconcileErr(t, r.err)
		assert.Equal(t, domain.ErrCancelled, re.Kind)
		assert.Equal(t, domain.StatePending, re.LastState)
		assert.Equal(t, errors.CodeReconcileCancelled, re.Code())
		assert.ErrorIs(t, r.err, context.Canceled)
		assert.Equal(t, 1, r.res.Attempts)
	})

	t.Run("never observed during a provider call", func(t *testing.T) {
		f := newLoopFixture(t, domain.TypeInstance)
		key := instanceKey("i-3")
		ctx, cancel := context.WithCancel(context.Background())
		f.gateway.On("GetStatus", mock.Anything, key).Run(func(args mock.Arguments) {
			cancel()
			callCtx := args.Get(0).(context.Context)
			assert.NoError(t, callCtx.Err())
			_, hasDeadline := callCtx.Deadline()
			assert.True(t, hasDeadline)
		}).Return("pending", nil).Once()

		req := mustRequest(t, key, domain.StateActive, domain.VerbObserve, time.Minute, time.Second)
		r := wait(t, f.start(ctx, req))

		re := reconcileErr(t, r.err)
		assert.Equal(t, domain.ErrCancelled, re.Kind)
		assert.Equal(t, domain.StatePending, re.LastState)
		assert.Len(t, f.recorder.Events(), 1)
	})
}

func TestLoop_BackoffGrowsToCeiling(t *testing.T) {
	f := newLoopFixture(t, domain.TypeInstance, WithBackoff(Backoff{Multiplier: 2, Max: 3 * time.Second}))
	key := instanceKey("i-backoff")
	f.gateway.On("GetStatus", mock.Anything, key).Return("pending", nil).Times(3)
	f.gateway.On("GetStatus", mock.Anything, key).Return("running", nil).Once()

	req := mustRequest(t, key, domain.StateActive, domain.VerbObserve, time.Minute, time.Second)
	done := f.start(context.Background(), req)
	f.advance(time.Second, 2*time.Second, 3*time.Second)
	r := wait(t, done)

	require.NoError(t, r.err)
	assert.Equal(t, 4, r.res.Attempts)
	assert.Equal(t, 6*time.Second, r.res.Elapsed)
}

func TestLoop_RejectsInvalidRequests(t *testing.T) {
	f := newLoopFixture(t, domain.TypeInstance)

	_, err := f.loop.Run(context.Background(), domain.ReconciliationRequest{Key: instanceKey("i-1"), Desired: domain.StateActive})
	assert.Equal(t, errors.CodeInvalidRequest, errors.GetCode(err))

	unknown := mustRequest(t, domain.NewResourceKey("openstack", domain.TypeInstance, "vm-1"),
		domain.StateActive, domain.VerbObserve, time.Minute, time.Second)
	_, err = f.loop.Run(context.Background(), unknown)
	assert.Equal(t, errors.CodeNotImplemented, errors.GetCode(err))
}

func TestNewReconciliationLoop_Validation(t *testing.T) {
	_, err := NewReconciliationLoop(nil, mocks.NewPermissiveLogger())
	assert.Error(t, err)
	_, err = NewReconciliationLoop(NewGatewayRegistry(), nil)
	assert.Error(t, err)
}

func TestLoop_Reconcile(t *testing.T) {
	f := newLoopFixture(t, domain.TypeBucket)
	key := domain.NewResourceKey(domain.ProviderAWS, domain.TypeBucket, "logs")
	f.gateway.On("GetStatus", mock.Anything, key).Return("exists", nil).Once()

	state, err := f.loop.Reconcile(context.Background(),
		mustRequest(t, key, domain.StateActive, domain.VerbCreate, time.Minute, time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, state)
}
