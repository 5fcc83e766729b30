package service

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
)

func instanceRequest(t *testing.T, id string) domain.ReconciliationRequest {
	return mustRequest(t, instanceKey(id), domain.StateActive, domain.VerbStart, time.Minute, time.Second)
}

func TestInFlightRegistry_AdmitOncePerKey(t *testing.T) {
	r := NewInFlightRegistry()
	req := instanceRequest(t, "i-1")

	h, err := r.Admit(req.Key, req)
	require.NoError(t, err)
	assert.Equal(t, req.Key, h.Key())
	assert.Equal(t, 1, r.Len())

	_, err = r.Admit(req.Key, req)
	var inFlight *AlreadyInFlightError
	require.True(t, stderrors.As(err, &inFlight))
	assert.Same(t, h, inFlight.Existing)
	assert.Equal(t, errors.CodeAlreadyInFlight, inFlight.Code())
	assert.Contains(t, err.Error(), "aws/instance/i-1")

	other := instanceRequest(t, "i-2")
	_, err = r.Admit(other.Key, other)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
}

func TestInFlightRegistry_AdmitRejectsMismatchedKey(t *testing.T) {
	r := NewInFlightRegistry()
	_, err := r.Admit(instanceKey("i-1"), instanceRequest(t, "i-2"))
	assert.Equal(t, errors.CodeInvalidRequest, errors.GetCode(err))
	assert.Zero(t, r.Len())
}

func TestInFlightRegistry_ConcurrentAdmit(t *testing.T) {
	r := NewInFlightRegistry()
	req := instanceRequest(t, "i-race")

	var (
		admitted atomic.Int32
		wg       sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Admit(req.Key, req); err == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, admitted.Load())
}

func TestHandle_ReleaseIsIdempotent(t *testing.T) {
	r := NewInFlightRegistry()
	req := instanceRequest(t, "i-1")
	h, err := r.Admit(req.Key, req)
	require.NoError(t, err)
	assert.False(t, h.released())

	h.Release(domain.StateActive, nil)
	h.Release(domain.StateTerminalFailure, stderrors.New("late"))

	assert.True(t, h.released())
	state, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StateActive, state)
	assert.Zero(t, r.Len())

	h2, err := r.Admit(req.Key, req)
	require.NoError(t, err)
	assert.NotSame(t, h, h2)

	// A stale handle must not remove its successor.
	h.Release(domain.StateActive, nil)
	got, ok := r.lookup(req.Key)
	require.True(t, ok)
	assert.Same(t, h2, got)
}

func TestHandle_WaitStopsOnContext(t *testing.T) {
	r := NewInFlightRegistry()
	req := instanceRequest(t, "i-1")
	h, err := r.Admit(req.Key, req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	state, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.StateUnknown, state)
	assert.False(t, h.released())
	assert.Equal(t, LoopResult{}, h.Stats())
}

func TestHandle_CancelBeforeBind(t *testing.T) {
	r := NewInFlightRegistry()
	req := instanceRequest(t, "i-1")
	h, err := r.Admit(req.Key, req)
	require.NoError(t, err)

	h.Cancel()
	ctx, cancel := context.WithCancel(context.Background())
	h.bindCancel(cancel)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestHandle_Stats(t *testing.T) {
	r := NewInFlightRegistry()
	req := instanceRequest(t, "i-1")
	h, err := r.Admit(req.Key, req)
	require.NoError(t, err)

	h.finish(LoopResult{State: domain.StateActive, Attempts: 3, Elapsed: 10 * time.Second}, nil)
	assert.Equal(t, LoopResult{State: domain.StateActive, Attempts: 3, Elapsed: 10 * time.Second}, h.Stats())
	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after release")
	}
}
