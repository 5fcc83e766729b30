package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
)

const defaultCallTimeout = 30 * time.Second

// GatewayResolver finds the gateway for a key.
type GatewayResolver interface {
	Lookup(key domain.ResourceKey) (ports.ProviderGateway, error)
}

// LoopResult carries the final state of a run together with its cost.
type LoopResult struct {
	State    domain.ResourceState
	Attempts int
	Elapsed  time.Duration
}

// ReconciliationLoop polls a resource until it reaches the desired state, a
// terminal state, the request timeout, or caller cancellation.
type ReconciliationLoop struct {
	gateways    GatewayResolver
	logger      ports.Logger
	clock       clock.Clock
	backoff     Backoff
	callTimeout time.Duration
	listeners   []ports.TransitionListener
}

type LoopOption func(*ReconciliationLoop)

func WithClock(c clock.Clock) LoopOption {
	return func(l *ReconciliationLoop) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithBackoff(b Backoff) LoopOption {
	return func(l *ReconciliationLoop) {
		l.backoff = b
	}
}

// WithCallTimeout bounds each individual gateway call. It is independent of
// the request timeout.
func WithCallTimeout(d time.Duration) LoopOption {
	return func(l *ReconciliationLoop) {
		if d > 0 {
			l.callTimeout = d
		}
	}
}

func WithListeners(listeners ...ports.TransitionListener) LoopOption {
	return func(l *ReconciliationLoop) {
		for _, ls := range listeners {
			if ls != nil {
				l.listeners = append(l.listeners, ls)
			}
		}
	}
}

func NewReconciliationLoop(gateways GatewayResolver, logger ports.Logger, opts ...LoopOption) (*ReconciliationLoop, error) {
	if gateways == nil {
		return nil, errors.New(errors.CodeInternal, "gateway resolver cannot be nil")
	}
	if logger == nil {
		return nil, errors.New(errors.CodeInternal, "logger cannot be nil for reconciliation loop")
	}
	l := &ReconciliationLoop{
		gateways:    gateways,
		logger:      logger,
		clock:       clock.NewClock(),
		backoff:     ConstantBackoff(),
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Reconcile drives req to completion and returns the final classified state.
func (l *ReconciliationLoop) Reconcile(ctx context.Context, req domain.ReconciliationRequest) (domain.ResourceState, error) {
	res, err := l.Run(ctx, req)
	return res.State, err
}

// Run is Reconcile with attempt and timing details.
//
// Every change of classified state is delivered to the listeners before the
// next poll. Gateway errors other than not-found are retried within the
// timeout budget. Cancellation of ctx is only observed between polls.
func (l *ReconciliationLoop) Run(ctx context.Context, req domain.ReconciliationRequest) (LoopResult, error) {
	return l.run(ctx, req, nil)
}

// requested is what the controller saw just before a transition request the
// provider accepted. raw is empty when the status could not be read.
type requested struct {
	before domain.ResourceState
	raw    string
	absent bool
}

// stale reports whether raw is still the status seen before the request.
func (r *requested) stale(raw string) bool {
	return !r.absent && r.raw != "" && strings.EqualFold(strings.TrimSpace(raw), r.raw)
}

// runAfterRequest waits one poll interval before the first poll. Until the
// provider reports a status other than the pre-request one, the reading is
// treated as stale and never settles the run. A resource that did not exist
// before the request may stay not found until it shows up.
func (l *ReconciliationLoop) runAfterRequest(ctx context.Context, req domain.ReconciliationRequest, prior requested) (LoopResult, error) {
	return l.run(ctx, req, &prior)
}

func (l *ReconciliationLoop) run(ctx context.Context, req domain.ReconciliationRequest, prior *requested) (LoopResult, error) {
	if err := req.Validate(); err != nil {
		return LoopResult{}, errors.Wrap(err, errors.CodeInvalidRequest, "invalid reconciliation request")
	}
	gateway, err := l.gateways.Lookup(req.Key)
	if err != nil {
		return LoopResult{}, err
	}

	log := l.logger.WithFields(map[string]any{
		"resource_key": req.Key.String(),
		"desired":      req.Desired.String(),
	})

	start := l.clock.Now()
	deadline := start.Add(req.Timeout)
	interval := req.PollInterval
	res := LoopResult{State: domain.StateUnknown}
	var lastErr error

	if prior != nil {
		res.State = prior.before
		if err := l.sleep(ctx, min(interval, req.Timeout)); err != nil {
			res.Elapsed = l.clock.Since(start)
			log.Warnf(ctx, "Reconciliation cancelled before the first poll")
			return res, l.failure(domain.ErrCancelled, req.Key, res.State, err)
		}
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Elapsed = l.clock.Since(start)
			log.Warnf(ctx, "Reconciliation cancelled after %d polls", res.Attempts)
			return res, l.failure(domain.ErrCancelled, req.Key, res.State, ctxErr)
		}

		res.Attempts++
		raw, pollErr := l.poll(ctx, gateway, req.Key)
		switch {
		case pollErr != nil && errors.IsNotFound(pollErr) && prior != nil && prior.absent && req.Desired != domain.StateTerminalSuccess:
			lastErr = pollErr
			log.Debugf(ctx, "Poll %d: resource not visible yet", res.Attempts)

		case pollErr != nil && errors.IsNotFound(pollErr):
			res.Elapsed = l.clock.Since(start)
			if req.Desired == domain.StateTerminalSuccess {
				// Gone is what a delete, terminate or detach was waiting for.
				l.observe(ctx, req.Key, &res.State, domain.StateTerminalSuccess)
				log.Infof(ctx, "Resource no longer exists, treating as %s", domain.StateTerminalSuccess)
				return res, nil
			}
			log.Errorf(ctx, pollErr, "Resource not found, abandoning reconciliation")
			return res, l.failure(domain.ErrNotFound, req.Key, res.State, pollErr)

		case pollErr != nil:
			lastErr = pollErr
			log.Warnf(ctx, "Status poll %d failed, retrying: %v", res.Attempts, pollErr)

		default:
			lastErr = nil
			state := domain.Classify(req.Key.Type, raw)
			if prior != nil && !prior.stale(raw) {
				prior = nil
			}
			l.observe(ctx, req.Key, &res.State, state)

			if prior != nil {
				log.Debugf(ctx, "Poll %d: status %q still predates the %s request", res.Attempts, raw, req.Action.Verb)
				break
			}
			if state == domain.StateTerminalFailure {
				res.Elapsed = l.clock.Since(start)
				cause := errors.New(errors.CodeResourceFailed, fmt.Sprintf("provider reported status %q", raw))
				log.Errorf(ctx, cause, "Resource entered a failure state")
				return res, l.failure(domain.ErrResourceFailed, req.Key, state, cause)
			}
			if state == req.Desired || state.IsTerminal() {
				res.Elapsed = l.clock.Since(start)
				log.Infof(ctx, "Reconciliation settled in %s after %d polls", state, res.Attempts)
				return res, nil
			}
			log.Debugf(ctx, "Poll %d: status %q classified as %s", res.Attempts, raw, state)
		}

		now := l.clock.Now()
		res.Elapsed = now.Sub(start)
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			log.Warnf(ctx, "Reconciliation timed out after %s in state %s", req.Timeout, res.State)
			return res, l.failure(domain.ErrTimeout, req.Key, res.State, lastErr)
		}

		if err := l.sleep(ctx, min(interval, remaining)); err != nil {
			res.Elapsed = l.clock.Since(start)
			log.Warnf(ctx, "Reconciliation cancelled while waiting to poll")
			return res, l.failure(domain.ErrCancelled, req.Key, res.State, err)
		}
		interval = l.backoff.Next(interval)
	}
}

func (l *ReconciliationLoop) sleep(ctx context.Context, d time.Duration) error {
	timer := l.clock.NewTimer(d)
	select {
	case <-timer.C():
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}

// poll calls the gateway on a context that ignores caller cancellation, so a
// cancel is never observed in the middle of a provider call.
func (l *ReconciliationLoop) poll(ctx context.Context, gateway ports.ProviderGateway, key domain.ResourceKey) (string, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.callTimeout)
	defer cancel()
	return gateway.GetStatus(callCtx, key)
}

func (l *ReconciliationLoop) observe(ctx context.Context, key domain.ResourceKey, last *domain.ResourceState, next domain.ResourceState) {
	if *last == next {
		return
	}
	event := domain.TransitionEvent{Key: key, From: *last, To: next, At: l.clock.Now()}
	*last = next
	listenerCtx := context.WithoutCancel(ctx)
	for _, listener := range l.listeners {
		listener.OnTransition(listenerCtx, event)
	}
}

func (l *ReconciliationLoop) failure(kind domain.ReconcileErrorKind, key domain.ResourceKey, last domain.ResourceState, cause error) error {
	return &domain.ReconcileError{Kind: kind, Key: key, LastState: last, Cause: cause}
}
