package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
)

const defaultConcurrency = 4

// Controller admits requests through the in-flight registry, asks the
// provider for the transition unless the resource is already there, and runs
// the reconciliation loop.
type Controller struct {
	gateways    GatewayResolver
	inflight    *InFlightRegistry
	loop        *ReconciliationLoop
	logger      ports.Logger
	concurrency int
	callTimeout time.Duration
	onRequested []func(domain.ResourceKey)
}

func NewController(
	gateways GatewayResolver,
	inflight *InFlightRegistry,
	loop *ReconciliationLoop,
	logger ports.Logger,
	concurrency int,
) (*Controller, error) {
	if gateways == nil {
		return nil, errors.New(errors.CodeInternal, "gateway resolver cannot be nil")
	}
	if inflight == nil {
		return nil, errors.New(errors.CodeInternal, "in-flight registry cannot be nil")
	}
	if loop == nil {
		return nil, errors.New(errors.CodeInternal, "reconciliation loop cannot be nil")
	}
	if logger == nil {
		return nil, errors.New(errors.CodeInternal, "logger cannot be nil for controller")
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Controller{
		gateways:    gateways,
		inflight:    inflight,
		loop:        loop,
		logger:      logger,
		concurrency: concurrency,
		callTimeout: loop.callTimeout,
	}, nil
}

// OnTransitionRequested registers fn to run each time the provider accepts a
// transition request, before the first poll. Register before calling Start.
func (c *Controller) OnTransitionRequested(fn func(domain.ResourceKey)) {
	if fn != nil {
		c.onRequested = append(c.onRequested, fn)
	}
}

// Start admits req and runs it in the background. A duplicate key yields an
// *AlreadyInFlightError. The returned handle is released on every exit path.
func (c *Controller) Start(ctx context.Context, req domain.ReconciliationRequest) (*Handle, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.WrapUserFacing(err, errors.CodeInvalidRequest, err.Error(), "")
	}
	gateway, err := c.gateways.Lookup(req.Key)
	if err != nil {
		return nil, err
	}

	h, err := c.inflight.Admit(req.Key, req)
	if err != nil {
		c.logger.Infof(ctx, "Request %s not admitted: %v", req, err)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	h.bindCancel(cancel)
	go c.run(runCtx, cancel, h, gateway)
	return h, nil
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, h *Handle, gateway ports.ProviderGateway) {
	defer cancel()

	req := h.Request()
	log := c.logger.WithFields(map[string]any{"resource_key": req.Key.String(), "action": string(req.Action.Verb)})

	var (
		res = LoopResult{State: domain.StateUnknown}
		err error
	)
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.CodeInternal, fmt.Sprintf("reconciliation of %s panicked: %v", req.Key, r))
			log.Errorf(ctx, err, "Reconciliation aborted")
		}
		h.finish(res, err)
	}()

	if req.Action.Verb != domain.VerbObserve {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = &domain.ReconcileError{Kind: domain.ErrCancelled, Key: req.Key, LastState: res.State, Cause: ctxErr}
			return
		}
		prior, current := c.observeBefore(ctx, gateway, req, log)
		if !current {
			log.Infof(ctx, "Requesting %s", req.Action.Verb)
			if err = c.requestTransition(ctx, gateway, req); err != nil {
				log.Errorf(ctx, err, "Provider did not accept %s", req.Action.Verb)
				return
			}
			for _, fn := range c.onRequested {
				fn(req.Key)
			}
			res, err = c.loop.runAfterRequest(ctx, req, prior)
			return
		}
		log.Infof(ctx, "Already %s, not requesting %s", req.Desired, req.Action.Verb)
	}

	res, err = c.loop.Run(ctx, req)
}

// observeBefore polls once ahead of the transition request. current is true
// when the resource already is where the request wants it, including a
// resource that is gone when gone is the goal.
func (c *Controller) observeBefore(ctx context.Context, gateway ports.ProviderGateway, req domain.ReconciliationRequest, log ports.Logger) (prior requested, current bool) {
	raw, err := c.loop.poll(ctx, gateway, req.Key)
	switch {
	case err != nil && errors.IsNotFound(err):
		return requested{before: domain.StateUnknown, absent: true}, req.Desired == domain.StateTerminalSuccess
	case err != nil:
		log.Warnf(ctx, "Could not observe %s before requesting %s: %v", req.Key, req.Action.Verb, err)
		return requested{before: domain.StateUnknown}, false
	}
	state := domain.Classify(req.Key.Type, raw)
	return requested{before: state, raw: strings.ToLower(strings.TrimSpace(raw))}, state == req.Desired
}

func (c *Controller) requestTransition(ctx context.Context, gateway ports.ProviderGateway, req domain.ReconciliationRequest) error {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.callTimeout)
	defer cancel()
	if err := gateway.RequestTransition(callCtx, req.Key, req.Action); err != nil {
		return errors.Wrap(err, errors.CodeRequestRejected, fmt.Sprintf("%s %s rejected", req.Action.Verb, req.Key))
	}
	return nil
}

// Reconcile runs req to a definitive result. It returns once the operation
// has released its handle, even when ctx is cancelled.
func (c *Controller) Reconcile(ctx context.Context, req domain.ReconciliationRequest) (domain.ResourceState, error) {
	h, err := c.Start(ctx, req)
	if err != nil {
		return domain.StateUnknown, err
	}
	<-h.Done()
	return h.Wait(context.Background())
}

// ReconcileOrObserve runs req, or, when the key is already in flight, waits
// for the running operation and reports its outcome instead.
func (c *Controller) ReconcileOrObserve(ctx context.Context, req domain.ReconciliationRequest) domain.Outcome {
	h, err := c.Start(ctx, req)
	if err != nil {
		var inFlight *AlreadyInFlightError
		if !stderrors.As(err, &inFlight) {
			return domain.Outcome{Request: req, State: domain.StateUnknown, Err: err}
		}
		c.logger.Infof(ctx, "Observing in-flight reconciliation of %s", req.Key)
		state, waitErr := inFlight.Existing.Wait(ctx)
		stats := inFlight.Existing.Stats()
		return domain.Outcome{
			Request:  req,
			State:    state,
			Err:      waitErr,
			Attempts: stats.Attempts,
			Elapsed:  stats.Elapsed,
			Observed: true,
		}
	}

	<-h.Done()
	state, err := h.Wait(context.Background())
	stats := h.Stats()
	return domain.Outcome{Request: req, State: state, Err: err, Attempts: stats.Attempts, Elapsed: stats.Elapsed}
}

// Apply reconciles every request with bounded concurrency. Outcomes are
// returned in the order of reqs. Duplicate keys observe the first operation.
func (c *Controller) Apply(ctx context.Context, reqs []domain.ReconciliationRequest) []domain.Outcome {
	outcomes := make([]domain.Outcome, len(reqs))
	if len(reqs) == 0 {
		return outcomes
	}
	c.logger.Infof(ctx, "Applying %d reconciliation requests (concurrency %d)", len(reqs), c.concurrency)

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, req := range reqs {
		g.Go(func() error {
			outcomes[i] = c.ReconcileOrObserve(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			failed++
		}
	}
	c.logger.Infof(ctx, "Apply finished: %d succeeded, %d did not reach the desired state", len(outcomes)-failed, failed)
	return outcomes
}

// InFlight reports how many operations are currently admitted.
func (c *Controller) InFlight() int {
	return c.inflight.Len()
}
