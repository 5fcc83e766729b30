package ports

import (
	"context"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
)

// TransitionListener receives events synchronously from the reconciliation
// loop, in order, before the next poll.
type TransitionListener interface {
	OnTransition(ctx context.Context, event domain.TransitionEvent)
}

// TransitionListenerFunc adapts a function to TransitionListener.
type TransitionListenerFunc func(ctx context.Context, event domain.TransitionEvent)

func (f TransitionListenerFunc) OnTransition(ctx context.Context, event domain.TransitionEvent) {
	f(ctx, event)
}

// Notifier performs one external side effect for an event.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event domain.TransitionEvent) error
}
