package shared

import (
	"context"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
)

// Base carries what every AWS gateway needs around an SDK call.
type Base struct {
	Limiter RateLimiter
	Errors  ErrorHandler
	Logger  ports.Logger
}

// Call waits for the rate limiter, runs fn and maps any SDK error.
func (b Base) Call(ctx context.Context, resourceType, resourceID string, fn func(ctx context.Context) error) error {
	if b.Limiter != nil {
		if err := b.Limiter.Wait(ctx); err != nil {
			return b.Errors.Handle(ctx, resourceType, resourceID, err)
		}
	}
	if err := fn(ctx); err != nil {
		return b.Errors.Handle(ctx, resourceType, resourceID, err)
	}
	return nil
}

func (b Base) Provider() string {
	return domain.ProviderAWS
}
