package ports

import (
	"context"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
)

// ProviderGateway is the capability a provider exposes for one resource type.
//
// GetStatus returns the provider's raw status string. Errors carry
// CodeResourceNotFound when the resource does not exist and
// CodePlatformUnavailable for transport, throttling or auth problems.
// RequestTransition fails with CodeRequestRejected when the provider refuses
// the action.
type ProviderGateway interface {
	Provider() string
	ResourceType() domain.ResourceType
	GetStatus(ctx context.Context, key domain.ResourceKey) (string, error)
	RequestTransition(ctx context.Context, key domain.ResourceKey, action domain.Action) error
}
