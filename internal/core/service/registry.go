package service

import (
	"fmt"
	"sort"
	"sync"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
)

type gatewayKey struct {
	provider     string
	resourceType domain.ResourceType
}

// GatewayRegistry resolves the ProviderGateway responsible for a resource key.
type GatewayRegistry struct {
	mu       sync.RWMutex
	gateways map[gatewayKey]ports.ProviderGateway
}

func NewGatewayRegistry() *GatewayRegistry {
	return &GatewayRegistry{
		gateways: make(map[gatewayKey]ports.ProviderGateway),
	}
}

func (r *GatewayRegistry) Register(gateway ports.ProviderGateway) error {
	if gateway == nil {
		return errors.New(errors.CodeInternal, "attempted to register nil provider gateway")
	}
	key := gatewayKey{provider: gateway.Provider(), resourceType: gateway.ResourceType()}
	if key.provider == "" {
		return errors.New(errors.CodeInternal, "provider gateway provider cannot be empty")
	}
	if key.resourceType == "" {
		return errors.New(errors.CodeInternal, "provider gateway resource type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.gateways[key]; exists {
		return errors.New(errors.CodeInternal, fmt.Sprintf("gateway for %s/%s already registered", key.provider, key.resourceType))
	}
	r.gateways[key] = gateway
	return nil
}

func (r *GatewayRegistry) Lookup(key domain.ResourceKey) (ports.ProviderGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	gateway, exists := r.gateways[gatewayKey{provider: key.Provider, resourceType: key.Type}]
	if !exists {
		return nil, errors.NewUserFacing(errors.CodeNotImplemented,
			fmt.Sprintf("no gateway registered for %s/%s", key.Provider, key.Type),
			"Check the provider and resource type of the key.")
	}
	return gateway, nil
}

// Registered lists "provider/type" pairs in sorted order.
func (r *GatewayRegistry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.gateways))
	for k := range r.gateways {
		out = append(out, k.provider+"/"+string(k.resourceType))
	}
	sort.Strings(out)
	return out
}
