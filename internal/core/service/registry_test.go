package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
	"github.com/olusolaa/cloud-reconciler/mocks"
)

func TestGatewayRegistry(t *testing.T) {
	r := NewGatewayRegistry()
	instances := mocks.NewMockGateway(domain.ProviderAWS, domain.TypeInstance)
	buckets := mocks.NewMockGateway(domain.ProviderAWS, domain.TypeBucket)

	require.NoError(t, r.Register(instances))
	require.NoError(t, r.Register(buckets))
	assert.Error(t, r.Register(mocks.NewMockGateway(domain.ProviderAWS, domain.TypeInstance)), "duplicate registration")
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(mocks.NewMockGateway("", domain.TypeInstance)))
	assert.Error(t, r.Register(mocks.NewMockGateway(domain.ProviderAWS, "")))

	got, err := r.Lookup(instanceKey("i-1"))
	require.NoError(t, err)
	assert.Same(t, instances, got)

	_, err = r.Lookup(domain.NewResourceKey("openstack", domain.TypeInstance, "vm"))
	assert.Equal(t, errors.CodeNotImplemented, errors.GetCode(err))

	assert.Equal(t, []string{"aws/bucket", "aws/instance"}, r.Registered())
}
