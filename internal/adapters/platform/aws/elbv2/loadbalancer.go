package elbv2

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/shared"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
)

const loadBalancerResource = "load balancer"

// Settings are the network defaults for created load balancers.
type Settings struct {
	Subnets        []string
	SecurityGroups []string
	Scheme         string
}

// LoadBalancerGateway drives application load balancers. The key ID is the
// load balancer name.
type LoadBalancerGateway struct {
	shared.Base
	client   ELBv2ClientInterface
	settings Settings
}

func NewLoadBalancerGateway(client ELBv2ClientInterface, base shared.Base, settings Settings) *LoadBalancerGateway {
	return &LoadBalancerGateway{Base: base, client: client, settings: settings}
}

func (g *LoadBalancerGateway) ResourceType() domain.ResourceType {
	return domain.TypeLoadBalancer
}

// GetStatus returns the elbv2 state code, e.g. "provisioning" or "active".
func (g *LoadBalancerGateway) GetStatus(ctx context.Context, key domain.ResourceKey) (string, error) {
	lb, err := g.describe(ctx, key.ID)
	if err != nil {
		return "", err
	}
	if lb.State == nil {
		return "", nil
	}
	return string(lb.State.Code), nil
}

func (g *LoadBalancerGateway) describe(ctx context.Context, name string) (elbtypes.LoadBalancer, error) {
	var output *elb.DescribeLoadBalancersOutput
	err := g.Call(ctx, loadBalancerResource, name, func(ctx context.Context) error {
		var err error
		output, err = g.client.DescribeLoadBalancers(ctx, &elb.DescribeLoadBalancersInput{Names: []string{name}})
		return err
	})
	if err != nil {
		return elbtypes.LoadBalancer{}, err
	}
	if len(output.LoadBalancers) == 0 {
		return elbtypes.LoadBalancer{}, apperrors.New(apperrors.CodeResourceNotFound,
			fmt.Sprintf("load balancer '%s' not found (empty response)", name))
	}
	return output.LoadBalancers[0], nil
}

func (g *LoadBalancerGateway) RequestTransition(ctx context.Context, key domain.ResourceKey, action domain.Action) error {
	switch action.Verb {
	case domain.VerbCreate:
		return g.create(ctx, key.ID, action)
	case domain.VerbDelete:
		lb, err := g.describe(ctx, key.ID)
		if err != nil {
			return err
		}
		return g.Call(ctx, loadBalancerResource, key.ID, func(ctx context.Context) error {
			_, err := g.client.DeleteLoadBalancer(ctx, &elb.DeleteLoadBalancerInput{LoadBalancerArn: lb.LoadBalancerArn})
			return err
		})
	}
	return apperrors.NewUserFacing(apperrors.CodeRequestRejected,
		fmt.Sprintf("%s does not support '%s'", loadBalancerResource, action.Verb),
		"Load balancers can be created or deleted.")
}

func (g *LoadBalancerGateway) create(ctx context.Context, name string, action domain.Action) error {
	subnets := splitArg(action.Arg(domain.ArgSubnets), g.settings.Subnets)
	if len(subnets) < 2 {
		return apperrors.NewUserFacing(apperrors.CodeRequestRejected,
			fmt.Sprintf("load balancer '%s' needs at least two subnets, got %d", name, len(subnets)),
			"Set platform.aws.load_balancer.subnets or pass --subnets.")
	}

	input := &elb.CreateLoadBalancerInput{
		Name:           aws.String(name),
		Subnets:        subnets,
		SecurityGroups: splitArg(action.Arg(domain.ArgSecurityGroups), g.settings.SecurityGroups),
		Type:           elbtypes.LoadBalancerTypeEnumApplication,
	}
	if g.settings.Scheme != "" {
		input.Scheme = elbtypes.LoadBalancerSchemeEnum(g.settings.Scheme)
	}

	return g.Call(ctx, loadBalancerResource, name, func(ctx context.Context) error {
		_, err := g.client.CreateLoadBalancer(ctx, input)
		return err
	})
}

// splitArg parses a comma separated argument, falling back to defaults when
// it is empty.
func splitArg(raw string, defaults []string) []string {
	if strings.TrimSpace(raw) == "" {
		return defaults
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
