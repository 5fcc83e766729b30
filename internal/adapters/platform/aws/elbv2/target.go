package elbv2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/shared"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
)

const (
	targetResource = "load balancer target"

	// statusUnregistered is reported for a target the group does not know.
	statusUnregistered = "unregistered"

	targetHint = "Targets look like i-0123456789abcdef0@<target-group-arn>."
)

// TargetGateway registers instances with target groups. Attach registers and
// waits for the target to turn healthy; detach deregisters and waits until
// the group no longer knows it.
type TargetGateway struct {
	shared.Base
	client ELBv2ClientInterface
}

func NewTargetGateway(client ELBv2ClientInterface, base shared.Base) *TargetGateway {
	return &TargetGateway{Base: base, client: client}
}

func (g *TargetGateway) ResourceType() domain.ResourceType {
	return domain.TypeTarget
}

// GetStatus returns the target health state, e.g. "initial" or "healthy", or
// "unregistered" once the group reports the target as not registered.
func (g *TargetGateway) GetStatus(ctx context.Context, key domain.ResourceKey) (string, error) {
	instanceID, groupARN, err := domain.ParseTargetID(key.ID)
	if err != nil {
		return "", apperrors.WrapUserFacing(err, apperrors.CodeInvalidRequest, err.Error(), targetHint)
	}

	var output *elb.DescribeTargetHealthOutput
	err = g.Call(ctx, targetResource, key.ID, func(ctx context.Context) error {
		var err error
		output, err = g.client.DescribeTargetHealth(ctx, &elb.DescribeTargetHealthInput{
			TargetGroupArn: aws.String(groupARN),
			Targets:        []elbtypes.TargetDescription{{Id: aws.String(instanceID)}},
		})
		return err
	})
	if err != nil {
		return "", err
	}

	for _, d := range output.TargetHealthDescriptions {
		if d.Target == nil || aws.ToString(d.Target.Id) != instanceID || d.TargetHealth == nil {
			continue
		}
		if d.TargetHealth.Reason == elbtypes.TargetHealthReasonEnumNotRegistered {
			return statusUnregistered, nil
		}
		return string(d.TargetHealth.State), nil
	}
	return statusUnregistered, nil
}

func (g *TargetGateway) RequestTransition(ctx context.Context, key domain.ResourceKey, action domain.Action) error {
	instanceID, groupARN, err := domain.ParseTargetID(key.ID)
	if err != nil {
		return apperrors.WrapUserFacing(err, apperrors.CodeInvalidRequest, err.Error(), targetHint)
	}
	targets := []elbtypes.TargetDescription{{Id: aws.String(instanceID)}}

	return g.Call(ctx, targetResource, key.ID, func(ctx context.Context) error {
		var err error
		switch action.Verb {
		case domain.VerbAttach:
			_, err = g.client.RegisterTargets(ctx, &elb.RegisterTargetsInput{TargetGroupArn: aws.String(groupARN), Targets: targets})
		case domain.VerbDetach:
			_, err = g.client.DeregisterTargets(ctx, &elb.DeregisterTargetsInput{TargetGroupArn: aws.String(groupARN), Targets: targets})
		default:
			return apperrors.NewUserFacing(apperrors.CodeRequestRejected,
				fmt.Sprintf("%s does not support '%s'", targetResource, action.Verb),
				"Targets can be registered or deregistered.")
		}
		return err
	})
}
