package ec2

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/shared"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
)

const (
	instanceResource = "EC2 instance"

	DefaultInstanceType = "t2.micro"

	// maxClientToken is the EC2 limit on idempotency tokens.
	maxClientToken = 64
)

// osImages are the Amazon-owned image name patterns launched for --os.
var osImages = map[string]string{
	"linux":   "al2023-ami-2023.*-x86_64",
	"windows": "Windows_Server-2022-English-Full-Base-*",
}

// InstanceGateway drives EC2 instances. A key ID starting with "i-" is an
// instance ID. Any other ID is the client token of an instance launched by
// create, which keeps a repeated create from launching a second instance.
type InstanceGateway struct {
	shared.Base
	client      EC2ClientInterface
	defaultType string
}

func NewInstanceGateway(client EC2ClientInterface, base shared.Base, defaultType string) *InstanceGateway {
	if defaultType == "" {
		defaultType = DefaultInstanceType
	}
	return &InstanceGateway{Base: base, client: client, defaultType: defaultType}
}

func (g *InstanceGateway) ResourceType() domain.ResourceType {
	return domain.TypeInstance
}

func isInstanceID(id string) bool {
	return strings.HasPrefix(id, "i-")
}

// GetStatus returns the instance state name, e.g. "pending" or "running".
func (g *InstanceGateway) GetStatus(ctx context.Context, key domain.ResourceKey) (string, error) {
	instance, err := g.describe(ctx, key.ID)
	if err != nil {
		return "", err
	}
	if instance.State == nil {
		return "", nil
	}
	return string(instance.State.Name), nil
}

func (g *InstanceGateway) describe(ctx context.Context, id string) (ec2types.Instance, error) {
	input := &ec2.DescribeInstancesInput{InstanceIds: []string{id}}
	if !isInstanceID(id) {
		input = &ec2.DescribeInstancesInput{Filters: []ec2types.Filter{{Name: aws.String("client-token"), Values: []string{id}}}}
	}

	var output *ec2.DescribeInstancesOutput
	err := g.Call(ctx, instanceResource, id, func(ctx context.Context) error {
		var err error
		output, err = g.client.DescribeInstances(ctx, input)
		return err
	})
	if err != nil {
		return ec2types.Instance{}, err
	}

	if len(output.Reservations) == 0 || len(output.Reservations[0].Instances) == 0 {
		return ec2types.Instance{}, apperrors.New(apperrors.CodeResourceNotFound, fmt.Sprintf("EC2 instance with ID '%s' not found (empty response)", id))
	}
	return output.Reservations[0].Instances[0], nil
}

func (g *InstanceGateway) RequestTransition(ctx context.Context, key domain.ResourceKey, action domain.Action) error {
	if action.Verb == domain.VerbCreate {
		return g.launch(ctx, key.ID, action)
	}

	id := key.ID
	if !isInstanceID(id) {
		instance, err := g.describe(ctx, id)
		if err != nil {
			return err
		}
		id = aws.ToString(instance.InstanceId)
	}
	ids := []string{id}
	return g.Call(ctx, instanceResource, id, func(ctx context.Context) error {
		var err error
		switch action.Verb {
		case domain.VerbStart:
			_, err = g.client.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: ids})
		case domain.VerbStop:
			_, err = g.client.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: ids})
		case domain.VerbTerminate:
			_, err = g.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids})
		default:
			return unsupportedVerb(instanceResource, action.Verb)
		}
		return err
	})
}

// launch runs one instance under the client token. The image is either the
// image_id argument or the newest Amazon image for the os argument.
func (g *InstanceGateway) launch(ctx context.Context, token string, action domain.Action) error {
	if isInstanceID(token) || len(token) > maxClientToken {
		return apperrors.NewUserFacing(apperrors.CodeRequestRejected,
			fmt.Sprintf("'%s' cannot name a new instance", token),
			fmt.Sprintf("Use a name of at most %d characters that does not start with i-.", maxClientToken))
	}

	imageID := action.Arg(domain.ArgImageID)
	if imageID == "" {
		var err error
		if imageID, err = g.latestImage(ctx, action.Arg(domain.ArgOS)); err != nil {
			return err
		}
	}
	instanceType := action.Arg(domain.ArgInstanceType)
	if instanceType == "" {
		instanceType = g.defaultType
	}

	var output *ec2.RunInstancesOutput
	err := g.Call(ctx, instanceResource, token, func(ctx context.Context) error {
		var err error
		output, err = g.client.RunInstances(ctx, &ec2.RunInstancesInput{
			ImageId:      aws.String(imageID),
			InstanceType: ec2types.InstanceType(instanceType),
			MinCount:     aws.Int32(1),
			MaxCount:     aws.Int32(1),
			ClientToken:  aws.String(token),
			TagSpecifications: []ec2types.TagSpecification{{
				ResourceType: ec2types.ResourceTypeInstance,
				Tags:         []ec2types.Tag{{Key: aws.String("Name"), Value: aws.String(token)}},
			}},
		})
		return err
	})
	if err != nil {
		return err
	}
	for _, instance := range output.Instances {
		g.Logger.Infof(ctx, "Launched %s as %s from %s", token, aws.ToString(instance.InstanceId), imageID)
	}
	return nil
}

func (g *InstanceGateway) latestImage(ctx context.Context, osName string) (string, error) {
	pattern, ok := osImages[strings.ToLower(osName)]
	if !ok {
		return "", apperrors.NewUserFacing(apperrors.CodeRequestRejected,
			fmt.Sprintf("no image for operating system %q", osName),
			"Pass --image with an AMI ID, or --os linux or --os windows.")
	}

	var output *ec2.DescribeImagesOutput
	err := g.Call(ctx, instanceResource, "image "+osName, func(ctx context.Context) error {
		var err error
		output, err = g.client.DescribeImages(ctx, &ec2.DescribeImagesInput{
			Owners: []string{"amazon"},
			Filters: []ec2types.Filter{
				{Name: aws.String("name"), Values: []string{pattern}},
				{Name: aws.String("state"), Values: []string{"available"}},
			},
		})
		return err
	})
	if err != nil {
		return "", err
	}
	if len(output.Images) == 0 {
		return "", apperrors.New(apperrors.CodeResourceNotFound, fmt.Sprintf("no available image matches %s", pattern))
	}
	newest := slices.MaxFunc(output.Images, func(a, b ec2types.Image) int {
		return strings.Compare(aws.ToString(a.CreationDate), aws.ToString(b.CreationDate))
	})
	return aws.ToString(newest.ImageId), nil
}

// ListRunning returns the IDs of every running instance in the region.
func (g *InstanceGateway) ListRunning(ctx context.Context) ([]string, error) {
	paginator := ec2.NewDescribeInstancesPaginator(g.client, &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{{Name: aws.String("instance-state-name"), Values: []string{string(ec2types.InstanceStateNameRunning)}}},
	})

	var ids []string
	for paginator.HasMorePages() {
		var page *ec2.DescribeInstancesOutput
		err := g.Call(ctx, instanceResource, "running", func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, r := range page.Reservations {
			for _, instance := range r.Instances {
				ids = append(ids, aws.ToString(instance.InstanceId))
			}
		}
	}
	g.Logger.Debugf(ctx, "Found %d running instances", len(ids))
	return ids, nil
}

// MonitoringState is the detailed-monitoring status of one instance.
type MonitoringState struct {
	InstanceID string
	State      string
}

// Monitor enables detailed monitoring on every instance in ids.
func (g *InstanceGateway) Monitor(ctx context.Context, ids []string) ([]MonitoringState, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var output *ec2.MonitorInstancesOutput
	err := g.Call(ctx, instanceResource, fmt.Sprint(ids), func(ctx context.Context) error {
		var err error
		output, err = g.client.MonitorInstances(ctx, &ec2.MonitorInstancesInput{InstanceIds: ids})
		return err
	})
	if err != nil {
		return nil, err
	}

	states := make([]MonitoringState, 0, len(output.InstanceMonitorings))
	for _, m := range output.InstanceMonitorings {
		st := MonitoringState{InstanceID: aws.ToString(m.InstanceId)}
		if m.Monitoring != nil {
			st.State = string(m.Monitoring.State)
		}
		g.Logger.Debugf(ctx, "Monitoring for %s is %s", st.InstanceID, st.State)
		states = append(states, st)
	}
	return states, nil
}

func unsupportedVerb(resource string, verb domain.Verb) error {
	return apperrors.NewUserFacing(apperrors.CodeRequestRejected,
		fmt.Sprintf("%s does not support '%s'", resource, verb),
		"Use one of the verbs listed in the command help.")
}
