package ec2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/shared"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
)

const (
	volumeResource = "EBS volume"

	DefaultDevice = "/dev/sdx"

	// statusDetached is reported for a volume with no attachment at all.
	statusDetached = "detached"
)

// VolumeAttachmentGateway tracks the attachment of one EBS volume. The key ID
// is the volume ID.
type VolumeAttachmentGateway struct {
	shared.Base
	client        EC2ClientInterface
	defaultDevice string
}

func NewVolumeAttachmentGateway(client EC2ClientInterface, base shared.Base, defaultDevice string) *VolumeAttachmentGateway {
	if defaultDevice == "" {
		defaultDevice = DefaultDevice
	}
	return &VolumeAttachmentGateway{Base: base, client: client, defaultDevice: defaultDevice}
}

func (g *VolumeAttachmentGateway) ResourceType() domain.ResourceType {
	return domain.TypeVolumeAttachment
}

func (g *VolumeAttachmentGateway) GetStatus(ctx context.Context, key domain.ResourceKey) (string, error) {
	var output *ec2.DescribeVolumesOutput
	err := g.Call(ctx, volumeResource, key.ID, func(ctx context.Context) error {
		var err error
		output, err = g.client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{VolumeIds: []string{key.ID}})
		return err
	})
	if err != nil {
		return "", err
	}

	if len(output.Volumes) == 0 {
		return "", apperrors.New(apperrors.CodeResourceNotFound, fmt.Sprintf("EBS volume '%s' not found (empty response)", key.ID))
	}
	volume := output.Volumes[0]
	if len(volume.Attachments) == 0 {
		return statusDetached, nil
	}
	return string(volume.Attachments[0].State), nil
}

func (g *VolumeAttachmentGateway) RequestTransition(ctx context.Context, key domain.ResourceKey, action domain.Action) error {
	switch action.Verb {
	case domain.VerbAttach:
		instanceID := action.Arg(domain.ArgInstanceID)
		if instanceID == "" {
			return apperrors.NewUserFacing(apperrors.CodeRequestRejected,
				fmt.Sprintf("attaching volume '%s' requires an instance id", key.ID),
				"Pass --instance with the target instance ID.")
		}
		device := action.Arg(domain.ArgDevice)
		if device == "" {
			device = g.defaultDevice
		}
		return g.Call(ctx, volumeResource, key.ID, func(ctx context.Context) error {
			_, err := g.client.AttachVolume(ctx, &ec2.AttachVolumeInput{
				VolumeId:   aws.String(key.ID),
				InstanceId: aws.String(instanceID),
				Device:     aws.String(device),
			})
			return err
		})
	case domain.VerbDetach:
		return g.Call(ctx, volumeResource, key.ID, func(ctx context.Context) error {
			_, err := g.client.DetachVolume(ctx, &ec2.DetachVolumeInput{VolumeId: aws.String(key.ID)})
			return err
		})
	}
	return unsupportedVerb(volumeResource, action.Verb)
}
