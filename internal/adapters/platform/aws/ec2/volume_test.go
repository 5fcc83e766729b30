package ec2

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
	"github.com/olusolaa/cloud-reconciler/mocks"
)

func volumeKey(id string) domain.ResourceKey {
	return domain.NewResourceKey(domain.ProviderAWS, domain.TypeVolumeAttachment, id)
}

func TestVolumeAttachmentGateway_GetStatus(t *testing.T) {
	tests := []struct {
		name   string
		volume ec2types.Volume
		want   string
		state  domain.ResourceState
	}{
		{
			name:   "attached",
			volume: ec2types.Volume{Attachments: []ec2types.VolumeAttachment{{State: ec2types.VolumeAttachmentStateAttached}}},
			want:   "attached",
			state:  domain.StateActive,
		},
		{
			name:   "attaching",
			volume: ec2types.Volume{Attachments: []ec2types.VolumeAttachment{{State: ec2types.VolumeAttachmentStateAttaching}}},
			want:   "attaching",
			state:  domain.StatePending,
		},
		{name: "no attachment", volume: ec2types.Volume{}, want: "detached", state: domain.StateTerminalSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(mocks.MockEC2Client)
			gw := NewVolumeAttachmentGateway(client, testBase(), "")
			client.On("DescribeVolumes", mock.Anything, &ec2.DescribeVolumesInput{VolumeIds: []string{"vol-1"}}).
				Return(&ec2.DescribeVolumesOutput{Volumes: []ec2types.Volume{tt.volume}}, nil)

			status, err := gw.GetStatus(context.Background(), volumeKey("vol-1"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, status)
			assert.Equal(t, tt.state, domain.Classify(domain.TypeVolumeAttachment, status))
		})
	}
}

func TestVolumeAttachmentGateway_GetStatus_EmptyIsNotFound(t *testing.T) {
	client := new(mocks.MockEC2Client)
	gw := NewVolumeAttachmentGateway(client, testBase(), "")
	client.On("DescribeVolumes", mock.Anything, mock.Anything).Return(&ec2.DescribeVolumesOutput{}, nil)

	_, err := gw.GetStatus(context.Background(), volumeKey("vol-404"))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestVolumeAttachmentGateway_Attach(t *testing.T) {
	t.Run("default device", func(t *testing.T) {
		client := new(mocks.MockEC2Client)
		gw := NewVolumeAttachmentGateway(client, testBase(), "")
		client.On("AttachVolume", mock.Anything, &ec2.AttachVolumeInput{
			VolumeId:   aws.String("vol-1"),
			InstanceId: aws.String("i-1"),
			Device:     aws.String(DefaultDevice),
		}).Return(&ec2.AttachVolumeOutput{}, nil).Once()

		err := gw.RequestTransition(context.Background(), volumeKey("vol-1"), domain.Action{
			Verb: domain.VerbAttach,
			Args: map[string]string{domain.ArgInstanceID: "i-1"},
		})
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("explicit device", func(t *testing.T) {
		client := new(mocks.MockEC2Client)
		gw := NewVolumeAttachmentGateway(client, testBase(), "/dev/sdf")
		client.On("AttachVolume", mock.Anything, &ec2.AttachVolumeInput{
			VolumeId:   aws.String("vol-1"),
			InstanceId: aws.String("i-1"),
			Device:     aws.String("/dev/sdh"),
		}).Return(&ec2.AttachVolumeOutput{}, nil).Once()

		err := gw.RequestTransition(context.Background(), volumeKey("vol-1"), domain.Action{
			Verb: domain.VerbAttach,
			Args: map[string]string{domain.ArgInstanceID: "i-1", domain.ArgDevice: "/dev/sdh"},
		})
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("missing instance", func(t *testing.T) {
		client := new(mocks.MockEC2Client)
		gw := NewVolumeAttachmentGateway(client, testBase(), "")

		err := gw.RequestTransition(context.Background(), volumeKey("vol-1"), domain.Action{Verb: domain.VerbAttach})
		assert.True(t, apperrors.IsRejected(err))
		client.AssertNotCalled(t, "AttachVolume", mock.Anything, mock.Anything)
	})
}

func TestVolumeAttachmentGateway_Detach(t *testing.T) {
	client := new(mocks.MockEC2Client)
	gw := NewVolumeAttachmentGateway(client, testBase(), "")
	client.On("DetachVolume", mock.Anything, &ec2.DetachVolumeInput{VolumeId: aws.String("vol-1")}).
		Return(&ec2.DetachVolumeOutput{}, nil).Once()

	require.NoError(t, gw.RequestTransition(context.Background(), volumeKey("vol-1"), domain.Action{Verb: domain.VerbDetach}))
	client.AssertExpectations(t)

	err := gw.RequestTransition(context.Background(), volumeKey("vol-1"), domain.Action{Verb: domain.VerbStart})
	assert.True(t, apperrors.IsRejected(err))
}
