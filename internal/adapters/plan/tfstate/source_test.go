package tfstate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
	"github.com/olusolaa/cloud-reconciler/mocks"
)

var testDefaults = Defaults{Timeout: 10 * time.Minute, PollInterval: 5 * time.Second}

const stateJSON = `{
  "format_version": "1.0",
  "terraform_version": "1.8.0",
  "values": {
    "root_module": {
      "resources": [
        {
          "address": "aws_instance.web",
          "mode": "managed",
          "type": "aws_instance",
          "name": "web",
          "provider_name": "registry.terraform.io/hashicorp/aws",
          "schema_version": 1,
          "values": {"id": "i-123", "instance_type": "t3.micro"}
        },
        {
          "address": "data.aws_ami.ubuntu",
          "mode": "data",
          "type": "aws_ami",
          "name": "ubuntu",
          "provider_name": "registry.terraform.io/hashicorp/aws",
          "schema_version": 0,
          "values": {"id": "ami-1"}
        },
        {
          "address": "aws_s3_bucket.logs",
          "mode": "managed",
          "type": "aws_s3_bucket",
          "name": "logs",
          "provider_name": "registry.terraform.io/hashicorp/aws",
          "schema_version": 0,
          "values": {"id": "logs"}
        }
      ],
      "child_modules": [
        {
          "address": "module.storage",
          "resources": [
            {
              "address": "module.storage.aws_volume_attachment.data",
              "mode": "managed",
              "type": "aws_volume_attachment",
              "name": "data",
              "provider_name": "registry.terraform.io/hashicorp/aws",
              "schema_version": 0,
              "values": {"volume_id": "vol-1", "instance_id": "i-123", "device_name": "/dev/sdh"}
            },
            {
              "address": "module.storage.aws_lb_target_group_attachment.web",
              "mode": "managed",
              "type": "aws_lb_target_group_attachment",
              "name": "web",
              "provider_name": "registry.terraform.io/hashicorp/aws",
              "schema_version": 0,
              "values": {"target_group_arn": "arn:aws:elasticloadbalancing:eu-west-1:1:targetgroup/web/1", "target_id": "i-123"}
            },
            {
              "address": "module.storage.aws_lb_target_group_attachment.ip",
              "mode": "managed",
              "type": "aws_lb_target_group_attachment",
              "name": "ip",
              "provider_name": "registry.terraform.io/hashicorp/aws",
              "schema_version": 0,
              "values": {"target_group_arn": "arn:aws:elasticloadbalancing:eu-west-1:1:targetgroup/web/1", "target_id": "10.0.0.5"}
            }
          ]
        }
      ]
    }
  }
}`

func TestRead(t *testing.T) {
	reqs, err := Read(context.Background(), []byte(stateJSON), testDefaults, mocks.NewPermissiveLogger())
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	assert.Equal(t, domain.NewResourceKey("aws", domain.TypeInstance, "i-123"), reqs[0].Key)
	assert.Equal(t, domain.VerbStart, reqs[0].Action.Verb)
	assert.Equal(t, domain.StateActive, reqs[0].Desired)
	assert.Equal(t, testDefaults.Timeout, reqs[0].Timeout)

	assert.Equal(t, domain.NewResourceKey("aws", domain.TypeVolumeAttachment, "vol-1"), reqs[1].Key)
	assert.Equal(t, domain.VerbAttach, reqs[1].Action.Verb)
	assert.Equal(t, map[string]string{domain.ArgInstanceID: "i-123", domain.ArgDevice: "/dev/sdh"}, reqs[1].Action.Args)

	assert.Equal(t, domain.TargetKey("i-123", "arn:aws:elasticloadbalancing:eu-west-1:1:targetgroup/web/1"), reqs[2].Key)
	assert.Equal(t, domain.VerbAttach, reqs[2].Action.Verb)
	assert.Equal(t, domain.StateActive, reqs[2].Desired)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "not json", raw: "{"},
		{name: "missing format version", raw: `{"values": {}}`},
		{name: "instance without id", raw: `{"format_version": "1.0", "values": {"root_module": {"resources": [
			{"address": "aws_instance.web", "mode": "managed", "type": "aws_instance", "name": "web", "values": {}}]}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs, err := Read(context.Background(), []byte(tt.raw), testDefaults, mocks.NewPermissiveLogger())
			require.Error(t, err)
			assert.Nil(t, reqs)
			assert.Equal(t, apperrors.CodeStateReadError, apperrors.GetCode(err))
		})
	}
}

func TestRead_NoValues(t *testing.T) {
	reqs, err := Read(context.Background(), []byte(`{"format_version": "1.0"}`), testDefaults, mocks.NewPermissiveLogger())
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(stateJSON), 0o600))

	reqs, err := ReadFile(context.Background(), path, testDefaults, mocks.NewPermissiveLogger())
	require.NoError(t, err)
	assert.Len(t, reqs, 3)

	_, err = ReadFile(context.Background(), filepath.Join(t.TempDir(), "nope.json"), testDefaults, mocks.NewPermissiveLogger())
	assert.Equal(t, apperrors.CodeStateReadError, apperrors.GetCode(err))
}
