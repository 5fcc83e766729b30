// Package tfstate derives reconciliation requests from the JSON form of a
// Terraform state (`terraform show -json`): every managed aws_instance is
// ensured running, and every aws_volume_attachment and instance
// aws_lb_target_group_attachment is ensured attached.
package tfstate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tfjson "github.com/hashicorp/terraform-json"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
)

const (
	tfTypeInstance         = "aws_instance"
	tfTypeVolumeAttachment = "aws_volume_attachment"
	tfTypeTargetAttachment = "aws_lb_target_group_attachment"
)

type Defaults struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

func ReadFile(ctx context.Context, path string, defaults Defaults, logger ports.Logger) ([]domain.ReconciliationRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapUserFacing(err, errors.CodeStateReadError,
			fmt.Sprintf("failed to read state file %s", path), "Check the path passed to --from-tfstate.")
	}
	return Read(ctx, raw, defaults, logger.WithFields(map[string]any{"state_file": path}))
}

// Read returns one request per supported resource, in module order.
func Read(ctx context.Context, raw []byte, defaults Defaults, logger ports.Logger) ([]domain.ReconciliationRequest, error) {
	if len(raw) == 0 {
		return nil, errors.NewUserFacing(errors.CodeStateReadError, "state file is empty", "")
	}
	var state tfjson.State
	if err := state.UnmarshalJSON(raw); err != nil {
		return nil, errors.WrapUserFacing(err, errors.CodeStateReadError, "invalid Terraform state JSON",
			"Produce the file with 'terraform show -json'.")
	}
	if state.Values == nil || state.Values.RootModule == nil {
		logger.Warnf(ctx, "State has no resources")
		return nil, nil
	}

	var (
		reqs    []domain.ReconciliationRequest
		skipped int
	)
	err := walk(state.Values.RootModule, func(r *tfjson.StateResource) error {
		if r.Mode != tfjson.ManagedResourceMode {
			return nil
		}
		req, ok, err := toRequest(r, defaults)
		if err != nil {
			return err
		}
		if !ok {
			skipped++
			return nil
		}
		reqs = append(reqs, req)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof(ctx, "Derived %d requests from state (%d resources of other types skipped)", len(reqs), skipped)
	return reqs, nil
}

func walk(m *tfjson.StateModule, fn func(*tfjson.StateResource) error) error {
	for _, r := range m.Resources {
		if err := fn(r); err != nil {
			return err
		}
	}
	for _, child := range m.ChildModules {
		if err := walk(child, fn); err != nil {
			return err
		}
	}
	return nil
}

func toRequest(r *tfjson.StateResource, defaults Defaults) (domain.ReconciliationRequest, bool, error) {
	var (
		key    domain.ResourceKey
		action domain.Action
	)
	switch r.Type {
	case tfTypeInstance:
		id, err := stringAttr(r, "id")
		if err != nil {
			return domain.ReconciliationRequest{}, false, err
		}
		key = domain.NewResourceKey(domain.ProviderAWS, domain.TypeInstance, id)
		action = domain.Action{Verb: domain.VerbStart}

	case tfTypeVolumeAttachment:
		volumeID, err := stringAttr(r, "volume_id")
		if err != nil {
			return domain.ReconciliationRequest{}, false, err
		}
		instanceID, err := stringAttr(r, "instance_id")
		if err != nil {
			return domain.ReconciliationRequest{}, false, err
		}
		args := map[string]string{domain.ArgInstanceID: instanceID}
		if device, _ := r.AttributeValues["device_name"].(string); device != "" {
			args[domain.ArgDevice] = device
		}
		key = domain.NewResourceKey(domain.ProviderAWS, domain.TypeVolumeAttachment, volumeID)
		action = domain.Action{Verb: domain.VerbAttach, Args: args}

	case tfTypeTargetAttachment:
		groupARN, err := stringAttr(r, "target_group_arn")
		if err != nil {
			return domain.ReconciliationRequest{}, false, err
		}
		targetID, err := stringAttr(r, "target_id")
		if err != nil {
			return domain.ReconciliationRequest{}, false, err
		}
		// IP and Lambda targets are not instances.
		if !strings.HasPrefix(targetID, "i-") {
			return domain.ReconciliationRequest{}, false, nil
		}
		key = domain.TargetKey(targetID, groupARN)
		action = domain.Action{Verb: domain.VerbAttach}

	default:
		return domain.ReconciliationRequest{}, false, nil
	}

	req, err := domain.NewRequest(key, domain.StateActive, action, defaults.Timeout, defaults.PollInterval)
	if err != nil {
		return domain.ReconciliationRequest{}, false, errors.Wrap(err, errors.CodeInvalidRequest,
			fmt.Sprintf("cannot build request for %s", r.Address))
	}
	return req, true, nil
}

func stringAttr(r *tfjson.StateResource, name string) (string, error) {
	v, _ := r.AttributeValues[name].(string)
	if v == "" {
		return "", errors.NewUserFacing(errors.CodeStateReadError,
			fmt.Sprintf("resource %s has no '%s' attribute", r.Address, name),
			"Refresh the state so computed attributes are recorded.")
	}
	return v, nil
}
