package app

import (
	"context"
	"fmt"
	"sync"

	cwnotify "github.com/olusolaa/cloud-reconciler/internal/adapters/notify/cloudwatch"
	"github.com/olusolaa/cloud-reconciler/internal/adapters/notify/sns"
	"github.com/olusolaa/cloud-reconciler/internal/adapters/plan/hclplan"
	"github.com/olusolaa/cloud-reconciler/internal/adapters/plan/tfstate"
	"github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws"
	"github.com/olusolaa/cloud-reconciler/internal/config"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
	"github.com/olusolaa/cloud-reconciler/internal/core/service"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
)

// Application holds the wired components behind every CLI command.
type Application struct {
	Config     *config.Config
	Logger     ports.Logger
	Provider   *aws.Provider
	Controller *service.Controller
	Dispatcher *service.NotificationDispatcher
	Reporter   ports.Reporter
	Alarms     *cwnotify.CPUAlarmManager

	services *Services

	topicMu sync.Mutex
	topic   *sns.Topic
}

// Topic returns the notification topic, creating it on first use.
func (a *Application) Topic(ctx context.Context) (*sns.Topic, error) {
	a.topicMu.Lock()
	defer a.topicMu.Unlock()
	if a.topic != nil {
		return a.topic, nil
	}
	topic, err := sns.EnsureTopic(ctx, a.services.SNS, a.Config.Notifications.Topic, a.Logger)
	if err != nil {
		return nil, err
	}
	a.topic = topic
	return topic, nil
}

// NewRequest builds a request for verb on key using the configured timing.
// Observe requests need an explicit desired state.
func (a *Application) NewRequest(key domain.ResourceKey, verb domain.Verb, desired domain.ResourceState, args map[string]string) (domain.ReconciliationRequest, error) {
	if verb != domain.VerbObserve {
		d, ok := domain.DesiredStateFor(verb)
		if !ok {
			return domain.ReconciliationRequest{}, errors.NewUserFacing(errors.CodeInvalidRequest,
				fmt.Sprintf("unknown action %q", verb), "")
		}
		desired = d
	}
	req, err := domain.NewRequest(key, desired, domain.Action{Verb: verb, Args: args},
		a.Config.Reconcile.Timeout, a.Config.Reconcile.PollInterval)
	if err != nil {
		return domain.ReconciliationRequest{}, errors.WrapUserFacing(err, errors.CodeInvalidRequest, err.Error(),
			"Desired state must be Active or TerminalSuccess.")
	}
	return req, nil
}

// LoadPlan reads reconciliation requests from an HCL or JSON plan file.
func (a *Application) LoadPlan(ctx context.Context, path string, vars map[string]string) ([]domain.ReconciliationRequest, error) {
	return hclplan.ParseFile(ctx, path, vars, hclplan.Defaults{
		Timeout:      a.Config.Reconcile.Timeout,
		PollInterval: a.Config.Reconcile.PollInterval,
	}, a.Logger)
}

// LoadTerraformState derives start and attach requests from the output of
// `terraform show -json`.
func (a *Application) LoadTerraformState(ctx context.Context, path string) ([]domain.ReconciliationRequest, error) {
	return tfstate.ReadFile(ctx, path, tfstate.Defaults{
		Timeout:      a.Config.Reconcile.Timeout,
		PollInterval: a.Config.Reconcile.PollInterval,
	}, a.Logger)
}

// Run applies reqs, reports every outcome and returns an error when any of
// them did not reach its desired state.
func (a *Application) Run(ctx context.Context, reqs []domain.ReconciliationRequest) ([]domain.Outcome, error) {
	a.Logger.Infof(ctx, "Starting reconciliation of %d requests...", len(reqs))

	outcomes := a.Controller.Apply(ctx, reqs)

	if err := a.Reporter.Report(ctx, outcomes); err != nil {
		a.Logger.Errorf(ctx, err, "Report generation failed")
		return outcomes, errors.Wrap(err, errors.CodeInternal, "failed to write report")
	}

	failed := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			failed++
		}
	}
	if failed > 0 {
		return outcomes, errors.NewUserFacing(errors.CodeReconcileIncomplete,
			fmt.Sprintf("%d of %d requests did not reach their desired state", failed, len(outcomes)),
			"See the report above for the state each resource settled in.")
	}
	a.Logger.Infof(ctx, "Reconciliation completed successfully")
	return outcomes, nil
}

// Close drains pending notifications.
func (a *Application) Close() {
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
}
