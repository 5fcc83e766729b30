package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/olusolaa/cloud-reconciler/internal/adapters/plan/hclplan"
	"github.com/olusolaa/cloud-reconciler/internal/app"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
)

func newApplyCmd() *cobra.Command {
	var (
		planFile  string
		stateFile string
		vars      []string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Reconcile every request in a plan file or derived from Terraform state",
		Long: `Reconcile many resources at once. Requests come either from an HCL (or JSON)
plan file of request blocks, or from the output of "terraform show -json", in
which case every instance is started, every volume attachment attached and
every instance in a target group attachment registered.
Requests for the same resource observe the first one instead of acting twice.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (planFile == "") == (stateFile == "") {
				return apperrors.NewUserFacing(apperrors.CodeInvalidRequest,
					"exactly one of --file or --from-tfstate is required", "")
			}
			parsedVars, err := hclplan.ParseVars(vars)
			if err != nil {
				return err
			}
			return reconcile(cmd, func(ctx context.Context, a *app.Application) ([]domain.ReconciliationRequest, error) {
				if stateFile != "" {
					return a.LoadTerraformState(ctx, stateFile)
				}
				return a.LoadPlan(ctx, planFile, parsedVars)
			})
		},
	}
	cmd.Flags().StringVarP(&planFile, "file", "f", "", "Plan file (.hcl or .json)")
	cmd.Flags().StringVar(&stateFile, "from-tfstate", "", "Output of terraform show -json")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "Plan variable as name=value (repeatable)")
	return cmd
}
