package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	cfgw "github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/cloudformation"
	"github.com/olusolaa/cloud-reconciler/internal/app"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
)

// verbCmd reconciles one resource of type rt per positional argument.
func verbCmd(rt domain.ResourceType, verb domain.Verb, short string, args func() map[string]string) *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("%s <id>...", verb),
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, ids []string) error {
			return reconcile(cmd, func(ctx context.Context, a *app.Application) ([]domain.ReconciliationRequest, error) {
				var extra map[string]string
				if args != nil {
					extra = args()
				}
				return requestsFor(a, rt, verb, ids, extra)
			})
		},
	}
}

func requestsFor(a *app.Application, rt domain.ResourceType, verb domain.Verb, ids []string, args map[string]string) ([]domain.ReconciliationRequest, error) {
	reqs := make([]domain.ReconciliationRequest, 0, len(ids))
	for _, id := range ids {
		req, err := a.NewRequest(domain.NewResourceKey(domain.ProviderAWS, rt, id), verb, domain.StateUnknown, args)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func newInstanceCmd() *cobra.Command {
	var imageID, osName, instanceType string

	create := verbCmd(domain.TypeInstance, domain.VerbCreate, "Launch instances and wait until they are running",
		func() map[string]string {
			args := map[string]string{}
			if imageID != "" {
				args[domain.ArgImageID] = imageID
			}
			if osName != "" {
				args[domain.ArgOS] = osName
			}
			if instanceType != "" {
				args[domain.ArgInstanceType] = instanceType
			}
			return args
		})
	create.Use = "create <name>..."
	create.Long = `Launch one instance per name and wait until it is running. The name is the
launch's client token and Name tag, so creating the same name again finds the
existing instance instead of launching another. Later commands accept the
name wherever they accept an instance ID.`
	create.Flags().StringVar(&imageID, "image", "", "AMI to launch")
	create.Flags().StringVar(&osName, "os", "", "Launch the newest Amazon image for linux or windows")
	create.Flags().StringVar(&instanceType, "type", "", "Instance type (default from platform.aws.instance.type)")
	create.MarkFlagsMutuallyExclusive("image", "os")
	create.MarkFlagsOneRequired("image", "os")

	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Create, start, stop, terminate or monitor EC2 instances",
	}
	cmd.AddCommand(
		create,
		verbCmd(domain.TypeInstance, domain.VerbStart, "Start instances and wait until they are running", nil),
		newInstanceStopCmd(),
		verbCmd(domain.TypeInstance, domain.VerbTerminate, "Terminate instances and wait until they are gone", nil),
		&cobra.Command{
			Use:   "monitor <id>...",
			Short: "Enable detailed CloudWatch monitoring on instances",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, ids []string) error {
				return withApp(cmd, func(ctx context.Context, a *app.Application) error {
					states, err := a.Provider.Instances().Monitor(ctx, ids)
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
					defer tw.Flush()
					fmt.Fprintln(tw, "Instance\tMonitoring")
					for _, s := range states {
						fmt.Fprintf(tw, "%s\t%s\n", s.InstanceID, s.State)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func newInstanceStopCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "stop <id>... | --all",
		Short: "Stop instances and wait until they are stopped",
		Args: func(cmd *cobra.Command, ids []string) error {
			if all == (len(ids) > 0) {
				return apperrors.NewUserFacing(apperrors.CodeInvalidRequest,
					"pass either instance IDs or --all", "")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, ids []string) error {
			return reconcile(cmd, func(ctx context.Context, a *app.Application) ([]domain.ReconciliationRequest, error) {
				if all {
					running, err := a.Provider.Instances().ListRunning(ctx)
					if err != nil {
						return nil, err
					}
					a.Logger.Infof(ctx, "Stopping %d running instances", len(running))
					ids = running
				}
				return requestsFor(a, domain.TypeInstance, domain.VerbStop, ids, nil)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Stop every running instance in the region")
	return cmd
}

func newVolumeCmd() *cobra.Command {
	var instanceID, device string

	attach := verbCmd(domain.TypeVolumeAttachment, domain.VerbAttach, "Attach volumes to an instance and wait until attached",
		func() map[string]string {
			args := map[string]string{domain.ArgInstanceID: instanceID}
			if device != "" {
				args[domain.ArgDevice] = device
			}
			return args
		})
	attach.Flags().StringVar(&instanceID, "instance", "", "Instance to attach to")
	attach.Flags().StringVar(&device, "device", "", "Device name (default from platform.aws.volume.device)")
	_ = attach.MarkFlagRequired("instance")

	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Attach or detach EBS volumes",
	}
	cmd.AddCommand(
		attach,
		verbCmd(domain.TypeVolumeAttachment, domain.VerbDetach, "Detach volumes and wait until detached", nil),
	)
	return cmd
}

func newStackCmd() *cobra.Command {
	var templateFile, templateURL string
	var ephemeral bool

	create := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a CloudFormation stack and wait for it to complete",
		Long: `Create a CloudFormation stack and wait for it to complete. Without a template
the stack holds a website-enabled S3 bucket. Without a name one is generated.
With --ephemeral the stack is deleted again once it has been created.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, names []string) error {
			name := cfgw.GenerateStackName(time.Now())
			if len(names) == 1 {
				name = names[0]
			}
			args := map[string]string{}
			if templateFile != "" {
				body, err := os.ReadFile(templateFile)
				if err != nil {
					return apperrors.WrapUserFacing(err, apperrors.CodeInvalidRequest,
						fmt.Sprintf("could not read template %s", templateFile), "Check the --template-file path.")
				}
				args[domain.ArgTemplateBody] = string(body)
			}
			if templateURL != "" {
				args[domain.ArgTemplateURL] = templateURL
			}

			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				key := domain.NewResourceKey(domain.ProviderAWS, domain.TypeStack, name)
				req, err := a.NewRequest(key, domain.VerbCreate, domain.StateUnknown, args)
				if err != nil {
					return err
				}
				if _, err := a.Run(ctx, []domain.ReconciliationRequest{req}); err != nil {
					return err
				}
				if !ephemeral {
					return nil
				}
				a.Logger.Infof(ctx, "Stack %s is ephemeral, deleting it", name)
				del, err := a.NewRequest(key, domain.VerbDelete, domain.StateUnknown, nil)
				if err != nil {
					return err
				}
				_, err = a.Run(ctx, []domain.ReconciliationRequest{del})
				return err
			})
		},
	}
	create.Flags().StringVar(&templateFile, "template-file", "", "Local CloudFormation template")
	create.Flags().StringVar(&templateURL, "template-url", "", "S3 URL of a CloudFormation template")
	create.Flags().BoolVar(&ephemeral, "ephemeral", false, "Delete the stack after it has been created")
	create.MarkFlagsMutuallyExclusive("template-file", "template-url")

	cmd := &cobra.Command{
		Use:   "stack",
		Short: "Create or delete CloudFormation stacks",
	}
	cmd.AddCommand(
		create,
		verbCmd(domain.TypeStack, domain.VerbDelete, "Delete stacks and wait until they are gone", nil),
	)
	return cmd
}

func newLoadBalancerCmd() *cobra.Command {
	var subnets, securityGroups string

	create := verbCmd(domain.TypeLoadBalancer, domain.VerbCreate, "Create load balancers and wait until they are active",
		func() map[string]string {
			args := map[string]string{}
			if subnets != "" {
				args[domain.ArgSubnets] = subnets
			}
			if securityGroups != "" {
				args[domain.ArgSecurityGroups] = securityGroups
			}
			return args
		})
	create.Flags().StringVar(&subnets, "subnets", "", "Comma-separated subnet IDs (default from platform.aws.load_balancer)")
	create.Flags().StringVar(&securityGroups, "security-groups", "", "Comma-separated security group IDs")

	cmd := &cobra.Command{
		Use:     "lb",
		Aliases: []string{"load-balancer"},
		Short:   "Manage application load balancers and their registered instances",
	}
	cmd.AddCommand(
		create,
		verbCmd(domain.TypeLoadBalancer, domain.VerbDelete, "Delete load balancers and wait until they are gone", nil),
		targetCmd(domain.VerbAttach, "register", "Register instances with a target group and wait until they are healthy"),
		targetCmd(domain.VerbDetach, "deregister", "Deregister instances from a target group and wait until they are gone"),
	)
	return cmd
}

// targetCmd reconciles the registration of each instance argument in one
// target group.
func targetCmd(verb domain.Verb, use, short string) *cobra.Command {
	var targetGroup string

	cmd := &cobra.Command{
		Use:   use + " <instance-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, ids []string) error {
			return reconcile(cmd, func(ctx context.Context, a *app.Application) ([]domain.ReconciliationRequest, error) {
				reqs := make([]domain.ReconciliationRequest, 0, len(ids))
				for _, id := range ids {
					req, err := a.NewRequest(domain.TargetKey(id, targetGroup), verb, domain.StateUnknown, nil)
					if err != nil {
						return nil, err
					}
					reqs = append(reqs, req)
				}
				return reqs, nil
			})
		},
	}
	cmd.Flags().StringVar(&targetGroup, "target-group", "", "Target group ARN")
	_ = cmd.MarkFlagRequired("target-group")
	return cmd
}

func newBucketCmd() *cobra.Command {
	var bucketRegion string

	create := verbCmd(domain.TypeBucket, domain.VerbCreate, "Create S3 buckets and wait until they exist",
		func() map[string]string {
			if bucketRegion == "" {
				return nil
			}
			return map[string]string{domain.ArgRegion: bucketRegion}
		})
	create.Flags().StringVar(&bucketRegion, "bucket-region", "", "Bucket location (default is the provider region)")

	cmd := &cobra.Command{
		Use:   "bucket",
		Short: "Create or delete S3 buckets",
	}
	cmd.AddCommand(
		create,
		verbCmd(domain.TypeBucket, domain.VerbDelete, "Delete S3 buckets and wait until they are gone", nil),
	)
	return cmd
}

func newObserveCmd() *cobra.Command {
	var desired string

	cmd := &cobra.Command{
		Use:   "observe <provider/type/id>",
		Short: "Wait for a resource to reach a state without requesting any change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, state, err := parseObserveTarget(args[0], desired)
			if err != nil {
				return err
			}
			return reconcile(cmd, func(ctx context.Context, a *app.Application) ([]domain.ReconciliationRequest, error) {
				req, err := a.NewRequest(key, domain.VerbObserve, state, nil)
				if err != nil {
					return nil, err
				}
				return []domain.ReconciliationRequest{req}, nil
			})
		},
	}
	cmd.Flags().StringVar(&desired, "desired", domain.StateActive.String(), "State to wait for (Active or TerminalSuccess)")
	return cmd
}

func parseObserveTarget(rawKey, rawState string) (domain.ResourceKey, domain.ResourceState, error) {
	key, err := domain.ParseResourceKey(rawKey)
	if err != nil {
		return domain.ResourceKey{}, domain.StateUnknown, apperrors.WrapUserFacing(err, apperrors.CodeInvalidRequest,
			err.Error(), "Resource keys look like aws/instance/i-0123456789abcdef0.")
	}
	state, err := domain.ParseResourceState(rawState)
	if err != nil || (state != domain.StateActive && state != domain.StateTerminalSuccess) {
		return domain.ResourceKey{}, domain.StateUnknown, apperrors.NewUserFacing(apperrors.CodeInvalidRequest,
			fmt.Sprintf("cannot wait for state %q", rawState), "Use --desired Active or --desired TerminalSuccess.")
	}
	return key, state, nil
}
