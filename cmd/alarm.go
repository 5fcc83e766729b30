package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/olusolaa/cloud-reconciler/internal/app"
)

func newAlarmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alarm",
		Short: "Manage low-CPU CloudWatch alarms and their email subscriber",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List CPU utilization alarms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				alarms, err := a.Alarms.List(ctx)
				if err != nil {
					return err
				}
				if len(alarms) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No CPU alarms found.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
				defer tw.Flush()
				fmt.Fprintln(tw, "Alarm\tInstance\tState\tThreshold")
				for _, al := range alarms {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\n", al.Name, al.InstanceID, al.State, al.Threshold)
				}
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "delete <instance-id>",
		Short: "Delete the CPU alarm of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				deleted, err := a.Alarms.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				if !deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "No CPU alarm for %s.\n", args[0])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted CPU alarm for %s.\n", args[0])
				return nil
			})
		},
	}

	removeAll := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every CPU utilization alarm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				n, err := a.Alarms.DeleteAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d CPU alarms.\n", n)
				return nil
			})
		},
	}

	email := &cobra.Command{
		Use:   "email <address>",
		Short: "Make address the only confirmed subscriber of the alert topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				topic, err := a.Topic(ctx)
				if err != nil {
					return err
				}
				if err := topic.SetOnlySubscriber(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subscribed %s to %s. Confirm the subscription from the email AWS sends.\n",
					args[0], topic.ARN())
				return nil
			})
		},
	}

	cmd.AddCommand(list, remove, removeAll, email)
	return cmd
}

func newWhoAmICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the AWS identity the reconciler runs as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.Application) error {
				id, err := a.Provider.WhoAmI(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
				defer tw.Flush()
				fmt.Fprintf(tw, "Account:\t%s\n", id.Account)
				fmt.Fprintf(tw, "ARN:\t%s\n", id.ARN)
				fmt.Fprintf(tw, "User ID:\t%s\n", id.UserID)
				fmt.Fprintf(tw, "Region:\t%s\n", a.Provider.Region())
				return nil
			})
		},
	}
}
