package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/olusolaa/cloud-reconciler/internal/app"
	"github.com/olusolaa/cloud-reconciler/internal/config"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
)

var (
	cfgFile      string
	logLevel     string
	logFormat    string
	region       string
	profile      string
	output       string
	timeout      time.Duration
	pollInterval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "cloud-reconciler",
	Short: "Drives cloud resources to a desired lifecycle state and waits until they get there.",
	Long: `Cloud Reconciler requests lifecycle transitions (start, stop, create, delete,
attach, detach) on AWS resources and polls each one until it reaches the desired
state, fails, or runs out of time. Concurrent requests for the same resource are
coalesced, and state changes can be published to SNS, CloudWatch alarms and
CloudWatch Logs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initializeConfig(cmd)
	},
}

func Execute(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Unchanged flags still reach viper as defaults, so they start from the
	// built-in configuration.
	defaults := config.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Configuration file path (default is .cloud-reconciler.yaml in . or $HOME)")
	flags.StringVar(&logLevel, "log-level", string(defaults.Settings.LogLevel), "Override log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", string(defaults.Settings.LogFormat), "Override log format (text, json)")
	flags.StringVar(&region, "region", "", "AWS region")
	flags.StringVar(&profile, "profile", "", "AWS shared config profile")
	flags.StringVarP(&output, "output", "o", defaults.Settings.ReporterType, "Report format (text, json)")
	flags.DurationVar(&timeout, "timeout", defaults.Reconcile.Timeout, "Time allowed for each resource to settle")
	flags.DurationVar(&pollInterval, "poll-interval", defaults.Reconcile.PollInterval, "Initial time between status polls")

	viper.BindPFlag("settings.log_level", flags.Lookup("log-level"))
	viper.BindPFlag("settings.log_format", flags.Lookup("log-format"))
	viper.BindPFlag("settings.reporter", flags.Lookup("output"))
	viper.BindPFlag("platform.aws.region", flags.Lookup("region"))
	viper.BindPFlag("platform.aws.profile", flags.Lookup("profile"))
	viper.BindPFlag("reconcile.timeout", flags.Lookup("timeout"))
	viper.BindPFlag("reconcile.poll_interval", flags.Lookup("poll-interval"))

	viper.SetEnvPrefix("RECONCILER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(
		newInstanceCmd(),
		newVolumeCmd(),
		newStackCmd(),
		newLoadBalancerCmd(),
		newBucketCmd(),
		newObserveCmd(),
		newApplyCmd(),
		newAlarmCmd(),
		newWhoAmICmd(),
	)
}

func initializeConfig(cmd *cobra.Command) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.SetConfigName(".cloud-reconciler")
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return apperrors.Wrap(err, apperrors.CodeConfigReadError, "failed to read config file")
		}
	}
	return nil
}

// withApp bootstraps the application for one command and closes it after
// fn returns, so queued notifications are delivered before exit.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) error {
	ctx := cmd.Context()
	a, err := app.Bootstrap(ctx, viper.GetViper())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// reconcile runs the requests built by build and reports their outcomes.
func reconcile(cmd *cobra.Command, build func(ctx context.Context, a *app.Application) ([]domain.ReconciliationRequest, error)) error {
	return withApp(cmd, func(ctx context.Context, a *app.Application) error {
		reqs, err := build(ctx, a)
		if err != nil {
			return err
		}
		_, err = a.Run(ctx, reqs)
		return err
	})
}

func printError(w io.Writer, err error) {
	userMsg, suggestion, ok := apperrors.GetUserFacingMessage(err)
	if !ok {
		fmt.Fprintf(w, "ERROR: %v\n", err)
		return
	}
	fmt.Fprintf(w, "ERROR: %s\n", userMsg)
	if suggestion != "" {
		fmt.Fprintf(w, "Suggestion: %s\n", suggestion)
	}
}
