package config

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
	"github.com/olusolaa/cloud-reconciler/internal/log"
	"github.com/olusolaa/cloud-reconciler/internal/reporting/json"
	"github.com/olusolaa/cloud-reconciler/internal/reporting/text"
)

type Config struct {
	Settings      SettingsConfig      `mapstructure:"settings" yaml:"settings"`
	Reconcile     ReconcileConfig     `mapstructure:"reconcile" yaml:"reconcile"`
	Platform      PlatformConfig      `mapstructure:"platform" yaml:"platform"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Journal       JournalConfig       `mapstructure:"journal" yaml:"journal"`
}

type SettingsConfig struct {
	LogLevel     log.Level       `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat    log.Format      `mapstructure:"log_format" yaml:"log_format" validate:"oneof=text json"`
	Concurrency  int             `mapstructure:"concurrency" yaml:"concurrency" validate:"gte=1,lte=64"`
	ReporterType string          `mapstructure:"reporter" yaml:"reporter" validate:"oneof=text json"`
	Reporter     ReporterConfigs `mapstructure:"reporter_config" yaml:"reporter_config"`
}

type ReporterConfigs struct {
	Text *text.Config `mapstructure:"text" yaml:"text,omitempty"`
	JSON *json.Config `mapstructure:"json" yaml:"json,omitempty"`
}

// ReconcileConfig holds the defaults applied to requests that do not set
// their own timing.
type ReconcileConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"gt=0,ltefield=Timeout"`
	MaxPollInterval   time.Duration `mapstructure:"max_poll_interval" yaml:"max_poll_interval" validate:"gte=0"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier" validate:"gte=1,lte=10"`
	CallTimeout       time.Duration `mapstructure:"call_timeout" yaml:"call_timeout" validate:"gt=0"`
}

type PlatformConfig struct {
	AWS *AWSPlatformConfig `mapstructure:"aws" yaml:"aws,omitempty" validate:"required"`
}

type AWSPlatformConfig struct {
	// Region and Profile override the SDK's default credential chain lookup.
	Region       string             `mapstructure:"region" yaml:"region"`
	Profile      string             `mapstructure:"profile" yaml:"profile"`
	RateLimitRPS int                `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps" validate:"gte=0,lte=100"`
	LoadBalancer LoadBalancerConfig `mapstructure:"load_balancer" yaml:"load_balancer"`
	Stack        StackConfig        `mapstructure:"stack" yaml:"stack"`
	Volume       VolumeConfig       `mapstructure:"volume" yaml:"volume"`
	Instance     InstanceConfig     `mapstructure:"instance" yaml:"instance"`
}

type LoadBalancerConfig struct {
	Subnets        []string `mapstructure:"subnets" yaml:"subnets"`
	SecurityGroups []string `mapstructure:"security_groups" yaml:"security_groups"`
	Scheme         string   `mapstructure:"scheme" yaml:"scheme" validate:"omitempty,oneof=internet-facing internal"`
}

type StackConfig struct {
	TemplateBody string `mapstructure:"template_body" yaml:"template_body"`
	TemplateURL  string `mapstructure:"template_url" yaml:"template_url" validate:"omitempty,url"`
}

// InstanceConfig holds launch defaults for instance create.
type InstanceConfig struct {
	Type string `mapstructure:"type" yaml:"type" validate:"required"`
}

type VolumeConfig struct {
	Device string `mapstructure:"device" yaml:"device" validate:"required,startswith=/dev/"`
}

type NotificationsConfig struct {
	Enabled      bool                   `mapstructure:"enabled" yaml:"enabled"`
	Topic        string                 `mapstructure:"topic" yaml:"topic" validate:"required_if=Enabled true"`
	DefaultEmail string                 `mapstructure:"default_email" yaml:"default_email" validate:"omitempty,email"`
	States       []domain.ResourceState `mapstructure:"states" yaml:"states"`
	CPUAlarm     CPUAlarmConfig         `mapstructure:"cpu_alarm" yaml:"cpu_alarm"`
	Delivery     DeliveryConfig         `mapstructure:"delivery" yaml:"delivery"`
}

// DeliveryConfig sizes the dispatcher. One worker keeps notifications in the
// order they were accepted.
type DeliveryConfig struct {
	Workers   int           `mapstructure:"workers" yaml:"workers" validate:"gte=1,lte=32"`
	QueueSize int           `mapstructure:"queue_size" yaml:"queue_size" validate:"gte=1"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

type CPUAlarmConfig struct {
	Enabled           bool    `mapstructure:"enabled" yaml:"enabled"`
	Threshold         float64 `mapstructure:"threshold" yaml:"threshold" validate:"gt=0,lte=100"`
	PeriodSeconds     int32   `mapstructure:"period_seconds" yaml:"period_seconds" validate:"gte=10"`
	EvaluationPeriods int32   `mapstructure:"evaluation_periods" yaml:"evaluation_periods" validate:"gte=1"`
}

type JournalConfig struct {
	CloudWatchLogs *CloudWatchLogsConfig `mapstructure:"cloudwatch_logs" yaml:"cloudwatch_logs,omitempty"`
}

type CloudWatchLogsConfig struct {
	Group  string `mapstructure:"group" yaml:"group" validate:"required"`
	Stream string `mapstructure:"stream" yaml:"stream"`
}

func DefaultConfig() *Config {
	return &Config{
		Settings: SettingsConfig{
			LogLevel:     log.LevelInfo,
			LogFormat:    log.FormatText,
			Concurrency:  4,
			ReporterType: text.ReporterTypeText,
			Reporter: ReporterConfigs{
				Text: &text.Config{NoColor: false},
				JSON: &json.Config{Pretty: true},
			},
		},
		Reconcile: ReconcileConfig{
			Timeout:           10 * time.Minute,
			PollInterval:      5 * time.Second,
			MaxPollInterval:   30 * time.Second,
			BackoffMultiplier: 2,
			CallTimeout:       30 * time.Second,
		},
		Platform: PlatformConfig{
			AWS: &AWSPlatformConfig{
				RateLimitRPS: 20,
				Volume:       VolumeConfig{Device: "/dev/sdx"},
				Instance:     InstanceConfig{Type: "t2.micro"},
			},
		},
		Notifications: NotificationsConfig{
			Enabled: false,
			Topic:   "cloudwatch_alert",
			States:  []domain.ResourceState{domain.StateActive, domain.StateTerminalFailure},
			CPUAlarm: CPUAlarmConfig{
				Enabled:           true,
				Threshold:         40,
				PeriodSeconds:     60,
				EvaluationPeriods: 2,
			},
			Delivery: DeliveryConfig{
				Workers:   1,
				QueueSize: 64,
				Timeout:   30 * time.Second,
			},
		},
	}
}

// Load decodes v over the defaults and validates the result.
func Load(ctx context.Context, v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, errors.WrapUserFacing(err, errors.CodeConfigParseError,
			"failed to decode configuration", "Check value types in the configuration file.")
	}
	if err := cfg.Validate(ctx); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and returns one user-facing error listing every
// failed field.
func (c *Config) Validate(ctx context.Context) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	err := validate.StructCtx(ctx, c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return errors.Wrap(err, errors.CodeConfigValidation, "configuration validation could not run")
	}

	var details strings.Builder
	details.WriteString("Configuration validation failed:")
	for _, fe := range validationErrors {
		details.WriteString(fmt.Sprintf("\n - Field '%s': Failed on '%s' validation (value: '%v')", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return errors.NewUserFacing(errors.CodeConfigValidation, details.String(), "Please check your configuration file or flags.")
}

func (c *Config) Backoff() (multiplier float64, ceiling time.Duration) {
	return c.Reconcile.BackoffMultiplier, c.Reconcile.MaxPollInterval
}
