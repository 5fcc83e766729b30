package app

import (
	"context"
	"fmt"
	"io"

	"code.cloudfoundry.org/clock"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awslogs "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/spf13/viper"

	"github.com/olusolaa/cloud-reconciler/internal/adapters/journal/cloudwatchlogs"
	cwnotify "github.com/olusolaa/cloud-reconciler/internal/adapters/notify/cloudwatch"
	"github.com/olusolaa/cloud-reconciler/internal/adapters/notify/sns"
	"github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws"
	"github.com/olusolaa/cloud-reconciler/internal/config"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
	"github.com/olusolaa/cloud-reconciler/internal/core/service"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
	"github.com/olusolaa/cloud-reconciler/internal/log"
	"github.com/olusolaa/cloud-reconciler/internal/reporting/json"
	"github.com/olusolaa/cloud-reconciler/internal/reporting/text"
)

// Services are the AWS clients used outside the resource gateways.
type Services struct {
	CloudWatch     cwnotify.CloudWatchClientInterface
	SNS            sns.SNSClientInterface
	CloudWatchLogs cloudwatchlogs.CloudWatchLogsClientInterface
}

type options struct {
	logger   ports.Logger
	provider *aws.Provider
	services *Services
	clock    clock.Clock
	output   io.Writer
}

type Option func(*options)

// WithLogger skips building a logger from the settings section.
func WithLogger(logger ports.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProvider skips loading the AWS SDK configuration.
func WithProvider(p *aws.Provider) Option {
	return func(o *options) { o.provider = p }
}

func WithServices(s *Services) Option {
	return func(o *options) { o.services = s }
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithOutput sends the report to w instead of stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// Bootstrap builds the application from v: config, logger, AWS provider,
// gateway registry, notification dispatcher, journal, loop, controller and
// reporter, in that order.
func Bootstrap(ctx context.Context, v *viper.Viper, opts ...Option) (*Application, error) {
	o := &options{clock: clock.NewClock()}
	for _, opt := range opts {
		opt(o)
	}

	cfg, err := config.Load(ctx, v)
	if err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger, err = log.NewLogger(log.Config{Level: cfg.Settings.LogLevel, Format: cfg.Settings.LogFormat})
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "logger initialization failed")
		}
	}
	logger.Debugf(ctx, "Logger initialized (Level: %s, Format: %s)", cfg.Settings.LogLevel, cfg.Settings.LogFormat)
	if v.ConfigFileUsed() != "" {
		logger.Debugf(ctx, "Using configuration file: %s", v.ConfigFileUsed())
	} else {
		logger.Debugf(ctx, "No configuration file found, using defaults/env/flags.")
	}

	provider := o.provider
	if provider == nil {
		provider, err = aws.NewProvider(ctx, cfg.Platform.AWS, logger)
		if err != nil {
			return nil, err
		}
	}
	services := o.services
	if services == nil {
		awsCfg := provider.Config()
		services = &Services{
			CloudWatch:     cloudwatch.NewFromConfig(awsCfg),
			SNS:            awssns.NewFromConfig(awsCfg),
			CloudWatchLogs: awslogs.NewFromConfig(awsCfg),
		}
	}

	registry := service.NewGatewayRegistry()
	for _, gw := range provider.Gateways() {
		if err := registry.Register(gw); err != nil {
			return nil, err
		}
	}
	logger.Debugf(ctx, "Registered gateways: %v", registry.Registered())

	a := &Application{
		Config:   cfg,
		Logger:   logger,
		Provider: provider,
		services: services,
	}

	delivery := cfg.Notifications.Delivery
	a.Dispatcher = service.NewNotificationDispatcher(logger.WithFields(map[string]any{"component": "dispatcher"}),
		service.WithWorkers(delivery.Workers),
		service.WithQueueSize(delivery.QueueSize),
		service.WithDeliveryTimeout(delivery.Timeout),
	)
	if err := a.wireNotifications(ctx); err != nil {
		a.Dispatcher.Close()
		return nil, err
	}

	listeners := []ports.TransitionListener{a.Dispatcher}
	if jc := cfg.Journal.CloudWatchLogs; jc != nil {
		journal, err := cloudwatchlogs.Open(ctx, services.CloudWatchLogs, jc.Group, jc.Stream, logger)
		if err != nil {
			a.Dispatcher.Close()
			return nil, err
		}
		logger.Infof(ctx, "Journaling transitions to %s/%s", jc.Group, journal.Stream())
		listeners = append(listeners, journal)
	}

	multiplier, ceiling := cfg.Backoff()
	loop, err := service.NewReconciliationLoop(registry, logger.WithFields(map[string]any{"component": "loop"}),
		service.WithClock(o.clock),
		service.WithBackoff(service.Backoff{Multiplier: multiplier, Max: ceiling}),
		service.WithCallTimeout(cfg.Reconcile.CallTimeout),
		service.WithListeners(listeners...),
	)
	if err != nil {
		a.Dispatcher.Close()
		return nil, err
	}

	a.Controller, err = service.NewController(registry, service.NewInFlightRegistry(), loop,
		logger.WithFields(map[string]any{"component": "controller"}), cfg.Settings.Concurrency)
	if err != nil {
		a.Dispatcher.Close()
		return nil, err
	}
	// A requested transition starts a new lifecycle that may notify again.
	a.Controller.OnTransitionRequested(a.Dispatcher.Forget)

	a.Reporter, err = newReporter(ctx, cfg, logger, o.output)
	if err != nil {
		a.Dispatcher.Close()
		return nil, err
	}

	logger.Debugf(ctx, "Application bootstrap complete")
	return a, nil
}

// wireNotifications creates the SNS topic and CPU alarm manager and
// subscribes them to the dispatcher when notifications are enabled. The
// alarm manager exists either way so alarms can be managed directly.
func (a *Application) wireNotifications(ctx context.Context) error {
	nc := a.Config.Notifications
	alarmSettings := cwnotify.Settings{
		Threshold:         nc.CPUAlarm.Threshold,
		PeriodSeconds:     nc.CPUAlarm.PeriodSeconds,
		EvaluationPeriods: nc.CPUAlarm.EvaluationPeriods,
	}

	if !nc.Enabled {
		a.Alarms = cwnotify.NewCPUAlarmManager(a.services.CloudWatch, alarmSettings, "", a.Logger)
		a.Logger.Debugf(ctx, "Notifications disabled")
		return nil
	}

	topic, err := a.Topic(ctx)
	if err != nil {
		return err
	}
	if _, err := topic.EnsureDefaultSubscriber(ctx, nc.DefaultEmail); err != nil {
		return err
	}
	a.Dispatcher.Subscribe(domain.EventFilter{States: nc.States}, topic)

	a.Alarms = cwnotify.NewCPUAlarmManager(a.services.CloudWatch, alarmSettings, topic.ARN(), a.Logger)
	if nc.CPUAlarm.Enabled {
		a.Dispatcher.Subscribe(a.Alarms.Filter(), a.Alarms)
	}
	a.Logger.Infof(ctx, "Notifications enabled on topic %s", topic.ARN())
	return nil
}

func newReporter(ctx context.Context, cfg *config.Config, logger ports.Logger, w io.Writer) (ports.Reporter, error) {
	reportLog := logger.WithFields(map[string]any{"component": "reporter", "type": cfg.Settings.ReporterType})
	switch cfg.Settings.ReporterType {
	case text.ReporterTypeText:
		if cfg.Settings.Reporter.Text == nil {
			cfg.Settings.Reporter.Text = config.DefaultConfig().Settings.Reporter.Text
		}
		if w != nil {
			return text.NewReporterTo(*cfg.Settings.Reporter.Text, reportLog, w), nil
		}
		r, err := text.NewReporter(*cfg.Settings.Reporter.Text, reportLog)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to initialize Text reporter")
		}
		reportLog.Debugf(ctx, "Using Text reporter (Color: %t)", !cfg.Settings.Reporter.Text.NoColor)
		return r, nil
	case json.ReporterTypeJSON:
		if cfg.Settings.Reporter.JSON == nil {
			cfg.Settings.Reporter.JSON = config.DefaultConfig().Settings.Reporter.JSON
		}
		if w != nil {
			return json.NewReporterTo(*cfg.Settings.Reporter.JSON, reportLog, w), nil
		}
		r, err := json.NewReporter(*cfg.Settings.Reporter.JSON, reportLog)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to initialize JSON reporter")
		}
		return r, nil
	default:
		return nil, errors.NewUserFacing(errors.CodeConfigValidation,
			fmt.Sprintf("unsupported reporter type: %s", cfg.Settings.ReporterType), "Supported: text, json")
	}
}
