package cloudwatch

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	awserrors "github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/errors"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
)

const (
	cpuMetric       = "CPUUtilization"
	ec2Namespace    = "AWS/EC2"
	instanceDimName = "InstanceId"
	alarmPrefix     = "CPUAlarm "

	// DeleteAlarms accepts at most this many names per call.
	deleteBatchSize = 100
)

type CloudWatchClientInterface interface {
	DescribeAlarms(ctx context.Context, params *cloudwatch.DescribeAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error)
	DeleteAlarms(ctx context.Context, params *cloudwatch.DeleteAlarmsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.DeleteAlarmsOutput, error)
	PutMetricAlarm(ctx context.Context, params *cloudwatch.PutMetricAlarmInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error)
}

type Settings struct {
	Threshold         float64
	PeriodSeconds     int32
	EvaluationPeriods int32
}

func DefaultSettings() Settings {
	return Settings{Threshold: 40, PeriodSeconds: 60, EvaluationPeriods: 2}
}

// Alarm is one CPU utilization alarm on an EC2 instance.
type Alarm struct {
	Name       string
	InstanceID string
	State      string
	Threshold  float64
}

// CPUAlarmManager keeps at most one low-CPU alarm per instance. As a
// notifier it enables the alarm when an instance becomes active.
type CPUAlarmManager struct {
	client   CloudWatchClientInterface
	settings Settings
	topicARN string
	logger   ports.Logger
}

// NewCPUAlarmManager builds a manager whose alarms notify topicARN. An empty
// ARN creates alarms without actions.
func NewCPUAlarmManager(client CloudWatchClientInterface, settings Settings, topicARN string, logger ports.Logger) *CPUAlarmManager {
	return &CPUAlarmManager{
		client:   client,
		settings: settings,
		topicARN: topicARN,
		logger:   logger.WithFields(map[string]any{"component": "cpu-alarm"}),
	}
}

func AlarmName(instanceID string) string {
	return alarmPrefix + instanceID
}

// List returns every alarm on the EC2 CPUUtilization metric.
func (m *CPUAlarmManager) List(ctx context.Context) ([]Alarm, error) {
	var alarms []Alarm
	var next *string
	for {
		output, err := m.client.DescribeAlarms(ctx, &cloudwatch.DescribeAlarmsInput{NextToken: next})
		if err != nil {
			return nil, awserrors.HandleAWSError(ctx, "CloudWatch alarms", "describe", err)
		}
		for _, a := range output.MetricAlarms {
			if aws.ToString(a.MetricName) != cpuMetric {
				continue
			}
			alarm := Alarm{
				Name:      aws.ToString(a.AlarmName),
				State:     string(a.StateValue),
				Threshold: aws.ToFloat64(a.Threshold),
			}
			for _, d := range a.Dimensions {
				if aws.ToString(d.Name) == instanceDimName {
					alarm.InstanceID = aws.ToString(d.Value)
				}
			}
			alarms = append(alarms, alarm)
		}
		if output.NextToken == nil || aws.ToString(output.NextToken) == "" {
			return alarms, nil
		}
		next = output.NextToken
	}
}

func (m *CPUAlarmManager) find(ctx context.Context, instanceID string) ([]string, error) {
	alarms, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, a := range alarms {
		if a.InstanceID == instanceID {
			names = append(names, a.Name)
		}
	}
	return names, nil
}

// Delete removes the CPU alarms of instanceID and reports whether any
// existed.
func (m *CPUAlarmManager) Delete(ctx context.Context, instanceID string) (bool, error) {
	names, err := m.find(ctx, instanceID)
	if err != nil {
		return false, err
	}
	if len(names) == 0 {
		return false, nil
	}
	if err := m.deleteNames(ctx, names); err != nil {
		return false, err
	}
	m.logger.Infof(ctx, "Deleted CPU alarm for %s", instanceID)
	return true, nil
}

// DeleteAll removes every CPU alarm and returns how many were deleted.
func (m *CPUAlarmManager) DeleteAll(ctx context.Context) (int, error) {
	alarms, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(alarms))
	for _, a := range alarms {
		names = append(names, a.Name)
	}
	if err := m.deleteNames(ctx, names); err != nil {
		return 0, err
	}
	return len(names), nil
}

func (m *CPUAlarmManager) deleteNames(ctx context.Context, names []string) error {
	for batch := range slices.Chunk(names, deleteBatchSize) {
		if _, err := m.client.DeleteAlarms(ctx, &cloudwatch.DeleteAlarmsInput{AlarmNames: batch}); err != nil {
			return awserrors.HandleAWSError(ctx, "CloudWatch alarm", fmt.Sprint(batch), err)
		}
	}
	return nil
}

// Enable replaces any CPU alarm of instanceID with a fresh one. A failed
// delete aborts the creation.
func (m *CPUAlarmManager) Enable(ctx context.Context, instanceID string) error {
	if _, err := m.Delete(ctx, instanceID); err != nil {
		return errors.Wrap(err, errors.CodeNotificationError,
			fmt.Sprintf("could not remove existing CPU alarm for %s", instanceID))
	}

	input := &cloudwatch.PutMetricAlarmInput{
		AlarmName:          aws.String(AlarmName(instanceID)),
		ComparisonOperator: cwtypes.ComparisonOperatorLessThanThreshold,
		EvaluationPeriods:  aws.Int32(m.settings.EvaluationPeriods),
		MetricName:         aws.String(cpuMetric),
		Namespace:          aws.String(ec2Namespace),
		Period:             aws.Int32(m.settings.PeriodSeconds),
		Statistic:          cwtypes.StatisticAverage,
		Threshold:          aws.Float64(m.settings.Threshold),
		Dimensions:         []cwtypes.Dimension{{Name: aws.String(instanceDimName), Value: aws.String(instanceID)}},
	}
	if m.topicARN != "" {
		input.AlarmActions = []string{m.topicARN}
	}

	if _, err := m.client.PutMetricAlarm(ctx, input); err != nil {
		return awserrors.HandleAWSError(ctx, "CloudWatch alarm", AlarmName(instanceID), err)
	}
	m.logger.Infof(ctx, "Enabled CPU alarm for %s (threshold %.0f%%)", instanceID, m.settings.Threshold)
	return nil
}

func (m *CPUAlarmManager) Name() string {
	return "cloudwatch-cpu-alarm"
}

// Notify enables the CPU alarm of an instance that became active. Other
// events are ignored.
func (m *CPUAlarmManager) Notify(ctx context.Context, event domain.TransitionEvent) error {
	if event.Key.Type != domain.TypeInstance || event.To != domain.StateActive {
		return nil
	}
	return m.Enable(ctx, event.Key.ID)
}

// Filter selects the events Notify acts on.
func (m *CPUAlarmManager) Filter() domain.EventFilter {
	return domain.EventFilter{
		Types:  []domain.ResourceType{domain.TypeInstance},
		States: []domain.ResourceState{domain.StateActive},
	}
}
