package cloudwatch

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/mocks"
)

func metricAlarm(name, metric, instanceID string) cwtypes.MetricAlarm {
	return cwtypes.MetricAlarm{
		AlarmName:  aws.String(name),
		MetricName: aws.String(metric),
		StateValue: cwtypes.StateValueOk,
		Threshold:  aws.Float64(40),
		Dimensions: []cwtypes.Dimension{{Name: aws.String("InstanceId"), Value: aws.String(instanceID)}},
	}
}

type CPUAlarmSuite struct {
	suite.Suite
	client  *mocks.MockCloudWatchClient
	manager *CPUAlarmManager
	ctx     context.Context
}

func (s *CPUAlarmSuite) SetupTest() {
	s.client = new(mocks.MockCloudWatchClient)
	s.manager = NewCPUAlarmManager(s.client, DefaultSettings(), "arn:aws:sns:eu-west-1:1:cloudwatch_alert", mocks.NewPermissiveLogger())
	s.ctx = context.Background()
}

func (s *CPUAlarmSuite) TearDownTest() {
	s.client.AssertExpectations(s.T())
}

func (s *CPUAlarmSuite) TestList_FiltersCPUAlarmsAcrossPages() {
	s.client.On("DescribeAlarms", mock.Anything, &cloudwatch.DescribeAlarmsInput{}).Return(&cloudwatch.DescribeAlarmsOutput{
		MetricAlarms: []cwtypes.MetricAlarm{
			metricAlarm("CPUAlarm i-1", "CPUUtilization", "i-1"),
			metricAlarm("disk", "DiskReadOps", "i-1"),
		},
		NextToken: aws.String("page-2"),
	}, nil).Once()
	s.client.On("DescribeAlarms", mock.Anything, &cloudwatch.DescribeAlarmsInput{NextToken: aws.String("page-2")}).Return(&cloudwatch.DescribeAlarmsOutput{
		MetricAlarms: []cwtypes.MetricAlarm{metricAlarm("CPUAlarm i-2", "CPUUtilization", "i-2")},
	}, nil).Once()

	alarms, err := s.manager.List(s.ctx)
	s.Require().NoError(err)
	s.Equal([]Alarm{
		{Name: "CPUAlarm i-1", InstanceID: "i-1", State: "OK", Threshold: 40},
		{Name: "CPUAlarm i-2", InstanceID: "i-2", State: "OK", Threshold: 40},
	}, alarms)
}

func (s *CPUAlarmSuite) TestDelete() {
	s.client.On("DescribeAlarms", mock.Anything, mock.Anything).Return(&cloudwatch.DescribeAlarmsOutput{
		MetricAlarms: []cwtypes.MetricAlarm{metricAlarm("CPUAlarm i-1", "CPUUtilization", "i-1")},
	}, nil)
	s.client.On("DeleteAlarms", mock.Anything, &cloudwatch.DeleteAlarmsInput{AlarmNames: []string{"CPUAlarm i-1"}}).
		Return(&cloudwatch.DeleteAlarmsOutput{}, nil).Once()

	deleted, err := s.manager.Delete(s.ctx, "i-1")
	s.Require().NoError(err)
	s.True(deleted)

	deleted, err = s.manager.Delete(s.ctx, "i-9")
	s.Require().NoError(err)
	s.False(deleted)
}

func (s *CPUAlarmSuite) TestDeleteAll() {
	s.client.On("DescribeAlarms", mock.Anything, mock.Anything).Return(&cloudwatch.DescribeAlarmsOutput{
		MetricAlarms: []cwtypes.MetricAlarm{
			metricAlarm("CPUAlarm i-1", "CPUUtilization", "i-1"),
			metricAlarm("CPUAlarm i-2", "CPUUtilization", "i-2"),
		},
	}, nil)
	s.client.On("DeleteAlarms", mock.Anything, &cloudwatch.DeleteAlarmsInput{AlarmNames: []string{"CPUAlarm i-1", "CPUAlarm i-2"}}).
		Return(&cloudwatch.DeleteAlarmsOutput{}, nil).Once()

	n, err := s.manager.DeleteAll(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *CPUAlarmSuite) TestEnable_ReplacesExistingAlarm() {
	s.client.On("DescribeAlarms", mock.Anything, mock.Anything).Return(&cloudwatch.DescribeAlarmsOutput{
		MetricAlarms: []cwtypes.MetricAlarm{metricAlarm("CPUAlarm i-1", "CPUUtilization", "i-1")},
	}, nil)
	s.client.On("DeleteAlarms", mock.Anything, mock.Anything).Return(&cloudwatch.DeleteAlarmsOutput{}, nil).Once()
	s.client.On("PutMetricAlarm", mock.Anything, &cloudwatch.PutMetricAlarmInput{
		AlarmName:          aws.String("CPUAlarm i-1"),
		ComparisonOperator: cwtypes.ComparisonOperatorLessThanThreshold,
		EvaluationPeriods:  aws.Int32(2),
		MetricName:         aws.String("CPUUtilization"),
		Namespace:          aws.String("AWS/EC2"),
		Period:             aws.Int32(60),
		Statistic:          cwtypes.StatisticAverage,
		Threshold:          aws.Float64(40),
		Dimensions:         []cwtypes.Dimension{{Name: aws.String("InstanceId"), Value: aws.String("i-1")}},
		AlarmActions:       []string{"arn:aws:sns:eu-west-1:1:cloudwatch_alert"},
	}).Return(&cloudwatch.PutMetricAlarmOutput{}, nil).Once()

	s.Require().NoError(s.manager.Enable(s.ctx, "i-1"))
}

func (s *CPUAlarmSuite) TestEnable_FailedDeleteAbortsCreation() {
	s.client.On("DescribeAlarms", mock.Anything, mock.Anything).Return(&cloudwatch.DescribeAlarmsOutput{
		MetricAlarms: []cwtypes.MetricAlarm{metricAlarm("CPUAlarm i-1", "CPUUtilization", "i-1")},
	}, nil)
	s.client.On("DeleteAlarms", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

	s.Error(s.manager.Enable(s.ctx, "i-1"))
	s.client.AssertNotCalled(s.T(), "PutMetricAlarm", mock.Anything, mock.Anything)
}

func (s *CPUAlarmSuite) TestNotify_OnlyActiveInstances() {
	key := domain.NewResourceKey(domain.ProviderAWS, domain.TypeBucket, "b")
	s.NoError(s.manager.Notify(s.ctx, domain.TransitionEvent{Key: key, To: domain.StateActive}))

	key = domain.NewResourceKey(domain.ProviderAWS, domain.TypeInstance, "i-1")
	s.NoError(s.manager.Notify(s.ctx, domain.TransitionEvent{Key: key, To: domain.StatePending}))

	s.client.AssertNotCalled(s.T(), "DescribeAlarms", mock.Anything, mock.Anything)
}

func TestCPUAlarmSuite(t *testing.T) {
	suite.Run(t, new(CPUAlarmSuite))
}

func TestFilterMatchesActiveInstances(t *testing.T) {
	m := NewCPUAlarmManager(new(mocks.MockCloudWatchClient), DefaultSettings(), "", mocks.NewPermissiveLogger())
	f := m.Filter()

	instance := domain.NewResourceKey(domain.ProviderAWS, domain.TypeInstance, "i-1")
	require.True(t, f.Matches(domain.TransitionEvent{Key: instance, To: domain.StateActive}))
	assert.False(t, f.Matches(domain.TransitionEvent{Key: instance, To: domain.StateTerminalSuccess}))
	assert.Equal(t, "CPUAlarm i-1", AlarmName("i-1"))
}
