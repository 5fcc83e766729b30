// Package cloudwatchlogs records every observed transition as a JSON line in
// a CloudWatch Logs stream.
package cloudwatchlogs

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	jsoniter "github.com/json-iterator/go"

	awserrors "github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/errors"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
)

const defaultPutTimeout = 5 * time.Second

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type CloudWatchLogsClientInterface interface {
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

type record struct {
	ResourceKey string `json:"resource_key"`
	Provider    string `json:"provider"`
	Type        string `json:"type"`
	ID          string `json:"id"`
	From        string `json:"from"`
	To          string `json:"to"`
	At          string `json:"at"`
}

// Journal is a ports.TransitionListener. Write failures are logged and never
// reach the reconciliation loop.
type Journal struct {
	client     CloudWatchLogsClientInterface
	group      string
	stream     string
	putTimeout time.Duration
	logger     ports.Logger

	// mu serializes PutLogEvents calls for the stream.
	mu sync.Mutex
}

// DefaultStreamName is used when no stream is configured.
func DefaultStreamName(now time.Time) string {
	return fmt.Sprintf("reconciler-%s", now.UTC().Format("20060102T150405Z"))
}

// Open creates the group and stream if needed and returns a Journal writing to
// them.
func Open(ctx context.Context, client CloudWatchLogsClientInterface, group, stream string, logger ports.Logger) (*Journal, error) {
	if stream == "" {
		stream = DefaultStreamName(time.Now())
	}
	j := &Journal{
		client:     client,
		group:      group,
		stream:     stream,
		putTimeout: defaultPutTimeout,
		logger:     logger.WithFields(map[string]any{"component": "journal", "log_group": group, "log_stream": stream}),
	}

	if _, err := client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{LogGroupName: aws.String(group)}); err != nil && !alreadyExists(err) {
		return nil, awserrors.HandleAWSError(ctx, "log group", group, err)
	}
	_, err := client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
	})
	if err != nil && !alreadyExists(err) {
		return nil, awserrors.HandleAWSError(ctx, "log stream", stream, err)
	}
	j.logger.Debugf(ctx, "Journal ready")
	return j, nil
}

func alreadyExists(err error) bool {
	var exists *types.ResourceAlreadyExistsException
	return stderrors.As(err, &exists)
}

func (j *Journal) Stream() string {
	return j.stream
}

func (j *Journal) OnTransition(ctx context.Context, event domain.TransitionEvent) {
	line, err := jsonAPI.MarshalToString(record{
		ResourceKey: event.Key.String(),
		Provider:    event.Key.Provider,
		Type:        event.Key.Type.String(),
		ID:          event.Key.ID,
		From:        event.From.String(),
		To:          event.To.String(),
		At:          event.At.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		j.logger.Errorf(ctx, err, "Failed to encode journal record for %s", event)
		return
	}

	putCtx, cancel := context.WithTimeout(ctx, j.putTimeout)
	defer cancel()

	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.client.PutLogEvents(putCtx, &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(j.group),
		LogStreamName: aws.String(j.stream),
		LogEvents: []types.InputLogEvent{{
			Message:   aws.String(line),
			Timestamp: aws.Int64(event.At.UnixMilli()),
		}},
	})
	if err != nil {
		j.logger.Errorf(ctx, awserrors.HandleAWSError(ctx, "log stream", j.stream, err), "Failed to journal %s", event)
	}
}
