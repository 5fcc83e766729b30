package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	awserrors "github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/errors"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
)

const (
	protocolEmail = "email"

	// pendingConfirmation is the ARN SNS reports for unconfirmed subscriptions;
	// such subscriptions cannot be unsubscribed.
	pendingConfirmation = "PendingConfirmation"
)

type SNSClientInterface interface {
	CreateTopic(ctx context.Context, params *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	ListSubscriptionsByTopic(ctx context.Context, params *sns.ListSubscriptionsByTopicInput, optFns ...func(*sns.Options)) (*sns.ListSubscriptionsByTopicOutput, error)
	Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
	Unsubscribe(ctx context.Context, params *sns.UnsubscribeInput, optFns ...func(*sns.Options)) (*sns.UnsubscribeOutput, error)
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Subscription struct {
	ARN      string
	Protocol string
	Endpoint string
}

func (s Subscription) Pending() bool {
	return s.ARN == pendingConfirmation
}

// Topic is an SNS topic used for alarm actions and transition notices.
type Topic struct {
	client SNSClientInterface
	name   string
	arn    string
	logger ports.Logger
}

// EnsureTopic creates the topic if it does not exist and returns it.
// CreateTopic is idempotent for an existing name.
func EnsureTopic(ctx context.Context, client SNSClientInterface, name string, logger ports.Logger) (*Topic, error) {
	output, err := client.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(name)})
	if err != nil {
		return nil, awserrors.HandleAWSError(ctx, "SNS topic", name, err)
	}
	if output.TopicArn == nil {
		return nil, errors.New(errors.CodePlatformUnavailable, fmt.Sprintf("CreateTopic for '%s' returned no ARN", name))
	}
	t := &Topic{
		client: client,
		name:   name,
		arn:    aws.ToString(output.TopicArn),
		logger: logger.WithFields(map[string]any{"component": "sns", "topic": name}),
	}
	t.logger.Debugf(ctx, "Using SNS topic %s", t.arn)
	return t, nil
}

func (t *Topic) ARN() string {
	return t.arn
}

func (t *Topic) Subscriptions(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	var next *string
	for {
		output, err := t.client.ListSubscriptionsByTopic(ctx, &sns.ListSubscriptionsByTopicInput{
			TopicArn:  aws.String(t.arn),
			NextToken: next,
		})
		if err != nil {
			return nil, awserrors.HandleAWSError(ctx, "SNS subscriptions", t.name, err)
		}
		for _, s := range output.Subscriptions {
			subs = append(subs, Subscription{
				ARN:      aws.ToString(s.SubscriptionArn),
				Protocol: aws.ToString(s.Protocol),
				Endpoint: aws.ToString(s.Endpoint),
			})
		}
		if aws.ToString(output.NextToken) == "" {
			return subs, nil
		}
		next = output.NextToken
	}
}

// Emails lists the endpoints of email subscriptions, confirmed or not.
func (t *Topic) Emails(ctx context.Context) ([]string, error) {
	subs, err := t.Subscriptions(ctx)
	if err != nil {
		return nil, err
	}
	var emails []string
	for _, s := range subs {
		if s.Protocol == protocolEmail {
			emails = append(emails, s.Endpoint)
		}
	}
	return emails, nil
}

func (t *Topic) SubscribeEmail(ctx context.Context, email string) error {
	_, err := t.client.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn: aws.String(t.arn),
		Protocol: aws.String(protocolEmail),
		Endpoint: aws.String(email),
	})
	if err != nil {
		return awserrors.HandleAWSError(ctx, "SNS subscription", email, err)
	}
	t.logger.Infof(ctx, "Subscribed %s, confirmation pending", email)
	return nil
}

// EnsureDefaultSubscriber subscribes email when the topic has no
// subscriptions at all. It reports whether a subscription was made.
func (t *Topic) EnsureDefaultSubscriber(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, nil
	}
	subs, err := t.Subscriptions(ctx)
	if err != nil {
		return false, err
	}
	if len(subs) > 0 {
		return false, nil
	}
	if err := t.SubscribeEmail(ctx, email); err != nil {
		return false, err
	}
	return true, nil
}

// SetOnlySubscriber removes every confirmed subscription and subscribes email.
// Pending subscriptions stay, since SNS cannot remove them.
func (t *Topic) SetOnlySubscriber(ctx context.Context, email string) error {
	subs, err := t.Subscriptions(ctx)
	if err != nil {
		return err
	}
	for _, s := range subs {
		if s.Pending() {
			continue
		}
		if _, err := t.client.Unsubscribe(ctx, &sns.UnsubscribeInput{SubscriptionArn: aws.String(s.ARN)}); err != nil {
			return awserrors.HandleAWSError(ctx, "SNS subscription", s.ARN, err)
		}
		t.logger.Debugf(ctx, "Unsubscribed %s", s.Endpoint)
	}
	return t.SubscribeEmail(ctx, email)
}

func (t *Topic) Name() string {
	return "sns:" + t.name
}

// Notify publishes a short notice about the transition to the topic.
func (t *Topic) Notify(ctx context.Context, event domain.TransitionEvent) error {
	subject := fmt.Sprintf("%s is now %s", event.Key, event.To)
	if len(subject) > 100 {
		subject = subject[:100]
	}
	message := fmt.Sprintf("Resource %s changed from %s to %s at %s.",
		event.Key, event.From, event.To, event.At.UTC().Format("2006-01-02T15:04:05Z"))

	_, err := t.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(t.arn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return awserrors.HandleAWSError(ctx, "SNS publish", t.name, err)
	}
	return nil
}
