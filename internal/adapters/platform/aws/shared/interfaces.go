package shared

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// RateLimiter throttles AWS API calls.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// ErrorHandler maps an SDK error for a resource to an application error.
type ErrorHandler interface {
	Handle(ctx context.Context, resourceType, resourceID string, err error) error
}

// STSClientInterface defines the method needed from the AWS SDK STS client.
type STSClientInterface interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}
