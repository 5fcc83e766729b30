package errors

import (
	"context"
	stderrs "errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"

	"github.com/olusolaa/cloud-reconciler/internal/errors"
)

var notFoundCodes = []string{
	// EC2
	"InvalidInstanceID.NotFound",
	"InvalidInstanceID.Malformed",
	"InvalidVolume.NotFound",
	"InvalidVolume.Malformed",

	// S3
	"NoSuchBucket",
	"NotFound",

	// ELBv2
	"LoadBalancerNotFound",
	"TargetGroupNotFound",

	// CloudWatch / SNS
	"ResourceNotFound",

	// Generic
	"ResourceNotFoundException",
	"EntityNotFoundException",
	"NotFoundException",
}

var authCodes = []string{
	"AuthFailure",
	"UnauthorizedOperation",
	"AccessDenied",
	"AccessDeniedException",
	"ExpiredToken",
	"ExpiredTokenException",
	"InvalidClientTokenId",
	"SignatureDoesNotMatch",
}

var throttlingCodes = []string{
	"Throttling",
	"ThrottlingException",
	"RequestLimitExceeded",
	"TooManyRequestsException",
	"SlowDown",
	"RequestThrottled",
}

var rejectedCodes = []string{
	"IncorrectInstanceState",
	"IncorrectState",
	"InvalidParameterValue",
	"InvalidParameterCombination",
	"MissingParameter",
	"ValidationError",
	"AlreadyExistsException",
	"BucketAlreadyExists",
	"BucketAlreadyOwnedByYou",
	"BucketNotEmpty",
	"DuplicateLoadBalancerName",
	"InvalidSubnet",
	"InvalidSecurityGroup",
	"InvalidTarget",
	"VolumeInUse",
	"InvalidVolume.ZoneMismatch",
	"OperationNotPermitted",
	"InsufficientInstanceCapacity",
	"LimitExceeded",
	"LimitExceededException",
}

// HandleAWSError maps an AWS SDK error to an application error code.
//
// Not-found errors become CodeResourceNotFound, refused requests
// CodeRequestRejected, credential problems CodePlatformAuthError, and
// everything else (throttling, 5xx, transport, context) CodePlatformUnavailable.
func HandleAWSError(ctx context.Context, resourceType string, resourceID string, err error) error {
	if err == nil {
		return errors.New(errors.CodeInternal, fmt.Sprintf("unexpected nil error in AWS error handler for %s", resourceType))
	}

	if ctx.Err() != nil || stderrs.Is(err, context.Canceled) || stderrs.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.CodePlatformUnavailable,
			fmt.Sprintf("AWS %s call for '%s' did not complete", resourceType, resourceID))
	}

	code := errorCode(err)
	errMsg := err.Error()

	switch {
	case slices.Contains(authCodes, code):
		return errors.Wrap(err, errors.CodePlatformAuthError,
			fmt.Sprintf("AWS authentication error accessing %s '%s'", resourceType, resourceID))

	case isNotFound(code, errMsg):
		return errors.Wrap(err, errors.CodeResourceNotFound,
			fmt.Sprintf("%s '%s' not found", resourceType, resourceID))

	case slices.Contains(throttlingCodes, code):
		return errors.Wrap(err, errors.CodePlatformUnavailable,
			fmt.Sprintf("AWS throttled request for %s '%s'", resourceType, resourceID))

	case slices.Contains(rejectedCodes, code):
		return errors.Wrap(err, errors.CodeRequestRejected,
			fmt.Sprintf("AWS rejected request for %s '%s'", resourceType, resourceID))
	}

	status := httpStatus(err)
	switch {
	case status == http.StatusNotFound:
		return errors.Wrap(err, errors.CodeResourceNotFound,
			fmt.Sprintf("%s '%s' not found", resourceType, resourceID))
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return errors.Wrap(err, errors.CodePlatformAuthError,
			fmt.Sprintf("AWS authentication error accessing %s '%s'", resourceType, resourceID))
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return errors.Wrap(err, errors.CodePlatformUnavailable,
			fmt.Sprintf("AWS unavailable for %s '%s'", resourceType, resourceID))
	case status >= http.StatusBadRequest:
		return errors.Wrap(err, errors.CodeRequestRejected,
			fmt.Sprintf("AWS rejected request for %s '%s'", resourceType, resourceID))
	}

	return errors.Wrap(err, errors.CodePlatformUnavailable,
		fmt.Sprintf("failed to access %s '%s'", resourceType, resourceID))
}

func errorCode(err error) string {
	var apiErr smithy.APIError
	if stderrs.As(err, &apiErr) && apiErr != nil {
		return apiErr.ErrorCode()
	}
	return ""
}

func httpStatus(err error) int {
	var respErr *awshttp.ResponseError
	if stderrs.As(err, &respErr) && respErr != nil {
		return respErr.HTTPStatusCode()
	}
	return 0
}

// isNotFound also matches CloudFormation, which reports a missing stack as a
// ValidationError whose message says it does not exist.
func isNotFound(code, errMsg string) bool {
	if slices.Contains(notFoundCodes, code) {
		return true
	}
	return strings.Contains(errMsg, "does not exist") ||
		strings.Contains(errMsg, "NoSuchBucket")
}

// DefaultErrorHandler implements shared.ErrorHandler with HandleAWSError.
type DefaultErrorHandler struct{}

func (d *DefaultErrorHandler) Handle(ctx context.Context, resourceType, resourceID string, err error) error {
	return HandleAWSError(ctx, resourceType, resourceID, err)
}
