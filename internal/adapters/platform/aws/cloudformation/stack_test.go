package cloudformation

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	awserrors "github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/errors"
	"github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/shared"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
	"github.com/olusolaa/cloud-reconciler/internal/log"
	"github.com/olusolaa/cloud-reconciler/mocks"
)

func newTestGateway(body, url string) (*StackGateway, *mocks.MockCloudFormationClient) {
	client := new(mocks.MockCloudFormationClient)
	base := shared.Base{Errors: &awserrors.DefaultErrorHandler{}, Logger: log.Nop()}
	return NewStackGateway(client, base, body, url), client
}

var webKey = domain.NewResourceKey(domain.ProviderAWS, domain.TypeStack, "web")

func TestStackGateway_GetStatus(t *testing.T) {
	gw, client := newTestGateway("", "")
	client.On("DescribeStacks", mock.Anything, &cloudformation.DescribeStacksInput{StackName: aws.String("web")}).
		Return(&cloudformation.DescribeStacksOutput{Stacks: []cftypes.Stack{{StackStatus: cftypes.StackStatusCreateInProgress}}}, nil)

	status, err := gw.GetStatus(context.Background(), webKey)
	require.NoError(t, err)
	assert.Equal(t, "CREATE_IN_PROGRESS", status)
	assert.Equal(t, domain.StatePending, domain.Classify(domain.TypeStack, status))
}

func TestStackGateway_GetStatus_DeletedStackIsNotFound(t *testing.T) {
	gw, client := newTestGateway("", "")
	client.On("DescribeStacks", mock.Anything, mock.Anything).
		Return(nil, &smithy.GenericAPIError{Code: "ValidationError", Message: "Stack with id web does not exist"})

	_, err := gw.GetStatus(context.Background(), webKey)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStackGateway_Create(t *testing.T) {
	t.Run("default web bucket template", func(t *testing.T) {
		gw, client := newTestGateway("", "")
		client.On("CreateStack", mock.Anything, &cloudformation.CreateStackInput{
			StackName:    aws.String("web"),
			TemplateBody: aws.String(WebBucketTemplate),
		}).Return(&cloudformation.CreateStackOutput{}, nil).Once()

		require.NoError(t, gw.RequestTransition(context.Background(), webKey, domain.Action{Verb: domain.VerbCreate}))
		client.AssertExpectations(t)
	})

	t.Run("configured url", func(t *testing.T) {
		gw, client := newTestGateway("", "https://example.com/t.json")
		client.On("CreateStack", mock.Anything, &cloudformation.CreateStackInput{
			StackName:   aws.String("web"),
			TemplateURL: aws.String("https://example.com/t.json"),
		}).Return(&cloudformation.CreateStackOutput{}, nil).Once()

		require.NoError(t, gw.RequestTransition(context.Background(), webKey, domain.Action{Verb: domain.VerbCreate}))
		client.AssertExpectations(t)
	})

	t.Run("action template wins", func(t *testing.T) {
		gw, client := newTestGateway("", "")
		client.On("CreateStack", mock.Anything, &cloudformation.CreateStackInput{
			StackName:    aws.String("web"),
			TemplateBody: aws.String(`{"Resources":{}}`),
		}).Return(&cloudformation.CreateStackOutput{}, nil).Once()

		action := domain.Action{Verb: domain.VerbCreate, Args: map[string]string{domain.ArgTemplateBody: `{"Resources":{}}`}}
		require.NoError(t, gw.RequestTransition(context.Background(), webKey, action))
		client.AssertExpectations(t)
	})

	t.Run("already exists is rejected", func(t *testing.T) {
		gw, client := newTestGateway("", "")
		client.On("CreateStack", mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "AlreadyExistsException", Message: "Stack [web] already exists"})

		err := gw.RequestTransition(context.Background(), webKey, domain.Action{Verb: domain.VerbCreate})
		assert.True(t, apperrors.IsRejected(err))
	})
}

func TestStackGateway_Delete(t *testing.T) {
	gw, client := newTestGateway("", "")
	client.On("DeleteStack", mock.Anything, &cloudformation.DeleteStackInput{StackName: aws.String("web")}).
		Return(&cloudformation.DeleteStackOutput{}, nil).Once()

	require.NoError(t, gw.RequestTransition(context.Background(), webKey, domain.Action{Verb: domain.VerbDelete}))
	client.AssertExpectations(t)

	assert.True(t, apperrors.IsRejected(gw.RequestTransition(context.Background(), webKey, domain.Action{Verb: domain.VerbStart})))
}

func TestGenerateStackName(t *testing.T) {
	name := GenerateStackName(time.Unix(1700000000, 5))
	assert.Equal(t, "webbucket1700000000000000005", name)
}
