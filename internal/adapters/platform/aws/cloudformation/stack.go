package cloudformation

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"

	"github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/shared"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
)

const stackResource = "CloudFormation stack"

// StackGateway drives CloudFormation stacks. The key ID is the stack name.
type StackGateway struct {
	shared.Base
	client CloudFormationClientInterface
	// defaults apply when the create action carries no template of its own.
	defaultBody string
	defaultURL  string
}

func NewStackGateway(client CloudFormationClientInterface, base shared.Base, templateBody, templateURL string) *StackGateway {
	if templateBody == "" && templateURL == "" {
		templateBody = WebBucketTemplate
	}
	return &StackGateway{Base: base, client: client, defaultBody: templateBody, defaultURL: templateURL}
}

func (g *StackGateway) ResourceType() domain.ResourceType {
	return domain.TypeStack
}

// GetStatus returns the stack status, e.g. "CREATE_IN_PROGRESS".
func (g *StackGateway) GetStatus(ctx context.Context, key domain.ResourceKey) (string, error) {
	var output *cloudformation.DescribeStacksOutput
	err := g.Call(ctx, stackResource, key.ID, func(ctx context.Context) error {
		var err error
		output, err = g.client.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(key.ID)})
		return err
	})
	if err != nil {
		return "", err
	}
	if len(output.Stacks) == 0 {
		return "", apperrors.New(apperrors.CodeResourceNotFound, fmt.Sprintf("stack '%s' not found (empty response)", key.ID))
	}
	return string(output.Stacks[0].StackStatus), nil
}

func (g *StackGateway) RequestTransition(ctx context.Context, key domain.ResourceKey, action domain.Action) error {
	switch action.Verb {
	case domain.VerbCreate:
		input := &cloudformation.CreateStackInput{StackName: aws.String(key.ID)}
		body, url := action.Arg(domain.ArgTemplateBody), action.Arg(domain.ArgTemplateURL)
		if body == "" && url == "" {
			body, url = g.defaultBody, g.defaultURL
		}
		if body != "" {
			input.TemplateBody = aws.String(body)
		} else {
			input.TemplateURL = aws.String(url)
		}
		return g.Call(ctx, stackResource, key.ID, func(ctx context.Context) error {
			_, err := g.client.CreateStack(ctx, input)
			return err
		})
	case domain.VerbDelete:
		return g.Call(ctx, stackResource, key.ID, func(ctx context.Context) error {
			_, err := g.client.DeleteStack(ctx, &cloudformation.DeleteStackInput{StackName: aws.String(key.ID)})
			return err
		})
	}
	return apperrors.NewUserFacing(apperrors.CodeRequestRejected,
		fmt.Sprintf("%s does not support '%s'", stackResource, action.Verb),
		"Stacks can be created or deleted.")
}
