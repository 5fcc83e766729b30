package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/shared"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	apperrors "github.com/olusolaa/cloud-reconciler/internal/errors"
)

const (
	bucketResource = "S3 bucket"

	// StatusExists is reported for a bucket that answers HeadBucket.
	StatusExists = "exists"

	// us-east-1 rejects an explicit location constraint.
	defaultRegion = "us-east-1"
)

// BucketGateway drives S3 buckets. The key ID is the bucket name.
type BucketGateway struct {
	shared.Base
	client S3ClientInterface
	region string
}

func NewBucketGateway(client S3ClientInterface, base shared.Base, region string) *BucketGateway {
	return &BucketGateway{Base: base, client: client, region: region}
}

func (g *BucketGateway) ResourceType() domain.ResourceType {
	return domain.TypeBucket
}

func (g *BucketGateway) GetStatus(ctx context.Context, key domain.ResourceKey) (string, error) {
	err := g.Call(ctx, bucketResource, key.ID, func(ctx context.Context) error {
		_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(key.ID)})
		return err
	})
	if err != nil {
		return "", err
	}
	return StatusExists, nil
}

func (g *BucketGateway) RequestTransition(ctx context.Context, key domain.ResourceKey, action domain.Action) error {
	switch action.Verb {
	case domain.VerbCreate:
		input := &s3.CreateBucketInput{Bucket: aws.String(key.ID)}
		region := action.Arg(domain.ArgRegion)
		if region == "" {
			region = g.region
		}
		if region != "" && region != defaultRegion {
			input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
				LocationConstraint: s3types.BucketLocationConstraint(region),
			}
		}
		return g.Call(ctx, bucketResource, key.ID, func(ctx context.Context) error {
			_, err := g.client.CreateBucket(ctx, input)
			return err
		})
	case domain.VerbDelete:
		return g.Call(ctx, bucketResource, key.ID, func(ctx context.Context) error {
			_, err := g.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(key.ID)})
			return err
		})
	}
	return apperrors.NewUserFacing(apperrors.CodeRequestRejected,
		fmt.Sprintf("%s does not support '%s'", bucketResource, action.Verb),
		"Buckets can be created or deleted.")
}
