package aws

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	cfgw "github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/cloudformation"
	ec2gw "github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/ec2"
	elbgw "github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/elbv2"
	awserrors "github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/errors"
	"github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/limiter"
	s3gw "github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/s3"
	"github.com/olusolaa/cloud-reconciler/internal/adapters/platform/aws/shared"
	"github.com/olusolaa/cloud-reconciler/internal/config"
	"github.com/olusolaa/cloud-reconciler/internal/core/domain"
	"github.com/olusolaa/cloud-reconciler/internal/core/ports"
	"github.com/olusolaa/cloud-reconciler/internal/errors"
)

// Clients are the SDK clients the provider's gateways run on.
type Clients struct {
	EC2            ec2gw.EC2ClientInterface
	CloudFormation cfgw.CloudFormationClientInterface
	ELBv2          elbgw.ELBv2ClientInterface
	S3             s3gw.S3ClientInterface
	STS            shared.STSClientInterface
}

// Identity is the caller identity reported by STS.
type Identity struct {
	Account string
	ARN     string
	UserID  string
}

type Provider struct {
	awsConfig aws.Config
	logger    ports.Logger
	limiter   *limiter.RateLimiter
	sts       shared.STSClientInterface

	instances *ec2gw.InstanceGateway
	gateways  []ports.ProviderGateway

	identityMu sync.Mutex
	identity   *Identity
}

// NewProvider loads the AWS configuration and builds one gateway per
// supported resource type.
func NewProvider(ctx context.Context, settings *config.AWSPlatformConfig, logger ports.Logger) (*Provider, error) {
	if logger == nil {
		return nil, errors.New(errors.CodeConfigValidation, "logger cannot be nil for AWS Provider")
	}
	if settings == nil {
		logger.Warnf(ctx, "Platform.aws configuration block missing, attempting AWS client setup with defaults.")
		settings = &config.AWSPlatformConfig{}
	}

	var opts []func(*awsconfig.LoadOptions) error
	if settings.Region != "" {
		logger.Debugf(ctx, "AWS config: using region %s", settings.Region)
		opts = append(opts, awsconfig.WithRegion(settings.Region))
	}
	if settings.Profile != "" {
		logger.Debugf(ctx, "AWS config: using profile %s", settings.Profile)
		opts = append(opts, awsconfig.WithSharedConfigProfile(settings.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.WrapUserFacing(err, errors.CodePlatformAuthError,
			"Failed to load AWS configuration/credentials",
			"Check AWS_PROFILE, AWS_REGION and your shared credentials file.")
	}

	clients := Clients{
		EC2:            ec2.NewFromConfig(cfg),
		CloudFormation: cloudformation.NewFromConfig(cfg),
		ELBv2:          elb.NewFromConfig(cfg),
		S3:             s3.NewFromConfig(cfg),
		STS:            sts.NewFromConfig(cfg),
	}
	return NewProviderWithClients(cfg, clients, settings, logger), nil
}

// NewProviderWithClients wires gateways over the given clients.
func NewProviderWithClients(cfg aws.Config, clients Clients, settings *config.AWSPlatformConfig, logger ports.Logger) *Provider {
	if settings == nil {
		settings = &config.AWSPlatformConfig{}
	}
	p := &Provider{
		awsConfig: cfg,
		logger:    logger.WithFields(map[string]any{"provider": domain.ProviderAWS}),
		sts:       clients.STS,
	}
	p.limiter = limiter.New(settings.RateLimitRPS, p.logger)

	base := func(component string) shared.Base {
		return shared.Base{
			Limiter: p.limiter,
			Errors:  &awserrors.DefaultErrorHandler{},
			Logger:  p.logger.WithFields(map[string]any{"component": component}),
		}
	}

	if clients.EC2 != nil {
		p.instances = ec2gw.NewInstanceGateway(clients.EC2, base("ec2-instance"), settings.Instance.Type)
		p.register(p.instances)
		p.register(ec2gw.NewVolumeAttachmentGateway(clients.EC2, base("ec2-volume"), settings.Volume.Device))
	}
	if clients.CloudFormation != nil {
		p.register(cfgw.NewStackGateway(clients.CloudFormation, base("cloudformation"),
			settings.Stack.TemplateBody, settings.Stack.TemplateURL))
	}
	if clients.ELBv2 != nil {
		p.register(elbgw.NewLoadBalancerGateway(clients.ELBv2, base("elbv2"), elbgw.Settings{
			Subnets:        settings.LoadBalancer.Subnets,
			SecurityGroups: settings.LoadBalancer.SecurityGroups,
			Scheme:         settings.LoadBalancer.Scheme,
		}))
		p.register(elbgw.NewTargetGateway(clients.ELBv2, base("elbv2-target")))
	}
	if clients.S3 != nil {
		p.register(s3gw.NewBucketGateway(clients.S3, base("s3"), cfg.Region))
	}
	return p
}

func (p *Provider) register(gateway ports.ProviderGateway) {
	p.gateways = append(p.gateways, gateway)
	p.logger.Debugf(context.Background(), "Registered AWS gateway for %s", gateway.ResourceType())
}

func (p *Provider) Type() string {
	return domain.ProviderAWS
}

func (p *Provider) Gateways() []ports.ProviderGateway {
	out := make([]ports.ProviderGateway, len(p.gateways))
	copy(out, p.gateways)
	return out
}

// Instances returns the EC2 instance gateway, or nil without an EC2 client.
func (p *Provider) Instances() *ec2gw.InstanceGateway {
	return p.instances
}

// Config returns the loaded SDK configuration for building further clients.
func (p *Provider) Config() aws.Config {
	return p.awsConfig
}

func (p *Provider) Region() string {
	return p.awsConfig.Region
}

// WhoAmI returns the STS caller identity. The first successful answer is
// cached.
func (p *Provider) WhoAmI(ctx context.Context) (Identity, error) {
	p.identityMu.Lock()
	defer p.identityMu.Unlock()

	if p.identity != nil {
		return *p.identity, nil
	}
	if p.sts == nil {
		return Identity{}, errors.New(errors.CodeInternal, "STS client not configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return Identity{}, awserrors.HandleAWSError(ctx, "caller identity", "sts", err)
	}

	output, err := p.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return Identity{}, awserrors.HandleAWSError(ctx, "caller identity", "sts", err)
	}
	if output.Account == nil {
		return Identity{}, errors.New(errors.CodePlatformUnavailable, "AWS caller identity response did not contain Account ID")
	}
	p.identity = &Identity{
		Account: aws.ToString(output.Account),
		ARN:     aws.ToString(output.Arn),
		UserID:  aws.ToString(output.UserId),
	}
	return *p.identity, nil
}
