// Package aws provides a factory for creating AWS service clients and the
// account-facing building blocks of catrole: the credential broker, the IAM
// client wrapper and the organization enumerator.
package aws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/keanuharrell/catrole/internal/core"
	"github.com/keanuharrell/catrole/internal/logging"
)

// ClientFactory creates AWS service clients with shared configuration.
type ClientFactory struct {
	mu      sync.RWMutex
	cfg     aws.Config
	profile string
	region  string
}

// FactoryOption configures the client factory.
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	logger *slog.Logger
}

// WithSDKLogger routes AWS SDK request and retry logs to logger.
func WithSDKLogger(logger *slog.Logger) FactoryOption {
	return func(o *factoryOptions) {
		o.logger = logger
	}
}

// NewClientFactory creates a new AWS client factory from the base identity
// of the calling environment.
func NewClientFactory(ctx context.Context, awsCfg *core.AWSConfig, opts ...FactoryOption) (*ClientFactory, error) {
	var fo factoryOptions
	for _, opt := range opts {
		opt(&fo)
	}

	var loadOpts []func(*config.LoadOptions) error

	if awsCfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(awsCfg.Region))
	}

	if awsCfg.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(awsCfg.Profile))
	}

	if awsCfg.MaxAttempts > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(awsCfg.MaxAttempts))
	}

	if fo.logger != nil && awsCfg.Debug {
		loadOpts = append(loadOpts,
			config.WithLogger(logging.SmithyLogger(fo.logger)),
			config.WithClientLogMode(aws.LogRetries|aws.LogRequest),
		)
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrAWSConfigFailed, err)
	}

	return &ClientFactory{
		cfg:     cfg,
		profile: awsCfg.Profile,
		region:  cfg.Region,
	}, nil
}

// Config returns the AWS configuration.
func (f *ClientFactory) Config() aws.Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg
}

// Region returns the configured region.
func (f *ClientFactory) Region() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.region
}

// Profile returns the configured profile.
func (f *ClientFactory) Profile() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.profile
}

// =============================================================================
// Service Client Factories
// =============================================================================

// STSClient creates an STS client for the base identity. Assume-role
// failures are reported immediately, so the client never retries.
func (f *ClientFactory) STSClient() *sts.Client {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return sts.NewFromConfig(f.cfg, func(o *sts.Options) {
		o.Retryer = aws.NopRetryer{}
	})
}

// OrganizationsClient creates an Organizations client for the base identity.
func (f *ClientFactory) OrganizationsClient() *organizations.Client {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return organizations.NewFromConfig(f.cfg)
}

// IAMClient creates an IAM client authenticated with temporary credentials.
func (f *ClientFactory) IAMClient(creds core.Credentials) *iam.Client {
	f.mu.RLock()
	cfg := f.cfg.Copy()
	f.mu.RUnlock()

	cfg.Credentials = aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		creds.AccessKeyID,
		creds.SecretAccessKey,
		creds.SessionToken,
	))
	return iam.NewFromConfig(cfg)
}

// =============================================================================
// Domain Clients
// =============================================================================

// Broker returns a credential broker backed by the base identity.
func (f *ClientFactory) Broker() *Broker {
	f.mu.RLock()
	creds := f.cfg.Credentials
	f.mu.RUnlock()
	return NewBroker(f.STSClient(), creds)
}

// Organization returns an organization enumerator for the base identity.
func (f *ClientFactory) Organization() *Organization {
	return NewOrganization(f.OrganizationsClient())
}

// IAM returns an IAM client wrapper authenticated with creds.
func (f *ClientFactory) IAM(creds core.Credentials) *IAMClient {
	return NewIAMClient(f.IAMClient(creds))
}
