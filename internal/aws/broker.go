package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/keanuharrell/catrole/internal/core"
)

const (
	// SessionName tags every assumed-role session opened by catrole.
	SessionName = "catrole-session"

	// SessionDuration is the lifetime of assumed-role credentials in seconds.
	SessionDuration int32 = 3600
)

// STSAPI is the subset of the STS client used by the broker.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// Broker obtains temporary credentials in target accounts by assuming a
// named role from the base identity.
type Broker struct {
	api  STSAPI
	base aws.CredentialsProvider
}

// NewBroker creates a broker. base is the provider of the calling identity;
// a nil provider means no identity is configured.
func NewBroker(api STSAPI, base aws.CredentialsProvider) *Broker {
	return &Broker{api: api, base: base}
}

// RoleARN returns the ARN of roleName in accountID.
func RoleARN(accountID, roleName string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, roleName)
}

// AssumeRole returns temporary credentials for roleName in accountID.
func (b *Broker) AssumeRole(ctx context.Context, accountID, roleName string) (core.Credentials, error) {
	if b.base == nil {
		return core.Credentials{}, core.ErrNoCredentials
	}
	if _, err := b.base.Retrieve(ctx); err != nil {
		return core.Credentials{}, fmt.Errorf("%w: %v", core.ErrNoCredentials, err)
	}

	roleArn := RoleARN(accountID, roleName)
	out, err := b.api.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleArn),
		RoleSessionName: aws.String(SessionName),
		DurationSeconds: aws.Int32(SessionDuration),
	})
	if err != nil {
		return core.Credentials{}, fmt.Errorf("%w: %s: %w", core.ErrAssumeRoleDenied, roleArn, core.NewAWSError(err))
	}
	if out.Credentials == nil {
		return core.Credentials{}, fmt.Errorf("%w: %s: empty credentials", core.ErrAssumeRoleDenied, roleArn)
	}

	return core.Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Expiration:      aws.ToTime(out.Credentials.Expiration),
	}, nil
}

var _ core.CredentialBroker = (*Broker)(nil)
