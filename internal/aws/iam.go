package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/keanuharrell/catrole/internal/core"
)

// IAMAPI is the subset of the IAM client used by catrole.
type IAMAPI interface {
	iam.ListRolesAPIClient
	iam.ListAttachedRolePoliciesAPIClient
	iam.ListRolePoliciesAPIClient
	iam.ListPoliciesAPIClient
	GetRolePolicy(ctx context.Context, params *iam.GetRolePolicyInput, optFns ...func(*iam.Options)) (*iam.GetRolePolicyOutput, error)
	GetPolicy(ctx context.Context, params *iam.GetPolicyInput, optFns ...func(*iam.Options)) (*iam.GetPolicyOutput, error)
	GetPolicyVersion(ctx context.Context, params *iam.GetPolicyVersionInput, optFns ...func(*iam.Options)) (*iam.GetPolicyVersionOutput, error)
}

// IAMClient wraps the IAM API of one account with paginated listing and
// document retrieval.
type IAMClient struct {
	api IAMAPI
}

// NewIAMClient creates an IAM client wrapper.
func NewIAMClient(api IAMAPI) *IAMClient {
	return &IAMClient{api: api}
}

func listingError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", core.ErrListingFailed, op, core.NewAWSError(err))
}

func retrievalError(op, id string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", core.ErrRetrievalFailed, op, id, core.NewAWSError(err))
}

// =============================================================================
// Roles
// =============================================================================

// EachRole calls fn for every role in the account, in listing order. The
// walk stops when fn returns false.
func (c *IAMClient) EachRole(ctx context.Context, fn func(core.Role) bool) error {
	p := iam.NewListRolesPaginator(c.api, &iam.ListRolesInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return listingError("ListRoles", err)
		}
		for _, r := range page.Roles {
			if !fn(core.Role{
				Name: aws.ToString(r.RoleName),
				ARN:  aws.ToString(r.Arn),
				Path: aws.ToString(r.Path),
			}) {
				return nil
			}
		}
	}
	return nil
}

// ListAttachedRolePolicies returns the managed policies attached to a role.
func (c *IAMClient) ListAttachedRolePolicies(ctx context.Context, roleName string) ([]core.PolicyRef, error) {
	var policies []core.PolicyRef

	p := iam.NewListAttachedRolePoliciesPaginator(c.api, &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, listingError("ListAttachedRolePolicies", err)
		}
		for _, ap := range page.AttachedPolicies {
			policies = append(policies, core.PolicyRef{
				Name: aws.ToString(ap.PolicyName),
				ARN:  aws.ToString(ap.PolicyArn),
			})
		}
	}

	return policies, nil
}

// ListRolePolicyNames returns the names of the inline policies of a role.
func (c *IAMClient) ListRolePolicyNames(ctx context.Context, roleName string) ([]string, error) {
	var names []string

	p := iam.NewListRolePoliciesPaginator(c.api, &iam.ListRolePoliciesInput{
		RoleName: aws.String(roleName),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, listingError("ListRolePolicies", err)
		}
		names = append(names, page.PolicyNames...)
	}

	return names, nil
}

// GetRolePolicyDocument returns the document of an inline role policy as
// returned by the API, which is URL-encoded JSON.
func (c *IAMClient) GetRolePolicyDocument(ctx context.Context, roleName, policyName string) (string, error) {
	out, err := c.api.GetRolePolicy(ctx, &iam.GetRolePolicyInput{
		RoleName:   aws.String(roleName),
		PolicyName: aws.String(policyName),
	})
	if err != nil {
		return "", retrievalError("GetRolePolicy", roleName+"/"+policyName, err)
	}
	return aws.ToString(out.PolicyDocument), nil
}

// =============================================================================
// Managed Policies
// =============================================================================

// EachPolicy calls fn for every managed policy in scope, in listing order.
// The walk stops when fn returns false.
func (c *IAMClient) EachPolicy(ctx context.Context, scope core.PolicyScope, fn func(core.PolicyRef) bool) error {
	p := iam.NewListPoliciesPaginator(c.api, &iam.ListPoliciesInput{
		Scope: iamtypes.PolicyScopeType(scope),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return listingError("ListPolicies", err)
		}
		for _, pol := range page.Policies {
			if !fn(core.PolicyRef{
				Name: aws.ToString(pol.PolicyName),
				ARN:  aws.ToString(pol.Arn),
			}) {
				return nil
			}
		}
	}
	return nil
}

// FindPolicy returns the first policy in scope named exactly name.
func (c *IAMClient) FindPolicy(ctx context.Context, scope core.PolicyScope, name string) (core.PolicyRef, bool, error) {
	var found core.PolicyRef
	var ok bool
	err := c.EachPolicy(ctx, scope, func(p core.PolicyRef) bool {
		if p.Name == name {
			found, ok = p, true
			return false
		}
		return true
	})
	return found, ok, err
}

// GetDefaultPolicyDocument returns the name and default version document of
// a managed policy.
func (c *IAMClient) GetDefaultPolicyDocument(ctx context.Context, policyArn string) (string, string, error) {
	pol, err := c.api.GetPolicy(ctx, &iam.GetPolicyInput{PolicyArn: aws.String(policyArn)})
	if err != nil {
		return "", "", retrievalError("GetPolicy", policyArn, err)
	}
	if pol.Policy == nil {
		return "", "", fmt.Errorf("%w: GetPolicy %s: empty response", core.ErrRetrievalFailed, policyArn)
	}

	ver, err := c.api.GetPolicyVersion(ctx, &iam.GetPolicyVersionInput{
		PolicyArn: aws.String(policyArn),
		VersionId: pol.Policy.DefaultVersionId,
	})
	if err != nil {
		return "", "", retrievalError("GetPolicyVersion", policyArn, err)
	}
	if ver.PolicyVersion == nil {
		return "", "", fmt.Errorf("%w: GetPolicyVersion %s: empty response", core.ErrRetrievalFailed, policyArn)
	}

	return aws.ToString(pol.Policy.PolicyName), aws.ToString(ver.PolicyVersion.Document), nil
}
