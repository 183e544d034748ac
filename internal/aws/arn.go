package aws

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"

	"github.com/keanuharrell/catrole/internal/core"
)

var accountIDPattern = regexp.MustCompile(`^\d{12}$`)

// EntityKind identifies the IAM entity an ARN points to.
type EntityKind string

const (
	EntityRole   EntityKind = "role"
	EntityPolicy EntityKind = "policy"
)

// EntityRef is a parsed IAM role or policy ARN.
type EntityRef struct {
	Kind      EntityKind
	AccountID string
	// Name is the last path segment of the resource.
	Name string
	ARN  string
}

// ScanTarget returns the identifier a scan should use: the role name for
// roles and the full ARN for policies.
func (r EntityRef) ScanTarget() string {
	if r.Kind == EntityPolicy {
		return r.ARN
	}
	return r.Name
}

// ValidateAccountID checks that id is a 12-digit account ID.
func ValidateAccountID(id string) error {
	if !accountIDPattern.MatchString(id) {
		return core.NewValidationError("account", id, "account ID must be 12 digits", core.ErrInvalidAccountID)
	}
	return nil
}

// ParseEntityARN parses an IAM role or policy ARN.
func ParseEntityARN(s string) (EntityRef, error) {
	parsed, err := arn.Parse(s)
	if err != nil {
		return EntityRef{}, fmt.Errorf("%w: %s: %v", core.ErrInvalidARN, s, err)
	}
	if parsed.Service != "iam" {
		return EntityRef{}, fmt.Errorf("%w: %s: not an IAM ARN", core.ErrInvalidARN, s)
	}
	if !accountIDPattern.MatchString(parsed.AccountID) {
		return EntityRef{}, fmt.Errorf("%w: %s: account must be 12 digits", core.ErrInvalidARN, s)
	}

	kind, rest, ok := strings.Cut(parsed.Resource, "/")
	if !ok || rest == "" || strings.HasSuffix(rest, "/") {
		return EntityRef{}, fmt.Errorf("%w: %s: missing entity name", core.ErrInvalidARN, s)
	}

	ref := EntityRef{
		AccountID: parsed.AccountID,
		Name:      rest[strings.LastIndex(rest, "/")+1:],
		ARN:       s,
	}
	switch EntityKind(kind) {
	case EntityRole:
		ref.Kind = EntityRole
	case EntityPolicy:
		ref.Kind = EntityPolicy
	default:
		return EntityRef{}, fmt.Errorf("%w: %s: expected role or policy", core.ErrInvalidARN, s)
	}
	return ref, nil
}

// IsAWSManaged reports whether policyArn lives in the AWS-owned namespace.
func IsAWSManaged(policyArn string) bool {
	parsed, err := arn.Parse(policyArn)
	if err != nil {
		return strings.HasPrefix(policyArn, "arn:aws:iam::aws:")
	}
	return parsed.AccountID == "aws"
}

// PolicyType classifies a managed policy by its ARN.
func PolicyType(policyArn string) core.PolicyType {
	if IsAWSManaged(policyArn) {
		return core.PolicyTypeAWSManaged
	}
	return core.PolicyTypeCustomerManaged
}
