package core

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// Credential errors
	ErrNoCredentials    = errors.New("no AWS credentials found")
	ErrAssumeRoleDenied = errors.New("failed to assume role")

	// Entity errors
	ErrEntityNotFound    = errors.New("entity not found")
	ErrListingFailed     = errors.New("listing failed")
	ErrRetrievalFailed   = errors.New("retrieval failed")
	ErrMalformedDocument = errors.New("malformed policy document")

	// Input errors
	ErrInvalidARN       = errors.New("invalid IAM ARN")
	ErrInvalidAccountID = errors.New("invalid account ID")

	// Configuration errors
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrConfigReadFailed = errors.New("failed to read configuration")

	// AWS errors
	ErrAWSConfigFailed = errors.New("failed to load AWS configuration")
)

// =============================================================================
// Error Types
// =============================================================================

// AWSError carries the code/message pair reported by an AWS API.
type AWSError struct {
	Code    string
	Message string
	Err     error
}

func (e *AWSError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *AWSError) Unwrap() error {
	return e.Err
}

// NewAWSError extracts the API code and message from err when it is a
// smithy API error. Other errors are returned with the error text as message.
func NewAWSError(err error) *AWSError {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &AWSError{
			Code:    apiErr.ErrorCode(),
			Message: apiErr.ErrorMessage(),
			Err:     err,
		}
	}
	return &AWSError{
		Code:    "Unknown",
		Message: err.Error(),
		Err:     err,
	}
}

// ResourceError represents a resource-related error with context.
type ResourceError struct {
	ResourceType string
	ResourceID   string
	Op           string
	Err          error
}

func (e *ResourceError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("%s '%s': %s: %v", e.ResourceType, e.ResourceID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.ResourceType, e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError.
func NewResourceError(resourceType, resourceID, op string, err error) *ResourceError {
	return &ResourceError{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Op:           op,
		Err:          err,
	}
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Field   string
	Value   any
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s=%v: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError wrapping a sentinel.
func NewValidationError(field string, value any, message string, err error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     err,
	}
}

// =============================================================================
// Error Helpers
// =============================================================================

// ErrorCode returns the AWS API error code carried by err, or the error text
// when err did not come from an AWS API.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var awsErr *AWSError
	if errors.As(err, &awsErr) && awsErr.Code != "Unknown" {
		return awsErr.Code
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return err.Error()
}

// IsNotFound checks if an error is a "not found" type error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// IsPermission checks if an error is a credential or permission error.
func IsPermission(err error) bool {
	return errors.Is(err, ErrNoCredentials) ||
		errors.Is(err, ErrAssumeRoleDenied)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
