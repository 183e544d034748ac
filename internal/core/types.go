package core

import (
	"strings"
	"time"
)

// =============================================================================
// AWS Configuration Types
// =============================================================================

// AWSConfig holds AWS connection configuration.
type AWSConfig struct {
	Profile     string `yaml:"profile" json:"profile"`
	Region      string `yaml:"region" json:"region"`
	MaxAttempts int    `yaml:"max_attempts" json:"max_attempts"`
	Debug       bool   `yaml:"-" json:"-"`
}

// =============================================================================
// Account and Credential Types
// =============================================================================

// Account is a member account of an organization.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Credentials are temporary credentials obtained by assuming a role. They
// are owned by the scan that requested them and never persisted.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// =============================================================================
// IAM Entities
// =============================================================================

// Role is an IAM role as listed by the IAM API.
type Role struct {
	Name string `json:"name"`
	ARN  string `json:"arn"`
	Path string `json:"path,omitempty"`
}

// PolicyRef names a managed policy.
type PolicyRef struct {
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

// PolicyScope selects which managed policies a listing returns.
type PolicyScope string

const (
	PolicyScopeLocal PolicyScope = "Local"
	PolicyScopeAWS   PolicyScope = "AWS"
	PolicyScopeAll   PolicyScope = "All"
)

// =============================================================================
// Permission Rows
// =============================================================================

// PolicyType classifies where a policy lives.
type PolicyType string

const (
	PolicyTypeAWSManaged      PolicyType = "AWS Managed"
	PolicyTypeCustomerManaged PolicyType = "Customer Managed"
	PolicyTypeInline          PolicyType = "Inline"
)

const (
	// Placeholder is rendered for a missing Sid or Condition.
	Placeholder = "-"

	// NotActionPrefix marks an action that came from a NotAction clause.
	NotActionPrefix = "NotAction: "
	// NotResourcePrefix marks a resource that came from a NotResource clause.
	NotResourcePrefix = "NotResource: "
)

// PermissionRowHeader is the stable column order of a PermissionRow export.
var PermissionRowHeader = []string{"PolicyName", "PolicyType", "Sid", "Effect", "Action", "Resource", "Condition"}

// PermissionRow is one action/resource pair of a flattened policy statement.
type PermissionRow struct {
	PolicyName string     `json:"PolicyName"`
	PolicyType PolicyType `json:"PolicyType"`
	Sid        string     `json:"Sid"`
	Effect     string     `json:"Effect"`
	Action     string     `json:"Action"`
	Resource   string     `json:"Resource"`
	Condition  string     `json:"Condition"`
}

// RawAction returns the action without the NotAction prefix.
func (r PermissionRow) RawAction() string {
	return strings.TrimPrefix(r.Action, NotActionPrefix)
}

// IsNotAction reports whether the row came from a NotAction clause.
func (r PermissionRow) IsNotAction() bool {
	return strings.HasPrefix(r.Action, NotActionPrefix)
}

// Fields returns the row values in PermissionRowHeader order.
func (r PermissionRow) Fields() []string {
	return []string{r.PolicyName, string(r.PolicyType), r.Sid, r.Effect, r.Action, r.Resource, r.Condition}
}

// =============================================================================
// Search Results
// =============================================================================

// SearchExportHeader is the stable column order of a search result export.
var SearchExportHeader = []string{"AccountName", "AccountId", "Type", "Name", "AttachedPolicies"}

// RoleMatch is a role whose name matched a search pattern.
type RoleMatch struct {
	RoleName         string          `json:"RoleName"`
	AttachedPolicies []string        `json:"AttachedPolicies"`
	Permissions      []PermissionRow `json:"Permissions,omitempty"`
}

// PolicyMatch is a customer-managed policy whose name matched a search pattern.
type PolicyMatch struct {
	PolicyArn string `json:"PolicyArn"`
}

// AccountSearchResult is the outcome of searching one account.
type AccountSearchResult struct {
	AccountID   string        `json:"AccountId"`
	AccountName string        `json:"AccountName"`
	Roles       []RoleMatch   `json:"roles"`
	Policies    []PolicyMatch `json:"policies"`
	Error       string        `json:"error,omitempty"`
}

// HasMatches reports whether at least one role or policy matched.
func (r AccountSearchResult) HasMatches() bool {
	return len(r.Roles) > 0 || len(r.Policies) > 0
}

// =============================================================================
// Event Types
// =============================================================================

// EventType identifies the kind of event.
type EventType string

const (
	// Single entity scan events
	EventScanStarted   EventType = "scan.started"
	EventScanCompleted EventType = "scan.completed"
	EventScanFailed    EventType = "scan.failed"
	EventPolicyFailed  EventType = "policy.failed"

	// Search events
	EventSearchStarted   EventType = "search.started"
	EventSearchCompleted EventType = "search.completed"
	EventAccountSearched EventType = "account.searched"
	EventAccountFailed   EventType = "account.failed"

	// General events
	EventWarning EventType = "warning"
)

// BaseEvent is a basic implementation of the Event interface.
type BaseEvent struct {
	eventType EventType
	timestamp time.Time
	source    string
	data      any
}

// NewEvent creates a new BaseEvent.
func NewEvent(eventType EventType, source string, data any) *BaseEvent {
	return &BaseEvent{
		eventType: eventType,
		timestamp: time.Now(),
		source:    source,
		data:      data,
	}
}

// Type returns the event type.
func (e *BaseEvent) Type() EventType { return e.eventType }

// Timestamp returns when the event occurred.
func (e *BaseEvent) Timestamp() time.Time { return e.timestamp }

// Source returns the origin of the event.
func (e *BaseEvent) Source() string { return e.source }

// Data returns the event payload.
func (e *BaseEvent) Data() any { return e.data }

// ScanEventData describes a scan of a single role or policy.
type ScanEventData struct {
	AccountID  string `json:"account_id,omitempty"`
	EntityType string `json:"entity_type"`
	EntityName string `json:"entity_name"`
	PolicyName string `json:"policy_name,omitempty"`
	Rows       int    `json:"rows,omitempty"`
	Error      string `json:"error,omitempty"`
}

// AccountEventData describes the search of a single account.
type AccountEventData struct {
	AccountID   string `json:"account_id"`
	AccountName string `json:"account_name"`
	Index       int    `json:"index,omitempty"`
	Total       int    `json:"total,omitempty"`
	Roles       int    `json:"roles"`
	Policies    int    `json:"policies"`
	Error       string `json:"error,omitempty"`
}

// SearchEventData describes a whole search invocation.
type SearchEventData struct {
	Pattern  string `json:"pattern"`
	RoleName string `json:"role_name"`
	Accounts int    `json:"accounts"`
	Matched  int    `json:"matched,omitempty"`
}
