// Package scanner resolves IAM roles and policies of one account into
// flattened permission rows.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/keanuharrell/catrole/internal/aws"
	"github.com/keanuharrell/catrole/internal/core"
	"github.com/keanuharrell/catrole/internal/policy"
)

const source = "scanner"

// IAM is the IAM access the scanner needs in one account.
type IAM interface {
	ListAttachedRolePolicies(ctx context.Context, roleName string) ([]core.PolicyRef, error)
	ListRolePolicyNames(ctx context.Context, roleName string) ([]string, error)
	GetRolePolicyDocument(ctx context.Context, roleName, policyName string) (string, error)
	GetDefaultPolicyDocument(ctx context.Context, policyArn string) (name, document string, err error)
	FindPolicy(ctx context.Context, scope core.PolicyScope, name string) (core.PolicyRef, bool, error)
}

// PolicyCache maps a managed policy ARN to its flattened rows. A cache
// belongs to a single account and is not safe for concurrent use.
type PolicyCache map[string][]core.PermissionRow

// Scanner scans the roles and policies of one account.
type Scanner struct {
	iam        IAM
	accountID  string
	dispatcher core.EventDispatcher
}

// Option configures a scanner.
type Option func(*Scanner)

// WithAccountID tags emitted events with the scanned account.
func WithAccountID(id string) Option {
	return func(s *Scanner) {
		s.accountID = id
	}
}

// WithDispatcher sets the dispatcher that receives scan events.
func WithDispatcher(d core.EventDispatcher) Option {
	return func(s *Scanner) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// New creates a scanner over iam.
func New(iam IAM, opts ...Option) *Scanner {
	s := &Scanner{
		iam:        iam,
		dispatcher: core.NopDispatcher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// Scan Modes
// =============================================================================

// ScanRole returns the rows of every managed and inline policy of roleName,
// attached policies first. Any listing or retrieval failure aborts the scan.
func (s *Scanner) ScanRole(ctx context.Context, roleName string) ([]core.PermissionRow, error) {
	s.emit(ctx, core.EventScanStarted, core.ScanEventData{EntityType: "role", EntityName: roleName})

	rows, err := s.collectRole(ctx, roleName, nil, true)
	if err != nil {
		err = core.NewResourceError("role", roleName, "scan", err)
		s.emit(ctx, core.EventScanFailed, core.ScanEventData{EntityType: "role", EntityName: roleName, Error: err.Error()})
		return nil, err
	}

	s.emit(ctx, core.EventScanCompleted, core.ScanEventData{EntityType: "role", EntityName: roleName, Rows: len(rows)})
	return rows, nil
}

// ScanPolicy returns the rows of a managed policy identified by ARN or by
// name. A name is looked up among customer-managed policies first, then
// AWS-managed ones.
func (s *Scanner) ScanPolicy(ctx context.Context, identifier string) ([]core.PermissionRow, error) {
	s.emit(ctx, core.EventScanStarted, core.ScanEventData{EntityType: "policy", EntityName: identifier})

	rows, err := s.scanPolicy(ctx, identifier)
	if err != nil {
		err = core.NewResourceError("policy", identifier, "scan", err)
		s.emit(ctx, core.EventScanFailed, core.ScanEventData{EntityType: "policy", EntityName: identifier, Error: err.Error()})
		return nil, err
	}

	s.emit(ctx, core.EventScanCompleted, core.ScanEventData{EntityType: "policy", EntityName: identifier, Rows: len(rows)})
	return rows, nil
}

func (s *Scanner) scanPolicy(ctx context.Context, identifier string) ([]core.PermissionRow, error) {
	policyArn := identifier
	if !strings.HasPrefix(identifier, "arn:") {
		ref, err := s.resolvePolicy(ctx, identifier)
		if err != nil {
			return nil, err
		}
		policyArn = ref.ARN
	}
	return s.managedRows(ctx, policyArn, "")
}

// resolvePolicy finds a policy by exact name, Local scope before AWS scope.
func (s *Scanner) resolvePolicy(ctx context.Context, name string) (core.PolicyRef, error) {
	for _, scope := range []core.PolicyScope{core.PolicyScopeLocal, core.PolicyScopeAWS} {
		ref, ok, err := s.iam.FindPolicy(ctx, scope, name)
		if err != nil {
			return core.PolicyRef{}, err
		}
		if ok {
			return ref, nil
		}
	}
	return core.PolicyRef{}, fmt.Errorf("%w: policy '%s' not found in Local or AWS scopes", core.ErrEntityNotFound, name)
}

// ScanRoleForAction returns the rows of roleName whose action matches
// pattern. Managed policies are read through cache. A failure does not
// discard the rows gathered before it; they are returned together with the
// error.
func (s *Scanner) ScanRoleForAction(ctx context.Context, roleName, pattern string, cache PolicyCache) ([]core.PermissionRow, error) {
	if cache == nil {
		cache = PolicyCache{}
	}
	s.emit(ctx, core.EventScanStarted, core.ScanEventData{EntityType: "role", EntityName: roleName})

	rows, err := s.collectRole(ctx, roleName, cache, false)
	matched := policy.FilterByAction(rows, pattern)
	if err != nil {
		err = core.NewResourceError("role", roleName, "scan", err)
		s.emit(ctx, core.EventScanFailed, core.ScanEventData{EntityType: "role", EntityName: roleName, Rows: len(matched), Error: err.Error()})
		return matched, err
	}

	s.emit(ctx, core.EventScanCompleted, core.ScanEventData{EntityType: "role", EntityName: roleName, Rows: len(matched)})
	return matched, nil
}

// =============================================================================
// Collection
// =============================================================================

// collectRole gathers the rows of every policy of roleName. With failFast
// unset, a policy that cannot be retrieved is skipped and the first such
// error is returned once enumeration ends.
func (s *Scanner) collectRole(ctx context.Context, roleName string, cache PolicyCache, failFast bool) ([]core.PermissionRow, error) {
	var rows []core.PermissionRow
	var firstErr error

	fail := func(policyName string, err error) bool {
		s.emit(ctx, core.EventPolicyFailed, core.ScanEventData{
			EntityType: "role",
			EntityName: roleName,
			PolicyName: policyName,
			Error:      err.Error(),
		})
		if firstErr == nil {
			firstErr = err
		}
		return failFast
	}

	attached, err := s.iam.ListAttachedRolePolicies(ctx, roleName)
	if err != nil {
		return rows, notFound(err)
	}
	for _, ref := range attached {
		if cached, ok := cache[ref.ARN]; ok {
			rows = append(rows, cached...)
			continue
		}
		policyRows, err := s.managedRows(ctx, ref.ARN, ref.Name)
		if err != nil {
			if fail(ref.Name, err) {
				return nil, err
			}
			continue
		}
		if cache != nil {
			cache[ref.ARN] = policyRows
		}
		rows = append(rows, policyRows...)
	}

	inline, err := s.iam.ListRolePolicyNames(ctx, roleName)
	if err != nil {
		if failFast {
			return nil, notFound(err)
		}
		return rows, errors.Join(firstErr, err)
	}
	for _, name := range inline {
		policyRows, err := s.inlineRows(ctx, roleName, name)
		if err != nil {
			if fail(name, err) {
				return nil, err
			}
			continue
		}
		rows = append(rows, policyRows...)
	}

	return rows, firstErr
}

func (s *Scanner) managedRows(ctx context.Context, policyArn, name string) ([]core.PermissionRow, error) {
	fetchedName, doc, err := s.iam.GetDefaultPolicyDocument(ctx, policyArn)
	if err != nil {
		return nil, notFound(err)
	}
	if name == "" {
		name = fetchedName
	}
	return policy.FlattenRaw(name, aws.PolicyType(policyArn), doc)
}

func (s *Scanner) inlineRows(ctx context.Context, roleName, policyName string) ([]core.PermissionRow, error) {
	doc, err := s.iam.GetRolePolicyDocument(ctx, roleName, policyName)
	if err != nil {
		return nil, err
	}
	return policy.FlattenRaw(policyName, core.PolicyTypeInline, doc)
}

// notFound marks a NoSuchEntity API failure as ErrEntityNotFound.
func notFound(err error) error {
	if core.ErrorCode(err) == "NoSuchEntity" && !errors.Is(err, core.ErrEntityNotFound) {
		return fmt.Errorf("%w: %w", core.ErrEntityNotFound, err)
	}
	return err
}

func (s *Scanner) emit(ctx context.Context, eventType core.EventType, data core.ScanEventData) {
	data.AccountID = s.accountID
	_ = s.dispatcher.Dispatch(ctx, core.NewEvent(eventType, source, data))
}
