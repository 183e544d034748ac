// Package search fans a role and policy name search out across the accounts
// of an organization.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/keanuharrell/catrole/internal/core"
	"github.com/keanuharrell/catrole/internal/logging"
	"github.com/keanuharrell/catrole/internal/policy"
	"github.com/keanuharrell/catrole/internal/scanner"
)

const source = "search"

// MaxConcurrency is the number of accounts searched at once.
const MaxConcurrency = 10

// AccountIAM is the IAM access needed to search one account.
type AccountIAM interface {
	scanner.IAM
	EachRole(ctx context.Context, fn func(core.Role) bool) error
	EachPolicy(ctx context.Context, scope core.PolicyScope, fn func(core.PolicyRef) bool) error
}

// IAMFactory builds IAM access for an account from assumed-role credentials.
type IAMFactory func(creds core.Credentials) AccountIAM

// ProgressFunc is called once per finished account, in completion order,
// with a 1-based index.
type ProgressFunc func(accountName string, index, total int)

// Request describes one search.
type Request struct {
	// Pattern is matched case-sensitively against role and policy names.
	Pattern string
	// RoleName is the role assumed in every account.
	RoleName string
	// AccountID limits the search to one account when set.
	AccountID string
	// Action, when set, keeps only roles holding a permission that matches it.
	Action string
}

// Coordinator runs account searches on a bounded worker pool.
type Coordinator struct {
	broker      core.CredentialBroker
	directory   core.AccountDirectory
	newIAM      IAMFactory
	dispatcher  core.EventDispatcher
	logger      *slog.Logger
	concurrency int
}

// Option configures a coordinator.
type Option func(*Coordinator)

// WithDispatcher sets the dispatcher that receives search events.
func WithDispatcher(d core.EventDispatcher) Option {
	return func(c *Coordinator) {
		if d != nil {
			c.dispatcher = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConcurrency overrides the worker pool size.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New creates a coordinator.
func New(broker core.CredentialBroker, directory core.AccountDirectory, newIAM IAMFactory, opts ...Option) *Coordinator {
	c := &Coordinator{
		broker:      broker,
		directory:   directory,
		newIAM:      newIAM,
		dispatcher:  core.NopDispatcher{},
		logger:      logging.Discard(),
		concurrency: MaxConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchAllAccounts searches every active account, or only req.AccountID,
// and returns the accounts with at least one match sorted by name. Failures
// inside an account never abort the search; they are recorded in that
// account's result and reported as account.failed events.
func (c *Coordinator) SearchAllAccounts(ctx context.Context, req Request, progress ProgressFunc) ([]core.AccountSearchResult, error) {
	accounts, err := c.resolveAccounts(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	results := []core.AccountSearchResult{}
	if len(accounts) == 0 {
		c.logger.Warn("no active accounts found in the organization")
		c.emit(ctx, core.EventWarning, "no active accounts found in the organization")
		return results, nil
	}

	total := len(accounts)
	c.emit(ctx, core.EventSearchStarted, core.SearchEventData{Pattern: req.Pattern, RoleName: req.RoleName, Accounts: total})

	done := make(chan core.AccountSearchResult)
	go func() {
		var g errgroup.Group
		g.SetLimit(c.concurrency)
		for _, acct := range accounts {
			g.Go(func() error {
				done <- c.searchAccount(ctx, acct, req)
				return nil
			})
		}
		_ = g.Wait()
		close(done)
	}()

	index := 0
	for res := range done {
		index++
		if progress != nil {
			progress(res.AccountName, index, total)
		}
		c.record(ctx, res, index, total)

		if res.HasMatches() {
			results = append(results, res)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].AccountName != results[j].AccountName {
			return results[i].AccountName < results[j].AccountName
		}
		return results[i].AccountID < results[j].AccountID
	})

	c.emit(ctx, core.EventSearchCompleted, core.SearchEventData{
		Pattern:  req.Pattern,
		RoleName: req.RoleName,
		Accounts: total,
		Matched:  len(results),
	})
	return results, nil
}

func (c *Coordinator) resolveAccounts(ctx context.Context, accountID string) ([]core.Account, error) {
	if accountID != "" {
		return []core.Account{{ID: accountID, Name: c.directory.ResolveAccountName(ctx, accountID)}}, nil
	}
	accounts, err := c.directory.ListActiveAccounts(ctx)
	if err != nil {
		return nil, core.Wrap(err, "failed to list organization accounts")
	}
	return accounts, nil
}

func (c *Coordinator) record(ctx context.Context, res core.AccountSearchResult, index, total int) {
	data := core.AccountEventData{
		AccountID:   res.AccountID,
		AccountName: res.AccountName,
		Index:       index,
		Total:       total,
		Roles:       len(res.Roles),
		Policies:    len(res.Policies),
		Error:       res.Error,
	}
	c.emit(ctx, core.EventAccountSearched, data)
	if res.Error != "" {
		c.emit(ctx, core.EventAccountFailed, data)
	}
}

// =============================================================================
// Per-Account Task
// =============================================================================

func (c *Coordinator) searchAccount(ctx context.Context, acct core.Account, req Request) (res core.AccountSearchResult) {
	res = core.AccountSearchResult{
		AccountID:   acct.ID,
		AccountName: acct.Name,
		Roles:       []core.RoleMatch{},
		Policies:    []core.PolicyMatch{},
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("account search panicked", "account", acct.ID, "panic", r)
			res.Error = fmt.Sprintf("%v", r)
		}
	}()

	creds, err := c.broker.AssumeRole(ctx, acct.ID, req.RoleName)
	if err != nil {
		c.logger.Debug("assume role failed", "account", acct.ID, "role", req.RoleName, "error", err)
		res.Error = "Cannot assume " + req.RoleName
		return res
	}
	iam := c.newIAM(creds)

	var failures *multierror.Error

	roles, err := matchRoles(ctx, iam, req.Pattern)
	res.Roles = append(res.Roles, roles...)
	if err != nil {
		failures = multierror.Append(failures, fmt.Errorf("Role listing failed: %s", core.ErrorCode(err)))
	}

	policies, err := matchPolicies(ctx, iam, req.Pattern)
	res.Policies = append(res.Policies, policies...)
	if err != nil {
		failures = multierror.Append(failures, fmt.Errorf("Policy listing failed: %s", core.ErrorCode(err)))
	}

	if req.Action != "" {
		var scanErr error
		res.Roles, scanErr = c.filterByAction(ctx, iam, acct.ID, res.Roles, req.Action)
		if scanErr != nil {
			failures = multierror.Append(failures, scanErr)
		}
	}

	if failures != nil {
		failures.ErrorFormat = joinErrors
		res.Error = failures.Error()
	}
	return res
}

// matchRoles returns every role whose name matches pattern with its attached
// managed policy names. Roles matched before a failure are kept.
func matchRoles(ctx context.Context, iam AccountIAM, pattern string) ([]core.RoleMatch, error) {
	var matches []core.RoleMatch
	var attachErr error

	err := iam.EachRole(ctx, func(role core.Role) bool {
		if !policy.MatchesName(role.Name, pattern) {
			return true
		}
		attached, err := iam.ListAttachedRolePolicies(ctx, role.Name)
		if err != nil {
			attachErr = err
			return false
		}
		names := make([]string, 0, len(attached))
		for _, ref := range attached {
			names = append(names, ref.Name)
		}
		matches = append(matches, core.RoleMatch{RoleName: role.Name, AttachedPolicies: names})
		return true
	})
	if err == nil {
		err = attachErr
	}
	return matches, err
}

// matchPolicies returns the customer-managed policies whose name matches
// pattern.
func matchPolicies(ctx context.Context, iam AccountIAM, pattern string) ([]core.PolicyMatch, error) {
	var matches []core.PolicyMatch
	err := iam.EachPolicy(ctx, core.PolicyScopeLocal, func(ref core.PolicyRef) bool {
		if policy.MatchesName(ref.Name, pattern) {
			matches = append(matches, core.PolicyMatch{PolicyArn: ref.ARN})
		}
		return true
	})
	return matches, err
}

// filterByAction keeps the roles holding a permission that matches action
// and attaches the matching rows. One policy cache serves the whole account.
func (c *Coordinator) filterByAction(ctx context.Context, iam AccountIAM, accountID string, roles []core.RoleMatch, action string) ([]core.RoleMatch, error) {
	s := scanner.New(iam, scanner.WithAccountID(accountID), scanner.WithDispatcher(c.dispatcher))
	cache := scanner.PolicyCache{}

	kept := []core.RoleMatch{}
	var failed []string
	for _, role := range roles {
		rows, err := s.ScanRoleForAction(ctx, role.RoleName, action, cache)
		if err != nil {
			failed = append(failed, role.RoleName)
		}
		if len(rows) == 0 {
			continue
		}
		role.Permissions = rows
		kept = append(kept, role)
	}

	if len(failed) > 0 {
		return kept, fmt.Errorf("Permission scan failed: %s", strings.Join(failed, ", "))
	}
	return kept, nil
}

func joinErrors(errs []error) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (c *Coordinator) emit(ctx context.Context, eventType core.EventType, data any) {
	_ = c.dispatcher.Dispatch(ctx, core.NewEvent(eventType, source, data))
}
