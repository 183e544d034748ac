package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanuharrell/catrole/internal/core"
)

// =============================================================================
// Test Doubles
// =============================================================================

type fakeBroker struct {
	deny     map[string]bool
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (b *fakeBroker) AssumeRole(_ context.Context, accountID, _ string) (core.Credentials, error) {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		seen := b.maxSeen.Load()
		if n <= seen || b.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if b.deny[accountID] {
		return core.Credentials{}, fmt.Errorf("%w: denied", core.ErrAssumeRoleDenied)
	}
	return core.Credentials{AccessKeyID: accountID}, nil
}

type fakeDirectory struct {
	accounts []core.Account
	err      error
	names    map[string]string
}

func (d *fakeDirectory) ListActiveAccounts(context.Context) ([]core.Account, error) {
	return d.accounts, d.err
}

func (d *fakeDirectory) ResolveAccountName(_ context.Context, id string) string {
	if name, ok := d.names[id]; ok {
		return name
	}
	return id
}

type fakeAccount struct {
	roles     []string
	attached  map[string][]core.PolicyRef
	policies  []core.PolicyRef
	documents map[string]string
	roleErr   error
	policyErr error
	panicOn   bool
	docCalls  int
}

func (a *fakeAccount) EachRole(_ context.Context, fn func(core.Role) bool) error {
	if a.panicOn {
		panic("boom")
	}
	for _, name := range a.roles {
		if !fn(core.Role{Name: name}) {
			return nil
		}
	}
	return a.roleErr
}

func (a *fakeAccount) EachPolicy(_ context.Context, scope core.PolicyScope, fn func(core.PolicyRef) bool) error {
	if scope != core.PolicyScopeLocal {
		return nil
	}
	for _, ref := range a.policies {
		if !fn(ref) {
			return nil
		}
	}
	return a.policyErr
}

func (a *fakeAccount) ListAttachedRolePolicies(_ context.Context, roleName string) ([]core.PolicyRef, error) {
	return a.attached[roleName], nil
}

func (a *fakeAccount) ListRolePolicyNames(context.Context, string) ([]string, error) {
	return nil, nil
}

func (a *fakeAccount) GetRolePolicyDocument(context.Context, string, string) (string, error) {
	return "", errors.New("no inline policies")
}

func (a *fakeAccount) GetDefaultPolicyDocument(_ context.Context, policyArn string) (string, string, error) {
	a.docCalls++
	doc, ok := a.documents[policyArn]
	if !ok {
		return "", "", errors.New("missing document")
	}
	return "", doc, nil
}

func (a *fakeAccount) FindPolicy(context.Context, core.PolicyScope, string) (core.PolicyRef, bool, error) {
	return core.PolicyRef{}, false, nil
}

type org map[string]*fakeAccount

func (o org) factory(creds core.Credentials) AccountIAM {
	if a, ok := o[creds.AccessKeyID]; ok {
		return a
	}
	return &fakeAccount{}
}

type recordingDispatcher struct {
	core.NopDispatcher
	mu     sync.Mutex
	events []core.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event core.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) of(eventType core.EventType) []core.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []core.Event
	for _, e := range d.events {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

const (
	acctA = "111111111111"
	acctB = "222222222222"
)

func alphaBeta() (*fakeDirectory, org) {
	dir := &fakeDirectory{accounts: []core.Account{{ID: acctA, Name: "Alpha"}, {ID: acctB, Name: "Beta"}}}
	accounts := org{
		acctA: {roles: []string{"admin", "ops"}},
		acctB: {
			roles:    []string{"my-lambda-role", "admin"},
			attached: map[string][]core.PolicyRef{"my-lambda-role": {{Name: "AWSLambdaBasicExecutionRole"}}},
		},
	}
	return dir, accounts
}

// =============================================================================
// Tests
// =============================================================================

func TestSearchKeepsOnlyMatchingAccounts(t *testing.T) {
	dir, accounts := alphaBeta()
	c := New(&fakeBroker{}, dir, accounts.factory)

	results, err := c.SearchAllAccounts(context.Background(), Request{Pattern: "*lambda*", RoleName: "Reader"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, acctB, results[0].AccountID)
	assert.Equal(t, "Beta", results[0].AccountName)
	assert.Equal(t, []core.RoleMatch{{RoleName: "my-lambda-role", AttachedPolicies: []string{"AWSLambdaBasicExecutionRole"}}}, results[0].Roles)
	assert.Empty(t, results[0].Policies)
	assert.Empty(t, results[0].Error)
}

func TestSearchAssumeFailureIsRecorded(t *testing.T) {
	dir, accounts := alphaBeta()
	d := &recordingDispatcher{}
	c := New(&fakeBroker{deny: map[string]bool{acctA: true}}, dir, accounts.factory, WithDispatcher(d))

	results, err := c.SearchAllAccounts(context.Background(), Request{Pattern: "admin", RoleName: "Reader"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, acctB, results[0].AccountID)

	failed := d.of(core.EventAccountFailed)
	require.Len(t, failed, 1)
	data := failed[0].Data().(core.AccountEventData)
	assert.Equal(t, acctA, data.AccountID)
	assert.Equal(t, "Cannot assume Reader", data.Error)
}

func TestSearchSortsByAccountName(t *testing.T) {
	dir := &fakeDirectory{}
	accounts := org{}
	for i, name := range []string{"zulu", "alpha", "mike", "bravo", "alpha"} {
		id := fmt.Sprintf("%012d", i+1)
		dir.accounts = append(dir.accounts, core.Account{ID: id, Name: name})
		accounts[id] = &fakeAccount{policies: []core.PolicyRef{{Name: "deploy", ARN: "arn:aws:iam::" + id + ":policy/deploy"}}}
	}

	results, err := New(&fakeBroker{}, dir, accounts.factory).SearchAllAccounts(context.Background(), Request{Pattern: "deploy", RoleName: "Reader"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 5)

	var order []string
	for _, r := range results {
		order = append(order, r.AccountName+"/"+r.AccountID)
	}
	assert.Equal(t, []string{
		"alpha/000000000002",
		"alpha/000000000005",
		"bravo/000000000004",
		"mike/000000000003",
		"zulu/000000000001",
	}, order)
}

func TestSearchConcurrencyBound(t *testing.T) {
	dir := &fakeDirectory{}
	for i := 0; i < 35; i++ {
		dir.accounts = append(dir.accounts, core.Account{ID: fmt.Sprintf("%012d", i), Name: fmt.Sprintf("acct-%02d", i)})
	}
	broker := &fakeBroker{delay: 5 * time.Millisecond}

	_, err := New(broker, dir, org{}.factory).SearchAllAccounts(context.Background(), Request{Pattern: "*", RoleName: "Reader"}, nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, broker.maxSeen.Load(), int32(MaxConcurrency))
	assert.Greater(t, broker.maxSeen.Load(), int32(1))
	assert.Zero(t, broker.inFlight.Load())
}

func TestSearchProgress(t *testing.T) {
	dir, accounts := alphaBeta()

	var mu sync.Mutex
	var indices []int
	names := map[string]bool{}
	progress := func(name string, index, total int) {
		mu.Lock()
		defer mu.Unlock()
		indices = append(indices, index)
		names[name] = true
		assert.Equal(t, 2, total)
	}

	_, err := New(&fakeBroker{}, dir, accounts.factory).SearchAllAccounts(context.Background(), Request{Pattern: "nothing", RoleName: "Reader"}, progress)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, indices)
	assert.Equal(t, map[string]bool{"Alpha": true, "Beta": true}, names)
}

func TestSearchPanicBecomesError(t *testing.T) {
	dir, accounts := alphaBeta()
	accounts[acctA].panicOn = true
	d := &recordingDispatcher{}

	results, err := New(&fakeBroker{}, dir, accounts.factory, WithDispatcher(d)).SearchAllAccounts(context.Background(), Request{Pattern: "*lambda*", RoleName: "Reader"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, acctB, results[0].AccountID)

	failed := d.of(core.EventAccountFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "boom", failed[0].Data().(core.AccountEventData).Error)
}

func TestSearchListingFailuresAreJoined(t *testing.T) {
	dir := &fakeDirectory{accounts: []core.Account{{ID: acctA, Name: "Alpha"}}}
	denied := fmt.Errorf("%w: %w", core.ErrListingFailed, core.NewAWSError(&smithy.GenericAPIError{Code: "AccessDenied"}))
	throttled := fmt.Errorf("%w: %w", core.ErrListingFailed, core.NewAWSError(&smithy.GenericAPIError{Code: "Throttling"}))
	accounts := org{acctA: {
		roles:     []string{"app-role"},
		roleErr:   denied,
		policyErr: throttled,
	}}

	results, err := New(&fakeBroker{}, dir, accounts.factory).SearchAllAccounts(context.Background(), Request{Pattern: "app-*", RoleName: "Reader"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Role listing failed: AccessDenied; Policy listing failed: Throttling", results[0].Error)
	assert.Len(t, results[0].Roles, 1)
}

func TestSearchZeroAccounts(t *testing.T) {
	d := &recordingDispatcher{}
	results, err := New(&fakeBroker{}, &fakeDirectory{}, org{}.factory, WithDispatcher(d)).SearchAllAccounts(context.Background(), Request{Pattern: "*", RoleName: "Reader"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Len(t, d.of(core.EventWarning), 1)
}

func TestSearchDirectoryFailure(t *testing.T) {
	dir := &fakeDirectory{err: fmt.Errorf("%w: ListAccounts", core.ErrListingFailed)}
	_, err := New(&fakeBroker{}, dir, org{}.factory).SearchAllAccounts(context.Background(), Request{Pattern: "*", RoleName: "Reader"}, nil)
	assert.ErrorIs(t, err, core.ErrListingFailed)
}

func TestSearchSingleAccount(t *testing.T) {
	dir, accounts := alphaBeta()
	dir.names = map[string]string{acctB: "Beta"}
	dir.err = errors.New("must not list the organization")

	results, err := New(&fakeBroker{}, dir, accounts.factory).SearchAllAccounts(context.Background(), Request{Pattern: "admin", RoleName: "Reader", AccountID: acctB}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Beta", results[0].AccountName)
}

func TestSearchWithActionFilter(t *testing.T) {
	dir := &fakeDirectory{accounts: []core.Account{{ID: acctA, Name: "Alpha"}}}
	s3Arn := "arn:aws:iam::111111111111:policy/S3Writer"
	ec2Arn := "arn:aws:iam::111111111111:policy/EC2Reader"
	accounts := org{acctA: {
		roles: []string{"app-writer", "app-reader"},
		attached: map[string][]core.PolicyRef{
			"app-writer": {{Name: "S3Writer", ARN: s3Arn}},
			"app-reader": {{Name: "EC2Reader", ARN: ec2Arn}},
		},
		documents: map[string]string{
			s3Arn:  `{"Statement":{"Effect":"Allow","Action":"s3:*","Resource":"*"}}`,
			ec2Arn: `{"Statement":{"Effect":"Allow","Action":"ec2:Describe*","Resource":"*"}}`,
		},
	}}

	results, err := New(&fakeBroker{}, dir, accounts.factory).SearchAllAccounts(context.Background(),
		Request{Pattern: "app-*", RoleName: "Reader", Action: "s3:PutObject"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Roles, 1)

	role := results[0].Roles[0]
	assert.Equal(t, "app-writer", role.RoleName)
	require.Len(t, role.Permissions, 1)
	assert.Equal(t, "s3:*", role.Permissions[0].Action)
	assert.Equal(t, core.PolicyTypeCustomerManaged, role.Permissions[0].PolicyType)
}

func TestSearchPolicyCacheIsPerAccount(t *testing.T) {
	dir, _ := alphaBeta()
	shared := "arn:aws:iam::aws:policy/SharedAccess"
	attached := map[string][]core.PolicyRef{
		"app-one": {{Name: "SharedAccess", ARN: shared}},
		"app-two": {{Name: "SharedAccess", ARN: shared}},
	}
	accounts := org{
		acctA: {
			roles:     []string{"app-one", "app-two"},
			attached:  attached,
			documents: map[string]string{shared: `{"Statement":{"Effect":"Allow","Action":"s3:*","Resource":"*"}}`},
		},
		acctB: {
			roles:     []string{"app-one", "app-two"},
			attached:  attached,
			documents: map[string]string{shared: `{"Statement":{"Effect":"Allow","Action":"s3:GetObject","Resource":"arn:aws:s3:::logs/*"}}`},
		},
	}

	results, err := New(&fakeBroker{}, dir, accounts.factory).SearchAllAccounts(context.Background(),
		Request{Pattern: "app-*", RoleName: "Reader", Action: "s3:Get*"}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	want := map[string]core.PermissionRow{
		acctA: {PolicyName: "SharedAccess", PolicyType: core.PolicyTypeAWSManaged, Sid: "-", Effect: "Allow", Action: "s3:*", Resource: "*", Condition: "-"},
		acctB: {PolicyName: "SharedAccess", PolicyType: core.PolicyTypeAWSManaged, Sid: "-", Effect: "Allow", Action: "s3:GetObject", Resource: "arn:aws:s3:::logs/*", Condition: "-"},
	}
	for _, r := range results {
		require.Len(t, r.Roles, 2, r.AccountName)
		for _, role := range r.Roles {
			assert.Equal(t, []core.PermissionRow{want[r.AccountID]}, role.Permissions, r.AccountName+"/"+role.RoleName)
		}
	}

	assert.Equal(t, 1, accounts[acctA].docCalls)
	assert.Equal(t, 1, accounts[acctB].docCalls)
}
