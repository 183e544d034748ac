package aws

import (
	"context"
	"errors"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keanuharrell/catrole/internal/core"
)

type mockOrganizationsAPI struct {
	listAccountsFunc    func(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error)
	describeAccountFunc func(ctx context.Context, params *organizations.DescribeAccountInput, optFns ...func(*organizations.Options)) (*organizations.DescribeAccountOutput, error)
}

func (m *mockOrganizationsAPI) ListAccounts(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
	return m.listAccountsFunc(ctx, params, optFns...)
}

func (m *mockOrganizationsAPI) DescribeAccount(ctx context.Context, params *organizations.DescribeAccountInput, optFns ...func(*organizations.Options)) (*organizations.DescribeAccountOutput, error) {
	return m.describeAccountFunc(ctx, params, optFns...)
}

func TestListActiveAccounts(t *testing.T) {
	mock := &mockOrganizationsAPI{
		listAccountsFunc: func(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
			if params.NextToken == nil {
				return &organizations.ListAccountsOutput{
					Accounts: []orgtypes.Account{
						{Id: awssdk.String("111111111111"), Name: awssdk.String("Alpha"), Status: orgtypes.AccountStatusActive},
						{Id: awssdk.String("222222222222"), Name: awssdk.String("Closed"), Status: orgtypes.AccountStatusSuspended},
					},
					NextToken: awssdk.String("t2"),
				}, nil
			}
			return &organizations.ListAccountsOutput{
				Accounts: []orgtypes.Account{
					{Id: awssdk.String("333333333333"), Name: awssdk.String("Beta"), Status: orgtypes.AccountStatusActive},
					{Id: awssdk.String("444444444444"), Name: awssdk.String("Leaving"), Status: orgtypes.AccountStatusPendingClosure},
				},
			}, nil
		},
	}

	accounts, err := NewOrganization(mock).ListActiveAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Account{
		{ID: "111111111111", Name: "Alpha"},
		{ID: "333333333333", Name: "Beta"},
	}, accounts)
}

func TestListActiveAccountsFailure(t *testing.T) {
	mock := &mockOrganizationsAPI{
		listAccountsFunc: func(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "AWSOrganizationsNotInUseException", Message: "not in an organization"}
		},
	}

	_, err := NewOrganization(mock).ListActiveAccounts(context.Background())
	assert.ErrorIs(t, err, core.ErrListingFailed)
	assert.Equal(t, "AWSOrganizationsNotInUseException", core.ErrorCode(err))
}

func TestResolveAccountName(t *testing.T) {
	tests := []struct {
		name string
		out  *organizations.DescribeAccountOutput
		err  error
		want string
	}{
		{
			name: "found",
			out:  &organizations.DescribeAccountOutput{Account: &orgtypes.Account{Name: awssdk.String("Alpha")}},
			want: "Alpha",
		},
		{
			name: "lookup fails",
			err:  errors.New("AccessDenied"),
			want: "111111111111",
		},
		{
			name: "empty name",
			out:  &organizations.DescribeAccountOutput{Account: &orgtypes.Account{}},
			want: "111111111111",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockOrganizationsAPI{
				describeAccountFunc: func(ctx context.Context, params *organizations.DescribeAccountInput, optFns ...func(*organizations.Options)) (*organizations.DescribeAccountOutput, error) {
					assert.Equal(t, "111111111111", awssdk.ToString(params.AccountId))
					return tt.out, tt.err
				},
			}
			assert.Equal(t, tt.want, NewOrganization(mock).ResolveAccountName(context.Background(), "111111111111"))
		})
	}
}
