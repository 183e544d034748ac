package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"

	"github.com/keanuharrell/catrole/internal/core"
)

// OrganizationsAPI is the subset of the Organizations client used by catrole.
type OrganizationsAPI interface {
	organizations.ListAccountsAPIClient
	DescribeAccount(ctx context.Context, params *organizations.DescribeAccountInput, optFns ...func(*organizations.Options)) (*organizations.DescribeAccountOutput, error)
}

// Organization enumerates the member accounts of the caller's organization.
type Organization struct {
	api OrganizationsAPI
}

// NewOrganization creates an organization enumerator.
func NewOrganization(api OrganizationsAPI) *Organization {
	return &Organization{api: api}
}

// ListActiveAccounts returns every active account of the organization in
// listing order.
func (o *Organization) ListActiveAccounts(ctx context.Context) ([]core.Account, error) {
	var accounts []core.Account

	p := organizations.NewListAccountsPaginator(o.api, &organizations.ListAccountsInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: ListAccounts: %w", core.ErrListingFailed, core.NewAWSError(err))
		}
		for _, acct := range page.Accounts {
			if acct.Status != orgtypes.AccountStatusActive {
				continue
			}
			accounts = append(accounts, core.Account{
				ID:   aws.ToString(acct.Id),
				Name: aws.ToString(acct.Name),
			})
		}
	}

	return accounts, nil
}

// ResolveAccountName returns the display name of accountID, or accountID
// itself when it cannot be looked up.
func (o *Organization) ResolveAccountName(ctx context.Context, accountID string) string {
	out, err := o.api.DescribeAccount(ctx, &organizations.DescribeAccountInput{
		AccountId: aws.String(accountID),
	})
	if err != nil || out.Account == nil || aws.ToString(out.Account.Name) == "" {
		return accountID
	}
	return aws.ToString(out.Account.Name)
}

var _ core.AccountDirectory = (*Organization)(nil)
