package cmd

import (
	"errors"
	"strings"

	awsfactory "github.com/keanuharrell/catrole/internal/aws"
)

// mode is the operating mode selected by the flags.
type mode int

const (
	modeNone mode = iota
	modeRole
	modePolicy
	modeARN
	modeSearch
)

var (
	errARNCombined    = errors.New("-A/--arn cannot be used with -a, -r, or -p")
	errSearchCombined = errors.New("-s/--search cannot be combined with -r, -p, or -A")
	errAccountTarget  = errors.New("-a/--account requires either -r/--role or -p/--policy")
	errRoleAndPolicy  = errors.New("-r/--role and -p/--policy cannot be used together")
	errTargetAccount  = errors.New("-r/--role and -p/--policy require -a/--account")
	errActionTarget   = errors.New("-x/--action requires a role (-r or a role ARN) or -s/--search")
)

// selectMode validates flag combinations and returns the mode they select.
func selectMode(f rootFlags) (mode, error) {
	account := strings.TrimSpace(f.account)
	role := strings.TrimSpace(f.role)
	policy := strings.TrimSpace(f.policy)
	arn := strings.TrimSpace(f.arn)
	search := strings.TrimSpace(f.search)

	if account != "" {
		if err := awsfactory.ValidateAccountID(account); err != nil {
			return modeNone, err
		}
	}

	var m mode
	switch {
	case search != "":
		if role != "" || policy != "" || arn != "" {
			return modeNone, errSearchCombined
		}
		m = modeSearch
	case arn != "":
		if account != "" || role != "" || policy != "" {
			return modeNone, errARNCombined
		}
		ref, err := awsfactory.ParseEntityARN(arn)
		if err != nil {
			return modeNone, err
		}
		if strings.TrimSpace(f.action) != "" && ref.Kind != awsfactory.EntityRole {
			return modeNone, errActionTarget
		}
		return modeARN, nil
	case role != "" && policy != "":
		return modeNone, errRoleAndPolicy
	case role != "" || policy != "":
		if account == "" {
			return modeNone, errTargetAccount
		}
		m = modeRole
		if policy != "" {
			m = modePolicy
		}
	case account != "":
		return modeNone, errAccountTarget
	default:
		return modeNone, nil
	}

	if strings.TrimSpace(f.action) != "" && m == modePolicy {
		return modeNone, errActionTarget
	}
	return m, nil
}
