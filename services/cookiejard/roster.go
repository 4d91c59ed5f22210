package cookiejard

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"cookiejar/native/cookiejar"
)

// Roster lists the identities granted roles when the daemon starts.
type Roster struct {
	// Operator is the identity the admin API acts as. It is always granted
	// the admin role.
	Operator  string   `yaml:"operator"`
	Admins    []string `yaml:"admins"`
	Members   []string `yaml:"members"`
	Upgraders []string `yaml:"upgraders"`
	// Funding seeds an empty pool with base units credited to the operator
	// and deposited into the jar.
	Funding string `yaml:"funding"`
}

// LoadRoster reads a roster from the supplied path.
func LoadRoster(path string) (Roster, error) {
	var roster Roster
	file, err := os.Open(path)
	if err != nil {
		return roster, fmt.Errorf("open roster: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&roster); err != nil {
		return roster, fmt.Errorf("decode roster: %w", err)
	}
	if err := roster.validate(); err != nil {
		return roster, err
	}
	return roster, nil
}

func (r Roster) validate() error {
	if !common.IsHexAddress(strings.TrimSpace(r.Operator)) {
		return fmt.Errorf("roster: operator %q is not a hex address", r.Operator)
	}
	for field, list := range map[string][]string{"admins": r.Admins, "members": r.Members, "upgraders": r.Upgraders} {
		for _, entry := range list {
			if !common.IsHexAddress(strings.TrimSpace(entry)) {
				return fmt.Errorf("roster: %s entry %q is not a hex address", field, entry)
			}
		}
	}
	if strings.TrimSpace(r.Funding) != "" {
		if _, err := r.fundingUnits(); err != nil {
			return err
		}
	}
	return nil
}

// OperatorAddress returns the parsed operator identity.
func (r Roster) OperatorAddress() common.Address {
	return common.HexToAddress(strings.TrimSpace(r.Operator))
}

func (r Roster) fundingUnits() (*big.Int, error) {
	trimmed := strings.TrimSpace(r.Funding)
	if trimmed == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("roster: funding %q must be a positive integer", r.Funding)
	}
	return amount, nil
}

// RoleGranter assigns roles directly, bypassing admin checks. Used only to
// bootstrap the roster.
type RoleGranter interface {
	SetRole(role string, addr []byte) error
}

// Minter credits an account with newly issued units.
type Minter interface {
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
	Credit(addr common.Address, amount *big.Int) error
}

// Apply grants every listed role and, when the pool is empty, funds it.
// Applying the same roster twice is harmless.
func (r Roster) Apply(ctx context.Context, roles RoleGranter, guard *cookiejar.Guard, mint Minter) error {
	operator := r.OperatorAddress()
	grants := []struct {
		role  string
		addrs []string
	}{
		{cookiejar.RoleAdmin, append([]string{r.Operator}, r.Admins...)},
		{cookiejar.RoleMember, r.Members},
		{cookiejar.RoleUpgrader, r.Upgraders},
	}
	for _, grant := range grants {
		for _, raw := range grant.addrs {
			addr := common.HexToAddress(strings.TrimSpace(raw))
			if err := roles.SetRole(grant.role, addr.Bytes()); err != nil {
				return fmt.Errorf("grant %s to %s: %w", grant.role, addr.Hex(), err)
			}
		}
	}

	funding, err := r.fundingUnits()
	if err != nil || funding == nil {
		return err
	}
	balance, err := guard.PoolBalance(ctx, operator)
	if err != nil {
		return fmt.Errorf("read pool balance: %w", err)
	}
	if balance.Sign() > 0 {
		return nil
	}
	// Units minted by an earlier start whose deposit failed are reused.
	held, err := mint.BalanceOf(ctx, operator)
	if err != nil {
		return fmt.Errorf("read operator balance: %w", err)
	}
	if shortfall := new(big.Int).Sub(funding, held); shortfall.Sign() > 0 {
		if err := mint.Credit(operator, shortfall); err != nil {
			return fmt.Errorf("credit operator: %w", err)
		}
	}
	if err := guard.Deposit(ctx, operator, funding); err != nil {
		return fmt.Errorf("fund pool: %w", err)
	}
	return nil
}
