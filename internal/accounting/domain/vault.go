package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// VaultKind names a custody vault.
type VaultKind string

// Vault kinds.
const (
	WithdrawalVault VaultKind = "withdrawal"
	ELRewardsVault  VaultKind = "el-rewards"
)

// ParseVaultKind validates a vault name.
func ParseVaultKind(s string) (VaultKind, error) {
	switch VaultKind(s) {
	case WithdrawalVault, ELRewardsVault:
		return VaultKind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVault, s)
}

// Vault holds ether on behalf of the pool until a report collects it.
type Vault struct {
	Balance        *uint256.Int `json:"balance"`
	TotalWithdrawn *uint256.Int `json:"totalWithdrawn"`
}

func newVault() *Vault {
	return &Vault{Balance: zero(), TotalWithdrawn: zero()}
}

func (v *Vault) fund(amount *uint256.Int) {
	v.Balance.Add(v.Balance, amount)
}

// withdraw moves amount out of the vault. Callers have already checked the
// amount against the balance in the sanity checks.
func (v *Vault) withdraw(amount *uint256.Int) {
	v.Balance.Sub(v.Balance, amount)
	v.TotalWithdrawn.Add(v.TotalWithdrawn, amount)
}

func (v *Vault) clone() *Vault {
	return &Vault{Balance: v.Balance.Clone(), TotalWithdrawn: v.TotalWithdrawn.Clone()}
}

func (v *Vault) normalize() {
	v.Balance = orZero(v.Balance)
	v.TotalWithdrawn = orZero(v.TotalWithdrawn)
}
