package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// State is the single aggregate every operation works on. The engine never
// mutates the live State directly; it clones, mutates the clone and swaps it
// in once the change is committed.
type State struct {
	Ledger              *Ledger          `json:"ledger"`
	BufferedEther       *uint256.Int     `json:"bufferedEther"`
	Stat                BeaconStat       `json:"beaconStat"`
	WithdrawalVault     *Vault           `json:"withdrawalVault"`
	ELRewardsVault      *Vault           `json:"elRewardsVault"`
	Burner              *Burner          `json:"burner"`
	Queue               *WithdrawalQueue `json:"withdrawalQueue"`
	Limits              SanityLimits     `json:"limits"`
	Fees                FeeDistribution  `json:"fees"`
	Accounts            Accounts         `json:"accounts"`
	Stopped             bool             `json:"stopped"`
	LastReportTimestamp uint64           `json:"lastReportTimestamp"`
	Version             uint64           `json:"version"`
}

// Genesis configures a fresh pool.
type Genesis struct {
	Accounts    Accounts
	Limits      SanityLimits
	Fees        FeeDistribution
	QueuePaused bool
}

// NewState creates an empty pool.
func NewState(g Genesis) (*State, error) {
	if g.Accounts.WithdrawalQueue == (common.Address{}) || g.Accounts.Burner == (common.Address{}) {
		return nil, fmt.Errorf("custody accounts: %w", ErrZeroAddress)
	}
	if err := g.Limits.Validate(); err != nil {
		return nil, err
	}
	if err := g.Fees.Validate(); err != nil {
		return nil, err
	}
	return &State{
		Ledger:          NewLedger(),
		BufferedEther:   zero(),
		Stat:            BeaconStat{BeaconBalance: zero()},
		WithdrawalVault: newVault(),
		ELRewardsVault:  newVault(),
		Burner:          newBurner(),
		Queue:           newWithdrawalQueue(g.QueuePaused),
		Limits:          g.Limits,
		Fees:            g.Fees,
		Accounts:        g.Accounts,
	}, nil
}

// Normalize fills in zero values for fields missing from a decoded snapshot.
func (s *State) Normalize() {
	if s.Ledger == nil {
		s.Ledger = NewLedger()
	}
	s.BufferedEther = orZero(s.BufferedEther)
	s.Stat.BeaconBalance = orZero(s.Stat.BeaconBalance)
	if s.WithdrawalVault == nil {
		s.WithdrawalVault = newVault()
	}
	s.WithdrawalVault.normalize()
	if s.ELRewardsVault == nil {
		s.ELRewardsVault = newVault()
	}
	s.ELRewardsVault.normalize()
	if s.Burner == nil {
		s.Burner = newBurner()
	}
	s.Burner.normalize()
	if s.Queue == nil {
		s.Queue = newWithdrawalQueue(false)
	}
	s.Queue.normalize()
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	c.Ledger = s.Ledger.Clone()
	c.BufferedEther = s.BufferedEther.Clone()
	c.Stat.BeaconBalance = s.Stat.BeaconBalance.Clone()
	c.WithdrawalVault = s.WithdrawalVault.clone()
	c.ELRewardsVault = s.ELRewardsVault.clone()
	c.Burner = s.Burner.clone()
	c.Queue = s.Queue.clone()
	return &c
}

// TransientBalance is ether deposited to validators the CL has not reported yet.
func (s *State) TransientBalance() *uint256.Int {
	return mul(u64(s.Stat.DepositedValidators-s.Stat.BeaconValidators), depositSize)
}

// TotalPooledEther is buffered + CL balance + transient balance.
func (s *State) TotalPooledEther() *uint256.Int {
	return add(add(s.BufferedEther, s.Stat.BeaconBalance), s.TransientBalance())
}

// SharesByPooledEth converts an ether amount to shares at the current rate.
func (s *State) SharesByPooledEth(eth *uint256.Int) *uint256.Int {
	return mulDiv(eth, s.Ledger.totalShares, s.TotalPooledEther())
}

// PooledEthByShares converts shares to ether at the current rate.
func (s *State) PooledEthByShares(shares *uint256.Int) *uint256.Int {
	return mulDiv(shares, s.TotalPooledEther(), s.Ledger.totalShares)
}

// DepositableEther is buffered ether not reserved for unfinalized withdrawals.
func (s *State) DepositableEther() *uint256.Int {
	reserved := s.Queue.UnfinalizedStETH()
	if reserved.Gt(s.BufferedEther) {
		return zero()
	}
	return sub(s.BufferedEther, reserved)
}

// Holder returns the share and ether balance of addr.
func (s *State) Holder(addr common.Address) Holder {
	shares := s.Ledger.SharesOf(addr)
	return Holder{Address: addr, Shares: shares, Balance: s.PooledEthByShares(shares)}
}

// Overview summarizes the pool.
func (s *State) Overview() Overview {
	totalEther := s.TotalPooledEther()
	return Overview{
		TotalPooledEther:    totalEther,
		TotalShares:         s.Ledger.TotalShares(),
		ShareRate:           ShareRate(totalEther, s.Ledger.totalShares),
		BufferedEther:       s.BufferedEther.Clone(),
		DepositableEther:    s.DepositableEther(),
		TransientBalance:    s.TransientBalance(),
		Stat:                BeaconStat{DepositedValidators: s.Stat.DepositedValidators, BeaconValidators: s.Stat.BeaconValidators, BeaconBalance: s.Stat.BeaconBalance.Clone()},
		WithdrawalVault:     s.WithdrawalVault.Balance.Clone(),
		ELRewardsVault:      s.ELRewardsVault.Balance.Clone(),
		CoverShares:         s.Burner.CoverShares.Clone(),
		NonCoverShares:      s.Burner.NonCoverShares.Clone(),
		Queue:               s.Queue.Status(),
		Limits:              s.Limits,
		Fees:                s.Fees,
		Stopped:             s.Stopped,
		LastReportTimestamp: s.LastReportTimestamp,
		Version:             s.Version,
	}
}

func (s *State) vault(kind VaultKind) (*Vault, error) {
	switch kind {
	case WithdrawalVault:
		return s.WithdrawalVault, nil
	case ELRewardsVault:
		return s.ELRewardsVault, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownVault, kind)
}

func checkAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if amount.Gt(maxAmount) {
		return ErrAmountOutOfRange
	}
	return nil
}

// submit stakes amount for holder and returns the minted shares.
func (s *State) submit(holder common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	var shares *uint256.Int
	switch {
	case s.Ledger.totalShares.IsZero():
		shares = amount.Clone()
	case s.TotalPooledEther().IsZero():
		return nil, ErrEmptyPool
	default:
		shares = s.SharesByPooledEth(amount)
	}
	if err := s.Ledger.Mint(holder, shares); err != nil {
		return nil, err
	}
	s.BufferedEther.Add(s.BufferedEther, amount)
	return shares, nil
}

// deposit sends validators × 32 ETH of buffered ether to the CL.
func (s *State) deposit(validators uint64) (*uint256.Int, error) {
	if validators == 0 {
		return nil, ErrZeroAmount
	}
	amount := mul(u64(validators), depositSize)
	if amount.Gt(s.DepositableEther()) {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrInsufficientBuffer, amount.Dec(), s.DepositableEther().Dec())
	}
	s.BufferedEther.Sub(s.BufferedEther, amount)
	s.Stat.DepositedValidators += validators
	return amount, nil
}

// requestWithdrawals moves owner's shares to the queue and enqueues one
// request per amount.
func (s *State) requestWithdrawals(owner common.Address, amounts []*uint256.Int, timestamp uint64) ([]WithdrawalRequested, error) {
	if s.Queue.Paused {
		return nil, ErrQueuePaused
	}
	if len(amounts) == 0 {
		return nil, ErrZeroAmount
	}
	out := make([]WithdrawalRequested, 0, len(amounts))
	for _, amount := range amounts {
		if amount == nil || amount.Lt(minWithdrawalAmount) {
			return nil, ErrRequestAmountTooSmall
		}
		if amount.Gt(maxWithdrawalAmount) {
			return nil, ErrRequestAmountTooLarge
		}
		shares := s.SharesByPooledEth(amount)
		if err := s.Ledger.Transfer(owner, s.Accounts.WithdrawalQueue, shares); err != nil {
			return nil, err
		}
		id := s.Queue.enqueue(owner, amount, shares, timestamp)
		out = append(out, WithdrawalRequested{
			RequestID:      id,
			Owner:          owner,
			AmountOfStETH:  amount.Clone(),
			AmountOfShares: shares,
		})
	}
	return out, nil
}

// requestBurn moves owner's shares to the burner.
func (s *State) requestBurn(owner common.Address, shares *uint256.Int, cover bool) error {
	if err := checkAmount(shares); err != nil {
		return err
	}
	if err := s.Ledger.Transfer(owner, s.Accounts.Burner, shares); err != nil {
		return err
	}
	s.Burner.request(shares, cover)
	return nil
}

func (s *State) fundVault(kind VaultKind, amount *uint256.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	v, err := s.vault(kind)
	if err != nil {
		return err
	}
	v.fund(amount)
	return nil
}
