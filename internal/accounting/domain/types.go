package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Report is a periodic attestation of consensus and execution layer state.
type Report struct {
	ReportTimestamp               uint64       `json:"reportTimestamp" toml:"report_timestamp"`
	TimeElapsed                   uint64       `json:"timeElapsed" toml:"time_elapsed"`
	CLValidators                  uint64       `json:"clValidators" toml:"cl_validators"`
	PostCLBalance                 *uint256.Int `json:"postCLBalance" toml:"post_cl_balance"`
	WithdrawalVaultBalance        *uint256.Int `json:"withdrawalVaultBalance" toml:"withdrawal_vault_balance"`
	ELRewardsVaultBalance         *uint256.Int `json:"elRewardsVaultBalance" toml:"el_rewards_vault_balance"`
	SharesRequestedToBurn         *uint256.Int `json:"sharesRequestedToBurn" toml:"shares_requested_to_burn"`
	WithdrawalFinalizationBatches []uint64     `json:"withdrawalFinalizationBatches" toml:"withdrawal_finalization_batches"`
	SimulatedShareRate            *uint256.Int `json:"simulatedShareRate" toml:"simulated_share_rate"`
	IsBunkerMode                  bool         `json:"isBunkerMode" toml:"is_bunker_mode"`
}

// normalized returns a copy with nil amounts replaced by zero.
func (r Report) normalized() Report {
	r.PostCLBalance = orZero(r.PostCLBalance).Clone()
	r.WithdrawalVaultBalance = orZero(r.WithdrawalVaultBalance).Clone()
	r.ELRewardsVaultBalance = orZero(r.ELRewardsVaultBalance).Clone()
	r.SharesRequestedToBurn = orZero(r.SharesRequestedToBurn).Clone()
	r.SimulatedShareRate = orZero(r.SimulatedShareRate).Clone()
	r.WithdrawalFinalizationBatches = append([]uint64(nil), r.WithdrawalFinalizationBatches...)
	return r
}

func (r Report) inRange() bool {
	for _, v := range []*uint256.Int{r.PostCLBalance, r.WithdrawalVaultBalance, r.ELRewardsVaultBalance, r.SharesRequestedToBurn} {
		if v.Gt(maxAmount) {
			return false
		}
	}
	return true
}

// BeaconStat is the pool's view of its validators.
type BeaconStat struct {
	DepositedValidators uint64       `json:"depositedValidators"`
	BeaconValidators    uint64       `json:"beaconValidators"`
	BeaconBalance       *uint256.Int `json:"beaconBalance"`
}

// SanityLimits bound what a single report may change. MaxPositiveTokenRebase
// is in LimiterPrecisionBase units and RequestTimestampMargin in seconds.
type SanityLimits struct {
	ChurnValidatorsPerDayLimit         uint64 `json:"churnValidatorsPerDayLimit"`
	OneOffCLBalanceDecreaseBPLimit     uint64 `json:"oneOffCLBalanceDecreaseBPLimit"`
	AnnualBalanceIncreaseBPLimit       uint64 `json:"annualBalanceIncreaseBPLimit"`
	SimulatedShareRateDeviationBPLimit uint64 `json:"simulatedShareRateDeviationBPLimit"`
	MaxPositiveTokenRebase             uint64 `json:"maxPositiveTokenRebase"`
	RequestTimestampMargin             uint64 `json:"requestTimestampMargin"`
}

// DefaultSanityLimits returns the limits a freshly initialized pool runs with.
func DefaultSanityLimits() SanityLimits {
	return SanityLimits{
		ChurnValidatorsPerDayLimit:         255,
		OneOffCLBalanceDecreaseBPLimit:     100,
		AnnualBalanceIncreaseBPLimit:       10_000,
		SimulatedShareRateDeviationBPLimit: 15,
		MaxPositiveTokenRebase:             LimiterPrecisionBase,
		RequestTimestampMargin:             24,
	}
}

// Validate checks every limit is within its allowed range.
func (l SanityLimits) Validate() error {
	switch {
	case l.OneOffCLBalanceDecreaseBPLimit > MaxBasisPoints:
		return ErrInvalidLimits
	case l.AnnualBalanceIncreaseBPLimit > MaxBasisPoints:
		return ErrInvalidLimits
	case l.SimulatedShareRateDeviationBPLimit > MaxBasisPoints:
		return ErrInvalidLimits
	case l.MaxPositiveTokenRebase == 0:
		return ErrInvalidLimits
	}
	return nil
}

// FeeDistribution splits protocol fees between the treasury and the staking module.
type FeeDistribution struct {
	Treasury      common.Address `json:"treasury"`
	TreasuryFeeBP uint64         `json:"treasuryFeeBP"`
	Module        common.Address `json:"module"`
	ModuleFeeBP   uint64         `json:"moduleFeeBP"`
}

// TotalFeeBP is the combined fee in basis points.
func (f FeeDistribution) TotalFeeBP() uint64 {
	return f.TreasuryFeeBP + f.ModuleFeeBP
}

// Validate checks the fee does not exceed 100% and recipients are set when charged.
func (f FeeDistribution) Validate() error {
	if f.TotalFeeBP() > MaxBasisPoints {
		return ErrInvalidFeeDistribution
	}
	if f.TreasuryFeeBP > 0 && f.Treasury == (common.Address{}) {
		return ErrInvalidFeeDistribution
	}
	if f.ModuleFeeBP > 0 && f.Module == (common.Address{}) {
		return ErrInvalidFeeDistribution
	}
	return nil
}

// Accounts are the custody addresses the pool moves shares through.
type Accounts struct {
	WithdrawalQueue common.Address `json:"withdrawalQueue"`
	Burner          common.Address `json:"burner"`
}

// ReportResult is the outcome of a processed (or simulated) report.
type ReportResult struct {
	PostTotalPooledEther *uint256.Int `json:"postTotalPooledEther"`
	PostTotalShares      *uint256.Int `json:"postTotalShares"`
	WithdrawalsWithdrawn *uint256.Int `json:"withdrawalsWithdrawn"`
	ELRewardsWithdrawn   *uint256.Int `json:"elRewardsWithdrawn"`

	PreTotalPooledEther          *uint256.Int `json:"preTotalPooledEther"`
	PreTotalShares               *uint256.Int `json:"preTotalShares"`
	PreCLBalance                 *uint256.Int `json:"preCLBalance"`
	SharesMintedAsFees           *uint256.Int `json:"sharesMintedAsFees"`
	SharesBurnt                  *uint256.Int `json:"sharesBurnt"`
	EtherLockedOnWithdrawalQueue *uint256.Int `json:"etherLockedOnWithdrawalQueue"`
	LastFinalizedRequestID       uint64       `json:"lastFinalizedRequestId"`

	ReportID string  `json:"reportId,omitempty"`
	Version  uint64  `json:"version,omitempty"`
	Events   []Event `json:"-"`
}

// ShareRate is the post-report ether per share scaled by 1e27. Oracles pass it
// back as Report.SimulatedShareRate after a dry run.
func (r *ReportResult) ShareRate() *uint256.Int {
	return ShareRate(r.PostTotalPooledEther, r.PostTotalShares)
}

// Holder is a share owner and its ether balance.
type Holder struct {
	Address common.Address `json:"address"`
	Shares  *uint256.Int   `json:"shares"`
	Balance *uint256.Int   `json:"balance"`
}

// Overview is a read-only summary of the pool.
type Overview struct {
	TotalPooledEther    *uint256.Int    `json:"totalPooledEther"`
	TotalShares         *uint256.Int    `json:"totalShares"`
	ShareRate           *uint256.Int    `json:"shareRate"`
	BufferedEther       *uint256.Int    `json:"bufferedEther"`
	DepositableEther    *uint256.Int    `json:"depositableEther"`
	TransientBalance    *uint256.Int    `json:"transientBalance"`
	Stat                BeaconStat      `json:"beaconStat"`
	WithdrawalVault     *uint256.Int    `json:"withdrawalVaultBalance"`
	ELRewardsVault      *uint256.Int    `json:"elRewardsVaultBalance"`
	CoverShares         *uint256.Int    `json:"coverSharesRequestedToBurn"`
	NonCoverShares      *uint256.Int    `json:"nonCoverSharesRequestedToBurn"`
	Queue               QueueStatus     `json:"withdrawalQueue"`
	Limits              SanityLimits    `json:"limits"`
	Fees                FeeDistribution `json:"fees"`
	Stopped             bool            `json:"stopped"`
	LastReportTimestamp uint64          `json:"lastReportTimestamp"`
	Version             uint64          `json:"version"`
}
