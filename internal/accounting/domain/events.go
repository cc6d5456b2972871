package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Event is a structured notification produced by a committed operation.
type Event interface {
	EventName() string
}

// CLValidatorsUpdated is emitted when a report changes the validator count.
type CLValidatorsUpdated struct {
	ReportTimestamp  uint64 `json:"reportTimestamp"`
	PreCLValidators  uint64 `json:"preCLValidators"`
	PostCLValidators uint64 `json:"postCLValidators"`
}

// ETHDistributed describes where the ether collected by a report went.
type ETHDistributed struct {
	ReportTimestamp                uint64       `json:"reportTimestamp"`
	PreCLBalance                   *uint256.Int `json:"preCLBalance"`
	PostCLBalance                  *uint256.Int `json:"postCLBalance"`
	WithdrawalsWithdrawn           *uint256.Int `json:"withdrawalsWithdrawn"`
	ExecutionLayerRewardsWithdrawn *uint256.Int `json:"executionLayerRewardsWithdrawn"`
	PostBufferedEther              *uint256.Int `json:"postBufferedEther"`
}

// TokenRebased summarizes the share rate change of a report.
type TokenRebased struct {
	ReportTimestamp    uint64       `json:"reportTimestamp"`
	TimeElapsed        uint64       `json:"timeElapsed"`
	PreTotalShares     *uint256.Int `json:"preTotalShares"`
	PreTotalEther      *uint256.Int `json:"preTotalEther"`
	PostTotalShares    *uint256.Int `json:"postTotalShares"`
	PostTotalEther     *uint256.Int `json:"postTotalEther"`
	SharesMintedAsFees *uint256.Int `json:"sharesMintedAsFees"`
}

// SharesBurnt is emitted when pending burn requests are committed.
type SharesBurnt struct {
	Account        common.Address `json:"account"`
	CoverShares    *uint256.Int   `json:"coverShares"`
	NonCoverShares *uint256.Int   `json:"nonCoverShares"`
}

// WithdrawalsFinalized marks a finalized range of withdrawal requests.
type WithdrawalsFinalized struct {
	FromRequestID     uint64       `json:"fromRequestId"`
	ToRequestID       uint64       `json:"toRequestId"`
	AmountOfETHLocked *uint256.Int `json:"amountOfETHLocked"`
	SharesToBurn      *uint256.Int `json:"sharesToBurn"`
	Timestamp         uint64       `json:"timestamp"`
}

// Submitted records ether staked by a holder.
type Submitted struct {
	Holder common.Address `json:"holder"`
	Amount *uint256.Int   `json:"amount"`
	Shares *uint256.Int   `json:"shares"`
}

// Unbuffered records buffered ether sent to new validators.
type Unbuffered struct {
	Validators          uint64       `json:"validators"`
	Amount              *uint256.Int `json:"amount"`
	DepositedValidators uint64       `json:"depositedValidators"`
}

// WithdrawalRequested records a new withdrawal request.
type WithdrawalRequested struct {
	RequestID      uint64         `json:"requestId"`
	Owner          common.Address `json:"owner"`
	AmountOfStETH  *uint256.Int   `json:"amountOfStETH"`
	AmountOfShares *uint256.Int   `json:"amountOfShares"`
}

// WithdrawalClaimed records ether paid out for a finalized request.
type WithdrawalClaimed struct {
	RequestID   uint64         `json:"requestId"`
	Owner       common.Address `json:"owner"`
	AmountOfETH *uint256.Int   `json:"amountOfETH"`
}

// BurnRequested records shares handed to the burner.
type BurnRequested struct {
	Account common.Address `json:"account"`
	Shares  *uint256.Int   `json:"shares"`
	Cover   bool           `json:"cover"`
}

// VaultFunded records ether arriving in a custody vault.
type VaultFunded struct {
	Vault  VaultKind    `json:"vault"`
	Amount *uint256.Int `json:"amount"`
}

// LimitsSet records a governance change of the sanity limits.
type LimitsSet struct {
	Limits SanityLimits `json:"limits"`
}

// FeeDistributionSet records a governance change of the fee split.
type FeeDistributionSet struct {
	Fees FeeDistribution `json:"fees"`
}

// ProtocolStateChanged records a stop, resume, queue pause or queue resume.
type ProtocolStateChanged struct {
	Action string `json:"action"`
}

func (CLValidatorsUpdated) EventName() string  { return "CLValidatorsUpdated" }
func (ETHDistributed) EventName() string       { return "ETHDistributed" }
func (TokenRebased) EventName() string         { return "TokenRebased" }
func (SharesBurnt) EventName() string          { return "SharesBurnt" }
func (WithdrawalsFinalized) EventName() string { return "WithdrawalsFinalized" }
func (Submitted) EventName() string            { return "Submitted" }
func (Unbuffered) EventName() string           { return "Unbuffered" }
func (WithdrawalRequested) EventName() string  { return "WithdrawalRequested" }
func (WithdrawalClaimed) EventName() string    { return "WithdrawalClaimed" }
func (BurnRequested) EventName() string        { return "BurnRequested" }
func (VaultFunded) EventName() string          { return "VaultFunded" }
func (LimitsSet) EventName() string            { return "LimitsSet" }
func (FeeDistributionSet) EventName() string   { return "FeeDistributionSet" }
func (e ProtocolStateChanged) EventName() string {
	return e.Action
}
