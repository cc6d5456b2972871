package domain

import (
	"errors"
	"strings"

	"github.com/holiman/uint256"
)

// ErrorClass groups report faults by what went wrong.
type ErrorClass string

// Error classes.
const (
	ClassAuthorization  ErrorClass = "authorization"
	ClassConsistency    ErrorClass = "consistency"
	ClassBound          ErrorClass = "bound"
	ClassReconciliation ErrorClass = "reconciliation"
)

// ReportError is a named, parameterized fault. Two ReportErrors match with
// errors.Is when their codes are equal, so the exported sentinels below can be
// used to test for a fault regardless of the values it carries.
type ReportError struct {
	Class  ErrorClass
	Code   string
	Values []*uint256.Int
}

func (e *ReportError) Error() string {
	if len(e.Values) == 0 {
		return e.Code
	}
	parts := make([]string, len(e.Values))
	for i, v := range e.Values {
		parts[i] = v.Dec()
	}
	return e.Code + "(" + strings.Join(parts, ", ") + ")"
}

// Is reports whether target is a ReportError with the same code.
func (e *ReportError) Is(target error) bool {
	var t *ReportError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func fault(sentinel *ReportError, values ...*uint256.Int) *ReportError {
	vs := make([]*uint256.Int, len(values))
	for i, v := range values {
		vs[i] = v.Clone()
	}
	return &ReportError{Class: sentinel.Class, Code: sentinel.Code, Values: vs}
}

// Authorization faults.
var (
	ErrAppAuthFailed     = &ReportError{Class: ClassAuthorization, Code: "APP_AUTH_FAILED"}
	ErrContractIsStopped = &ReportError{Class: ClassAuthorization, Code: "CONTRACT_IS_STOPPED"}
)

// Consistency faults.
var (
	ErrReportedMoreDeposited          = &ReportError{Class: ClassConsistency, Code: "REPORTED_MORE_DEPOSITED"}
	ErrReportedLessValidators         = &ReportError{Class: ClassConsistency, Code: "REPORTED_LESS_VALIDATORS"}
	ErrInvalidReportTimestamp         = &ReportError{Class: ClassConsistency, Code: "INVALID_REPORT_TIMESTAMP"}
	ErrIncorrectWithdrawalsVault      = &ReportError{Class: ClassConsistency, Code: "IncorrectWithdrawalsVaultBalance"}
	ErrIncorrectELRewardsVault        = &ReportError{Class: ClassConsistency, Code: "IncorrectELRewardsVaultBalance"}
	ErrIncorrectSharesRequestedToBurn = &ReportError{Class: ClassConsistency, Code: "IncorrectSharesRequestedToBurn"}
	ErrIncorrectRequestFinalization   = &ReportError{Class: ClassConsistency, Code: "IncorrectRequestFinalization"}
	ErrZeroShareRate                  = &ReportError{Class: ClassConsistency, Code: "ZeroShareRate"}
	ErrEmptyBatches                   = &ReportError{Class: ClassConsistency, Code: "EmptyBatches"}
	ErrInvalidRequestID               = &ReportError{Class: ClassConsistency, Code: "InvalidRequestId"}
	ErrBatchesAreNotSorted            = &ReportError{Class: ClassConsistency, Code: "BatchesAreNotSorted"}
	ErrTooMuchEtherToFinalize         = &ReportError{Class: ClassConsistency, Code: "TooMuchEtherToFinalize"}
	ErrNotEnoughEtherToFinalize       = &ReportError{Class: ClassConsistency, Code: "NotEnoughEtherToFinalize"}
	ErrBurnAmountExceedsActual        = &ReportError{Class: ClassConsistency, Code: "BurnAmountExceedsActual"}
)

// Bound faults.
var (
	ErrIncorrectCLBalanceDecrease  = &ReportError{Class: ClassBound, Code: "IncorrectCLBalanceDecrease"}
	ErrIncorrectCLBalanceIncrease  = &ReportError{Class: ClassBound, Code: "IncorrectCLBalanceIncrease"}
	ErrIncorrectAppearedValidators = &ReportError{Class: ClassBound, Code: "IncorrectAppearedValidators"}
)

// Reconciliation faults.
var (
	ErrActualShareRateIsZero       = &ReportError{Class: ClassReconciliation, Code: "ActualShareRateIsZero"}
	ErrIncorrectSimulatedShareRate = &ReportError{Class: ClassReconciliation, Code: "IncorrectSimulatedShareRate"}
)

// Errors returned by staking, queue and governance operations.
var (
	ErrZeroAmount              = errors.New("amount must be positive")
	ErrAmountOutOfRange        = errors.New("amount out of range")
	ErrZeroAddress             = errors.New("zero address")
	ErrInsufficientShares      = errors.New("insufficient shares")
	ErrInsufficientBuffer      = errors.New("not enough depositable ether")
	ErrEmptyPool               = errors.New("pool holds shares but no ether")
	ErrQueuePaused             = errors.New("withdrawal queue is paused")
	ErrQueueAlreadyPaused      = errors.New("withdrawal queue is already paused")
	ErrQueueNotPaused          = errors.New("withdrawal queue is not paused")
	ErrRequestAmountTooSmall   = errors.New("withdrawal request amount too small")
	ErrRequestAmountTooLarge   = errors.New("withdrawal request amount too large")
	ErrRequestNotFound         = errors.New("withdrawal request not found")
	ErrRequestNotFinalized     = errors.New("withdrawal request not finalized")
	ErrRequestAlreadyClaimed   = errors.New("withdrawal request already claimed")
	ErrNotRequestOwner         = errors.New("caller is not the request owner")
	ErrUnknownVault            = errors.New("unknown vault")
	ErrInvalidLimits           = errors.New("invalid sanity limits")
	ErrInvalidFeeDistribution  = errors.New("invalid fee distribution")
	ErrAlreadyStopped          = errors.New("protocol already stopped")
	ErrNotStopped              = errors.New("protocol is not stopped")
	ErrInvalidBatchCalculation = errors.New("invalid finalization batch parameters")
)

// IsReportError reports whether err is a coded fault and returns it.
func IsReportError(err error) (*ReportError, bool) {
	var re *ReportError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
