package domain

import "github.com/holiman/uint256"

// AccountingCheck carries the report values the sanity checker inspects,
// together with the pre-report CL balance derived from the beacon stat.
type AccountingCheck struct {
	TimeElapsed            uint64
	PreCLBalance           *uint256.Int
	PostCLBalance          *uint256.Int
	WithdrawalVaultBalance *uint256.Int
	ELRewardsVaultBalance  *uint256.Int
	SharesRequestedToBurn  *uint256.Int
	PreCLValidators        uint64
	PostCLValidators       uint64
}

// Custody is what the pool actually holds, as opposed to what was reported.
type Custody struct {
	WithdrawalVaultBalance *uint256.Int
	ELRewardsVaultBalance  *uint256.Int
	SharesRequestedToBurn  *uint256.Int
}

// checkCLValidators verifies the reported validator count against the stat.
func checkCLValidators(stat BeaconStat, clValidators uint64) error {
	if clValidators > stat.DepositedValidators {
		return fault(ErrReportedMoreDeposited, u64(clValidators), u64(stat.DepositedValidators))
	}
	if clValidators < stat.BeaconValidators {
		return fault(ErrReportedLessValidators, u64(clValidators), u64(stat.BeaconValidators))
	}
	return nil
}

// preCLBalance is the stored beacon balance plus a deposit for every
// validator that appeared since the previous report.
func preCLBalance(stat BeaconStat, clValidators uint64) *uint256.Int {
	appeared := clValidators - stat.BeaconValidators
	return add(stat.BeaconBalance, mul(u64(appeared), depositSize))
}

// CheckAccountingReport runs the custody and bound checks in order and
// returns the first violation.
func (l SanityLimits) CheckAccountingReport(in AccountingCheck, actual Custody) error {
	if in.WithdrawalVaultBalance.Gt(actual.WithdrawalVaultBalance) {
		return fault(ErrIncorrectWithdrawalsVault, actual.WithdrawalVaultBalance)
	}
	if in.ELRewardsVaultBalance.Gt(actual.ELRewardsVaultBalance) {
		return fault(ErrIncorrectELRewardsVault, actual.ELRewardsVaultBalance)
	}
	if in.SharesRequestedToBurn.Gt(actual.SharesRequestedToBurn) {
		return fault(ErrIncorrectSharesRequestedToBurn, actual.SharesRequestedToBurn)
	}
	if err := l.checkOneOffCLBalanceDecrease(in.PreCLBalance, add(in.PostCLBalance, in.WithdrawalVaultBalance)); err != nil {
		return err
	}
	if err := l.checkAnnualBalanceIncrease(in.PreCLBalance, in.PostCLBalance, in.TimeElapsed); err != nil {
		return err
	}
	if in.PostCLValidators > in.PreCLValidators {
		return l.checkAppearedValidatorsChurn(in.PostCLValidators-in.PreCLValidators, in.TimeElapsed)
	}
	return nil
}

func (l SanityLimits) checkOneOffCLBalanceDecrease(pre, unifiedPost *uint256.Int) error {
	if !pre.Gt(unifiedPost) {
		return nil
	}
	decreaseBP := mulDiv(u64(MaxBasisPoints), sub(pre, unifiedPost), pre)
	if decreaseBP.Gt(u64(l.OneOffCLBalanceDecreaseBPLimit)) {
		return fault(ErrIncorrectCLBalanceDecrease, decreaseBP)
	}
	return nil
}

func (l SanityLimits) checkAnnualBalanceIncrease(pre, post *uint256.Int, timeElapsed uint64) error {
	if pre.IsZero() {
		pre = oneGwei
	}
	if !pre.Lt(post) {
		return nil
	}
	if timeElapsed == 0 {
		timeElapsed = defaultTimeElapsed
	}
	increaseBP := mulDiv(u64(secondsPerYear*MaxBasisPoints), sub(post, pre), pre)
	annualBP := new(uint256.Int).Div(increaseBP, u64(timeElapsed))
	if annualBP.Gt(u64(l.AnnualBalanceIncreaseBPLimit)) {
		return fault(ErrIncorrectCLBalanceIncrease, annualBP)
	}
	return nil
}

func (l SanityLimits) checkAppearedValidatorsChurn(appeared, timeElapsed uint64) error {
	if timeElapsed == 0 {
		timeElapsed = defaultTimeElapsed
	}
	limit := mulDiv(u64(l.ChurnValidatorsPerDayLimit), u64(timeElapsed), u64(secondsPerDay))
	if u64(appeared).Gt(limit) {
		return fault(ErrIncorrectAppearedValidators, u64(appeared))
	}
	return nil
}

// CheckWithdrawalQueueReport rejects finalization of requests made less than
// RequestTimestampMargin seconds before the report.
func (l SanityLimits) CheckWithdrawalQueueReport(requestTimestamp, reportTimestamp uint64) error {
	if reportTimestamp < l.RequestTimestampMargin || requestTimestamp > reportTimestamp-l.RequestTimestampMargin {
		return fault(ErrIncorrectRequestFinalization, u64(requestTimestamp))
	}
	return nil
}

// CheckSimulatedShareRate compares the share rate the oracle simulated with
// the one the report actually produced. Ether locked for withdrawals and the
// shares burnt for them are added back so both rates describe the same pool.
func (l SanityLimits) CheckSimulatedShareRate(postTotalEther, postTotalShares, etherLocked, sharesBurntForWithdrawals, simulated *uint256.Int) error {
	actual := mulDiv(
		add(postTotalEther, etherLocked),
		shareRatePrecision,
		add(postTotalShares, sharesBurntForWithdrawals),
	)
	if actual.IsZero() {
		return fault(ErrActualShareRateIsZero)
	}

	var diff *uint256.Int
	if simulated.Gt(actual) {
		diff = sub(simulated, actual)
	} else {
		diff = sub(actual, simulated)
	}
	deviationBP := mulDiv(u64(MaxBasisPoints), diff, actual)
	if deviationBP.Gt(u64(l.SimulatedShareRateDeviationBPLimit)) {
		return fault(ErrIncorrectSimulatedShareRate, simulated, actual)
	}
	return nil
}
