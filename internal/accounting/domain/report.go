package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// reportContext collects intermediate values of one report.
type reportContext struct {
	preTotalPooledEther *uint256.Int
	preTotalShares      *uint256.Int
	preCLValidators     uint64
	preCLBalance        *uint256.Int

	etherToLockOnWithdrawalQueue    *uint256.Int
	sharesToBurnFromWithdrawalQueue *uint256.Int
	finalize                        bool
	smoothing                       smoothing
}

// handleOracleReport applies report to s. now is the engine clock in unix
// seconds. On error s must be discarded: it may be partially modified.
func (s *State) handleOracleReport(report Report, now uint64) (*ReportResult, []Event, error) {
	report = report.normalized()
	if !report.inRange() {
		return nil, nil, ErrAmountOutOfRange
	}
	if report.ReportTimestamp > now {
		return nil, nil, fault(ErrInvalidReportTimestamp, u64(report.ReportTimestamp))
	}

	var events []Event
	rc := reportContext{
		preTotalPooledEther: s.TotalPooledEther(),
		preTotalShares:      s.Ledger.TotalShares(),
		preCLValidators:     s.Stat.BeaconValidators,
	}

	// CL state update.
	if err := checkCLValidators(s.Stat, report.CLValidators); err != nil {
		return nil, nil, err
	}
	rc.preCLBalance = preCLBalance(s.Stat, report.CLValidators)
	s.Stat.BeaconValidators = report.CLValidators
	s.Stat.BeaconBalance = report.PostCLBalance.Clone()
	events = append(events, CLValidatorsUpdated{
		ReportTimestamp:  report.ReportTimestamp,
		PreCLValidators:  rc.preCLValidators,
		PostCLValidators: report.CLValidators,
	})

	err := s.Limits.CheckAccountingReport(AccountingCheck{
		TimeElapsed:            report.TimeElapsed,
		PreCLBalance:           rc.preCLBalance,
		PostCLBalance:          report.PostCLBalance,
		WithdrawalVaultBalance: report.WithdrawalVaultBalance,
		ELRewardsVaultBalance:  report.ELRewardsVaultBalance,
		SharesRequestedToBurn:  report.SharesRequestedToBurn,
		PreCLValidators:        rc.preCLValidators,
		PostCLValidators:       report.CLValidators,
	}, Custody{
		WithdrawalVaultBalance: s.WithdrawalVault.Balance,
		ELRewardsVaultBalance:  s.ELRewardsVault.Balance,
		SharesRequestedToBurn:  s.Burner.Requested(),
	})
	if err != nil {
		return nil, nil, err
	}

	rc.etherToLockOnWithdrawalQueue = zero()
	rc.sharesToBurnFromWithdrawalQueue = zero()
	if len(report.WithdrawalFinalizationBatches) > 0 && !s.Queue.Paused {
		rc.finalize = true
		last := report.WithdrawalFinalizationBatches[len(report.WithdrawalFinalizationBatches)-1]
		if last <= s.Queue.LastRequestID() {
			if err := s.Limits.CheckWithdrawalQueueReport(s.Queue.Requests[last].Timestamp, report.ReportTimestamp); err != nil {
				return nil, nil, err
			}
		}
		rc.etherToLockOnWithdrawalQueue, rc.sharesToBurnFromWithdrawalQueue, err = s.Queue.Prefinalize(report.WithdrawalFinalizationBatches, report.SimulatedShareRate)
		if err != nil {
			return nil, nil, err
		}
		if !rc.sharesToBurnFromWithdrawalQueue.IsZero() {
			if err := s.requestBurn(s.Accounts.WithdrawalQueue, rc.sharesToBurnFromWithdrawalQueue, false); err != nil {
				return nil, nil, fmt.Errorf("moving finalized shares to burner: %w", err)
			}
		}
	}

	rc.smoothing = s.Limits.smoothenTokenRebase(smoothInput{
		preTotalPooledEther:           rc.preTotalPooledEther,
		preTotalShares:                rc.preTotalShares,
		preCLBalance:                  rc.preCLBalance,
		postCLBalance:                 report.PostCLBalance,
		withdrawalVaultBalance:        report.WithdrawalVaultBalance,
		elRewardsVaultBalance:         report.ELRewardsVaultBalance,
		sharesRequestedToBurn:         report.SharesRequestedToBurn,
		etherToLockForWithdrawals:     rc.etherToLockOnWithdrawalQueue,
		newSharesToBurnForWithdrawals: rc.sharesToBurnFromWithdrawalQueue,
	})

	distributed, finalized, err := s.collectRewardsAndProcessWithdrawals(report, &rc)
	if err != nil {
		return nil, nil, err
	}
	if finalized != nil {
		events = append(events, *finalized)
	}
	events = append(events, distributed)

	if !rc.smoothing.sharesToBurn.IsZero() {
		cover, nonCover, err := s.Burner.commit(rc.smoothing.sharesToBurn)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Ledger.Burn(s.Accounts.Burner, rc.smoothing.sharesToBurn); err != nil {
			return nil, nil, fmt.Errorf("burning shares: %w", err)
		}
		events = append(events, SharesBurnt{Account: s.Accounts.Burner, CoverShares: cover, NonCoverShares: nonCover})
	}

	sharesMinted, err := s.processRewards(rc, report.PostCLBalance)
	if err != nil {
		return nil, nil, err
	}

	s.Queue.onOracleReport(report.IsBunkerMode, report.ReportTimestamp)
	s.LastReportTimestamp = report.ReportTimestamp

	result := &ReportResult{
		PostTotalPooledEther:         s.TotalPooledEther(),
		PostTotalShares:              s.Ledger.TotalShares(),
		WithdrawalsWithdrawn:         rc.smoothing.withdrawals.Clone(),
		ELRewardsWithdrawn:           rc.smoothing.elRewards.Clone(),
		PreTotalPooledEther:          rc.preTotalPooledEther,
		PreTotalShares:               rc.preTotalShares,
		PreCLBalance:                 rc.preCLBalance,
		SharesMintedAsFees:           sharesMinted,
		SharesBurnt:                  rc.smoothing.sharesToBurn.Clone(),
		EtherLockedOnWithdrawalQueue: rc.etherToLockOnWithdrawalQueue.Clone(),
		LastFinalizedRequestID:       s.Queue.LastFinalizedRequestID,
	}
	events = append(events, TokenRebased{
		ReportTimestamp:    report.ReportTimestamp,
		TimeElapsed:        report.TimeElapsed,
		PreTotalShares:     rc.preTotalShares,
		PreTotalEther:      rc.preTotalPooledEther,
		PostTotalShares:    result.PostTotalShares,
		PostTotalEther:     result.PostTotalPooledEther,
		SharesMintedAsFees: sharesMinted,
	})

	if len(report.WithdrawalFinalizationBatches) > 0 {
		err := s.Limits.CheckSimulatedShareRate(
			result.PostTotalPooledEther,
			result.PostTotalShares,
			rc.etherToLockOnWithdrawalQueue,
			sub(rc.smoothing.sharesToBurn, rc.smoothing.simulatedSharesToBurn),
			report.SimulatedShareRate,
		)
		if err != nil {
			return nil, nil, err
		}
	}

	result.Events = events
	return result, events, nil
}

// collectRewardsAndProcessWithdrawals drains the smoothed amounts from the
// vaults, locks ether for finalized requests and updates the buffer.
func (s *State) collectRewardsAndProcessWithdrawals(report Report, rc *reportContext) (ETHDistributed, *WithdrawalsFinalized, error) {
	sm := rc.smoothing
	s.WithdrawalVault.withdraw(sm.withdrawals)
	s.ELRewardsVault.withdraw(sm.elRewards)

	available := add(add(s.BufferedEther, sm.withdrawals), sm.elRewards)

	var finalized *WithdrawalsFinalized
	if rc.finalize {
		if rc.etherToLockOnWithdrawalQueue.Gt(available) {
			return ETHDistributed{}, nil, fault(ErrNotEnoughEtherToFinalize, available, rc.etherToLockOnWithdrawalQueue)
		}
		from := s.Queue.LastFinalizedRequestID + 1
		if err := s.Queue.finalize(report.WithdrawalFinalizationBatches, report.SimulatedShareRate, rc.etherToLockOnWithdrawalQueue); err != nil {
			return ETHDistributed{}, nil, err
		}
		finalized = &WithdrawalsFinalized{
			FromRequestID:     from,
			ToRequestID:       s.Queue.LastFinalizedRequestID,
			AmountOfETHLocked: rc.etherToLockOnWithdrawalQueue.Clone(),
			SharesToBurn:      rc.sharesToBurnFromWithdrawalQueue.Clone(),
			Timestamp:         report.ReportTimestamp,
		}
	}

	s.BufferedEther = sub(available, rc.etherToLockOnWithdrawalQueue)

	return ETHDistributed{
		ReportTimestamp:                report.ReportTimestamp,
		PreCLBalance:                   rc.preCLBalance.Clone(),
		PostCLBalance:                  report.PostCLBalance.Clone(),
		WithdrawalsWithdrawn:           sm.withdrawals.Clone(),
		ExecutionLayerRewardsWithdrawn: sm.elRewards.Clone(),
		PostBufferedEther:              s.BufferedEther.Clone(),
	}, finalized, nil
}

// processRewards mints fee shares when the CL balance, counting withdrawn
// ether, grew over the report. Nothing is minted on a non-profitable report.
func (s *State) processRewards(rc reportContext, postCLBalance *uint256.Int) (*uint256.Int, error) {
	postCLTotal := add(postCLBalance, rc.smoothing.withdrawals)
	if !postCLTotal.Gt(rc.preCLBalance) {
		return zero(), nil
	}
	rewards := add(sub(postCLTotal, rc.preCLBalance), rc.smoothing.elRewards)
	return s.distributeFee(rc.preTotalPooledEther, rc.preTotalShares, rewards)
}

// distributeFee mints shares worth totalFeeBP of rewards, valued at the
// pooled ether including rewards, and splits them between module and treasury.
func (s *State) distributeFee(preTotalPooledEther, preTotalShares, rewards *uint256.Int) (*uint256.Int, error) {
	totalFee := u64(s.Fees.TotalFeeBP())
	if totalFee.IsZero() || rewards.IsZero() {
		return zero(), nil
	}
	withRewards := add(preTotalPooledEther, rewards)
	feeEther := mul(rewards, totalFee)
	denominator := sub(mul(withRewards, u64(MaxBasisPoints)), feeEther)
	minted := mulDiv(feeEther, preTotalShares, denominator)
	if minted.IsZero() {
		return minted, nil
	}

	moduleShares := mulDiv(minted, u64(s.Fees.ModuleFeeBP), totalFee)
	treasuryShares := sub(minted, moduleShares)
	if err := s.Ledger.Mint(s.Fees.Module, moduleShares); err != nil {
		return nil, fmt.Errorf("minting module fee: %w", err)
	}
	if err := s.Ledger.Mint(s.Fees.Treasury, treasuryShares); err != nil {
		return nil, fmt.Errorf("minting treasury fee: %w", err)
	}
	return minted, nil
}
