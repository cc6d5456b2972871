package metrics

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// PoolState is the subset of pool totals exported as gauges. Amounts are in
// wei, ShareRate is scaled by 1e27.
type PoolState struct {
	TotalPooledEther *uint256.Int
	BufferedEther    *uint256.Int
	UnfinalizedStETH *uint256.Int
	LockedEther      *uint256.Int
	WithdrawalVault  *uint256.Int
	ELRewardsVault   *uint256.Int
	TotalShares      *uint256.Int
	ShareRate        *uint256.Int
	Version          uint64
}

// ReportProcessed records an oracle report. mode is "submit" or "simulate",
// result is "accepted" or "rejected", code is the fault code when rejected.
func ReportProcessed(mode, result, code string, d time.Duration) {
	if !enabled {
		return
	}
	reportsTotal.WithLabelValues(mode, result, code).Inc()
	reportDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RebaseLimited records that the limiter deferred part of source.
func RebaseLimited(source string) {
	if !enabled {
		return
	}
	rebaseLimitedTotal.WithLabelValues(source).Inc()
}

// Operation records an engine operation.
func Operation(operation, status string) {
	if !enabled {
		return
	}
	operationsTotal.WithLabelValues(operation, status).Inc()
}

// Withdrawals records n withdrawal requests reaching stage ("requested",
// "finalized" or "claimed").
func Withdrawals(stage string, n uint64) {
	if !enabled || n == 0 {
		return
	}
	withdrawalsTotal.WithLabelValues(stage).Add(float64(n))
}

// Pool updates the pool gauges.
func Pool(p PoolState) {
	if !enabled {
		return
	}
	poolEther.WithLabelValues("total_pooled").Set(scaled(p.TotalPooledEther, 18))
	poolEther.WithLabelValues("buffered").Set(scaled(p.BufferedEther, 18))
	poolEther.WithLabelValues("unfinalized_steth").Set(scaled(p.UnfinalizedStETH, 18))
	poolEther.WithLabelValues("locked_for_withdrawals").Set(scaled(p.LockedEther, 18))
	poolEther.WithLabelValues("withdrawal_vault").Set(scaled(p.WithdrawalVault, 18))
	poolEther.WithLabelValues("el_rewards_vault").Set(scaled(p.ELRewardsVault, 18))
	poolShares.Set(scaled(p.TotalShares, 18))
	poolShareRate.Set(scaled(p.ShareRate, 27))
	poolVersion.Set(float64(p.Version))
}

// scaled converts a fixed-point integer with the given decimals to a float.
func scaled(v *uint256.Int, decimals int32) float64 {
	if v == nil {
		return 0
	}
	return decimal.NewFromBigInt(v.ToBig(), -decimals).InexactFloat64()
}
