package domain

import "github.com/holiman/uint256"

// tokenRebaseLimiter caps the growth of pooled ether per share within one
// report. It tracks a running total of pooled ether as inflows and outflows
// are applied, and clamps inflows once the maximum is reached.
type tokenRebaseLimiter struct {
	preTotalPooledEther     *uint256.Int
	preTotalShares          *uint256.Int
	currentTotalPooledEther *uint256.Int
	positiveRebaseLimit     uint64
	maxTotalPooledEther     *uint256.Int
}

func newTokenRebaseLimiter(rebaseLimit uint64, preTotalPooledEther, preTotalShares *uint256.Int) *tokenRebaseLimiter {
	if preTotalPooledEther.IsZero() {
		rebaseLimit = UnlimitedRebase
	}
	l := &tokenRebaseLimiter{
		preTotalPooledEther:     preTotalPooledEther.Clone(),
		preTotalShares:          preTotalShares.Clone(),
		currentTotalPooledEther: preTotalPooledEther.Clone(),
		positiveRebaseLimit:     rebaseLimit,
	}
	if rebaseLimit == UnlimitedRebase {
		l.maxTotalPooledEther = new(uint256.Int).SetAllOne()
	} else {
		l.maxTotalPooledEther = add(preTotalPooledEther, mulDiv(u64(rebaseLimit), preTotalPooledEther, u64(LimiterPrecisionBase)))
	}
	return l
}

func (l *tokenRebaseLimiter) unlimited() bool {
	return l.positiveRebaseLimit == UnlimitedRebase
}

func (l *tokenRebaseLimiter) isLimitReached() bool {
	return !l.currentTotalPooledEther.Lt(l.maxTotalPooledEther)
}

// decreaseEther lowers the running total. It saturates at zero.
func (l *tokenRebaseLimiter) decreaseEther(amount *uint256.Int) {
	if l.unlimited() {
		return
	}
	if amount.Gt(l.currentTotalPooledEther) {
		l.currentTotalPooledEther.Clear()
		return
	}
	l.currentTotalPooledEther.Sub(l.currentTotalPooledEther, amount)
}

// increaseEther raises the running total up to the cap and returns the part
// of amount that fit.
func (l *tokenRebaseLimiter) increaseEther(amount *uint256.Int) *uint256.Int {
	if l.unlimited() {
		return amount.Clone()
	}
	prev := l.currentTotalPooledEther.Clone()
	l.currentTotalPooledEther = minOf(add(prev, amount), l.maxTotalPooledEther)
	return sub(l.currentTotalPooledEther, prev)
}

// sharesToBurnLimit is the largest number of shares that can be burnt
// without pushing the share rate past the cap.
func (l *tokenRebaseLimiter) sharesToBurnLimit() *uint256.Int {
	if l.unlimited() {
		return l.preTotalShares.Clone()
	}
	if l.isLimitReached() {
		return zero()
	}
	rebaseLimitPlus1 := add(u64(l.positiveRebaseLimit), u64(LimiterPrecisionBase))
	pooledEtherRate := mulDiv(l.currentTotalPooledEther, u64(LimiterPrecisionBase), l.preTotalPooledEther)
	return mulDiv(l.preTotalShares, sub(rebaseLimitPlus1, pooledEtherRate), rebaseLimitPlus1)
}

// smoothing is the outcome of clamping a report to the positive rebase cap.
type smoothing struct {
	withdrawals           *uint256.Int
	elRewards             *uint256.Int
	simulatedSharesToBurn *uint256.Int
	sharesToBurn          *uint256.Int
}

// smoothInput holds the values the rebase limiter is applied to.
type smoothInput struct {
	preTotalPooledEther           *uint256.Int
	preTotalShares                *uint256.Int
	preCLBalance                  *uint256.Int
	postCLBalance                 *uint256.Int
	withdrawalVaultBalance        *uint256.Int
	elRewardsVaultBalance         *uint256.Int
	sharesRequestedToBurn         *uint256.Int
	etherToLockForWithdrawals     *uint256.Int
	newSharesToBurnForWithdrawals *uint256.Int
}

// smoothenTokenRebase applies the positive rebase cap. Inflows are admitted
// in order (CL delta, withdrawal vault, EL rewards vault) until the cap is
// hit; the rest stays in the vaults for a later report. Shares are burnt only
// up to what keeps the rate under the cap; the rest stays requested. It never
// fails.
func (l SanityLimits) smoothenTokenRebase(in smoothInput) smoothing {
	limiter := newTokenRebaseLimiter(l.MaxPositiveTokenRebase, in.preTotalPooledEther, in.preTotalShares)

	if in.postCLBalance.Lt(in.preCLBalance) {
		limiter.decreaseEther(sub(in.preCLBalance, in.postCLBalance))
	} else {
		limiter.increaseEther(sub(in.postCLBalance, in.preCLBalance))
	}

	var out smoothing
	out.withdrawals = limiter.increaseEther(in.withdrawalVaultBalance)
	out.elRewards = limiter.increaseEther(in.elRewardsVaultBalance)

	// Burn limit as if nothing were finalized; the simulated share rate the
	// oracle computed did not account for finalization.
	out.simulatedSharesToBurn = minOf(limiter.sharesToBurnLimit(), in.sharesRequestedToBurn)

	limiter.decreaseEther(in.etherToLockForWithdrawals)

	out.sharesToBurn = minOf(limiter.sharesToBurnLimit(), add(in.newSharesToBurnForWithdrawals, in.sharesRequestedToBurn))
	return out
}
