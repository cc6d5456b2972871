package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Operation names recorded in the journal.
const (
	OpHandleOracleReport = "handleOracleReport"
	OpSubmit             = "submit"
	OpDeposit            = "deposit"
	OpRequestWithdrawals = "requestWithdrawals"
	OpClaimWithdrawal    = "claimWithdrawal"
	OpRequestBurn        = "requestBurn"
	OpFundVault          = "fundVault"
	OpSetSanityLimits    = "setSanityLimits"
	OpSetFees            = "setFeeDistribution"
	OpStop               = "stop"
	OpResume             = "resume"
	OpPauseQueue         = "pauseWithdrawalQueue"
	OpResumeQueue        = "resumeWithdrawalQueue"
)

// JournalEntry is one committed change.
type JournalEntry struct {
	ID        string
	Operation string
	CallerID  string
	Timestamp time.Time
	State     *State
	Report    *Report
	Result    *ReportResult
	Events    []Event
}

// Journal persists committed changes. If Commit fails the change is
// discarded and the engine keeps its previous state.
type Journal interface {
	Commit(ctx context.Context, entry *JournalEntry) error
}

type nopJournal struct{}

func (nopJournal) Commit(context.Context, *JournalEntry) error { return nil }

// Engine owns the pool state. Mutations are serialized by one lock and
// applied all-or-nothing; reads and dry runs share the lock.
type Engine struct {
	mu      sync.RWMutex
	state   *State
	journal Journal
	now     func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithJournal sets where committed changes are persisted.
func WithJournal(j Journal) EngineOption {
	return func(e *Engine) { e.journal = j }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over state.
func NewEngine(state *State, opts ...EngineOption) *Engine {
	e := &Engine{
		state:   state,
		journal: nopJournal{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// txn is the working copy of one mutation.
type txn struct {
	id     string
	state  *State
	now    uint64
	events []Event
	report *Report
	result *ReportResult
}

func (t *txn) emit(events ...Event) {
	t.events = append(t.events, events...)
}

// mutate runs fn against a clone of the state and swaps the clone in after
// the journal accepted it.
func (e *Engine) mutate(ctx context.Context, op string, caller Caller, role Role, whenRunning bool, fn func(t *txn) error) error {
	if !caller.Has(role) {
		return ErrAppAuthFailed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if whenRunning && e.state.Stopped {
		return ErrContractIsStopped
	}

	now := e.now()
	t := &txn{id: generateID(), state: e.state.Clone(), now: uint64(now.Unix())}
	t.state.Version++
	if err := fn(t); err != nil {
		return err
	}

	err := e.journal.Commit(ctx, &JournalEntry{
		ID:        t.id,
		Operation: op,
		CallerID:  caller.ID,
		Timestamp: now,
		State:     t.state,
		Report:    t.report,
		Result:    t.result,
		Events:    t.events,
	})
	if err != nil {
		return fmt.Errorf("committing %s: %w", op, err)
	}
	e.state = t.state
	return nil
}

// view runs fn with the read lock held.
func (e *Engine) view(fn func(s *State)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(e.state)
}

// HandleOracleReport validates and applies a report. Either every effect is
// committed or none is.
func (e *Engine) HandleOracleReport(ctx context.Context, caller Caller, report Report) (*ReportResult, error) {
	var result *ReportResult
	err := e.mutate(ctx, OpHandleOracleReport, caller, RoleOracle, true, func(t *txn) error {
		r, events, err := t.state.handleOracleReport(report, t.now)
		if err != nil {
			return err
		}
		r.ReportID, r.Version = t.id, t.state.Version
		normalized := report.normalized()
		t.report, t.result = &normalized, r
		t.emit(events...)
		result = r
		return nil
	})
	return result, err
}

// SimulateOracleReport runs a report against a copy of the state and returns
// what HandleOracleReport would. Nothing is committed.
func (e *Engine) SimulateOracleReport(ctx context.Context, report Report) (*ReportResult, error) {
	e.mu.RLock()
	if e.state.Stopped {
		e.mu.RUnlock()
		return nil, ErrContractIsStopped
	}
	clone := e.state.Clone()
	e.mu.RUnlock()

	result, _, err := clone.handleOracleReport(report, uint64(e.now().Unix()))
	return result, err
}

// CheckReport runs the validator count and accounting sanity checks only.
func (e *Engine) CheckReport(ctx context.Context, report Report) error {
	var err error
	e.view(func(s *State) {
		report = report.normalized()
		if err = checkCLValidators(s.Stat, report.CLValidators); err != nil {
			return
		}
		err = s.Limits.CheckAccountingReport(AccountingCheck{
			TimeElapsed:            report.TimeElapsed,
			PreCLBalance:           preCLBalance(s.Stat, report.CLValidators),
			PostCLBalance:          report.PostCLBalance,
			WithdrawalVaultBalance: report.WithdrawalVaultBalance,
			ELRewardsVaultBalance:  report.ELRewardsVaultBalance,
			SharesRequestedToBurn:  report.SharesRequestedToBurn,
			PreCLValidators:        s.Stat.BeaconValidators,
			PostCLValidators:       report.CLValidators,
		}, Custody{
			WithdrawalVaultBalance: s.WithdrawalVault.Balance,
			ELRewardsVaultBalance:  s.ELRewardsVault.Balance,
			SharesRequestedToBurn:  s.Burner.Requested(),
		})
	})
	return err
}

// Submit stakes ether for holder and returns the minted shares.
func (e *Engine) Submit(ctx context.Context, caller Caller, holder common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var shares *uint256.Int
	err := e.mutate(ctx, OpSubmit, caller, RoleStaker, true, func(t *txn) error {
		s, err := t.state.submit(holder, amount)
		if err != nil {
			return err
		}
		shares = s
		t.emit(Submitted{Holder: holder, Amount: amount.Clone(), Shares: s.Clone()})
		return nil
	})
	return shares, err
}

// Deposit moves buffered ether to the given number of new validators.
func (e *Engine) Deposit(ctx context.Context, caller Caller, validators uint64) error {
	return e.mutate(ctx, OpDeposit, caller, RoleDepositor, true, func(t *txn) error {
		amount, err := t.state.deposit(validators)
		if err != nil {
			return err
		}
		t.emit(Unbuffered{Validators: validators, Amount: amount, DepositedValidators: t.state.Stat.DepositedValidators})
		return nil
	})
}

// RequestWithdrawals queues one request per amount and returns their ids.
func (e *Engine) RequestWithdrawals(ctx context.Context, caller Caller, owner common.Address, amounts []*uint256.Int) ([]uint64, error) {
	var ids []uint64
	err := e.mutate(ctx, OpRequestWithdrawals, caller, RoleStaker, true, func(t *txn) error {
		reqs, err := t.state.requestWithdrawals(owner, amounts, t.now)
		if err != nil {
			return err
		}
		for _, r := range reqs {
			ids = append(ids, r.RequestID)
			t.emit(r)
		}
		return nil
	})
	return ids, err
}

// ClaimWithdrawal pays out a finalized request and returns the ether amount.
func (e *Engine) ClaimWithdrawal(ctx context.Context, caller Caller, owner common.Address, id uint64) (*uint256.Int, error) {
	var amount *uint256.Int
	err := e.mutate(ctx, OpClaimWithdrawal, caller, RoleStaker, false, func(t *txn) error {
		if t.state.Queue.Paused {
			return ErrQueuePaused
		}
		a, err := t.state.Queue.claim(owner, id)
		if err != nil {
			return err
		}
		amount = a
		t.emit(WithdrawalClaimed{RequestID: id, Owner: owner, AmountOfETH: a.Clone()})
		return nil
	})
	return amount, err
}

// RequestBurn hands owner's shares to the burner.
func (e *Engine) RequestBurn(ctx context.Context, caller Caller, owner common.Address, shares *uint256.Int, cover bool) error {
	return e.mutate(ctx, OpRequestBurn, caller, RoleBurner, true, func(t *txn) error {
		if err := t.state.requestBurn(owner, shares, cover); err != nil {
			return err
		}
		t.emit(BurnRequested{Account: owner, Shares: shares.Clone(), Cover: cover})
		return nil
	})
}

// FundVault records ether arriving in a custody vault.
func (e *Engine) FundVault(ctx context.Context, caller Caller, kind VaultKind, amount *uint256.Int) error {
	return e.mutate(ctx, OpFundVault, caller, RoleVault, false, func(t *txn) error {
		if err := t.state.fundVault(kind, amount); err != nil {
			return err
		}
		t.emit(VaultFunded{Vault: kind, Amount: amount.Clone()})
		return nil
	})
}

// SetSanityLimits replaces the sanity limits.
func (e *Engine) SetSanityLimits(ctx context.Context, caller Caller, limits SanityLimits) error {
	return e.mutate(ctx, OpSetSanityLimits, caller, RoleGovernance, false, func(t *txn) error {
		if err := limits.Validate(); err != nil {
			return err
		}
		t.state.Limits = limits
		t.emit(LimitsSet{Limits: limits})
		return nil
	})
}

// SetFeeDistribution replaces the fee split.
func (e *Engine) SetFeeDistribution(ctx context.Context, caller Caller, fees FeeDistribution) error {
	return e.mutate(ctx, OpSetFees, caller, RoleGovernance, false, func(t *txn) error {
		if err := fees.Validate(); err != nil {
			return err
		}
		t.state.Fees = fees
		t.emit(FeeDistributionSet{Fees: fees})
		return nil
	})
}

// Stop halts reports and staking operations.
func (e *Engine) Stop(ctx context.Context, caller Caller) error {
	return e.mutate(ctx, OpStop, caller, RoleGovernance, false, func(t *txn) error {
		if t.state.Stopped {
			return ErrAlreadyStopped
		}
		t.state.Stopped = true
		t.emit(ProtocolStateChanged{Action: "Stopped"})
		return nil
	})
}

// Resume lifts a Stop.
func (e *Engine) Resume(ctx context.Context, caller Caller) error {
	return e.mutate(ctx, OpResume, caller, RoleGovernance, false, func(t *txn) error {
		if !t.state.Stopped {
			return ErrNotStopped
		}
		t.state.Stopped = false
		t.emit(ProtocolStateChanged{Action: "Resumed"})
		return nil
	})
}

// PauseWithdrawalQueue stops new requests, claims and finalization.
func (e *Engine) PauseWithdrawalQueue(ctx context.Context, caller Caller) error {
	return e.mutate(ctx, OpPauseQueue, caller, RoleGovernance, false, func(t *txn) error {
		if t.state.Queue.Paused {
			return ErrQueueAlreadyPaused
		}
		t.state.Queue.Paused = true
		t.emit(ProtocolStateChanged{Action: "WithdrawalQueuePaused"})
		return nil
	})
}

// ResumeWithdrawalQueue lifts a queue pause.
func (e *Engine) ResumeWithdrawalQueue(ctx context.Context, caller Caller) error {
	return e.mutate(ctx, OpResumeQueue, caller, RoleGovernance, false, func(t *txn) error {
		if !t.state.Queue.Paused {
			return ErrQueueNotPaused
		}
		t.state.Queue.Paused = false
		t.emit(ProtocolStateChanged{Action: "WithdrawalQueueResumed"})
		return nil
	})
}

// Overview returns a summary of the pool.
func (e *Engine) Overview() Overview {
	var o Overview
	e.view(func(s *State) { o = s.Overview() })
	return o
}

// Holder returns the balance of addr.
func (e *Engine) Holder(addr common.Address) Holder {
	var h Holder
	e.view(func(s *State) { h = s.Holder(addr) })
	return h
}

// Holders returns every holder with a non-zero share balance.
func (e *Engine) Holders() []Holder {
	var out []Holder
	e.view(func(s *State) {
		for _, addr := range s.Ledger.Holders() {
			out = append(out, s.Holder(addr))
		}
	})
	return out
}

// WithdrawalRequest returns the status of request id.
func (e *Engine) WithdrawalRequest(id uint64) (*RequestStatus, error) {
	var (
		st  *RequestStatus
		err error
	)
	e.view(func(s *State) { st, err = s.Queue.RequestStatus(id) })
	return st, err
}

// WithdrawalRequests lists queued requests.
func (e *Engine) WithdrawalRequests(f WithdrawalFilter) []RequestStatus {
	var out []RequestStatus
	e.view(func(s *State) { out = s.Queue.ListRequests(f) })
	return out
}

// CalculateFinalizationBatches proposes batches for the next report.
func (e *Engine) CalculateFinalizationBatches(maxShareRate *uint256.Int, maxTimestamp uint64, maxBatches int, ethBudget *uint256.Int) (*FinalizationBatches, error) {
	var (
		out *FinalizationBatches
		err error
	)
	e.view(func(s *State) {
		out, err = s.Queue.CalculateFinalizationBatches(maxShareRate, maxTimestamp, maxBatches, ethBudget)
	})
	return out, err
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() *State {
	var c *State
	e.view(func(s *State) { c = s.Clone() })
	return c
}
