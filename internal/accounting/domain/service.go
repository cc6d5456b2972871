// Package domain contains the accounting engine of the staking pool: the
// share ledger, oracle report reconciliation, rebase smoothing and the
// withdrawal queue, plus the service that persists it.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/pendergraft/poolkeeper/internal/observability/metrics"
	"github.com/pendergraft/poolkeeper/internal/storage"
)

// ErrNotFound is returned when a stored report does not exist.
var ErrNotFound = errors.New("not found")

// defaultMaxBatches caps CalculateFinalizationBatches when the caller sets no limit.
const defaultMaxBatches = 36

// Store defines the storage operations needed by the accounting domain.
type Store interface {
	SaveCommit(ctx context.Context, c *storage.Commit) error
	LatestSnapshot(ctx context.Context) (*storage.Snapshot, error)
	RecordReport(ctx context.Context, r *storage.Report) error
	GetReport(ctx context.Context, id string) (*storage.Report, error)
	ListReports(ctx context.Context, filter storage.ReportFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Report], error)
	ListEvents(ctx context.Context, filter storage.EventFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Event], error)
}

type service struct {
	engine *Engine
	store  Store
	now    func() time.Time
}

// NewService loads the latest committed state from store, or creates a fresh
// pool from genesis when the store is empty.
func NewService(ctx context.Context, store Store, genesis Genesis, opts ...EngineOption) (*service, error) {
	state, err := loadState(ctx, store, genesis)
	if err != nil {
		return nil, err
	}
	opts = append([]EngineOption{WithJournal(&storeJournal{store: store})}, opts...)
	s := &service{
		engine: NewEngine(state, opts...),
		store:  store,
	}
	s.now = s.engine.now
	s.observePool()
	return s, nil
}

func loadState(ctx context.Context, store Store, genesis Genesis) (*State, error) {
	snap, err := store.LatestSnapshot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return NewState(genesis)
	}
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	var state State
	if err := json.Unmarshal(snap.Payload, &state); err != nil {
		return nil, fmt.Errorf("decoding state snapshot %d: %w", snap.Version, err)
	}
	state.Normalize()
	if state.Version != snap.Version {
		return nil, fmt.Errorf("state snapshot %d carries version %d", snap.Version, state.Version)
	}
	return &state, nil
}

// storeJournal writes engine commits to storage.
type storeJournal struct {
	store Store
}

func (j *storeJournal) Commit(ctx context.Context, e *JournalEntry) error {
	payload, err := json.Marshal(e.State)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	c := &storage.Commit{
		Snapshot: storage.Snapshot{Version: e.State.Version, Payload: payload},
	}
	if e.Report != nil {
		reportJSON, err := json.Marshal(e.Report)
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		resultJSON, err := json.Marshal(e.Result)
		if err != nil {
			return fmt.Errorf("encoding report result: %w", err)
		}
		c.Report = &storage.Report{
			ID:              e.ID,
			Version:         e.State.Version,
			ReportTimestamp: e.Report.ReportTimestamp,
			Payload:         reportJSON,
			Result:          resultJSON,
			Status:          storage.ReportAccepted,
			SubmittedBy:     e.CallerID,
		}
	}
	for i, ev := range e.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encoding event %s: %w", ev.EventName(), err)
		}
		c.Events = append(c.Events, storage.Event{
			Seq:       i,
			Operation: e.Operation,
			Name:      ev.EventName(),
			Payload:   data,
		})
	}
	return j.store.SaveCommit(ctx, c)
}

// HandleOracleReport applies a report. Rejected reports are recorded with
// their fault code; rejections for missing permissions are not.
func (s *service) HandleOracleReport(ctx context.Context, caller Caller, report Report) (*ReportResult, error) {
	start := time.Now()
	result, err := s.engine.HandleOracleReport(ctx, caller, report)
	if err != nil {
		code := faultCode(err)
		metrics.ReportProcessed("submit", storage.ReportRejected, code, time.Since(start))
		var re *ReportError
		if !errors.As(err, &re) || re.Class == ClassAuthorization {
			return nil, err
		}
		if recErr := s.recordRejection(ctx, caller, report, err); recErr != nil {
			return nil, errors.Join(err, recErr)
		}
		return nil, err
	}

	metrics.ReportProcessed("submit", storage.ReportAccepted, "", time.Since(start))
	s.observeReport(report, result)
	return result, nil
}

func (s *service) recordRejection(ctx context.Context, caller Caller, report Report, cause error) error {
	payload, err := json.Marshal(report.normalized())
	if err != nil {
		return fmt.Errorf("encoding rejected report: %w", err)
	}
	err = s.store.RecordReport(ctx, &storage.Report{
		ReportTimestamp: report.ReportTimestamp,
		Payload:         payload,
		Status:          storage.ReportRejected,
		ErrorCode:       faultCode(cause),
		ErrorMessage:    cause.Error(),
		SubmittedBy:     caller.ID,
	})
	if err != nil {
		return fmt.Errorf("recording rejected report: %w", err)
	}
	return nil
}

// SimulateOracleReport dry-runs a report.
func (s *service) SimulateOracleReport(ctx context.Context, report Report) (*ReportResult, error) {
	start := time.Now()
	result, err := s.engine.SimulateOracleReport(ctx, report)
	status := storage.ReportAccepted
	if err != nil {
		status = storage.ReportRejected
	}
	metrics.ReportProcessed("simulate", status, faultCode(err), time.Since(start))
	return result, err
}

// CheckReport runs the sanity checks only.
func (s *service) CheckReport(ctx context.Context, report Report) error {
	return s.engine.CheckReport(ctx, report)
}

// Submit stakes ether.
func (s *service) Submit(ctx context.Context, caller Caller, holder common.Address, amount *uint256.Int) (*uint256.Int, error) {
	shares, err := s.engine.Submit(ctx, caller, holder, amount)
	s.observe(OpSubmit, err)
	return shares, err
}

// Deposit sends buffered ether to new validators.
func (s *service) Deposit(ctx context.Context, caller Caller, validators uint64) error {
	err := s.engine.Deposit(ctx, caller, validators)
	s.observe(OpDeposit, err)
	return err
}

// RequestWithdrawals queues withdrawal requests.
func (s *service) RequestWithdrawals(ctx context.Context, caller Caller, owner common.Address, amounts []*uint256.Int) ([]uint64, error) {
	ids, err := s.engine.RequestWithdrawals(ctx, caller, owner, amounts)
	s.observe(OpRequestWithdrawals, err)
	if err == nil {
		metrics.Withdrawals("requested", uint64(len(ids)))
	}
	return ids, err
}

// ClaimWithdrawal pays out a finalized request.
func (s *service) ClaimWithdrawal(ctx context.Context, caller Caller, owner common.Address, id uint64) (*uint256.Int, error) {
	amount, err := s.engine.ClaimWithdrawal(ctx, caller, owner, id)
	s.observe(OpClaimWithdrawal, err)
	if err == nil {
		metrics.Withdrawals("claimed", 1)
	}
	return amount, err
}

// RequestBurn hands shares to the burner.
func (s *service) RequestBurn(ctx context.Context, caller Caller, owner common.Address, shares *uint256.Int, cover bool) error {
	err := s.engine.RequestBurn(ctx, caller, owner, shares, cover)
	s.observe(OpRequestBurn, err)
	return err
}

// FundVault credits a custody vault.
func (s *service) FundVault(ctx context.Context, caller Caller, kind VaultKind, amount *uint256.Int) error {
	err := s.engine.FundVault(ctx, caller, kind, amount)
	s.observe(OpFundVault, err)
	return err
}

// SetSanityLimits replaces the sanity limits.
func (s *service) SetSanityLimits(ctx context.Context, caller Caller, limits SanityLimits) error {
	err := s.engine.SetSanityLimits(ctx, caller, limits)
	s.observe(OpSetSanityLimits, err)
	return err
}

// SetFeeDistribution replaces the fee split.
func (s *service) SetFeeDistribution(ctx context.Context, caller Caller, fees FeeDistribution) error {
	err := s.engine.SetFeeDistribution(ctx, caller, fees)
	s.observe(OpSetFees, err)
	return err
}

// Stop halts the pool.
func (s *service) Stop(ctx context.Context, caller Caller) error {
	err := s.engine.Stop(ctx, caller)
	s.observe(OpStop, err)
	return err
}

// Resume restarts the pool.
func (s *service) Resume(ctx context.Context, caller Caller) error {
	err := s.engine.Resume(ctx, caller)
	s.observe(OpResume, err)
	return err
}

// PauseWithdrawalQueue pauses the queue.
func (s *service) PauseWithdrawalQueue(ctx context.Context, caller Caller) error {
	err := s.engine.PauseWithdrawalQueue(ctx, caller)
	s.observe(OpPauseQueue, err)
	return err
}

// ResumeWithdrawalQueue resumes the queue.
func (s *service) ResumeWithdrawalQueue(ctx context.Context, caller Caller) error {
	err := s.engine.ResumeWithdrawalQueue(ctx, caller)
	s.observe(OpResumeQueue, err)
	return err
}

// Overview returns the pool summary.
func (s *service) Overview(ctx context.Context) (*Overview, error) {
	o := s.engine.Overview()
	return &o, nil
}

// Holder returns the balance of addr.
func (s *service) Holder(ctx context.Context, addr common.Address) (*Holder, error) {
	h := s.engine.Holder(addr)
	return &h, nil
}

// Withdrawal returns one withdrawal request.
func (s *service) Withdrawal(ctx context.Context, id uint64) (*RequestStatus, error) {
	return s.engine.WithdrawalRequest(id)
}

// ListWithdrawals lists withdrawal requests.
func (s *service) ListWithdrawals(ctx context.Context, filter WithdrawalFilter) ([]RequestStatus, error) {
	return s.engine.WithdrawalRequests(filter), nil
}

// CalculateFinalizationBatches proposes finalization batches. Unset fields
// default to the current share rate, the ether available to the next report,
// requests older than the timestamp margin and 36 batches.
func (s *service) CalculateFinalizationBatches(ctx context.Context, req BatchRequest) (*FinalizationBatches, error) {
	ov := s.engine.Overview()
	if req.MaxShareRate == nil {
		req.MaxShareRate = ov.ShareRate
	}
	if req.EthBudget == nil {
		req.EthBudget = add(add(ov.BufferedEther, ov.WithdrawalVault), ov.ELRewardsVault)
	}
	if req.MaxTimestamp == 0 {
		now := uint64(s.now().Unix())
		if now > ov.Limits.RequestTimestampMargin {
			req.MaxTimestamp = now - ov.Limits.RequestTimestampMargin
		}
	}
	if req.MaxBatches == 0 {
		req.MaxBatches = defaultMaxBatches
	}
	return s.engine.CalculateFinalizationBatches(req.MaxShareRate, req.MaxTimestamp, req.MaxBatches, req.EthBudget)
}

// GetReport returns a stored report.
func (s *service) GetReport(ctx context.Context, id string) (*ReportRecord, error) {
	r, err := s.store.GetReport(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}
	return reportFromStorage(r)
}

// ListReports lists stored reports, newest first.
func (s *service) ListReports(ctx context.Context, filter ReportFilter, pagination PaginationParams) (*ReportList, error) {
	result, err := s.store.ListReports(ctx, storage.ReportFilter{Status: filter.Status}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	out := &ReportList{Reports: make([]ReportRecord, 0, len(result.Data)), HasMore: result.HasMore, NextCursor: result.NextCursor}
	for i := range result.Data {
		rec, err := reportFromStorage(&result.Data[i])
		if err != nil {
			return nil, err
		}
		out.Reports = append(out.Reports, *rec)
	}
	return out, nil
}

// ListEvents lists stored events, newest first.
func (s *service) ListEvents(ctx context.Context, filter EventFilter, pagination PaginationParams) (*EventList, error) {
	result, err := s.store.ListEvents(ctx, storage.EventFilter{Name: filter.Name, ReportID: filter.ReportID}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	out := &EventList{Events: make([]EventRecord, 0, len(result.Data)), HasMore: result.HasMore, NextCursor: result.NextCursor}
	for _, e := range result.Data {
		out.Events = append(out.Events, EventRecord{
			ID:        e.ID,
			Version:   e.Version,
			Index:     e.Seq,
			Operation: e.Operation,
			ReportID:  e.ReportID,
			Name:      e.Name,
			Payload:   json.RawMessage(e.Payload),
			CreatedAt: parseTime(e.CreatedAt),
		})
	}
	return out, nil
}

func reportFromStorage(r *storage.Report) (*ReportRecord, error) {
	rec := &ReportRecord{
		ID:              r.ID,
		Version:         r.Version,
		ReportTimestamp: r.ReportTimestamp,
		Hash:            r.Hash,
		Status:          r.Status,
		ErrorCode:       r.ErrorCode,
		ErrorMessage:    r.ErrorMessage,
		SubmittedBy:     r.SubmittedBy,
		CreatedAt:       parseTime(r.CreatedAt),
	}
	if err := json.Unmarshal(r.Payload, &rec.Report); err != nil {
		return nil, fmt.Errorf("decoding report %s: %w", r.ID, err)
	}
	if len(r.Result) > 0 {
		rec.Result = &ReportResult{}
		if err := json.Unmarshal(r.Result, rec.Result); err != nil {
			return nil, fmt.Errorf("decoding report result %s: %w", r.ID, err)
		}
	}
	return rec, nil
}

// observe records an operation and refreshes the pool gauges after a commit.
func (s *service) observe(op string, err error) {
	if err != nil {
		metrics.Operation(op, "error")
		return
	}
	metrics.Operation(op, "ok")
	s.observePool()
}

func (s *service) observeReport(report Report, result *ReportResult) {
	s.observe(OpHandleOracleReport, nil)
	report = report.normalized()
	if result.WithdrawalsWithdrawn.Lt(report.WithdrawalVaultBalance) {
		metrics.RebaseLimited("withdrawals")
	}
	if result.ELRewardsWithdrawn.Lt(report.ELRewardsVaultBalance) {
		metrics.RebaseLimited("el_rewards")
	}
	for _, ev := range result.Events {
		if e, ok := ev.(WithdrawalsFinalized); ok {
			metrics.Withdrawals("finalized", e.ToRequestID-e.FromRequestID+1)
		}
	}
	if ov := s.engine.Overview(); !ov.CoverShares.IsZero() || !ov.NonCoverShares.IsZero() {
		metrics.RebaseLimited("burn")
	}
}

func (s *service) observePool() {
	if !metrics.Enabled() {
		return
	}
	ov := s.engine.Overview()
	metrics.Pool(metrics.PoolState{
		TotalPooledEther: ov.TotalPooledEther,
		BufferedEther:    ov.BufferedEther,
		UnfinalizedStETH: ov.Queue.UnfinalizedStETH,
		LockedEther:      ov.Queue.LockedEther,
		WithdrawalVault:  ov.WithdrawalVault,
		ELRewardsVault:   ov.ELRewardsVault,
		TotalShares:      ov.TotalShares,
		ShareRate:        ov.ShareRate,
		Version:          ov.Version,
	})
}

// faultCode returns the report fault code of err, or "" for other errors.
func faultCode(err error) string {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}
