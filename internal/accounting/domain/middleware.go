package domain

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	HandleOracleReport(ctx context.Context, caller Caller, report Report) (*ReportResult, error)
	SimulateOracleReport(ctx context.Context, report Report) (*ReportResult, error)
	CheckReport(ctx context.Context, report Report) error
	Submit(ctx context.Context, caller Caller, holder common.Address, amount *uint256.Int) (*uint256.Int, error)
	Deposit(ctx context.Context, caller Caller, validators uint64) error
	RequestWithdrawals(ctx context.Context, caller Caller, owner common.Address, amounts []*uint256.Int) ([]uint64, error)
	ClaimWithdrawal(ctx context.Context, caller Caller, owner common.Address, id uint64) (*uint256.Int, error)
	RequestBurn(ctx context.Context, caller Caller, owner common.Address, shares *uint256.Int, cover bool) error
	FundVault(ctx context.Context, caller Caller, kind VaultKind, amount *uint256.Int) error
	SetSanityLimits(ctx context.Context, caller Caller, limits SanityLimits) error
	SetFeeDistribution(ctx context.Context, caller Caller, fees FeeDistribution) error
	Stop(ctx context.Context, caller Caller) error
	Resume(ctx context.Context, caller Caller) error
	PauseWithdrawalQueue(ctx context.Context, caller Caller) error
	ResumeWithdrawalQueue(ctx context.Context, caller Caller) error
	Overview(ctx context.Context) (*Overview, error)
	Holder(ctx context.Context, addr common.Address) (*Holder, error)
	Withdrawal(ctx context.Context, id uint64) (*RequestStatus, error)
	ListWithdrawals(ctx context.Context, filter WithdrawalFilter) ([]RequestStatus, error)
	CalculateFinalizationBatches(ctx context.Context, req BatchRequest) (*FinalizationBatches, error)
	GetReport(ctx context.Context, id string) (*ReportRecord, error)
	ListReports(ctx context.Context, filter ReportFilter, pagination PaginationParams) (*ReportList, error)
	ListEvents(ctx context.Context, filter EventFilter, pagination PaginationParams) (*EventList, error)
}

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(loggingService) *loggingMiddleware {
	return func(next loggingService) *loggingMiddleware {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   loggingService
	logger *slog.Logger
}

func (m *loggingMiddleware) HandleOracleReport(ctx context.Context, caller Caller, report Report) (*ReportResult, error) {
	start := time.Now()
	result, err := m.next.HandleOracleReport(ctx, caller, report)
	attrs := []any{
		"caller", caller.ID,
		"reportTimestamp", report.ReportTimestamp,
		"clValidators", report.CLValidators,
		"batches", len(report.WithdrawalFinalizationBatches),
		"duration", time.Since(start),
	}
	if result != nil {
		attrs = append(attrs,
			"reportId", result.ReportID,
			"postTotalPooledEther", result.PostTotalPooledEther.Dec(),
			"postTotalShares", result.PostTotalShares.Dec(),
			"sharesMintedAsFees", result.SharesMintedAsFees.Dec(),
		)
	}
	attrs = append(attrs, "error", err)
	if err != nil {
		m.logger.Warn("HandleOracleReport", attrs...)
	} else {
		m.logger.Info("HandleOracleReport", attrs...)
	}
	return result, err
}

func (m *loggingMiddleware) SimulateOracleReport(ctx context.Context, report Report) (*ReportResult, error) {
	start := time.Now()
	result, err := m.next.SimulateOracleReport(ctx, report)
	m.logger.Debug("SimulateOracleReport",
		"reportTimestamp", report.ReportTimestamp,
		"clValidators", report.CLValidators,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) CheckReport(ctx context.Context, report Report) error {
	start := time.Now()
	err := m.next.CheckReport(ctx, report)
	m.logger.Debug("CheckReport",
		"reportTimestamp", report.ReportTimestamp,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}

func (m *loggingMiddleware) Submit(ctx context.Context, caller Caller, holder common.Address, amount *uint256.Int) (*uint256.Int, error) {
	start := time.Now()
	shares, err := m.next.Submit(ctx, caller, holder, amount)
	m.logger.Info("Submit",
		"caller", caller.ID,
		"holder", holder.Hex(),
		"amount", decString(amount),
		"shares", decString(shares),
		"duration", time.Since(start),
		"error", err,
	)
	return shares, err
}

func (m *loggingMiddleware) Deposit(ctx context.Context, caller Caller, validators uint64) error {
	start := time.Now()
	err := m.next.Deposit(ctx, caller, validators)
	m.logger.Info("Deposit",
		"caller", caller.ID,
		"validators", validators,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}

func (m *loggingMiddleware) RequestWithdrawals(ctx context.Context, caller Caller, owner common.Address, amounts []*uint256.Int) ([]uint64, error) {
	start := time.Now()
	ids, err := m.next.RequestWithdrawals(ctx, caller, owner, amounts)
	m.logger.Info("RequestWithdrawals",
		"caller", caller.ID,
		"owner", owner.Hex(),
		"count", len(amounts),
		"ids", ids,
		"duration", time.Since(start),
		"error", err,
	)
	return ids, err
}

func (m *loggingMiddleware) ClaimWithdrawal(ctx context.Context, caller Caller, owner common.Address, id uint64) (*uint256.Int, error) {
	start := time.Now()
	amount, err := m.next.ClaimWithdrawal(ctx, caller, owner, id)
	m.logger.Info("ClaimWithdrawal",
		"caller", caller.ID,
		"owner", owner.Hex(),
		"requestId", id,
		"amount", decString(amount),
		"duration", time.Since(start),
		"error", err,
	)
	return amount, err
}

func (m *loggingMiddleware) RequestBurn(ctx context.Context, caller Caller, owner common.Address, shares *uint256.Int, cover bool) error {
	start := time.Now()
	err := m.next.RequestBurn(ctx, caller, owner, shares, cover)
	m.logger.Info("RequestBurn",
		"caller", caller.ID,
		"owner", owner.Hex(),
		"shares", decString(shares),
		"cover", cover,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}

func (m *loggingMiddleware) FundVault(ctx context.Context, caller Caller, kind VaultKind, amount *uint256.Int) error {
	start := time.Now()
	err := m.next.FundVault(ctx, caller, kind, amount)
	m.logger.Info("FundVault",
		"caller", caller.ID,
		"vault", kind,
		"amount", decString(amount),
		"duration", time.Since(start),
		"error", err,
	)
	return err
}

func (m *loggingMiddleware) SetSanityLimits(ctx context.Context, caller Caller, limits SanityLimits) error {
	start := time.Now()
	err := m.next.SetSanityLimits(ctx, caller, limits)
	m.logger.Info("SetSanityLimits",
		"caller", caller.ID,
		"limits", limits,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}

func (m *loggingMiddleware) SetFeeDistribution(ctx context.Context, caller Caller, fees FeeDistribution) error {
	start := time.Now()
	err := m.next.SetFeeDistribution(ctx, caller, fees)
	m.logger.Info("SetFeeDistribution",
		"caller", caller.ID,
		"treasuryFeeBP", fees.TreasuryFeeBP,
		"moduleFeeBP", fees.ModuleFeeBP,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}

func (m *loggingMiddleware) Stop(ctx context.Context, caller Caller) error {
	start := time.Now()
	err := m.next.Stop(ctx, caller)
	m.logger.Info("Stop", "caller", caller.ID, "duration", time.Since(start), "error", err)
	return err
}

func (m *loggingMiddleware) Resume(ctx context.Context, caller Caller) error {
	start := time.Now()
	err := m.next.Resume(ctx, caller)
	m.logger.Info("Resume", "caller", caller.ID, "duration", time.Since(start), "error", err)
	return err
}

func (m *loggingMiddleware) PauseWithdrawalQueue(ctx context.Context, caller Caller) error {
	start := time.Now()
	err := m.next.PauseWithdrawalQueue(ctx, caller)
	m.logger.Info("PauseWithdrawalQueue", "caller", caller.ID, "duration", time.Since(start), "error", err)
	return err
}

func (m *loggingMiddleware) ResumeWithdrawalQueue(ctx context.Context, caller Caller) error {
	start := time.Now()
	err := m.next.ResumeWithdrawalQueue(ctx, caller)
	m.logger.Info("ResumeWithdrawalQueue", "caller", caller.ID, "duration", time.Since(start), "error", err)
	return err
}

func (m *loggingMiddleware) Overview(ctx context.Context) (*Overview, error) {
	start := time.Now()
	o, err := m.next.Overview(ctx)
	m.logger.Debug("Overview", "duration", time.Since(start), "error", err)
	return o, err
}

func (m *loggingMiddleware) Holder(ctx context.Context, addr common.Address) (*Holder, error) {
	start := time.Now()
	h, err := m.next.Holder(ctx, addr)
	m.logger.Debug("Holder",
		"address", addr.Hex(),
		"duration", time.Since(start),
		"error", err,
	)
	return h, err
}

func (m *loggingMiddleware) Withdrawal(ctx context.Context, id uint64) (*RequestStatus, error) {
	start := time.Now()
	st, err := m.next.Withdrawal(ctx, id)
	m.logger.Debug("Withdrawal",
		"requestId", id,
		"duration", time.Since(start),
		"error", err,
	)
	return st, err
}

func (m *loggingMiddleware) ListWithdrawals(ctx context.Context, filter WithdrawalFilter) ([]RequestStatus, error) {
	start := time.Now()
	list, err := m.next.ListWithdrawals(ctx, filter)
	m.logger.Debug("ListWithdrawals",
		"unfinalized", filter.Unfinalized,
		"after", filter.AfterID,
		"count", len(list),
		"duration", time.Since(start),
		"error", err,
	)
	return list, err
}

func (m *loggingMiddleware) CalculateFinalizationBatches(ctx context.Context, req BatchRequest) (*FinalizationBatches, error) {
	start := time.Now()
	out, err := m.next.CalculateFinalizationBatches(ctx, req)
	m.logger.Debug("CalculateFinalizationBatches",
		"maxBatches", req.MaxBatches,
		"maxTimestamp", req.MaxTimestamp,
		"duration", time.Since(start),
		"error", err,
	)
	return out, err
}

func (m *loggingMiddleware) GetReport(ctx context.Context, id string) (*ReportRecord, error) {
	start := time.Now()
	r, err := m.next.GetReport(ctx, id)
	m.logger.Debug("GetReport",
		"id", id,
		"duration", time.Since(start),
		"error", err,
	)
	return r, err
}

func (m *loggingMiddleware) ListReports(ctx context.Context, filter ReportFilter, pagination PaginationParams) (*ReportList, error) {
	start := time.Now()
	result, err := m.next.ListReports(ctx, filter, pagination)
	m.logger.Debug("ListReports",
		"status", filter.Status,
		"limit", pagination.Limit,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) ListEvents(ctx context.Context, filter EventFilter, pagination PaginationParams) (*EventList, error) {
	start := time.Now()
	result, err := m.next.ListEvents(ctx, filter, pagination)
	m.logger.Debug("ListEvents",
		"name", filter.Name,
		"reportId", filter.ReportID,
		"limit", pagination.Limit,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func decString(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}
