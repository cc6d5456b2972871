// Package transport provides HTTP handlers for the accounting domain.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/pendergraft/poolkeeper/internal/accounting/domain"
	"github.com/pendergraft/poolkeeper/internal/auth"
)

// Service defines the accounting service interface for HTTP transport.
type Service interface {
	HandleOracleReport(ctx context.Context, caller domain.Caller, report domain.Report) (*domain.ReportResult, error)
	SimulateOracleReport(ctx context.Context, report domain.Report) (*domain.ReportResult, error)
	CheckReport(ctx context.Context, report domain.Report) error

	Submit(ctx context.Context, caller domain.Caller, holder common.Address, amount *uint256.Int) (*uint256.Int, error)
	Deposit(ctx context.Context, caller domain.Caller, validators uint64) error
	RequestWithdrawals(ctx context.Context, caller domain.Caller, owner common.Address, amounts []*uint256.Int) ([]uint64, error)
	ClaimWithdrawal(ctx context.Context, caller domain.Caller, owner common.Address, id uint64) (*uint256.Int, error)
	RequestBurn(ctx context.Context, caller domain.Caller, owner common.Address, shares *uint256.Int, cover bool) error
	FundVault(ctx context.Context, caller domain.Caller, kind domain.VaultKind, amount *uint256.Int) error

	SetSanityLimits(ctx context.Context, caller domain.Caller, limits domain.SanityLimits) error
	SetFeeDistribution(ctx context.Context, caller domain.Caller, fees domain.FeeDistribution) error
	Stop(ctx context.Context, caller domain.Caller) error
	Resume(ctx context.Context, caller domain.Caller) error
	PauseWithdrawalQueue(ctx context.Context, caller domain.Caller) error
	ResumeWithdrawalQueue(ctx context.Context, caller domain.Caller) error

	Overview(ctx context.Context) (*domain.Overview, error)
	Holder(ctx context.Context, addr common.Address) (*domain.Holder, error)
	Withdrawal(ctx context.Context, id uint64) (*domain.RequestStatus, error)
	ListWithdrawals(ctx context.Context, filter domain.WithdrawalFilter) ([]domain.RequestStatus, error)
	CalculateFinalizationBatches(ctx context.Context, req domain.BatchRequest) (*domain.FinalizationBatches, error)
	GetReport(ctx context.Context, id string) (*domain.ReportRecord, error)
	ListReports(ctx context.Context, filter domain.ReportFilter, pagination domain.PaginationParams) (*domain.ReportList, error)
	ListEvents(ctx context.Context, filter domain.EventFilter, pagination domain.PaginationParams) (*domain.EventList, error)
}

// Handler handles HTTP requests for the pool.
type Handler struct {
	svc Service
}

// NewHandler creates a new accounting HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterReadRoutes registers routes that never change pool state.
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/state", h.handleState)
	r.Get("/holders/{address}", h.handleHolder)

	r.Get("/reports", h.handleListReports)
	r.Get("/reports/{id}", h.handleGetReport)
	r.Post("/reports/simulate", h.handleSimulate)
	r.Post("/reports/check", h.handleCheck)

	r.Get("/events", h.handleListEvents)

	r.Get("/withdrawals", h.handleListWithdrawals)
	r.Get("/withdrawals/{id}", h.handleGetWithdrawal)
	r.Post("/withdrawals/batches", h.handleBatches)
}

// RegisterWriteRoutes registers state-changing routes (auth required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/reports", h.handleReport)
	r.Post("/submit", h.handleSubmit)
	r.Post("/deposits", h.handleDeposit)
	r.Post("/withdrawals", h.handleRequestWithdrawals)
	r.Post("/withdrawals/{id}/claim", h.handleClaim)
	r.Post("/withdrawals/pause", h.handlePauseQueue)
	r.Post("/withdrawals/resume", h.handleResumeQueue)
	r.Post("/burns", h.handleBurn)
	r.Post("/vaults/{kind}/fund", h.handleFund)
	r.Put("/limits", h.handleSetLimits)
	r.Put("/fees", h.handleSetFees)
	r.Post("/admin/stop", h.handleStop)
	r.Post("/admin/resume", h.handleResume)
	r.Get("/whoami", h.handleWhoami)
}

// Reads

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	ov, err := h.svc.Overview(r.Context())
	if err != nil {
		writeServiceError(w, err, "Failed to load pool state")
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (h *Handler) handleHolder(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, chi.URLParam(r, "address"))
	if !ok {
		return
	}
	holder, err := h.svc.Holder(r.Context(), addr)
	if err != nil {
		writeServiceError(w, err, "Failed to load holder")
		return
	}
	writeJSON(w, http.StatusOK, holder)
}

func (h *Handler) handleListReports(w http.ResponseWriter, r *http.Request) {
	pagination := paginationFromQuery(r)
	result, err := h.svc.ListReports(r.Context(), domain.ReportFilter{
		Status: r.URL.Query().Get("status"),
	}, pagination)
	if err != nil {
		writeServiceError(w, err, "Failed to list reports")
		return
	}
	writeJSON(w, http.StatusOK, ReportListResponse{
		Data: result.Reports,
		Pagination: Pagination{
			Limit:      pagination.Limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "Failed to get report")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var report domain.Report
	if !readJSON(w, r, &report) {
		return
	}
	result, err := h.svc.SimulateOracleReport(r.Context(), report)
	if err != nil {
		writeServiceError(w, err, "Failed to simulate report")
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(result))
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var report domain.Report
	if !readJSON(w, r, &report) {
		return
	}
	err := h.svc.CheckReport(r.Context(), report)
	if err == nil {
		writeJSON(w, http.StatusOK, CheckResponse{Valid: true})
		return
	}
	if re, ok := domain.IsReportError(err); ok {
		writeJSON(w, http.StatusOK, CheckResponse{
			Code:    re.Code,
			Class:   string(re.Class),
			Message: re.Error(),
		})
		return
	}
	writeServiceError(w, err, "Failed to check report")
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	pagination := paginationFromQuery(r)
	result, err := h.svc.ListEvents(r.Context(), domain.EventFilter{
		Name:     r.URL.Query().Get("name"),
		ReportID: r.URL.Query().Get("report_id"),
	}, pagination)
	if err != nil {
		writeServiceError(w, err, "Failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, EventListResponse{
		Data: result.Events,
		Pagination: Pagination{
			Limit:      pagination.Limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

func (h *Handler) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.WithdrawalFilter{
		Unfinalized: q.Get("unfinalized") == "true",
	}
	if o := q.Get("owner"); o != "" {
		addr, ok := parseAddress(w, o)
		if !ok {
			return
		}
		filter.Owner = &addr
	}
	if a := q.Get("after"); a != "" {
		after, err := strconv.ParseUint(a, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "after must be a request id")
			return
		}
		filter.AfterID = after
	}
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			filter.Limit = parsed
		}
	}

	list, err := h.svc.ListWithdrawals(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err, "Failed to list withdrawal requests")
		return
	}
	if list == nil {
		list = []domain.RequestStatus{}
	}
	writeJSON(w, http.StatusOK, WithdrawalListResponse{Data: list})
}

func (h *Handler) handleGetWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRequestID(w, r)
	if !ok {
		return
	}
	st, err := h.svc.Withdrawal(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "Failed to get withdrawal request")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleBatches(w http.ResponseWriter, r *http.Request) {
	var req domain.BatchRequest
	if r.ContentLength != 0 && !readJSON(w, r, &req) {
		return
	}
	batches, err := h.svc.CalculateFinalizationBatches(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "Failed to calculate finalization batches")
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

// Writes

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	var report domain.Report
	if !readJSON(w, r, &report) {
		return
	}
	result, err := h.svc.HandleOracleReport(r.Context(), auth.CallerFromContext(r.Context()), report)
	if err != nil {
		writeServiceError(w, err, "Failed to apply report")
		return
	}
	writeJSON(w, http.StatusCreated, newReportResponse(result))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !readJSON(w, r, &req) {
		return
	}
	shares, err := h.svc.Submit(r.Context(), auth.CallerFromContext(r.Context()), req.Holder, req.Amount)
	if err != nil {
		writeServiceError(w, err, "Failed to submit ether")
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{Holder: req.Holder, Shares: shares})
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.svc.Deposit(r.Context(), auth.CallerFromContext(r.Context()), req.Validators); err != nil {
		writeServiceError(w, err, "Failed to deposit")
		return
	}
	writeNoContent(w)
}

func (h *Handler) handleRequestWithdrawals(w http.ResponseWriter, r *http.Request) {
	var req WithdrawalRequestBody
	if !readJSON(w, r, &req) {
		return
	}
	ids, err := h.svc.RequestWithdrawals(r.Context(), auth.CallerFromContext(r.Context()), req.Owner, req.Amounts)
	if err != nil {
		writeServiceError(w, err, "Failed to request withdrawals")
		return
	}
	writeJSON(w, http.StatusCreated, WithdrawalRequestResponse{RequestIDs: ids})
}

// Owners are named in the body; any staker key acts as a custodian for them.
func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	id, ok := parseRequestID(w, r)
	if !ok {
		return
	}
	var req ClaimRequest
	if !readJSON(w, r, &req) {
		return
	}
	amount, err := h.svc.ClaimWithdrawal(r.Context(), auth.CallerFromContext(r.Context()), req.Owner, id)
	if err != nil {
		writeServiceError(w, err, "Failed to claim withdrawal")
		return
	}
	writeJSON(w, http.StatusOK, ClaimResponse{RequestID: id, Amount: amount})
}

func (h *Handler) handleBurn(w http.ResponseWriter, r *http.Request) {
	var req BurnRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.svc.RequestBurn(r.Context(), auth.CallerFromContext(r.Context()), req.Owner, req.Shares, req.Cover); err != nil {
		writeServiceError(w, err, "Failed to request burn")
		return
	}
	writeNoContent(w)
}

func (h *Handler) handleFund(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseVaultKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	var req FundRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := h.svc.FundVault(r.Context(), auth.CallerFromContext(r.Context()), kind, req.Amount); err != nil {
		writeServiceError(w, err, "Failed to fund vault")
		return
	}
	writeNoContent(w)
}

func (h *Handler) handleSetLimits(w http.ResponseWriter, r *http.Request) {
	var limits domain.SanityLimits
	if !readJSON(w, r, &limits) {
		return
	}
	if err := h.svc.SetSanityLimits(r.Context(), auth.CallerFromContext(r.Context()), limits); err != nil {
		writeServiceError(w, err, "Failed to set sanity limits")
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

func (h *Handler) handleSetFees(w http.ResponseWriter, r *http.Request) {
	var fees domain.FeeDistribution
	if !readJSON(w, r, &fees) {
		return
	}
	if err := h.svc.SetFeeDistribution(r.Context(), auth.CallerFromContext(r.Context()), fees); err != nil {
		writeServiceError(w, err, "Failed to set fee distribution")
		return
	}
	writeJSON(w, http.StatusOK, fees)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.Stop, "Failed to stop protocol")
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.Resume, "Failed to resume protocol")
}

func (h *Handler) handlePauseQueue(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.PauseWithdrawalQueue, "Failed to pause withdrawal queue")
}

func (h *Handler) handleResumeQueue(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.svc.ResumeWithdrawalQueue, "Failed to resume withdrawal queue")
}

// handleWhoami echoes the authenticated caller. Clients use it to check a key.
func (h *Handler) handleWhoami(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFromContext(r.Context())
	roles := make([]string, len(caller.Roles))
	for i, role := range caller.Roles {
		roles[i] = string(role)
	}
	writeJSON(w, http.StatusOK, WhoamiResponse{ID: caller.ID, Roles: roles})
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request, fn func(context.Context, domain.Caller) error, failure string) {
	if err := fn(r.Context(), auth.CallerFromContext(r.Context())); err != nil {
		writeServiceError(w, err, failure)
		return
	}
	writeNoContent(w)
}

// Helper functions

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return false
	}
	if err := decodeStrict(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

func parseAddress(w http.ResponseWriter, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid address")
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseRequestID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request id")
		return 0, false
	}
	return id, true
}

func paginationFromQuery(r *http.Request) domain.PaginationParams {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	return domain.PaginationParams{Limit: limit, Cursor: r.URL.Query().Get("cursor")}
}

// writeServiceError maps a service error onto the error envelope. Report
// faults keep their code so oracles can tell which check failed.
func writeServiceError(w http.ResponseWriter, err error, failure string) {
	switch {
	case errors.Is(err, domain.ErrAppAuthFailed):
		writeError(w, http.StatusForbidden, domain.ErrAppAuthFailed.Code, "Caller lacks the role for this operation")
		return
	case errors.Is(err, domain.ErrContractIsStopped):
		writeError(w, http.StatusConflict, domain.ErrContractIsStopped.Code, "Protocol is stopped")
		return
	}
	if re, ok := domain.IsReportError(err); ok {
		writeError(w, http.StatusUnprocessableEntity, re.Code, re.Error())
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrNotRequestOwner):
		writeError(w, http.StatusForbidden, "FORBIDDEN", err.Error())
	case errors.Is(err, domain.ErrAlreadyStopped),
		errors.Is(err, domain.ErrNotStopped),
		errors.Is(err, domain.ErrQueuePaused),
		errors.Is(err, domain.ErrQueueAlreadyPaused),
		errors.Is(err, domain.ErrQueueNotPaused),
		errors.Is(err, domain.ErrRequestNotFinalized),
		errors.Is(err, domain.ErrRequestAlreadyClaimed):
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, domain.ErrZeroAmount),
		errors.Is(err, domain.ErrAmountOutOfRange),
		errors.Is(err, domain.ErrZeroAddress),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrInsufficientBuffer),
		errors.Is(err, domain.ErrEmptyPool),
		errors.Is(err, domain.ErrRequestAmountTooSmall),
		errors.Is(err, domain.ErrRequestAmountTooLarge),
		errors.Is(err, domain.ErrUnknownVault),
		errors.Is(err, domain.ErrInvalidLimits),
		errors.Is(err, domain.ErrInvalidFeeDistribution),
		errors.Is(err, domain.ErrInvalidBatchCalculation):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", failure)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}
