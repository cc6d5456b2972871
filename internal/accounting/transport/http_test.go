package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/poolkeeper/internal/accounting/domain"
	"github.com/pendergraft/poolkeeper/internal/auth"
)

var holderAddr = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

// mockService implements Service for testing. Calls are recorded by name and
// err, when set, is returned from every call.
type mockService struct {
	calls  []string
	caller domain.Caller
	err    error

	report      domain.Report
	result      *domain.ReportResult
	withdrawals []domain.RequestStatus
	filter      domain.WithdrawalFilter
	batchReq    domain.BatchRequest
}

func newMockService() *mockService {
	return &mockService{
		result: &domain.ReportResult{
			PostTotalPooledEther: domain.Ether(64),
			PostTotalShares:      domain.Ether(32),
			WithdrawalsWithdrawn: new(uint256.Int),
			ELRewardsWithdrawn:   domain.Ether(1),
			ReportID:             "report-1",
			Version:              7,
			Events: []domain.Event{
				domain.TokenRebased{ReportTimestamp: 1_700_000_000, PostTotalEther: domain.Ether(64)},
			},
		},
	}
}

func (m *mockService) record(name string, caller domain.Caller) error {
	m.calls = append(m.calls, name)
	m.caller = caller
	return m.err
}

func (m *mockService) HandleOracleReport(ctx context.Context, caller domain.Caller, report domain.Report) (*domain.ReportResult, error) {
	m.report = report
	if err := m.record("HandleOracleReport", caller); err != nil {
		return nil, err
	}
	return m.result, nil
}

func (m *mockService) SimulateOracleReport(ctx context.Context, report domain.Report) (*domain.ReportResult, error) {
	m.report = report
	if err := m.record("SimulateOracleReport", domain.Caller{}); err != nil {
		return nil, err
	}
	return m.result, nil
}

func (m *mockService) CheckReport(ctx context.Context, report domain.Report) error {
	m.report = report
	return m.record("CheckReport", domain.Caller{})
}

func (m *mockService) Submit(ctx context.Context, caller domain.Caller, holder common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := m.record("Submit", caller); err != nil {
		return nil, err
	}
	return amount.Clone(), nil
}

func (m *mockService) Deposit(ctx context.Context, caller domain.Caller, validators uint64) error {
	return m.record(fmt.Sprintf("Deposit(%d)", validators), caller)
}

func (m *mockService) RequestWithdrawals(ctx context.Context, caller domain.Caller, owner common.Address, amounts []*uint256.Int) ([]uint64, error) {
	if err := m.record("RequestWithdrawals", caller); err != nil {
		return nil, err
	}
	ids := make([]uint64, len(amounts))
	for i := range amounts {
		ids[i] = uint64(i + 1)
	}
	return ids, nil
}

func (m *mockService) ClaimWithdrawal(ctx context.Context, caller domain.Caller, owner common.Address, id uint64) (*uint256.Int, error) {
	if err := m.record(fmt.Sprintf("ClaimWithdrawal(%s,%d)", owner.Hex(), id), caller); err != nil {
		return nil, err
	}
	return domain.Ether(3), nil
}

func (m *mockService) RequestBurn(ctx context.Context, caller domain.Caller, owner common.Address, shares *uint256.Int, cover bool) error {
	return m.record(fmt.Sprintf("RequestBurn(%s,%t)", shares.Dec(), cover), caller)
}

func (m *mockService) FundVault(ctx context.Context, caller domain.Caller, kind domain.VaultKind, amount *uint256.Int) error {
	return m.record(fmt.Sprintf("FundVault(%s,%s)", kind, amount.Dec()), caller)
}

func (m *mockService) SetSanityLimits(ctx context.Context, caller domain.Caller, limits domain.SanityLimits) error {
	return m.record("SetSanityLimits", caller)
}

func (m *mockService) SetFeeDistribution(ctx context.Context, caller domain.Caller, fees domain.FeeDistribution) error {
	return m.record("SetFeeDistribution", caller)
}

func (m *mockService) Stop(ctx context.Context, caller domain.Caller) error {
	return m.record("Stop", caller)
}

func (m *mockService) Resume(ctx context.Context, caller domain.Caller) error {
	return m.record("Resume", caller)
}

func (m *mockService) PauseWithdrawalQueue(ctx context.Context, caller domain.Caller) error {
	return m.record("PauseWithdrawalQueue", caller)
}

func (m *mockService) ResumeWithdrawalQueue(ctx context.Context, caller domain.Caller) error {
	return m.record("ResumeWithdrawalQueue", caller)
}

func (m *mockService) Overview(ctx context.Context) (*domain.Overview, error) {
	if err := m.record("Overview", domain.Caller{}); err != nil {
		return nil, err
	}
	return &domain.Overview{TotalPooledEther: domain.Ether(64), Version: 7}, nil
}

func (m *mockService) Holder(ctx context.Context, addr common.Address) (*domain.Holder, error) {
	if err := m.record("Holder", domain.Caller{}); err != nil {
		return nil, err
	}
	return &domain.Holder{Address: addr, Shares: domain.Ether(2), Balance: domain.Ether(4)}, nil
}

func (m *mockService) Withdrawal(ctx context.Context, id uint64) (*domain.RequestStatus, error) {
	if err := m.record("Withdrawal", domain.Caller{}); err != nil {
		return nil, err
	}
	for _, st := range m.withdrawals {
		if st.ID == id {
			return &st, nil
		}
	}
	return nil, domain.ErrRequestNotFound
}

func (m *mockService) ListWithdrawals(ctx context.Context, filter domain.WithdrawalFilter) ([]domain.RequestStatus, error) {
	m.filter = filter
	if err := m.record("ListWithdrawals", domain.Caller{}); err != nil {
		return nil, err
	}
	return m.withdrawals, nil
}

func (m *mockService) CalculateFinalizationBatches(ctx context.Context, req domain.BatchRequest) (*domain.FinalizationBatches, error) {
	m.batchReq = req
	if err := m.record("CalculateFinalizationBatches", domain.Caller{}); err != nil {
		return nil, err
	}
	return &domain.FinalizationBatches{Batches: []uint64{2, 4}, EthToLock: domain.Ether(5), Remaining: domain.Ether(1), Finished: true}, nil
}

func (m *mockService) GetReport(ctx context.Context, id string) (*domain.ReportRecord, error) {
	if err := m.record("GetReport", domain.Caller{}); err != nil {
		return nil, err
	}
	if id != "report-1" {
		return nil, domain.ErrNotFound
	}
	return &domain.ReportRecord{ID: id, Status: "accepted", Report: domain.Report{ReportTimestamp: 1_700_000_000}}, nil
}

func (m *mockService) ListReports(ctx context.Context, filter domain.ReportFilter, pagination domain.PaginationParams) (*domain.ReportList, error) {
	if err := m.record("ListReports("+filter.Status+")", domain.Caller{}); err != nil {
		return nil, err
	}
	return &domain.ReportList{
		Reports:    []domain.ReportRecord{{ID: "report-1", Status: "accepted"}},
		HasMore:    true,
		NextCursor: "cursor-2",
	}, nil
}

func (m *mockService) ListEvents(ctx context.Context, filter domain.EventFilter, pagination domain.PaginationParams) (*domain.EventList, error) {
	if err := m.record("ListEvents("+filter.Name+","+filter.ReportID+")", domain.Caller{}); err != nil {
		return nil, err
	}
	return &domain.EventList{Events: []domain.EventRecord{{ID: "event-1", Name: filter.Name, Payload: json.RawMessage(`{}`)}}}, nil
}

var oracleCaller = domain.Caller{ID: "key-1", Roles: []domain.Role{domain.RoleOracle}}

func setupRouter(svc Service, caller domain.Caller) *chi.Mux {
	r := chi.NewRouter()
	h := NewHandler(svc)
	r.Route("/api/v1", func(r chi.Router) {
		h.RegisterReadRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(auth.Disabled(caller))
			h.RegisterWriteRoutes(r)
		})
	})
	return r
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

const reportBody = `{
	"reportTimestamp": 1700000000,
	"timeElapsed": 86400,
	"clValidators": 2,
	"postCLBalance": "64000000000000000000",
	"withdrawalVaultBalance": "0",
	"elRewardsVaultBalance": "0x0de0b6b3a7640000",
	"sharesRequestedToBurn": "0",
	"withdrawalFinalizationBatches": [3],
	"simulatedShareRate": "2000000000000000000000000000",
	"isBunkerMode": false
}`

func TestHandler_Report(t *testing.T) {
	svc := newMockService()
	router := setupRouter(svc, oracleCaller)

	rec := do(router, "POST", "/api/v1/reports", reportBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, []string{"HandleOracleReport"}, svc.calls)
	assert.Equal(t, "key-1", svc.caller.ID)
	assert.Equal(t, uint64(1_700_000_000), svc.report.ReportTimestamp)
	assert.Equal(t, domain.Ether(64).Dec(), svc.report.PostCLBalance.Dec())
	assert.Equal(t, domain.Ether(1).Dec(), svc.report.ELRewardsVaultBalance.Dec(), "hex amounts are accepted")
	assert.Equal(t, []uint64{3}, svc.report.WithdrawalFinalizationBatches)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "report-1", resp["reportId"])
	assert.Equal(t, domain.Ether(64).Dec(), resp["postTotalPooledEther"])
	assert.Equal(t, "2000000000000000000000000000", resp["shareRate"])
	events, ok := resp["events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, "TokenRebased", events[0].(map[string]any)["name"])
}

func TestHandler_ReportInvalidJSON(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"reportTimestamp":`},
		{name: "unknown field", body: `{"reportTimestamp": 1, "postClBalance": "1"}`},
		{name: "negative amount", body: `{"postCLBalance": "-1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockService()
			rec := do(setupRouter(svc, oracleCaller), "POST", "/api/v1/reports", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_REQUEST", decodeError(t, rec).Code)
			assert.Empty(t, svc.calls)
		})
	}
}

func TestHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "missing role", err: domain.ErrAppAuthFailed, wantStatus: http.StatusForbidden, wantCode: "APP_AUTH_FAILED"},
		{name: "stopped", err: domain.ErrContractIsStopped, wantStatus: http.StatusConflict, wantCode: "CONTRACT_IS_STOPPED"},
		{name: "consistency fault", err: fmt.Errorf("validating: %w", domain.ErrReportedMoreDeposited), wantStatus: http.StatusUnprocessableEntity, wantCode: "REPORTED_MORE_DEPOSITED"},
		{name: "bound fault", err: &domain.ReportError{Class: domain.ClassBound, Code: "IncorrectCLBalanceDecrease", Values: []*uint256.Int{uint256.NewInt(101)}}, wantStatus: http.StatusUnprocessableEntity, wantCode: "IncorrectCLBalanceDecrease"},
		{name: "reconciliation fault", err: domain.ErrIncorrectSimulatedShareRate, wantStatus: http.StatusUnprocessableEntity, wantCode: "IncorrectSimulatedShareRate"},
		{name: "storage failure", err: errors.New("disk full"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockService()
			svc.err = tt.err
			rec := do(setupRouter(svc, oracleCaller), "POST", "/api/v1/reports", reportBody)
			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotContains(t, body.Message, "disk full", "internal errors are not leaked")
		})
	}

	t.Run("fault values are reported", func(t *testing.T) {
		svc := newMockService()
		svc.err = &domain.ReportError{Class: domain.ClassBound, Code: "IncorrectCLBalanceDecrease", Values: []*uint256.Int{uint256.NewInt(101)}}
		rec := do(setupRouter(svc, oracleCaller), "POST", "/api/v1/reports", reportBody)
		assert.Equal(t, "IncorrectCLBalanceDecrease(101)", decodeError(t, rec).Message)
	})
}

func TestHandler_WriteErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "zero amount", err: domain.ErrZeroAmount, method: "POST", path: "/api/v1/submit", body: `{"holder":"0x00000000000000000000000000000000000a11ce","amount":"0"}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "claim unfinalized", err: domain.ErrRequestNotFinalized, method: "POST", path: "/api/v1/withdrawals/4/claim", body: `{"owner":"0x00000000000000000000000000000000000a11ce"}`, wantStatus: http.StatusConflict, wantCode: "CONFLICT"},
		{name: "claim unknown", err: domain.ErrRequestNotFound, method: "POST", path: "/api/v1/withdrawals/9/claim", body: `{"owner":"0x00000000000000000000000000000000000a11ce"}`, wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "claim by stranger", err: domain.ErrNotRequestOwner, method: "POST", path: "/api/v1/withdrawals/1/claim", body: `{"owner":"0x00000000000000000000000000000000000a11ce"}`, wantStatus: http.StatusForbidden, wantCode: "FORBIDDEN"},
		{name: "stop twice", err: domain.ErrAlreadyStopped, method: "POST", path: "/api/v1/admin/stop", wantStatus: http.StatusConflict, wantCode: "CONFLICT"},
		{name: "bad limits", err: domain.ErrInvalidLimits, method: "PUT", path: "/api/v1/limits", body: `{"maxPositiveTokenRebase":0}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newMockService()
			svc.err = tt.err
			rec := do(setupRouter(svc, domain.SystemCaller()), tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestHandler_StakingRoutes(t *testing.T) {
	svc := newMockService()
	router := setupRouter(svc, domain.SystemCaller())

	t.Run("submit", func(t *testing.T) {
		rec := do(router, "POST", "/api/v1/submit", `{"holder":"0x00000000000000000000000000000000000a11ce","amount":"32000000000000000000"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp SubmitResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, holderAddr, resp.Holder)
		assert.Equal(t, domain.Ether(32).Dec(), resp.Shares.Dec())
	})

	t.Run("deposit", func(t *testing.T) {
		rec := do(router, "POST", "/api/v1/deposits", `{"validators":2}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, svc.calls, "Deposit(2)")
	})

	t.Run("request withdrawals", func(t *testing.T) {
		rec := do(router, "POST", "/api/v1/withdrawals", `{"owner":"0x00000000000000000000000000000000000a11ce","amounts":["1000","2000"]}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		var resp WithdrawalRequestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, []uint64{1, 2}, resp.RequestIDs)
	})

	t.Run("claim", func(t *testing.T) {
		rec := do(router, "POST", "/api/v1/withdrawals/2/claim", `{"owner":"0x00000000000000000000000000000000000a11ce"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, svc.calls, "ClaimWithdrawal("+holderAddr.Hex()+",2)")
	})

	t.Run("burn", func(t *testing.T) {
		rec := do(router, "POST", "/api/v1/burns", `{"owner":"0x00000000000000000000000000000000000a11ce","shares":"5","cover":true}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, svc.calls, "RequestBurn(5,true)")
	})

	t.Run("fund vault", func(t *testing.T) {
		rec := do(router, "POST", "/api/v1/vaults/el-rewards/fund", `{"amount":"7"}`)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, svc.calls, "FundVault(el-rewards,7)")

		rec = do(router, "POST", "/api/v1/vaults/treasury/fund", `{"amount":"7"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("governance toggles", func(t *testing.T) {
		for path, call := range map[string]string{
			"/api/v1/admin/stop":         "Stop",
			"/api/v1/admin/resume":       "Resume",
			"/api/v1/withdrawals/pause":  "PauseWithdrawalQueue",
			"/api/v1/withdrawals/resume": "ResumeWithdrawalQueue",
		} {
			rec := do(router, "POST", path, "")
			assert.Equal(t, http.StatusNoContent, rec.Code, path)
			assert.Contains(t, svc.calls, call)
		}
	})

	t.Run("fees", func(t *testing.T) {
		rec := do(router, "PUT", "/api/v1/fees", `{"treasury":"0x00000000000000000000000000000000000a11ce","treasuryFeeBP":1000}`)
		require.Equal(t, http.StatusOK, rec.Code)
		var fees domain.FeeDistribution
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fees))
		assert.Equal(t, uint64(1000), fees.TreasuryFeeBP)
	})

	assert.Equal(t, "system", svc.caller.ID)
}

func TestHandler_ReadRoutes(t *testing.T) {
	svc := newMockService()
	svc.withdrawals = []domain.RequestStatus{{ID: 1, Owner: holderAddr, AmountOfStETH: domain.Ether(1)}}
	router := setupRouter(svc, oracleCaller)

	t.Run("state", func(t *testing.T) {
		rec := do(router, "GET", "/api/v1/state", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var ov map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ov))
		assert.Equal(t, domain.Ether(64).Dec(), ov["totalPooledEther"])
	})

	t.Run("holder", func(t *testing.T) {
		rec := do(router, "GET", "/api/v1/holders/"+holderAddr.Hex(), "")
		require.Equal(t, http.StatusOK, rec.Code)
		var h domain.Holder
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
		assert.Equal(t, domain.Ether(4).Dec(), h.Balance.Dec())

		rec = do(router, "GET", "/api/v1/holders/not-an-address", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("simulate", func(t *testing.T) {
		rec := do(router, "POST", "/api/v1/reports/simulate", reportBody)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, svc.calls, "SimulateOracleReport")
	})

	t.Run("reports", func(t *testing.T) {
		rec := do(router, "GET", "/api/v1/reports?status=accepted&limit=5", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var resp ReportListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 1)
		assert.Equal(t, Pagination{Limit: 5, HasMore: true, NextCursor: "cursor-2"}, resp.Pagination)
		assert.Contains(t, svc.calls, "ListReports(accepted)")
	})

	t.Run("report", func(t *testing.T) {
		rec := do(router, "GET", "/api/v1/reports/report-1", "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = do(router, "GET", "/api/v1/reports/missing", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)
	})

	t.Run("events", func(t *testing.T) {
		rec := do(router, "GET", "/api/v1/events?name=TokenRebased&report_id=report-1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, svc.calls, "ListEvents(TokenRebased,report-1)")
	})

	t.Run("withdrawals", func(t *testing.T) {
		rec := do(router, "GET", "/api/v1/withdrawals?owner="+holderAddr.Hex()+"&unfinalized=true&after=0&limit=10", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, svc.filter.Owner)
		assert.Equal(t, holderAddr, *svc.filter.Owner)
		assert.True(t, svc.filter.Unfinalized)
		assert.Equal(t, 10, svc.filter.Limit)

		rec = do(router, "GET", "/api/v1/withdrawals?after=x", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("withdrawal", func(t *testing.T) {
		rec := do(router, "GET", "/api/v1/withdrawals/1", "")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = do(router, "GET", "/api/v1/withdrawals/2", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = do(router, "GET", "/api/v1/withdrawals/abc", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("batches", func(t *testing.T) {
		rec := do(router, "POST", "/api/v1/withdrawals/batches", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Nil(t, svc.batchReq.EthBudget)

		rec = do(router, "POST", "/api/v1/withdrawals/batches", `{"maxBatches":2,"ethBudget":"12"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 2, svc.batchReq.MaxBatches)
		assert.Equal(t, "12", svc.batchReq.EthBudget.Dec())

		var got domain.FinalizationBatches
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, []uint64{2, 4}, got.Batches)
	})
}

func TestHandler_Check(t *testing.T) {
	svc := newMockService()
	router := setupRouter(svc, oracleCaller)

	rec := do(router, "POST", "/api/v1/reports/check", reportBody)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp CheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)

	svc.err = domain.ErrIncorrectAppearedValidators
	rec = do(router, "POST", "/api/v1/reports/check", reportBody)
	require.Equal(t, http.StatusOK, rec.Code, "a failing check is still a successful request")
	resp = CheckResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, "IncorrectAppearedValidators", resp.Code)
	assert.Equal(t, "bound", resp.Class)
}

func TestHandler_Whoami(t *testing.T) {
	caller := domain.Caller{ID: "key-1", Roles: []domain.Role{domain.RoleOracle}}
	router := setupRouter(newMockService(), caller)

	rec := do(router, "GET", "/api/v1/whoami", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WhoamiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "key-1", resp.ID)
	assert.Equal(t, []string{"oracle"}, resp.Roles)
}
