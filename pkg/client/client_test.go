package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func TestClient_State(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/state" {
			t.Errorf("Expected path /api/v1/state, got %s", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET method, got %s", r.Method)
		}

		w.Write([]byte(`{
			"totalPooledEther": "64010000000000000000",
			"totalShares": "64000000000000000000",
			"beaconStat": {"depositedValidators": 2, "beaconValidators": 2, "beaconBalance": "64010000000000000000"},
			"withdrawalQueue": {"lastRequestId": 3, "lastFinalizedRequestId": 1, "paused": false},
			"stopped": false,
			"version": 7
		}`))
	}))
	defer server.Close()

	client := New(server.URL, "")
	state, err := client.State(context.Background())
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}

	if state.TotalPooledEther.Dec() != "64010000000000000000" {
		t.Errorf("State().TotalPooledEther = %s, want 64010000000000000000", state.TotalPooledEther.Dec())
	}
	if state.Beacon.BeaconValidators != 2 {
		t.Errorf("State().Beacon.BeaconValidators = %d, want 2", state.Beacon.BeaconValidators)
	}
	if state.Queue.LastRequestID != 3 {
		t.Errorf("State().Queue.LastRequestID = %d, want 3", state.Queue.LastRequestID)
	}
	if state.Version != 7 {
		t.Errorf("State().Version = %d, want 7", state.Version)
	}
}

func TestClient_SubmitReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/reports" {
			t.Errorf("Expected path /api/v1/reports, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST method, got %s", r.Method)
		}
		if r.Header.Get("X-API-Key") != "oracle-key" {
			t.Errorf("Expected X-API-Key header, got %q", r.Header.Get("X-API-Key"))
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		if body["postCLBalance"] != "64010000000000000000" {
			t.Errorf("postCLBalance = %v, want decimal string", body["postCLBalance"])
		}

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{
			"reportId": "r-1",
			"version": 4,
			"postTotalPooledEther": "64010000000000000000",
			"postTotalShares": "64000000000000000000",
			"sharesMintedAsFees": "0",
			"events": [{"name": "TokenRebased", "data": {"timeElapsed": 86400}}]
		}`))
	}))
	defer server.Close()

	client := New(server.URL, "oracle-key")
	result, err := client.SubmitReport(context.Background(), Report{
		ReportTimestamp: 1_700_000_000,
		TimeElapsed:     86400,
		CLValidators:    2,
		PostCLBalance:   uint256.MustFromDecimal("64010000000000000000"),
	})
	if err != nil {
		t.Fatalf("SubmitReport() error = %v", err)
	}

	if result.ReportID != "r-1" {
		t.Errorf("SubmitReport().ReportID = %s, want r-1", result.ReportID)
	}
	if len(result.Events) != 1 || result.Events[0].Name != "TokenRebased" {
		t.Errorf("SubmitReport().Events = %+v, want one TokenRebased", result.Events)
	}
}

func TestClient_ReportFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"code":    "IncorrectCLBalanceDecrease",
				"message": "IncorrectCLBalanceDecrease(600)",
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "")
	_, err := client.SubmitReport(context.Background(), Report{})
	if err == nil {
		t.Fatal("SubmitReport() expected error")
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d, want 422", apiErr.StatusCode)
	}
	if !IsCode(err, "IncorrectCLBalanceDecrease") {
		t.Errorf("IsCode() = false for %v", err)
	}
	if IsCode(err, "CONTRACT_IS_STOPPED") {
		t.Error("IsCode() matched the wrong code")
	}
}

func TestClient_CheckReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/reports/check" {
			t.Errorf("Expected path /api/v1/reports/check, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"valid": false, "code": "REPORTED_LESS_VALIDATORS", "class": "consistency"}`))
	}))
	defer server.Close()

	client := New(server.URL, "")
	result, err := client.CheckReport(context.Background(), Report{CLValidators: 1})
	if err != nil {
		t.Fatalf("CheckReport() error = %v", err)
	}
	if result.Valid || result.Code != "REPORTED_LESS_VALIDATORS" {
		t.Errorf("CheckReport() = %+v, want invalid REPORTED_LESS_VALIDATORS", result)
	}
}

func TestClient_ListReports(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/reports" {
			t.Errorf("Expected path /api/v1/reports, got %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("status") != "rejected" || q.Get("limit") != "5" || q.Get("cursor") != "abc" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "r-2", "status": "rejected", "errorCode": "REPORTED_MORE_DEPOSITED"},
			},
			"pagination": map[string]any{"limit": 5, "hasMore": false},
		})
	}))
	defer server.Close()

	client := New(server.URL, "")
	resp, err := client.ListReports(context.Background(), "rejected", 5, "abc")
	if err != nil {
		t.Fatalf("ListReports() error = %v", err)
	}
	if len(resp.Data) != 1 {
		t.Fatalf("ListReports() returned %d reports, want 1", len(resp.Data))
	}
	if resp.Data[0].ErrorCode != "REPORTED_MORE_DEPOSITED" {
		t.Errorf("ListReports()[0].ErrorCode = %s", resp.Data[0].ErrorCode)
	}
}

func TestClient_ListWithdrawals(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("owner") != alice.Hex() {
			t.Errorf("owner = %s, want %s", q.Get("owner"), alice.Hex())
		}
		if q.Get("unfinalized") != "true" || q.Get("after") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"data": [{"id": 3, "owner": "` + alice.Hex() + `", "amountOfStETH": "1000", "isFinalized": false}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "")
	list, err := client.ListWithdrawals(context.Background(), WithdrawalFilter{Owner: &alice, Unfinalized: true, AfterID: 2})
	if err != nil {
		t.Fatalf("ListWithdrawals() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != 3 || list[0].Owner != alice {
		t.Errorf("ListWithdrawals() = %+v", list)
	}
}

func TestClient_StakingCalls(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/api/v1/submit":
			w.Write([]byte(`{"holder": "` + alice.Hex() + `", "shares": "32000000000000000000"}`))
		case "/api/v1/withdrawals":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"requestIds": [1, 2]}`))
		case "/api/v1/withdrawals/1/claim":
			w.Write([]byte(`{"requestId": 1, "amount": "1000"}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	client := New(server.URL, "key")

	shares, err := client.Submit(ctx, alice, uint256.NewInt(32))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if shares.Dec() != "32000000000000000000" {
		t.Errorf("Submit() = %s", shares.Dec())
	}

	if err := client.Deposit(ctx, 1); err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}

	ids, err := client.RequestWithdrawals(ctx, alice, []*uint256.Int{uint256.NewInt(500), uint256.NewInt(500)})
	if err != nil {
		t.Fatalf("RequestWithdrawals() error = %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("RequestWithdrawals() = %v, want 2 ids", ids)
	}

	amount, err := client.ClaimWithdrawal(ctx, alice, 1)
	if err != nil {
		t.Fatalf("ClaimWithdrawal() error = %v", err)
	}
	if amount.Uint64() != 1000 {
		t.Errorf("ClaimWithdrawal() = %s, want 1000", amount.Dec())
	}

	if err := client.FundVault(ctx, "el-rewards", uint256.NewInt(1)); err != nil {
		t.Fatalf("FundVault() error = %v", err)
	}
	if err := client.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := client.SetLimits(ctx, SanityLimits{MaxPositiveTokenRebase: 1}); err != nil {
		t.Fatalf("SetLimits() error = %v", err)
	}

	want := []string{
		"POST /api/v1/submit",
		"POST /api/v1/deposits",
		"POST /api/v1/withdrawals",
		"POST /api/v1/withdrawals/1/claim",
		"POST /api/v1/vaults/el-rewards/fund",
		"POST /api/v1/admin/stop",
		"PUT /api/v1/limits",
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, calls[i], want[i])
		}
	}
}

func TestClient_NonJSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "")
	_, err := client.Holder(context.Background(), alice)
	if err == nil {
		t.Fatal("Holder() expected error")
	}
	if !IsCode(err, "HTTP_ERROR") {
		t.Errorf("Holder() error = %v, want HTTP_ERROR", err)
	}
}

func TestWithHTTPClient(t *testing.T) {
	custom := &http.Client{}
	client := New("http://localhost", "", WithHTTPClient(custom))
	if client.httpClient != custom {
		t.Error("WithHTTPClient() did not set the client")
	}
}

func TestClient_Whoami(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid API key"}}`))
			return
		}
		w.Write([]byte(`{"id":"key-1","roles":["oracle","governance"]}`))
	}))
	defer server.Close()

	id, err := New(server.URL, "good").Whoami(context.Background())
	if err != nil {
		t.Fatalf("Whoami() error = %v", err)
	}
	if id.ID != "key-1" || len(id.Roles) != 2 {
		t.Errorf("Whoami() = %+v", id)
	}

	_, err = New(server.URL, "bad").Whoami(context.Background())
	if !IsCode(err, "UNAUTHORIZED") {
		t.Errorf("Whoami() error = %v, want UNAUTHORIZED", err)
	}
}
