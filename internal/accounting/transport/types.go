package transport

import (
	"bytes"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/pendergraft/poolkeeper/internal/accounting/domain"
)

// SubmitRequest is the body of POST /submit.
type SubmitRequest struct {
	Holder common.Address `json:"holder"`
	Amount *uint256.Int   `json:"amount"`
}

// SubmitResponse reports the shares minted for a stake.
type SubmitResponse struct {
	Holder common.Address `json:"holder"`
	Shares *uint256.Int   `json:"shares"`
}

// DepositRequest is the body of POST /deposits.
type DepositRequest struct {
	Validators uint64 `json:"validators"`
}

// WithdrawalRequestBody is the body of POST /withdrawals.
type WithdrawalRequestBody struct {
	Owner   common.Address `json:"owner"`
	Amounts []*uint256.Int `json:"amounts"`
}

// WithdrawalRequestResponse lists the ids of newly queued requests.
type WithdrawalRequestResponse struct {
	RequestIDs []uint64 `json:"requestIds"`
}

// ClaimRequest is the body of POST /withdrawals/{id}/claim.
type ClaimRequest struct {
	Owner common.Address `json:"owner"`
}

// ClaimResponse reports the ether paid out by a claim.
type ClaimResponse struct {
	RequestID uint64       `json:"requestId"`
	Amount    *uint256.Int `json:"amount"`
}

// BurnRequest is the body of POST /burns.
type BurnRequest struct {
	Owner  common.Address `json:"owner"`
	Shares *uint256.Int   `json:"shares"`
	Cover  bool           `json:"cover"`
}

// FundRequest is the body of POST /vaults/{kind}/fund.
type FundRequest struct {
	Amount *uint256.Int `json:"amount"`
}

// EventItem is a named event in a response.
type EventItem struct {
	Name string       `json:"name"`
	Data domain.Event `json:"data"`
}

// ReportResponse is the outcome of an applied or simulated report.
type ReportResponse struct {
	*domain.ReportResult
	ShareRate *uint256.Int `json:"shareRate"`
	Events    []EventItem  `json:"events"`
}

func newReportResponse(r *domain.ReportResult) ReportResponse {
	events := make([]EventItem, len(r.Events))
	for i, ev := range r.Events {
		events[i] = EventItem{Name: ev.EventName(), Data: ev}
	}
	return ReportResponse{ReportResult: r, ShareRate: r.ShareRate(), Events: events}
}

// WhoamiResponse identifies the caller behind a request.
type WhoamiResponse struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// CheckResponse is the outcome of POST /reports/check.
type CheckResponse struct {
	Valid   bool   `json:"valid"`
	Code    string `json:"code,omitempty"`
	Class   string `json:"class,omitempty"`
	Message string `json:"message,omitempty"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor"`
}

// ReportListResponse is the response for listing reports.
type ReportListResponse struct {
	Data       []domain.ReportRecord `json:"data"`
	Pagination Pagination            `json:"pagination"`
}

// EventListResponse is the response for listing events.
type EventListResponse struct {
	Data       []domain.EventRecord `json:"data"`
	Pagination Pagination           `json:"pagination"`
}

// WithdrawalListResponse is the response for listing withdrawal requests.
type WithdrawalListResponse struct {
	Data []domain.RequestStatus `json:"data"`
}

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// decodeStrict rejects unknown fields so typos in report files surface as errors.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
