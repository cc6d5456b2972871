// Package client provides a Go client for the poolkeeper API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Client is a poolkeeper API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new poolkeeper client
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Report is an oracle report. Amounts are in wei and encode as decimal strings.
type Report struct {
	ReportTimestamp               uint64       `json:"reportTimestamp" toml:"report_timestamp"`
	TimeElapsed                   uint64       `json:"timeElapsed" toml:"time_elapsed"`
	CLValidators                  uint64       `json:"clValidators" toml:"cl_validators"`
	PostCLBalance                 *uint256.Int `json:"postCLBalance" toml:"post_cl_balance"`
	WithdrawalVaultBalance        *uint256.Int `json:"withdrawalVaultBalance" toml:"withdrawal_vault_balance"`
	ELRewardsVaultBalance         *uint256.Int `json:"elRewardsVaultBalance" toml:"el_rewards_vault_balance"`
	SharesRequestedToBurn         *uint256.Int `json:"sharesRequestedToBurn" toml:"shares_requested_to_burn"`
	WithdrawalFinalizationBatches []uint64     `json:"withdrawalFinalizationBatches" toml:"withdrawal_finalization_batches"`
	SimulatedShareRate            *uint256.Int `json:"simulatedShareRate" toml:"simulated_share_rate"`
	IsBunkerMode                  bool         `json:"isBunkerMode" toml:"is_bunker_mode"`
}

// ReportResult is the outcome of an applied or simulated report
type ReportResult struct {
	ReportID                     string       `json:"reportId,omitempty"`
	Version                      uint64       `json:"version,omitempty"`
	PostTotalPooledEther         *uint256.Int `json:"postTotalPooledEther"`
	PostTotalShares              *uint256.Int `json:"postTotalShares"`
	WithdrawalsWithdrawn         *uint256.Int `json:"withdrawalsWithdrawn"`
	ELRewardsWithdrawn           *uint256.Int `json:"elRewardsWithdrawn"`
	PreTotalPooledEther          *uint256.Int `json:"preTotalPooledEther"`
	PreTotalShares               *uint256.Int `json:"preTotalShares"`
	PreCLBalance                 *uint256.Int `json:"preCLBalance"`
	SharesMintedAsFees           *uint256.Int `json:"sharesMintedAsFees"`
	SharesBurnt                  *uint256.Int `json:"sharesBurnt"`
	EtherLockedOnWithdrawalQueue *uint256.Int `json:"etherLockedOnWithdrawalQueue"`
	LastFinalizedRequestID       uint64       `json:"lastFinalizedRequestId"`
	ShareRate                    *uint256.Int `json:"shareRate"`
	Events                       []Event      `json:"events"`
}

// Event is a named event with its raw payload
type Event struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// CheckResult is the outcome of a report check
type CheckResult struct {
	Valid   bool   `json:"valid"`
	Code    string `json:"code,omitempty"`
	Class   string `json:"class,omitempty"`
	Message string `json:"message,omitempty"`
}

// BeaconStat is the pool's view of its validators
type BeaconStat struct {
	DepositedValidators uint64       `json:"depositedValidators"`
	BeaconValidators    uint64       `json:"beaconValidators"`
	BeaconBalance       *uint256.Int `json:"beaconBalance"`
}

// QueueStatus summarizes the withdrawal queue
type QueueStatus struct {
	LastRequestID            uint64       `json:"lastRequestId"`
	LastFinalizedRequestID   uint64       `json:"lastFinalizedRequestId"`
	UnfinalizedRequestNumber uint64       `json:"unfinalizedRequestNumber"`
	UnfinalizedStETH         *uint256.Int `json:"unfinalizedStETH"`
	LockedEther              *uint256.Int `json:"lockedEther"`
	Paused                   bool         `json:"paused"`
	BunkerMode               bool         `json:"bunkerMode"`
}

// SanityLimits bound what a single report may change
type SanityLimits struct {
	ChurnValidatorsPerDayLimit         uint64 `json:"churnValidatorsPerDayLimit"`
	OneOffCLBalanceDecreaseBPLimit     uint64 `json:"oneOffCLBalanceDecreaseBPLimit"`
	AnnualBalanceIncreaseBPLimit       uint64 `json:"annualBalanceIncreaseBPLimit"`
	SimulatedShareRateDeviationBPLimit uint64 `json:"simulatedShareRateDeviationBPLimit"`
	MaxPositiveTokenRebase             uint64 `json:"maxPositiveTokenRebase"`
	RequestTimestampMargin             uint64 `json:"requestTimestampMargin"`
}

// FeeDistribution splits protocol fees
type FeeDistribution struct {
	Treasury      common.Address `json:"treasury"`
	TreasuryFeeBP uint64         `json:"treasuryFeeBP"`
	Module        common.Address `json:"module"`
	ModuleFeeBP   uint64         `json:"moduleFeeBP"`
}

// State is the pool overview
type State struct {
	TotalPooledEther    *uint256.Int    `json:"totalPooledEther"`
	TotalShares         *uint256.Int    `json:"totalShares"`
	ShareRate           *uint256.Int    `json:"shareRate"`
	BufferedEther       *uint256.Int    `json:"bufferedEther"`
	DepositableEther    *uint256.Int    `json:"depositableEther"`
	TransientBalance    *uint256.Int    `json:"transientBalance"`
	Beacon              BeaconStat      `json:"beaconStat"`
	WithdrawalVault     *uint256.Int    `json:"withdrawalVaultBalance"`
	ELRewardsVault      *uint256.Int    `json:"elRewardsVaultBalance"`
	CoverShares         *uint256.Int    `json:"coverSharesRequestedToBurn"`
	NonCoverShares      *uint256.Int    `json:"nonCoverSharesRequestedToBurn"`
	Queue               QueueStatus     `json:"withdrawalQueue"`
	Limits              SanityLimits    `json:"limits"`
	Fees                FeeDistribution `json:"fees"`
	Stopped             bool            `json:"stopped"`
	LastReportTimestamp uint64          `json:"lastReportTimestamp"`
	Version             uint64          `json:"version"`
}

// Holder is a share owner and its ether balance
type Holder struct {
	Address common.Address `json:"address"`
	Shares  *uint256.Int   `json:"shares"`
	Balance *uint256.Int   `json:"balance"`
}

// Withdrawal is the state of one withdrawal request
type Withdrawal struct {
	ID             uint64         `json:"id"`
	Owner          common.Address `json:"owner"`
	AmountOfStETH  *uint256.Int   `json:"amountOfStETH"`
	AmountOfShares *uint256.Int   `json:"amountOfShares"`
	Timestamp      uint64         `json:"timestamp"`
	Finalized      bool           `json:"isFinalized"`
	Claimed        bool           `json:"isClaimed"`
	Claimable      *uint256.Int   `json:"claimableEther"`
}

// WithdrawalFilter selects withdrawal requests
type WithdrawalFilter struct {
	Owner       *common.Address
	Unfinalized bool
	AfterID     uint64
	Limit       int
}

// BatchRequest holds the inputs of a finalization batch proposal. Zero values use server defaults.
type BatchRequest struct {
	MaxShareRate *uint256.Int `json:"maxShareRate,omitempty"`
	MaxTimestamp uint64       `json:"maxTimestamp,omitempty"`
	MaxBatches   int          `json:"maxBatches,omitempty"`
	EthBudget    *uint256.Int `json:"ethBudget,omitempty"`
}

// FinalizationBatches is a proposed set of batches
type FinalizationBatches struct {
	Batches   []uint64     `json:"batches"`
	EthToLock *uint256.Int `json:"ethToLock"`
	Remaining *uint256.Int `json:"remainingEthBudget"`
	Finished  bool         `json:"finished"`
}

// ReportRecord is a stored report with its outcome
type ReportRecord struct {
	ID              string        `json:"id"`
	Version         uint64        `json:"version,omitempty"`
	ReportTimestamp uint64        `json:"reportTimestamp"`
	Hash            string        `json:"hash"`
	Status          string        `json:"status"`
	ErrorCode       string        `json:"errorCode,omitempty"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`
	SubmittedBy     string        `json:"submittedBy,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	Report          Report        `json:"report"`
	Result          *ReportResult `json:"result,omitempty"`
}

// EventRecord is a stored event
type EventRecord struct {
	ID        string          `json:"id"`
	Version   uint64          `json:"version"`
	Index     int             `json:"index"`
	Operation string          `json:"operation"`
	ReportID  string          `json:"reportId,omitempty"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ListReportsResponse is the response for listing reports
type ListReportsResponse struct {
	Data       []ReportRecord `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

// ListEventsResponse is the response for listing events
type ListEventsResponse struct {
	Data       []EventRecord `json:"data"`
	Pagination Pagination    `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsCode reports whether err is an APIError with the given code, such as the
// report fault "IncorrectCLBalanceDecrease".
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Reads

// State returns the pool overview
func (c *Client) State(ctx context.Context) (*State, error) {
	var resp State
	if err := c.get(ctx, "/api/v1/state", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Holder returns the shares and balance of an address
func (c *Client) Holder(ctx context.Context, addr common.Address) (*Holder, error) {
	var resp Holder
	if err := c.get(ctx, "/api/v1/holders/"+addr.Hex(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SimulateReport dry-runs a report without changing the pool
func (c *Client) SimulateReport(ctx context.Context, report Report) (*ReportResult, error) {
	var resp ReportResult
	if err := c.send(ctx, http.MethodPost, "/api/v1/reports/simulate", report, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckReport runs the sanity checks on a report
func (c *Client) CheckReport(ctx context.Context, report Report) (*CheckResult, error) {
	var resp CheckResult
	if err := c.send(ctx, http.MethodPost, "/api/v1/reports/check", report, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetReport gets a stored report by id
func (c *Client) GetReport(ctx context.Context, id string) (*ReportRecord, error) {
	var resp ReportRecord
	if err := c.get(ctx, "/api/v1/reports/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListReports lists stored reports, newest first. status may be empty, "accepted" or "rejected".
func (c *Client) ListReports(ctx context.Context, status string, limit int, cursor string) (*ListReportsResponse, error) {
	q := url.Values{}
	setIf(q, "status", status)
	setIf(q, "cursor", cursor)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp ListReportsResponse
	if err := c.get(ctx, withQuery("/api/v1/reports", q), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListEvents lists stored events, newest first
func (c *Client) ListEvents(ctx context.Context, name, reportID string, limit int, cursor string) (*ListEventsResponse, error) {
	q := url.Values{}
	setIf(q, "name", name)
	setIf(q, "report_id", reportID)
	setIf(q, "cursor", cursor)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp ListEventsResponse
	if err := c.get(ctx, withQuery("/api/v1/events", q), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListWithdrawals lists withdrawal requests in id order
func (c *Client) ListWithdrawals(ctx context.Context, filter WithdrawalFilter) ([]Withdrawal, error) {
	q := url.Values{}
	if filter.Owner != nil {
		q.Set("owner", filter.Owner.Hex())
	}
	if filter.Unfinalized {
		q.Set("unfinalized", "true")
	}
	if filter.AfterID > 0 {
		q.Set("after", strconv.FormatUint(filter.AfterID, 10))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	var resp struct {
		Data []Withdrawal `json:"data"`
	}
	if err := c.get(ctx, withQuery("/api/v1/withdrawals", q), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetWithdrawal gets one withdrawal request
func (c *Client) GetWithdrawal(ctx context.Context, id uint64) (*Withdrawal, error) {
	var resp Withdrawal
	if err := c.get(ctx, "/api/v1/withdrawals/"+strconv.FormatUint(id, 10), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FinalizationBatches proposes finalization batches for the next report
func (c *Client) FinalizationBatches(ctx context.Context, req BatchRequest) (*FinalizationBatches, error) {
	var resp FinalizationBatches
	if err := c.send(ctx, http.MethodPost, "/api/v1/withdrawals/batches", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Identity is the caller an API key resolves to
type Identity struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// Whoami returns the identity behind the client's API key. It fails with
// UNAUTHORIZED when the server requires keys and the key is unknown.
func (c *Client) Whoami(ctx context.Context) (*Identity, error) {
	var resp Identity
	if err := c.get(ctx, "/api/v1/whoami", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Writes

// SubmitReport applies an oracle report. Requires the oracle role.
func (c *Client) SubmitReport(ctx context.Context, report Report) (*ReportResult, error) {
	var resp ReportResult
	if err := c.send(ctx, http.MethodPost, "/api/v1/reports", report, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit stakes ether for holder and returns the minted shares
func (c *Client) Submit(ctx context.Context, holder common.Address, amount *uint256.Int) (*uint256.Int, error) {
	var resp struct {
		Shares *uint256.Int `json:"shares"`
	}
	body := map[string]any{"holder": holder, "amount": amount}
	if err := c.send(ctx, http.MethodPost, "/api/v1/submit", body, &resp); err != nil {
		return nil, err
	}
	return resp.Shares, nil
}

// Deposit moves buffered ether to new validators
func (c *Client) Deposit(ctx context.Context, validators uint64) error {
	return c.send(ctx, http.MethodPost, "/api/v1/deposits", map[string]uint64{"validators": validators}, nil)
}

// RequestWithdrawals queues withdrawal requests for owner
func (c *Client) RequestWithdrawals(ctx context.Context, owner common.Address, amounts []*uint256.Int) ([]uint64, error) {
	var resp struct {
		RequestIDs []uint64 `json:"requestIds"`
	}
	body := map[string]any{"owner": owner, "amounts": amounts}
	if err := c.send(ctx, http.MethodPost, "/api/v1/withdrawals", body, &resp); err != nil {
		return nil, err
	}
	return resp.RequestIDs, nil
}

// ClaimWithdrawal claims a finalized request and returns the ether paid out
func (c *Client) ClaimWithdrawal(ctx context.Context, owner common.Address, id uint64) (*uint256.Int, error) {
	var resp struct {
		Amount *uint256.Int `json:"amount"`
	}
	path := fmt.Sprintf("/api/v1/withdrawals/%d/claim", id)
	if err := c.send(ctx, http.MethodPost, path, map[string]any{"owner": owner}, &resp); err != nil {
		return nil, err
	}
	return resp.Amount, nil
}

// RequestBurn locks owner's shares for burning at the next report
func (c *Client) RequestBurn(ctx context.Context, owner common.Address, shares *uint256.Int, cover bool) error {
	body := map[string]any{"owner": owner, "shares": shares, "cover": cover}
	return c.send(ctx, http.MethodPost, "/api/v1/burns", body, nil)
}

// FundVault credits a vault ("withdrawal" or "el-rewards")
func (c *Client) FundVault(ctx context.Context, kind string, amount *uint256.Int) error {
	path := "/api/v1/vaults/" + url.PathEscape(kind) + "/fund"
	return c.send(ctx, http.MethodPost, path, map[string]any{"amount": amount}, nil)
}

// SetLimits replaces the sanity limits. Requires the governance role.
func (c *Client) SetLimits(ctx context.Context, limits SanityLimits) error {
	return c.send(ctx, http.MethodPut, "/api/v1/limits", limits, nil)
}

// SetFees replaces the fee distribution. Requires the governance role.
func (c *Client) SetFees(ctx context.Context, fees FeeDistribution) error {
	return c.send(ctx, http.MethodPut, "/api/v1/fees", fees, nil)
}

// Stop halts staking and report processing
func (c *Client) Stop(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/api/v1/admin/stop", nil, nil)
}

// Resume undoes Stop
func (c *Client) Resume(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/api/v1/admin/resume", nil, nil)
}

// PauseQueue pauses withdrawal requests and finalization
func (c *Client) PauseQueue(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/api/v1/withdrawals/pause", nil, nil)
}

// ResumeQueue undoes PauseQueue
func (c *Client) ResumeQueue(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/api/v1/withdrawals/resume", nil, nil)
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) send(ctx context.Context, method, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
