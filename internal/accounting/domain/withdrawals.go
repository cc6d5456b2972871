package domain

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// WithdrawalRequest is a queued redemption. Cumulative amounts include every
// earlier request so any contiguous range can be valued with two lookups.
type WithdrawalRequest struct {
	ID               uint64         `json:"id"`
	Owner            common.Address `json:"owner"`
	CumulativeStETH  *uint256.Int   `json:"cumulativeStETH"`
	CumulativeShares *uint256.Int   `json:"cumulativeShares"`
	Timestamp        uint64         `json:"timestamp"`
	Claimed          bool           `json:"claimed"`
}

// Checkpoint marks the share rate a range of requests was finalized at.
type Checkpoint struct {
	FromRequestID uint64       `json:"fromRequestId"`
	MaxShareRate  *uint256.Int `json:"maxShareRate"`
}

// WithdrawalQueue is the append-only queue of redemption requests.
// Requests[0] and Checkpoints[0] are sentinels.
type WithdrawalQueue struct {
	Requests               []WithdrawalRequest `json:"requests"`
	Checkpoints            []Checkpoint        `json:"checkpoints"`
	LastFinalizedRequestID uint64              `json:"lastFinalizedRequestId"`
	LockedEther            *uint256.Int        `json:"lockedEther"`
	Paused                 bool                `json:"paused"`
	BunkerMode             bool                `json:"bunkerMode"`
	BunkerModeSince        uint64              `json:"bunkerModeSince"`
}

// RequestStatus is the externally visible state of one request.
type RequestStatus struct {
	ID             uint64         `json:"id"`
	Owner          common.Address `json:"owner"`
	AmountOfStETH  *uint256.Int   `json:"amountOfStETH"`
	AmountOfShares *uint256.Int   `json:"amountOfShares"`
	Timestamp      uint64         `json:"timestamp"`
	Finalized      bool           `json:"isFinalized"`
	Claimed        bool           `json:"isClaimed"`
	Claimable      *uint256.Int   `json:"claimableEther"`
}

// QueueStatus summarizes the queue.
type QueueStatus struct {
	LastRequestID            uint64       `json:"lastRequestId"`
	LastFinalizedRequestID   uint64       `json:"lastFinalizedRequestId"`
	LastCheckpointIndex      uint64       `json:"lastCheckpointIndex"`
	UnfinalizedRequestNumber uint64       `json:"unfinalizedRequestNumber"`
	UnfinalizedStETH         *uint256.Int `json:"unfinalizedStETH"`
	LockedEther              *uint256.Int `json:"lockedEther"`
	Paused                   bool         `json:"paused"`
	BunkerMode               bool         `json:"bunkerMode"`
	BunkerModeSince          uint64       `json:"bunkerModeSince,omitempty"`
}

// FinalizationBatches is the output of CalculateFinalizationBatches.
type FinalizationBatches struct {
	Batches   []uint64     `json:"batches"`
	EthToLock *uint256.Int `json:"ethToLock"`
	Remaining *uint256.Int `json:"remainingEthBudget"`
	Finished  bool         `json:"finished"`
}

func newWithdrawalQueue(paused bool) *WithdrawalQueue {
	return &WithdrawalQueue{
		Requests: []WithdrawalRequest{{
			CumulativeStETH:  zero(),
			CumulativeShares: zero(),
			Claimed:          true,
		}},
		Checkpoints: []Checkpoint{{
			FromRequestID: 0,
			MaxShareRate:  new(uint256.Int).SetAllOne(),
		}},
		LockedEther: zero(),
		Paused:      paused,
	}
}

// LastRequestID is the id of the newest request, 0 when the queue is empty.
func (q *WithdrawalQueue) LastRequestID() uint64 {
	return uint64(len(q.Requests) - 1)
}

// UnfinalizedStETH is the nominal stETH of requests not yet finalized.
func (q *WithdrawalQueue) UnfinalizedStETH() *uint256.Int {
	return sub(q.Requests[q.LastRequestID()].CumulativeStETH, q.Requests[q.LastFinalizedRequestID].CumulativeStETH)
}

// Status summarizes the queue.
func (q *WithdrawalQueue) Status() QueueStatus {
	return QueueStatus{
		LastRequestID:            q.LastRequestID(),
		LastFinalizedRequestID:   q.LastFinalizedRequestID,
		LastCheckpointIndex:      uint64(len(q.Checkpoints) - 1),
		UnfinalizedRequestNumber: q.LastRequestID() - q.LastFinalizedRequestID,
		UnfinalizedStETH:         q.UnfinalizedStETH(),
		LockedEther:              q.LockedEther.Clone(),
		Paused:                   q.Paused,
		BunkerMode:               q.BunkerMode,
		BunkerModeSince:          q.BunkerModeSince,
	}
}

func (q *WithdrawalQueue) enqueue(owner common.Address, stETH, shares *uint256.Int, timestamp uint64) uint64 {
	last := q.Requests[q.LastRequestID()]
	id := q.LastRequestID() + 1
	q.Requests = append(q.Requests, WithdrawalRequest{
		ID:               id,
		Owner:            owner,
		CumulativeStETH:  add(last.CumulativeStETH, stETH),
		CumulativeShares: add(last.CumulativeShares, shares),
		Timestamp:        timestamp,
	})
	return id
}

// rangeAmounts returns the stETH and shares of requests (from, to].
func (q *WithdrawalQueue) rangeAmounts(from, to uint64) (stETH, shares *uint256.Int) {
	start, end := q.Requests[from], q.Requests[to]
	return sub(end.CumulativeStETH, start.CumulativeStETH), sub(end.CumulativeShares, start.CumulativeShares)
}

// batchEther is the ether owed for a range at maxShareRate: nominal when the
// range's own rate is at or below the max, discounted otherwise.
func batchEther(stETH, shares, maxShareRate *uint256.Int) *uint256.Int {
	if ShareRate(stETH, shares).Gt(maxShareRate) {
		return mulDiv(shares, maxShareRate, shareRatePrecision)
	}
	return stETH.Clone()
}

func (q *WithdrawalQueue) validateBatches(batches []uint64, maxShareRate *uint256.Int) error {
	if maxShareRate.IsZero() {
		return fault(ErrZeroShareRate)
	}
	if len(batches) == 0 {
		return fault(ErrEmptyBatches)
	}
	if batches[0] <= q.LastFinalizedRequestID {
		return fault(ErrInvalidRequestID, u64(batches[0]))
	}
	if last := batches[len(batches)-1]; last > q.LastRequestID() {
		return fault(ErrInvalidRequestID, u64(last))
	}
	for i := 1; i < len(batches); i++ {
		if batches[i] <= batches[i-1] {
			return fault(ErrBatchesAreNotSorted)
		}
	}
	return nil
}

// Prefinalize values the given batches at maxShareRate without changing the
// queue. batches are the last request ids of each batch, strictly increasing.
func (q *WithdrawalQueue) Prefinalize(batches []uint64, maxShareRate *uint256.Int) (ethToLock, sharesToBurn *uint256.Int, err error) {
	if err := q.validateBatches(batches, maxShareRate); err != nil {
		return nil, nil, err
	}
	ethToLock, sharesToBurn = zero(), zero()
	prev := q.LastFinalizedRequestID
	for _, end := range batches {
		stETH, shares := q.rangeAmounts(prev, end)
		ethToLock.Add(ethToLock, batchEther(stETH, shares, maxShareRate))
		sharesToBurn.Add(sharesToBurn, shares)
		prev = end
	}
	return ethToLock, sharesToBurn, nil
}

// finalize marks every request up to the last batch finalized, appending one
// checkpoint per batch, and locks amount of ether for claims.
func (q *WithdrawalQueue) finalize(batches []uint64, maxShareRate, amount *uint256.Int) error {
	if err := q.validateBatches(batches, maxShareRate); err != nil {
		return err
	}
	last := batches[len(batches)-1]
	nominal, _ := q.rangeAmounts(q.LastFinalizedRequestID, last)
	if amount.Gt(nominal) {
		return fault(ErrTooMuchEtherToFinalize, amount, nominal)
	}
	prev := q.LastFinalizedRequestID
	for _, end := range batches {
		q.Checkpoints = append(q.Checkpoints, Checkpoint{
			FromRequestID: prev + 1,
			MaxShareRate:  maxShareRate.Clone(),
		})
		prev = end
	}
	q.LockedEther.Add(q.LockedEther, amount)
	q.LastFinalizedRequestID = last
	return nil
}

// findCheckpoint returns the checkpoint a finalized request was settled at.
func (q *WithdrawalQueue) findCheckpoint(id uint64) Checkpoint {
	i := sort.Search(len(q.Checkpoints), func(i int) bool {
		return q.Checkpoints[i].FromRequestID > id
	})
	return q.Checkpoints[i-1]
}

// claimableEther is min(nominal stETH, shares at the checkpoint rate).
func (q *WithdrawalQueue) claimableEther(id uint64) *uint256.Int {
	stETH, shares := q.rangeAmounts(id-1, id)
	cp := q.findCheckpoint(id)
	return minOf(stETH, mulDiv(shares, cp.MaxShareRate, shareRatePrecision))
}

func (q *WithdrawalQueue) claim(owner common.Address, id uint64) (*uint256.Int, error) {
	if id == 0 || id > q.LastRequestID() {
		return nil, ErrRequestNotFound
	}
	if id > q.LastFinalizedRequestID {
		return nil, ErrRequestNotFinalized
	}
	req := &q.Requests[id]
	if req.Claimed {
		return nil, ErrRequestAlreadyClaimed
	}
	if req.Owner != owner {
		return nil, ErrNotRequestOwner
	}
	amount := q.claimableEther(id)
	req.Claimed = true
	q.LockedEther.Sub(q.LockedEther, amount)
	return amount, nil
}

// RequestStatus returns the state of request id.
func (q *WithdrawalQueue) RequestStatus(id uint64) (*RequestStatus, error) {
	if id == 0 || id > q.LastRequestID() {
		return nil, ErrRequestNotFound
	}
	req := q.Requests[id]
	stETH, shares := q.rangeAmounts(id-1, id)
	st := &RequestStatus{
		ID:             id,
		Owner:          req.Owner,
		AmountOfStETH:  stETH,
		AmountOfShares: shares,
		Timestamp:      req.Timestamp,
		Finalized:      id <= q.LastFinalizedRequestID,
		Claimed:        req.Claimed,
		Claimable:      zero(),
	}
	if st.Finalized && !st.Claimed {
		st.Claimable = q.claimableEther(id)
	}
	return st, nil
}

// WithdrawalFilter selects requests for ListRequests.
type WithdrawalFilter struct {
	Owner       *common.Address
	Unfinalized bool
	AfterID     uint64
	Limit       int
}

// ListRequests returns requests in id order after f.AfterID.
func (q *WithdrawalQueue) ListRequests(f WithdrawalFilter) []RequestStatus {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	start := f.AfterID + 1
	if f.Unfinalized && start <= q.LastFinalizedRequestID {
		start = q.LastFinalizedRequestID + 1
	}
	out := []RequestStatus{}
	for id := start; id <= q.LastRequestID() && len(out) < limit; id++ {
		if f.Owner != nil && q.Requests[id].Owner != *f.Owner {
			continue
		}
		st, _ := q.RequestStatus(id)
		out = append(out, *st)
	}
	return out
}

// CalculateFinalizationBatches splits unfinalized requests into batches an
// oracle can report. A new batch starts whenever a request's own share rate
// crosses maxShareRate, so every batch is valued uniformly by Prefinalize.
// It stops at the first request newer than maxTimestamp, at the first request
// the remaining ether budget cannot cover, or after maxBatches batches.
func (q *WithdrawalQueue) CalculateFinalizationBatches(maxShareRate *uint256.Int, maxTimestamp uint64, maxBatches int, ethBudget *uint256.Int) (*FinalizationBatches, error) {
	if maxShareRate.IsZero() || maxBatches <= 0 {
		return nil, ErrInvalidBatchCalculation
	}
	out := &FinalizationBatches{EthToLock: zero(), Remaining: ethBudget.Clone()}

	var prevDiscounted bool
	for id := q.LastFinalizedRequestID + 1; id <= q.LastRequestID(); id++ {
		if q.Requests[id].Timestamp > maxTimestamp {
			out.Finished = true
			return out, nil
		}
		stETH, shares := q.rangeAmounts(id-1, id)
		discounted := ShareRate(stETH, shares).Gt(maxShareRate)
		eth := batchEther(stETH, shares, maxShareRate)
		if eth.Gt(out.Remaining) {
			out.Finished = true
			return out, nil
		}

		if len(out.Batches) > 0 && discounted == prevDiscounted {
			out.Batches[len(out.Batches)-1] = id
		} else {
			if len(out.Batches) == maxBatches {
				return out, nil
			}
			out.Batches = append(out.Batches, id)
		}
		prevDiscounted = discounted
		out.Remaining.Sub(out.Remaining, eth)
		out.EthToLock.Add(out.EthToLock, eth)
	}
	out.Finished = true
	return out, nil
}

// onOracleReport tracks bunker mode transitions reported by the oracle.
func (q *WithdrawalQueue) onOracleReport(isBunkerMode bool, reportTimestamp uint64) {
	switch {
	case isBunkerMode && !q.BunkerMode:
		q.BunkerMode = true
		q.BunkerModeSince = reportTimestamp
	case !isBunkerMode && q.BunkerMode:
		q.BunkerMode = false
		q.BunkerModeSince = 0
	}
}

func (q *WithdrawalQueue) clone() *WithdrawalQueue {
	c := *q
	c.Requests = make([]WithdrawalRequest, len(q.Requests))
	for i, r := range q.Requests {
		r.CumulativeStETH = r.CumulativeStETH.Clone()
		r.CumulativeShares = r.CumulativeShares.Clone()
		c.Requests[i] = r
	}
	c.Checkpoints = make([]Checkpoint, len(q.Checkpoints))
	for i, cp := range q.Checkpoints {
		c.Checkpoints[i] = Checkpoint{FromRequestID: cp.FromRequestID, MaxShareRate: cp.MaxShareRate.Clone()}
	}
	c.LockedEther = q.LockedEther.Clone()
	return &c
}

func (q *WithdrawalQueue) normalize() {
	if len(q.Requests) == 0 || len(q.Checkpoints) == 0 {
		fresh := newWithdrawalQueue(q.Paused)
		q.Requests, q.Checkpoints = fresh.Requests, fresh.Checkpoints
	}
	for i := range q.Requests {
		q.Requests[i].CumulativeStETH = orZero(q.Requests[i].CumulativeStETH)
		q.Requests[i].CumulativeShares = orZero(q.Requests[i].CumulativeShares)
	}
	q.LockedEther = orZero(q.LockedEther)
}
