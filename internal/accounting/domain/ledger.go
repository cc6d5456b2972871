package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ledger tracks shares per holder. The sum of all holder shares always equals
// TotalShares; every mutation preserves that.
type Ledger struct {
	shares      map[common.Address]*uint256.Int
	totalShares *uint256.Int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		shares:      make(map[common.Address]*uint256.Int),
		totalShares: zero(),
	}
}

// TotalShares returns the number of shares in existence.
func (l *Ledger) TotalShares() *uint256.Int {
	return l.totalShares.Clone()
}

// SharesOf returns the shares held by addr.
func (l *Ledger) SharesOf(addr common.Address) *uint256.Int {
	if s, ok := l.shares[addr]; ok {
		return s.Clone()
	}
	return zero()
}

// Mint creates shares for to.
func (l *Ledger) Mint(to common.Address, shares *uint256.Int) error {
	if shares.IsZero() {
		return nil
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	l.credit(to, shares)
	l.totalShares.Add(l.totalShares, shares)
	return nil
}

// Burn destroys shares held by from.
func (l *Ledger) Burn(from common.Address, shares *uint256.Int) error {
	if err := l.debit(from, shares); err != nil {
		return err
	}
	l.totalShares.Sub(l.totalShares, shares)
	return nil
}

// Transfer moves shares between holders.
func (l *Ledger) Transfer(from, to common.Address, shares *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if err := l.debit(from, shares); err != nil {
		return err
	}
	l.credit(to, shares)
	return nil
}

func (l *Ledger) credit(addr common.Address, shares *uint256.Int) {
	if cur, ok := l.shares[addr]; ok {
		cur.Add(cur, shares)
		return
	}
	l.shares[addr] = shares.Clone()
}

func (l *Ledger) debit(addr common.Address, shares *uint256.Int) error {
	if shares.IsZero() {
		return nil
	}
	cur, ok := l.shares[addr]
	if !ok || cur.Lt(shares) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientShares, addr.Hex(), l.SharesOf(addr).Dec(), shares.Dec())
	}
	cur.Sub(cur, shares)
	if cur.IsZero() {
		delete(l.shares, addr)
	}
	return nil
}

// Holders returns all holders with a non-zero balance, ordered by address.
func (l *Ledger) Holders() []common.Address {
	out := make([]common.Address, 0, len(l.shares))
	for addr := range l.shares {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	c := &Ledger{
		shares:      make(map[common.Address]*uint256.Int, len(l.shares)),
		totalShares: l.totalShares.Clone(),
	}
	for addr, s := range l.shares {
		c.shares[addr] = s.Clone()
	}
	return c
}

type ledgerJSON struct {
	TotalShares *uint256.Int                    `json:"totalShares"`
	Shares      map[common.Address]*uint256.Int `json:"shares"`
}

// MarshalJSON implements json.Marshaler.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(ledgerJSON{TotalShares: l.totalShares, Shares: l.shares})
}

// UnmarshalJSON implements json.Unmarshaler and rejects snapshots whose holder
// shares do not add up to the total.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var raw ledgerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.shares = make(map[common.Address]*uint256.Int, len(raw.Shares))
	sum := zero()
	for addr, s := range raw.Shares {
		if s == nil || s.IsZero() {
			continue
		}
		l.shares[addr] = s
		sum.Add(sum, s)
	}
	l.totalShares = orZero(raw.TotalShares)
	if !sum.Eq(l.totalShares) {
		return fmt.Errorf("ledger snapshot: holder shares %s do not match total %s", sum.Dec(), l.totalShares.Dec())
	}
	return nil
}
