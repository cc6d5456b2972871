package domain

import "github.com/holiman/uint256"

// Burner accumulates share burn requests until a report commits them.
// Cover shares compensate losses; non-cover shares come from the withdrawal
// queue and other voluntary burns.
type Burner struct {
	CoverShares              *uint256.Int `json:"coverShares"`
	NonCoverShares           *uint256.Int `json:"nonCoverShares"`
	TotalCoverSharesBurnt    *uint256.Int `json:"totalCoverSharesBurnt"`
	TotalNonCoverSharesBurnt *uint256.Int `json:"totalNonCoverSharesBurnt"`
}

func newBurner() *Burner {
	return &Burner{
		CoverShares:              zero(),
		NonCoverShares:           zero(),
		TotalCoverSharesBurnt:    zero(),
		TotalNonCoverSharesBurnt: zero(),
	}
}

// Requested returns the pending cover plus non-cover shares.
func (b *Burner) Requested() *uint256.Int {
	return add(b.CoverShares, b.NonCoverShares)
}

func (b *Burner) request(shares *uint256.Int, cover bool) {
	if cover {
		b.CoverShares.Add(b.CoverShares, shares)
		return
	}
	b.NonCoverShares.Add(b.NonCoverShares, shares)
}

// commit settles sharesToBurn against pending requests, cover first.
func (b *Burner) commit(sharesToBurn *uint256.Int) (cover, nonCover *uint256.Int, err error) {
	if sharesToBurn.Gt(b.Requested()) {
		return nil, nil, fault(ErrBurnAmountExceedsActual, sharesToBurn, b.Requested())
	}
	cover = minOf(b.CoverShares, sharesToBurn)
	nonCover = sub(sharesToBurn, cover)

	b.CoverShares.Sub(b.CoverShares, cover)
	b.NonCoverShares.Sub(b.NonCoverShares, nonCover)
	b.TotalCoverSharesBurnt.Add(b.TotalCoverSharesBurnt, cover)
	b.TotalNonCoverSharesBurnt.Add(b.TotalNonCoverSharesBurnt, nonCover)
	return cover, nonCover, nil
}

func (b *Burner) clone() *Burner {
	return &Burner{
		CoverShares:              b.CoverShares.Clone(),
		NonCoverShares:           b.NonCoverShares.Clone(),
		TotalCoverSharesBurnt:    b.TotalCoverSharesBurnt.Clone(),
		TotalNonCoverSharesBurnt: b.TotalNonCoverSharesBurnt.Clone(),
	}
}

func (b *Burner) normalize() {
	b.CoverShares = orZero(b.CoverShares)
	b.NonCoverShares = orZero(b.NonCoverShares)
	b.TotalCoverSharesBurnt = orZero(b.TotalCoverSharesBurnt)
	b.TotalNonCoverSharesBurnt = orZero(b.TotalNonCoverSharesBurnt)
}
