// Package beacon reads the pool's validators from a consensus node and turns
// them into the consensus layer part of an oracle report.
package beacon

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/attestantio/go-eth2-client/api"
	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	eth2http "github.com/attestantio/go-eth2-client/http"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

// Mainnet timing.
const (
	DefaultSlotsPerEpoch  = 32
	DefaultSecondsPerSlot = 12
)

var gweiToWei = uint256.NewInt(1_000_000_000)

// ErrNoFinality is returned before the chain has finalized an epoch.
var ErrNoFinality = errors.New("no finalized checkpoint")

// Node is the subset of a consensus client the reader needs.
type Node interface {
	Genesis(ctx context.Context, opts *api.GenesisOpts) (*api.Response[*apiv1.Genesis], error)
	Finality(ctx context.Context, opts *api.FinalityOpts) (*api.Response[*apiv1.Finality], error)
	Validators(ctx context.Context, opts *api.ValidatorsOpts) (*api.Response[map[phase0.ValidatorIndex]*apiv1.Validator], error)
}

// Snapshot is the pool's consensus layer view at a finalized epoch.
type Snapshot struct {
	Epoch      uint64
	Timestamp  uint64
	Validators uint64
	Balance    *uint256.Int // wei
	Pending    uint64
}

// Reader builds snapshots for a fixed set of validator pubkeys.
type Reader struct {
	node           Node
	pubkeys        []phase0.BLSPubKey
	slotsPerEpoch  uint64
	secondsPerSlot uint64
}

// Option configures a Reader.
type Option func(*Reader)

// WithTiming overrides the mainnet slot timing, for devnets.
func WithTiming(slotsPerEpoch, secondsPerSlot uint64) Option {
	return func(r *Reader) {
		if slotsPerEpoch > 0 {
			r.slotsPerEpoch = slotsPerEpoch
		}
		if secondsPerSlot > 0 {
			r.secondsPerSlot = secondsPerSlot
		}
	}
}

// NewReader creates a reader over an existing node client.
func NewReader(node Node, pubkeys []phase0.BLSPubKey, opts ...Option) *Reader {
	r := &Reader{
		node:           node,
		pubkeys:        pubkeys,
		slotsPerEpoch:  DefaultSlotsPerEpoch,
		secondsPerSlot: DefaultSecondsPerSlot,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dial connects to the beacon node HTTP API at endpoint.
func Dial(ctx context.Context, endpoint string, timeout time.Duration) (Node, error) {
	// Silence go-eth2-client logs unless they are warnings+.
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	client, err := eth2http.New(ctx,
		eth2http.WithAddress(endpoint),
		eth2http.WithHTTPClient(&http.Client{Timeout: 2 * timeout}),
		eth2http.WithTimeout(timeout),
		eth2http.WithLogLevel(zerolog.WarnLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to beacon node: %w", err)
	}
	return client.(*eth2http.Service), nil
}

// Snapshot reads the balances of the reader's validators at the latest
// finalized epoch. Validators unknown to the node are not counted.
func (r *Reader) Snapshot(ctx context.Context) (*Snapshot, error) {
	genesis, err := r.node.Genesis(ctx, &api.GenesisOpts{})
	if err != nil {
		return nil, fmt.Errorf("fetching genesis: %w", err)
	}

	finality, err := r.node.Finality(ctx, &api.FinalityOpts{State: "head"})
	if err != nil {
		return nil, fmt.Errorf("fetching finality: %w", err)
	}
	if finality.Data == nil || finality.Data.Finalized == nil || finality.Data.Finalized.Epoch == 0 {
		return nil, ErrNoFinality
	}
	epoch := uint64(finality.Data.Finalized.Epoch)

	snap := &Snapshot{
		Epoch:     epoch,
		Timestamp: uint64(genesis.Data.GenesisTime.Unix()) + epoch*r.slotsPerEpoch*r.secondsPerSlot,
		Balance:   new(uint256.Int),
	}
	if len(r.pubkeys) == 0 {
		return snap, nil
	}

	validators, err := r.node.Validators(ctx, &api.ValidatorsOpts{
		State:   "finalized",
		PubKeys: r.pubkeys,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching validators: %w", err)
	}

	for _, v := range validators.Data {
		if v.Status == apiv1.ValidatorStateUnknown {
			continue
		}
		if v.Status.IsPending() {
			snap.Pending++
		}
		snap.Validators++
		wei := new(uint256.Int).Mul(uint256.NewInt(uint64(v.Balance)), gweiToWei)
		snap.Balance.Add(snap.Balance, wei)
	}
	return snap, nil
}

// ParsePubkeys decodes 0x-prefixed or bare hex BLS public keys.
func ParsePubkeys(keys []string) ([]phase0.BLSPubKey, error) {
	out := make([]phase0.BLSPubKey, 0, len(keys))
	seen := make(map[phase0.BLSPubKey]bool, len(keys))
	for _, k := range keys {
		raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(k), "0x"))
		if err != nil {
			return nil, fmt.Errorf("decoding pubkey %q: %w", k, err)
		}
		if len(raw) != phase0.PublicKeyLength {
			return nil, fmt.Errorf("invalid pubkey length %d for %q", len(raw), k)
		}
		var pk phase0.BLSPubKey
		copy(pk[:], raw)
		if seen[pk] {
			continue
		}
		seen[pk] = true
		out = append(out, pk)
	}
	return out, nil
}
