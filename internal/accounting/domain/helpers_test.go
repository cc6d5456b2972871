package domain

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	queue    = common.HexToAddress("0x889edC2eDab5f40e902b864aD4d7AdE8E412F9B1")
	burner   = common.HexToAddress("0xD15a672319Cf0352560eE76d9e89eAB0889046D3")
	treasury = common.HexToAddress("0x3e40D73EB977Dc6a537aF587D48316feE66E9C4c")
	module   = common.HexToAddress("0xFdDf38947aFB03C621C71b06C9C70bce73f12999")

	oracle = Caller{ID: "oracle", Roles: []Role{RoleOracle}}
	staker = Caller{ID: "staker", Roles: []Role{RoleStaker}}
	system = SystemCaller()
)

const t0 = 1_700_000_000

func testGenesis() Genesis {
	return Genesis{
		Accounts: Accounts{WithdrawalQueue: queue, Burner: burner},
		Limits:   DefaultSanityLimits(),
		Fees: FeeDistribution{
			Treasury:      treasury,
			TreasuryFeeBP: 500,
			Module:        module,
			ModuleFeeBP:   500,
		},
	}
}

// testClock is a settable clock for engines under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(t0, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Unix() uint64 {
	return uint64(c.Now().Unix())
}

func newTestEngine(t *testing.T, opts ...EngineOption) (*Engine, *testClock) {
	t.Helper()
	state, err := NewState(testGenesis())
	require.NoError(t, err)
	clock := newTestClock()
	opts = append([]EngineOption{WithClock(clock.Now)}, opts...)
	return NewEngine(state, opts...), clock
}

// stakedEngine returns an engine where alice staked 64 ETH and both
// validators were deposited but not yet reported.
func stakedEngine(t *testing.T, opts ...EngineOption) (*Engine, *testClock) {
	t.Helper()
	e, clock := newTestEngine(t, opts...)
	ctx := context.Background()
	_, err := e.Submit(ctx, system, alice, Ether(64))
	require.NoError(t, err)
	require.NoError(t, e.Deposit(ctx, system, 2))
	return e, clock
}

// milliEther returns n / 1000 ETH in wei.
func milliEther(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000))
}

func requireSharesBalanced(t *testing.T, e *Engine) {
	t.Helper()
	sum := new(uint256.Int)
	for _, h := range e.Holders() {
		sum.Add(sum, h.Shares)
	}
	require.Equal(t, e.Overview().TotalShares.Dec(), sum.Dec(), "holder shares must add up to total shares")
}
