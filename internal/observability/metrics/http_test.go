package metrics

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/api/v1/state", "/api/v1/state"},
		{"/api/v1/holders/0x3e40D73EB977Dc6a537aF587D48316feE66E9C4c", "/api/v1/holders/{id}"},
		{"/api/v1/withdrawals/17/claim", "/api/v1/withdrawals/{id}/claim"},
		{"/api/v1/reports/6f1c2a8e-57d4-4b7e-9a1b-0e9d3c2f4a11", "/api/v1/reports/{id}"},
		{"/api/v1/reports/simulate", "/api/v1/reports/simulate"},
		{"/api/v1/vaults/el-rewards/fund", "/api/v1/vaults/el-rewards/fund"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestScaled(t *testing.T) {
	assert.Equal(t, 0.0, scaled(nil, 18))
	assert.InDelta(t, 32.5, scaled(uint256.MustFromDecimal("32500000000000000000"), 18), 1e-9)
	assert.InDelta(t, 1.0, scaled(uint256.MustFromDecimal("1000000000000000000000000000"), 27), 1e-9)
}

func TestRecordersNoopWhenDisabled(t *testing.T) {
	Init(false, "test")
	assert.NotPanics(t, func() {
		ReportProcessed("submit", "accepted", "", 0)
		RebaseLimited("withdrawals")
		Operation("submit", "ok")
		Withdrawals("requested", 3)
		Pool(PoolState{})
	})
}
