package server

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/poolkeeper/internal/accounting/domain"
	"github.com/pendergraft/poolkeeper/internal/config"
)

// Genesis builds the settings a fresh pool starts with.
func Genesis(cfg config.ProtocolConfig) (domain.Genesis, error) {
	addrs := map[string]string{
		"withdrawal queue": cfg.WithdrawalQueueAddress,
		"burner":           cfg.BurnerAddress,
		"treasury":         cfg.TreasuryAddress,
		"module":           cfg.ModuleAddress,
	}
	for name, a := range addrs {
		if a != "" && !common.IsHexAddress(a) {
			return domain.Genesis{}, fmt.Errorf("invalid %s address %q", name, a)
		}
	}

	g := domain.Genesis{
		Accounts: domain.Accounts{
			WithdrawalQueue: common.HexToAddress(cfg.WithdrawalQueueAddress),
			Burner:          common.HexToAddress(cfg.BurnerAddress),
		},
		Limits: domain.SanityLimits{
			ChurnValidatorsPerDayLimit:         cfg.ChurnValidatorsPerDayLimit,
			OneOffCLBalanceDecreaseBPLimit:     cfg.OneOffCLBalanceDecreaseBPLimit,
			AnnualBalanceIncreaseBPLimit:       cfg.AnnualBalanceIncreaseBPLimit,
			SimulatedShareRateDeviationBPLimit: cfg.SimulatedShareRateDeviationBPLimit,
			MaxPositiveTokenRebase:             cfg.MaxPositiveTokenRebase,
			RequestTimestampMargin:             cfg.RequestTimestampMargin,
		},
		Fees: domain.FeeDistribution{
			Treasury:      common.HexToAddress(cfg.TreasuryAddress),
			TreasuryFeeBP: cfg.TreasuryFeeBP,
			Module:        common.HexToAddress(cfg.ModuleAddress),
			ModuleFeeBP:   cfg.ModuleFeeBP,
		},
		QueuePaused: cfg.QueuePaused,
	}
	if err := g.Limits.Validate(); err != nil {
		return domain.Genesis{}, fmt.Errorf("sanity limits: %w", err)
	}
	if err := g.Fees.Validate(); err != nil {
		return domain.Genesis{}, fmt.Errorf("fee distribution: %w", err)
	}
	return g, nil
}
