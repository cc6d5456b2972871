package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/pendergraft/poolkeeper/pkg/client"
)

func createStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pool state",
		Long: `Show the pool's totals, consensus layer view, vault balances,
withdrawal queue and sanity limits.

EXAMPLES:
  poolkeeper status
  poolkeeper status --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := newClient().State(context.Background())
			if err != nil {
				return fmt.Errorf("fetching state: %w", err)
			}
			if jsonOutput {
				return printJSON(os.Stdout, state)
			}
			printState(os.Stdout, state)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func printState(out io.Writer, s *client.State) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	status := "running"
	if s.Stopped {
		status = "STOPPED"
	}

	fmt.Fprintf(w, "Status:\t%s (version %d)\n", status, s.Version)
	fmt.Fprintf(w, "Total pooled ether:\t%s\n", formatEther(s.TotalPooledEther))
	fmt.Fprintf(w, "Total shares:\t%s\n", decOrZero(s.TotalShares))
	fmt.Fprintf(w, "Share rate:\t%s\n", formatShareRate(s.ShareRate))
	fmt.Fprintf(w, "Last report:\t%s\n", formatTimestamp(s.LastReportTimestamp))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Buffered:\t%s\n", formatEther(s.BufferedEther))
	fmt.Fprintf(w, "Depositable:\t%s\n", formatEther(s.DepositableEther))
	fmt.Fprintf(w, "Transient:\t%s\n", formatEther(s.TransientBalance))
	fmt.Fprintf(w, "Validators:\t%d deposited, %d on consensus layer\n", s.Beacon.DepositedValidators, s.Beacon.BeaconValidators)
	fmt.Fprintf(w, "CL balance:\t%s\n", formatEther(s.Beacon.BeaconBalance))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Withdrawal vault:\t%s\n", formatEther(s.WithdrawalVault))
	fmt.Fprintf(w, "EL rewards vault:\t%s\n", formatEther(s.ELRewardsVault))
	fmt.Fprintf(w, "Burn requested:\t%s cover, %s non-cover shares\n", decOrZero(s.CoverShares), decOrZero(s.NonCoverShares))
	fmt.Fprintln(w)

	queue := "open"
	switch {
	case s.Queue.Paused:
		queue = "paused"
	case s.Queue.BunkerMode:
		queue = "bunker mode"
	}
	fmt.Fprintf(w, "Withdrawal queue:\t%s\n", queue)
	fmt.Fprintf(w, "Requests:\t%d total, %d finalized, %d pending\n", s.Queue.LastRequestID, s.Queue.LastFinalizedRequestID, s.Queue.UnfinalizedRequestNumber)
	fmt.Fprintf(w, "Unfinalized stETH:\t%s\n", formatEther(s.Queue.UnfinalizedStETH))
	fmt.Fprintf(w, "Locked for claims:\t%s\n", formatEther(s.Queue.LockedEther))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Fees:\t%d bp treasury, %d bp module\n", s.Fees.TreasuryFeeBP, s.Fees.ModuleFeeBP)
	fmt.Fprintf(w, "Limits:\tchurn %d/day, CL decrease %d bp, annual increase %d bp, rate deviation %d bp, margin %ds\n",
		s.Limits.ChurnValidatorsPerDayLimit,
		s.Limits.OneOffCLBalanceDecreaseBPLimit,
		s.Limits.AnnualBalanceIncreaseBPLimit,
		s.Limits.SimulatedShareRateDeviationBPLimit,
		s.Limits.RequestTimestampMargin,
	)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func decOrZero(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
