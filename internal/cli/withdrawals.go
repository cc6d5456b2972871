package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/poolkeeper/pkg/client"
)

func createWithdrawalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdrawals",
		Short: "Inspect the withdrawal queue",
	}

	cmd.AddCommand(createWithdrawalsListCmd())
	cmd.AddCommand(createWithdrawalsBatchesCmd())

	return cmd
}

func createWithdrawalsListCmd() *cobra.Command {
	var owner string
	var filter client.WithdrawalFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List withdrawal requests",
		Long: `List withdrawal requests in id order.

EXAMPLES:
  poolkeeper withdrawals list --unfinalized
  poolkeeper withdrawals list --owner 0x00000000000000000000000000000000000a11ce
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner != "" {
				if !common.IsHexAddress(owner) {
					return fmt.Errorf("invalid owner address %q", owner)
				}
				addr := common.HexToAddress(owner)
				filter.Owner = &addr
			}

			list, err := newClient().ListWithdrawals(contextOrBackground(cmd), filter)
			if err != nil {
				return fmt.Errorf("listing withdrawals: %w", err)
			}
			if len(list) == 0 {
				fmt.Println("No withdrawal requests found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tOWNER\tAMOUNT\tREQUESTED AT\tSTATE\tCLAIMABLE")
			for _, req := range list {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					req.ID, req.Owner.Hex(), formatEther(req.AmountOfStETH),
					formatTimestamp(req.Timestamp), requestState(req), formatEther(req.Claimable))
			}
			w.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "only requests of this address")
	cmd.Flags().BoolVar(&filter.Unfinalized, "unfinalized", false, "only requests not yet finalized")
	cmd.Flags().Uint64Var(&filter.AfterID, "after", 0, "start after this request id")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum number of requests")

	return cmd
}

func createWithdrawalsBatchesCmd() *cobra.Command {
	var maxTimestamp uint64
	var maxBatches int

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Propose finalization batches at the current share rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := newClient().FinalizationBatches(contextOrBackground(cmd), client.BatchRequest{
				MaxTimestamp: maxTimestamp,
				MaxBatches:   maxBatches,
			})
			if err != nil {
				return fmt.Errorf("calculating batches: %w", err)
			}

			fmt.Printf("Batches:    %v\n", b.Batches)
			fmt.Printf("Ether:      %s\n", formatEther(b.EthToLock))
			fmt.Printf("Budget left: %s\n", formatEther(b.Remaining))
			if !b.Finished {
				fmt.Println("More requests remain beyond the batch limit")
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&maxTimestamp, "max-timestamp", 0, "only requests made up to this time (default: now minus the margin)")
	cmd.Flags().IntVar(&maxBatches, "max-batches", 0, "batch limit (default: server setting)")

	return cmd
}

func requestState(r client.Withdrawal) string {
	switch {
	case r.Claimed:
		return "claimed"
	case r.Finalized:
		return "finalized"
	default:
		return "pending"
	}
}
