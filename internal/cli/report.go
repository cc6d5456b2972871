package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/pendergraft/poolkeeper/internal/beacon"
	"github.com/pendergraft/poolkeeper/pkg/client"
)

var now = time.Now

var depositSize = new(uint256.Int).Mul(uint256.NewInt(32), uint256.NewInt(1_000_000_000_000_000_000))

func createReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build, check and submit oracle reports",
		Long: `Oracle report commands.

A report is built from the finalized consensus layer state of the pool's
validators plus the pool's own vault and burn balances. Report files are
TOML (or JSON when the file name ends in .json).

EXAMPLES:
  # Build a report from the beacon node configured in poolkeeper.toml
  poolkeeper report build -o report.toml

  # Dry-run it against the server, then submit
  poolkeeper report simulate report.toml
  poolkeeper report submit report.toml
`,
	}

	cmd.AddCommand(createReportBuildCmd())
	cmd.AddCommand(createReportFileCmd("simulate", "Dry-run a report without changing the pool", runReportSimulate))
	cmd.AddCommand(createReportFileCmd("check", "Run the sanity checks on a report", runReportCheck))
	cmd.AddCommand(createReportFileCmd("submit", "Submit a report (requires the oracle role)", runReportSubmit))

	return cmd
}

// buildOptions holds report build inputs that override what the beacon node says.
type buildOptions struct {
	clValidators uint64
	clBalance    string
	timestamp    uint64
	bunker       bool
	noFinalize   bool
}

func (o buildOptions) manual() bool {
	return o.clBalance != ""
}

func createReportBuildCmd() *cobra.Command {
	var opts buildOptions
	var output string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a report from the beacon node",
		Long: `Build an oracle report.

The consensus layer figures come from the beacon node in poolkeeper.toml, or
from --cl-validators and --cl-balance when no node is available. Vault and
burn balances come from the server. The simulated share rate and the
withdrawal finalization batches are computed by dry-running the report.

EXAMPLES:
  poolkeeper report build -o report.toml

  # Without a beacon node
  poolkeeper report build --cl-validators 2 --cl-balance 64.01 --timestamp 1700000000
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextOrBackground(cmd)
			src, err := snapshotSourceFor(ctx, opts)
			if err != nil {
				return err
			}

			report, err := buildReport(ctx, newClient(), src, opts)
			if err != nil {
				return err
			}

			if output == "" {
				return toml.NewEncoder(os.Stdout).Encode(report)
			}
			if err := writeReportFile(output, report); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✅ Report written to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a file (default: stdout)")
	cmd.Flags().Uint64Var(&opts.clValidators, "cl-validators", 0, "validators on the consensus layer (manual mode)")
	cmd.Flags().StringVar(&opts.clBalance, "cl-balance", "", "consensus layer balance in ETH, e.g. 64.01 (manual mode)")
	cmd.Flags().Uint64Var(&opts.timestamp, "timestamp", 0, "report timestamp (manual mode; default now)")
	cmd.Flags().BoolVar(&opts.bunker, "bunker", false, "force bunker mode")
	cmd.Flags().BoolVar(&opts.noFinalize, "no-finalize", false, "do not finalize withdrawal requests")

	return cmd
}

func createReportFileCmd(use, short string, run func(context.Context, *client.Client, *client.Report, io.Writer) error) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   use + " <file>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := readReportFile(args[0])
			if err != nil {
				return err
			}
			ctx := contextOrBackground(cmd)
			if jsonOutput {
				return runJSON(ctx, use, report)
			}
			return run(ctx, newClient(), report, os.Stdout)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runJSON(ctx context.Context, use string, report *client.Report) error {
	c := newClient()
	var (
		v   any
		err error
	)
	switch use {
	case "simulate":
		v, err = c.SimulateReport(ctx, *report)
	case "check":
		v, err = c.CheckReport(ctx, *report)
	default:
		v, err = c.SubmitReport(ctx, *report)
	}
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, v)
}

func runReportSimulate(ctx context.Context, c *client.Client, report *client.Report, out io.Writer) error {
	result, err := c.SimulateReport(ctx, *report)
	if err != nil {
		return reportError("simulation", err)
	}
	fmt.Fprintln(out, "Simulation (pool not changed):")
	printResult(out, result)
	return nil
}

func runReportCheck(ctx context.Context, c *client.Client, report *client.Report, out io.Writer) error {
	result, err := c.CheckReport(ctx, *report)
	if err != nil {
		return reportError("check", err)
	}
	if !result.Valid {
		return fmt.Errorf("report rejected: %s (%s fault): %s", result.Code, result.Class, result.Message)
	}
	fmt.Fprintln(out, "✅ Report passes all checks")
	return nil
}

func runReportSubmit(ctx context.Context, c *client.Client, report *client.Report, out io.Writer) error {
	result, err := c.SubmitReport(ctx, *report)
	if err != nil {
		return reportError("submission", err)
	}
	fmt.Fprintf(out, "✅ Report applied (id %s, version %d)\n", result.ReportID, result.Version)
	printResult(out, result)
	return nil
}

func reportError(stage string, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == 422 {
		return fmt.Errorf("report rejected: %s", apiErr.Message)
	}
	return fmt.Errorf("report %s failed: %w", stage, err)
}

func printResult(out io.Writer, r *client.ReportResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  Total pooled ether:\t%s -> %s\n", formatEther(r.PreTotalPooledEther), formatEther(r.PostTotalPooledEther))
	fmt.Fprintf(w, "  Total shares:\t%s -> %s\n", decOrZero(r.PreTotalShares), decOrZero(r.PostTotalShares))
	fmt.Fprintf(w, "  Share rate:\t%s\n", formatShareRate(r.ShareRate))
	fmt.Fprintf(w, "  Withdrawals vault pulled:\t%s\n", formatEther(r.WithdrawalsWithdrawn))
	fmt.Fprintf(w, "  EL rewards pulled:\t%s\n", formatEther(r.ELRewardsWithdrawn))
	fmt.Fprintf(w, "  Fee shares minted:\t%s\n", decOrZero(r.SharesMintedAsFees))
	fmt.Fprintf(w, "  Shares burnt:\t%s\n", decOrZero(r.SharesBurnt))
	fmt.Fprintf(w, "  Locked for withdrawals:\t%s\n", formatEther(r.EtherLockedOnWithdrawalQueue))
	fmt.Fprintf(w, "  Last finalized request:\t%d\n", r.LastFinalizedRequestID)
	w.Flush()

	if len(r.Events) > 0 {
		names := make([]string, len(r.Events))
		for i, ev := range r.Events {
			names[i] = ev.Name
		}
		fmt.Fprintf(out, "  Events: %s\n", strings.Join(names, ", "))
	}
}

// Building

type snapshotSource interface {
	Snapshot(ctx context.Context) (*beacon.Snapshot, error)
}

// manualSource serves a snapshot given on the command line.
type manualSource struct {
	snap beacon.Snapshot
}

func (m manualSource) Snapshot(ctx context.Context) (*beacon.Snapshot, error) {
	s := m.snap
	return &s, nil
}

func snapshotSourceFor(ctx context.Context, opts buildOptions) (snapshotSource, error) {
	if opts.manual() {
		balance, err := parseEther(opts.clBalance)
		if err != nil {
			return nil, fmt.Errorf("--cl-balance: %w", err)
		}
		ts := opts.timestamp
		if ts == 0 {
			ts = uint64(now().Unix())
		}
		return manualSource{snap: beacon.Snapshot{Timestamp: ts, Validators: opts.clValidators, Balance: balance}}, nil
	}

	cfg := loadProjectConfigSilent()
	if cfg == nil || cfg.Beacon.Endpoint == "" {
		return nil, fmt.Errorf("no beacon endpoint configured: set [beacon] endpoint in poolkeeper.toml or pass --cl-balance")
	}
	pubkeys, err := beacon.ParsePubkeys(cfg.Beacon.Pubkeys)
	if err != nil {
		return nil, err
	}
	node, err := beacon.Dial(ctx, cfg.Beacon.Endpoint, cfg.Beacon.Timeout())
	if err != nil {
		return nil, err
	}
	return beacon.NewReader(node, pubkeys, beacon.WithTiming(cfg.Beacon.SlotsPerEpoch, cfg.Beacon.SecondsPerSlot)), nil
}

// buildReport assembles a report for the snapshot and fills in the share rate
// and finalization batches by simulating it first.
func buildReport(ctx context.Context, c *client.Client, src snapshotSource, opts buildOptions) (*client.Report, error) {
	state, err := c.State(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching state: %w", err)
	}
	if state.Stopped {
		return nil, fmt.Errorf("pool is stopped")
	}

	snap, err := src.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading consensus layer: %w", err)
	}
	if snap.Timestamp <= state.LastReportTimestamp {
		return nil, fmt.Errorf("nothing to report: snapshot at %d is not after the last report at %d", snap.Timestamp, state.LastReportTimestamp)
	}

	report := &client.Report{
		ReportTimestamp:        snap.Timestamp,
		CLValidators:           snap.Validators,
		PostCLBalance:          snap.Balance,
		WithdrawalVaultBalance: orZero(state.WithdrawalVault),
		ELRewardsVaultBalance:  orZero(state.ELRewardsVault),
		SharesRequestedToBurn:  new(uint256.Int).Add(orZero(state.CoverShares), orZero(state.NonCoverShares)),
		IsBunkerMode:           opts.bunker || balanceDecreased(state, snap),
	}
	if state.LastReportTimestamp > 0 {
		report.TimeElapsed = snap.Timestamp - state.LastReportTimestamp
	}

	sim, err := c.SimulateReport(ctx, *report)
	if err != nil {
		return nil, reportError("simulation", err)
	}
	report.SimulatedShareRate = sim.ShareRate

	if opts.noFinalize || state.Queue.Paused || state.Queue.UnfinalizedRequestNumber == 0 {
		return report, nil
	}

	req := client.BatchRequest{MaxShareRate: sim.ShareRate}
	if margin := state.Limits.RequestTimestampMargin; report.ReportTimestamp > margin {
		req.MaxTimestamp = report.ReportTimestamp - margin
	}
	batches, err := c.FinalizationBatches(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("calculating finalization batches: %w", err)
	}
	report.WithdrawalFinalizationBatches = batches.Batches

	return report, nil
}

// balanceDecreased reports a negative consensus layer rebase: the new balance
// is below the old one plus 32 ETH for each newly appeared validator.
func balanceDecreased(state *client.State, snap *beacon.Snapshot) bool {
	if snap.Validators < state.Beacon.BeaconValidators {
		return false
	}
	appeared := uint256.NewInt(snap.Validators - state.Beacon.BeaconValidators)
	expected := new(uint256.Int).Mul(appeared, depositSize)
	expected.Add(expected, orZero(state.Beacon.BeaconBalance))
	return snap.Balance.Lt(expected)
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// Report files

func readReportFile(path string) (*client.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}

	var report client.Report
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("parsing report JSON: %w", err)
		}
		return &report, nil
	}

	if _, err := toml.Decode(string(data), &report); err != nil {
		return nil, fmt.Errorf("parsing report TOML: %w", err)
	}
	return &report, nil
}

func writeReportFile(path string, report *client.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return printJSON(f, report)
	}
	return toml.NewEncoder(f).Encode(report)
}
