package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func createReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Browse stored reports",
	}

	cmd.AddCommand(createReportsListCmd())
	cmd.AddCommand(createReportsShowCmd())

	return cmd
}

func createReportsListCmd() *cobra.Command {
	var status string
	var limit int
	var cursor string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports, newest first",
		Long: `List accepted and rejected reports.

EXAMPLES:
  poolkeeper reports list
  poolkeeper reports list --status rejected
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().ListReports(contextOrBackground(cmd), status, limit, cursor)
			if err != nil {
				return fmt.Errorf("listing reports: %w", err)
			}
			if jsonOutput {
				return printJSON(os.Stdout, resp)
			}

			if len(resp.Data) == 0 {
				fmt.Println("No reports found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tREPORTED AT\tSTATUS\tVALIDATORS\tCL BALANCE\tERROR")
			for _, r := range resp.Data {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					r.ID, formatTimestamp(r.ReportTimestamp), r.Status,
					r.Report.CLValidators, formatEther(r.Report.PostCLBalance), r.ErrorCode)
			}
			w.Flush()

			if resp.Pagination.HasMore {
				fmt.Printf("\nMore results: --cursor %s\n", resp.Pagination.NextCursor)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (accepted, rejected)")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of reports")
	cmd.Flags().StringVar(&cursor, "cursor", "", "pagination cursor")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createReportsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a report with its outcome and events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := contextOrBackground(cmd)
			c := newClient()

			record, err := c.GetReport(ctx, args[0])
			if err != nil {
				return fmt.Errorf("getting report: %w", err)
			}

			fmt.Printf("Report %s\n", record.ID)
			fmt.Printf("  Status:      %s\n", record.Status)
			fmt.Printf("  Reported at: %s\n", formatTimestamp(record.ReportTimestamp))
			fmt.Printf("  Received:    %s\n", record.CreatedAt.Format(time.RFC3339))
			fmt.Printf("  Hash:        %s\n", record.Hash)
			if record.SubmittedBy != "" {
				fmt.Printf("  Submitted by: %s\n", record.SubmittedBy)
			}
			if record.ErrorCode != "" {
				fmt.Printf("  Rejected:    %s\n", record.ErrorMessage)
				return nil
			}
			if record.Result != nil {
				printResult(os.Stdout, record.Result)
			}

			events, err := c.ListEvents(ctx, "", record.ID, 100, "")
			if err != nil {
				return fmt.Errorf("listing events: %w", err)
			}
			for _, ev := range events.Data {
				fmt.Printf("  [%d] %s %s\n", ev.Index, ev.Name, string(ev.Payload))
			}
			return nil
		},
	}
}

func formatTimestamp(ts uint64) string {
	if ts == 0 {
		return "never"
	}
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}
