package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
	"github.com/xiaot623/gogo/autoqa/internal/reconcile"
)

var (
	flagShowOutput string
	flagShowLogs   bool
)

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a test run with its test cases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		snap, err := newClient(cfg).Load(ctx, args[0])
		if err != nil {
			return err
		}
		if strings.ToLower(strings.TrimSpace(flagShowOutput)) == "json" {
			return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
				"run":        snap.Run,
				"test_cases": snap.TestCases,
				"logs":       snap.Logs,
			})
		}
		renderSnapshot(cmd.OutOrStdout(), snap, flagShowLogs)
		return nil
	},
}

func init() {
	showCmd.Flags().StringVar(&flagShowOutput, "output", "table", "Output format: table or json")
	showCmd.Flags().BoolVar(&flagShowLogs, "logs", false, "Also print the execution log")
}

func renderSnapshot(out io.Writer, snap reconcile.Snapshot, withLogs bool) {
	run := snap.Run
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	fmt.Fprintf(out, "URL:      %s\n", run.URL)
	fmt.Fprintf(out, "Scenario: %s\n", truncate(run.Scenario, 80))
	if len(snap.TestCases) > 0 {
		s := domain.Summarize(snap.TestCases)
		fmt.Fprintf(out, "Summary:  %d total, %d passed, %d failed, %d errors\n", s.Total, s.Passed, s.Failed, s.Errors)
	}
	fmt.Fprintln(out)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "STATUS", "DESCRIPTION", "ACTUAL"})
	for _, tc := range snap.TestCases {
		actual := ""
		if tc.ActualResult != nil {
			actual = truncate(*tc.ActualResult, 60)
		}
		table.Append([]string{tc.ID, displayStatus(tc.Status), truncate(tc.Description, 60), actual})
	}
	table.Render()

	if withLogs {
		fmt.Fprintln(out)
		for _, entry := range snap.Logs {
			fmt.Fprintf(out, "%s  %s\n", formatTime(entry.Timestamp), entry.Text)
		}
	}
}
