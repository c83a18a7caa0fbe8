package cmd

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

var (
	flagListLimit  int
	flagListOffset int
	flagListOutput string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List test runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		runs, err := newClient(cfg).ListRuns(ctx, flagListOffset, flagListLimit)
		if err != nil {
			return err
		}
		if strings.ToLower(strings.TrimSpace(flagListOutput)) == "json" {
			return writeJSON(cmd.OutOrStdout(), runs)
		}
		renderRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func init() {
	listCmd.Flags().IntVar(&flagListLimit, "limit", 100, "Max number of rows")
	listCmd.Flags().IntVar(&flagListOffset, "offset", 0, "Offset for pagination")
	listCmd.Flags().StringVar(&flagListOutput, "output", "table", "Output format: table or json")
}

func renderRuns(out io.Writer, runs []domain.Run) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "STATUS", "URL", "CREATED"})
	for _, r := range runs {
		created := ""
		if !r.CreatedAt.IsZero() {
			created = r.CreatedAt.Local().Format(time.RFC3339)
		}
		table.Append([]string{r.ID, string(r.Status), r.URL, created})
	}
	table.Render()
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readAll(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
