package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/autoqa/internal/domain"
)

var (
	flagCreateURL      string
	flagCreateScenario string
	flagCreateWatch    bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a test run",
	Long:  "Create a test run. Each line of the scenario becomes a test case; quoted text is expected on the page.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		scenario := flagCreateScenario
		if scenario == "-" {
			b, err := readAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read scenario: %w", err)
			}
			scenario = b
		}
		if strings.TrimSpace(flagCreateURL) == "" || strings.TrimSpace(scenario) == "" {
			return fmt.Errorf("--url and --scenario are required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		run, err := newClient(cfg).CreateRun(ctx, &domain.CreateRunRequest{URL: flagCreateURL, Scenario: scenario})
		cancel()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", run.ID, run.Status)

		if !flagCreateWatch {
			return nil
		}
		watchCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watchRun(watchCtx, cmd.OutOrStdout(), cfg, run.ID, true)
	},
}

func init() {
	createCmd.Flags().StringVar(&flagCreateURL, "url", "", "URL under test")
	createCmd.Flags().StringVar(&flagCreateScenario, "scenario", "", "Scenario text, or - to read it from stdin")
	createCmd.Flags().BoolVar(&flagCreateWatch, "watch", false, "Follow the run until it finishes")
}
