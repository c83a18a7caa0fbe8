// Package cmd implements the autoqa command tree.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/autoqa/internal/config"
	"github.com/xiaot623/gogo/autoqa/internal/credential"
	"github.com/xiaot623/gogo/autoqa/internal/snapshot"
)

var (
	flagConfigPath string
	flagServerURL  string
	flagToken      string
)

var rootCmd = &cobra.Command{
	Use:           "autoqa",
	Short:         "Create and watch autoqa test runs",
	Long:          "autoqa creates test runs on an autoqa server and follows their progress in real time.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", config.ClientPath(), "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "Server URL (overrides config and AUTOQA_URL)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "Bearer token (overrides config and AUTOQA_TOKEN)")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
}

// loadConfig merges the config file, the environment and the flags.
func loadConfig() (config.ClientConfig, error) {
	cfg, err := config.LoadClient(flagConfigPath)
	if err != nil {
		return cfg, err
	}
	if s := strings.TrimSpace(flagServerURL); s != "" {
		cfg.ServerURL = s
	}
	if s := strings.TrimSpace(flagToken); s != "" {
		cfg.Token = s
	}
	return cfg, nil
}

func credentials(cfg config.ClientConfig) credential.Source {
	if cfg.Token == "" {
		return nil
	}
	return credential.Static(cfg.Token)
}

func newClient(cfg config.ClientConfig) *snapshot.Client {
	return snapshot.NewClient(cfg.ServerURL, credentials(cfg))
}
