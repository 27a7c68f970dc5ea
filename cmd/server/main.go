package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nahidhasan98/netconf-relay/internal/config"
	"github.com/nahidhasan98/netconf-relay/internal/logger"
)

// Global variables for configuration and services
var (
	cfg *config.Config
	log *logger.Logger

	flagConfig string
)

var rootCmd = &cobra.Command{
	Use:   "netconf-relay",
	Short: "Run network automation for GitHub pushes and report to chat",
	Long: `netconf-relay receives GitHub push webhooks for a network configuration
repository, runs the automation playbook against the affected devices and
posts a status report to Slack (and optionally WhatsApp).`,
	SilenceUsage: true,
	RunE:         serve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server (default)",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "YAML configuration file (overrides CONFIG_FILE)")
	rootCmd.AddCommand(serveCmd, runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads configuration and initializes the logger
func loadConfig() error {
	var err error

	if flagConfig != "" {
		if err := os.Setenv("CONFIG_FILE", flagConfig); err != nil {
			return fmt.Errorf("failed to set config path: %w", err)
		}
	}

	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log = logger.New(cfg.Log.Level, cfg.Log.Format)
	return nil
}
