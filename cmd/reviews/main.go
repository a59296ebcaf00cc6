package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"company_reviews/internal/adapters/observability"
	"company_reviews/internal/shared"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "reviews",
	Short:         "Company reviews service",
	Long:          `reviews stores company reviews, checks companies against the registry and emits review-created events.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file; environment variables take precedence")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

// loadConfig reads configuration and installs the global logger.
func loadConfig() (shared.Config, error) {
	cfg, err := shared.Load(cfgFile)
	if err != nil {
		return shared.Config{}, err
	}
	log.Logger = observability.NewLogger(cfg.AppEnv)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
