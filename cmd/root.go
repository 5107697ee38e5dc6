package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shoppingmall/mall/internal/config"
	"github.com/shoppingmall/mall/internal/logging"
	"github.com/shoppingmall/mall/pkg/output"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mall",
	Short: "Shopping mall storefront CLI",
	Long: `mall is a command-line client for the shopping mall storefront API.

Sign in, keep the session fresh, browse your orders and call any
authenticated endpoint from your terminal.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		output.Error("%v", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)
	cobra.OnFinalize(writeMetrics)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.mall/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use (default: current profile)")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write session metrics to this file in Prometheus text format")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}

	level := cfg.Logging.Level
	if flagLevel, _ := rootCmd.PersistentFlags().GetString("log-level"); flagLevel != "" {
		level = flagLevel
	}
	logger = logging.New(logging.ParseLevel(level), cfg.Logging.Format)
	logging.SetDefault(logger)
}

// profileName resolves --profile, then the config's current profile.
func profileName(cmd *cobra.Command) string {
	if name, _ := cmd.Flags().GetString("profile"); name != "" {
		return name
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return config.DefaultProfile
}

func jsonOutput(cmd *cobra.Command) bool {
	format, _ := cmd.Flags().GetString("output")
	return format == "json"
}
