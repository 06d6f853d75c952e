// Command flamez renders, converts and inspects folded flame-graph text
// and runs small instrumented demo programs.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zoobzio/flamez"
)

var (
	logLevel   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "flamez",
	Short:         "Call-tree flame graphs",
	Long:          `flamez renders folded call trees as SVG flame graphs, converts them to JSON or pprof, and ranks the hottest frames.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return configureLogger(logLevel)
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(topCmd)
	rootCmd.AddCommand(demoCmd)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "yaml, json or toml config file; FLAMEZ_* variables apply otherwise")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("flamez")
		os.Exit(1)
	}
}

func configureLogger(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	return nil
}

// loadConfig reads --config, logging and falling back to defaults when it
// cannot be read.
func loadConfig() flamez.Config {
	cfg, err := flamez.LoadConfig(configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", configPath).Msg("using default config")
	}
	return cfg
}
