package main

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/adpulse/adpulse/internal/application"
)

const (
	appName = "adpulse"
	version = "v1.2.0"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Campaign performance regression analyzer",
		Version: version,
		Long: `adpulse detects performance regressions in advertising campaign data.

It aggregates raw spend/impression/click/revenue rows into daily series,
infers CTR and ROAS baselines with dynamic anomaly thresholds, and
evaluates diagnostic hypotheses against the evidence. Validated findings
drive creative recommendations and ROAS drop alerts.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")
	// Accept snake_case flag spellings from older wrapper scripts.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newHealthCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// loadConfigAndLogger reads the configuration and initializes the global
// logger from it. Interactive terminals get the console writer; everything
// else gets JSON lines.
func loadConfigAndLogger() (application.Config, error) {
	cfg, err := application.LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}

	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = log.Output(os.Stderr)
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return cfg, nil
}
