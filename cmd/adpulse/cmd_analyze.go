package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/adpulse/adpulse/internal/application"
	"github.com/adpulse/adpulse/internal/domain"
	"github.com/adpulse/adpulse/internal/infrastructure/cache"
	"github.com/adpulse/adpulse/internal/infrastructure/csvsource"
	"github.com/adpulse/adpulse/internal/infrastructure/remote"
	"github.com/adpulse/adpulse/internal/io"
	"github.com/adpulse/adpulse/internal/persistence/postgres"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis over a campaign dataset",
		Long: `Loads campaign performance rows from a CSV file (or the configured
remote API), runs the full regression analysis and writes the run report,
creative recommendations and any triggered alert to the reports directory.`,
		RunE: runAnalyze,
	}
	cmd.Flags().String("input", "", "Path to the campaign CSV export")
	cmd.Flags().String("dataset", "", "Remote dataset id (uses the configured remote source)")
	cmd.Flags().String("reports", "", "Override the reports directory")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	input, _ := cmd.Flags().GetString("input")
	dataset, _ := cmd.Flags().GetString("dataset")
	if input == "" && dataset == "" {
		return fmt.Errorf("either --input or --dataset is required")
	}
	if dir, _ := cmd.Flags().GetString("reports"); dir != "" {
		cfg.Reports.Dir = dir
	}

	pipeline, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	rows, opts, fp, err := loadRows(ctx, cfg, input, dataset)
	if err != nil {
		return err
	}

	writer := io.NewReportWriter(cfg.Reports.Dir)
	if fp.Hash != "" {
		if _, err := writer.RecordFingerprint(fp); err != nil {
			log.Error().Err(err).Msg("Failed to record dataset fingerprint")
		}
	}

	result, err := pipeline.Run(ctx, rows, opts)
	if err != nil {
		return err
	}

	path, err := writer.WriteRun(result)
	if err != nil {
		return err
	}
	if result.Alert.Alerted {
		if err := writer.AppendAlert(result.RunID, result.Alert); err != nil {
			log.Error().Err(err).Msg("Failed to record alert")
		}
	}

	printRunSummary(result, path)
	return nil
}

// loadRows reads the dataset from disk or the remote API. CSV loads also
// fingerprint the dataset so the baseline cache and drift detection can key
// on it; remote loads key on the dataset id.
func loadRows(ctx context.Context, cfg application.Config, input, dataset string) ([]domain.Row, application.RunOptions, csvsource.Fingerprint, error) {
	if input != "" {
		rows, report, fp, err := csvsource.LoadFileWithFingerprint(input)
		if err != nil {
			return nil, application.RunOptions{}, csvsource.Fingerprint{}, err
		}
		log.Info().
			Int("rows", report.RowsRead).
			Int("bad_dates", report.BadDates).
			Int("bad_numbers", report.BadNumbers).
			Str("fingerprint", fp.Hash[:12]).
			Msg("Loaded CSV dataset")
		return rows, application.RunOptions{DatasetKey: fp.Hash}, fp, nil
	}

	if !cfg.Remote.Enabled {
		return nil, application.RunOptions{}, csvsource.Fingerprint{}, fmt.Errorf("--dataset requires the remote source to be enabled in config")
	}
	src := remote.NewSource(remote.SourceConfig{
		BaseURL:       cfg.Remote.BaseURL,
		Timeout:       cfg.Remote.Timeout(),
		RatePerSecond: cfg.Remote.RatePerSecond,
		Burst:         cfg.Remote.Burst,
	})
	rows, err := src.FetchRows(ctx, dataset)
	if err != nil {
		return nil, application.RunOptions{}, csvsource.Fingerprint{}, err
	}
	return rows, application.RunOptions{DatasetKey: dataset}, csvsource.Fingerprint{}, nil
}

// buildPipeline assembles the pipeline with the optional store and cache
// from configuration. The returned cleanup closes whatever was opened.
func buildPipeline(cfg application.Config) (*application.Pipeline, func(), error) {
	pipeline := application.NewPipeline(cfg)
	var closers []func()

	if cfg.Storage.Enabled {
		store, err := postgres.New(cfg.Storage.DSN, cfg.Storage.Timeout())
		if err != nil {
			return nil, nil, err
		}
		pipeline.Store = store
		closers = append(closers, func() { store.Close() })
	}
	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, cfg.Cache.TTL())
		if err != nil {
			return nil, nil, err
		}
		pipeline.Cache = c
	}

	cleanup := func() {
		for _, fn := range closers {
			fn()
		}
	}
	return pipeline, cleanup, nil
}

func printRunSummary(result *application.RunResult, reportPath string) {
	fmt.Printf("Run %s completed in %dms\n", result.RunID, result.DurationMS)
	fmt.Printf("  rows: %d  days: %d  campaigns: %d\n",
		result.Summary.Totals.Rows, len(result.Summary.Days), len(result.Summary.Campaigns))
	fmt.Printf("  ctr baseline: %.5f  roas baseline: %.3f  (rows used: %d)\n",
		result.Baseline.CTRBaseline, result.Baseline.ROASBaseline, result.Baseline.RowsUsed)
	fmt.Printf("  hypotheses: %d  passed: %d  validation rate: %.0f%%\n",
		result.Metrics.NumHypotheses, result.Metrics.NumPassed, result.Metrics.ValidationRate*100)

	for _, v := range result.Verdicts {
		status := "FAIL"
		if v.Passed {
			status = "PASS"
		}
		fmt.Printf("  [%s] %-8s conf=%.2f  %s\n", status, v.Impact, v.Confidence, v.Text)
	}
	if result.Alert.Alerted {
		fmt.Printf("  ALERT: %s\n", result.Alert.Reason)
	}
	fmt.Printf("  report: %s\n", reportPath)
}
