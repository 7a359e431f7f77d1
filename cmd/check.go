package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/loginprobe/internal/config"
	"github.com/xkilldash9x/loginprobe/internal/detect"
	"github.com/xkilldash9x/loginprobe/internal/input"
	"github.com/xkilldash9x/loginprobe/internal/network"
	"github.com/xkilldash9x/loginprobe/internal/observability"
	"github.com/xkilldash9x/loginprobe/internal/pipeline"
	"github.com/xkilldash9x/loginprobe/internal/results"
)

// defaultCalibrationCount matches the detector default exposed via config.
const defaultCalibrationCount = 5

// newCheckCmd creates the `check` command: calibrate, then test candidates.
func newCheckCmd() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Calibrate the failure fingerprint, then test candidate credentials",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags onto their viper keys so CLI values override the
			// config file and environment with the right precedence.
			bindings := map[string]string{
				"target.login_url":           "url",
				"target.username_field":      "user-field",
				"target.password_field":      "pass-field",
				"input.credential_file":      "combo",
				"input.delimiter":            "delimiter",
				"output.suspect_file":        "output",
				"detector.calibration_count": "calibration-count",
				"detector.score_threshold":   "threshold",
				"detector.tolerance_ratio":   "tolerance",
				"pipeline.worker_count":      "workers",
				"pipeline.request_pacing":    "pacing",
				"network.ignore_tls_errors":  "insecure",
			}
			for key, flag := range bindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if cfg.Target.LoginURL == "" {
				return errors.New("a login URL is required (--url or target.login_url)")
			}
			if cfg.Input.CredentialFile == "" {
				return errors.New("a credential file is required (--combo or input.credential_file)")
			}

			return runCheck(cmd.Context(), cfg, observability.GetLogger())
		},
	}

	checkCmd.Flags().StringP("url", "u", "", "login endpoint URL")
	checkCmd.Flags().String("user-field", "username", "username form field name")
	checkCmd.Flags().String("pass-field", "password", "password form field name")
	checkCmd.Flags().StringP("combo", "i", "", "credential combo file (user<sep>pass per line)")
	checkCmd.Flags().String("delimiter", "", "force a combo delimiter (default: auto-detect : , ; |)")
	checkCmd.Flags().StringP("output", "o", "suspects.jsonl", "file to append SUSPECT records to")
	checkCmd.Flags().Int("calibration-count", defaultCalibrationCount, "number of calibration probes")
	checkCmd.Flags().Int("threshold", detect.DefaultScoreThreshold, "deviation score required to mark a SUSPECT")
	checkCmd.Flags().Float64("tolerance", detect.DefaultToleranceRatio, "body length tolerance ratio")
	checkCmd.Flags().IntP("workers", "w", pipeline.DefaultWorkerCount, "concurrent workers (1-20)")
	checkCmd.Flags().Duration("pacing", pipeline.DefaultRequestPacing, "minimum delay between requests per worker")
	checkCmd.Flags().Bool("insecure", false, "skip TLS certificate verification")

	return checkCmd
}

// runCheck wires the transport, detector and pipeline together and drives a
// full run: calibration first, sequentially; candidate testing after, with
// verdicts consumed as they complete.
func runCheck(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	clientCfg := network.NewDefaultClientConfig()
	clientCfg.RequestTimeout = cfg.Network.RequestTimeout
	clientCfg.IgnoreTLSErrors = cfg.Network.IgnoreTLSErrors
	clientCfg.ForceHTTP2 = cfg.Network.ForceHTTP2
	clientCfg.Logger = logger

	client, err := network.NewClient(clientCfg)
	if err != nil {
		return err
	}

	submitter, err := network.NewSubmitter(client, cfg.Target.LoginURL, logger,
		network.WithFormFields(cfg.Target.UsernameField, cfg.Target.PasswordField))
	if err != nil {
		return err
	}

	// Phase 1: calibration. Must complete before any candidate is tested;
	// a failure here aborts the run with nothing sent from the combo list.
	calibrator := detect.NewCalibrator(submitter.Submit, cfg.Pipeline.RequestPacing, logger)
	samples, err := calibrator.Run(ctx, cfg.Detector.CalibrationCount)
	if err != nil {
		return err
	}

	signature, err := detect.Analyze(samples, cfg.Detector.ToleranceRatio)
	if err != nil {
		return err
	}

	logger.Info("Failure signature established",
		zap.Int("expected_status", signature.ExpectedStatus),
		zap.Bool("status_reliable", signature.StatusReliable),
		zap.Int("length_low", signature.LengthLow),
		zap.Int("length_high", signature.LengthHigh),
		zap.String("expected_url", signature.ExpectedURL),
		zap.Bool("url_reliable", signature.URLReliable),
	)
	// Degraded calibration is reported once, up front; the run proceeds
	// with reduced confidence rather than aborting.
	if signature.Degraded() {
		logger.Warn("Calibration responses were unstable in both status and URL; scoring on body length only")
	} else if !signature.StatusReliable {
		logger.Warn("Calibration responses varied in status code; status excluded from scoring")
	} else if !signature.URLReliable {
		logger.Warn("Calibration responses varied in final URL; URL excluded from scoring")
	}

	// Phase 2: candidate testing.
	source, err := input.Open(cfg.Input.CredentialFile, cfg.Input.Delimiter, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	sink, err := results.NewSink(cfg.Output.SuspectFile, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	scorer := detect.NewScorer(
		detect.WithWeights(cfg.Detector.Weights()),
		detect.WithThreshold(cfg.Detector.ScoreThreshold),
	)

	pl, err := pipeline.New(submitter.Submit, scorer, signature, logger,
		pipeline.WithWorkerCount(cfg.Pipeline.WorkerCount),
		pipeline.WithRequestPacing(cfg.Pipeline.RequestPacing),
	)
	if err != nil {
		return err
	}

	logger.Info("Starting candidate testing",
		zap.Int("workers", cfg.Pipeline.WorkerCount),
		zap.Duration("pacing", cfg.Pipeline.RequestPacing),
	)

	verdicts := pl.Run(ctx, source)

	// The sink drains the stream on its own goroutine so suspects hit the
	// output file the moment they are found, even mid-run. A persistence
	// failure surfaces after the stream is fully drained.
	var g errgroup.Group
	g.Go(func() error {
		return sink.Drain(verdicts)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("verdict persistence failed: %w", err)
	}

	summary := pl.Stats()
	tested, suspects := sink.Counts()
	logger.Info("Run complete",
		zap.Int("tested", tested),
		zap.Int("suspects", suspects),
		zap.Int("skipped_lines", source.Skipped()),
		zap.Duration("elapsed", summary.Elapsed),
	)

	if ctx.Err() != nil {
		return fmt.Errorf("run interrupted: %w", ctx.Err())
	}
	return nil
}

func init() {
	rootCmd.AddCommand(newCheckCmd())
}
