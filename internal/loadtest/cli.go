package loadtest

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/skilift/pkg/logger"
)

// NewCommand returns the root command of the load tester.
func NewCommand() *cobra.Command {
	cfg := DefaultConfig()
	var phases string

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "loadtest drives phased POST load against the lift-ride ingress.",
		Long: `loadtest drives phased POST load against the lift-ride ingress.

Each phase starts its workers, drains a pre-generated queue of lift rides and
waits for every worker before the next phase begins. Every logical request is
tried up to --attempts times and recorded once in the CSV report.`,
		Example: `  loadtest --url http://localhost:8080
  loadtest --url http://localhost:8080 --phases 8x100 --check --csv out/results.csv`,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := ParsePhases(phases)
			if err != nil {
				return err
			}
			cfg.Phases = parsed

			if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			if cfg.Verbose {
				return logger.SetLevelString("debug")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
			defer cancel()

			stats, err := Run(ctx, cfg)
			if err != nil {
				return err
			}
			cmd.Printf("%d requests, %d successful, %d failed, %.2f RPS\n",
				stats.Total, stats.Successful, stats.Failed, stats.RPS)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "Base URL of the ingress")
	f.StringVar(&phases, "phases", "32x1000,64x2625", "Comma separated phases as <workers>x<requestsPerWorker>")
	f.UintVar(&cfg.Attempts, "attempts", cfg.Attempts, "Attempts per request before it is recorded as failed")
	f.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "Fixed delay between attempts")
	f.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "How long an idle worker waits before treating the queue as drained")
	f.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "HTTP timeout of a single attempt")
	f.DurationVar(&cfg.RunTimeout, "run-timeout", cfg.RunTimeout, "Upper bound on the whole run")
	f.StringVar(&cfg.CSVFile, "csv", cfg.CSVFile, "Output file for per-request results")
	f.BoolVar(&cfg.Check, "check", false, "GET the liveness endpoint before the first phase")
	f.Uint64Var(&cfg.Seed, "seed", 0, "Seed for reproducible event generation (0 = random)")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log output format: text or json")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}
