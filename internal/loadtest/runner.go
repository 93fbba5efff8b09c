package loadtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/skilift/internal/adapters/http/client"
	"github.com/okian/skilift/internal/domain/generator"
	"github.com/okian/skilift/pkg/logger"
)

// Run executes a complete load test: optional liveness check, every phase,
// statistics and the CSV report. The transport is shut down before Run
// returns on every path.
func Run(ctx context.Context, cfg Config) (stats Statistics, err error) {
	log := logger.Get().Named("loadtest")

	transport, err := client.New(cfg.BaseURL, client.WithTimeout(cfg.RequestTimeout), client.WithLogger(logger.Get().Named("transport")))
	if err != nil {
		return Statistics{}, err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), DefaultTransportShutdown)
		defer cancel()
		if serr := transport.Shutdown(sctx); serr != nil {
			log.Warn(sctx, "transport shutdown", logger.Error(serr))
		}
	}()

	return run(ctx, cfg, transport, log)
}

func run(ctx context.Context, cfg Config, transport Transport, log logger.Logger) (Statistics, error) {
	planned := cfg.TotalRequests()
	log.Info(ctx, "starting load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("phases", len(cfg.Phases)),
		logger.Int("totalRequests", planned),
		logger.Int("attempts", int(cfg.Attempts)),
		logger.Duration("retryDelay", cfg.RetryDelay))

	var genOpts []generator.Option
	if cfg.Seed != 0 {
		genOpts = append(genOpts, generator.WithSeed(cfg.Seed))
	}

	collector := NewCollector(planned)
	driver := NewDriver(transport, collector,
		WithGenerator(generator.New(genOpts...)),
		WithAttempts(cfg.Attempts),
		WithRetryDelay(cfg.RetryDelay),
		WithPollTimeout(cfg.PollTimeout),
		WithLogger(log))

	if cfg.Check {
		if err := driver.CheckLiveness(ctx, DefaultLivenessEndpoint); err != nil {
			return Statistics{}, fmt.Errorf("service health check failed: %w", err)
		}
	}

	start := time.Now()
	_, runErr := driver.Run(ctx, cfg.Phases...)
	stats := collector.Summarize(time.Since(start))
	LogStatistics(ctx, log, planned, stats)

	// Partial results are still worth keeping when the run was interrupted.
	if err := SaveCSV(ctx, cfg.CSVFile, collector.Stats()); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("save results: %w", err))
	}
	return stats, runErr
}
