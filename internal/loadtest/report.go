package loadtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/okian/skilift/pkg/logger"
)

// csvHeader is the first row of every report.
var csvHeader = []string{"Start Time", "Request Type", "Latency (ms)", "Response Code"}

// WriteCSV writes one row per record after the header.
func WriteCSV(w io.Writer, stats []RequestStat) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	row := make([]string, len(csvHeader))
	for i, s := range stats {
		row[0] = strconv.FormatInt(s.StartTimeMillis, 10)
		row[1] = RequestTypePost
		row[2] = strconv.FormatInt(s.LatencyMillis, 10)
		row[3] = strconv.Itoa(s.ResponseCode)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// SaveCSV writes the report to filename, creating parent directories.
func SaveCSV(ctx context.Context, filename string, stats []RequestStat) error {
	if filename == "" {
		filename = DefaultCSVFile
	}
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	if err := WriteCSV(file, stats); err != nil {
		return err
	}

	logger.Get().Info(ctx, "load test results saved", logger.String("filename", filename), logger.Int("rows", len(stats)))
	return nil
}

// LogStatistics logs the final summary.
func LogStatistics(ctx context.Context, log logger.Logger, planned int, s Statistics) {
	log.Info(ctx, "load test statistics",
		logger.Int("plannedRequests", planned),
		logger.Int("dispatched", s.Total),
		logger.Int("successful", s.Successful),
		logger.Int("failed", s.Failed),
		logger.Float64("successRate", s.SuccessRate),
		logger.Duration("totalTime", s.Duration),
		logger.Float64("rps", s.RPS),
		logger.Float64("meanMs", s.Mean),
		logger.Float64("medianMs", s.Median),
		logger.Int64("p99Ms", s.P99),
		logger.Int64("minMs", s.Min),
		logger.Int64("maxMs", s.Max))
}
