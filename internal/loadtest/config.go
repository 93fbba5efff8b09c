package loadtest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPhase is returned for malformed phase descriptions.
var ErrInvalidPhase = errors.New("invalid phase")

// Phase is one stage of the run: Workers goroutines each sending up to
// RequestsPerWorker requests.
type Phase struct {
	Workers           int
	RequestsPerWorker int
}

// Total is the number of events generated for the phase.
func (p Phase) Total() int { return p.Workers * p.RequestsPerWorker }

func (p Phase) String() string {
	return strconv.Itoa(p.Workers) + "x" + strconv.Itoa(p.RequestsPerWorker)
}

// DefaultPhases returns the standard two-phase run.
func DefaultPhases() []Phase {
	return []Phase{
		{Workers: DefaultPhase1Workers, RequestsPerWorker: DefaultPhase1PerWorker},
		{Workers: DefaultPhase2Workers, RequestsPerWorker: DefaultPhase2PerWorker},
	}
}

// ParsePhases reads a comma separated list such as "32x1000,64x2625".
func ParsePhases(s string) ([]Phase, error) {
	var phases []Phase
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		w, r, ok := strings.Cut(strings.ToLower(part), "x")
		if !ok {
			return nil, fmt.Errorf("%w: %q, want <workers>x<requests>", ErrInvalidPhase, part)
		}
		workers, err := strconv.Atoi(w)
		if err != nil || workers <= 0 {
			return nil, fmt.Errorf("%w: bad worker count in %q", ErrInvalidPhase, part)
		}
		per, err := strconv.Atoi(r)
		if err != nil || per <= 0 {
			return nil, fmt.Errorf("%w: bad request count in %q", ErrInvalidPhase, part)
		}
		phases = append(phases, Phase{Workers: workers, RequestsPerWorker: per})
	}
	if len(phases) == 0 {
		return nil, fmt.Errorf("%w: no phases in %q", ErrInvalidPhase, s)
	}
	return phases, nil
}

// Config holds configuration for a load test run.
type Config struct {
	BaseURL        string        // Base URL of the ingress
	Phases         []Phase       // Phases run strictly in order
	Attempts       uint          // Attempts per logical request
	RetryDelay     time.Duration // Fixed delay between attempts
	PollTimeout    time.Duration // Drain timeout for a worker's queue poll
	RequestTimeout time.Duration // Bound on a single HTTP attempt
	RunTimeout     time.Duration // Bound on the whole run
	CSVFile        string        // Output file for per-request stats
	Check          bool          // GET the liveness endpoint before phase 1
	Seed           uint64        // Non-zero makes event generation reproducible
	LogFormat      string        // text or json
	Verbose        bool          // Enable debug logging
}

// DefaultConfig returns the configuration used when no flags are given.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8080",
		Phases:         DefaultPhases(),
		Attempts:       DefaultAttempts,
		RetryDelay:     DefaultRetryDelay,
		PollTimeout:    DefaultPollTimeout,
		RequestTimeout: DefaultRequestTimeout,
		RunTimeout:     DefaultRunTimeout,
		CSVFile:        DefaultCSVFile,
		LogFormat:      "text",
	}
}

// TotalRequests sums the phase totals.
func (c *Config) TotalRequests() int {
	n := 0
	for _, p := range c.Phases {
		n += p.Total()
	}
	return n
}
