package loadtest

import "time"

// Driver defaults reproduce the two-phase run: 32,000 then 168,000 requests.
const (
	DefaultPhase1Workers     = 32
	DefaultPhase1PerWorker   = 1000
	DefaultPhase2Workers     = 64
	DefaultPhase2PerWorker   = 2625
	DefaultAttempts          = 5
	DefaultRetryDelay        = 10 * time.Millisecond
	DefaultPollTimeout       = 5 * time.Second
	DefaultCSVFile           = "load_test_results.csv"
	DefaultLivenessEndpoint  = "skiers"
	DefaultRunTimeout        = 30 * time.Minute
	DefaultRequestTimeout    = 30 * time.Second
	DefaultTransportShutdown = 5 * time.Second
)

// Response codes recorded per logical request.
const (
	CodeSuccess = 201
	CodeFailure = 500
)

// RequestTypePost is the only request type the driver issues.
const RequestTypePost = "POST"

const (
	percentageMultiplier = 100
	p99Fraction          = 0.99
	directoryPermission  = 0o750
)
