package loadtest

import (
	"slices"
	"sync"
	"time"
)

// RequestStat is recorded exactly once per logical request.
type RequestStat struct {
	StartTimeMillis int64
	RequestType     string
	LatencyMillis   int64
	ResponseCode    int
	Attempts        int
}

// Success reports whether the request ended with a 201.
func (s RequestStat) Success() bool { return s.ResponseCode == CodeSuccess }

// Collector accumulates RequestStats from concurrent workers.
type Collector struct {
	mu    sync.Mutex
	stats []RequestStat
}

// NewCollector returns an empty collector with room for hint records.
func NewCollector(hint int) *Collector {
	if hint < 0 {
		hint = 0
	}
	return &Collector{stats: make([]RequestStat, 0, hint)}
}

// Add appends one record.
func (c *Collector) Add(s RequestStat) {
	c.mu.Lock()
	c.stats = append(c.stats, s)
	c.mu.Unlock()
}

// Len returns the number of records so far.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stats)
}

// Stats returns a copy of every record.
func (c *Collector) Stats() []RequestStat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.stats)
}

// Statistics are derived once, at the end of a run.
type Statistics struct {
	Total       int
	Successful  int
	Failed      int
	Duration    time.Duration
	RPS         float64 // successful requests per wall-clock second
	SuccessRate float64 // percent
	Mean        float64 // ms
	Median      float64 // ms
	P99         int64   // ms
	Min         int64   // ms
	Max         int64   // ms
}

// Summarize derives Statistics over the collected records. wall is the
// elapsed time of the whole run.
func (c *Collector) Summarize(wall time.Duration) Statistics {
	return Summarize(c.Stats(), wall)
}

// Summarize derives Statistics from stats.
func Summarize(stats []RequestStat, wall time.Duration) Statistics {
	out := Statistics{Total: len(stats), Duration: wall}
	if len(stats) == 0 {
		return out
	}

	latencies := make([]int64, len(stats))
	var sum int64
	for i, s := range stats {
		latencies[i] = s.LatencyMillis
		sum += s.LatencyMillis
		if s.Success() {
			out.Successful++
		}
	}
	out.Failed = out.Total - out.Successful
	slices.Sort(latencies)

	n := len(latencies)
	out.Mean = float64(sum) / float64(n)
	out.Median = float64(latencies[n/2])
	out.P99 = latencies[max(0, int(float64(n)*p99Fraction)-1)]
	out.Min = latencies[0]
	out.Max = latencies[n-1]
	out.SuccessRate = float64(out.Successful) / float64(n) * percentageMultiplier
	if secs := wall.Seconds(); secs > 0 {
		out.RPS = float64(out.Successful) / secs
	}
	return out
}
