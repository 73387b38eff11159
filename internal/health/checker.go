package health

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/deskwatchhq/deskwatch/internal/metrics"
)

// Deployments are judged stale after this many missed poll intervals.
const staleIntervals = 3

// Checker evaluates readiness conditions for the monitor.
type Checker struct {
	metrics    *metrics.Store
	staleAfter time.Duration

	mu              sync.RWMutex
	lastPollSuccess time.Time
	pollErr         string
	lastPollError   time.Time
}

// NewChecker constructs a readiness checker bound to the provided metrics
// store. staleAfter is derived from the poll interval.
func NewChecker(store *metrics.Store, pollInterval time.Duration) *Checker {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Checker{
		metrics:    store,
		staleAfter: staleIntervals * pollInterval,
	}
}

// ObservePoll records the outcome of a poll cycle.
func (c *Checker) ObservePoll(ts time.Time, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.pollErr = err.Error()
		c.lastPollError = ts
		return
	}
	c.lastPollSuccess = ts
	c.pollErr = ""
	c.lastPollError = time.Time{}
}

// Ready evaluates all readiness conditions and returns the overall status and
// the reasons for failure.
func (c *Checker) Ready(now time.Time) (bool, []string) {
	c.mu.RLock()
	lastSuccess := c.lastPollSuccess
	pollErr := c.pollErr
	lastErr := c.lastPollError
	staleAfter := c.staleAfter
	c.mu.RUnlock()

	reasons := make([]string, 0, 2)

	if lastSuccess.IsZero() {
		reasons = append(reasons, "agent statuses not yet polled")
	} else if now.Sub(lastSuccess) > staleAfter {
		reasons = append(reasons, fmt.Sprintf("poll data stale (%s)", now.Sub(lastSuccess).Round(time.Second)))
	}

	if pollErr != "" && now.Sub(lastErr) <= staleAfter {
		reasons = append(reasons, fmt.Sprintf("polling failing: %s", pollErr))
	}

	ready := len(reasons) == 0
	if c.metrics != nil {
		if ready {
			c.metrics.ObserveReadiness(true, "")
		} else {
			c.metrics.ObserveReadiness(false, strings.Join(reasons, "; "))
		}
	}
	if !ready {
		return false, reasons
	}
	return true, nil
}
