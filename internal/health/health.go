// Package health provides health check functionality for liveness and
// readiness probes.
package health

import (
	"context"
	"sync"
	"time"
)

// ReadinessChecker is the interface for readiness checks. Implemented by
// the database and the execution backends.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Serving reports whether the instance should stay in rotation. A degraded
// instance keeps serving: one backend being down must not take down runs on
// the other.
func (r *Response) Serving() bool {
	return r.Status != StatusUnhealthy
}

type namedCheck struct {
	name     string
	checker  ReadinessChecker
	critical bool
}

// Checker performs health checks on dependencies.
type Checker struct {
	timeout time.Duration
	checks  []namedCheck

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a health checker with no registered checks.
func NewChecker() *Checker {
	return &Checker{timeout: 5 * time.Second}
}

// Register adds a critical dependency. Its failure marks the instance
// unhealthy.
func (c *Checker) Register(name string, rc ReadinessChecker) {
	c.checks = append(c.checks, namedCheck{name: name, checker: rc, critical: true})
}

// RegisterOptional adds a non-critical dependency. Its failure marks the
// instance degraded but still serving.
func (c *Checker) RegisterOptional(name string, rc ReadinessChecker) {
	c.checks = append(c.checks, namedCheck{name: name, checker: rc})
}

// Liveness returns true if the service is alive. This is a lightweight
// check with no external dependencies; failing it should trigger a
// container restart.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness checks if the service is ready to accept traffic: the database
// and each execution backend. Results are cached for a second to avoid
// hammering the substrates.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}

	if c.cachedReady != nil && time.Since(c.lastCheck) < time.Second {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	checks := make(map[string]CheckResult)
	overallStatus := StatusHealthy

	for _, nc := range c.checks {
		result := c.runCheck(ctx, nc.checker)
		checks[nc.name] = result
		if result.Status == StatusHealthy {
			continue
		}
		if nc.critical {
			overallStatus = StatusUnhealthy
		} else if overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	response := &Response{
		Status: overallStatus,
		Checks: checks,
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = time.Now()
	c.mu.Unlock()

	return response
}

func (c *Checker) runCheck(ctx context.Context, rc ReadinessChecker) CheckResult {
	if rc == nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "checker not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := rc.Ready(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy}
}

// SetShuttingDown marks the service as shutting down. Readiness checks
// return unhealthy from then on, signaling load balancers to stop sending
// new traffic.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}
