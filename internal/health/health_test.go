package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubChecker struct {
	err error
}

func (s *stubChecker) Ready(context.Context) error {
	return s.err
}

func TestLiveness(t *testing.T) {
	t.Parallel()

	c := NewChecker()
	resp := c.Liveness(context.Background())
	if resp.Status != StatusHealthy {
		t.Errorf("Liveness status = %v, want healthy", resp.Status)
	}
}

func TestReadinessAllHealthy(t *testing.T) {
	t.Parallel()

	c := NewChecker()
	c.Register("database", &stubChecker{})
	c.RegisterOptional("local", &stubChecker{})

	resp := c.Readiness(context.Background())
	if resp.Status != StatusHealthy {
		t.Errorf("Readiness status = %v, want healthy", resp.Status)
	}
	if !resp.Serving() {
		t.Error("Serving() = false, want true")
	}
	if len(resp.Checks) != 2 {
		t.Errorf("len(Checks) = %d, want 2", len(resp.Checks))
	}
}

func TestReadinessCriticalFailure(t *testing.T) {
	t.Parallel()

	c := NewChecker()
	c.Register("database", &stubChecker{err: errors.New("connection refused")})
	c.RegisterOptional("local", &stubChecker{})

	resp := c.Readiness(context.Background())
	if resp.Status != StatusUnhealthy {
		t.Errorf("Readiness status = %v, want unhealthy", resp.Status)
	}
	if resp.Serving() {
		t.Error("Serving() = true, want false")
	}
	if resp.Checks["database"].Message != "connection refused" {
		t.Errorf("database message = %q", resp.Checks["database"].Message)
	}
}

func TestReadinessOptionalFailureDegrades(t *testing.T) {
	t.Parallel()

	c := NewChecker()
	c.Register("database", &stubChecker{})
	c.RegisterOptional("aws", &stubChecker{err: errors.New("queue unreachable")})

	resp := c.Readiness(context.Background())
	if resp.Status != StatusDegraded {
		t.Errorf("Readiness status = %v, want degraded", resp.Status)
	}
	if !resp.Serving() {
		t.Error("Serving() = false, want true for degraded instance")
	}
}

func TestReadinessCaching(t *testing.T) {
	t.Parallel()

	flaky := &stubChecker{}
	c := NewChecker()
	c.Register("database", flaky)

	first := c.Readiness(context.Background())
	if first.Status != StatusHealthy {
		t.Fatalf("first status = %v", first.Status)
	}

	// The failure is masked while the cached result is fresh.
	flaky.err = errors.New("down")
	second := c.Readiness(context.Background())
	if second.Status != StatusHealthy {
		t.Errorf("cached status = %v, want healthy", second.Status)
	}
}

func TestReadinessShuttingDown(t *testing.T) {
	t.Parallel()

	c := NewChecker()
	c.Register("database", &stubChecker{})
	c.SetShuttingDown()

	resp := c.Readiness(context.Background())
	if resp.Status != StatusUnhealthy {
		t.Errorf("Readiness status = %v, want unhealthy while shutting down", resp.Status)
	}
	if _, ok := resp.Checks["shutdown"]; !ok {
		t.Error("expected a shutdown check result")
	}
}

func TestReadinessNilChecker(t *testing.T) {
	t.Parallel()

	c := NewChecker()
	c.Register("database", nil)
	c.timeout = time.Second

	resp := c.Readiness(context.Background())
	if resp.Status != StatusUnhealthy {
		t.Errorf("Readiness status = %v, want unhealthy", resp.Status)
	}
}
