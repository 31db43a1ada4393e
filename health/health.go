// Package health reports the liveness of a sessionwire client: the session
// connection itself, the process it runs in, and any embedding-app
// components registered alongside them.
package health

import (
	"context"
	"sync"
	"time"
)

// Status classifies a check outcome. Degraded means operational but
// impaired (reconnecting, backlog building); unhealthy means not
// operational.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// worse reports the more severe of two statuses.
func worse(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusUnhealthy:
			return 2
		case StatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Name     string                 `json:"name"`
	Status   Status                 `json:"status"`
	Message  string                 `json:"message,omitempty"`
	Duration time.Duration          `json:"duration"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Report is the aggregate of one health pass over a client. Status is the
// worst status among the checks; Checks preserves registration order.
type Report struct {
	Status    Status        `json:"status"`
	CheckedAt time.Time     `json:"checkedAt"`
	Duration  time.Duration `json:"duration"`
	Checks    []CheckResult `json:"checks"`
}

// Checker is a single named health probe.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Registry holds a client's checkers and runs them as one pass. A client's
// checks are few and in-process, so they run sequentially in registration
// order; the report reads top to bottom the way the checks were wired.
type Registry struct {
	mu       sync.Mutex
	checkers []Checker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a checker. Registering a name twice replaces the
// earlier checker in place.
func (r *Registry) Register(checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.checkers {
		if existing.Name() == checker.Name() {
			r.checkers[i] = checker
			return
		}
	}
	r.checkers = append(r.checkers, checker)
}

// Unregister removes a checker by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.checkers {
		if existing.Name() == name {
			r.checkers = append(r.checkers[:i], r.checkers[i+1:]...)
			return
		}
	}
}

// Check runs every registered checker and aggregates the worst status.
// Once ctx is done, the remaining checkers are reported unhealthy without
// being run.
func (r *Registry) Check(ctx context.Context) Report {
	start := time.Now()

	r.mu.Lock()
	checkers := make([]Checker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.Unlock()

	report := Report{
		Status:    StatusHealthy,
		CheckedAt: start,
		Checks:    make([]CheckResult, 0, len(checkers)),
	}

	for _, checker := range checkers {
		var result CheckResult
		if ctx.Err() != nil {
			result = CheckResult{
				Name:    checker.Name(),
				Status:  StatusUnhealthy,
				Message: "Check cancelled",
				Error:   ctx.Err().Error(),
			}
		} else {
			result = checker.Check(ctx)
		}
		report.Checks = append(report.Checks, result)
		report.Status = worse(report.Status, result.Status)
	}

	report.Duration = time.Since(start)
	return report
}

// Result looks a check up by name in a report.
func (r Report) Result(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}
