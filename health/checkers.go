package health

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/relaymobile/sessionwire-go/session"
)

// SessionConn is the connection surface the checkers inspect.
// *session.Connection satisfies it.
type SessionConn interface {
	State() session.ConnectionState
	LastError() error
	Backlog() int
}

// ConnectionChecker reports the health of a session connection: healthy
// when connected, degraded while (re)connecting or when the outbound
// backlog builds up, unhealthy otherwise.
type ConnectionChecker struct {
	conn             SessionConn
	backlogThreshold int
}

// NewConnectionChecker creates a connection checker. backlogThreshold is
// the outbound backlog above which a connected session is reported
// degraded; zero or negative disables it.
func NewConnectionChecker(conn SessionConn, backlogThreshold int) *ConnectionChecker {
	return &ConnectionChecker{
		conn:             conn,
		backlogThreshold: backlogThreshold,
	}
}

func (c *ConnectionChecker) Name() string {
	return "connection"
}

func (c *ConnectionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:    c.Name(),
		Details: make(map[string]interface{}),
	}

	state := c.conn.State()
	backlog := c.conn.Backlog()
	result.Details["state"] = state.String()
	result.Details["backlog"] = backlog
	if err := c.conn.LastError(); err != nil {
		result.Details["last_error"] = err.Error()
	}

	switch state {
	case session.StateConnected:
		if c.backlogThreshold > 0 && backlog > c.backlogThreshold {
			result.Status = StatusDegraded
			result.Message = fmt.Sprintf("Outbound backlog high: %d", backlog)
		} else {
			result.Status = StatusHealthy
			result.Message = "Connection is healthy"
		}
	case session.StateConnecting, session.StateReconnecting:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("Connection is %s", state)
	default:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("Connection is %s", state)
	}

	result.Duration = time.Since(start)
	return result
}

// GoroutineChecker reports on the process goroutine count, a cheap proxy
// for leaked read loops and observer callbacks that never return.
type GoroutineChecker struct {
	warningThreshold  int
	criticalThreshold int
}

// NewGoroutineChecker creates a goroutine checker.
func NewGoroutineChecker(warningThreshold, criticalThreshold int) *GoroutineChecker {
	return &GoroutineChecker{
		warningThreshold:  warningThreshold,
		criticalThreshold: criticalThreshold,
	}
}

func (c *GoroutineChecker) Name() string {
	return "goroutines"
}

func (c *GoroutineChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:    c.Name(),
		Details: make(map[string]interface{}),
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	goroutines := runtime.NumGoroutine()
	result.Details["goroutines"] = goroutines
	result.Details["memory_used_mb"] = float64(m.Sys) / 1024 / 1024
	result.Details["gc_runs"] = m.NumGC

	switch {
	case goroutines > c.criticalThreshold:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("Too many goroutines: %d", goroutines)
	case goroutines > c.warningThreshold:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("High goroutine count: %d", goroutines)
	default:
		result.Status = StatusHealthy
		result.Message = "Goroutine count is normal"
	}

	result.Duration = time.Since(start)
	return result
}

// ComponentChecker wraps a named probe supplied by the embedding app, for
// components the library knows nothing about.
type ComponentChecker struct {
	name  string
	probe func(ctx context.Context) (Status, string, error)
}

// NewComponentChecker creates a checker around a custom probe function.
func NewComponentChecker(name string, probe func(ctx context.Context) (Status, string, error)) *ComponentChecker {
	return &ComponentChecker{
		name:  name,
		probe: probe,
	}
}

func (c *ComponentChecker) Name() string {
	return c.name
}

func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	status, message, err := c.probe(ctx)
	result := CheckResult{
		Name:    c.name,
		Status:  status,
		Message: message,
	}
	if err != nil {
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)
	return result
}
