package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymobile/sessionwire-go/session"
)

type stubConn struct {
	state   session.ConnectionState
	lastErr error
	backlog int
}

func (s *stubConn) State() session.ConnectionState { return s.state }
func (s *stubConn) LastError() error               { return s.lastErr }
func (s *stubConn) Backlog() int                   { return s.backlog }

func TestConnectionChecker(t *testing.T) {
	t.Run("connected is healthy", func(t *testing.T) {
		checker := NewConnectionChecker(&stubConn{state: session.StateConnected}, 50)
		result := checker.Check(context.Background())

		assert.Equal(t, StatusHealthy, result.Status)
		assert.Equal(t, "connected", result.Details["state"])
	})

	t.Run("high backlog degrades a connected session", func(t *testing.T) {
		conn := &stubConn{state: session.StateConnected, backlog: 80}
		checker := NewConnectionChecker(conn, 50)
		result := checker.Check(context.Background())

		assert.Equal(t, StatusDegraded, result.Status)
		assert.Equal(t, 80, result.Details["backlog"])
	})

	t.Run("zero threshold disables the backlog check", func(t *testing.T) {
		conn := &stubConn{state: session.StateConnected, backlog: 500}
		checker := NewConnectionChecker(conn, 0)
		result := checker.Check(context.Background())

		assert.Equal(t, StatusHealthy, result.Status)
	})

	t.Run("reconnecting is degraded", func(t *testing.T) {
		checker := NewConnectionChecker(&stubConn{state: session.StateReconnecting}, 50)
		assert.Equal(t, StatusDegraded, checker.Check(context.Background()).Status)
	})

	t.Run("failed is unhealthy and carries the last error", func(t *testing.T) {
		conn := &stubConn{
			state:   session.StateFailed,
			lastErr: errors.New("connection refused"),
		}
		checker := NewConnectionChecker(conn, 50)
		result := checker.Check(context.Background())

		assert.Equal(t, StatusUnhealthy, result.Status)
		assert.Equal(t, "connection refused", result.Details["last_error"])
	})
}

func TestGoroutineChecker(t *testing.T) {
	t.Run("normal count is healthy", func(t *testing.T) {
		checker := NewGoroutineChecker(10000, 50000)
		result := checker.Check(context.Background())

		assert.Equal(t, StatusHealthy, result.Status)
		assert.NotZero(t, result.Details["goroutines"])
	})

	t.Run("thresholds escalate the status", func(t *testing.T) {
		checker := NewGoroutineChecker(0, 100000)
		assert.Equal(t, StatusDegraded, checker.Check(context.Background()).Status)

		checker = NewGoroutineChecker(0, 0)
		assert.Equal(t, StatusUnhealthy, checker.Check(context.Background()).Status)
	})
}

func TestComponentChecker(t *testing.T) {
	t.Run("probe outcome is carried through", func(t *testing.T) {
		checker := NewComponentChecker("shell", func(ctx context.Context) (Status, string, error) {
			return StatusDegraded, "command backlog", errors.New("3 commands waiting")
		})
		result := checker.Check(context.Background())

		assert.Equal(t, "shell", result.Name)
		assert.Equal(t, StatusDegraded, result.Status)
		assert.Equal(t, "command backlog", result.Message)
		assert.Equal(t, "3 commands waiting", result.Error)
	})
}

func TestRegistry(t *testing.T) {
	t.Run("aggregates the worst status in registration order", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(NewConnectionChecker(&stubConn{state: session.StateConnected}, 0))
		registry.Register(NewComponentChecker("shell", func(ctx context.Context) (Status, string, error) {
			return StatusDegraded, "command backlog", nil
		}))

		report := registry.Check(context.Background())
		assert.Equal(t, StatusDegraded, report.Status)
		require.Len(t, report.Checks, 2)
		assert.Equal(t, "connection", report.Checks[0].Name)
		assert.Equal(t, "shell", report.Checks[1].Name)
	})

	t.Run("unhealthy wins over degraded", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(NewComponentChecker("a", func(ctx context.Context) (Status, string, error) {
			return StatusDegraded, "", nil
		}))
		registry.Register(NewComponentChecker("b", func(ctx context.Context) (Status, string, error) {
			return StatusUnhealthy, "", nil
		}))

		assert.Equal(t, StatusUnhealthy, registry.Check(context.Background()).Status)
	})

	t.Run("re-registering a name replaces the checker in place", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(NewComponentChecker("a", func(ctx context.Context) (Status, string, error) {
			return StatusUnhealthy, "old", nil
		}))
		registry.Register(NewComponentChecker("a", func(ctx context.Context) (Status, string, error) {
			return StatusHealthy, "new", nil
		}))

		report := registry.Check(context.Background())
		require.Len(t, report.Checks, 1)
		assert.Equal(t, StatusHealthy, report.Status)
		assert.Equal(t, "new", report.Checks[0].Message)
	})

	t.Run("unregister removes a checker", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(NewComponentChecker("gone", func(ctx context.Context) (Status, string, error) {
			return StatusUnhealthy, "", nil
		}))
		registry.Unregister("gone")

		report := registry.Check(context.Background())
		assert.Equal(t, StatusHealthy, report.Status)
		assert.Empty(t, report.Checks)
	})

	t.Run("expired context marks remaining checks unhealthy without running them", func(t *testing.T) {
		ran := false
		registry := NewRegistry()
		registry.Register(NewComponentChecker("skipped", func(ctx context.Context) (Status, string, error) {
			ran = true
			return StatusHealthy, "", nil
		}))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		report := registry.Check(ctx)
		assert.False(t, ran)
		assert.Equal(t, StatusUnhealthy, report.Status)

		result, ok := report.Result("skipped")
		require.True(t, ok)
		assert.Equal(t, "Check cancelled", result.Message)
	})

	t.Run("result lookup by name", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(NewConnectionChecker(&stubConn{state: session.StateDisconnected}, 0))

		report := registry.Check(context.Background())
		result, ok := report.Result("connection")
		require.True(t, ok)
		assert.Equal(t, StatusUnhealthy, result.Status)

		_, ok = report.Result("missing")
		assert.False(t, ok)
	})
}

func TestRegistryTimeout(t *testing.T) {
	t.Run("a slow check consumes the budget, later checks are cancelled", func(t *testing.T) {
		registry := NewRegistry()
		registry.Register(NewComponentChecker("slow", func(ctx context.Context) (Status, string, error) {
			<-ctx.Done()
			return StatusDegraded, "gave up waiting", nil
		}))
		registry.Register(NewComponentChecker("after", func(ctx context.Context) (Status, string, error) {
			return StatusHealthy, "", nil
		}))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		report := registry.Check(ctx)
		assert.Equal(t, StatusUnhealthy, report.Status)

		after, ok := report.Result("after")
		require.True(t, ok)
		assert.Equal(t, StatusUnhealthy, after.Status)
		assert.Equal(t, "Check cancelled", after.Message)
	})
}
