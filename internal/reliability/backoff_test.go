package reliability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoff(t *testing.T) {
	t.Run("reference delay sequence", func(t *testing.T) {
		policy := DefaultReconnectPolicy()

		expected := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			16 * time.Second,
			30 * time.Second,
			30 * time.Second,
			30 * time.Second,
		}
		for i, want := range expected {
			assert.Equal(t, want, policy.NextDelay(i+1), "attempt %d", i+1)
		}
	})

	t.Run("unbounded by default", func(t *testing.T) {
		policy := DefaultReconnectPolicy()
		assert.False(t, policy.ShouldGiveUp(1))
		assert.False(t, policy.ShouldGiveUp(100000))
	})

	t.Run("configurable attempt ceiling", func(t *testing.T) {
		policy := NewExponentialBackoff(1*time.Second, 30*time.Second, 2.0, 5)
		for attempt := 1; attempt <= 5; attempt++ {
			assert.False(t, policy.ShouldGiveUp(attempt), "attempt %d", attempt)
		}
		assert.True(t, policy.ShouldGiveUp(6))
	})

	t.Run("attempt below one is clamped", func(t *testing.T) {
		policy := DefaultReconnectPolicy()
		assert.Equal(t, 1*time.Second, policy.NextDelay(0))
		assert.Equal(t, 1*time.Second, policy.NextDelay(-3))
	})

	t.Run("jitter spreads delays within 15 percent", func(t *testing.T) {
		policy := DefaultReconnectPolicy()
		policy.Jitter = true

		varied := false
		first := policy.NextDelay(1)
		for i := 0; i < 20; i++ {
			d := policy.NextDelay(1)
			assert.GreaterOrEqual(t, d, 850*time.Millisecond)
			assert.LessOrEqual(t, d, 1150*time.Millisecond)
			if d != first {
				varied = true
			}
		}
		assert.True(t, varied, "jitter should produce different delays")
	})
}

func TestFixedDelay(t *testing.T) {
	t.Run("constant delay", func(t *testing.T) {
		policy := NewFixedDelay(50*time.Millisecond, 3)
		assert.Equal(t, 50*time.Millisecond, policy.NextDelay(1))
		assert.Equal(t, 50*time.Millisecond, policy.NextDelay(10))
	})

	t.Run("ceiling", func(t *testing.T) {
		policy := NewFixedDelay(time.Millisecond, 2)
		assert.False(t, policy.ShouldGiveUp(2))
		assert.True(t, policy.ShouldGiveUp(3))
	})

	t.Run("negative ceiling retries forever", func(t *testing.T) {
		policy := NewFixedDelay(time.Millisecond, -1)
		assert.False(t, policy.ShouldGiveUp(9999))
	})
}
