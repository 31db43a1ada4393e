package session

import (
	"sync"
	"time"
)

const (
	// DefaultKeepaliveInterval is the gap between liveness probes.
	DefaultKeepaliveInterval = 30 * time.Second
	// DefaultKeepaliveTimeout is how long a probe may go unacknowledged
	// before the transport is declared dead.
	DefaultKeepaliveTimeout = 10 * time.Second
)

// KeepaliveMonitor issues periodic liveness probes and declares the
// connection dead when one goes unanswered. The first probe fires
// immediately on Start and doubles as the verification ping gating the
// connecting-to-connected transition.
type KeepaliveMonitor struct {
	interval time.Duration
	timeout  time.Duration
	probe    func()
	expired  func()

	mu       sync.Mutex
	stopped  bool
	deadline *time.Timer
	stopCh   chan struct{}
}

// NewKeepaliveMonitor creates a monitor. probe is invoked for every
// scheduled liveness probe; expired is invoked at most once, when a probe's
// acknowledgment window elapses without an Ack.
func NewKeepaliveMonitor(interval, timeout time.Duration, probe, expired func()) *KeepaliveMonitor {
	if interval <= 0 {
		interval = DefaultKeepaliveInterval
	}
	if timeout <= 0 {
		timeout = DefaultKeepaliveTimeout
	}
	return &KeepaliveMonitor{
		interval: interval,
		timeout:  timeout,
		probe:    probe,
		expired:  expired,
		stopCh:   make(chan struct{}),
	}
}

// Start fires the first probe immediately and then probes on every
// interval until Stop.
func (m *KeepaliveMonitor) Start() {
	go func() {
		m.fireProbe()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.fireProbe()
			}
		}
	}()
}

// Ack records a probe acknowledgment, clearing the pending expiry window.
func (m *KeepaliveMonitor) Ack() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
}

// Stop halts probing. Idempotent; no probe or expiry fires after Stop.
func (m *KeepaliveMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true
	close(m.stopCh)
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
}

func (m *KeepaliveMonitor) fireProbe() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	// One expiry window at a time: an unacknowledged earlier probe keeps
	// its deadline.
	if m.deadline == nil {
		m.deadline = time.AfterFunc(m.timeout, m.expire)
	}
	m.mu.Unlock()

	m.probe()
}

func (m *KeepaliveMonitor) expire() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	close(m.stopCh)
	m.deadline = nil
	m.mu.Unlock()

	m.expired()
}
