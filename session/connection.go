package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaymobile/sessionwire-go/contracts"
	"github.com/relaymobile/sessionwire-go/internal/reliability"
	"github.com/relaymobile/sessionwire-go/transport"
)

const defaultDialTimeout = 30 * time.Second

// ReconnectPolicy is re-exported so embedding apps can supply custom
// policies without reaching into internal packages.
type ReconnectPolicy = reliability.ReconnectPolicy

// eventKind discriminates the events funneled through the connection loop.
type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evSend
	evDialResult
	evFrame
	evRaw
	evReadError
	evProbe
	evProbeExpired
	evRetry
)

// event is one unit of work for the connection loop. gen ties transport
// callbacks and timer firings to the connection generation that created
// them; stale events are dropped.
type event struct {
	kind     eventKind
	gen      uint64
	endpoint string
	token    string
	env      *contracts.Envelope
	data     []byte
	conn     transport.Conn
	err      error
}

// Connection owns one transport connection to one logical peer, together
// with its outbound queue and keepalive monitor. Inbound frames, timer
// firings and outbound sends all funnel through one loop goroutine, so no
// two state transitions for the same Connection ever race.
type Connection struct {
	dialer   transport.Dialer
	observer Observer
	policy   reliability.ReconnectPolicy
	logger   *slog.Logger

	keepaliveInterval time.Duration
	keepaliveTimeout  time.Duration
	dialTimeout       time.Duration

	events    chan event
	done      chan struct{}
	closeOnce sync.Once

	stateVal atomic.Int32

	errMu   sync.Mutex
	lastErr error

	queue *OutboundQueue

	// Loop-owned fields. Only the run goroutine touches these.
	endpoint       string
	token          string
	conn           transport.Conn
	gen            uint64
	attempt        int
	verified       bool
	keepalive      *KeepaliveMonitor
	reconnectTimer *time.Timer
}

// Option configures a Connection.
type Option func(*Connection)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) { c.logger = logger }
}

// WithReconnectPolicy sets the reconnection policy.
func WithReconnectPolicy(policy reliability.ReconnectPolicy) Option {
	return func(c *Connection) { c.policy = policy }
}

// WithQueueCapacity bounds the outbound queue.
func WithQueueCapacity(capacity int) Option {
	return func(c *Connection) { c.queue = NewOutboundQueue(capacity) }
}

// WithKeepalive sets the liveness probe interval and acknowledgment window.
func WithKeepalive(interval, timeout time.Duration) Option {
	return func(c *Connection) {
		c.keepaliveInterval = interval
		c.keepaliveTimeout = timeout
	}
}

// WithDialTimeout bounds each transport dial attempt.
func WithDialTimeout(timeout time.Duration) Option {
	return func(c *Connection) { c.dialTimeout = timeout }
}

// NewConnection creates a Connection and starts its event loop. The
// observer is fixed for the connection's lifetime. Callers must Close the
// connection when done with it.
func NewConnection(dialer transport.Dialer, observer Observer, opts ...Option) *Connection {
	c := &Connection{
		dialer:            dialer,
		observer:          observer,
		policy:            reliability.DefaultReconnectPolicy(),
		logger:            slog.Default(),
		keepaliveInterval: DefaultKeepaliveInterval,
		keepaliveTimeout:  DefaultKeepaliveTimeout,
		dialTimeout:       defaultDialTimeout,
		events:            make(chan event, 256),
		done:              make(chan struct{}),
		queue:             NewOutboundQueue(DefaultQueueCapacity),
	}
	if c.observer == nil {
		c.observer = ObserverFuncs{}
	}

	for _, opt := range opts {
		opt(c)
	}

	go c.run()
	return c
}

// State returns the current lifecycle state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.stateVal.Load())
}

// LastError returns the most recent transport-level error, if any.
func (c *Connection) LastError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// Backlog returns the number of envelopes buffered for delivery.
func (c *Connection) Backlog() int {
	return c.queue.Len()
}

// Connect opens the transport to endpoint, attaching token as the
// connection credential. Valid only from the disconnected or failed state.
// Connect returns immediately; the connected transition is signaled via the
// observer once the transport is up and the verification ping answered.
//
// The token is read-only shared state: refreshing it requires an explicit
// Disconnect/Connect cycle.
func (c *Connection) Connect(endpoint, token string) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if s := c.State(); s != StateDisconnected && s != StateFailed {
		return ErrInvalidState
	}

	c.post(event{kind: evConnect, endpoint: endpoint, token: token})
	return nil
}

// Send accepts an envelope for delivery. When connected it is written
// immediately; otherwise it is buffered and flushed in order on the next
// connected transition. The contract is accepted-for-delivery, not
// delivered.
func (c *Connection) Send(env *contracts.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.post(event{kind: evSend, env: env})
	return nil
}

// Disconnect deterministically moves to the disconnected state: it cancels
// the keepalive monitor and any pending reconnect timer, closes the
// transport, clears the retry counter and discards queued-but-unsent
// envelopes. Repeated calls are no-ops.
func (c *Connection) Disconnect() {
	select {
	case <-c.done:
		return
	default:
	}

	c.post(event{kind: evDisconnect})
}

// Close disposes the connection and stops its event loop. The connection
// cannot be reused afterwards.
func (c *Connection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// post delivers an event to the loop unless the connection is disposed.
func (c *Connection) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Connection) run() {
	for {
		select {
		case <-c.done:
			c.teardownTransport()
			c.stopReconnectTimer()
			return
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Connection) handle(ev event) {
	switch ev.kind {
	case evConnect:
		c.handleConnect(ev.endpoint, ev.token)
	case evDisconnect:
		c.handleDisconnect()
	case evSend:
		c.handleSend(ev.env)
	case evDialResult:
		c.handleDialResult(ev)
	case evFrame:
		if ev.gen == c.gen {
			c.handleFrame(ev.data)
		}
	case evRaw:
		if ev.gen == c.gen {
			c.observer.OnRawData(ev.data)
		}
	case evReadError:
		if ev.gen == c.gen {
			c.transportLost("read", ev.err)
		}
	case evProbe:
		if ev.gen == c.gen {
			c.handleProbe()
		}
	case evProbeExpired:
		if ev.gen == c.gen {
			c.transportLost("keepalive", ErrKeepaliveTimeout)
		}
	case evRetry:
		if ev.gen == c.gen && c.State() == StateReconnecting {
			c.dial()
		}
	}
}

func (c *Connection) handleConnect(endpoint, token string) {
	if s := c.State(); s != StateDisconnected && s != StateFailed {
		c.logger.Warn("connect ignored", "state", s.String())
		return
	}

	c.endpoint = endpoint
	c.token = token
	c.attempt = 0
	c.setState(StateConnecting)
	c.dial()
}

// dial attempts the transport against the original endpoint and token,
// never a possibly-stale redirected one.
func (c *Connection) dial() {
	c.gen++
	gen := c.gen
	endpoint, token := c.endpoint, c.token

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
		defer cancel()

		conn, err := c.dialer.Dial(ctx, endpoint, token)
		c.post(event{kind: evDialResult, gen: gen, conn: conn, err: err})
	}()
}

func (c *Connection) handleDialResult(ev event) {
	if ev.gen != c.gen {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}
	if s := c.State(); s != StateConnecting && s != StateReconnecting {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}

	if ev.err != nil {
		c.logger.Warn("dial failed",
			"endpoint", SanitizeEndpoint(c.endpoint),
			"error", ev.err)
		c.setLastError(&ConnectionError{
			Op:        "dial",
			Endpoint:  SanitizeEndpoint(c.endpoint),
			Err:       ev.err,
			Timestamp: time.Now(),
			Attempts:  c.attempt,
		})
		c.scheduleRetry()
		return
	}

	c.conn = ev.conn
	c.verified = false
	c.startReadLoop(ev.conn, c.gen)

	// The first keepalive probe doubles as the verification ping: the
	// connected transition is gated on its acknowledgment so a half-open
	// transport is not mistaken for a healthy one.
	gen := c.gen
	c.keepalive = NewKeepaliveMonitor(
		c.keepaliveInterval,
		c.keepaliveTimeout,
		func() { c.post(event{kind: evProbe, gen: gen}) },
		func() { c.post(event{kind: evProbeExpired, gen: gen}) },
	)
	c.keepalive.Start()
}

func (c *Connection) startReadLoop(conn transport.Conn, gen uint64) {
	go func() {
		for {
			data, raw, err := conn.Read()
			if err != nil {
				c.post(event{kind: evReadError, gen: gen, err: err})
				return
			}
			kind := evFrame
			if raw {
				kind = evRaw
			}
			c.post(event{kind: kind, gen: gen, data: data})
		}
	}()
}

func (c *Connection) handleFrame(data []byte) {
	env, err := contracts.DecodeEnvelope(data)
	if err != nil {
		// A malformed frame costs that single message, not the session.
		c.logger.Warn("dropping malformed frame", "error", err, "bytes", len(data))
		return
	}

	switch env.Type {
	case contracts.TypePong:
		c.handlePong()
	case contracts.TypePing:
		reply := contracts.NewEnvelope(contracts.TypePong, env.Payload)
		if err := c.write(reply); err != nil {
			c.transportLost("pong", err)
		}
	case contracts.TypeSessionCreated:
		c.checkServerVersion(env)
		c.observer.OnMessage(env)
	default:
		c.observer.OnMessage(env)
	}
}

func (c *Connection) handlePong() {
	if c.keepalive != nil {
		c.keepalive.Ack()
	}
	if !c.verified && c.conn != nil {
		c.verified = true
		c.becomeConnected()
	}
}

func (c *Connection) handleProbe() {
	if c.conn == nil {
		return
	}
	ping := contracts.NewEnvelope(contracts.TypePing, nil)
	if err := c.write(ping); err != nil {
		c.transportLost("ping", err)
	}
}

// becomeConnected finalizes a verified transport: resets the retry counter,
// announces the state and flushes the outbound queue in enqueue order
// before any new send is written.
func (c *Connection) becomeConnected() {
	c.attempt = 0
	c.setState(StateConnected)

	pending := c.queue.Drain()
	flushed := 0
	for i, env := range pending {
		data, ok := c.encode(env)
		if !ok {
			continue
		}
		if err := c.conn.Write(data); err != nil {
			// Re-queue the remainder and abort the drain; no partial
			// reorder.
			c.queue.Requeue(pending[i:])
			c.transportLost("flush", err)
			return
		}
		flushed++
	}
	if flushed > 0 {
		c.logger.Info("flushed outbound queue", "count", flushed)
	}
}

func (c *Connection) handleSend(env *contracts.Envelope) {
	// An unencodable envelope costs that single message, not the session:
	// it is dropped here, never buffered, and never mistaken for transport
	// loss.
	data, ok := c.encode(env)
	if !ok {
		return
	}

	if c.State() == StateConnected && c.conn != nil {
		if err := c.conn.Write(data); err != nil {
			c.queue.Enqueue(env)
			c.transportLost("send", err)
		}
		return
	}

	if evicted := c.queue.Enqueue(env); evicted {
		c.logger.Warn("outbound queue full, dropped oldest envelope",
			"capacity", c.queue.Cap())
	}
}

// encode marshals an envelope, dropping it with a log line on failure.
// Marshaling never touches the transport, so a failure here is the
// envelope's fault (a payload outside the encodable set), not the
// connection's.
func (c *Connection) encode(env *contracts.Envelope) ([]byte, bool) {
	data, err := env.MarshalJSON()
	if err != nil {
		var encErr *contracts.EncodeError
		if errors.As(err, &encErr) {
			c.logger.Warn("dropping unencodable envelope",
				"type", string(env.Type), "error", err)
		} else {
			c.logger.Warn("dropping envelope that failed to marshal",
				"type", string(env.Type), "error", err)
		}
		return nil, false
	}
	return data, true
}

func (c *Connection) write(env *contracts.Envelope) error {
	data, ok := c.encode(env)
	if !ok {
		return nil
	}
	return c.conn.Write(data)
}

// transportLost handles an abrupt transport failure from any source: read
// errors, write errors and missed keepalive acknowledgments all take the
// same path.
func (c *Connection) transportLost(op string, err error) {
	c.logger.Warn("transport lost", "op", op, "error", err)
	c.setLastError(&ConnectionError{
		Op:        op,
		Endpoint:  SanitizeEndpoint(c.endpoint),
		Err:       err,
		Timestamp: time.Now(),
		Attempts:  c.attempt,
	})

	c.teardownTransport()
	c.scheduleRetry()
}

func (c *Connection) scheduleRetry() {
	c.attempt++
	if c.policy.ShouldGiveUp(c.attempt) {
		c.logger.Error("reconnection attempts exhausted", "attempts", c.attempt-1)
		c.setLastError(ErrRetriesExhausted)
		c.queue.Clear()
		c.setState(StateFailed)
		return
	}

	if c.State() != StateReconnecting {
		c.setState(StateReconnecting)
	}

	delay := c.policy.NextDelay(c.attempt)
	c.logger.Info("reconnect scheduled",
		"attempt", c.attempt,
		"delay", delay,
		"endpoint", SanitizeEndpoint(c.endpoint))

	gen := c.gen
	c.stopReconnectTimer()
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.post(event{kind: evRetry, gen: gen})
	})
}

func (c *Connection) handleDisconnect() {
	c.stopReconnectTimer()
	c.teardownTransport()
	c.queue.Clear()
	c.attempt = 0
	c.gen++ // invalidate any in-flight dial or timer
	if c.State() != StateDisconnected {
		c.setState(StateDisconnected)
	}
}

// teardownTransport closes the current transport and stops its keepalive
// monitor. Loop-only.
func (c *Connection) teardownTransport() {
	if c.keepalive != nil {
		c.keepalive.Stop()
		c.keepalive = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.verified = false
}

func (c *Connection) stopReconnectTimer() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Connection) setState(s ConnectionState) {
	if ConnectionState(c.stateVal.Swap(int32(s))) == s {
		return
	}
	c.observer.OnStateChanged(s)
}

func (c *Connection) setLastError(err error) {
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
}

func (c *Connection) checkServerVersion(env *contracts.Envelope) {
	v, ok := env.Payload["serverVersion"]
	if !ok {
		return
	}
	announced, ok := v.Str()
	if !ok {
		return
	}
	if err := contracts.CheckServerVersion(announced); err != nil {
		c.logger.Warn("server protocol version mismatch",
			"server", announced,
			"client", contracts.ProtocolVersion,
			"error", err)
	}
}
