// Copyright 2026 Sessionwire Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sessionwire

import (
	"log/slog"
	"time"

	"github.com/relaymobile/sessionwire-go/contracts"
	"github.com/relaymobile/sessionwire-go/health"
	"github.com/relaymobile/sessionwire-go/session"
	"github.com/relaymobile/sessionwire-go/shell"
	"github.com/relaymobile/sessionwire-go/transport"
	"github.com/relaymobile/sessionwire-go/transport/websocket"
)

// Client provides the main entry point for sessionwire-go: one persistent
// session connection plus the shell command channel running over it.
type Client struct {
	conn   *session.Connection
	shell  *shell.Channel
	logger *slog.Logger
}

// NewClient creates a client with the default WebSocket transport
func NewClient(options ...ClientOption) *Client {
	cfg := &clientConfig{
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(cfg)
	}

	if cfg.dialer == nil {
		cfg.dialer = websocket.NewDialer()
	}

	connOpts := append([]session.Option{
		session.WithLogger(cfg.logger),
	}, cfg.connOpts...)

	// The shell channel sits in the observer chain ahead of the caller's
	// observer, so shell frames reach both.
	fan := &fanoutObserver{user: cfg.observer}
	conn := session.NewConnection(cfg.dialer, fan, connOpts...)

	shellOpts := []shell.ChannelOption{shell.WithChannelLogger(cfg.logger)}
	if cfg.commandTimeout > 0 {
		shellOpts = append(shellOpts, shell.WithCommandTimeout(cfg.commandTimeout))
	}
	ch := shell.NewChannel(conn, shellOpts...)
	fan.shell = ch

	return &Client{
		conn:   conn,
		shell:  ch,
		logger: cfg.logger,
	}
}

// Connect opens the session to endpoint, attaching token as the connection
// credential. Returns immediately; progress is reported via the observer.
func (c *Client) Connect(endpoint, token string) error {
	return c.conn.Connect(endpoint, token)
}

// Disconnect deterministically tears the session down. Queued-but-unsent
// envelopes are discarded.
func (c *Client) Disconnect() {
	c.conn.Disconnect()
}

// Send accepts an envelope for delivery, buffering it when disconnected.
func (c *Client) Send(env *contracts.Envelope) error {
	return c.conn.Send(env)
}

// SendMessage builds an envelope from native Go values and accepts it for
// delivery. Values outside the supported set fail here, synchronously,
// before any bytes move.
func (c *Client) SendMessage(t contracts.MessageType, payload map[string]any) error {
	converted, err := contracts.FromNativeMap(payload)
	if err != nil {
		return err
	}
	return c.conn.Send(contracts.NewEnvelope(t, converted))
}

// Shell returns the command channel running over this client's session.
func (c *Client) Shell() *shell.Channel {
	return c.shell
}

// State returns the connection's lifecycle state.
func (c *Client) State() session.ConnectionState {
	return c.conn.State()
}

// LastError returns the most recent transport-level error, if any.
func (c *Client) LastError() error {
	return c.conn.LastError()
}

// Backlog returns the number of envelopes buffered for delivery.
func (c *Client) Backlog() int {
	return c.conn.Backlog()
}

// Health returns a registry preloaded with this client's connection and
// runtime checkers. Callers may register additional checkers on it.
func (c *Client) Health() *health.Registry {
	registry := health.NewRegistry()
	registry.Register(health.NewConnectionChecker(c.conn, session.DefaultQueueCapacity/2))
	registry.Register(health.NewGoroutineChecker(500, 1000))
	return registry
}

// Close disposes the client and its connection. The client cannot be
// reused afterwards.
func (c *Client) Close() {
	c.conn.Close()
}

// fanoutObserver delivers connection callbacks to the shell channel first
// and then to the caller's observer. Nil user observers are tolerated.
type fanoutObserver struct {
	shell *shell.Channel
	user  session.Observer
}

func (f *fanoutObserver) OnStateChanged(state session.ConnectionState) {
	if f.shell != nil {
		f.shell.OnStateChanged(state)
	}
	if f.user != nil {
		f.user.OnStateChanged(state)
	}
}

func (f *fanoutObserver) OnMessage(env *contracts.Envelope) {
	if f.shell != nil {
		f.shell.OnMessage(env)
	}
	if f.user != nil {
		f.user.OnMessage(env)
	}
}

func (f *fanoutObserver) OnRawData(data []byte) {
	if f.shell != nil {
		f.shell.OnRawData(data)
	}
	if f.user != nil {
		f.user.OnRawData(data)
	}
}

// clientConfig holds client configuration
type clientConfig struct {
	logger         *slog.Logger
	dialer         transport.Dialer
	observer       session.Observer
	connOpts       []session.Option
	commandTimeout time.Duration
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithObserver registers the caller's observer for state changes, inbound
// messages and raw frames.
func WithObserver(observer session.Observer) ClientOption {
	return func(cfg *clientConfig) {
		cfg.observer = observer
	}
}

// WithDialer replaces the default WebSocket dialer. Used to inject fakes
// in tests and alternative transports in embedding apps.
func WithDialer(dialer transport.Dialer) ClientOption {
	return func(cfg *clientConfig) {
		cfg.dialer = dialer
	}
}

// WithReconnectPolicy sets the reconnection policy.
func WithReconnectPolicy(policy session.ReconnectPolicy) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connOpts = append(cfg.connOpts, session.WithReconnectPolicy(policy))
	}
}

// WithKeepalive sets the liveness probe interval and acknowledgment window.
func WithKeepalive(interval, timeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connOpts = append(cfg.connOpts, session.WithKeepalive(interval, timeout))
	}
}

// WithQueueCapacity bounds the outbound queue.
func WithQueueCapacity(capacity int) ClientOption {
	return func(cfg *clientConfig) {
		cfg.connOpts = append(cfg.connOpts, session.WithQueueCapacity(capacity))
	}
}

// WithCommandTimeout sets the shell channel's per-command timeout.
func WithCommandTimeout(timeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.commandTimeout = timeout
	}
}
