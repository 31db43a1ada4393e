package shell

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaymobile/sessionwire-go/contracts"
	"github.com/relaymobile/sessionwire-go/session"
)

// DefaultCommandTimeout is how long a dispatched command may go without any
// acknowledgment frame before it is failed locally.
const DefaultCommandTimeout = 10 * time.Second

var (
	// ErrCommandTimeout reports a command that received no acknowledgment
	// within the configured timeout. The channel moves on to the next
	// queued command.
	ErrCommandTimeout = errors.New("shell: command acknowledgment timed out")

	// ErrEmptyCommand reports an Execute call with an empty command line.
	ErrEmptyCommand = errors.New("shell: empty command")
)

// Transport is the sending side the channel runs over. *session.Connection
// satisfies it.
type Transport interface {
	Send(env *contracts.Envelope) error
}

// CommandHandler receives the streamed results of a single command.
// Output arrives incrementally, never buffered to completion. Exactly one
// of OnCompleted and OnFailed terminates the command.
type CommandHandler interface {
	OnOutput(chunk string)
	OnCompleted(exitCode int64)
	OnFailed(err error)
}

// HandlerFuncs adapts plain functions to CommandHandler. Nil fields are
// no-ops.
type HandlerFuncs struct {
	Output    func(chunk string)
	Completed func(exitCode int64)
	Failed    func(err error)
}

func (h HandlerFuncs) OnOutput(chunk string) {
	if h.Output != nil {
		h.Output(chunk)
	}
}

func (h HandlerFuncs) OnCompleted(exitCode int64) {
	if h.Completed != nil {
		h.Completed(exitCode)
	}
}

func (h HandlerFuncs) OnFailed(err error) {
	if h.Failed != nil {
		h.Failed(err)
	}
}

// pendingCommand is one queued or in-flight command.
type pendingCommand struct {
	id      string
	command string
	handler CommandHandler
	acked   bool
}

// Channel serializes shell command execution over a session transport: one
// command in flight at a time, the rest in a strictly-ordered queue of its
// own, separate from the connection's outbound queue. A command that is not
// acknowledged within the timeout is failed locally and the next one starts;
// a stuck remote command never blocks the channel.
//
// Channel implements session.Observer so it can be placed directly in the
// connection's observer chain. Frames it does not recognize as its own are
// ignored.
type Channel struct {
	transport Transport
	logger    *slog.Logger
	timeout   time.Duration

	mu       sync.Mutex
	queue    []*pendingCommand
	inFlight *pendingCommand
	timer    *time.Timer
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithChannelLogger sets the logger.
func WithChannelLogger(logger *slog.Logger) ChannelOption {
	return func(c *Channel) { c.logger = logger }
}

// WithCommandTimeout sets the per-command acknowledgment timeout.
func WithCommandTimeout(timeout time.Duration) ChannelOption {
	return func(c *Channel) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewChannel creates a command channel over the given transport.
func NewChannel(transport Transport, opts ...ChannelOption) *Channel {
	c := &Channel{
		transport: transport,
		logger:    slog.Default(),
		timeout:   DefaultCommandTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init announces the terminal dimensions and asks the remote side to start
// a shell session.
func (c *Channel) Init(cols, rows int64) error {
	env := contracts.NewEnvelope(contracts.TypeShellInit, map[string]contracts.Value{
		"cols": contracts.Integer(cols),
		"rows": contracts.Integer(rows),
	})
	return c.transport.Send(env)
}

// Execute queues a command for execution and returns its correlation id.
// When nothing is in flight the command is dispatched immediately. The
// handler receives output chunks as they stream in and exactly one terminal
// callback.
func (c *Channel) Execute(command string, handler CommandHandler) (string, error) {
	if command == "" {
		return "", ErrEmptyCommand
	}
	if handler == nil {
		handler = HandlerFuncs{}
	}

	pending := &pendingCommand{
		id:      uuid.New().String(),
		command: command,
		handler: handler,
	}

	c.mu.Lock()
	c.queue = append(c.queue, pending)
	if c.inFlight == nil {
		c.dispatchNextLocked()
	}
	c.mu.Unlock()

	return pending.id, nil
}

// Resize notifies the remote shell of new terminal dimensions. Resize is
// out-of-band: it is sent immediately regardless of the command queue and
// is not itself a command.
func (c *Channel) Resize(cols, rows int64) error {
	env := contracts.NewEnvelope(contracts.TypeShellResize, map[string]contracts.Value{
		"cols": contracts.Integer(cols),
		"rows": contracts.Integer(rows),
	})
	return c.transport.Send(env)
}

// Backlog returns the number of commands queued behind the in-flight one.
func (c *Channel) Backlog() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// InFlight reports whether a command is currently executing.
func (c *Channel) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight != nil
}

// OnStateChanged implements session.Observer. Connection state is not the
// channel's concern; queued commands survive reconnects because sends go
// through the connection's accepted-for-delivery contract.
func (c *Channel) OnStateChanged(state session.ConnectionState) {}

// OnRawData implements session.Observer.
func (c *Channel) OnRawData(data []byte) {}

// OnMessage implements session.Observer, consuming the shell frames that
// correlate with the in-flight command.
func (c *Channel) OnMessage(env *contracts.Envelope) {
	if !env.Type.IsShell() {
		return
	}

	c.mu.Lock()
	current := c.inFlight
	if current == nil || env.SessionID != current.id {
		c.mu.Unlock()
		if env.SessionID != "" {
			c.logger.Debug("shell frame for unknown command dropped",
				"type", string(env.Type),
				"commandId", env.SessionID)
		}
		return
	}

	switch env.Type {
	case contracts.TypeShellOutput:
		// First output acknowledges the command; a long-running command
		// that is already streaming is not timed out.
		if !current.acked {
			current.acked = true
			c.stopTimerLocked()
		}
		chunk := stringField(env, "output")
		c.mu.Unlock()
		current.handler.OnOutput(chunk)

	case contracts.TypeShellExit:
		c.finishLocked()
		c.mu.Unlock()
		code, _ := exitCode(env)
		current.handler.OnCompleted(code)

	case contracts.TypeShellError:
		c.finishLocked()
		c.mu.Unlock()
		current.handler.OnFailed(&CommandError{
			CommandID: current.id,
			Command:   current.command,
			Message:   stringField(env, "message"),
		})

	default:
		c.mu.Unlock()
	}
}

// dispatchNextLocked starts the next queued command: it becomes the
// in-flight command and its timeout is armed here, but the Send itself runs
// on its own goroutine. The channel sits in the connection's observer
// chain, so a synchronous Send here would post into the very event loop the
// callback is running on. Caller holds c.mu.
func (c *Channel) dispatchNextLocked() {
	if len(c.queue) == 0 {
		c.inFlight = nil
		return
	}

	next := c.queue[0]
	c.queue = c.queue[1:]
	c.inFlight = next

	c.logger.Debug("shell command dispatched",
		"commandId", next.id,
		"backlog", len(c.queue))

	id := next.id
	c.timer = time.AfterFunc(c.timeout, func() { c.expire(id) })
	go c.send(next)
}

// send writes the command envelope. A send failure fails the command
// locally and advances the queue, unless the command already terminated
// some other way (timeout) in the meantime.
func (c *Channel) send(cmd *pendingCommand) {
	env := contracts.NewSessionEnvelope(contracts.TypeShellCommand, cmd.id,
		map[string]contracts.Value{
			"command": contracts.String(cmd.command),
		})
	if err := c.transport.Send(env); err != nil {
		c.logger.Warn("shell command dispatch failed",
			"commandId", cmd.id, "error", err)

		c.mu.Lock()
		current := c.inFlight == cmd
		if current {
			c.finishLocked()
		}
		c.mu.Unlock()

		if current {
			cmd.handler.OnFailed(err)
		}
	}
}

// finishLocked clears the in-flight command, stops its timer and dispatches
// the next queued command. Caller holds c.mu.
func (c *Channel) finishLocked() {
	c.stopTimerLocked()
	c.inFlight = nil
	c.dispatchNextLocked()
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// expire fails the identified command if it is still in flight and
// unacknowledged, then advances the queue.
func (c *Channel) expire(id string) {
	c.mu.Lock()
	current := c.inFlight
	if current == nil || current.id != id || current.acked {
		c.mu.Unlock()
		return
	}
	c.logger.Warn("shell command timed out",
		"commandId", id,
		"timeout", c.timeout)
	c.finishLocked()
	c.mu.Unlock()

	current.handler.OnFailed(ErrCommandTimeout)
}

func stringField(env *contracts.Envelope, key string) string {
	v, ok := env.Payload[key]
	if !ok {
		return ""
	}
	s, _ := v.Str()
	return s
}

func exitCode(env *contracts.Envelope) (int64, bool) {
	v, ok := env.Payload["exitCode"]
	if !ok {
		return 0, false
	}
	return v.Int64()
}
