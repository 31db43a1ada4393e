package shell

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymobile/sessionwire-go/contracts"
)

// captureTransport records every envelope handed to Send.
type captureTransport struct {
	mu      sync.Mutex
	sent    []*contracts.Envelope
	sentAt  []time.Time
	sendErr error
}

func (t *captureTransport) Send(env *contracts.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, env)
	t.sentAt = append(t.sentAt, time.Now())
	return nil
}

func (t *captureTransport) ofType(mt contracts.MessageType) []*contracts.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*contracts.Envelope
	for _, env := range t.sent {
		if env.Type == mt {
			out = append(out, env)
		}
	}
	return out
}

func (t *captureTransport) sentTimes(mt contracts.MessageType) []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []time.Time
	for i, env := range t.sent {
		if env.Type == mt {
			out = append(out, t.sentAt[i])
		}
	}
	return out
}

// captureHandler records per-command callbacks.
type captureHandler struct {
	mu     sync.Mutex
	chunks []string

	completed chan int64
	failed    chan error
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{
		completed: make(chan int64, 1),
		failed:    make(chan error, 1),
	}
}

func (h *captureHandler) OnOutput(chunk string) {
	h.mu.Lock()
	h.chunks = append(h.chunks, chunk)
	h.mu.Unlock()
}

func (h *captureHandler) OnCompleted(exitCode int64) { h.completed <- exitCode }
func (h *captureHandler) OnFailed(err error)         { h.failed <- err }

func (h *captureHandler) output() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.chunks...)
}

func (h *captureHandler) waitFailed(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.failed:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command failure")
		return nil
	}
}

func (h *captureHandler) waitCompleted(t *testing.T) int64 {
	t.Helper()
	select {
	case code := <-h.completed:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command completion")
		return 0
	}
}

// outputFrame builds a shell-output frame correlated with a command id.
func outputFrame(id, chunk string) *contracts.Envelope {
	return contracts.NewSessionEnvelope(contracts.TypeShellOutput, id,
		map[string]contracts.Value{"output": contracts.String(chunk)})
}

func exitFrame(id string, code int64) *contracts.Envelope {
	return contracts.NewSessionEnvelope(contracts.TypeShellExit, id,
		map[string]contracts.Value{"exitCode": contracts.Integer(code)})
}

func TestChannelExecute(t *testing.T) {
	t.Run("dispatches immediately and streams output", func(t *testing.T) {
		transport := &captureTransport{}
		ch := NewChannel(transport)
		handler := newCaptureHandler()

		id, err := ch.Execute("pwd", handler)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		var cmds []*contracts.Envelope
		require.Eventually(t, func() bool {
			cmds = transport.ofType(contracts.TypeShellCommand)
			return len(cmds) == 1
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, id, cmds[0].SessionID)
		got, ok := cmds[0].Payload["command"].Str()
		require.True(t, ok)
		assert.Equal(t, "pwd", got)

		ch.OnMessage(outputFrame(id, "/home/"))
		ch.OnMessage(outputFrame(id, "user\n"))
		ch.OnMessage(exitFrame(id, 0))

		assert.Equal(t, int64(0), handler.waitCompleted(t))
		assert.Equal(t, []string{"/home/", "user\n"}, handler.output())
		assert.False(t, ch.InFlight())
	})

	t.Run("rejects an empty command", func(t *testing.T) {
		ch := NewChannel(&captureTransport{})
		_, err := ch.Execute("", newCaptureHandler())
		assert.ErrorIs(t, err, ErrEmptyCommand)
	})

	t.Run("one command in flight at a time", func(t *testing.T) {
		transport := &captureTransport{}
		ch := NewChannel(transport)
		h1, h2 := newCaptureHandler(), newCaptureHandler()

		id1, err := ch.Execute("pwd", h1)
		require.NoError(t, err)
		_, err = ch.Execute("ls", h2)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return len(transport.ofType(contracts.TypeShellCommand)) == 1
		}, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, 1, ch.Backlog())

		ch.OnMessage(exitFrame(id1, 0))
		handler1Code := h1.waitCompleted(t)
		assert.Equal(t, int64(0), handler1Code)

		var cmds []*contracts.Envelope
		require.Eventually(t, func() bool {
			cmds = transport.ofType(contracts.TypeShellCommand)
			return len(cmds) == 2
		}, 2*time.Second, 5*time.Millisecond)
		got, ok := cmds[1].Payload["command"].Str()
		require.True(t, ok)
		assert.Equal(t, "ls", got)
	})

	t.Run("remote error fails the command", func(t *testing.T) {
		transport := &captureTransport{}
		ch := NewChannel(transport)
		handler := newCaptureHandler()

		id, err := ch.Execute("cat missing", handler)
		require.NoError(t, err)

		ch.OnMessage(contracts.NewSessionEnvelope(contracts.TypeShellError, id,
			map[string]contracts.Value{"message": contracts.String("no such file")}))

		failure := handler.waitFailed(t)
		var cmdErr *CommandError
		require.ErrorAs(t, failure, &cmdErr)
		assert.Equal(t, id, cmdErr.CommandID)
		assert.Contains(t, cmdErr.Error(), "no such file")
	})

	t.Run("dispatch failure advances the queue", func(t *testing.T) {
		transport := &captureTransport{sendErr: errors.New("transport down")}
		ch := NewChannel(transport)
		handler := newCaptureHandler()

		_, err := ch.Execute("pwd", handler)
		require.NoError(t, err)

		assert.Error(t, handler.waitFailed(t))
		assert.False(t, ch.InFlight())
	})
}

func TestChannelTimeout(t *testing.T) {
	t.Run("unacknowledged command times out, next starts only then", func(t *testing.T) {
		transport := &captureTransport{}
		timeout := 60 * time.Millisecond
		ch := NewChannel(transport, WithCommandTimeout(timeout))
		h1, h2 := newCaptureHandler(), newCaptureHandler()

		start := time.Now()
		_, err := ch.Execute("pwd", h1)
		require.NoError(t, err)
		_, err = ch.Execute("ls", h2)
		require.NoError(t, err)

		// First command is never acknowledged.
		assert.ErrorIs(t, h1.waitFailed(t), ErrCommandTimeout)

		var dispatches []time.Time
		require.Eventually(t, func() bool {
			dispatches = transport.sentTimes(contracts.TypeShellCommand)
			return len(dispatches) == 2
		}, 2*time.Second, 5*time.Millisecond)

		// The second command must not start before the first one's window
		// elapsed.
		assert.GreaterOrEqual(t, dispatches[1].Sub(start), timeout)

		cmds := transport.ofType(contracts.TypeShellCommand)
		ch.OnMessage(exitFrame(cmds[1].SessionID, 0))
		assert.Equal(t, int64(0), h2.waitCompleted(t))
	})

	t.Run("streaming output disarms the timeout", func(t *testing.T) {
		transport := &captureTransport{}
		ch := NewChannel(transport, WithCommandTimeout(30*time.Millisecond))
		handler := newCaptureHandler()

		id, err := ch.Execute("tail -f log", handler)
		require.NoError(t, err)

		ch.OnMessage(outputFrame(id, "line 1\n"))
		time.Sleep(90 * time.Millisecond)

		select {
		case err := <-handler.failed:
			t.Fatalf("acknowledged command timed out: %v", err)
		default:
		}
		assert.True(t, ch.InFlight())

		ch.OnMessage(exitFrame(id, 0))
		assert.Equal(t, int64(0), handler.waitCompleted(t))
	})
}

func TestChannelOutOfBand(t *testing.T) {
	t.Run("resize bypasses the command queue", func(t *testing.T) {
		transport := &captureTransport{}
		ch := NewChannel(transport, WithCommandTimeout(time.Hour))

		_, err := ch.Execute("sleep 100", newCaptureHandler())
		require.NoError(t, err)
		require.NoError(t, ch.Resize(120, 40))

		resizes := transport.ofType(contracts.TypeShellResize)
		require.Len(t, resizes, 1)
		cols, ok := resizes[0].Payload["cols"].Int64()
		require.True(t, ok)
		assert.Equal(t, int64(120), cols)
	})

	t.Run("init announces terminal dimensions", func(t *testing.T) {
		transport := &captureTransport{}
		ch := NewChannel(transport)

		require.NoError(t, ch.Init(80, 24))
		inits := transport.ofType(contracts.TypeShellInit)
		require.Len(t, inits, 1)
		rows, ok := inits[0].Payload["rows"].Int64()
		require.True(t, ok)
		assert.Equal(t, int64(24), rows)
	})

	t.Run("frames for other commands are ignored", func(t *testing.T) {
		transport := &captureTransport{}
		ch := NewChannel(transport)
		handler := newCaptureHandler()

		_, err := ch.Execute("pwd", handler)
		require.NoError(t, err)

		ch.OnMessage(outputFrame("someone-else", "noise"))
		ch.OnMessage(exitFrame("someone-else", 1))

		assert.Empty(t, handler.output())
		assert.True(t, ch.InFlight())
	})

	t.Run("non-shell frames are ignored", func(t *testing.T) {
		ch := NewChannel(&captureTransport{})
		ch.OnMessage(contracts.NewEnvelope(contracts.TypePong, nil))
		assert.False(t, ch.InFlight())
	})
}

// blockingTransport records sends like captureTransport but parks every
// Send from blockFrom onwards until the gate is closed.
type blockingTransport struct {
	mu        sync.Mutex
	sent      []*contracts.Envelope
	blockFrom int
	gate      chan struct{}
}

func (t *blockingTransport) Send(env *contracts.Envelope) error {
	t.mu.Lock()
	idx := len(t.sent)
	t.sent = append(t.sent, env)
	t.mu.Unlock()

	if idx >= t.blockFrom {
		<-t.gate
	}
	return nil
}

func (t *blockingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func (t *blockingTransport) at(i int) *contracts.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent[i]
}

func TestChannelObserverReentrancy(t *testing.T) {
	t.Run("advancing the queue never blocks the frame callback", func(t *testing.T) {
		transport := &blockingTransport{blockFrom: 1, gate: make(chan struct{})}
		ch := NewChannel(transport)
		h1, h2 := newCaptureHandler(), newCaptureHandler()

		id1, err := ch.Execute("pwd", h1)
		require.NoError(t, err)
		_, err = ch.Execute("ls", h2)
		require.NoError(t, err)

		require.Eventually(t, func() bool { return transport.count() == 1 },
			2*time.Second, 5*time.Millisecond)

		// Completing the first command dispatches the second, whose Send is
		// parked on the gate. The callback that triggered the dispatch must
		// still return promptly.
		returned := make(chan struct{})
		go func() {
			ch.OnMessage(exitFrame(id1, 0))
			close(returned)
		}()

		select {
		case <-returned:
		case <-time.After(time.Second):
			t.Fatal("frame callback blocked on the next command's send")
		}
		assert.Equal(t, int64(0), h1.waitCompleted(t))

		close(transport.gate)
		require.Eventually(t, func() bool { return transport.count() == 2 },
			2*time.Second, 5*time.Millisecond)

		id2 := transport.at(1).SessionID
		ch.OnMessage(exitFrame(id2, 0))
		assert.Equal(t, int64(0), h2.waitCompleted(t))
	})
}
