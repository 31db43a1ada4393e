// Package websocket provides the WebSocket realization of the transport
// layer, built on gorilla/websocket.
package websocket

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaymobile/sessionwire-go/transport"
)

const (
	// maxFrameSize bounds a single inbound frame (1 MiB).
	maxFrameSize = 1024 * 1024

	defaultHandshakeTimeout = 30 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// Dialer dials WebSocket endpoints. The auth token is attached as a query
// parameter; the server treats it as opaque.
type Dialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// NewDialer creates a Dialer with default timeouts.
func NewDialer() *Dialer {
	return &Dialer{
		HandshakeTimeout: defaultHandshakeTimeout,
		WriteTimeout:     defaultWriteTimeout,
	}
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, endpoint, authToken string) (transport.Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("websocket: invalid endpoint: %w", err)
	}
	if authToken != "" {
		q := u.Query()
		q.Set("token", authToken)
		u.RawQuery = q.Encode()
	}

	wsDialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	conn, resp, err := wsDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket: dial %s failed (status %d): %w", u.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket: dial %s failed: %w", u.Host, err)
	}

	conn.SetReadLimit(maxFrameSize)

	// Answer transport-level pings so intermediaries keep the socket open.
	// Application-level liveness is the session layer's ping envelope.
	conn.SetPingHandler(func(appData string) error {
		deadline := time.Now().Add(d.WriteTimeout)
		return conn.WriteControl(websocket.PongMessage, []byte(appData), deadline)
	})

	return &wsConn{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

// wsConn adapts *websocket.Conn to transport.Conn. gorilla/websocket allows
// only one concurrent writer, so writes are serialized with a mutex.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Read implements transport.Conn. Text frames feed the envelope codec;
// binary frames are flagged raw.
func (c *wsConn) Read() (data []byte, raw bool, err error) {
	msgType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, false, err
	}
	return data, msgType == websocket.BinaryMessage, nil
}

// Write implements transport.Conn.
func (c *wsConn) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close implements transport.Conn.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		deadline := time.Now().Add(c.writeTimeout)
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
