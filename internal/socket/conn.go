// internal/socket/conn.go
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Send after the connection has been closed.
var ErrClosed = errors.New("socket connection closed")

// Frame is the envelope for every message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn is a websocket-backed presence.Connection. gorilla connections
// support one concurrent writer, so writes are serialized by writeMu.
type Conn struct {
	handle       string
	ws           *websocket.Conn
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(handle string, ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		handle:       handle,
		ws:           ws,
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
}

func (c *Conn) Handle() string { return c.handle }

// Send writes one {"event","data"} text frame.
func (c *Conn) Send(ctx context.Context, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	msg, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event, err)
	}

	select {
	case <-c.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

func (c *Conn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, c.deadline(context.Background()))
}

func (c *Conn) deadline(ctx context.Context) time.Time {
	var d time.Time
	if c.writeTimeout > 0 {
		d = time.Now().Add(c.writeTimeout)
	}
	if ctxDeadline, ok := ctx.Deadline(); ok && (d.IsZero() || ctxDeadline.Before(d)) {
		d = ctxDeadline
	}
	return d
}

// Close shuts the underlying websocket once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
