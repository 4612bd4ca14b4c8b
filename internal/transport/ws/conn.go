// Package ws provides the websocket transport edge: an HTTP acceptor that
// upgrades connections and a Conn wrapper with serialized writes and a
// ping/pong liveness flag.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps one websocket session. Writes are serialized behind a mutex
// because gorilla/websocket allows at most one concurrent writer; reads
// stay on the single session goroutine.
type Conn struct {
	ws *websocket.Conn

	writeMu      sync.Mutex
	writeTimeout time.Duration

	aliveMu sync.Mutex
	alive   bool

	closeOnce sync.Once
}

// defaultWriteTimeout bounds writes when the config carries no write
// timeout. Control frames in particular always need a deadline.
const defaultWriteTimeout = 10 * time.Second

// NewConn wraps an upgraded websocket connection.
//
// Precondition: ws must be a live upgraded connection.
// Postcondition: The pong handler is installed; the liveness flag starts
// true.
func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	c := &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		alive:        true,
	}
	ws.SetPongHandler(func(string) error {
		c.SetAlive(true)
		return nil
	})
	return c
}

// Push sends one text message. Safe for concurrent use.
func (c *Conn) Push(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a control-frame probe. The peer's pong flips the liveness
// flag back to true.
func (c *Conn) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// ReadMessage blocks for the next inbound payload. Any inbound frame
// counts as liveness evidence.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err == nil {
		c.SetAlive(true)
	}
	return data, err
}

// Alive reports whether the peer has answered since the last probe.
func (c *Conn) Alive() bool {
	c.aliveMu.Lock()
	defer c.aliveMu.Unlock()
	return c.alive
}

// SetAlive sets the liveness flag. The monitor resets it to false before
// each probe.
func (c *Conn) SetAlive(alive bool) {
	c.aliveMu.Lock()
	c.alive = alive
	c.aliveMu.Unlock()
}

// RemoteAddr describes the peer for logging.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Close terminates the session. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.ws.Close()
	})
	return err
}
