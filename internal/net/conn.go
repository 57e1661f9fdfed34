package net

import (
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// FrameConn carries whole messages. TCP frames them with a length header,
// WebSocket uses one binary message per frame.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte, deadline time.Time) error
	Close() error
	RemoteAddr() string
}

type tcpConn struct {
	c net.Conn
}

// NewTCPConn wraps a stream connection with length-prefixed framing.
func NewTCPConn(c net.Conn) FrameConn {
	return &tcpConn{c: c}
}

func (t *tcpConn) ReadFrame() ([]byte, error) {
	return ReadFrame(t.c)
}

func (t *tcpConn) WriteFrame(data []byte, deadline time.Time) error {
	if err := t.c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return WriteFrame(t.c, data)
}

func (t *tcpConn) Close() error       { return t.c.Close() }
func (t *tcpConn) RemoteAddr() string { return t.c.RemoteAddr().String() }

type wsConn struct {
	c *websocket.Conn
}

// NewWSConn wraps a websocket connection. Only binary messages are accepted.
func NewWSConn(c *websocket.Conn) FrameConn {
	c.SetReadLimit(MaxPayload)
	return &wsConn{c: c}
}

func (w *wsConn) ReadFrame() ([]byte, error) {
	typ, data, err := w.c.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read ws message: %w", err)
	}
	if typ != websocket.BinaryMessage {
		return nil, fmt.Errorf("%w: ws message type %d", ErrBadFrame, typ)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty ws message", ErrBadFrame)
	}
	return data, nil
}

func (w *wsConn) WriteFrame(data []byte, deadline time.Time) error {
	if err := w.c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := w.c.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("write ws message: %w", err)
	}
	return nil
}

func (w *wsConn) Close() error       { return w.c.Close() }
func (w *wsConn) RemoteAddr() string { return w.c.RemoteAddr().String() }
