package net

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Dial connects to a server over "tcp" or "ws" and starts the session.
// For "ws", addr is host:port and WSPath is appended.
func Dial(ctx context.Context, transport, addr string, opts SessionOptions, log *zap.Logger) (*Session, error) {
	var fc FrameConn
	switch transport {
	case "tcp":
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial tcp %s: %w", addr, err)
		}
		fc = NewTCPConn(c)
	case "ws":
		u := url.URL{Scheme: "ws", Host: addr, Path: WSPath}
		c, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", u.String(), err)
		}
		fc = NewWSConn(c)
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}

	sess := NewSession(fc, 1, opts, log)
	sess.Start()
	return sess, nil
}
