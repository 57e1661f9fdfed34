package net

import (
	"errors"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSPath is where the websocket listener upgrades connections.
const WSPath = "/ws"

// Server accepts TCP and (optionally) WebSocket connections and creates
// Sessions. New sessions reach the game loop through a channel.
type Server struct {
	listener   net.Listener
	wsListener net.Listener
	httpSrv    *http.Server
	upgrader   websocket.Upgrader

	nextID   atomic.Uint64
	newConns chan *Session
	opts     SessionOptions
	log      *zap.Logger
	closeCh  chan struct{}
}

// NewServer listens on bindAddr (TCP) and, when wsBindAddr is not empty,
// on wsBindAddr for websocket peers.
func NewServer(bindAddr, wsBindAddr string, opts SessionOptions, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: ln,
		newConns: make(chan *Session, 64),
		opts:     opts,
		log:      log,
		closeCh:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if wsBindAddr != "" {
		wsl, err := net.Listen("tcp", wsBindAddr)
		if err != nil {
			ln.Close()
			return nil, err
		}
		mux := http.NewServeMux()
		mux.HandleFunc(WSPath, s.handleWS)
		s.wsListener = wsl
		s.httpSrv = &http.Server{Handler: mux}
	}
	return s, nil
}

// AcceptLoop runs in its own goroutine. It accepts TCP connections and,
// if configured, serves the websocket endpoint.
func (s *Server) AcceptLoop() {
	if s.httpSrv != nil {
		go func() {
			if err := s.httpSrv.Serve(s.wsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("websocket listener stopped", zap.Error(err))
			}
		}()
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			s.log.Error("連線接受失敗", zap.Error(err))
			continue
		}
		s.admit(NewTCPConn(conn), "tcp")
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	s.admit(NewWSConn(c), "ws")
}

func (s *Server) admit(fc FrameConn, transport string) {
	id := s.nextID.Add(1)
	sess := NewSession(fc, id, s.opts, s.log)
	sess.Start()

	s.log.Info("peer connected",
		zap.Uint64("session", id),
		zap.String("addr", sess.RemoteAddr),
		zap.String("transport", transport),
	)

	select {
	case s.newConns <- sess:
	default:
		s.log.Warn("新連線佇列已滿，丟棄連線")
		sess.Close()
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
}

// Addr returns the TCP listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// WSAddr returns the websocket listener's address, or nil.
func (s *Server) WSAddr() net.Addr {
	if s.wsListener == nil {
		return nil
	}
	return s.wsListener.Addr()
}
