package net

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orbitsim/server/internal/net/packet"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrRateLimited is the kick cause for a peer that sends too fast.
var ErrRateLimited = errors.New("inbound message rate exceeded")

// SessionOptions sizes queues and limits for every session.
type SessionOptions struct {
	InQueueSize      int
	OutQueueSize     int
	PacketsPerSecond float64 // 0 = unlimited
	PacketBurst      int
	WriteTimeout     time.Duration
}

// Session represents a single peer connection. Network I/O runs in
// dedicated goroutines; game state is accessed only from the game loop.
type Session struct {
	ID   uint64
	conn FrameConn

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // game loop reads messages from here
	OutQueue chan []byte // writer goroutine reads from here; nil = close after write

	RemoteAddr string
	ClientID   uint64 // set by the handshake, game loop only

	outBuf  [][]byte // buffered messages, flushed by the output system (game loop only)
	closing bool     // close queued behind outBuf (game loop only)

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	causeMu sync.Mutex
	cause   error

	limiter      *rate.Limiter // readLoop goroutine only
	writeTimeout time.Duration

	log *zap.Logger
}

func NewSession(conn FrameConn, id uint64, opts SessionOptions, log *zap.Logger) *Session {
	limit := rate.Inf
	if opts.PacketsPerSecond > 0 {
		limit = rate.Limit(opts.PacketsPerSecond)
	}
	burst := opts.PacketBurst
	if burst < 1 {
		burst = 1
	}
	wt := opts.WriteTimeout
	if wt <= 0 {
		wt = 10 * time.Second
	}
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, opts.InQueueSize),
		OutQueue:     make(chan []byte, opts.OutQueueSize),
		RemoteAddr:   conn.RemoteAddr(),
		closeCh:      make(chan struct{}),
		limiter:      rate.NewLimiter(limit, burst),
		writeTimeout: wt,
		log:          log.With(zap.Uint64("session", id)),
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

func (s *Session) Log() *zap.Logger { return s.log }

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a message. It is not written until FlushOutput is called
// by the output system once per tick.
// Called only from the game loop goroutine.
func (s *Session) Send(data []byte) {
	if s.closed.Load() || s.closing {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// CloseAfterFlush closes the session once everything buffered so far has
// been written. cause is reported by Cause.
func (s *Session) CloseAfterFlush(cause error) {
	if s.closing {
		return
	}
	s.setCause(cause)
	s.closing = true
	s.SetState(packet.StateDisconnecting)
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop goroutine.
// Non-blocking: if OutQueue is full, the session is disconnected (backpressure).
func (s *Session) FlushOutput() {
	if s.closed.Load() {
		s.outBuf = s.outBuf[:0]
		return
	}
	if s.closing {
		s.outBuf = append(s.outBuf, nil)
	}
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("輸出佇列已滿，斷開慢速連線")
			s.Kick(errors.New("output queue full"))
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Kick disconnects the peer for a protocol error.
func (s *Session) Kick(cause error) {
	s.setCause(cause)
	s.Close()
}

// Close shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.closeCh
}

// Cause is nil when the peer left on its own and non-nil when this side
// closed it (protocol error, rate limit, reject).
func (s *Session) Cause() error {
	s.causeMu.Lock()
	defer s.causeMu.Unlock()
	return s.cause
}

func (s *Session) setCause(err error) {
	if err == nil {
		return
	}
	s.causeMu.Lock()
	if s.cause == nil {
		s.cause = err
	}
	s.causeMu.Unlock()
}

// readLoop runs in its own goroutine. It reads frames from the connection
// and pushes them onto InQueue for the game loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		payload, err := s.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrBadFrame) {
				s.setCause(err)
			}
			if !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}

		if !s.limiter.Allow() {
			s.log.Warn("封包速率超限，斷開連線")
			s.setCause(ErrRateLimited)
			return
		}

		// Block until InQueue has space or session closes; the reader is
		// per-session so only this peer stalls.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop runs in its own goroutine. It writes queued messages in order.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if data == nil {
				return
			}
			if !s.writeOne(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOne(data []byte) bool {
	s.log.Debug("TX",
		zap.String("op", fmt.Sprintf("0x%02X(%d)", data[0], data[0])),
		zap.Int("len", len(data)),
	)
	if err := s.conn.WriteFrame(data, time.Now().Add(s.writeTimeout)); err != nil {
		if !s.closed.Load() {
			s.log.Debug("寫入錯誤", zap.Error(err))
		}
		return false
	}
	return true
}
