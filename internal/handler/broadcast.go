package handler

import (
	"github.com/orbitsim/server/internal/net"
	"github.com/orbitsim/server/internal/net/packet"
	"github.com/orbitsim/server/internal/protocol"
	"go.uber.org/zap"
)

// send buffers one message for a session.
func send(sess *net.Session, m protocol.Message, log *zap.Logger) {
	data, err := protocol.Encode(m)
	if err != nil {
		log.Error("encode failed", zap.String("msg", protocol.OpcodeName(m.Opcode())), zap.Error(err))
		return
	}
	sess.Send(data)
}

// broadcast 將 m 送給所有已加入的 session，session ID 為 except 者除外
// （0 = 不排除）。封包只編碼一次。
func broadcast(store *net.SessionStore, m protocol.Message, except uint64, log *zap.Logger) {
	data, err := protocol.Encode(m)
	if err != nil {
		log.Error("encode failed", zap.String("msg", protocol.OpcodeName(m.Opcode())), zap.Error(err))
		return
	}
	store.ForEach(func(sess *net.Session) {
		if sess.ID == except || sess.State() != packet.StateJoined {
			return
		}
		sess.Send(data)
	})
}

// reject 拒絕握手，回覆送出後關閉連線。
func reject(sess *net.Session, reason protocol.RejectReason, cause error, log *zap.Logger) {
	sess.Log().Warn("handshake rejected", zap.Stringer("reason", reason), zap.Error(cause))
	send(sess, protocol.Reject{Reason: reason, Detail: cause.Error()}, log)
	sess.CloseAfterFlush(cause)
}
