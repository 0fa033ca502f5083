package session

import "github.com/nettlesoup/tftpd/internal/protocol/messages"

// TID is a transfer identifier: one side's ephemeral port for an exchange.
type TID uint16

// Session tracks a single exchange between a local and remote TID pair: how
// many messages have been observed and which one came last. It holds no
// retransmission or completion policy and no locking; the owner of the
// exchange serializes access.
type Session struct {
	localTID  TID
	remoteTID TID
	seq       uint16
	lastMsg   messages.Message
}

// New starts a session at sequence 0 with no recorded message. Zero is a
// legal TID on either side.
func New(local, remote TID) *Session {
	return &Session{
		localTID:  local,
		remoteTID: remote,
	}
}

func (s *Session) LocalTID() TID {
	return s.localTID
}

func (s *Session) RemoteTID() TID {
	return s.remoteTID
}

// Seq reports how many messages have been recorded on this exchange. It
// counts messages, not block numbers.
func (s *Session) Seq() uint16 {
	return s.seq
}

// LastMsg returns an independent copy of the most recently recorded message,
// or nil when nothing has been recorded yet.
func (s *Session) LastMsg() messages.Message {
	if s.lastMsg == nil {
		return nil
	}
	return s.lastMsg.Clone()
}

// Record stores msg as the latest message and bumps the sequence by one. The
// message is cloned on the way in, so the session is isolated from the
// caller in both directions.
func (s *Session) Record(msg messages.Message) {
	s.lastMsg = msg.Clone()
	s.seq++
}
