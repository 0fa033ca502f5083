package session

import (
	"fmt"
	"testing"

	"github.com/nettlesoup/tftpd/internal/protocol"
	"github.com/nettlesoup/tftpd/internal/protocol/messages"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	sess := New(1234, 69)

	require.Equal(t, TID(1234), sess.LocalTID())
	require.Equal(t, TID(69), sess.RemoteTID())
	require.Equal(t, uint16(0), sess.Seq())
	require.Nil(t, sess.LastMsg())
}

// Zero is a legal TID and must not be special-cased.
func TestNewSessionZeroTIDs(t *testing.T) {
	sess := New(0, 0)

	require.Equal(t, TID(0), sess.LocalTID())
	require.Equal(t, TID(0), sess.RemoteTID())
}

func TestRecordSequenceMonotonicity(t *testing.T) {
	sess := New(2000, 3000)

	const n = 25
	var last messages.Message
	for i := 1; i <= n; i++ {
		msg, err := messages.NewError(messages.CodeNotDefined, fmt.Sprintf("message %d", i))
		require.NoError(t, err)

		sess.Record(msg)
		require.Equal(t, uint16(i), sess.Seq())
		last = msg
	}

	require.Equal(t, uint16(n), sess.Seq())
	require.Equal(t, last, sess.LastMsg())
}

func TestRecordOverwritesLastMessage(t *testing.T) {
	sess := New(1, 2)

	data, err := messages.NewData(1, []byte{0xAB})
	require.NoError(t, err)
	sess.Record(data)
	sess.Record(messages.NewAcknowledgement(1))

	require.Equal(t, uint16(2), sess.Seq())
	require.Equal(t, messages.NewAcknowledgement(1), sess.LastMsg())
}

func TestRecordDoesNotTouchTIDs(t *testing.T) {
	sess := New(10, 20)
	sess.Record(messages.NewAcknowledgement(0))

	require.Equal(t, TID(10), sess.LocalTID())
	require.Equal(t, TID(20), sess.RemoteTID())
}

// Mutating the message returned by LastMsg must not change the stored copy,
// and mutating the recorded message after Record must not either.
func TestLastMsgIsolation(t *testing.T) {
	sess := New(1, 2)

	data, err := messages.NewData(1, []byte{1, 2, 3})
	require.NoError(t, err)
	sess.Record(data)

	// caller keeps mutating its own value after recording
	data.Payload[0] = 0xFF
	data.Block = 99

	got := sess.LastMsg().(*messages.Data)
	require.Equal(t, uint16(1), got.Block)
	require.Equal(t, []byte{1, 2, 3}, got.Payload)

	// mutating the returned copy leaves the stored message alone
	got.Payload[1] = 0xEE
	again := sess.LastMsg().(*messages.Data)
	require.Equal(t, []byte{1, 2, 3}, again.Payload)
}

func TestRecordRequestMessage(t *testing.T) {
	sess := New(5, 6)

	req, err := messages.NewReadRequest("file.txt", protocol.ModeOctet)
	require.NoError(t, err)
	sess.Record(req)

	require.Equal(t, uint16(1), sess.Seq())
	got := sess.LastMsg().(*messages.ReadRequest)
	require.Equal(t, "file.txt", got.Filename)
	require.Equal(t, protocol.ModeOctet, got.Mode)
}
