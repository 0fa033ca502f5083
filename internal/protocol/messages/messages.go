package messages

import (
	"encoding/binary"
	"strings"

	"github.com/nettlesoup/tftpd/internal/protocol"
)

const (
	// OpcodeSize is the length of the opcode field on every message.
	OpcodeSize = 2

	// MaxPayloadSize is the largest Data payload RFC 1350 allows.
	MaxPayloadSize = 512

	// MaxMessageSize is the largest well-formed datagram: a full Data block
	// plus its 4-byte header.
	MaxMessageSize = DataHeaderSize + MaxPayloadSize
)

var be = binary.BigEndian

// Message is one of the five TFTP message kinds. Marshal is total: a value
// built through the package constructors always produces a well-formed
// datagram.
type Message interface {
	Type() protocol.MessageType
	Marshal() []byte
	Clone() Message
}

// Unmarshal decodes one complete datagram, dispatching on the opcode. It is
// strict: any buffer that is not the exact wire form of some message yields
// one of the protocol parse errors.
func Unmarshal(data []byte) (Message, error) {
	if len(data) < OpcodeSize {
		return nil, protocol.ErrTooShort
	}

	switch protocol.TypeFromOpcode(readOpcode(data)) {
	case protocol.TypeReadRequest:
		return UnmarshalReadRequest(data)
	case protocol.TypeWriteRequest:
		return UnmarshalWriteRequest(data)
	case protocol.TypeData:
		return UnmarshalData(data)
	case protocol.TypeAcknowledgement:
		return UnmarshalAcknowledgement(data)
	case protocol.TypeError:
		return UnmarshalError(data)
	default:
		return nil, protocol.ErrInvalidOpcode
	}
}

func readOpcode(data []byte) protocol.Opcode {
	return protocol.Opcode(be.Uint16(data[0:OpcodeSize]))
}

// cutString is the one null-scan primitive shared by every string field
// (filename, mode, error message). It walks the buffer checking the bound
// before each index, and returns the bytes before the first null, the
// remainder after it, and whether a null was found at all. When the scan
// runs off the end, s holds the entire input and rest is nil.
func cutString(data []byte) (s string, rest []byte, found bool) {
	for i := 0; i < len(data); i++ {
		if data[i] == 0x00 {
			return string(data[:i]), data[i+1:], true
		}
	}
	return string(data), nil, false
}

func containsNull(s string) bool {
	return strings.IndexByte(s, 0x00) >= 0
}
