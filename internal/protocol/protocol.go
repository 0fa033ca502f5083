package protocol

import "strings"

// Opcode is the 2-byte big-endian tag at the start of every TFTP message.
type Opcode uint16

// TFTP message kind
type MessageType uint16

const (
	TypeUnknown         MessageType = 0
	TypeReadRequest     MessageType = 1
	TypeWriteRequest    MessageType = 2
	TypeData            MessageType = 3
	TypeAcknowledgement MessageType = 4
	TypeError           MessageType = 5
)

// Opcode returns the wire opcode for a message type.
func (t MessageType) Opcode() Opcode {
	return Opcode(t)
}

// TypeFromOpcode maps a wire opcode back to a message type. Any value outside
// the five assigned opcodes maps to TypeUnknown.
func TypeFromOpcode(op Opcode) MessageType {
	switch op {
	case 1:
		return TypeReadRequest
	case 2:
		return TypeWriteRequest
	case 3:
		return TypeData
	case 4:
		return TypeAcknowledgement
	case 5:
		return TypeError
	default:
		return TypeUnknown
	}
}

func (t MessageType) String() string {
	switch t {
	case TypeReadRequest:
		return "RRQ"
	case TypeWriteRequest:
		return "WRQ"
	case TypeData:
		return "DATA"
	case TypeAcknowledgement:
		return "ACK"
	case TypeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Transfer mode carried by read and write requests
type TransferMode uint8

const (
	ModeNetAscii TransferMode = iota
	ModeOctet
	ModeMail
)

// String returns the lowercase wire form of the mode.
func (m TransferMode) String() string {
	switch m {
	case ModeNetAscii:
		return "netascii"
	case ModeOctet:
		return "octet"
	case ModeMail:
		return "mail"
	default:
		return "unknown"
	}
}

// ModeFromString parses a wire mode word. Matching is case-insensitive, so
// "octet", "OCTET" and "Octet" all parse; any word outside the three defined
// modes is rejected.
func ModeFromString(s string) (TransferMode, bool) {
	switch strings.ToLower(s) {
	case "netascii":
		return ModeNetAscii, true
	case "octet":
		return ModeOctet, true
	case "mail":
		return ModeMail, true
	default:
		return 0, false
	}
}
