package messages

import (
	"github.com/nettlesoup/tftpd/internal/protocol"
)

// ErrorCode is the numeric error class carried by an Error message.
type ErrorCode uint16

// Error codes assigned by RFC 1350. The decoder does not restrict the field
// to this range; see protocol.ErrInvalidErrorCode.
const (
	CodeNotDefined       ErrorCode = 0
	CodeFileNotFound     ErrorCode = 1
	CodeAccessViolation  ErrorCode = 2
	CodeDiskFull         ErrorCode = 3
	CodeIllegalOperation ErrorCode = 4
	CodeUnknownTID       ErrorCode = 5
	CodeFileExists       ErrorCode = 6
	CodeNoSuchUser       ErrorCode = 7
)

const errorHeaderSize = OpcodeSize + 2

// Error reports a terminal failure to the peer; a transfer ends when one is
// sent or received.
type Error struct {
	Code    ErrorCode
	Message string
}

func NewError(code ErrorCode, message string) (*Error, error) {
	if message == "" {
		return nil, protocol.ErrNoErrorMessage
	}
	if containsNull(message) {
		return nil, protocol.ErrInvalidErrorMessage
	}
	return &Error{Code: code, Message: message}, nil
}

func (m *Error) Type() protocol.MessageType { return protocol.TypeError }

// Wire form: [opcode:2][code:2][message][0x00].
func (m *Error) Marshal() []byte {
	buf := make([]byte, 0, errorHeaderSize+len(m.Message)+1)
	buf = be.AppendUint16(buf, uint16(protocol.TypeError.Opcode()))
	buf = be.AppendUint16(buf, uint16(m.Code))
	buf = append(buf, m.Message...)
	buf = append(buf, 0x00)
	return buf
}

func (m *Error) Clone() Message {
	c := *m
	return &c
}

func UnmarshalError(data []byte) (*Error, error) {
	if len(data) < errorHeaderSize+1 {
		return nil, protocol.ErrTooShort
	}

	if protocol.TypeFromOpcode(readOpcode(data)) != protocol.TypeError {
		return nil, protocol.ErrInvalidOpcode
	}

	code := ErrorCode(be.Uint16(data[2:4]))

	message, _, found := cutString(data[errorHeaderSize:])
	if !found {
		return nil, protocol.ErrInvalidErrorMessage
	}
	if message == "" {
		return nil, protocol.ErrNoErrorMessage
	}

	return &Error{Code: code, Message: message}, nil
}
