package messages

import "github.com/nettlesoup/tftpd/internal/protocol"

// DataHeaderSize is the opcode plus block number prefix of a Data message.
const DataHeaderSize = OpcodeSize + 2

// Data carries one block of file content. A payload shorter than
// MaxPayloadSize marks the final block of a transfer.
type Data struct {
	Block   uint16
	Payload []byte
}

// NewData copies the payload so later mutation of the caller's slice cannot
// change the message.
func NewData(block uint16, payload []byte) (*Data, error) {
	if len(payload) > MaxPayloadSize {
		return nil, protocol.ErrTooLong
	}
	return &Data{Block: block, Payload: append([]byte(nil), payload...)}, nil
}

func (m *Data) Type() protocol.MessageType { return protocol.TypeData }

func (m *Data) Marshal() []byte {
	buf := make([]byte, DataHeaderSize+len(m.Payload))
	be.PutUint16(buf[0:2], uint16(protocol.TypeData.Opcode()))
	be.PutUint16(buf[2:4], m.Block)
	copy(buf[DataHeaderSize:], m.Payload)
	return buf
}

func (m *Data) Clone() Message {
	c := *m
	c.Payload = append([]byte(nil), m.Payload...)
	return &c
}

func UnmarshalData(data []byte) (*Data, error) {
	if len(data) < DataHeaderSize+1 {
		return nil, protocol.ErrTooShort
	}
	if len(data) > MaxMessageSize {
		return nil, protocol.ErrTooLong
	}

	if protocol.TypeFromOpcode(readOpcode(data)) != protocol.TypeData {
		return nil, protocol.ErrInvalidOpcode
	}

	var msg Data
	msg.Block = be.Uint16(data[2:4])
	msg.Payload = append([]byte(nil), data[DataHeaderSize:]...)

	return &msg, nil
}
