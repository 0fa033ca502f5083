package messages

import "github.com/nettlesoup/tftpd/internal/protocol"

// AckSize is the exact wire length of an Acknowledgement.
const AckSize = OpcodeSize + 2

// Acknowledgement confirms receipt of the Data block with the same number.
// Block 0 acknowledges a write request.
type Acknowledgement struct {
	Block uint16
}

func NewAcknowledgement(block uint16) *Acknowledgement {
	return &Acknowledgement{Block: block}
}

func (m *Acknowledgement) Type() protocol.MessageType { return protocol.TypeAcknowledgement }

func (m *Acknowledgement) Marshal() []byte {
	buf := make([]byte, AckSize)
	be.PutUint16(buf[0:2], uint16(protocol.TypeAcknowledgement.Opcode()))
	be.PutUint16(buf[2:4], m.Block)
	return buf
}

func (m *Acknowledgement) Clone() Message {
	c := *m
	return &c
}

func UnmarshalAcknowledgement(data []byte) (*Acknowledgement, error) {
	if len(data) < AckSize {
		return nil, protocol.ErrTooShort
	}
	if len(data) > AckSize {
		return nil, protocol.ErrTooLong
	}

	if protocol.TypeFromOpcode(readOpcode(data)) != protocol.TypeAcknowledgement {
		return nil, protocol.ErrInvalidOpcode
	}

	return &Acknowledgement{Block: be.Uint16(data[2:4])}, nil
}
