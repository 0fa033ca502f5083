package messages

import "github.com/nettlesoup/tftpd/internal/protocol"

// ReadRequest asks the server to send a file.
type ReadRequest struct {
	Filename string
	Mode     protocol.TransferMode
}

// WriteRequest asks the server to accept a file.
type WriteRequest struct {
	Filename string
	Mode     protocol.TransferMode
}

func NewReadRequest(filename string, mode protocol.TransferMode) (*ReadRequest, error) {
	if err := checkFilename(filename); err != nil {
		return nil, err
	}
	return &ReadRequest{Filename: filename, Mode: mode}, nil
}

func NewWriteRequest(filename string, mode protocol.TransferMode) (*WriteRequest, error) {
	if err := checkFilename(filename); err != nil {
		return nil, err
	}
	return &WriteRequest{Filename: filename, Mode: mode}, nil
}

func (m *ReadRequest) Type() protocol.MessageType { return protocol.TypeReadRequest }

func (m *WriteRequest) Type() protocol.MessageType { return protocol.TypeWriteRequest }

func (m *ReadRequest) Marshal() []byte {
	return marshalRequest(protocol.TypeReadRequest, m.Filename, m.Mode)
}

func (m *WriteRequest) Marshal() []byte {
	return marshalRequest(protocol.TypeWriteRequest, m.Filename, m.Mode)
}

func (m *ReadRequest) Clone() Message {
	c := *m
	return &c
}

func (m *WriteRequest) Clone() Message {
	c := *m
	return &c
}

func UnmarshalReadRequest(data []byte) (*ReadRequest, error) {
	filename, mode, err := unmarshalRequest(data, protocol.TypeReadRequest)
	if err != nil {
		return nil, err
	}
	return &ReadRequest{Filename: filename, Mode: mode}, nil
}

func UnmarshalWriteRequest(data []byte) (*WriteRequest, error) {
	filename, mode, err := unmarshalRequest(data, protocol.TypeWriteRequest)
	if err != nil {
		return nil, err
	}
	return &WriteRequest{Filename: filename, Mode: mode}, nil
}

// checkFilename enforces at construction time what Marshal cannot express:
// the filename must be non-empty and carry no embedded null byte.
func checkFilename(filename string) error {
	if filename == "" {
		return protocol.ErrNoFilename
	}
	if containsNull(filename) {
		return protocol.ErrInvalidFilename
	}
	return nil
}

// Wire form: [opcode:2][filename][0x00][mode word], with no terminator after
// the mode word.
func marshalRequest(t protocol.MessageType, filename string, mode protocol.TransferMode) []byte {
	word := mode.String()

	buf := make([]byte, 0, OpcodeSize+len(filename)+1+len(word))
	buf = be.AppendUint16(buf, uint16(t.Opcode()))
	buf = append(buf, filename...)
	buf = append(buf, 0x00)
	buf = append(buf, word...)
	return buf
}

func unmarshalRequest(data []byte, want protocol.MessageType) (string, protocol.TransferMode, error) {
	if len(data) < OpcodeSize {
		return "", 0, protocol.ErrTooShort
	}

	if protocol.TypeFromOpcode(readOpcode(data)) != want {
		return "", 0, protocol.ErrInvalidOpcode
	}

	filename, rest, found := cutString(data[OpcodeSize:])
	if !found {
		return "", 0, protocol.ErrInvalidFilename
	}
	if filename == "" {
		return "", 0, protocol.ErrNoFilename
	}

	if len(rest) == 0 {
		return "", 0, protocol.ErrNoMode
	}

	// The mode word runs to the end of the datagram; a trailing null from a
	// sender that terminates both strings is tolerated.
	word, _, _ := cutString(rest)
	mode, ok := protocol.ModeFromString(word)
	if !ok {
		return "", 0, protocol.ErrInvalidMode
	}

	return filename, mode, nil
}
