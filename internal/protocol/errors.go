package protocol

import "errors"

// Parse errors returned by message decoding. Encoding never fails; each of
// these is a terminal classification of why a datagram could not become a
// message.
var (
	ErrTooShort      = errors.New("buffer too short")
	ErrTooLong       = errors.New("buffer too long")
	ErrInvalidOpcode = errors.New("invalid opcode")

	// Request errors
	ErrNoFilename      = errors.New("empty filename")
	ErrInvalidFilename = errors.New("unterminated filename")
	ErrNoMode          = errors.New("missing transfer mode")
	ErrInvalidMode     = errors.New("invalid transfer mode")

	// Error message errors. ErrInvalidErrorCode is reserved for a future
	// restriction of the code field to the RFC-assigned range; no decode
	// path produces it today.
	ErrInvalidErrorCode    = errors.New("invalid error code")
	ErrNoErrorMessage      = errors.New("empty error message")
	ErrInvalidErrorMessage = errors.New("unterminated error message")
)
