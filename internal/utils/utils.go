package utils

import (
	"crypto/rand"
	"fmt"

	"github.com/oklog/ulid/v2"
)

func Ptr[T any](v T) *T {
	return &v
}

func DefaultIfNil[T any](ptr *T, defaultVal T) T {
	if ptr == nil {
		return defaultVal
	}
	return *ptr
}

var entropy = rand.Reader

// NewULID generates a transfer correlation ID for log events.
func NewULID() (ulid.ULID, error) {
	id, err := ulid.New(ulid.Now(), entropy)
	if err != nil {
		return ulid.ULID{}, err
	}
	return id, nil
}

const (
	kb = 1000
	mb = 1000 * 1000
	gb = 1000 * 1000 * 1000
)

// DisplayB renders a byte count for log output.
func DisplayB(bytes uint64) string {
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.2f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.2f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
