package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIfNil(t *testing.T) {
	assert.Equal(t, 5, DefaultIfNil(nil, 5))
	assert.Equal(t, 7, DefaultIfNil(Ptr(7), 5))
	assert.Equal(t, "fallback", DefaultIfNil[string](nil, "fallback"))
}

func TestNewULID(t *testing.T) {
	a, err := NewULID()
	require.NoError(t, err)
	b, err := NewULID()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestDisplayB(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  string
	}{
		{0, "0 B"},
		{999, "999 B"},
		{1000, "1.00 KB"},
		{1536, "1.54 KB"},
		{2_500_000, "2.50 MB"},
		{3_000_000_000, "3.00 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayB(tt.bytes))
		})
	}
}
