package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want RGB
	}{
		{"255,0,0", RGB{R: 255}},
		{" 12, 34 ,56 ", RGB{R: 12, G: 34, B: 56}},
		{"#00ff80", RGB{G: 255, B: 128}},
		{"#FFFFFF", RGB{R: 255, G: 255, B: 255}},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "red", "256,0,0", "1,2", "#fff", "#gggggg", "1,2,-3"} {
		_, err := ParseColor(bad)
		assert.Error(t, err, bad)
	}
}

func TestRGBHex(t *testing.T) {
	assert.Equal(t, "#0a0b0c", RGB{R: 10, G: 11, B: 12}.Hex())
}
