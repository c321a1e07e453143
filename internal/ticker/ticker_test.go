package ticker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain lowercase", "tpay", "TPAY"},
		{"trailing at stripped", "TPAY@", "TPAY"},
		{"alias applied", "TRAY", "TPAY"},
		{"alias with trailing at", "tray@", "TPAY"},
		{"whitespace trimmed", "  TPAY  ", "TPAY"},
		{"bare at is missing", "@", ""},
		{"empty is missing", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("tpay", "TPAY@"))
	assert.True(t, Equal("TRAY", "tpay"))
	assert.False(t, Equal("TPAY", "TMOS"))
}
