package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		required bool
		wantErr  bool
	}{
		{"simple", "ethereum", true, false},
		{"dotted", "com.wallet.solana", true, false},
		{"dashes", "tron-mainnet_2", true, false},
		{"empty optional", "", false, false},
		{"empty required", "", true, true},
		{"traversal", "../etc", true, true},
		{"dot only", ".", true, true},
		{"double dot", "..", true, true},
		{"slash", "eth/main", true, true},
		{"null byte", "eth\x00", true, true},
		{"too long", strings.Repeat("a", MaxIDLength+1), true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id, "blockchainId", tt.required)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
