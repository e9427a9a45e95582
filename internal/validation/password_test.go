package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		password     string
		confirmation string
		wantErr      bool
	}{
		{"Valid", "secret123", "secret123", false},
		{"Exactly Min Length", "abcdefgh", "abcdefgh", false},
		{"Exactly Max Length", strings.Repeat("b", 64), strings.Repeat("b", 64), false},
		{"Too Short", "short1", "short1", true},
		{"Too Long", strings.Repeat("b", 65), strings.Repeat("b", 65), true},
		{"Mismatch", "secret123", "secret124", true},
		{"Unicode Counts Runes", "ÅÅÅÅÅÅÅÅ", "ÅÅÅÅÅÅÅÅ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password, tt.confirmation)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
