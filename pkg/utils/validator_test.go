package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("ops.lead@stores.example.com"))
	assert.Error(t, ValidateEmail("ops.lead"))
	assert.Error(t, ValidateEmail("a@b"))
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"manager_review", true},
		{"node-1", true},
		{"_start", true},
		{"", false},
		{"1st", false},
		{"with space", false},
		{"dot.ted", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateIdentifier(tt.id)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "line one\nline\ttwo", SanitizeString("line one\nline\ttwo\x00\x07"))
}
