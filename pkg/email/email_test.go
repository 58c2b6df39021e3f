package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		valid      bool
		normalized string
		suggestion string
	}{
		{"plain", "dana@example.com", true, "dana@example.com", ""},
		{"uppercase trimmed", "  Dana@Example.COM ", true, "dana@example.com", ""},
		{"known domain", "dana@gmail.com", true, "dana@gmail.com", ""},
		{"typo domain suggests fix", "dana@gmial.com", true, "dana@gmial.com", "dana@gmail.com"},
		{"missing at", "dana.example.com", false, "", ""},
		{"missing tld", "dana@example", false, "", ""},
		{"empty", "", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.in)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Equal(t, tt.normalized, res.Normalized)
			assert.Equal(t, tt.suggestion, res.Suggestion)
		})
	}
}

func TestDeriveNameFromEmail(t *testing.T) {
	first, last := DeriveNameFromEmail("jane.doe@example.com")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)

	first, last = DeriveNameFromEmail("solo@example.com")
	assert.Equal(t, "Solo", first)
	assert.Equal(t, "User", last)

	first, last = DeriveNameFromEmail("")
	assert.Equal(t, "User", first)
	assert.Equal(t, "User", last)
}
