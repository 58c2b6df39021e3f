package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already e164", "+14155551234", "+14155551234"},
		{"nanp without country code", "4155551234", "+14155551234"},
		{"nanp with leading one", "14155551234", "+14155551234"},
		{"formatted", "(415) 555-1234", "+14155551234"},
		{"international", "+442071838750", "+442071838750"},
		{"withheld placeholder", "+10000000000", ""},
		{"empty", "", ""},
		{"garbage", "call me maybe", ""},
		{"short without plus", "12345", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestValidateReasons(t *testing.T) {
	assert.Equal(t, "placeholder", Validate("+10000000000").Reason)
	assert.Equal(t, "empty", Validate("   ").Reason)
	assert.Equal(t, "missing_country_code", Validate("5551234").Reason)
	assert.Equal(t, "not_a_number", Validate("+1-800-FLOWERS").Reason)

	res := Validate("415.555.1234")
	assert.True(t, res.Valid)
	assert.Equal(t, "+14155551234", res.Normalized)
}
