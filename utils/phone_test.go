package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw, region, want string
	}{
		{"(201) 555-0123", "US", "+12015550123"},
		{"201.555.0123", "US", "+12015550123"},
		{"+1 201 555 0123", "GB", "+12015550123"},
		{"0121 234 5678", "GB", "+441212345678"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizePhone(tt.raw, tt.region)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "12", "not a phone"} {
		_, err := NormalizePhone(bad, "US")
		assert.Error(t, err, bad)
	}
}
