package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBillingDuration_Valid(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"30", 30 * time.Second},
		{"0", 0},
		{"10:20", 10*time.Minute + 20*time.Second},
		{"1:10:20", time.Hour + 10*time.Minute + 20*time.Second},
		{"30 00:00:00", 30 * 24 * time.Hour},
		{"1 10:20:30.5", 34*time.Hour + 20*time.Minute + 30*time.Second + 500*time.Millisecond},
		{"0:00:01.000001", time.Second + time.Microsecond},
		{"7 00:00:00.000000", 7 * 24 * time.Hour},
		{"3 42", 3*24*time.Hour + 42*time.Second},
		{"1,5", time.Second + 500*time.Millisecond},
		// More than six fractional digits: truncated to microseconds.
		{"1.1234567", time.Second + 123456*time.Microsecond},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBillingDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBillingDuration_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"abc",
		"-30",
		"1:2:3:4",
		"1  00:00:00", // double space
		"1.",
		"30s",
		"1:",
		":30",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := ParseBillingDuration(in)
			require.Error(t, err)

			var appErr *AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, ErrCodeValidationInvalidDuration, appErr.Code)
		})
	}
}
