package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
		ok       bool
	}{
		{"plain integer", "125", "125", true},
		{"dot decimal", "125.50", "125.5", true},
		{"comma decimal", "125,50", "125.5", true},
		{"single-digit comma decimal", "99,5", "99.5", true},
		{"comma as thousands separator", "1,250", "1250", true},
		{"thousands and dot decimal", "1,250.75", "1250.75", true},
		{"currency suffix", "1250 руб.", "1250", true},
		{"currency symbol", "₽ 990", "990", true},
		{"space thousands separator", "12 500", "12500", true},
		{"nbsp thousands separator", "12 500,00", "12500", true},
		{"negative", "-15,5", "-15.5", true},
		{"dot thousands with comma decimal is rejected", "1.250,50", "", false},
		{"dot thousands without decimal stays dotted", "1.250", "1.25", true},
		{"not a number", "договорная", "", false},
		{"empty", "", "", false},
		{"only currency", "руб.", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractPrice(tc.in)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.expected, got.String())
			}
		})
	}
}
