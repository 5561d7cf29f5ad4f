package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyConnection(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected bool
	}{
		{
			name:     "explicit negative",
			text:     "After reviewing the material, no reasonable connection found.",
			expected: false,
		},
		{
			name:     "positive indicator",
			text:     "The survey data supports the hypothesis about interactive methods.",
			expected: true,
		},
		{
			name:     "contradiction still counts as a connection",
			text:     "The transcript contradicts this hypothesis directly.",
			expected: true,
		},
		{
			name:     "evidence phrase",
			text:     "Evidence suggests a moderate relationship between the variables.",
			expected: true,
		},
		{
			name:     "citation marker",
			text:     "Participants described similar experiences [1].",
			expected: true,
		},
		{
			name:     "negative wins over positive",
			text:     "Although the phrasing supports a link, there is no reasonable connection found in the data.",
			expected: false,
		},
		{
			name:     "neither indicator defaults to false",
			text:     "The material discusses unrelated administrative topics.",
			expected: false,
		},
		{
			name:     "case insensitive",
			text:     "THE DATA SUPPORTS THIS CLAIM.",
			expected: true,
		},
		{
			name:     "empty text",
			text:     "",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyConnection(tt.text))
		})
	}
}
