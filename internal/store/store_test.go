package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeText(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{name: "plain text untouched", in: "hello there", expected: "hello there"},
		{name: "apostrophe", in: "it's fine", expected: "it&#x27;s fine"},
		{name: "double quote", in: `say "hi"`, expected: "say &quot;hi&quot;"},
		{name: "both", in: `it's "both"`, expected: "it&#x27;s &quot;both&quot;"},
		{name: "empty", in: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EscapeText(tt.in))
		})
	}
}
