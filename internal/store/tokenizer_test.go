package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		minLen int
		want   []string
	}{
		{"words and punctuation", "Hello, World! It's 2024.", 2, []string{"hello", "world", "it", "2024"}},
		{"drops short tokens", "a bc d", 2, []string{"bc"}},
		{"unicode letters", "Größe über alles", 2, []string{"größe", "über", "alles"}},
		{"empty", "  \t\n", 2, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input, tt.minLen))
		})
	}
}

func TestFilterStopWords(t *testing.T) {
	stop := BuildStopWordMap([]string{"The", "of"})

	got := FilterStopWords([]string{"the", "state", "of", "play"}, stop)

	assert.Equal(t, []string{"state", "play"}, got)
}

func TestUniqueTokens(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, uniqueTokens([]string{"a", "b", "a"}))
}
