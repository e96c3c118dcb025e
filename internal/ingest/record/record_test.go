package record

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short stays intact", "Gallimard", 500, "Gallimard"},
		{"exact length stays intact", "abc", 3, "abc"},
		{"ascii cut at limit", "abcdef", 4, "abcd"},
		{"multibyte rune not split", "Éditions Gallimard", 1, ""},
		{"cut lands inside rune", "aé", 2, "a"},
		{"kanji boundary", "講談社", 4, "講"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.max)
		})
	}
}

func TestClean_PublisherTruncatedOnRuneBoundary(t *testing.T) {
	// 499 ASCII bytes followed by a 2-byte rune straddling the 500-byte cap.
	long := strings.Repeat("x", 499) + "é"
	raw := &Raw{
		Title:     "Dune",
		Language:  "fr",
		Publisher: &long,
	}

	require.True(t, raw.Clean())
	require.NotNil(t, raw.Publisher)
	assert.Equal(t, strings.Repeat("x", 499), *raw.Publisher)
	assert.True(t, utf8.ValidString(*raw.Publisher))
}
