package textutil_test

import (
	"strings"
	"testing"

	"github.com/docuchat/docuchat/internal/pkg/textutil"
	"github.com/stretchr/testify/assert"
)

func TestCountTokens(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{
			name:     "simple sentence",
			input:    "the capital of France",
			expected: 4,
		},
		{
			name:     "collapsed whitespace",
			input:    "  a \t b \n c  ",
			expected: 3,
		},
		{
			name:     "empty",
			input:    "",
			expected: 0,
		},
		{
			name:     "whitespace only",
			input:    " \n\t ",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textutil.CountTokens(tt.input))
		})
	}
}

func TestSplitParagraphs(t *testing.T) {
	text := "First paragraph.\n\nSecond one\nstill second.\r\n\r\nThird.\n\n\n"
	got := textutil.SplitParagraphs(text)
	assert.Equal(t, []string{
		"First paragraph.",
		"Second one\nstill second.",
		"Third.",
	}, got)

	assert.Nil(t, textutil.SplitParagraphs("   \n\n  "))
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "three sentences",
			input:    "Paris is the capital. It is large! Is it old?",
			expected: []string{"Paris is the capital.", "It is large!", "Is it old?"},
		},
		{
			name:     "terminator run stays attached",
			input:    "Really?! Yes... indeed.",
			expected: []string{"Really?!", "Yes... indeed."},
		},
		{
			name:     "no terminator",
			input:    "a fragment with no ending",
			expected: []string{"a fragment with no ending"},
		},
		{
			name:     "abbreviation mid word is not a boundary",
			input:    "v1.2 was released. It works.",
			expected: []string{"v1.2 was released.", "It works."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textutil.SplitSentences(tt.input))
		})
	}
}

func TestTailWords(t *testing.T) {
	assert.Equal(t, "d e", textutil.TailWords("a b c d e", 2))
	assert.Equal(t, "a b", textutil.TailWords("  a   b ", 5))
	assert.Equal(t, "", textutil.TailWords("a b c", 0))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héllo", textutil.TruncateRunes("héllo world", 5))
	assert.Equal(t, "short", textutil.TruncateRunes("short", 10))
	assert.Equal(t, "", textutil.TruncateRunes("anything", 0))
}

func TestIsBlank(t *testing.T) {
	assert.True(t, textutil.IsBlank(" \t\n"))
	assert.False(t, textutil.IsBlank(" x "))
}

func TestSplitSentencesReconstructs(t *testing.T) {
	input := "One two. Three four! Five?"
	joined := strings.Join(textutil.SplitSentences(input), " ")
	assert.Equal(t, input, joined)
}
