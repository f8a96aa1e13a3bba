// Package textutil provides text helpers shared by the chunker,
// retriever and prompt composer.
package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CountTokens returns the number of whitespace-delimited words in s.
// The retrieval budget and chunk sizing are both expressed in this unit.
func CountTokens(s string) int {
	return len(strings.Fields(s))
}

// TruncateRunes truncates s to at most maxLen Unicode characters.
func TruncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// SplitParagraphs splits text on blank lines. Leading and trailing
// whitespace is trimmed from each paragraph and empty paragraphs are
// dropped.
func SplitParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range strings.Split(normalizeNewlines(text), "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// SplitSentences splits a paragraph into sentences on terminal
// punctuation (. ! ?) followed by whitespace. The terminator stays
// attached to its sentence, so joining the result with single spaces
// reconstructs the paragraph up to whitespace.
func SplitSentences(paragraph string) []string {
	var sentences []string
	var sb strings.Builder

	runes := []rune(paragraph)
	for i := 0; i < len(runes); i++ {
		sb.WriteRune(runes[i])
		if isTerminator(runes[i]) {
			// Consume any run of terminators (e.g. "?!" or "...").
			for i+1 < len(runes) && isTerminator(runes[i+1]) {
				i++
				sb.WriteRune(runes[i])
			}
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(sb.String()); s != "" {
					sentences = append(sentences, s)
				}
				sb.Reset()
			}
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// TailWords returns the last n whitespace-delimited words of s joined
// by single spaces. If s has n words or fewer the whole normalized
// string is returned.
func TailWords(s string, n int) string {
	if n <= 0 {
		return ""
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[len(words)-n:], " ")
}

// SplitWords splits s into whitespace-delimited words.
func SplitWords(s string) []string {
	return strings.Fields(s)
}

// IsBlank reports whether s contains only whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
