package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultSnippetLength is the number of characters kept in a generated snippet
const DefaultSnippetLength = 200

// TextProcessor provides utilities for processing message text
type TextProcessor struct {
	logger        *zap.Logger
	snippetLength int
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger, snippetLength int) *TextProcessor {
	if snippetLength <= 0 {
		snippetLength = DefaultSnippetLength
	}
	return &TextProcessor{
		logger:        logger,
		snippetLength: snippetLength,
	}
}

// SanitizeUTF8 drops invalid UTF-8 bytes from text
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	sanitized := strings.ToValidUTF8(text, "")

	tp.logger.Debug("Text sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(sanitized)))

	return sanitized
}

// Snippet builds a short single-line preview of a message body
func (tp *TextProcessor) Snippet(body string) string {
	collapsed := strings.Join(strings.FieldsFunc(tp.SanitizeUTF8(body), unicode.IsSpace), " ")
	return TruncateRunes(collapsed, tp.snippetLength)
}

// TruncateRunes cuts text to at most max characters without splitting a character
func TruncateRunes(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	n := 0
	for i := range text {
		if n == max {
			return text[:i]
		}
		n++
	}
	return text
}
