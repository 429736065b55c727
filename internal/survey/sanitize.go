package survey

import (
	"regexp"
	"strings"
	"unicode"
)

var markupPattern = regexp.MustCompile(`(?s)<[^>]*>`)

// SanitizeAnswer turns raw respondent input into the stored value for a question type.
// Long text keeps its line breaks; every other type becomes a single trimmed line.
func SanitizeAnswer(questionType QuestionType, raw string) string {
	if questionType.multiLine() {
		return sanitizeMultiLine(raw)
	}
	return sanitizeSingleLine(raw)
}

func sanitizeSingleLine(raw string) string {
	return strings.Join(strings.Fields(stripMarkup(raw)), " ")
}

func sanitizeMultiLine(raw string) string {
	return strings.TrimSpace(stripMarkup(raw))
}

func stripMarkup(raw string) string {
	cleaned := strings.ToValidUTF8(raw, "")
	cleaned = strings.ReplaceAll(cleaned, "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\r", "\n")
	cleaned = markupPattern.ReplaceAllString(cleaned, "")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)
}
