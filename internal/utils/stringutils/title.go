package stringutils

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	urlPattern          = regexp.MustCompile(`(?i)(https?://|ftp://|www\.)[^\s]+`)
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]*)\]\([^)]+\)`)
	emailPattern        = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	titlePrefixPattern  = regexp.MustCompile(`(?i)^\s*title\s*:\s*`)
	multiSpacePattern   = regexp.MustCompile(`\s+`)
)

// placeholderTitles are values a summarizer returns when it has nothing useful to say.
var placeholderTitles = map[string]struct{}{
	"untitled":              {},
	"untitled conversation": {},
	"new conversation":      {},
	"new chat":              {},
	"conversation":          {},
	"chat":                  {},
	"title":                 {},
	"none":                  {},
	"n/a":                   {},
}

// SanitizeTitleContent removes URLs, markup and stray symbols from model or user text.
func SanitizeTitleContent(content string) string {
	content = titlePrefixPattern.ReplaceAllString(content, "")
	content = urlPattern.ReplaceAllString(content, "")
	content = markdownLinkPattern.ReplaceAllString(content, "$1")
	content = emailPattern.ReplaceAllString(content, "")

	// keep letters, digits and basic punctuation only
	var result strings.Builder
	for _, r := range content {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) ||
			r == '.' || r == ',' || r == '!' || r == '?' || r == '-' || r == '\'' {
			result.WriteRune(r)
		}
	}
	content = multiSpacePattern.ReplaceAllString(result.String(), " ")

	content = strings.TrimSpace(content)
	content = strings.TrimRight(content, " .,!?-'")
	content = strings.TrimLeft(content, " .,!?-'")
	return content
}

// TruncateTitle shortens title to at most maxLen runes, preferring a word boundary.
func TruncateTitle(title string, maxLen int) string {
	runes := []rune(title)
	if len(runes) <= maxLen {
		return title
	}

	const ellipsis = "..."
	contentLimit := maxLen - len(ellipsis)
	if contentLimit < 0 {
		contentLimit = 0
	}

	truncated := string(runes[:contentLimit])
	minLen := len(truncated) / 2

	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > minLen {
		truncated = strings.TrimRight(truncated[:lastSpace], " ")
	}

	return truncated + ellipsis
}

// GenerateTitle creates a clean, truncated title from content
func GenerateTitle(content string, maxLen int) string {
	sanitized := SanitizeTitleContent(content)
	if sanitized == "" {
		return ""
	}
	return TruncateTitle(sanitized, maxLen)
}

// IsPlaceholderTitle reports whether title carries no information about the conversation.
func IsPlaceholderTitle(title string) bool {
	normalized := strings.ToLower(strings.TrimSpace(title))
	if normalized == "" {
		return true
	}
	_, ok := placeholderTitles[normalized]
	return ok
}
