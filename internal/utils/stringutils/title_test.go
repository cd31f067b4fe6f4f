package stringutils

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTitleContent(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text", "Planning a trip to Kyoto", "Planning a trip to Kyoto"},
		{"strips urls", "Read https://example.com/x about Go", "Read about Go"},
		{"keeps link text", "See [the docs](https://go.dev) now", "See the docs now"},
		{"strips quotes and markdown", "\"**Sourdough Starter Tips**\"", "Sourdough Starter Tips"},
		{"strips title prefix", "Title: Budget Review", "Budget Review"},
		{"collapses whitespace", "a \n\n  b\tc", "a b c"},
		{"only symbols", "### ***", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeTitleContent(tt.input))
		})
	}
}

func TestTruncateTitle(t *testing.T) {
	assert.Equal(t, "short", TruncateTitle("short", 60))

	long := "How do I configure a reverse proxy in front of several services running locally"
	got := TruncateTitle(long, 40)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 40)
	assert.Equal(t, "How do I configure a reverse proxy...", got)

	multibyte := "日本語のタイトルがとても長い場合の切り詰め処理を確認する"
	got = TruncateTitle(multibyte, 10)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, utf8.RuneCountInString(got), 10)
}

func TestGenerateTitle(t *testing.T) {
	assert.Equal(t, "", GenerateTitle("https://only.example.com", 60))
	assert.Equal(t, "Rust vs Go for CLIs", GenerateTitle("  Rust vs Go for CLIs!! ", 60))
}

func TestIsPlaceholderTitle(t *testing.T) {
	for _, title := range []string{"", "  ", "Untitled", "untitled conversation", "New Conversation", "N/A"} {
		assert.True(t, IsPlaceholderTitle(title), title)
	}
	for _, title := range []string{"Trip Planning", "Untitled Film Ideas"} {
		assert.False(t, IsPlaceholderTitle(title), title)
	}
}
