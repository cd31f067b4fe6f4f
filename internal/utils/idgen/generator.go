package idgen

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	charset = "0123456789abcdefghijklmnopqrstuvwxyz"

	// DefaultLength is the random suffix length used for conversation and message ids.
	DefaultLength = 16

	PrefixConversation = "conv"
	PrefixMessage      = "msg"
	PrefixSession      = "sess"
)

// GenerateSecureID generates a cryptographically secure ID with the given prefix and length.
// Uses only alphanumeric characters (0-9, a-z).
func GenerateSecureID(prefix string, length int) (string, error) {
	bytes := make([]byte, length*2)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := make([]byte, length)
	for i := 0; i < length; i++ {
		encoded[i] = charset[bytes[i]%byte(len(charset))]
	}

	return fmt.Sprintf("%s_%s", prefix, string(encoded)), nil
}

// NewConversationID returns a fresh conversation id.
func NewConversationID() (string, error) {
	return GenerateSecureID(PrefixConversation, DefaultLength)
}

// NewMessageID returns a fresh message id.
func NewMessageID() (string, error) {
	return GenerateSecureID(PrefixMessage, DefaultLength)
}

// NewSessionID returns a fresh session id.
func NewSessionID() (string, error) {
	return GenerateSecureID(PrefixSession, DefaultLength)
}

// ValidateIDFormat reports whether id is prefix_ followed by lowercase alphanumerics.
func ValidateIDFormat(id, expectedPrefix string) bool {
	suffix, ok := strings.CutPrefix(id, expectedPrefix+"_")
	if !ok || suffix == "" {
		return false
	}
	for _, r := range suffix {
		if !strings.ContainsRune(charset, r) {
			return false
		}
	}
	return true
}
