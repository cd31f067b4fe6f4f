package idgen

import (
	"strings"
	"testing"
)

func TestGenerateSecureID(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		length     int
		wantPrefix string
	}{
		{name: "generate conversation ID", prefix: "conv", length: 16, wantPrefix: "conv_"},
		{name: "generate message ID", prefix: "msg", length: 16, wantPrefix: "msg_"},
		{name: "generate session ID", prefix: "sess", length: 16, wantPrefix: "sess_"},
		{name: "generate short ID", prefix: "test", length: 8, wantPrefix: "test_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateSecureID(tt.prefix, tt.length)
			if err != nil {
				t.Fatalf("GenerateSecureID() error = %v", err)
			}
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("GenerateSecureID() = %v, want prefix %v", got, tt.wantPrefix)
			}
			expectedLen := len(tt.prefix) + 1 + tt.length
			if len(got) != expectedLen {
				t.Errorf("GenerateSecureID() length = %v, want %v", len(got), expectedLen)
			}
			suffix := got[len(tt.prefix)+1:]
			for _, char := range suffix {
				if !((char >= 'a' && char <= 'z') || (char >= '0' && char <= '9')) {
					t.Errorf("GenerateSecureID() contains invalid character: %c", char)
				}
			}
		})
	}
}

func TestGenerateSecureID_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := NewMessageID()
		if err != nil {
			t.Fatalf("NewMessageID() error = %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %s", id)
		}
		seen[id] = true
	}
}

func TestValidateIDFormat(t *testing.T) {
	tests := []struct {
		name           string
		id             string
		expectedPrefix string
		want           bool
	}{
		{"valid conversation id", "conv_0123456789abcdef", "conv", true},
		{"wrong prefix", "msg_0123456789abcdef", "conv", false},
		{"missing suffix", "conv_", "conv", false},
		{"uppercase suffix", "conv_ABCDEF", "conv", false},
		{"dash in suffix", "conv_abc-def", "conv", false},
		{"no separator", "convabcdef", "conv", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateIDFormat(tt.id, tt.expectedPrefix); got != tt.want {
				t.Errorf("ValidateIDFormat(%q, %q) = %v, want %v", tt.id, tt.expectedPrefix, got, tt.want)
			}
		})
	}
}

func TestValidateIDFormat_GeneratedIDs(t *testing.T) {
	for _, gen := range []struct {
		prefix string
		fn     func() (string, error)
	}{
		{PrefixConversation, NewConversationID},
		{PrefixMessage, NewMessageID},
		{PrefixSession, NewSessionID},
	} {
		id, err := gen.fn()
		if err != nil {
			t.Fatalf("generate %s: %v", gen.prefix, err)
		}
		if !ValidateIDFormat(id, gen.prefix) {
			t.Errorf("generated id %q failed validation", id)
		}
	}
}
