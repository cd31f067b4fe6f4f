// Package redact keeps personal data out of logs and storage keys.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

var (
	emailPattern      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern      = regexp.MustCompile(`\b\d{3}[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	creditCardPattern = regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)
	ipv4Pattern       = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	ipv6Pattern       = regexp.MustCompile(`\b(?:[A-Fa-f0-9]{1,4}:){7}[A-Fa-f0-9]{1,4}\b`)
)

// Redactor hashes identifiers with a deployment salt and masks PII in text.
type Redactor struct {
	salt string
}

func New(salt string) *Redactor {
	return &Redactor{salt: salt}
}

// Key returns a stable, salted digest of value, suitable for storage keys.
func (r *Redactor) Key(value string) string {
	return r.hash(value, 16)
}

// Text masks emails, phone numbers, card numbers and IP addresses in s.
// Card numbers are matched before phone numbers so their digits are not split.
func (r *Redactor) Text(s string) string {
	s = emailPattern.ReplaceAllStringFunc(s, func(m string) string {
		return fmt.Sprintf("[EMAIL:%s]", r.hash(m, 8))
	})
	s = creditCardPattern.ReplaceAllString(s, "[CC:REDACTED]")
	s = phonePattern.ReplaceAllStringFunc(s, func(m string) string {
		return fmt.Sprintf("[PHONE:%s]", r.hash(m, 8))
	})
	s = ipv6Pattern.ReplaceAllStringFunc(s, func(m string) string {
		return fmt.Sprintf("[IP:%s]", r.hash(m, 8))
	})
	return ipv4Pattern.ReplaceAllStringFunc(s, func(m string) string {
		return fmt.Sprintf("[IP:%s]", r.hash(m, 8))
	})
}

func (r *Redactor) hash(data string, n int) string {
	sum := sha256.Sum256([]byte(data + r.salt))
	return hex.EncodeToString(sum[:])[:n]
}

var unsalted = New("")

// Text masks PII in s without a salt.
func Text(s string) string {
	return unsalted.Text(s)
}
