package turn

import (
	"context"
	"errors"
	"strings"
)

// Kind is the user-facing category of a provider failure.
type Kind string

const (
	KindTimeout Kind = "timeout"
	KindLimit   Kind = "limit"
	KindNetwork Kind = "network"
	KindAuth    Kind = "auth"
	KindGeneric Kind = "generic"
)

// Classification is the outcome of classifying a provider error.
type Classification struct {
	Kind    Kind
	Message string
}

// ClassificationRule maps matching errors to a user message. Match receives
// the lower-cased error text.
type ClassificationRule struct {
	Kind    Kind
	Match   func(err error, text string) bool
	Message string
}

const genericMessage = "Sorry, I couldn't generate a response. Please try again."

// Classifier turns provider errors into user-facing messages. Rules are
// evaluated in order; the first match wins.
type Classifier struct {
	rules []ClassificationRule
}

// NewClassifier creates a classifier with the default rules.
func NewClassifier() *Classifier {
	c := &Classifier{}
	c.addDefaultRules()
	return c
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func (c *Classifier) addDefaultRules() {
	c.rules = append(c.rules,
		ClassificationRule{
			Kind: KindTimeout,
			Match: func(err error, text string) bool {
				return errors.Is(err, context.DeadlineExceeded) || containsAny(text, "timeout", "timed out", "deadline exceeded")
			},
			Message: "The response took too long. Please try again.",
		},
		ClassificationRule{
			Kind: KindLimit,
			Match: func(_ error, text string) bool {
				return containsAny(text, "rate limit", "rate_limit", "too many requests", "429", "quota", "limit exceeded")
			},
			Message: "You've hit a usage limit. Please wait a moment and try again.",
		},
		ClassificationRule{
			Kind: KindNetwork,
			Match: func(_ error, text string) bool {
				return containsAny(text, "network", "connection refused", "connection reset", "no such host", "unexpected eof", "broken pipe", "fetch failed", "dial tcp")
			},
			Message: "Network error. Please check your connection and try again.",
		},
		ClassificationRule{
			Kind: KindAuth,
			Match: func(_ error, text string) bool {
				return containsAny(text, "401", "403", "unauthorized", "forbidden", "api key", "authentication")
			},
			Message: "Authentication with the AI service failed. Please sign in again or try later.",
		},
	)
}

// AddRule appends a rule after the existing ones.
func (c *Classifier) AddRule(rule ClassificationRule) {
	c.rules = append(c.rules, rule)
}

// Classify returns the first matching classification, or the generic one.
func (c *Classifier) Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindGeneric, Message: genericMessage}
	}
	text := strings.ToLower(err.Error())
	for _, rule := range c.rules {
		if rule.Match(err, text) {
			return Classification{Kind: rule.Kind, Message: rule.Message}
		}
	}
	return Classification{Kind: KindGeneric, Message: genericMessage}
}
