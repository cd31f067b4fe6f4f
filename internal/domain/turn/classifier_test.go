package turn

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier_Classify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", fmt.Errorf("stream: %w", context.DeadlineExceeded), KindTimeout},
		{"timeout text", errors.New("Client.Timeout exceeded while awaiting headers"), KindTimeout},
		{"rate limit", errors.New("upstream status 429: Too Many Requests"), KindLimit},
		{"quota", errors.New("You exceeded your current quota"), KindLimit},
		{"connection refused", errors.New("dial tcp 10.0.0.1:443: connect: connection refused"), KindNetwork},
		{"unexpected eof", errors.New("read stream: unexpected EOF"), KindNetwork},
		{"unauthorized", errors.New("upstream status 401: Unauthorized"), KindAuth},
		{"bad key", errors.New("Incorrect API key provided"), KindAuth},
		{"empty response", errEmptyResponse, KindGeneric},
		{"other", errors.New("model exploded"), KindGeneric},
		{"nil", nil, KindGeneric},
	}

	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.err)
			assert.Equal(t, tt.want, got.Kind)
			assert.NotEmpty(t, got.Message)
		})
	}
}

func TestClassifier_OrderMatters(t *testing.T) {
	// matches both the timeout and the network rule; timeout comes first
	err := errors.New("dial tcp: i/o timeout")
	assert.Equal(t, KindTimeout, NewClassifier().Classify(err).Kind)
}

func TestClassifier_AddRule(t *testing.T) {
	c := NewClassifier()
	c.AddRule(ClassificationRule{
		Kind:    "moderation",
		Match:   func(_ error, text string) bool { return text == "content filtered" },
		Message: "This request was blocked.",
	})
	got := c.Classify(errors.New("Content Filtered"))
	assert.Equal(t, Kind("moderation"), got.Kind)
	assert.Equal(t, "This request was blocked.", got.Message)
}
