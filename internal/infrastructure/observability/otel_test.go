package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitEndpoint(t *testing.T) {
	tests := []struct {
		raw      string
		endpoint string
		insecure bool
	}{
		{"otel-collector:4318", "otel-collector:4318", true},
		{"http://otel-collector:4318", "otel-collector:4318", true},
		{"https://otel.example.com", "otel.example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			endpoint, insecure := splitEndpoint(tt.raw)
			assert.Equal(t, tt.endpoint, endpoint)
			assert.Equal(t, tt.insecure, insecure)
		})
	}
}

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" authorization=Bearer x ,bad, empty= ,x-tenant=jan")
	assert.Equal(t, map[string]string{"authorization": "Bearer x", "x-tenant": "jan"}, got)
}
