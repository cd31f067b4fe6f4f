package cache

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUniversalOptions(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		addrs   []string
		db      int
		wantErr bool
	}{
		{name: "single url", raw: "redis://:secret@localhost:6379/2", addrs: []string{"localhost:6379"}, db: 2},
		{name: "bare addresses", raw: "node1:6379, node2:6379", addrs: []string{"node1:6379", "node2:6379"}},
		{name: "empty", raw: " , ", wantErr: true},
		{name: "bad url", raw: "redis://host:port:bad", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := buildUniversalOptions(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.addrs, opts.Addrs)
			assert.Equal(t, tt.db, opts.DB)
		})
	}
}

func TestNewRedisClient_RequiresURL(t *testing.T) {
	_, err := NewRedisClient("", zerolog.Nop())
	require.Error(t, err)
}
