package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelCatalog(t *testing.T) {
	catalog, err := ParseModelCatalog([]byte(`
default: jan-v1-4b
models:
  - id: jan-v1-4b
    display_name: Jan v1 4B
  - id: " gpt-4o-mini "
  - id: ""
`))
	require.NoError(t, err)
	assert.Equal(t, "jan-v1-4b", catalog.Default)
	assert.Equal(t, []string{"jan-v1-4b", "gpt-4o-mini"}, catalog.IDs())
}

func TestParseModelCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "models: []"},
		{"unknown default", "default: nope\nmodels:\n  - id: a"},
		{"duplicate", "models:\n  - id: a\n  - id: a"},
		{"not yaml", "models: [a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModelCatalog([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParseModelCatalog_DefaultsToFirst(t *testing.T) {
	catalog, err := ParseModelCatalog([]byte("models:\n  - id: first\n  - id: second"))
	require.NoError(t, err)
	assert.Equal(t, "first", catalog.Default)
}

func TestLoad(t *testing.T) {
	t.Setenv("MODEL_PROVIDER_URL", "http://provider.local/v1")
	t.Setenv("DEFAULT_MODEL", "jan-v1-4b")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("QUOTA_DAILY_LIMIT", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 7, cfg.QuotaDailyLimit)
	assert.Equal(t, "jan-v1-4b", cfg.TitleModel)
	assert.Nil(t, cfg.AllowedModels())
	assert.Same(t, cfg, GetGlobal())
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("QUOTA_TIMEZONE", "Mars/Olympus")
	_, err := Load()
	assert.Error(t, err)
}
