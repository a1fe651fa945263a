package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(KeyESHost, "http://localhost:9200")
	t.Setenv(KeyAuthKey, "secret")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9200", cfg.ESHost)
	assert.Equal(t, "secret", cfg.AuthKey)
	assert.Equal(t, "http://data4library.kr", cfg.APIBaseURL)
	assert.Equal(t, "https://www.data4library.kr", cfg.WebBaseURL)
	assert.Equal(t, "11", cfg.Region)
	assert.Equal(t, "A", cfg.DetailRegion)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 30000, cfg.ChunkSize)
	assert.Equal(t, 5*time.Minute, cfg.HTTPTimeout)
	assert.True(t, cfg.SkipExisting)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(KeyESHost, "http://es:9200")
	t.Setenv(KeyAuthKey, "k")
	t.Setenv(KeyWorkers, "4")
	t.Setenv(KeySkipExisting, "false")
	t.Setenv(KeyWebBaseURL, "http://example.test/")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.False(t, cfg.SkipExisting)
	assert.Equal(t, "http://example.test", cfg.WebBaseURL)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		esHost  string
		authKey string
		missing string
	}{
		{name: "no es host", esHost: "", authKey: "k", missing: KeyESHost},
		{name: "no auth key", esHost: "http://es:9200", authKey: "", missing: KeyAuthKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(KeyESHost, tt.esHost)
			t.Setenv(KeyAuthKey, tt.authKey)

			_, err := Load(New())
			require.ErrorIs(t, err, ErrMissingValue)
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestLoadEngine_OnlyNeedsESHost(t *testing.T) {
	t.Setenv(KeyESHost, "http://es:9200")
	t.Setenv(KeyAuthKey, "")

	cfg, err := LoadEngine(New())
	require.NoError(t, err)
	assert.Equal(t, "http://es:9200", cfg.ESHost)

	_, err = Load(New())
	assert.ErrorIs(t, err, ErrMissingValue)
}

func TestLoadEngine_MissingESHost(t *testing.T) {
	t.Setenv(KeyESHost, "")

	_, err := LoadEngine(New())
	require.ErrorIs(t, err, ErrMissingValue)
	assert.Contains(t, err.Error(), KeyESHost)
}

func TestValidate_ClampsWorkers(t *testing.T) {
	cfg := &Config{ESHost: "h", AuthKey: "k", Workers: 0, ChunkSize: 10}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Workers)
}

func TestValidate_RejectsZeroChunkSize(t *testing.T) {
	cfg := &Config{ESHost: "h", AuthKey: "k", Workers: 1, ChunkSize: 0}
	assert.Error(t, cfg.Validate())
}
