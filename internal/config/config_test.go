package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admissiond.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
redis:
  addr: "redis.internal:6379"
  password: "secret"
  db: 2
  timeout: 500ms
  prefix: "gw:"
sweep:
  interval: 1m
policies:
  - name: login
    window: 1m
    maxRequests: 5
    penalty: 10m
    algorithm: sliding
  - name: upload
    window: 1h
    maxRequests: 100
    per: "header:X-API-Key"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 500*time.Millisecond, cfg.Redis.Timeout.Std())
	assert.Equal(t, "gw:", cfg.Redis.Prefix)
	assert.Equal(t, time.Minute, cfg.Sweep.Interval.Std())

	require.Len(t, cfg.Policies, 2)
	assert.Equal(t, "login", cfg.Policies[0].Name)
	assert.Equal(t, time.Minute, cfg.Policies[0].Window.Std())
	assert.Equal(t, int64(5), cfg.Policies[0].MaxRequests)
	assert.Equal(t, 10*time.Minute, cfg.Policies[0].Penalty.Std())
	assert.Equal(t, "sliding", cfg.Policies[0].Algorithm)
	assert.Equal(t, "header:X-API-Key", cfg.Policies[1].Per)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
policies:
  - name: op
    window: 10s
    maxRequests: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Redis.Timeout.Std())
	assert.Equal(t, "admission:", cfg.Redis.Prefix)
	assert.Equal(t, 30*time.Second, cfg.Sweep.Interval.Std())
	assert.Empty(t, cfg.Redis.Addr, "no redis by default")
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name     string
		contents string
	}{
		{"malformed yaml", "policies: [}"},
		{"bad duration", "policies:\n  - name: op\n    window: soon\n    maxRequests: 1\n"},
		{"missing policy name", "policies:\n  - window: 10s\n    maxRequests: 1\n"},
		{"zero maxRequests", "policies:\n  - name: op\n    window: 10s\n    maxRequests: 0\n"},
		{"negative penalty", "policies:\n  - name: op\n    window: 10s\n    maxRequests: 1\n    penalty: -5s\n"},
		{"unknown algorithm", "policies:\n  - name: op\n    window: 10s\n    maxRequests: 1\n    algorithm: leaky\n"},
		{"unknown per strategy", "policies:\n  - name: op\n    window: 10s\n    maxRequests: 1\n    per: cookie\n"},
		{"empty header name", "policies:\n  - name: op\n    window: 10s\n    maxRequests: 1\n    per: 'header:'\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.contents))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfig_Registry(t *testing.T) {
	path := writeConfig(t, `
policies:
  - name: login
    window: 1m
    maxRequests: 5
  - name: upload
    window: 1h
    maxRequests: 100
    per: "header:X-API-Key"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	registry, err := cfg.Registry()
	require.NoError(t, err)
	assert.Len(t, registry.Names(), 2)

	login, err := registry.Lookup("login")
	require.NoError(t, err)
	assert.Nil(t, login.Key, "ip strategy has no key func")

	upload, err := registry.Lookup("upload")
	require.NoError(t, err)
	require.NotNil(t, upload.Key)

	r, _ := http.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("X-API-Key", "abc123")
	assert.Equal(t, "abc123", upload.Key(r))
}

func TestConfig_Registry_RejectsDuplicates(t *testing.T) {
	path := writeConfig(t, `
policies:
  - name: op
    window: 10s
    maxRequests: 1
  - name: op
    window: 20s
    maxRequests: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = cfg.Registry()
	assert.Error(t, err)
}
