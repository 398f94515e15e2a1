package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nwah/tripnav/nav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", "")
	t.Setenv("GOOGLE_MAPS_API_KEY", "")
	t.Setenv("SENTRY_DSN", "")
	t.Setenv("LOG_LEVEL", "")

	tests := []struct {
		name    string
		toml    string
		env     string
		check   func(t *testing.T, c Config)
		wantErr error
	}{
		{
			name: "defaults",
			toml: "[nav]\naccess_token = \"pk.test\"\n",
			check: func(t *testing.T, c Config) {
				assert.Equal(t, ":8080", c.Port)
				assert.Equal(t, "info", c.LogLevel)
				assert.Equal(t, nav.ProviderMapbox, c.Nav.Provider)
				assert.Equal(t, nav.ProfileDriving, c.Nav.Profile)
				assert.Equal(t, 5, c.Nav.Limit)
				assert.Equal(t, 300*time.Millisecond, c.Session.SearchDebounce.Duration)
				assert.False(t, c.Location.Enabled())
			},
		},
		{
			name: "secrets from env file",
			toml: "port = \":9090\"\n[session]\nsearch_debounce = \"400ms\"\n",
			env:  "MAPBOX_TOKEN=pk.fromenv\nSENTRY_DSN=https://key@sentry.example/1\nLOG_LEVEL=debug\n",
			check: func(t *testing.T, c Config) {
				assert.Equal(t, ":9090", c.Port)
				assert.Equal(t, "pk.fromenv", c.Nav.AccessToken)
				assert.Equal(t, "https://key@sentry.example/1", c.SentryDSN)
				assert.Equal(t, "debug", c.LogLevel)
				assert.Equal(t, 400*time.Millisecond, c.Session.SearchDebounce.Duration)
			},
		},
		{
			name: "google provider",
			toml: "[nav]\nprovider = \"google\"\n",
			env:  "GOOGLE_MAPS_API_KEY=AIza-test\n",
			check: func(t *testing.T, c Config) {
				assert.Equal(t, nav.ProviderGoogle, c.Nav.Provider)
				assert.Equal(t, "AIza-test", c.Nav.GoogleAPIKey)
			},
		},
		{
			name: "mqtt source",
			toml: "[nav]\naccess_token = \"pk.test\"\n[location]\nmqtt_broker = \"tcp://localhost:1883\"\nmqtt_topic = \"v3/app/devices/+/location/solved\"\n",
			check: func(t *testing.T, c Config) {
				assert.True(t, c.Location.Enabled())
				assert.Equal(t, "tcp://localhost:1883", c.Location.Broker)
			},
		},
		{
			name:    "missing token",
			toml:    "port = \":8080\"\n",
			wantErr: nav.ErrMissingConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cfgPath := writeFile(t, dir, "config.toml", tt.toml)
			envPath := filepath.Join(dir, ".env")
			if tt.env != "" {
				writeFile(t, dir, ".env", tt.env)
			}

			c, err := LoadConfig(cfgPath, envPath)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", "pk.test")
	t.Setenv("LOG_LEVEL", "")
	dir := t.TempDir()

	tests := map[string]string{
		"bad log level":    "log_level = \"verbose\"\n",
		"bad duration":     "[session]\nsearch_debounce = \"soon\"\n",
		"bad provider":     "[nav]\nprovider = \"osm\"\n",
		"half mqtt config": "[location]\nmqtt_broker = \"tcp://localhost:1883\"\n",
		"not toml":         "port = \n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, "config.toml", content)
			_, err := LoadConfig(path, filepath.Join(dir, ".env"))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(dir, "missing.toml"), "")
	assert.Error(t, err)
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", "pk.test")
	c, err := LoadConfig("config.toml", filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.Equal(t, "IN", c.Nav.Country)
	assert.Equal(t, 10*time.Second, c.Nav.Timeout.Duration)
}
