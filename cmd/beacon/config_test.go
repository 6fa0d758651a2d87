package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.HTTPAddress)
	assert.Equal(t, 5*time.Second, cfg.OutboundTimeout())
	assert.Equal(t, time.Hour, cfg.PurgeInterval())
	assert.Equal(t, 30*24*time.Hour, cfg.HistoryRetention())
	assert.Equal(t, "Beacon", cfg.Site.Name)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(smtpPasswordEnv, "from-env")

	path := writeConfig(t, `
server:
  http_address: ":9090"
  ingest_rate: 20
database:
  path: /tmp/beacon.db
rules:
  file: /etc/beacon/rules.yaml
  watch: true
outbound:
  timeout: 2s
  max_concurrency: 8
mail:
  host: smtp.example.com
  password: from-file
site:
  name: Acme
  base_url: https://beacon.acme.test
  email: alerts@acme.test
sms:
  gateway_url: https://sms.acme.test/send
log:
  level: debug
  format: console
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddress)
	assert.Equal(t, 20.0, cfg.Server.IngestRate)
	assert.True(t, cfg.Rules.Watch)
	assert.Equal(t, 2*time.Second, cfg.OutboundTimeout())
	assert.Equal(t, 8, cfg.Outbound.MaxConcurrency)
	assert.Equal(t, "from-env", cfg.Mail.Password)
	assert.Equal(t, "alerts@acme.test", cfg.Mail.From)
	assert.Equal(t, 587, cfg.Mail.Port)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad timeout", func(c *Config) { c.Outbound.Timeout = "soon" }},
		{"zero purge interval", func(c *Config) { c.Server.PurgeInterval = "0s" }},
		{"negative concurrency", func(c *Config) { c.Outbound.MaxConcurrency = -1 }},
		{"relative base url", func(c *Config) { c.Site.BaseURL = "/beacon" }},
		{"bad gateway", func(c *Config) { c.SMS.GatewayURL = "sms://gateway" }},
		{"mail without from", func(c *Config) { c.Mail.Host = "smtp.example.com"; c.Mail.From = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "server: ["))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "outbound:\n  timeout: never\n"))
	assert.Error(t, err)
}
