package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, defaultListenAddr, cfg.Server.ListenAddr)
	assert.Equal(t, defaultDataDir, cfg.Server.DataDir)
	assert.Equal(t, defaultLogLevel, cfg.Server.LogLevel)
}

func TestParseOverridesDefaults(t *testing.T) {
	doc := `
[server]
listen_addr = "0.0.0.0:3307"
data_dir = "/var/lib/miniql"
log_level = "debug"

[auth]
root_password = "hunter2"
`
	cfg, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:3307", cfg.Server.ListenAddr)
	assert.Equal(t, "/var/lib/miniql", cfg.Server.DataDir)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "hunter2", cfg.Auth.RootPassword)
}

func TestParseRejectsUnknownLogLevel(t *testing.T) {
	_, err := Parse(strings.NewReader(`[server]
log_level = "verbose"
`))
	assert.Error(t, err)
}
