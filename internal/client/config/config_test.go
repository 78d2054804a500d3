package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "http://127.0.0.1:8080", c.ServerURL)
	assert.Equal(t, "authctl.db", c.SessionDB)
	assert.Equal(t, 10*time.Second, c.RequestTimeout)
}

func TestLoadConfig_Precedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	path := writeTempJSON(t, "", "", map[string]any{
		"server_url":      "http://from-file:8080",
		"session_db":      "file.db",
		"request_timeout": "3s",
	})
	os.Args = []string{"authctl", "-c", path, "-a", "http://from-flag:9090", "whoami"}

	cfg := LoadConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "http://from-flag:9090", cfg.ServerURL)
	assert.Equal(t, "file.db", cfg.SessionDB)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
}
