package daemon

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/kurir/internal/config"
	"github.com/harun/kurir/internal/logger"
)

func TestNewRequiresValidToken(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Telegram.BotToken = ""

	_, err = New(cfg, log)
	assert.Error(t, err)
}

func TestNewWithToken(t *testing.T) {
	token := os.Getenv("KURIR_TEST_BOT_TOKEN")
	if token == "" {
		t.Skip("KURIR_TEST_BOT_TOKEN not set")
	}

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Telegram.BotToken = token

	d, err := New(cfg, log)
	require.NoError(t, err)
	assert.NotNil(t, d.Dispatcher())
	assert.NotNil(t, d.Registry())
	assert.False(t, d.Status().Running)
}

func TestStatusAndConfigSwap(t *testing.T) {
	d := newTestDaemonShell(t)

	status := d.Status()
	assert.False(t, status.Running)
	assert.Zero(t, status.Uptime)

	updated := config.DefaultConfig()
	updated.Sessions.Favorites = map[string]string{"api": "/home/user/api"}
	d.applyConfig(updated)

	assert.Equal(t, "/home/user/api", d.Config().Sessions.Favorites["api"])
}

func TestStopWhenNotRunning(t *testing.T) {
	d := newTestDaemonShell(t)
	assert.Error(t, d.Stop())
}
