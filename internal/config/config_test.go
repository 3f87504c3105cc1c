package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFileWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
	assert.FileExists(t, path)
}

func TestLoadAppliesDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 5555\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5555, cfg.Port)
	assert.Equal(t, Defaults().RoomMaxPlayers, cfg.RoomMaxPlayers)
	assert.Equal(t, Defaults().BindIP, cfg.BindIP)
}

func TestMonitorAllowed(t *testing.T) {
	cfg := Config{Monitors: []int32{100, 200}}
	assert.True(t, cfg.MonitorAllowed(100))
	assert.False(t, cfg.MonitorAllowed(300))
}
