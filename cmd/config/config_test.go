package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hay-kot/criterio"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/kw/pkg/selection"
	"github.com/grovetools/kw/pkg/service"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	WorkspaceOverride = ""
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)
	SetDefaults()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, selection.DefaultMax, cfg.HistoryMax)
	assert.True(t, cfg.LogToFile)
	assert.True(t, strings.HasSuffix(cfg.DataDir, filepath.Join(".local", "share", "kw")), cfg.DataDir)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: "+dir+"\nhistory_max: 7\nlog_level: info\n"), 0644))

	t.Setenv("KW_LOG_LEVEL", "debug")
	viper.SetConfigFile(path)
	viper.SetEnvPrefix("KW")
	viper.AutomaticEnv()
	SetDefaults()
	require.NoError(t, viper.ReadInConfig())

	WorkspaceOverride = "/tmp/elsewhere"
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 7, cfg.HistoryMax)
	assert.Equal(t, "debug", cfg.LogLevel, "environment beats the config file")
	assert.Equal(t, "/tmp/elsewhere", cfg.Workspace)
}

func TestLoadExpandsHome(t *testing.T) {
	resetViper(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	SetDefaults()
	viper.Set("data_dir", "~/kw-data")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "kw-data"), cfg.DataDir)
}

func TestValidate(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	cfg := &Config{DataDir: file, LogLevel: "loud", HistoryMax: 0}
	err := cfg.Validate()

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	assert.Len(t, fieldErrs, 3)

	cfg = &Config{DataDir: t.TempDir(), LogLevel: "error", HistoryMax: 10}
	assert.NoError(t, cfg.Validate())
}

func TestNewService(t *testing.T) {
	dataDir := t.TempDir()
	ws := filepath.Join(t.TempDir(), "notes")
	cfg := &Config{DataDir: dataDir, Workspace: ws, LogLevel: "info", LogToFile: true, HistoryMax: 3}

	svc, err := NewService(t.Context(), cfg, service.Config{})
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, "notes", svc.Workspace.Name)
	assert.FileExists(t, svc.Workspace.LogPath())
}
