package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0644))
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	uploads := filepath.Join(t.TempDir(), "uploads")
	dir := writeConfig(t, "storage:\n  local_path: "+uploads+"\n")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, CollaboratorLocal, cfg.Collaborator.Mode)
	assert.Equal(t, 30*time.Second, cfg.Collaborator.Timeout())
	assert.Equal(t, time.Minute, cfg.Review.CountCacheTTL())
	assert.Equal(t, AudioSourceUpload, cfg.Audio.Source)
	assert.True(t, cfg.Audio.Enabled)
	assert.Equal(t, dir, cfg.Path)
	assert.DirExists(t, uploads)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := writeConfig(t, "collaborator:\n  mode: local\nstorage:\n  local_path: "+t.TempDir()+"\n")
	t.Setenv("COLLABORATOR_MODE", "remote")
	t.Setenv("COLLABORATOR_BASE_URL", "http://content.internal")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, CollaboratorRemote, cfg.Collaborator.Mode)
	assert.Equal(t, "http://content.internal", cfg.Collaborator.BaseURL)
}

func TestLoadConfigAudioDisabled(t *testing.T) {
	dir := writeConfig(t, "storage:\n  local_path: "+t.TempDir()+"\n")
	t.Setenv("AUDIO_ENABLED", "false")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.False(t, cfg.Audio.Enabled)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:       ServerConfig{Mode: "debug"},
			Collaborator: CollaboratorConfig{Mode: CollaboratorMemory},
			Audio:        AudioConfig{Source: AudioSourceUpload},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"bad mode", func(c *Config) { c.Server.Mode = "prod" }, false},
		{"short secret in release", func(c *Config) { c.Server.Mode = "release"; c.JWT.Secret = "short" }, false},
		{"remote without url", func(c *Config) { c.Collaborator.Mode = CollaboratorRemote }, false},
		{"unknown collaborator", func(c *Config) { c.Collaborator.Mode = "grpc" }, false},
		{"unknown audio", func(c *Config) { c.Audio.Source = "bluetooth" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
