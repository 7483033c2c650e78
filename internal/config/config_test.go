package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/illarion/securestore/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(DefaultDir(), "data"), cfg.Root)
	assert.Equal(t, filepath.Join(DefaultDir(), "journal.db"), cfg.Journal)
	assert.Equal(t, SourceMachineID, cfg.Identity.Source)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.False(t, cfg.Watch)
	assert.False(t, cfg.StrictBackup)
}

func TestLoad_Env(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SECURESTORE_ROOT", filepath.Join(dir, "store"))
	t.Setenv("SECURESTORE_IDENTITY_SOURCE", SourceStatic)
	t.Setenv("SECURESTORE_IDENTITY_VALUE", "serial-1")
	t.Setenv("SECURESTORE_STRICT_BACKUP", "true")
	t.Setenv("SECURESTORE_KDF_INFO", "custom-info")

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "store"), cfg.Root)
	assert.Equal(t, SourceStatic, cfg.Identity.Source)
	assert.Equal(t, "serial-1", cfg.Identity.Value)
	assert.True(t, cfg.StrictBackup)
	assert.Equal(t, "custom-info", cfg.KDF.Info)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "securestore.yaml")
	content := `
root: ` + filepath.Join(dir, "blobs") + `
journal: ` + filepath.Join(dir, "journal.db") + `
watch: true
log_level: debug
identity:
  source: file
  path: /etc/device-serial
kdf:
  salt: my-salt
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0600))

	cfg, err := Load(New(), file)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "blobs"), cfg.Root)
	assert.True(t, cfg.Watch)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, SourceFile, cfg.Identity.Source)
	assert.Equal(t, "/etc/device-serial", cfg.Identity.Path)
	assert.Equal(t, "my-salt", cfg.KDF.Salt)

	_, err = Load(New(), filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(filepath.Dir(root), "journal.db")

	valid := func() Config {
		return Config{
			Root:     root,
			LogLevel: "info",
			Journal:  outside,
			Identity: Identity{Source: SourceMachineID},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"no journal", func(c *Config) { c.Journal = "" }, true},
		{"log none", func(c *Config) { c.LogLevel = "none" }, true},
		{"empty root", func(c *Config) { c.Root = "" }, false},
		{"bad level", func(c *Config) { c.LogLevel = "chatty" }, false},
		{"unknown source", func(c *Config) { c.Identity.Source = "boot-id" }, false},
		{"file without path", func(c *Config) { c.Identity.Source = SourceFile }, false},
		{"static without value", func(c *Config) { c.Identity.Source = SourceStatic }, false},
		{"journal source without journal", func(c *Config) {
			c.Identity.Source = SourceJournal
			c.Journal = ""
		}, false},
		{"journal inside root", func(c *Config) { c.Journal = filepath.Join(root, "journal.db") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
		})
	}

	cfg := valid()
	cfg.Journal = filepath.Join(root, "j.db")
	require.ErrorIs(t, cfg.Validate(), security.ErrPathInsideDir)
}
