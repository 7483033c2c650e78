// Package config loads securestore settings from flags, environment
// variables and an optional config file.
//
// Environment variables use the SECURESTORE_ prefix with dots replaced by
// underscores, e.g. SECURESTORE_IDENTITY_SOURCE.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/illarion/securestore/internal/logging"
	"github.com/illarion/securestore/internal/security"
	"github.com/spf13/viper"
)

const EnvPrefix = "SECURESTORE"

// Keys
const (
	KeyRoot            = "root"
	KeyLogLevel        = "log_level"
	KeyJournal         = "journal"
	KeyWatch           = "watch"
	KeyStrictBackup    = "strict_backup"
	KeyBindID          = "bind_id"
	KeyIdentitySource  = "identity.source"
	KeyIdentityPath    = "identity.path"
	KeyIdentityValue   = "identity.value"
	KeyIdentityService = "identity.service"
	KeyIdentityUser    = "identity.user"
	KeyKDFSalt         = "kdf.salt"
	KeyKDFInfo         = "kdf.info"
)

// Identity sources
const (
	SourceMachineID = "machine-id"
	SourceFile      = "file"
	SourceKeyring   = "keyring"
	SourceJournal   = "journal"
	SourceStatic    = "static"
	SourcePrompt    = "prompt"
)

var Sources = []string{SourceMachineID, SourceFile, SourceKeyring, SourceJournal, SourceStatic, SourcePrompt}

var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration.
type Config struct {
	Root         string   `mapstructure:"root"`
	LogLevel     string   `mapstructure:"log_level"`
	Journal      string   `mapstructure:"journal"`
	Watch        bool     `mapstructure:"watch"`
	StrictBackup bool     `mapstructure:"strict_backup"`
	BindID       bool     `mapstructure:"bind_id"`
	Identity     Identity `mapstructure:"identity"`
	KDF          KDF      `mapstructure:"kdf"`
}

// Identity selects where the device identity comes from.
type Identity struct {
	Source  string `mapstructure:"source"`
	Path    string `mapstructure:"path"`
	Value   string `mapstructure:"value"`
	Service string `mapstructure:"service"`
	User    string `mapstructure:"user"`
}

// KDF overrides the key derivation salt and info. Empty keeps the defaults.
type KDF struct {
	Salt string `mapstructure:"salt"`
	Info string `mapstructure:"info"`
}

// DefaultDir is the base directory for the default root and journal.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".securestore"
	}
	return filepath.Join(home, ".securestore")
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	base := DefaultDir()

	v.SetDefault(KeyRoot, filepath.Join(base, "data"))
	v.SetDefault(KeyLogLevel, logging.LevelWarn)
	v.SetDefault(KeyJournal, filepath.Join(base, "journal.db"))
	v.SetDefault(KeyWatch, false)
	v.SetDefault(KeyStrictBackup, false)
	v.SetDefault(KeyBindID, false)
	v.SetDefault(KeyIdentitySource, SourceMachineID)
	v.SetDefault(KeyIdentityPath, "")
	v.SetDefault(KeyIdentityValue, "")
	v.SetDefault(KeyIdentityService, "securestore")
	v.SetDefault(KeyIdentityUser, "device-identity")
	v.SetDefault(KeyKDFSalt, "")
	v.SetDefault(KeyKDFInfo, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and unmarshals v into a validated
// Config.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("%w: root is empty", ErrInvalid)
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.LogLevel)
	}

	switch c.Identity.Source {
	case SourceMachineID, SourceKeyring, SourcePrompt:
	case SourceFile:
		if c.Identity.Path == "" {
			return fmt.Errorf("%w: identity source %q needs identity.path", ErrInvalid, SourceFile)
		}
	case SourceStatic:
		if c.Identity.Value == "" {
			return fmt.Errorf("%w: identity source %q needs identity.value", ErrInvalid, SourceStatic)
		}
	case SourceJournal:
		if c.Journal == "" {
			return fmt.Errorf("%w: identity source %q needs a journal", ErrInvalid, SourceJournal)
		}
	default:
		return fmt.Errorf("%w: unknown identity source %q (want one of %s)",
			ErrInvalid, c.Identity.Source, strings.Join(Sources, ", "))
	}

	if c.Journal != "" {
		// Journal writes inside a watched root would feed back as events.
		if err := security.EnsureOutside(c.Root, c.Journal); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	return nil
}
