package storage

import (
	"github.com/illarion/securestore/internal/crypto"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

type config struct {
	logger       *zap.Logger
	fs           afero.Fs
	kdf          *crypto.KDF
	cipher       *crypto.Cipher
	strictBackup bool
	bindID       bool
}

// Option configures a Store.
type Option func(*config)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFs sets the filesystem. The default is the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(c *config) {
		if fsys != nil {
			c.fs = fsys
		}
	}
}

// WithKDF overrides the key derivation salt and info.
func WithKDF(kdf *crypto.KDF) Option {
	return func(c *config) {
		if kdf != nil {
			c.kdf = kdf
		}
	}
}

// WithCipher supplies a preconstructed cipher.
func WithCipher(cipher *crypto.Cipher) Option {
	return func(c *config) {
		if cipher != nil {
			c.cipher = cipher
		}
	}
}

// WithStrictBackup makes Store fail with ErrRenameFailed when the current
// generation cannot be moved to the backup slot. By default the failure is
// logged and the write proceeds without a backup.
func WithStrictBackup(strict bool) Option {
	return func(c *config) {
		c.strictBackup = strict
	}
}

// WithIDBinding authenticates each envelope against its id, so an envelope
// copied to another id's file fails to open. Stores written with and
// without binding are not interchangeable.
func WithIDBinding(bind bool) Option {
	return func(c *config) {
		c.bindID = bind
	}
}
