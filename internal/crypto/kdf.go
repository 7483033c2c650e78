package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	DefaultSalt = "DefaultSecureStorageAppSalt-V1"
	DefaultInfo = "SecureStorage-AES-256-GCM-Key-V1"

	maxDerivedSize = 255 * sha256.Size // HKDF-SHA256 output limit
)

// IdentitySource supplies the opaque device identity used as key material.
// Stability across restarts is the source's responsibility.
type IdentitySource interface {
	Identity() (string, error)
}

// KDF derives keys from a device identity with HKDF-SHA256.
type KDF struct {
	Salt []byte
	Info []byte
}

// KDFOption configures a KDF.
type KDFOption func(*KDF)

// WithSalt overrides the default salt. An empty salt keeps the default.
func WithSalt(salt []byte) KDFOption {
	return func(k *KDF) {
		if len(salt) > 0 {
			k.Salt = append([]byte(nil), salt...)
		}
	}
}

// WithInfo overrides the default info string. An empty info keeps the default.
func WithInfo(info []byte) KDFOption {
	return func(k *KDF) {
		if len(info) > 0 {
			k.Info = append([]byte(nil), info...)
		}
	}
}

// NewKDF creates a KDF with the compiled-in defaults unless overridden.
func NewKDF(opts ...KDFOption) *KDF {
	k := &KDF{
		Salt: []byte(DefaultSalt),
		Info: []byte(DefaultInfo),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Derive reads the identity from src and derives a key of length bytes.
// A zero length is rejected before src is consulted; errors from src are
// returned as is.
func (k *KDF) Derive(src IdentitySource, length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: key length must be positive", ErrInvalidInput)
	}
	if src == nil {
		return nil, fmt.Errorf("%w: no identity source", ErrInvalidInput)
	}

	identity, err := src.Identity()
	if err != nil {
		return nil, err
	}
	return DeriveKey(identity, k.Salt, k.Info, length)
}

// DeriveKey runs HKDF-SHA256 extract and expand over identity. Identical
// inputs always produce identical output.
func DeriveKey(identity string, salt, info []byte, length int) ([]byte, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: key length must be positive", ErrInvalidInput)
	}
	if identity == "" {
		return nil, fmt.Errorf("%w: identity is empty", ErrInvalidInput)
	}
	if length > maxDerivedSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds HKDF-SHA256 limit", ErrKeyDerivation, length)
	}

	key := make([]byte, length)
	reader := hkdf.New(sha256.New, []byte(identity), salt, info)
	if _, err := io.ReadFull(reader, key); err != nil {
		ClearBytes(key)
		return nil, fmt.Errorf("%w: %w", ErrKeyDerivation, err)
	}
	return key, nil
}
