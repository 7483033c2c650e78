package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

const (
	KeySize   = 32                  // AES-256 key size
	NonceSize = 12                  // GCM nonce size
	TagSize   = 16                  // GCM authentication tag size
	Overhead  = NonceSize + TagSize // Bytes added to every sealed envelope
	seedSize  = 32                  // Entropy drawn per nonce

	// DefaultPersonalization separates this cipher's nonce stream from any
	// other consumer of the same entropy source.
	DefaultPersonalization = "SecureStorageEncryptorSeed"
)

// CipherOption configures a Cipher.
type CipherOption func(*cipherConfig)

type cipherConfig struct {
	personalization string
	entropy         io.Reader
}

// WithPersonalization sets the domain-separation string mixed into nonce
// generation. An empty string keeps the default.
func WithPersonalization(p string) CipherOption {
	return func(c *cipherConfig) {
		if p != "" {
			c.personalization = p
		}
	}
}

// WithEntropy replaces the entropy source (crypto/rand.Reader by default).
// Intended for tests.
func WithEntropy(r io.Reader) CipherOption {
	return func(c *cipherConfig) {
		c.entropy = r
	}
}

// Cipher seals and opens envelopes with AES-256-GCM.
// It is safe for concurrent use. The zero value is unusable and reports
// ErrNotInitialized; construct with NewCipher.
type Cipher struct {
	nonces *nonceSource
}

// NewCipher creates a Cipher. It draws once from the entropy source so that
// an unavailable source fails construction instead of every later call.
func NewCipher(opts ...CipherOption) (*Cipher, error) {
	cfg := &cipherConfig{
		personalization: DefaultPersonalization,
		entropy:         rand.Reader,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	nonces, err := newNonceSource(cfg.entropy, cfg.personalization)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}
	return &Cipher{nonces: nonces}, nil
}

// Seal encrypts plaintext under key, binding aad (which may be nil) into the
// tag. The result is nonce || ciphertext || tag, len(plaintext)+Overhead bytes.
func (c *Cipher) Seal(plaintext, key, aad []byte) ([]byte, error) {
	if c == nil || c.nonces == nil {
		return nil, ErrNotInitialized
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce, err := c.nonces.next()
	if err != nil {
		return nil, err
	}

	out := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	copy(out, nonce)
	return gcm.Seal(out, nonce, plaintext, aad), nil
}

// Open verifies and decrypts an envelope produced by Seal. Any tag, key or
// aad mismatch yields ErrAuthFailed and no plaintext.
func (c *Cipher) Open(envelope, key, aad []byte) ([]byte, error) {
	if c == nil || c.nonces == nil {
		return nil, ErrNotInitialized
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(envelope) < Overhead {
		return nil, fmt.Errorf("%w: %d bytes is shorter than nonce and tag", ErrInvalidInput, len(envelope))
	}

	nonce := envelope[:NonceSize]
	plaintext, err := gcm.Open(nil, nonce, envelope[NonceSize:], aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKey, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create cipher: %w", ErrCipherFailure, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCM: %w", ErrCipherFailure, err)
	}
	return gcm, nil
}

// nonceSource expands fresh entropy through HKDF with the personalization
// string as info, so every nonce is uniform and bound to this cipher's domain.
type nonceSource struct {
	mu      sync.Mutex // custom entropy readers need not be concurrency safe
	entropy io.Reader
	info    []byte
}

func newNonceSource(entropy io.Reader, personalization string) (*nonceSource, error) {
	if entropy == nil {
		return nil, fmt.Errorf("no entropy source")
	}

	probe := make([]byte, seedSize)
	defer ClearBytes(probe)
	if _, err := io.ReadFull(entropy, probe); err != nil {
		return nil, fmt.Errorf("failed to seed nonce generator: %w", err)
	}

	return &nonceSource{
		entropy: entropy,
		info:    []byte(personalization),
	}, nil
}

func (n *nonceSource) next() ([]byte, error) {
	seed := make([]byte, seedSize)
	defer ClearBytes(seed)

	n.mu.Lock()
	_, err := io.ReadFull(n.entropy, seed)
	n.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate nonce: %w", ErrCipherFailure, err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, seed, n.info), nonce); err != nil {
		return nil, fmt.Errorf("%w: failed to expand nonce: %w", ErrCipherFailure, err)
	}
	return nonce, nil
}
