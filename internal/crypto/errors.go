package crypto

import "errors"

var (
	ErrInvalidKey     = errors.New("invalid key: must be 32 bytes")
	ErrInvalidInput   = errors.New("invalid input")
	ErrAuthFailed     = errors.New("authentication failed")
	ErrNotInitialized = errors.New("cipher not initialized")
	ErrCipherFailure  = errors.New("cipher failure")
	ErrKeyDerivation  = errors.New("key derivation failed")
)
