// Package crypto provides the cryptographic primitives of securestore.
//
// Encryption uses AES-256-GCM with:
//   - 32-byte key derived from the device identity via HKDF-SHA256
//   - 12-byte nonce per encryption, drawn from fresh entropy and
//     domain-separated by a personalization string
//   - envelope layout nonce[12] || ciphertext[n] || tag[16]
//
// Authentication failures (tampering, wrong key, wrong AAD) are always
// reported as ErrAuthFailed, never as a generic cipher error.
//
// Key derivation uses HKDF-SHA256 with compiled-in default salt and info.
// Callers needing independent key spaces override salt or info, never the
// identity.
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
package crypto
