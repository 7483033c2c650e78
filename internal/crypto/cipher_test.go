package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(seed string) []byte {
	key := make([]byte, KeySize)
	copy(key, seed)
	for i := len(seed); i < KeySize; i++ {
		key[i] = byte(i)
	}
	return key
}

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher()
	require.NoError(t, err)
	return c
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

// countingReader fails after n successful reads.
type countingReader struct {
	mu   sync.Mutex
	left int
}

func (r *countingReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.left == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	r.left--
	return rand.Read(p)
}

func TestSealOpen_RoundTrip(t *testing.T) {
	c := newTestCipher(t)
	key := testKey("k1")

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"nil", nil},
		{"single byte", []byte{0x01}},
		{"binary", []byte{0x00, 0xff, 0x10, 0x7f}},
		{"text", []byte("hello world")},
		{"large", []byte(strings.Repeat("x", 64*1024))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			envelope, err := c.Seal(tt.plaintext, key, nil)
			require.NoError(t, err)
			require.Len(t, envelope, len(tt.plaintext)+Overhead)

			plaintext, err := c.Open(envelope, key, nil)
			require.NoError(t, err)
			require.NotNil(t, plaintext)
			require.True(t, bytes.Equal(tt.plaintext, plaintext))
		})
	}
}

func TestSeal_FreshNoncePerCall(t *testing.T) {
	c := newTestCipher(t)
	key := testKey("k1")

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		envelope, err := c.Seal([]byte("same"), key, nil)
		require.NoError(t, err)
		nonce := string(envelope[:NonceSize])
		require.False(t, seen[nonce], "nonce reused")
		seen[nonce] = true
	}
}

func TestOpen_TamperSensitivity(t *testing.T) {
	c := newTestCipher(t)
	key := testKey("k1")

	envelope, err := c.Seal([]byte("attack at dawn"), key, nil)
	require.NoError(t, err)

	// Flip every bit of nonce, ciphertext and tag in turn.
	for i := range envelope {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), envelope...)
			tampered[i] ^= 1 << bit

			plaintext, err := c.Open(tampered, key, nil)
			require.ErrorIs(t, err, ErrAuthFailed, "byte %d bit %d", i, bit)
			require.Nil(t, plaintext)
		}
	}
}

func TestOpen_WrongKey(t *testing.T) {
	c := newTestCipher(t)

	envelope, err := c.Seal([]byte("secret"), testKey("k1"), nil)
	require.NoError(t, err)

	_, err = c.Open(envelope, testKey("k2"), nil)
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestOpen_AAD(t *testing.T) {
	c := newTestCipher(t)
	key := testKey("k1")

	envelope, err := c.Seal([]byte("secret"), key, []byte("id-a"))
	require.NoError(t, err)

	plaintext, err := c.Open(envelope, key, []byte("id-a"))
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), plaintext)

	_, err = c.Open(envelope, key, []byte("id-b"))
	require.ErrorIs(t, err, ErrAuthFailed)

	_, err = c.Open(envelope, key, nil)
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestInvalidKeySize(t *testing.T) {
	c := newTestCipher(t)

	for _, size := range []int{0, 16, 31, 33, 64} {
		key := make([]byte, size)

		_, err := c.Seal([]byte("x"), key, nil)
		require.ErrorIs(t, err, ErrInvalidKey, "seal size %d", size)

		_, err = c.Open(make([]byte, Overhead), key, nil)
		require.ErrorIs(t, err, ErrInvalidKey, "open size %d", size)
	}
}

func TestOpen_ShortInput(t *testing.T) {
	c := newTestCipher(t)

	for _, size := range []int{0, 1, NonceSize, Overhead - 1} {
		_, err := c.Open(make([]byte, size), testKey("k1"), nil)
		require.ErrorIs(t, err, ErrInvalidInput, "size %d", size)
		require.NotErrorIs(t, err, ErrAuthFailed)
	}
}

func TestOpen_MinimumEnvelopeIsAuthenticated(t *testing.T) {
	c := newTestCipher(t)

	// 28 zero bytes parse as nonce+tag but must fail authentication.
	_, err := c.Open(make([]byte, Overhead), testKey("k1"), nil)
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestNewCipher_EntropyFailure(t *testing.T) {
	c, err := NewCipher(WithEntropy(failingReader{}))
	require.ErrorIs(t, err, ErrNotInitialized)
	require.Nil(t, c)

	_, err = NewCipher(WithEntropy(nil))
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestSeal_EntropyFailureAfterConstruction(t *testing.T) {
	c, err := NewCipher(WithEntropy(&countingReader{left: 1}))
	require.NoError(t, err)

	_, err = c.Seal([]byte("x"), testKey("k1"), nil)
	require.ErrorIs(t, err, ErrCipherFailure)
}

func TestZeroCipher_NotInitialized(t *testing.T) {
	var c Cipher
	_, err := c.Seal([]byte("x"), testKey("k1"), nil)
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = c.Open(make([]byte, Overhead), testKey("k1"), nil)
	require.ErrorIs(t, err, ErrNotInitialized)

	var nilCipher *Cipher
	_, err = nilCipher.Seal(nil, testKey("k1"), nil)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestWithPersonalization_Interoperable(t *testing.T) {
	a, err := NewCipher(WithPersonalization("domain-a"))
	require.NoError(t, err)
	b, err := NewCipher(WithPersonalization("domain-b"))
	require.NoError(t, err)

	key := testKey("k1")
	envelope, err := a.Seal([]byte("payload"), key, nil)
	require.NoError(t, err)

	// Personalization only affects nonce generation, not the envelope format.
	plaintext, err := b.Open(envelope, key, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), plaintext)
}

func TestCipher_ConcurrentUse(t *testing.T) {
	c := newTestCipher(t)
	key := testKey("k1")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := []byte(strings.Repeat("m", i))
			envelope, err := c.Seal(msg, key, nil)
			require.NoError(t, err)
			plaintext, err := c.Open(envelope, key, nil)
			require.NoError(t, err)
			require.Equal(t, msg, plaintext)
		}(i)
	}
	wg.Wait()
}
