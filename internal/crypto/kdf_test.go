package crypto

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type staticSource string

func (s staticSource) Identity() (string, error) { return string(s), nil }

type errSource struct {
	err   error
	calls int
}

func (s *errSource) Identity() (string, error) {
	s.calls++
	return "", s.err
}

func TestDeriveKey_Deterministic(t *testing.T) {
	k1, err := DeriveKey("device-123", []byte(DefaultSalt), []byte(DefaultInfo), KeySize)
	require.NoError(t, err)
	k2, err := DeriveKey("device-123", []byte(DefaultSalt), []byte(DefaultInfo), KeySize)
	require.NoError(t, err)

	require.Len(t, k1, KeySize)
	require.Equal(t, k1, k2)
}

func TestDeriveKey_InputSensitivity(t *testing.T) {
	base, err := DeriveKey("device-123", []byte("salt"), []byte("info"), KeySize)
	require.NoError(t, err)

	tests := []struct {
		name     string
		identity string
		salt     string
		info     string
	}{
		{"identity", "device-124", "salt", "info"},
		{"salt", "device-123", "salt2", "info"},
		{"info", "device-123", "salt", "info2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other, err := DeriveKey(tt.identity, []byte(tt.salt), []byte(tt.info), KeySize)
			require.NoError(t, err)
			require.NotEqual(t, base, other)
		})
	}
}

func TestDeriveKey_Lengths(t *testing.T) {
	short, err := DeriveKey("id", nil, nil, 16)
	require.NoError(t, err)
	long, err := DeriveKey("id", nil, nil, 64)
	require.NoError(t, err)

	require.Len(t, short, 16)
	require.Len(t, long, 64)
	// HKDF output is a prefix stream for fixed inputs.
	require.Equal(t, short, long[:16])

	_, err = DeriveKey("id", nil, nil, maxDerivedSize+1)
	require.ErrorIs(t, err, ErrKeyDerivation)
}

func TestDeriveKey_InvalidInput(t *testing.T) {
	_, err := DeriveKey("", nil, nil, KeySize)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = DeriveKey("id", nil, nil, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
}

// TestDeriveKey_KnownVector pins the derivation against RFC 5869 test case 3
// (SHA-256, zero-length salt and info) truncated to 32 bytes.
func TestDeriveKey_KnownVector(t *testing.T) {
	identity := string([]byte{
		0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b,
		0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b, 0x0b,
	})
	key, err := DeriveKey(identity, nil, nil, 42)
	require.NoError(t, err)

	expected := []byte{
		0x8d, 0xa4, 0xe7, 0x75, 0xa5, 0x63, 0xc1, 0x8f,
		0x71, 0x5f, 0x80, 0x2a, 0x06, 0x3c, 0x5a, 0x31,
		0xb8, 0xa1, 0x1f, 0x5c, 0x5e, 0xe1, 0x87, 0x9e,
		0xc3, 0x45, 0x4e, 0x5f, 0x3c, 0x73, 0x8d, 0x2d,
		0x9d, 0x20, 0x13, 0x95, 0xfa, 0xa4, 0xb6, 0x1a,
		0x96, 0xc8,
	}
	require.Equal(t, expected, key)
}

func TestKDF_Defaults(t *testing.T) {
	k := NewKDF()
	require.Equal(t, []byte(DefaultSalt), k.Salt)
	require.Equal(t, []byte(DefaultInfo), k.Info)

	k = NewKDF(WithSalt(nil), WithInfo([]byte{}))
	require.Equal(t, []byte(DefaultSalt), k.Salt)
	require.Equal(t, []byte(DefaultInfo), k.Info)
}

func TestKDF_Derive(t *testing.T) {
	key, err := NewKDF().Derive(staticSource("serial-000123456"), KeySize)
	require.NoError(t, err)

	direct, err := DeriveKey("serial-000123456", []byte(DefaultSalt), []byte(DefaultInfo), KeySize)
	require.NoError(t, err)
	require.Equal(t, direct, key)

	other, err := NewKDF(WithInfo([]byte("journal-key"))).Derive(staticSource("serial-000123456"), KeySize)
	require.NoError(t, err)
	require.NotEqual(t, key, other)
}

func TestKDF_ZeroLengthCheckedBeforeSource(t *testing.T) {
	src := &errSource{err: errors.New("unavailable")}

	_, err := NewKDF().Derive(src, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Equal(t, 0, src.calls)
}

func TestKDF_SourceErrorPropagates(t *testing.T) {
	sentinel := errors.New("identity unavailable")
	src := &errSource{err: sentinel}

	_, err := NewKDF().Derive(src, KeySize)
	require.Equal(t, sentinel, err)
	require.Equal(t, 1, src.calls)
}

func TestKDF_EmptyIdentity(t *testing.T) {
	_, err := NewKDF().Derive(staticSource(""), KeySize)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewKDF().Derive(nil, KeySize)
	require.ErrorIs(t, err, ErrInvalidInput)
}
