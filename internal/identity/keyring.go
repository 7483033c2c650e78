package identity

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/illarion/securestore/internal/crypto"
	"github.com/zalando/go-keyring"
)

const (
	DefaultService = "securestore"
	DefaultUser    = "device-identity"

	provisionedSize = 32
)

// Keyring reads the identity from the OS keyring.
type Keyring struct {
	Service string
	User    string
}

// NewKeyring creates a keyring source. Empty arguments select the defaults.
func NewKeyring(service, user string) *Keyring {
	if service == "" {
		service = DefaultService
	}
	if user == "" {
		user = DefaultUser
	}
	return &Keyring{Service: service, User: user}
}

func (k *Keyring) Identity() (string, error) {
	id, err := keyring.Get(k.Service, k.User)
	if err != nil {
		return "", fmt.Errorf("%w: keyring %s/%s: %w", ErrUnavailable, k.Service, k.User, err)
	}
	if id == "" {
		return "", ErrEmptyIdentity
	}
	return id, nil
}

// Set stores id in the keyring, replacing any previous value.
func (k *Keyring) Set(id string) error {
	if id == "" {
		return ErrEmptyIdentity
	}
	if err := keyring.Set(k.Service, k.User, id); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	return nil
}

// Provision returns the stored identity, generating and storing a random one
// if none exists yet. created reports whether a new identity was stored.
func (k *Keyring) Provision() (id string, created bool, err error) {
	id, err = keyring.Get(k.Service, k.User)
	if err == nil && id != "" {
		return id, false, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return "", false, fmt.Errorf("%w: keyring %s/%s: %w", ErrUnavailable, k.Service, k.User, err)
	}

	raw, err := crypto.GenerateRandom(provisionedSize)
	if err != nil {
		return "", false, err
	}
	defer crypto.ClearBytes(raw)

	id = hex.EncodeToString(raw)
	if err := k.Set(id); err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Delete removes the identity. Deleting a missing entry succeeds.
func (k *Keyring) Delete() error {
	if err := keyring.Delete(k.Service, k.User); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// Has reports whether an identity is stored.
func (k *Keyring) Has() bool {
	_, err := keyring.Get(k.Service, k.User)
	return err == nil
}
