package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"
)

const (
	// DefaultKeystoreService is the keychain service the desktop app uses
	DefaultKeystoreService = "claygrounds-desktop"
	keystoreUser           = "credentials-key"
)

// KeyStore keeps the credentials encryption key in the OS keychain
type KeyStore struct {
	Service string
}

// NewKeyStore returns a keystore for the given keychain service name
func NewKeyStore(service string) *KeyStore {
	if service == "" {
		service = DefaultKeystoreService
	}
	return &KeyStore{Service: service}
}

// LoadOrCreate returns the stored key, generating and storing one if none
// exists yet
func (k *KeyStore) LoadOrCreate(log *logrus.Entry) ([]byte, error) {
	// Try to load existing key from keychain
	stored, err := keyring.Get(k.Service, keystoreUser)
	if err == nil && stored != "" {
		key, decodeErr := base64.StdEncoding.DecodeString(stored)
		if decodeErr == nil && len(key) == KeySize {
			return key, nil
		}
		log.Warn("Stored encryption key is malformed, generating a new one")
	} else if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		// Real error (not just "not found"), log it
		log.WithError(err).Warn("Keystore lookup failed")
	}

	// Generate new 32-byte key for AES-256
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	// Store in keychain for future use
	if err := keyring.Set(k.Service, keystoreUser, base64.StdEncoding.EncodeToString(key)); err != nil {
		// Linux without a secret service is tolerated; saved credentials
		// simply won't decrypt after a restart
		if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
			return nil, fmt.Errorf("keychain storage required on %s: %w", runtime.GOOS, err)
		}
		log.WithError(err).Warn("Failed to store key in keychain, key will be regenerated on next launch")
	}

	return key, nil
}

// Delete removes the key from the keychain
func (k *KeyStore) Delete() error {
	return keyring.Delete(k.Service, keystoreUser)
}

// IsStored checks if a key exists in the keychain
func (k *KeyStore) IsStored() bool {
	_, err := keyring.Get(k.Service, keystoreUser)
	return err == nil
}
