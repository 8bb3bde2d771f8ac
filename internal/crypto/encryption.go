package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// KeySize is the AES-256 key length
const KeySize = 32

// ErrCiphertextTooShort is returned for payloads shorter than a nonce
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Sealer encrypts secrets at rest with AES-256-GCM. The output is base64 of
// nonce||ciphertext.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a sealer around a 32 byte key
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Sealer{aead: gcm}, nil
}

// KeyFromString turns ENCRYPTION_KEY into key material: a base64 encoded 32
// byte key is used as is, anything else is hashed with SHA-256
func KeyFromString(s string) []byte {
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		// Decoded key must be exactly 32 bytes (AES-256)
		if len(raw) == KeySize {
			return raw
		}
		sum := sha256.Sum256(raw)
		return sum[:]
	}
	// Not base64, hash the raw string
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

// Load returns a sealer keyed from ENCRYPTION_KEY when set, otherwise from
// the system keychain (generating a key on first use)
func Load(store *KeyStore, log *logrus.Entry) (*Sealer, error) {
	// Environment variable first (development/testing)
	if s := os.Getenv("ENCRYPTION_KEY"); s != "" {
		return NewSealer(KeyFromString(s))
	}

	// No env var, use the keychain
	key, err := store.LoadOrCreate(log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption from keystore: %w", err)
	}
	return NewSealer(key)
}

// Seal encrypts plaintext
func (s *Sealer) Seal(plaintext string) (string, error) {
	// Fresh random nonce per value
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	// Prepend nonce to ciphertext
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal
func (s *Sealer) Open(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}

	// Extract nonce and ciphertext
	n := s.aead.NonceSize()
	if len(data) < n {
		return "", ErrCiphertextTooShort
	}

	plaintext, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
