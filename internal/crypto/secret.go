// Package crypto provides AES-256-GCM authenticated encryption for
// environment-variable values at rest, following the teacher repo's
// GLINRDOCK_SECRET key-loading convention.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	NonceSize = 12 // AES-GCM standard nonce size
	TagSize   = 16 // AES-GCM authentication tag size
	KeySize   = 32 // AES-256 key size
)

var (
	ErrInvalidKeySize   = errors.New("invalid key size: must be 32 bytes")
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrMissingSecretKey = errors.New("ENCRYPTION_KEY environment variable is required")
	ErrInvalidBase64    = errors.New("ENCRYPTION_KEY must be valid base64")
)

// LoadMasterKey decodes a base64-encoded 32-byte master key. It is validated
// once at startup so that a misconfigured key is rejected before the first
// write rather than surfacing as a silent decrypt failure later.
func LoadMasterKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, ErrMissingSecretKey
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidBase64
	}

	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}

	return key, nil
}

// LoadMasterKeyFromEnv loads the master key from the ENCRYPTION_KEY
// environment variable.
func LoadMasterKeyFromEnv() ([]byte, error) {
	return LoadMasterKey(os.Getenv("ENCRYPTION_KEY"))
}

// Encrypt encrypts plaintext with AES-256-GCM and returns the storage form
// "nonce_hex:tag_hex:ciphertext_hex".
func Encrypt(key []byte, plaintext []byte) (string, error) {
	if len(key) != KeySize {
		return "", ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", ErrEncryptionFailed
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", ErrEncryptionFailed
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	if len(sealed) < TagSize {
		return "", ErrEncryptionFailed
	}

	ciphertext := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	return fmt.Sprintf("%s:%s:%s", hex.EncodeToString(nonce), hex.EncodeToString(tag), hex.EncodeToString(ciphertext)), nil
}

// Decrypt parses the "nonce_hex:tag_hex:ciphertext_hex" storage form and
// returns the original plaintext.
//
// Per spec, a value that does not parse as that form, or that fails tag
// verification, is treated as a literal (back-compat fallback for values
// stored before encryption was introduced) and is returned unchanged.
func Decrypt(key []byte, stored string) (string, error) {
	plaintext, ok := tryDecrypt(key, stored)
	if !ok {
		return stored, nil
	}
	return plaintext, nil
}

func tryDecrypt(key []byte, stored string) (string, bool) {
	if len(key) != KeySize {
		return "", false
	}

	parts := strings.SplitN(stored, ":", 3)
	if len(parts) != 3 {
		return "", false
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != NonceSize {
		return "", false
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != TagSize {
		return "", false
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", false
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", false
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", false
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", false
	}

	return string(plaintext), true
}
